package model

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type UploadStatus string

const (
	UploadStatusIdle      UploadStatus = "idle"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusDone      UploadStatus = "done"
	UploadStatusError     UploadStatus = "error"
)

// Terminal reports whether an item can no longer change state
// (except being cleared from the queue).
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusDone || s == UploadStatusError
}

package model

// FileRef is a file selected for upload: its name, size and content.
type FileRef struct {
	Name string
	Size int64
	Data []byte
}

// UploadItem tracks one queued file through a batch run.
type UploadItem struct {
	File     FileRef      `json:"-"`
	Name     string       `json:"name"`
	Progress int          `json:"progress"`
	Status   UploadStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
}

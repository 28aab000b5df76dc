package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/askdocs/askdocs-go/internal/apperr"
	"github.com/askdocs/askdocs-go/internal/model"
)

type UploadedFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	ID       string `json:"id,omitempty"`
}

type UploadResult struct {
	Uploaded []UploadedFile `json:"uploaded"`
}

type Summary struct {
	Filename string `json:"filename"`
	Summary  string `json:"summary"`
}

type summarizeResponse struct {
	Summaries []Summary `json:"summaries"`
}

// UploadDocuments sends the files as one multipart request (field name
// "files"). A reply without an uploaded list is normalized from the
// request files so callers always see what went up.
func (c *Client) UploadDocuments(ctx context.Context, files []model.FileRef) (*UploadResult, error) {
	if len(files) == 0 {
		return nil, apperr.Validation("no files selected for upload")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	var result UploadResult
	err := c.t.PostForm(ctx, "/api/docs/upload", writer.FormDataContentType(), buf.Bytes(),
		&result, time.Duration(c.uploadTimeout)*time.Second)
	if err != nil {
		return nil, err
	}

	if len(result.Uploaded) == 0 {
		for _, f := range files {
			result.Uploaded = append(result.Uploaded, UploadedFile{Filename: f.Name, Size: f.Size})
		}
	}

	log.Info().Int("count", len(result.Uploaded)).Msg("documents uploaded")
	return &result, nil
}

// SummarizeFiles requests summaries for uploaded files. The request body
// is the bare JSON array of filenames.
func (c *Client) SummarizeFiles(ctx context.Context, filenames []string) ([]Summary, error) {
	if len(filenames) == 0 {
		return nil, apperr.Validation("no filenames provided to summarize")
	}

	var reply summarizeResponse
	if err := c.t.Request(ctx, "POST", "/api/docs/summarize", filenames, &reply); err != nil {
		return nil, err
	}

	log.Info().Int("count", len(reply.Summaries)).Msg("summaries received")
	return reply.Summaries, nil
}

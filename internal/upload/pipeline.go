// Package upload drives a bounded queue of selected files through the
// upload-then-summarize batch flow, tracking per-file progress and
// isolating partial failures: a summarization failure never rolls back a
// successful upload.
package upload

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/askdocs/askdocs-go/internal/apperr"
	"github.com/askdocs/askdocs-go/internal/model"

	docapi "github.com/askdocs/askdocs-go/internal/api"
)

// DefaultMaxBatch caps queue admission per batch; excess selections are
// silently truncated.
const DefaultMaxBatch = 10

// Result reports one batch run. SummarizeErr is set when upload succeeded
// but summarization failed; the uploaded files stay reported (and their
// items stay done).
type Result struct {
	Uploaded     []docapi.UploadedFile
	Summaries    []docapi.Summary
	SummarizeErr error
}

// Pipeline runs at most one batch at a time.
type Pipeline struct {
	api *docapi.Client
	max int

	// OnProgress, when set, observes per-file progress transitions.
	OnProgress func(name string, progress int, status model.UploadStatus)

	mu     sync.Mutex
	active bool
	items  []*model.UploadItem
}

func NewPipeline(api *docapi.Client, maxBatch int) *Pipeline {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Pipeline{api: api, max: maxBatch}
}

// Add queues files for the next batch run and returns how many were
// admitted. Selections beyond the remaining capacity are dropped.
func (p *Pipeline) Add(files []model.FileRef) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	room := p.max - len(p.items)
	if room <= 0 {
		log.Debug().Int("dropped", len(files)).Msg("upload queue full, selection truncated")
		return 0
	}

	added := 0
	for _, f := range files {
		if f.Name == "" {
			continue
		}
		if added == room {
			break
		}
		p.items = append(p.items, &model.UploadItem{
			File:   f,
			Name:   f.Name,
			Status: model.UploadStatusIdle,
		})
		added++
	}

	if dropped := len(files) - added; dropped > 0 {
		log.Debug().Int("added", added).Int("dropped", dropped).Msg("upload selection truncated")
	}
	return added
}

// Items returns a copy of the queue for display.
func (p *Pipeline) Items() []model.UploadItem {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.UploadItem, len(p.items))
	for i, item := range p.items {
		out[i] = *item
	}
	return out
}

// Clear drops the queue. Running batches keep their in-flight items.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = nil
}

// Active reports whether a batch run is in progress.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Start runs one batch over the currently idle items: upload, then
// summarize the successfully uploaded filenames. It returns a
// ValidationError without touching item state when there is nothing to
// do or a run is already active.
func (p *Pipeline) Start(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return nil, apperr.Validation("an upload batch is already running")
	}

	var batch []*model.UploadItem
	for _, item := range p.items {
		if item.Status == model.UploadStatusIdle {
			batch = append(batch, item)
		}
	}
	if len(batch) == 0 {
		p.mu.Unlock()
		return nil, apperr.Validation("please select at least one file to upload")
	}

	p.active = true
	files := make([]model.FileRef, len(batch))
	for i, item := range batch {
		files[i] = item.File
		item.Status = model.UploadStatusUploading
		item.Progress = 0
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active = false
		p.mu.Unlock()
	}()

	for _, item := range batch {
		p.progress(item.Name, 0, model.UploadStatusUploading)
	}

	uploaded, err := p.api.UploadDocuments(ctx, files)
	if err != nil {
		// Summarization is never attempted for a failed upload.
		p.markBatch(batch, func(item *model.UploadItem) {
			item.Status = model.UploadStatusError
			item.Error = err.Error()
		})
		log.Error().Err(err).Int("files", len(batch)).Msg("batch upload failed")
		return nil, apperr.Upload(err)
	}

	// Success is applied to every in-flight item atomically with the
	// batch result; the transport offers no granular progress.
	p.markBatch(batch, func(item *model.UploadItem) {
		item.Status = model.UploadStatusDone
		item.Progress = 100
	})

	result := &Result{Uploaded: uploaded.Uploaded}

	var filenames []string
	for _, f := range uploaded.Uploaded {
		if f.Filename != "" {
			filenames = append(filenames, f.Filename)
		}
	}
	if len(filenames) == 0 {
		return result, nil
	}

	summaries, err := p.api.SummarizeFiles(ctx, filenames)
	if err != nil {
		// Partial failure: uploads stand, items stay done.
		result.SummarizeErr = apperr.Summarize(err)
		log.Warn().Err(err).Msg("summarization failed after successful upload")
		return result, nil
	}

	result.Summaries = summaries
	return result, nil
}

func (p *Pipeline) markBatch(batch []*model.UploadItem, apply func(*model.UploadItem)) {
	p.mu.Lock()
	for _, item := range batch {
		apply(item)
	}
	p.mu.Unlock()

	for _, item := range batch {
		p.progress(item.Name, item.Progress, item.Status)
	}
}

func (p *Pipeline) progress(name string, progress int, status model.UploadStatus) {
	if p.OnProgress != nil {
		p.OnProgress(name, progress, status)
	}
}

package upload

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdocs/askdocs-go/internal/apperr"
	"github.com/askdocs/askdocs-go/internal/config"
	"github.com/askdocs/askdocs-go/internal/model"
	"github.com/askdocs/askdocs-go/internal/state"
	"github.com/askdocs/askdocs-go/internal/token"
	"github.com/askdocs/askdocs-go/internal/transport"

	docapi "github.com/askdocs/askdocs-go/internal/api"
)

func newPipeline(t *testing.T, handler http.Handler) (*Pipeline, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{BaseURL: srv.URL, RequestTimeoutSeconds: 5, UploadTimeoutSeconds: 5}
	tokens := token.NewStore(state.NewMemoryStore())
	return NewPipeline(docapi.New(cfg, transport.New(cfg, tokens)), DefaultMaxBatch), srv
}

func fileRefs(n int) []model.FileRef {
	files := make([]model.FileRef, n)
	for i := range files {
		files[i] = model.FileRef{Name: fmt.Sprintf("doc-%02d.pdf", i), Size: 4, Data: []byte("data")}
	}
	return files
}

func uploadOK(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"uploaded":[`)
	for i, part := range r.MultipartForm.File["files"] {
		if i > 0 {
			fmt.Fprint(w, ",")
		}
		fmt.Fprintf(w, `{"filename":%q,"size":%d}`, part.Filename, part.Size)
	}
	fmt.Fprint(w, `]}`)
}

func TestAddCapsQueueAtMax(t *testing.T) {
	p, _ := newPipeline(t, http.NotFoundHandler())

	added := p.Add(fileRefs(12))
	assert.Equal(t, 10, added)

	items := p.Items()
	require.Len(t, items, 10, "only the first 10 of 12 selections are queued")
	assert.Equal(t, "doc-00.pdf", items[0].Name)
	assert.Equal(t, "doc-09.pdf", items[9].Name)
	for _, item := range items {
		assert.Equal(t, model.UploadStatusIdle, item.Status)
	}

	t.Run("a full queue admits nothing more", func(t *testing.T) {
		assert.Equal(t, 0, p.Add(fileRefs(1)))
		assert.Len(t, p.Items(), 10)
	})

	t.Run("nameless selections are skipped", func(t *testing.T) {
		p.Clear()
		added := p.Add([]model.FileRef{{Name: ""}, {Name: "real.pdf", Data: []byte("x")}})
		assert.Equal(t, 1, added)
	})
}

func TestStartWithEmptyQueue(t *testing.T) {
	p, _ := newPipeline(t, http.NotFoundHandler())

	_, err := p.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/docs/upload", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		uploadOK(w, r)
	})
	mux.HandleFunc("/api/docs/summarize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"summaries":[]}`))
	})

	p, _ := newPipeline(t, mux)
	p.Add(fileRefs(2))

	done := make(chan error, 1)
	go func() {
		_, err := p.Start(context.Background())
		done <- err
	}()

	<-started
	assert.True(t, p.Active())
	_, err := p.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, p.Active())
}

func TestUploadFailureMarksItemsError(t *testing.T) {
	var summarizeCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/docs/upload", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"disk full"}`, http.StatusInsufficientStorage)
	})
	mux.HandleFunc("/api/docs/summarize", func(w http.ResponseWriter, r *http.Request) {
		summarizeCalls.Add(1)
	})

	p, _ := newPipeline(t, mux)
	p.Add(fileRefs(3))

	_, err := p.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUpload))

	for _, item := range p.Items() {
		assert.Equal(t, model.UploadStatusError, item.Status)
		assert.Contains(t, item.Error, "disk full")
	}
	assert.Equal(t, int32(0), summarizeCalls.Load(), "summarization is never attempted for a failed upload")
}

func TestSummarizeFailureIsPartialSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/docs/upload", uploadOK)
	mux.HandleFunc("/api/docs/summarize", func(w http.ResponseWriter, r *http.Request) {
		// simulate a dropped connection
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	})

	p, _ := newPipeline(t, mux)
	p.Add([]model.FileRef{
		{Name: "a.pdf", Size: 1, Data: []byte("a")},
		{Name: "b.pdf", Size: 1, Data: []byte("b")},
	})

	result, err := p.Start(context.Background())
	require.NoError(t, err, "summarize failure is not a batch failure")
	require.NotNil(t, result)

	assert.Len(t, result.Uploaded, 2)
	assert.Empty(t, result.Summaries)
	require.Error(t, result.SummarizeErr)
	assert.True(t, apperr.IsKind(result.SummarizeErr, apperr.KindSummarize))

	for _, item := range p.Items() {
		assert.Equal(t, model.UploadStatusDone, item.Status, "items are not rolled back to error")
		assert.Equal(t, 100, item.Progress)
	}
}

func TestFullBatchSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/docs/upload", uploadOK)
	mux.HandleFunc("/api/docs/summarize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"summaries":[
			{"filename":"a.pdf","summary":"about a"},
			{"filename":"b.pdf","summary":"about b"}
		]}`))
	})

	p, _ := newPipeline(t, mux)

	var transitions []string
	p.OnProgress = func(name string, progress int, status model.UploadStatus) {
		transitions = append(transitions, fmt.Sprintf("%s:%d:%s", name, progress, status))
	}

	p.Add([]model.FileRef{
		{Name: "a.pdf", Size: 1, Data: []byte("a")},
		{Name: "b.pdf", Size: 1, Data: []byte("b")},
	})

	result, err := p.Start(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.SummarizeErr)
	require.Len(t, result.Summaries, 2)
	assert.Equal(t, "about a", result.Summaries[0].Summary)

	assert.Contains(t, transitions, "a.pdf:0:uploading")
	assert.Contains(t, transitions, "a.pdf:100:done")

	t.Run("done items never run again", func(t *testing.T) {
		_, err := p.Start(context.Background())
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
		for _, item := range p.Items() {
			assert.Equal(t, model.UploadStatusDone, item.Status)
		}
	})
}

func TestClear(t *testing.T) {
	p, _ := newPipeline(t, http.NotFoundHandler())
	p.Add(fileRefs(4))
	require.Len(t, p.Items(), 4)

	p.Clear()
	assert.Empty(t, p.Items())

	// room is back after clearing
	assert.Equal(t, 10, p.Add(fileRefs(11)))
}

package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const maxUploadBytes = 32 << 20

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Query) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "query must not be empty")
		return
	}

	s.mu.Lock()
	known := append([]string(nil), s.uploadedFiles...)
	s.mu.Unlock()

	sources := make([]map[string]any, 0, len(known))
	for i, name := range known {
		sources = append(sources, map[string]any{
			"doc_id": name,
			"score":  1.0 / float64(i+1),
		})
	}

	log.Debug().Str("query", body.Query).Int("sources", len(sources)).Msg("dev ask")
	writeJSON(w, http.StatusOK, map[string]any{
		"answer": fmt.Sprintf("(dev) You asked: %q. Upload documents and ask again for grounded answers.", body.Query),
		"sources": sources,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "no files provided")
		return
	}

	uploaded := make([]map[string]any, 0, len(parts))
	s.mu.Lock()
	for _, part := range parts {
		uploaded = append(uploaded, map[string]any{
			"filename": part.Filename,
			"size":     part.Size,
		})
		s.uploadedFiles = append(s.uploadedFiles, part.Filename)
	}
	s.mu.Unlock()

	log.Info().Int("count", len(uploaded)).Msg("dev upload accepted")
	writeJSON(w, http.StatusOK, map[string]any{"uploaded": uploaded})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var filenames []string
	if err := json.NewDecoder(r.Body).Decode(&filenames); err != nil {
		writeDetail(w, http.StatusBadRequest, "expected a JSON array of filenames")
		return
	}
	if len(filenames) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "no filenames provided")
		return
	}

	summaries := make([]map[string]string, 0, len(filenames))
	for _, name := range filenames {
		summaries = append(summaries, map[string]string{
			"filename": name,
			"summary":  fmt.Sprintf("(dev) Placeholder summary for %s.", name),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}

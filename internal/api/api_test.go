package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdocs/askdocs-go/internal/apperr"
	"github.com/askdocs/askdocs-go/internal/config"
	"github.com/askdocs/askdocs-go/internal/model"
	"github.com/askdocs/askdocs-go/internal/state"
	"github.com/askdocs/askdocs-go/internal/token"
	"github.com/askdocs/askdocs-go/internal/transport"
)

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := &config.Config{BaseURL: baseURL, RequestTimeoutSeconds: 5, UploadTimeoutSeconds: 10}
	tokens := token.NewStore(state.NewMemoryStore())

	now := time.Now().Unix()
	payload, _ := json.Marshal(map[string]any{"sub": "u1", "iat": now, "exp": now + 3600})
	access := fmt.Sprintf("%s.%s.",
		base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`)),
		base64.RawURLEncoding.EncodeToString(payload))
	require.NoError(t, tokens.Set(context.Background(), &model.Session{
		AccessToken:  access,
		RefreshToken: "refresh_u1",
		User:         model.User{ID: "u1", Name: "Ada", Email: "ada@example.com"},
	}))

	return New(cfg, transport.New(cfg, tokens))
}

func TestAsk(t *testing.T) {
	t.Run("normalizes sources, doc_id falls back to title", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "what is raft", body["query"])
			w.Write([]byte(`{"answer":"a consensus algorithm","sources":[
				{"title":"Raft paper","score":0.92,"url":"https://raft.github.io"},
				{"doc_id":"notes.pdf","score":0.61}
			]}`))
		}))
		defer srv.Close()

		answer, err := newClient(t, srv.URL).Ask(context.Background(), "  what is raft  ")
		require.NoError(t, err)
		assert.Equal(t, "a consensus algorithm", answer.Text)
		require.Len(t, answer.Sources, 2)
		assert.Equal(t, model.Source{Title: "Raft paper", URL: "https://raft.github.io"}, answer.Sources[0])
		assert.Equal(t, model.Source{Title: "notes.pdf"}, answer.Sources[1])
	})

	t.Run("empty query never reaches the server", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("unexpected request")
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).Ask(context.Background(), "   ")
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})
}

func TestUploadDocuments(t *testing.T) {
	files := []model.FileRef{
		{Name: "a.pdf", Size: 3, Data: []byte("abc")},
		{Name: "b.pdf", Size: 2, Data: []byte("xy")},
	}

	t.Run("sends multipart field files", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			parts := r.MultipartForm.File["files"]
			require.Len(t, parts, 2)
			assert.Equal(t, "a.pdf", parts[0].Filename)

			f, err := parts[0].Open()
			require.NoError(t, err)
			defer f.Close()
			data, err := io.ReadAll(f)
			require.NoError(t, err)
			assert.Equal(t, "abc", string(data))

			json.NewEncoder(w).Encode(map[string]any{"uploaded": []map[string]any{
				{"filename": "a.pdf", "size": 3, "id": "d1"},
				{"filename": "b.pdf", "size": 2, "id": "d2"},
			}})
		}))
		defer srv.Close()

		result, err := newClient(t, srv.URL).UploadDocuments(context.Background(), files)
		require.NoError(t, err)
		require.Len(t, result.Uploaded, 2)
		assert.Equal(t, "d1", result.Uploaded[0].ID)
	})

	t.Run("synthesizes uploaded list when reply omits it", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		result, err := newClient(t, srv.URL).UploadDocuments(context.Background(), files)
		require.NoError(t, err)
		require.Len(t, result.Uploaded, 2)
		assert.Equal(t, UploadedFile{Filename: "a.pdf", Size: 3}, result.Uploaded[0])
	})

	t.Run("empty selection rejected locally", func(t *testing.T) {
		_, err := newClient(t, "http://127.0.0.1:0").UploadDocuments(context.Background(), nil)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})
}

func TestSummarizeFiles(t *testing.T) {
	t.Run("body is the bare filename array", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"a.pdf", "b.pdf"}, body)
			json.NewEncoder(w).Encode(map[string]any{"summaries": []map[string]string{
				{"filename": "a.pdf", "summary": "about a"},
				{"filename": "b.pdf", "summary": "about b"},
			}})
		}))
		defer srv.Close()

		summaries, err := newClient(t, srv.URL).SummarizeFiles(context.Background(), []string{"a.pdf", "b.pdf"})
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, Summary{Filename: "a.pdf", Summary: "about a"}, summaries[0])
	})

	t.Run("empty input rejected locally", func(t *testing.T) {
		_, err := newClient(t, "http://127.0.0.1:0").SummarizeFiles(context.Background(), nil)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})
}

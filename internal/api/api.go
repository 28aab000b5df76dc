// Package api exposes the product endpoints as typed calls over the
// resilient transport: question answering, document upload and
// summarization.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/askdocs/askdocs-go/internal/apperr"
	"github.com/askdocs/askdocs-go/internal/config"
	"github.com/askdocs/askdocs-go/internal/model"
	"github.com/askdocs/askdocs-go/internal/transport"
)

type Client struct {
	t             *transport.Client
	uploadTimeout int
}

func New(cfg *config.Config, t *transport.Client) *Client {
	return &Client{t: t, uploadTimeout: cfg.UploadTimeoutSeconds}
}

// Answer is the result of a question: the generated text plus the
// retrieval sources it was grounded on, in ranking order.
type Answer struct {
	Text    string
	Sources []model.Source
}

type askResponse struct {
	Answer  string `json:"answer"`
	Sources []struct {
		DocID string  `json:"doc_id"`
		Title string  `json:"title"`
		Score float64 `json:"score"`
		URL   string  `json:"url"`
	} `json:"sources"`
}

// Ask submits a query and returns the answer with normalized sources.
func (c *Client) Ask(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("query must not be empty")
	}

	var reply askResponse
	err := c.t.Request(ctx, http.MethodPost, "/api/ask", map[string]string{"query": query}, &reply)
	if err != nil {
		return nil, err
	}

	answer := &Answer{Text: reply.Answer}
	for _, s := range reply.Sources {
		title := s.Title
		if title == "" {
			title = s.DocID
		}
		answer.Sources = append(answer.Sources, model.Source{Title: title, URL: s.URL})
	}
	return answer, nil
}

// Package transport wraps outbound API calls: it attaches the bearer
// credential, detects expiry, and coordinates at most one in-flight token
// refresh across concurrent callers before retrying a failed call once.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/askdocs/askdocs-go/internal/apperr"
	"github.com/askdocs/askdocs-go/internal/config"
	"github.com/askdocs/askdocs-go/internal/token"
)

type Client struct {
	base    string
	http    *http.Client
	tokens  *token.Store
	timeout time.Duration

	// refresh shares one in-flight token exchange between all callers
	// that hit a 401 at the same time.
	refresh singleflight.Group
}

func New(cfg *config.Config, tokens *token.Store) *Client {
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{},
		tokens:  tokens,
		timeout: cfg.RequestTimeout(),
	}
}

// Request issues a JSON call and decodes the response into out (which may
// be nil). On a 401 it refreshes the session and retries exactly once.
func (c *Client) Request(ctx context.Context, method, path string, body, out any) error {
	return c.RequestTimeout(ctx, method, path, body, out, c.timeout)
}

// RequestTimeout is Request with a per-call deadline override, used for
// long-running calls such as uploads.
func (c *Client) RequestTimeout(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	var payload []byte
	switch {
	case body != nil:
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return apperr.Validation(fmt.Sprintf("encode request body: %v", err))
		}
	case method != http.MethodGet:
		payload = []byte("{}")
	}
	return c.call(ctx, method, path, payload, "application/json", out, timeout)
}

// PostForm issues a pre-encoded body (e.g. multipart) through the same
// refresh-and-retry path as JSON requests.
func (c *Client) PostForm(ctx context.Context, path string, contentType string, form []byte, out any, timeout time.Duration) error {
	return c.call(ctx, http.MethodPost, path, form, contentType, out, timeout)
}

func (c *Client) call(ctx context.Context, method, path string, payload []byte, contentType string, out any, timeout time.Duration) error {
	status, data, err := c.do(ctx, method, path, payload, contentType, true, timeout)
	if err != nil {
		return apperr.Unreachable(err)
	}

	if status == http.StatusUnauthorized {
		if err := c.refreshSession(ctx); err != nil {
			return err
		}
		// Retry exactly once with the refreshed credential. If the new
		// token is also rejected the 401 falls through as an API error;
		// there is no second refresh.
		status, data, err = c.do(ctx, method, path, payload, contentType, true, timeout)
		if err != nil {
			return apperr.Unreachable(err)
		}
	}

	if status < 200 || status >= 300 {
		return apperr.API(status, errorDetail(status, data))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// do performs one HTTP round trip and drains the body. withAuth attaches
// the stored bearer credential when a session exists.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, contentType string, withAuth bool, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if withAuth {
		sess, err := c.tokens.Get(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load session, sending request unauthenticated")
		} else if sess != nil {
			req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

// refreshSession runs the token exchange as a single flight: concurrent
// 401 callers wait on the shared outcome instead of issuing their own
// refresh calls. The flight carries its own bounded deadline, detached
// from any one caller's cancellation, so the latch can never stay stuck.
func (c *Client) refreshSession(ctx context.Context) error {
	_, err, shared := c.refresh.Do("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.RefreshTimeout)
		defer cancel()
		return nil, c.doRefresh(rctx)
	})
	if shared {
		log.Debug().Msg("joined in-flight token refresh")
	}
	return err
}

func (c *Client) doRefresh(ctx context.Context) error {
	sess, err := c.tokens.Get(ctx)
	if err != nil {
		return fmt.Errorf("load session for refresh: %w", err)
	}
	if sess == nil || sess.RefreshToken == "" {
		c.clearSession(ctx)
		return apperr.SessionExpired()
	}

	payload, _ := json.Marshal(map[string]string{"refreshToken": sess.RefreshToken})
	// No auth header and no recursion into the 401 path here.
	status, data, err := c.do(ctx, http.MethodPost, "/api/auth/refresh", payload, "application/json", false, config.RefreshTimeout)
	if err != nil {
		c.clearSession(ctx)
		return apperr.SessionExpired().WithCause(err)
	}

	var reply authResponse
	if status < 200 || status >= 300 || json.Unmarshal(data, &reply) != nil || reply.accessToken() == "" {
		log.Warn().Int("status", status).Msg("token refresh rejected")
		c.clearSession(ctx)
		return apperr.SessionExpired()
	}

	updated := *sess
	updated.AccessToken = reply.accessToken()
	if reply.RefreshToken != "" {
		updated.RefreshToken = reply.RefreshToken
	}
	if reply.User != nil {
		updated.User = *reply.User
	}
	if err := c.tokens.Set(ctx, &updated); err != nil {
		return fmt.Errorf("store refreshed session: %w", err)
	}

	log.Debug().Str("userId", updated.User.ID).Msg("access token refreshed")
	return nil
}

func (c *Client) clearSession(ctx context.Context) {
	if err := c.tokens.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("failed to clear session")
	}
}

// errorDetail extracts a human-readable failure message: the structured
// detail/message field when present, else the raw body, else status text.
func errorDetail(status int, data []byte) string {
	var structured struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &structured); err == nil {
		if structured.Detail != "" {
			return structured.Detail
		}
		if structured.Message != "" {
			return structured.Message
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return http.StatusText(status)
}

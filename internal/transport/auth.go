package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/askdocs/askdocs-go/internal/apperr"
	"github.com/askdocs/askdocs-go/internal/model"
)

// authResponse covers both the current (accessToken) and legacy (token)
// field names the auth endpoints answer with.
type authResponse struct {
	AccessToken  string      `json:"accessToken"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         *model.User `json:"user"`
}

func (r *authResponse) accessToken() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

func (r *authResponse) session() (*model.Session, bool) {
	if r.User == nil {
		return nil, false
	}
	sess := &model.Session{
		AccessToken:  r.accessToken(),
		RefreshToken: r.RefreshToken,
		User:         *r.User,
	}
	return sess, sess.Complete()
}

// Login exchanges credentials for a session and persists it.
func (c *Client) Login(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	var reply authResponse
	err := c.Request(ctx, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": password}, &reply)
	if err != nil {
		return nil, err
	}

	sess, ok := reply.session()
	if !ok {
		return nil, apperr.API(http.StatusOK, "login response is missing credentials")
	}
	if err := c.tokens.Set(ctx, sess); err != nil {
		return nil, err
	}

	log.Info().Str("userId", sess.User.ID).Msg("logged in")
	return sess, nil
}

// Signup registers a new account and persists the resulting session.
func (c *Client) Signup(ctx context.Context, name, email, password string) (*model.Session, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, apperr.Validation("name, email and password are required")
	}

	var reply authResponse
	err := c.Request(ctx, http.MethodPost, "/api/auth/signup",
		map[string]string{"name": name, "email": email, "password": password}, &reply)
	if err != nil {
		return nil, err
	}

	sess, ok := reply.session()
	if !ok {
		return nil, apperr.API(http.StatusOK, "signup response is missing credentials")
	}
	if err := c.tokens.Set(ctx, sess); err != nil {
		return nil, err
	}

	log.Info().Str("userId", sess.User.ID).Msg("account created")
	return sess, nil
}

// Logout notifies the server best-effort and always clears the local
// session; server errors are logged and ignored.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.Request(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		log.Warn().Err(err).Msg("logout notification failed")
	}
	return c.tokens.Clear(ctx)
}

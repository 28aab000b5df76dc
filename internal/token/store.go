// Package token owns the persisted session-credential record: access
// token, refresh token and user identity. No network calls originate here.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/askdocs/askdocs-go/internal/apperr"
	"github.com/askdocs/askdocs-go/internal/model"
	"github.com/askdocs/askdocs-go/internal/state"
)

type Store struct {
	st state.Store
}

func NewStore(st state.Store) *Store {
	return &Store{st: st}
}

// Get returns the stored session, or nil when absent. A corrupt record
// is treated as absent, matching what a reload would observe.
func (s *Store) Get(ctx context.Context) (*model.Session, error) {
	data, ok, err := s.st.Load(ctx, state.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		log.Warn().Err(err).Msg("stored session is corrupt, treating as absent")
		return nil, nil
	}
	if !sess.Complete() {
		log.Warn().Msg("stored session is incomplete, treating as absent")
		return nil, nil
	}
	return &sess, nil
}

// Set persists the session. A structurally incomplete session is rejected
// and the slot is left untouched.
func (s *Store) Set(ctx context.Context, sess *model.Session) error {
	if !sess.Complete() {
		return apperr.Validation("session is incomplete: access token, refresh token and user are all required")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.st.Save(ctx, state.SessionKey, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.st.Delete(ctx, state.SessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// IsValid reports whether a session exists and its access token has not
// expired. A malformed or unparseable token is invalid, never an error.
func (s *Store) IsValid(ctx context.Context) bool {
	sess, err := s.Get(ctx)
	if err != nil || sess == nil {
		return false
	}

	claims, err := DecodeClaims(sess.AccessToken)
	if err != nil {
		log.Debug().Err(err).Msg("access token does not decode")
		return false
	}
	return !claims.Expired(time.Now())
}

// Package chat owns the per-user conversation store: named sessions,
// each an ordered message log, persisted after every mutation.
//
// Every operation re-reads the persisted slot before mutating so writes
// from other tabs are not clobbered by a stale in-memory copy. True
// cross-tab atomicity is not attempted: racing snapshot writes are
// last-write-wins, reconciled opportunistically through change events.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/askdocs/askdocs-go/internal/model"
	"github.com/askdocs/askdocs-go/internal/state"
)

const DefaultTitle = "New chat"

type Listener func(userID string, snap model.Snapshot)

type Store struct {
	st state.Store

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

func NewStore(st state.Store) *Store {
	return &Store{st: st, listeners: make(map[int]Listener)}
}

// Subscribe registers a listener notified with the new snapshot after
// every mutation (and after cross-tab reconciliation). The returned
// function unsubscribes.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Load returns the current snapshot without mutating anything.
func (s *Store) Load(ctx context.Context, userID string) (model.Snapshot, error) {
	snap, err := s.read(ctx, userID)
	if err != nil {
		return model.Snapshot{}, err
	}
	return snap.Clone(), nil
}

// CreateSession inserts a new session at the front and selects it.
func (s *Store) CreateSession(ctx context.Context, userID, title string) (model.Snapshot, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	return s.mutate(ctx, userID, func(snap *model.Snapshot) bool {
		now := time.Now().UnixMilli()
		sess := model.ChatSession{
			ID:        uuid.NewString(),
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
			Messages:  []model.Message{},
		}
		snap.Sessions = append([]model.ChatSession{sess}, snap.Sessions...)
		snap.CurrentID = sess.ID
		log.Debug().Str("userId", userID).Str("sessionId", sess.ID).Msg("chat session created")
		return true
	})
}

// SetCurrent selects an existing session; unknown ids are a no-op.
func (s *Store) SetCurrent(ctx context.Context, userID, id string) (model.Snapshot, error) {
	return s.mutate(ctx, userID, func(snap *model.Snapshot) bool {
		if snap.Find(id) == nil || snap.CurrentID == id {
			return false
		}
		snap.CurrentID = id
		return true
	})
}

// RenameSession trims the title; a rename to blank keeps the old title.
func (s *Store) RenameSession(ctx context.Context, userID, id, title string) (model.Snapshot, error) {
	return s.mutate(ctx, userID, func(snap *model.Snapshot) bool {
		sess := snap.Find(id)
		if sess == nil {
			return false
		}
		trimmed := strings.TrimSpace(title)
		if trimmed == "" {
			return false
		}
		sess.Title = trimmed
		sess.UpdatedAt = time.Now().UnixMilli()
		return true
	})
}

// DeleteSession removes the session. When the current session is deleted
// the first remaining session becomes current, or none when empty.
func (s *Store) DeleteSession(ctx context.Context, userID, id string) (model.Snapshot, error) {
	return s.mutate(ctx, userID, func(snap *model.Snapshot) bool {
		idx := -1
		for i := range snap.Sessions {
			if snap.Sessions[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false
		}
		snap.Sessions = append(snap.Sessions[:idx], snap.Sessions[idx+1:]...)
		if snap.CurrentID == id {
			if len(snap.Sessions) > 0 {
				snap.CurrentID = snap.Sessions[0].ID
			} else {
				snap.CurrentID = ""
			}
		}
		log.Debug().Str("userId", userID).Str("sessionId", id).Msg("chat session deleted")
		return true
	})
}

// AppendMessage adds a message to the session's log. A session deleted
// by another tab in the meantime makes this a no-op.
func (s *Store) AppendMessage(ctx context.Context, userID, sessionID string, msg model.Message) (model.Snapshot, error) {
	return s.mutate(ctx, userID, func(snap *model.Snapshot) bool {
		sess := snap.Find(sessionID)
		if sess == nil {
			return false
		}
		sess.Messages = append(sess.Messages, msg)
		sess.UpdatedAt = time.Now().UnixMilli()
		return true
	})
}

// ReplaceMessages swaps the session's entire message log.
func (s *Store) ReplaceMessages(ctx context.Context, userID, sessionID string, msgs []model.Message) (model.Snapshot, error) {
	return s.mutate(ctx, userID, func(snap *model.Snapshot) bool {
		sess := snap.Find(sessionID)
		if sess == nil {
			return false
		}
		sess.Messages = append([]model.Message{}, msgs...)
		sess.UpdatedAt = time.Now().UnixMilli()
		return true
	})
}

// Current resolves the selected session, or nil when nothing is selected.
func (s *Store) Current(ctx context.Context, userID string) (*model.ChatSession, error) {
	snap, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess := snap.Find(snap.CurrentID); sess != nil {
		return sess, nil
	}
	return nil, nil
}

// ReconcileLoop consumes external change events for the user's slot and
// republishes the re-read snapshot to listeners. It blocks until ctx is
// cancelled. Used only for cross-tab reconciliation, never as a
// consistency mechanism.
func (s *Store) ReconcileLoop(ctx context.Context, userID string) error {
	events, err := s.st.Watch(ctx, state.ChatsKey(userID))
	if err != nil {
		return fmt.Errorf("watch chat store: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			snap, err := s.read(ctx, userID)
			if err != nil {
				log.Warn().Err(err).Str("userId", userID).Msg("reconcile read failed")
				continue
			}
			s.notify(userID, snap)
		}
	}
}

// read loads the persisted snapshot, treating absent or corrupt records
// as the empty store.
func (s *Store) read(ctx context.Context, userID string) (model.Snapshot, error) {
	data, ok, err := s.st.Load(ctx, state.ChatsKey(userID))
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("load chat store: %w", err)
	}
	if !ok {
		return model.Snapshot{}, nil
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("chat store record is corrupt, starting empty")
		return model.Snapshot{}, nil
	}
	return snap, nil
}

// mutate is the read-modify-write cycle every operation runs: re-read
// the slot, apply, persist, notify, and hand back a defensive copy.
// When apply reports no change (unknown id, blank rename) nothing is
// written and listeners are not notified, so a pure no-op cannot
// clobber a concurrent write from another tab.
func (s *Store) mutate(ctx context.Context, userID string, apply func(*model.Snapshot) bool) (model.Snapshot, error) {
	snap, err := s.read(ctx, userID)
	if err != nil {
		return model.Snapshot{}, err
	}

	if !apply(&snap) {
		return snap.Clone(), nil
	}

	data, err := json.Marshal(&snap)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("marshal chat store: %w", err)
	}
	if err := s.st.Save(ctx, state.ChatsKey(userID), data); err != nil {
		return model.Snapshot{}, fmt.Errorf("save chat store: %w", err)
	}

	out := snap.Clone()
	s.notify(userID, snap)
	return out, nil
}

func (s *Store) notify(userID string, snap model.Snapshot) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(userID, snap.Clone())
	}
}

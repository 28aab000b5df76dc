package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/askdocs/askdocs-go/internal/config"
)

const stateChangeChannel = "askdocs_state_changed"

const stateSchema = `
CREATE TABLE IF NOT EXISTS client_state (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps state in a single jsonb table. Cross-process change
// notification rides on LISTEN/NOTIFY with the key as payload.
type PostgresStore struct {
	db       *sqlx.DB
	listener *pq.Listener

	mu       sync.Mutex
	watchers map[string]map[chan Event]struct{}
	closed   bool
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(config.DBConnMaxLifetime)

	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	listener := pq.NewListener(databaseURL, 10*time.Second, time.Minute,
		func(_ pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("state listener error")
			}
		})
	if err := listener.Listen(stateChangeChannel); err != nil {
		listener.Close()
		db.Close()
		return nil, fmt.Errorf("listen state channel: %w", err)
	}

	s := &PostgresStore{
		db:       db,
		listener: listener,
		watchers: make(map[string]map[chan Event]struct{}),
	}
	go s.notifyLoop()

	return s, nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM client_state WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load state: %w", err)
	}
	return value, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, stateChangeChannel, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("notify state change failed")
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, stateChangeChannel, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("notify state change failed")
	}
	return nil
}

func (s *PostgresStore) Watch(ctx context.Context, key string) (<-chan Event, error) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("postgres store closed")
	}
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[chan Event]struct{})
	}
	s.watchers[key][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if set, ok := s.watchers[key]; ok {
			if _, live := set[ch]; live {
				delete(set, ch)
				close(ch)
			}
		}
		s.mu.Unlock()
	}()

	return ch, nil
}

func (s *PostgresStore) notifyLoop() {
	for notification := range s.listener.Notify {
		if notification == nil {
			// Connection re-established; watchers should re-read in case
			// notifications were missed while disconnected.
			s.broadcastAll()
			continue
		}
		s.broadcast(notification.Extra)
	}
}

func (s *PostgresStore) broadcast(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.watchers[key] {
		select {
		case ch <- Event{Key: key}:
		default:
			log.Warn().Str("key", key).Msg("state watcher buffer full, dropping event")
		}
	}
}

func (s *PostgresStore) broadcastAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, set := range s.watchers {
		for ch := range set {
			select {
			case ch <- Event{Key: key}:
			default:
			}
		}
	}
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, set := range s.watchers {
		for ch := range set {
			close(ch)
		}
	}
	s.watchers = make(map[string]map[chan Event]struct{})
	s.mu.Unlock()

	s.listener.Close()
	return s.db.Close()
}

package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/askdocs/askdocs-go/internal/config"
)

// FileStore persists each key as a JSON file under a state directory.
// It is the local analogue of browser storage: another process writing
// to the same directory plays the role of another tab, observed through
// an fsnotify watch on the directory.
type FileStore struct {
	dir     string
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	watchers map[string]map[chan Event]struct{} // key -> subscriber set
	timers   map[string]*time.Timer             // filename -> debounce timer
	closed   bool
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch state dir: %w", err)
	}

	s := &FileStore{
		dir:      dir,
		watcher:  watcher,
		watchers: make(map[string]map[chan Event]struct{}),
		timers:   make(map[string]*time.Timer),
	}
	go s.eventLoop()

	log.Debug().Str("dir", dir).Msg("file state store opened")
	return s, nil
}

func fileName(key string) string {
	return strings.ReplaceAll(key, "/", "-") + ".json"
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, fileName(key))
}

func (s *FileStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read state file: %w", err)
	}
	return data, true, nil
}

func (s *FileStore) Save(_ context.Context, key string, value []byte) error {
	// Write-then-rename so readers never observe a partial record.
	tmp, err := os.CreateTemp(s.dir, fileName(key)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

func (s *FileStore) Watch(ctx context.Context, key string) (<-chan Event, error) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("file store closed")
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

func (s *FileStore) eventLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			s.debounce(name)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("state watcher error")
		}
	}
}

// debounce coalesces the burst of fsnotify events a single rename
// produces into one notification per file.
func (s *FileStore) debounce(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if timer, ok := s.timers[name]; ok {
		timer.Reset(config.FileWatchDebounce)
		return
	}
	s.timers[name] = time.AfterFunc(config.FileWatchDebounce, func() {
		s.mu.Lock()
		delete(s.timers, name)
		key := ""
		for k := range s.watchers {
			if fileName(k) == name {
				key = k
				break
			}
		}
		if key == "" {
			s.mu.Unlock()
			return
		}
		for ch := range s.watchers[key] {
			select {
			case ch <- Event{Key: key}:
			default:
				log.Warn().Str("key", key).Msg("state watcher buffer full, dropping event")
			}
		}
		s.mu.Unlock()
	})
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	for _, set := range s.watchers {
		for ch := range set {
			close(ch)
		}
	}
	s.watchers = make(map[string]map[chan Event]struct{})
	s.mu.Unlock()

	return s.watcher.Close()
}

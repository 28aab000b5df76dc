package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	t.Run("missing key reports absent", func(t *testing.T) {
		_, ok, err := s.Load(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save then load", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, SessionKey, []byte(`{"a":1}`)))
		value, ok, err := s.Load(ctx, SessionKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"a":1}`, string(value))
	})

	t.Run("delete removes the key", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, SessionKey))
		_, ok, err := s.Load(ctx, SessionKey)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("loaded value is a copy", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "k", []byte("abc")))
		value, _, err := s.Load(ctx, "k")
		require.NoError(t, err)
		value[0] = 'z'

		again, _, err := s.Load(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again)
	})
}

func TestMemoryStoreWatch(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key := ChatsKey("u1")
	events, err := s.Watch(ctx, key)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, key, []byte(`{}`)))

	select {
	case ev := <-events:
		assert.Equal(t, key, ev.Key)
	case <-time.After(time.Second):
		t.Fatal("expected a change event")
	}

	t.Run("unrelated keys do not notify", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, ChatsKey("u2"), []byte(`{}`)))
		select {
		case ev := <-events:
			t.Fatalf("unexpected event for %q", ev.Key)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("cancel closes the channel", func(t *testing.T) {
		cancel()
		select {
		case _, open := <-events:
			assert.False(t, open)
		case <-time.After(time.Second):
			t.Fatal("expected channel close")
		}
	})
}

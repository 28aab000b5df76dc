// Package state abstracts the persisted key-value slot the client engine
// keeps its durable records in: one session-credential record, one users
// index (dev mode only) and one conversation-store record per user.
//
// Watch delivers change notifications for a key, including changes made by
// other processes sharing the same backend. Notifications carry no payload;
// subscribers re-read the key and reconcile. They are best-effort and are
// never a consistency mechanism: racing writers are last-write-wins at the
// granularity of a full value.
package state

import "context"

const (
	SessionKey = "session/v1"
	UsersKey   = "users/v1"
)

// ChatsKey returns the conversation-store slot for a user identity.
func ChatsKey(userID string) string {
	return "chats/" + userID
}

// Event signals that a key's value may have changed.
type Event struct {
	Key string
}

type Store interface {
	// Load returns the stored value and whether the key exists.
	Load(ctx context.Context, key string) ([]byte, bool, error)
	// Save writes the value and notifies watchers of the key.
	Save(ctx context.Context, key string, value []byte) error
	// Delete removes the key and notifies watchers.
	Delete(ctx context.Context, key string) error
	// Watch returns a channel of change events for the key. The channel
	// closes when ctx is cancelled or the store closes.
	Watch(ctx context.Context, key string) (<-chan Event, error)

	Close() error
}

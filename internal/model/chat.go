package model

type Source struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Message is immutable once appended to a chat session. Ordering is
// append-order and is never reordered or deduplicated.
type Message struct {
	Role      Role     `json:"role"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp"`
	Sources   []Source `json:"sources,omitempty"`
}

type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

func (s *ChatSession) clone() ChatSession {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

// Snapshot is the full per-user conversation state: sessions ordered
// most-recently-created first, plus the id of the selected session.
type Snapshot struct {
	Sessions  []ChatSession `json:"sessions"`
	CurrentID string        `json:"currentId,omitempty"`
}

// Clone deep-copies the snapshot so callers cannot mutate store state.
func (s *Snapshot) Clone() Snapshot {
	out := Snapshot{CurrentID: s.CurrentID, Sessions: make([]ChatSession, len(s.Sessions))}
	for i := range s.Sessions {
		out.Sessions[i] = s.Sessions[i].clone()
	}
	return out
}

// Find returns a pointer into the snapshot's sessions, or nil.
func (s *Snapshot) Find(id string) *ChatSession {
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return &s.Sessions[i]
		}
	}
	return nil
}

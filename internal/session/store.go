package session

import (
	"fmt"
	"sync"
	"time"
)

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. Entries are never mutated after creation.
type Message struct {
	ID        string
	Seq       uint64
	Role      Role
	Content   string
	Timestamp time.Time
}

// Store owns the single State cell together with the transcript, the current
// suggestion list and the sticky error indicator. The only writers are the
// response-apply step and Reset.
type Store struct {
	mu          sync.RWMutex
	state       State
	transcript  []Message
	suggestions []string
	lastErr     string
	seq         uint64
	generation  uint64
	now         func() time.Time
}

// NewStore returns a store holding the fresh-session default.
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock is NewStore with an injectable clock for transcript timestamps.
func NewStoreWithClock(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		state:       Fresh(),
		transcript:  []Message{},
		suggestions: []string{},
		now:         now,
	}
}

// State returns a copy of the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Transcript returns a copy of the transcript in creation order.
func (s *Store) Transcript() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Suggestions returns a copy of the server's most recent suggestion list.
func (s *Store) Suggestions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.suggestions))
	copy(out, s.suggestions)
	return out
}

// Error returns the sticky error indicator, or "" when none is set.
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Generation counts resets. Work started under one generation must not be
// applied under another.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// AppendMessage adds a transcript entry and returns it.
func (s *Store) AppendMessage(role Role, content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg := Message{
		ID:        fmt.Sprintf("msg-%06d", s.seq),
		Seq:       s.seq,
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
	s.transcript = append(s.transcript, msg)
	return msg
}

// ReplaceState swaps in next as the whole snapshot. Fields are never merged.
func (s *Store) ReplaceState(next State) {
	next = next.Clone()
	if next.LastListSnapshot == nil {
		next.LastListSnapshot = []ListEntry{}
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// ReplaceSuggestions swaps in the suggestion list wholesale.
func (s *Store) ReplaceSuggestions(next []string) {
	out := make([]string, len(next))
	copy(out, next)
	s.mu.Lock()
	s.suggestions = out
	s.mu.Unlock()
}

func (s *Store) SetError(text string) {
	s.mu.Lock()
	s.lastErr = text
	s.mu.Unlock()
}

func (s *Store) ClearError() {
	s.SetError("")
}

// Reset clears the transcript, suggestions and error indicator, restores the
// fresh-session default and advances the generation. The message sequence is
// not rewound so IDs stay unique for the process lifetime.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Fresh()
	s.transcript = []Message{}
	s.suggestions = []string{}
	s.lastErr = ""
	s.generation++
}

package core

import (
	"sync"
	"time"
)

// Session is a resumable conversational transcript owned by the invocation
// engine. It is safe for concurrent access.
//
// Contract:
//   - Append updates the Updated timestamp
//   - Turns returns a defensive copy
//   - Clone deep-copies turns and metadata for safe divergence
type Session struct {
	ID       string            `json:"id"`
	History  []Content         `json:"history"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Metadata map[string]string `json:"metadata"`
	mu       sync.RWMutex
}

// NewSession creates an empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, History: []Content{}, Created: now, Updated: now, Metadata: map[string]string{}}
}

// Append adds turns to the transcript.
func (s *Session) Append(turns ...Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, turns...)
	s.Updated = time.Now()
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Content, len(s.History))
	copy(out, s.History)
	return out
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, History: make([]Content, len(s.History)), Created: s.Created, Updated: s.Updated, Metadata: make(map[string]string, len(s.Metadata))}
	copy(clone.History, s.History)
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// SessionStore persists transcripts for the invocation engine.
type SessionStore interface {
	Create(id string) (*Session, error)
	// Get returns the session or an error wrapping ErrSessionNotFound.
	Get(id string) (*Session, error)
	Append(id string, turns ...Content) error
	Delete(id string) error
}

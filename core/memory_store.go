package core

import "errors"

var (
	// ErrSessionNotFound is returned by session stores for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMemoryNotFound is returned by memory stores for unknown entries.
	ErrMemoryNotFound = errors.New("memory not found")
)

// SearchResult is a single recalled memory entry.
type SearchResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MemoryStore keeps summary records that outlive a working session, such as
// the state persisted on handoff.
type MemoryStore interface {
	Store(scope string, content string, metadata map[string]any) error
	Search(scope string, query string, limit int) ([]SearchResult, error)
	Delete(scope string, memoryID string) error
}

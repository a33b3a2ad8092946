package testutil

import "github.com/hupe1980/turnmesh/core"

// SessionBuilder helps construct transcripts with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").User("hi").Assistant("hello").Build()
type SessionBuilder struct {
	id    string
	turns []core.Content
	meta  map[string]string
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, meta: map[string]string{}}
}

// User appends a user turn (chainable).
func (b *SessionBuilder) User(text string) *SessionBuilder {
	b.turns = append(b.turns, core.UserContent(text))
	return b
}

// Assistant appends an assistant turn (chainable).
func (b *SessionBuilder) Assistant(text string) *SessionBuilder {
	b.turns = append(b.turns, core.AssistantContent(text))
	return b
}

// Meta sets a metadata key (chainable).
func (b *SessionBuilder) Meta(key, val string) *SessionBuilder {
	b.meta[key] = val
	return b
}

// Build returns a *core.Session with the pre-populated transcript.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id)
	s.Append(b.turns...)
	for k, v := range b.meta {
		s.Metadata[k] = v
	}
	return s
}

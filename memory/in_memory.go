package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/clock"
)

// StoredMemory is the internal representation persisted by InMemoryStore.
type StoredMemory struct {
	ID       string
	Content  string
	Metadata map[string]any
	Created  time.Time
}

// Options configures an InMemoryStore.
type Options struct {
	Clock clock.Clock
}

// InMemoryStore is a naive process-local MemoryStore. It offers:
//  1. Scoped key/value facts (Get / Put)
//  2. Append-only stored memories with substring Search
//
// Search is a case-insensitive linear scan returning newest entries first,
// each with a constant score of 1.0.
type InMemoryStore struct {
	mu      sync.RWMutex
	facts   map[string]map[string]any
	storage map[string][]StoredMemory
	seq     int
	clock   clock.Clock
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{
		facts:   make(map[string]map[string]any),
		storage: make(map[string][]StoredMemory),
		clock:   clock.OrReal(opts.Clock),
	}
}

// Get returns a shallow copy of the key/value facts for scope.
func (m *InMemoryStore) Get(scope string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyMap(m.facts[scope]), nil
}

// Put merges delta into the key/value facts for scope.
func (m *InMemoryStore) Put(scope string, delta map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.facts[scope]; !exists {
		m.facts[scope] = make(map[string]any)
	}
	for k, v := range delta {
		m.facts[scope][k] = v
	}
	return nil
}

// Store appends a new memory under scope.
func (m *InMemoryStore) Store(scope string, content string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.storage[scope] = append(m.storage[scope], StoredMemory{
		ID:       fmt.Sprintf("mem_%d", m.seq),
		Content:  content,
		Metadata: copyMap(metadata),
		Created:  m.clock.Now(),
	})
	return nil
}

// Search returns up to limit memories under scope whose content contains
// query, newest first. An empty query matches everything; a non-positive
// limit means no limit.
func (m *InMemoryStore) Search(scope string, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.storage[scope]
	needle := strings.ToLower(query)
	results := []core.SearchResult{}
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(results) >= limit {
			break
		}
		stored := entries[i]
		if needle != "" && !strings.Contains(strings.ToLower(stored.Content), needle) {
			continue
		}
		results = append(results, core.SearchResult{ID: stored.ID, Content: stored.Content, Score: 1.0, Metadata: copyMap(stored.Metadata)})
	}
	return results, nil
}

// Delete removes a stored memory entry by id.
func (m *InMemoryStore) Delete(scope string, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.storage[scope]
	for i, e := range entries {
		if e.ID == memoryID {
			m.storage[scope] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", core.ErrMemoryNotFound, scope, memoryID)
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

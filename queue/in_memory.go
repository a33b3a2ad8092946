package queue

import (
	"context"
	"sync"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/clock"
)

// Options configures an InMemoryStore.
type Options struct {
	Clock clock.Clock
}

// InMemoryStore is a volatile QueueWriter holding one FIFO per conversation.
// It is safe for concurrent access. Chats are reported in the order their
// current backlog was started.
type InMemoryStore struct {
	mu     sync.Mutex
	queues map[string][]core.QueuedMessage
	order  []string
	clock  clock.Clock
}

// NewInMemoryStore constructs an empty queue store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{queues: make(map[string][]core.QueuedMessage), clock: clock.OrReal(opts.Clock)}
}

// Enqueue appends msg to its conversation backlog.
func (s *InMemoryStore) Enqueue(_ context.Context, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[msg.ChatID]; !ok {
		s.order = append(s.order, msg.ChatID)
	}
	s.queues[msg.ChatID] = append(s.queues[msg.ChatID], core.QueuedMessage{Message: msg, EnqueuedAt: s.clock.Now()})
	return nil
}

// IsEmpty reports whether no conversation has a backlog.
func (s *InMemoryStore) IsEmpty(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues) == 0, nil
}

// Len returns the total number of queued messages.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}

// QueuedChats lists conversations with pending messages.
func (s *InMemoryStore) QueuedChats(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// Dequeue removes and returns the whole backlog of chatID.
func (s *InMemoryStore) Dequeue(_ context.Context, chatID string) ([]core.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeLocked(chatID), nil
}

// DequeueAll removes every backlog, chats in backlog start order.
//
// Deprecated: use Dequeue per conversation so held locks are respected.
func (s *InMemoryStore) DequeueAll(_ context.Context) ([]core.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.QueuedMessage
	for _, chatID := range append([]string(nil), s.order...) {
		out = append(out, s.takeLocked(chatID)...)
	}
	return out, nil
}

// takeLocked removes chatID's backlog; caller must hold the mutex.
func (s *InMemoryStore) takeLocked(chatID string) []core.QueuedMessage {
	q, ok := s.queues[chatID]
	if !ok {
		return nil
	}
	delete(s.queues, chatID)
	for i, id := range s.order {
		if id == chatID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return q
}

package core

import "context"

// QueueStore holds per-conversation FIFO backlogs of messages that arrived
// while their conversation was locked. The drain loop only reads and removes.
type QueueStore interface {
	IsEmpty(ctx context.Context) (bool, error)
	// QueuedChats lists every conversation with at least one pending message.
	QueuedChats(ctx context.Context) ([]string, error)
	// Dequeue atomically removes and returns the whole backlog of chatID in
	// enqueue order. An empty result is not an error.
	Dequeue(ctx context.Context, chatID string) ([]QueuedMessage, error)
	// DequeueAll removes every backlog at once.
	//
	// Deprecated: drains ignore lock state; use Dequeue per conversation.
	DequeueAll(ctx context.Context) ([]QueuedMessage, error)
}

// QueueWriter extends QueueStore with the producer side used on admission.
type QueueWriter interface {
	QueueStore
	Enqueue(ctx context.Context, msg Message) error
}

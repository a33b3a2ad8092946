package core

import (
	"strings"
	"time"
)

// Message is a single inbound chat message. It is a value type and must be
// treated as immutable once created.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Handles   []string  `json:"handles,omitempty"` // sender handles
}

// QueuedMessage wraps a Message parked in a queue store while its
// conversation lock was held.
type QueuedMessage struct {
	Message    Message   `json:"message"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Texts returns the message bodies in order.
func Texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

// Handles returns the distinct sender handles of msgs in first-seen order.
func Handles(msgs []Message) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range msgs {
		for _, h := range m.Handles {
			h = strings.TrimSpace(h)
			if h == "" || seen[h] {
				continue
			}
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

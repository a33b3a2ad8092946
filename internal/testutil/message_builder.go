package testutil

import (
	"fmt"
	"time"

	"github.com/hupe1980/turnmesh/core"
)

// BaseTime is the fixed timestamp builders start from.
var BaseTime = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

// MessageBuilder provides a fluent helper for constructing messages in tests.
// Example:
//
//	msg := NewMessageBuilder().Chat("c1").Text("hi").Handles("alice").Build()
type MessageBuilder struct {
	msg core.Message
}

// NewMessageBuilder creates a builder with deterministic defaults.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{msg: core.Message{ID: "m-0", ChatID: "chat", Timestamp: BaseTime}}
}

// ID sets the message id (chainable).
func (b *MessageBuilder) ID(id string) *MessageBuilder { b.msg.ID = id; return b }

// Chat sets the conversation id (chainable).
func (b *MessageBuilder) Chat(id string) *MessageBuilder { b.msg.ChatID = id; return b }

// Text sets the body (chainable).
func (b *MessageBuilder) Text(t string) *MessageBuilder { b.msg.Text = t; return b }

// At sets the timestamp (chainable).
func (b *MessageBuilder) At(ts time.Time) *MessageBuilder { b.msg.Timestamp = ts; return b }

// Handles sets the sender handles (chainable).
func (b *MessageBuilder) Handles(h ...string) *MessageBuilder { b.msg.Handles = h; return b }

// Build returns the message.
func (b *MessageBuilder) Build() core.Message {
	m := b.msg
	if m.Handles != nil {
		m.Handles = append([]string(nil), m.Handles...)
	}
	return m
}

// Messages builds one message per text for chatID with ids "<chat>-<i>" and
// timestamps one second apart.
func Messages(chatID string, texts ...string) []core.Message {
	out := make([]core.Message, len(texts))
	for i, t := range texts {
		out[i] = NewMessageBuilder().
			ID(fmt.Sprintf("%s-%d", chatID, i)).
			Chat(chatID).
			Text(t).
			At(BaseTime.Add(time.Duration(i) * time.Second)).
			Handles("user@" + chatID).
			Build()
	}
	return out
}

// Queued wraps msgs as queued messages enqueued at their own timestamps.
func Queued(msgs ...core.Message) []core.QueuedMessage {
	out := make([]core.QueuedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = core.QueuedMessage{Message: m, EnqueuedAt: m.Timestamp}
	}
	return out
}

package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/logging"
)

// DefaultWindow is the debounce window applied per conversation.
const DefaultWindow = 11 * time.Second

// ErrNilHandler is returned by New without a handler.
var ErrNilHandler = errors.New("ingest: batch handler is required")

// BatchHandler processes one conversation's batch.
type BatchHandler func(ctx context.Context, chatID string, msgs []core.Message)

// Options configures a Batcher.
type Options struct {
	Window time.Duration
	Logger logging.Logger
	// Context is passed to the handler for timer-fired batches. Defaults to
	// context.Background.
	Context context.Context
}

type pending struct {
	msgs  []core.Message
	timer *time.Timer
	gen   uint64
}

// Batcher debounces messages per conversation. It implements core.Ingestor.
type Batcher struct {
	handler BatchHandler
	window  time.Duration
	logger  logging.Logger
	ctx     context.Context

	mu       sync.Mutex
	pending  map[string]*pending
	gen      uint64
	closed   bool
	inflight sync.WaitGroup
}

// New creates a Batcher that hands expired batches to handler.
func New(handler BatchHandler, optFns ...func(o *Options)) (*Batcher, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	opts := Options{Window: DefaultWindow}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return &Batcher{
		handler: handler,
		window:  opts.Window,
		logger:  logging.OrNoOp(opts.Logger),
		ctx:     opts.Context,
		pending: make(map[string]*pending),
	}, nil
}

// AddMessage adds msg to its conversation's window and restarts the window.
// Messages added after Close are dropped with a warning.
func (b *Batcher) AddMessage(msg core.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.logger.Warn("Batcher closed, dropping message", "chat_id", msg.ChatID, "message_id", msg.ID)
		return
	}

	p, ok := b.pending[msg.ChatID]
	if !ok {
		p = &pending{}
		b.pending[msg.ChatID] = p
	} else if p.timer != nil {
		p.timer.Stop()
	}
	p.msgs = append(p.msgs, msg)
	b.gen++
	gen := b.gen
	p.gen = gen
	chatID := msg.ChatID
	p.timer = time.AfterFunc(b.window, func() { b.expire(chatID, gen) })
}

// Pending returns the number of messages waiting in chatID's window.
func (b *Batcher) Pending(chatID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pending[chatID]; ok {
		return len(p.msgs)
	}
	return 0
}

func (b *Batcher) expire(chatID string, gen uint64) {
	b.mu.Lock()
	p, ok := b.pending[chatID]
	if !ok || p.gen != gen {
		b.mu.Unlock()
		return
	}
	delete(b.pending, chatID)
	b.inflight.Add(1)
	b.mu.Unlock()

	defer b.inflight.Done()
	b.dispatch(b.ctx, chatID, p.msgs)
}

func (b *Batcher) dispatch(ctx context.Context, chatID string, msgs []core.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Batch handler panicked", "chat_id", chatID, "panic", r)
		}
	}()
	b.logger.Debug("Dispatching batch", "chat_id", chatID, "messages", len(msgs))
	b.handler(ctx, chatID, msgs)
}

// takeAll stops every window and returns the pending batches.
func (b *Batcher) takeAll() map[string][]core.Message {
	out := make(map[string][]core.Message, len(b.pending))
	for chatID, p := range b.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		out[chatID] = p.msgs
	}
	b.pending = make(map[string]*pending)
	return out
}

// Flush dispatches every pending batch immediately on the calling goroutine.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	batches := b.takeAll()
	b.mu.Unlock()
	for chatID, msgs := range batches {
		b.dispatch(ctx, chatID, msgs)
	}
}

// Close stops accepting messages, dispatches what is pending and waits for
// timer-fired handlers to return. Closing twice is a no-op.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	batches := b.takeAll()
	b.mu.Unlock()

	for chatID, msgs := range batches {
		b.dispatch(b.ctx, chatID, msgs)
	}
	b.inflight.Wait()
}

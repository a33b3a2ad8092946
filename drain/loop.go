package drain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/logging"
)

// DefaultPollInterval is the pause between drain ticks.
const DefaultPollInterval = 5 * time.Second

// ErrNilStore is returned when New is given a nil lock or queue store.
var ErrNilStore = errors.New("drain: lock and queue stores are required")

// Options configures a Loop.
type Options struct {
	PollInterval time.Duration
	Logger       logging.Logger
	// Ingestor receives drained messages. It may also be bound later with
	// SetIngestor.
	Ingestor core.Ingestor
}

// TickReport summarizes one drain pass.
type TickReport struct {
	Reclaimed int
	// Drained maps conversation id to the number of resubmitted messages.
	Drained map[string]int
	// Skipped lists conversations left queued because their lock was held
	// or could not be read.
	Skipped []string
	// Unbound is set when messages were pending but no ingestor was bound.
	Unbound bool
}

// Messages returns the total number of resubmitted messages.
func (r TickReport) Messages() int {
	n := 0
	for _, c := range r.Drained {
		n += c
	}
	return n
}

type runHandle struct {
	stopped atomic.Bool
	done    chan struct{}
}

// Loop polls lock and queue stores and drains free conversations.
type Loop struct {
	locks    core.LockStore
	queue    core.QueueStore
	interval time.Duration
	logger   logging.Logger

	mu       sync.Mutex
	ingestor core.Ingestor
	running  *runHandle
	// stopping is the last stopped handle; Start waits for it to exit.
	stopping *runHandle
}

// New creates a drain loop. It does not start polling.
func New(locks core.LockStore, queue core.QueueStore, optFns ...func(o *Options)) (*Loop, error) {
	if locks == nil || queue == nil {
		return nil, ErrNilStore
	}
	opts := Options{PollInterval: DefaultPollInterval}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Loop{
		locks:    locks,
		queue:    queue,
		interval: opts.PollInterval,
		logger:   logging.ForComponent(opts.Logger, "drain"),
		ingestor: opts.Ingestor,
	}, nil
}

// SetIngestor binds (or with nil, unbinds) the ingestion entry point.
func (l *Loop) SetIngestor(in core.Ingestor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ingestor = in
}

func (l *Loop) currentIngestor() core.Ingestor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ingestor
}

// Start launches the polling goroutine. Starting a running loop logs and
// returns nil. A goroutine from an earlier Start that has not yet observed
// its Stop is waited for first, for up to one poll interval, so two loops
// never tick against the same stores.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running != nil {
		l.mu.Unlock()
		l.logger.Info("Drain loop already running")
		return nil
	}
	prev := l.stopping
	l.stopping = nil
	h := &runHandle{done: make(chan struct{})}
	l.running = h
	l.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			l.mu.Lock()
			if l.running == h {
				l.running = nil
			}
			if l.stopping == nil || l.stopping == h {
				l.stopping = prev
			}
			l.mu.Unlock()
			close(h.done)
			return ctx.Err()
		}
	}

	l.logger.Info("Drain loop started", "poll_interval", l.interval)
	go l.run(ctx, h)
	return nil
}

// Stop clears the running handle. The goroutine notices on its next tick,
// so it may run for up to one more poll interval. Stopping a stopped loop
// is a no-op. The returned channel closes when the goroutine has exited.
func (l *Loop) Stop() <-chan struct{} {
	l.mu.Lock()
	h := l.running
	l.running = nil
	if h != nil {
		l.stopping = h
	}
	l.mu.Unlock()
	if h == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	h.stopped.Store(true)
	l.logger.Info("Drain loop stop requested")
	return h.done
}

// Running reports whether the loop holds a running handle.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running != nil
}

func (l *Loop) run(ctx context.Context, h *runHandle) {
	defer close(h.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		if h.stopped.Load() {
			l.logger.Info("Drain loop stopped")
			return
		}
		l.safeTick(ctx)
		select {
		case <-ctx.Done():
			l.mu.Lock()
			if l.running == h {
				l.running = nil
				l.stopping = h
			}
			l.mu.Unlock()
			l.logger.Info("Drain loop context done", "reason", ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

// safeTick runs one tick, converting a panic into a log entry.
func (l *Loop) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Drain tick panicked", "panic", fmt.Sprint(r))
		}
	}()
	l.Tick(ctx)
}

// Tick performs one drain pass.
func (l *Loop) Tick(ctx context.Context) TickReport {
	start := time.Now()
	report := TickReport{Drained: map[string]int{}}
	defer func() {
		logging.LogDrainTick(l.logger, report.Reclaimed, len(report.Drained), report.Messages(), len(report.Skipped), time.Since(start))
	}()

	n, err := l.locks.CleanupStaleLocks(ctx)
	if err != nil {
		l.logger.Error("Stale lock sweep failed", "error", err)
	} else {
		report.Reclaimed = n
	}

	empty, err := l.queue.IsEmpty(ctx)
	if err != nil {
		l.logger.Error("Queue emptiness check failed", "error", err)
		return report
	}
	if empty {
		return report
	}

	ingestor := l.currentIngestor()
	if ingestor == nil {
		l.logger.Warn("No ingestion binding, skipping drain")
		report.Unbound = true
		return report
	}

	chats, err := l.queue.QueuedChats(ctx)
	if err != nil {
		l.logger.Error("Listing queued chats failed", "error", err)
		return report
	}

	for _, chatID := range chats {
		locked, err := l.locks.IsLocked(ctx, core.ConversationScope(chatID))
		if err != nil {
			logging.ForChat(l.logger, chatID, "").Error("Lock check failed", "error", err)
			report.Skipped = append(report.Skipped, chatID)
			continue
		}
		if locked {
			report.Skipped = append(report.Skipped, chatID)
			continue
		}
		backlog, err := l.queue.Dequeue(ctx, chatID)
		if err != nil {
			logging.ForChat(l.logger, chatID, "").Error("Dequeue failed", "error", err)
			continue
		}
		if len(backlog) == 0 {
			continue
		}
		for _, qm := range backlog {
			ingestor.AddMessage(qm.Message)
		}
		report.Drained[chatID] = len(backlog)
		logging.ForChat(l.logger, chatID, "").Info("Drained backlog", "messages", len(backlog))
	}
	return report
}

// Package turnmesh provides a high-level façade over the dispatch core: the
// per-conversation lock, the classifier, the isolation scheduler, the
// context budget tracker and the backlog drain loop.
//
// Most applications interact with this package by:
//  1. Creating a Mesh via New() with an invocation engine (optionally
//     overriding the default in-memory lock and queue stores)
//  2. Feeding batches to HandleBatch, directly or through NewBatcher
//  3. Running StartDrainLoop so parked backlogs return once a conversation
//     is free
package turnmesh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/turnmesh/budget"
	"github.com/hupe1980/turnmesh/classifier"
	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/drain"
	"github.com/hupe1980/turnmesh/ingest"
	"github.com/hupe1980/turnmesh/internal/clock"
	"github.com/hupe1980/turnmesh/lock"
	"github.com/hupe1980/turnmesh/logging"
	"github.com/hupe1980/turnmesh/memory"
	"github.com/hupe1980/turnmesh/queue"
	"github.com/hupe1980/turnmesh/scheduler"
	"github.com/hupe1980/turnmesh/session"
)

var (
	// ErrNilInvoker is returned by New without an invocation engine.
	ErrNilInvoker = errors.New("turnmesh: invoker is required")
	// ErrEmptyChatID is returned by HandleBatch for a batch without a
	// conversation id.
	ErrEmptyChatID = errors.New("turnmesh: chat id is required")
)

// DefaultLockRefresh is how often an in-flight batch touches its lock.
// It stays well below lock.DefaultTTL.
const DefaultLockRefresh = lock.DefaultTTL / 4

// Reply is the outcome of one HandleBatch call.
type Reply struct {
	ChatID string
	// Queued is set when the conversation was busy and the batch was parked
	// for the drain loop. No other field is populated then.
	Queued  bool
	Text    string
	Results []core.TaskResult
	Metrics core.ContextMetrics
	// Warning is the budget warning for orange and above.
	Warning   string
	HandedOff bool
}

// ReplyFunc delivers a reply to the host platform.
type ReplyFunc func(ctx context.Context, r Reply)

// Options configures the Mesh instance.
type Options struct {
	// Invoker is the invocation engine. Required.
	Invoker core.Invoker

	// Stores (defaults to in-memory implementations if not provided)
	Locks    core.LockAcquirer
	Queue    core.QueueWriter
	Sessions core.SessionStore
	Memory   core.MemoryStore

	Classifier *classifier.Classifier
	MaxTokens  int
	// SharedContext returns the context string sent with every invocation
	// for a conversation.
	SharedContext func(chatID string) string
	OnReply       ReplyFunc
	DrainInterval time.Duration
	// LockRefresh is the interval at which an in-flight batch touches its
	// conversation lock. Keep it below the lock store's TTL.
	LockRefresh time.Duration
	// HolderID identifies this process. Each batch holds the lock as
	// "<HolderID>/<uuid>". Defaults to a uuid.
	HolderID string

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
	Clock  clock.Clock
}

type chatState struct {
	tracker    *budget.Tracker
	controller *session.Controller

	mu         sync.Mutex
	transcript strings.Builder
}

// Mesh is the high-level façade aggregating the dispatch components.
type Mesh struct {
	opts       Options
	classifier *classifier.Classifier
	scheduler  *scheduler.Scheduler
	drain      *drain.Loop
	logger     logging.Logger

	mu    sync.Mutex
	chats map[string]*chatState
}

// New creates a new Mesh with optional overrides. Any unset store is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		MaxTokens:     budget.DefaultMaxTokens,
		DrainInterval: drain.DefaultPollInterval,
		LockRefresh:   DefaultLockRefresh,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Invoker == nil {
		return nil, ErrNilInvoker
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.LockRefresh <= 0 {
		opts.LockRefresh = DefaultLockRefresh
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewInMemoryStore(func(o *lock.Options) {
			o.Clock = opts.Clock
			o.Logger = opts.Logger
		})
	}
	if opts.Queue == nil {
		opts.Queue = queue.NewInMemoryStore(func(o *queue.Options) { o.Clock = opts.Clock })
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewInMemoryStore()
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewInMemoryStore(func(o *memory.Options) { o.Clock = opts.Clock })
	}
	if opts.Classifier == nil {
		opts.Classifier = classifier.New(classifier.DefaultKeywords())
	}
	if opts.HolderID == "" {
		opts.HolderID = uuid.NewString()
	}

	sched, err := scheduler.New(opts.Invoker, func(o *scheduler.Options) { o.Logger = opts.Logger })
	if err != nil {
		return nil, err
	}
	loop, err := drain.New(opts.Locks, opts.Queue, func(o *drain.Options) {
		o.PollInterval = opts.DrainInterval
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &Mesh{
		opts:       opts,
		classifier: opts.Classifier,
		scheduler:  sched,
		drain:      loop,
		logger:     logging.ForComponent(opts.Logger, "mesh"),
		chats:      make(map[string]*chatState),
	}, nil
}

func (m *Mesh) chat(chatID string) *chatState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.chats[chatID]; ok {
		return st
	}
	st := &chatState{
		tracker: budget.NewTracker(func(o *budget.Options) {
			o.MaxTokens = m.opts.MaxTokens
			o.Clock = m.opts.Clock
		}),
	}
	st.controller = session.NewController(chatID, func(o *session.Options) {
		o.Sessions = m.opts.Sessions
		o.Memory = m.opts.Memory
		o.Logger = m.opts.Logger
		o.Clock = m.opts.Clock
		o.OnReset = func() {
			st.tracker.Reset()
			st.mu.Lock()
			st.transcript.Reset()
			st.mu.Unlock()
		}
	})
	m.chats[chatID] = st
	return st
}

// Controller returns the session controller of chatID.
func (m *Mesh) Controller(chatID string) *session.Controller { return m.chat(chatID).controller }

// Tracker returns the budget tracker of chatID.
func (m *Mesh) Tracker(chatID string) *budget.Tracker { return m.chat(chatID).tracker }

// DrainLoop returns the backlog drain loop.
func (m *Mesh) DrainLoop() *drain.Loop { return m.drain }

// ClassifyBatch partitions msgs into typed task groups.
func (m *Mesh) ClassifyBatch(msgs []core.Message) []core.TaskClassification {
	return m.classifier.ClassifyBatch(msgs)
}

// ExecuteWithIsolation dispatches classifications through the scheduler.
func (m *Mesh) ExecuteWithIsolation(
	ctx context.Context,
	classifications []core.TaskClassification,
	sharedContext, resumeSessionID string,
	targetHandles []string,
) ([]core.TaskResult, error) {
	return m.scheduler.ExecuteWithIsolation(ctx, classifications, sharedContext, resumeSessionID, targetHandles)
}

// RecordMeasurement measures contextText against chatID's budget.
func (m *Mesh) RecordMeasurement(chatID, contextText string) core.ContextMetrics {
	return m.chat(chatID).tracker.RecordMeasurement(contextText)
}

// HandleBatch processes one batch for chatID. When the conversation lock is
// held by another batch, in this process or another, the batch is parked
// in the queue and Reply.Queued is set.
func (m *Mesh) HandleBatch(ctx context.Context, chatID string, msgs []core.Message) (Reply, error) {
	reply := Reply{ChatID: chatID}
	if len(msgs) == 0 {
		return reply, nil
	}
	if chatID == "" {
		return reply, ErrEmptyChatID
	}

	log := logging.ForChat(m.logger, chatID, "")
	scope := core.ConversationScope(chatID)
	holder := m.opts.HolderID + "/" + uuid.NewString()
	ok, err := m.opts.Locks.TryAcquire(ctx, scope, holder)
	if err != nil {
		return reply, fmt.Errorf("turnmesh: acquire %s: %w", scope, err)
	}
	if !ok {
		for _, msg := range msgs {
			if err := m.opts.Queue.Enqueue(ctx, msg); err != nil {
				return reply, fmt.Errorf("turnmesh: park message %s: %w", msg.ID, err)
			}
		}
		log.Info("Conversation busy, batch queued", "messages", len(msgs))
		reply.Queued = true
		return reply, nil
	}
	stopRefresh := m.keepLock(ctx, log, scope, holder)
	defer func() {
		stopRefresh()
		released, err := m.opts.Locks.ReleaseHeld(context.WithoutCancel(ctx), scope, holder)
		switch {
		case err != nil:
			log.Error("Lock release failed", "error", err)
		case !released:
			log.Warn("Lock was reclaimed before release", "holder", holder)
		}
	}()

	var cls []core.TaskClassification
	if m.classifier.ShouldIsolate(msgs) {
		cls = m.classifier.ClassifyBatch(msgs)
	} else {
		cls = []core.TaskClassification{{Type: core.TaskConversation, Messages: msgs, Anchor: 0}}
	}

	st := m.chat(chatID)
	log = logging.ForChat(m.logger, chatID, st.controller.SessionID())
	shared := ""
	if m.opts.SharedContext != nil {
		shared = m.opts.SharedContext(chatID)
	}

	results, err := m.scheduler.ExecuteWithIsolation(ctx, cls, shared, st.controller.SessionID(), core.Handles(msgs))
	if err != nil {
		return reply, fmt.Errorf("turnmesh: execute batch for %s: %w", chatID, err)
	}
	if id, ok := scheduler.ConversationSessionID(results); ok {
		st.controller.SetSessionID(id)
	}

	reply.Results = results
	reply.Text = scheduler.AssembleResponses(results)
	reply.Metrics = st.tracker.RecordMeasurement(shared + "\n" + st.appendConversation(cls, results))

	sig := budget.Evaluate(reply.Metrics)
	reply.Warning = sig.Warning
	if sig.Warning != "" {
		log.Warn(sig.Warning, "level", sig.Level.String(), "percentage", reply.Metrics.Percentage)
	}
	if sig.Handoff {
		switch err := st.controller.Handoff(ctx, reply.Metrics); {
		case err == nil:
			reply.HandedOff = true
		case errors.Is(err, session.ErrNoSession):
			log.Debug("Handoff without active session")
		default:
			log.Error("Handoff failed", "error", err)
		}
	}

	if m.opts.OnReply != nil {
		m.opts.OnReply(ctx, reply)
	}
	return reply, nil
}

// keepLock touches the lock every LockRefresh until the returned stop
// function is called, so a long invocation is never swept as stale.
func (m *Mesh) keepLock(ctx context.Context, log logging.Logger, scope core.LockScope, holder string) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(m.opts.LockRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := m.opts.Locks.Touch(context.WithoutCancel(ctx), scope, holder); err != nil {
					log.Warn("Lock refresh failed", "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// appendConversation adds the conversational part of a turn to the running
// transcript and returns the whole transcript. Isolated tasks never enter
// the working session, so they do not count against its budget.
func (st *chatState) appendConversation(cls []core.TaskClassification, results []core.TaskResult) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, cl := range cls {
		if cl.Type != core.TaskConversation {
			continue
		}
		for _, t := range core.Texts(cl.Messages) {
			st.transcript.WriteString(t)
			st.transcript.WriteByte('\n')
		}
	}
	for _, r := range results {
		if r.Type == core.TaskConversation {
			st.transcript.WriteString(r.Response)
			st.transcript.WriteByte('\n')
		}
	}
	return st.transcript.String()
}

// NewBatcher creates a debouncing ingestor feeding HandleBatch and binds it
// to the drain loop, so live and drained traffic share one entry point.
func (m *Mesh) NewBatcher(optFns ...func(o *ingest.Options)) (*ingest.Batcher, error) {
	b, err := ingest.New(func(ctx context.Context, chatID string, msgs []core.Message) {
		if _, err := m.HandleBatch(ctx, chatID, msgs); err != nil {
			logging.ForChat(m.logger, chatID, "").Error("Batch failed", "error", err)
		}
	}, append([]func(o *ingest.Options){func(o *ingest.Options) { o.Logger = logging.ForComponent(m.opts.Logger, "ingest") }}, optFns...)...)
	if err != nil {
		return nil, err
	}
	m.drain.SetIngestor(b)
	return b, nil
}

// StartDrainLoop starts the backlog drain loop. in, when non-nil, replaces
// the bound ingestor.
func (m *Mesh) StartDrainLoop(ctx context.Context, in core.Ingestor) error {
	if in != nil {
		m.drain.SetIngestor(in)
	}
	return m.drain.Start(ctx)
}

// StopDrainLoop stops the drain loop. The returned channel closes once the
// loop goroutine has exited.
func (m *Mesh) StopDrainLoop() <-chan struct{} { return m.drain.Stop() }

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/clock"
	"github.com/hupe1980/turnmesh/logging"
)

// ErrNoSession is returned by Handoff when no working session is active.
var ErrNoSession = errors.New("session: no active session")

// DefaultSummaryTurns is how many trailing transcript turns a handoff
// summary quotes.
const DefaultSummaryTurns = 6

// Options configures a Controller.
type Options struct {
	// Sessions is read to build the handoff summary. Optional.
	Sessions core.SessionStore
	// Memory receives the handoff summary. Optional.
	Memory core.MemoryStore
	// OnReset runs after every handoff, typically budget.Tracker.Reset.
	OnReset      func()
	SummaryTurns int
	Logger       logging.Logger
	Clock        clock.Clock
}

// Controller owns the resumable session id for one conversation. It is safe
// for concurrent use.
type Controller struct {
	scope        string
	sessions     core.SessionStore
	memory       core.MemoryStore
	onReset      func()
	summaryTurns int
	logger       logging.Logger
	clock        clock.Clock

	mu        sync.Mutex
	sessionID string
	handoffs  int
}

// NewController creates a controller for the conversation scope (chat id).
func NewController(scope string, optFns ...func(o *Options)) *Controller {
	opts := Options{SummaryTurns: DefaultSummaryTurns}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SummaryTurns <= 0 {
		opts.SummaryTurns = DefaultSummaryTurns
	}
	return &Controller{
		scope:        scope,
		sessions:     opts.Sessions,
		memory:       opts.Memory,
		onReset:      opts.OnReset,
		summaryTurns: opts.SummaryTurns,
		logger:       logging.OrNoOp(opts.Logger),
		clock:        clock.OrReal(opts.Clock),
	}
}

// SessionID returns the resumable session id, or "" when none is active.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetSessionID records the session id returned by the conversational task.
func (c *Controller) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// Handoffs returns how many handoffs completed.
func (c *Controller) Handoffs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handoffs
}

// Handoff ends the working session. The summary is persisted before the id
// is forgotten; if persisting fails the session stays resumable and the
// error is returned. The reset hook runs whenever the session ends, and also
// when there was no session to end (ErrNoSession).
func (c *Controller) Handoff(ctx context.Context, m core.ContextMetrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.sessionID
	if id == "" {
		c.reset()
		return ErrNoSession
	}

	if c.memory != nil {
		meta := map[string]any{
			"session_id":       id,
			"level":            m.Level.String(),
			"estimated_tokens": m.EstimatedTokens,
			"percentage":       m.Percentage,
			"handoff_at":       c.clock.Now(),
		}
		if err := c.memory.Store(c.scope, c.summarize(id, m), meta); err != nil {
			return fmt.Errorf("session: persist handoff summary for %s: %w", id, err)
		}
	}

	c.sessionID = ""
	c.handoffs++
	c.reset()
	c.logger.Info("Session handed off", "chat_id", c.scope, "session_id", id, "level", m.Level.String(), "estimated_tokens", m.EstimatedTokens)
	return nil
}

func (c *Controller) reset() {
	if c.onReset != nil {
		c.onReset()
	}
}

func (c *Controller) summarize(id string, m core.ContextMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s ended at %s (%d/%d tokens, %.0f%%).", id, m.Level, m.EstimatedTokens, m.MaxTokens, m.Percentage*100)
	if c.sessions == nil {
		return b.String()
	}
	sess, err := c.sessions.Get(id)
	if err != nil {
		c.logger.Warn("Handoff transcript unavailable", "session_id", id, "error", err)
		return b.String()
	}
	turns := sess.Turns()
	if len(turns) > c.summaryTurns {
		turns = turns[len(turns)-c.summaryTurns:]
	}
	if len(turns) > 0 {
		b.WriteString("\nRecent turns:")
		for _, t := range turns {
			fmt.Fprintf(&b, "\n%s: %s", t.Role, t.Text)
		}
	}
	return b.String()
}

package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/util"
	"github.com/hupe1980/turnmesh/logging"
	"github.com/hupe1980/turnmesh/model"
	"github.com/hupe1980/turnmesh/session"
)

var (
	// ErrNilModel is returned by New without a model.
	ErrNilModel = errors.New("invoker: model is required")
	// ErrEmptyBatch is returned when a request carries no messages.
	ErrEmptyBatch = errors.New("invoker: empty batch")
)

// DefaultPersona is the base system instruction.
const DefaultPersona = "You are a helpful assistant replying in a chat conversation. Answer every message in the batch."

// Options configures a ModelInvoker.
type Options struct {
	// Sessions stores transcripts. Defaults to session.NewInMemoryStore.
	Sessions core.SessionStore
	// Persona may use text/template syntax over .chat_id and .handles.
	Persona string
	// NewID generates session ids. Defaults to uuid.NewString.
	NewID  func() string
	Logger logging.Logger
}

// ModelInvoker implements core.Invoker on a model.Model.
type ModelInvoker struct {
	model    model.Model
	sessions core.SessionStore
	persona  string
	newID    func() string
	logger   logging.Logger
}

// New creates an invoker around m.
func New(m model.Model, optFns ...func(o *Options)) (*ModelInvoker, error) {
	if m == nil {
		return nil, ErrNilModel
	}
	opts := Options{Persona: DefaultPersona, NewID: uuid.NewString}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewInMemoryStore()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &ModelInvoker{
		model:    m,
		sessions: opts.Sessions,
		persona:  opts.Persona,
		newID:    opts.NewID,
		logger:   logging.OrNoOp(opts.Logger),
	}, nil
}

// InvokeBatch implements core.Invoker.
func (i *ModelInvoker) InvokeBatch(ctx context.Context, req core.InvokeRequest) (core.InvokeResult, error) {
	if len(req.Messages) == 0 {
		return core.InvokeResult{}, ErrEmptyBatch
	}

	var (
		id      string
		history []core.Content
		err     error
	)
	if req.Isolated {
		id = i.newID()
	} else if id, history, err = i.open(req.ResumeSessionID); err != nil {
		return core.InvokeResult{}, err
	}

	persona, err := util.RenderTemplate(i.persona, map[string]any{
		"chat_id": req.Messages[0].ChatID,
		"handles": req.TargetHandles,
	})
	if err != nil {
		return core.InvokeResult{}, fmt.Errorf("invoker: persona: %w", err)
	}

	turn := core.UserContent(RenderBatch(req.Messages))
	resp, err := i.model.Generate(ctx, model.Request{
		Instructions: BuildInstructions(persona, req.SharedContext, req.TargetHandles),
		Contents:     append(history, turn),
	})
	if err != nil {
		return core.InvokeResult{}, fmt.Errorf("invoker: generate: %w", err)
	}

	if req.Isolated {
		return core.InvokeResult{Response: resp.Text(), SessionID: id}, nil
	}
	if err := i.sessions.Append(id, turn, resp.Content); err != nil {
		return core.InvokeResult{}, fmt.Errorf("invoker: record turn in %s: %w", id, err)
	}
	return core.InvokeResult{Response: resp.Text(), SessionID: id}, nil
}

// open resolves the session to run in and returns its prior turns.
func (i *ModelInvoker) open(resumeID string) (string, []core.Content, error) {
	if resumeID == "" {
		id := i.newID()
		if _, err := i.sessions.Create(id); err != nil {
			return "", nil, fmt.Errorf("invoker: create session: %w", err)
		}
		return id, nil, nil
	}

	sess, err := i.sessions.Get(resumeID)
	switch {
	case err == nil:
		return resumeID, sess.Turns(), nil
	case errors.Is(err, core.ErrSessionNotFound):
		// Transcripts do not survive a restart; keep the id so the caller's
		// bookkeeping stays stable.
		i.logger.Warn("Resume session not found, starting empty transcript", "session_id", resumeID)
		if _, err := i.sessions.Create(resumeID); err != nil {
			return "", nil, fmt.Errorf("invoker: create session: %w", err)
		}
		return resumeID, nil, nil
	default:
		return "", nil, fmt.Errorf("invoker: load session %s: %w", resumeID, err)
	}
}

// RenderBatch renders messages as one user turn, one line per message.
func RenderBatch(msgs []core.Message) string {
	if len(msgs) == 1 {
		return msgs[0].Text
	}
	var b strings.Builder
	for n, m := range msgs {
		if n > 0 {
			b.WriteByte('\n')
		}
		if !m.Timestamp.IsZero() {
			b.WriteString("[" + m.Timestamp.Format(time.DateTime) + "] ")
		}
		b.WriteString(m.Text)
	}
	return b.String()
}

// BuildInstructions composes the system instruction.
func BuildInstructions(persona, sharedContext string, handles []string) string {
	parts := []string{}
	if p := strings.TrimSpace(persona); p != "" {
		parts = append(parts, p)
	}
	if c := strings.TrimSpace(sharedContext); c != "" {
		parts = append(parts, "Context:\n"+c)
	}
	if len(handles) > 0 {
		parts = append(parts, "Reply to: "+strings.Join(handles, ", "))
	}
	return strings.Join(parts, "\n\n")
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/logging"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoClassifications is returned when there is nothing to execute.
	ErrNoClassifications = errors.New("scheduler: no classifications")
	// ErrNilInvoker is returned by New callers that forget the engine.
	ErrNilInvoker = errors.New("scheduler: invoker is required")
)

// ResponseSeparator joins multiple task responses into one reply.
const ResponseSeparator = "\n\n"

// Options configures a Scheduler.
type Options struct {
	Logger logging.Logger
}

// Scheduler dispatches task classifications to an invocation engine.
type Scheduler struct {
	invoker core.Invoker
	logger  logging.Logger
}

// New creates a Scheduler over invoker.
func New(invoker core.Invoker, optFns ...func(o *Options)) (*Scheduler, error) {
	if invoker == nil {
		return nil, ErrNilInvoker
	}
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scheduler{invoker: invoker, logger: logging.ForComponent(opts.Logger, "scheduler")}, nil
}

// ExecuteWithIsolation runs classifications and returns one result per
// classification in ascending anchor order.
//
// Only the conversational classification receives resumeSessionID. A single
// non-conversational classification is dispatched like an isolated branch.
func (s *Scheduler) ExecuteWithIsolation(
	ctx context.Context,
	classifications []core.TaskClassification,
	sharedContext string,
	resumeSessionID string,
	targetHandles []string,
) ([]core.TaskResult, error) {
	if len(classifications) == 0 {
		return nil, ErrNoClassifications
	}

	if len(classifications) == 1 && classifications[0].Type == core.TaskConversation {
		res, err := s.invoke(ctx, classifications[0], sharedContext, resumeSessionID, targetHandles)
		if err != nil {
			return nil, err
		}
		return []core.TaskResult{res}, nil
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make([]core.TaskResult, 0, len(classifications))
	)

	// errgroup.Group without WithContext: a failing branch does not cancel
	// its siblings, Wait still joins all of them.
	for _, cl := range classifications {
		sessionID := ""
		if cl.Type == core.TaskConversation {
			sessionID = resumeSessionID
		}
		g.Go(func() error {
			res, err := s.invoke(ctx, cl, sharedContext, sessionID, targetHandles)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Anchor < results[j].Anchor })
	return results, nil
}

func (s *Scheduler) invoke(
	ctx context.Context,
	cl core.TaskClassification,
	sharedContext, sessionID string,
	handles []string,
) (core.TaskResult, error) {
	start := time.Now()
	out, err := s.invoker.InvokeBatch(ctx, core.InvokeRequest{
		Messages:        cl.Messages,
		SharedContext:   sharedContext,
		ResumeSessionID: sessionID,
		TargetHandles:   handles,
		Isolated:        cl.Type != core.TaskConversation,
	})
	logging.LogInvocation(s.logger, cl.Type.String(), cl.Anchor, time.Since(start), err)
	if err != nil {
		return core.TaskResult{}, fmt.Errorf("%s task at %d: %w", cl.Type, cl.Anchor, err)
	}
	return core.TaskResult{Anchor: cl.Anchor, Type: cl.Type, Response: out.Response, SessionID: out.SessionID}, nil
}

// AssembleResponses merges results into one reply. A single response is
// returned unchanged; several are joined in order by a blank line, with no
// per-task labels.
func AssembleResponses(results []core.TaskResult) string {
	switch len(results) {
	case 0:
		return ""
	case 1:
		return results[0].Response
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Response
	}
	return strings.Join(parts, ResponseSeparator)
}

// ConversationSessionID returns the session id reported by the
// conversational result, if one ran.
func ConversationSessionID(results []core.TaskResult) (string, bool) {
	for _, r := range results {
		if r.Type == core.TaskConversation && r.SessionID != "" {
			return r.SessionID, true
		}
	}
	return "", false
}

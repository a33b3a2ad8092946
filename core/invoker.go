package core

import "context"

// InvokeRequest is one call to the invocation engine.
type InvokeRequest struct {
	Messages      []Message
	SharedContext string
	// ResumeSessionID continues an existing session. Empty means the call
	// must carry no memory of any prior turn.
	ResumeSessionID string
	TargetHandles   []string
	// Isolated marks a side task whose transcript is never resumed. The
	// engine need not keep it after the call.
	Isolated bool
}

// InvokeResult is the engine's reply.
type InvokeResult struct {
	Response  string
	SessionID string
}

// Invoker is the invocation engine contract: the component that actually
// produces the agent's reply.
type Invoker interface {
	InvokeBatch(ctx context.Context, req InvokeRequest) (InvokeResult, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req InvokeRequest) (InvokeResult, error)

// InvokeBatch implements Invoker.
func (f InvokerFunc) InvokeBatch(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	return f(ctx, req)
}

// Ingestor is the entry point shared by live traffic and drained backlogs.
// It accepts one message at a time into a batching window.
type Ingestor interface {
	AddMessage(msg Message)
}

// SessionController ends the working session when the context budget is
// exhausted. Components hold it as an observer reference and never manage
// its lifetime.
type SessionController interface {
	Handoff(ctx context.Context, metrics ContextMetrics) error
}

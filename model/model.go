package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/turnmesh/core"
)

// ErrNoContents is returned when a request carries no turns.
var ErrNoContents = errors.New("model: no contents provided")

// Request captures the normalized model input.
type Request struct {
	Instructions string         `json:"instructions"`
	Contents     []core.Content `json:"contents"`
}

// LastUserText returns the text of the final user turn, or "".
func (r Request) LastUserText() string {
	for i := len(r.Contents) - 1; i >= 0; i-- {
		if r.Contents[i].Role == core.RoleUser {
			return r.Contents[i].Text
		}
	}
	return ""
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed generation.
type Response struct {
	ID           string       `json:"id"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "end_turn", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Text returns the reply text.
func (r Response) Text() string { return r.Content.Text }

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock"
}

// Model is the minimal interface the invocation engine drives.
type Model interface {
	Generate(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests and offline
// runs. It is safe for concurrent use.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	requests  []Request
	err       error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailWith makes every subsequent Generate call return err. Pass nil to
// clear.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model. It answers the last user turn with the canned
// response or an echo.
func (m *MockModel) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if len(req.Contents) == 0 {
		return Response{}, ErrNoContents
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	failure := m.err
	input := req.LastUserText()
	full := m.responses[input]
	m.mu.Unlock()

	if failure != nil {
		return Response{}, failure
	}
	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", input)
	}
	return Response{
		Content:      core.AssistantContent(full),
		FinishReason: "stop",
	}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

package testutil

import (
	"context"

	"github.com/hupe1980/turnmesh/core"
	"github.com/stretchr/testify/mock"
)

// MockInvoker is a testify mock of core.Invoker.
type MockInvoker struct{ mock.Mock }

// InvokeBatch implements core.Invoker.
func (m *MockInvoker) InvokeBatch(ctx context.Context, req core.InvokeRequest) (core.InvokeResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(core.InvokeResult), args.Error(1)
}

// MockIngestor is a testify mock of core.Ingestor.
type MockIngestor struct{ mock.Mock }

// AddMessage implements core.Ingestor.
func (m *MockIngestor) AddMessage(msg core.Message) { m.Called(msg) }

// HasText matches an InvokeRequest whose first message has the given text.
func HasText(text string) any {
	return mock.MatchedBy(func(req core.InvokeRequest) bool {
		return len(req.Messages) > 0 && req.Messages[0].Text == text
	})
}

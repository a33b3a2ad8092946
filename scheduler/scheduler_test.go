package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/turnmesh/classifier"
	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func withSession(id string) any {
	return mock.MatchedBy(func(req core.InvokeRequest) bool { return req.ResumeSessionID == id })
}

func textAndSession(text, id string) any {
	return mock.MatchedBy(func(req core.InvokeRequest) bool {
		return len(req.Messages) > 0 && req.Messages[0].Text == text && req.ResumeSessionID == id
	})
}

func TestNew_RequiresInvoker(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilInvoker)
}

func TestExecuteWithIsolation_Empty(t *testing.T) {
	s, err := New(&testutil.MockInvoker{})
	require.NoError(t, err)

	_, err = s.ExecuteWithIsolation(context.Background(), nil, "", "", nil)
	assert.ErrorIs(t, err, ErrNoClassifications)
}

func TestExecuteWithIsolation_FastPath(t *testing.T) {
	inv := &testutil.MockInvoker{}
	inv.On("InvokeBatch", mock.Anything, withSession("sess-1")).
		Return(core.InvokeResult{Response: "hello back", SessionID: "sess-1"}, nil).Once()

	s, err := New(inv)
	require.NoError(t, err)

	msgs := testutil.Messages("chat", "hello", "how are you")
	cls := classifier.New(classifier.DefaultKeywords()).ClassifyBatch(msgs)
	require.Len(t, cls, 1)

	res, err := s.ExecuteWithIsolation(context.Background(), cls, "ctx", "sess-1", []string{"alice"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, core.TaskResult{Anchor: 0, Type: core.TaskConversation, Response: "hello back", SessionID: "sess-1"}, res[0])

	inv.AssertExpectations(t)
	req := inv.Calls[0].Arguments.Get(1).(core.InvokeRequest)
	assert.Equal(t, msgs, req.Messages)
	assert.Equal(t, "ctx", req.SharedContext)
	assert.Equal(t, []string{"alice"}, req.TargetHandles)
	assert.False(t, req.Isolated)
}

func TestExecuteWithIsolation_RestoresAnchorOrder(t *testing.T) {
	inv := &testutil.MockInvoker{}
	fetchDone := make(chan struct{})

	var mu sync.Mutex
	var completed []core.TaskType

	inv.On("InvokeBatch", mock.Anything, textAndSession("hello", "sess-1")).
		Run(func(mock.Arguments) {
			select {
			case <-fetchDone:
			case <-time.After(5 * time.Second):
			}
			mu.Lock()
			completed = append(completed, core.TaskConversation)
			mu.Unlock()
		}).
		Return(core.InvokeResult{Response: "chat reply", SessionID: "sess-1"}, nil).Once()

	inv.On("InvokeBatch", mock.Anything, textAndSession("https://example.com", "")).
		Run(func(mock.Arguments) {
			mu.Lock()
			completed = append(completed, core.TaskFetch)
			mu.Unlock()
			close(fetchDone)
		}).
		Return(core.InvokeResult{Response: "page summary", SessionID: "iso-1"}, nil).Once()

	s, err := New(inv)
	require.NoError(t, err)

	cls := classifier.New(classifier.DefaultKeywords()).
		ClassifyBatch(testutil.Messages("chat", "hello", "https://example.com"))
	require.Len(t, cls, 2)

	res, err := s.ExecuteWithIsolation(context.Background(), cls, "", "sess-1", nil)
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, []core.TaskType{core.TaskFetch, core.TaskConversation}, completed)
	assert.Equal(t, core.TaskConversation, res[0].Type)
	assert.Equal(t, "chat reply", res[0].Response)
	assert.Equal(t, core.TaskFetch, res[1].Type)
	assert.Equal(t, 1, res[1].Anchor)
	assert.Equal(t, "chat reply\n\npage summary", AssembleResponses(res))

	id, ok := ConversationSessionID(res)
	assert.True(t, ok)
	assert.Equal(t, "sess-1", id)
	inv.AssertExpectations(t)
}

func TestExecuteWithIsolation_NonConversationalBranchesGetNoSession(t *testing.T) {
	inv := &testutil.MockInvoker{}
	inv.On("InvokeBatch", mock.Anything, withSession("")).
		Return(core.InvokeResult{Response: "ok"}, nil).Twice()

	s, err := New(inv)
	require.NoError(t, err)

	cls := classifier.New(classifier.DefaultKeywords()).
		ClassifyBatch(testutil.Messages("chat", "take a photo", "/status"))
	res, err := s.ExecuteWithIsolation(context.Background(), cls, "", "sess-1", nil)
	require.NoError(t, err)
	assert.Len(t, res, 2)
	_, ok := ConversationSessionID(res)
	assert.False(t, ok)
	inv.AssertExpectations(t)
	for _, call := range inv.Calls {
		assert.True(t, call.Arguments.Get(1).(core.InvokeRequest).Isolated)
	}
}

func TestExecuteWithIsolation_SingleIsolatedTask(t *testing.T) {
	inv := &testutil.MockInvoker{}
	inv.On("InvokeBatch", mock.Anything, withSession("")).
		Return(core.InvokeResult{Response: "snap"}, nil).Once()

	s, err := New(inv)
	require.NoError(t, err)

	cls := []core.TaskClassification{{Type: core.TaskCapture, Anchor: 0, Messages: testutil.Messages("c", "take a photo")}}
	res, err := s.ExecuteWithIsolation(context.Background(), cls, "", "sess-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []core.TaskResult{{Anchor: 0, Type: core.TaskCapture, Response: "snap"}}, res)
}

func TestExecuteWithIsolation_AllOrNothing(t *testing.T) {
	sentinel := errors.New("engine down")

	inv := &testutil.MockInvoker{}
	inv.On("InvokeBatch", mock.Anything, testutil.HasText("hi")).
		Return(core.InvokeResult{Response: "fine"}, nil).Once()
	inv.On("InvokeBatch", mock.Anything, testutil.HasText("take a photo")).
		Return(core.InvokeResult{}, sentinel).Once()
	inv.On("InvokeBatch", mock.Anything, testutil.HasText("/status")).
		Return(core.InvokeResult{Response: "up"}, nil).Once()

	s, err := New(inv)
	require.NoError(t, err)

	cls := classifier.New(classifier.DefaultKeywords()).
		ClassifyBatch(testutil.Messages("chat", "hi", "take a photo", "/status"))
	res, err := s.ExecuteWithIsolation(context.Background(), cls, "", "sess-1", nil)

	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "capture task at 1")
	assert.Nil(t, res)
	// Siblings were not cancelled.
	inv.AssertExpectations(t)
}

func TestAssembleResponses(t *testing.T) {
	assert.Equal(t, "", AssembleResponses(nil))
	assert.Equal(t, "only\n\n", AssembleResponses([]core.TaskResult{{Response: "only\n\n"}}))
	assert.Equal(t, "a\n\nb\n\nc", AssembleResponses([]core.TaskResult{{Response: "a"}, {Response: "b"}, {Response: "c"}}))
}

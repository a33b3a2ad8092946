package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.Ingestor = (*Batcher)(nil)

type recorder struct {
	mu      sync.Mutex
	batches map[string][][]string
	fired   chan string
}

func newRecorder() *recorder {
	return &recorder{batches: map[string][][]string{}, fired: make(chan string, 16)}
}

func (r *recorder) handle(_ context.Context, chatID string, msgs []core.Message) {
	r.mu.Lock()
	r.batches[chatID] = append(r.batches[chatID], core.Texts(msgs))
	r.mu.Unlock()
	r.fired <- chatID
}

func (r *recorder) get(chatID string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[chatID]
}

func TestNew_RequiresHandler(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestBatcher_GroupsWithinWindow(t *testing.T) {
	rec := newRecorder()
	b, err := New(rec.handle, func(o *Options) { o.Window = 50 * time.Millisecond })
	require.NoError(t, err)
	defer b.Close()

	for _, m := range testutil.Messages("A", "one", "two", "three") {
		b.AddMessage(m)
	}
	b.AddMessage(testutil.Messages("B", "solo")[0])
	assert.Equal(t, 3, b.Pending("A"))

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case id := <-rec.fired:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("batches not dispatched")
		}
	}
	assert.Equal(t, [][]string{{"one", "two", "three"}}, rec.get("A"))
	assert.Equal(t, [][]string{{"solo"}}, rec.get("B"))
	assert.Zero(t, b.Pending("A"))
}

func TestBatcher_NewMessageRestartsWindow(t *testing.T) {
	rec := newRecorder()
	b, err := New(rec.handle, func(o *Options) { o.Window = 200 * time.Millisecond })
	require.NoError(t, err)
	defer b.Close()

	msgs := testutil.Messages("A", "first", "second")
	b.AddMessage(msgs[0])
	time.Sleep(120 * time.Millisecond)
	b.AddMessage(msgs[1])
	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, rec.get("A"), "window restarted by second message")

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("batch not dispatched")
	}
	assert.Equal(t, [][]string{{"first", "second"}}, rec.get("A"))
}

func TestBatcher_Flush(t *testing.T) {
	rec := newRecorder()
	b, err := New(rec.handle, func(o *Options) { o.Window = time.Hour })
	require.NoError(t, err)
	defer b.Close()

	b.AddMessage(testutil.Messages("A", "x")[0])
	b.Flush(context.Background())
	assert.Equal(t, [][]string{{"x"}}, rec.get("A"))
	assert.Zero(t, b.Pending("A"))
}

func TestBatcher_CloseDispatchesAndRejects(t *testing.T) {
	rec := newRecorder()
	b, err := New(rec.handle, func(o *Options) { o.Window = time.Hour })
	require.NoError(t, err)

	b.AddMessage(testutil.Messages("A", "pending")[0])
	b.Close()
	b.Close()
	assert.Equal(t, [][]string{{"pending"}}, rec.get("A"))

	b.AddMessage(testutil.Messages("A", "late")[0])
	assert.Zero(t, b.Pending("A"))
}

func TestBatcher_HandlerPanicIsContained(t *testing.T) {
	b, err := New(func(context.Context, string, []core.Message) { panic("boom") }, func(o *Options) { o.Window = time.Hour })
	require.NoError(t, err)
	b.AddMessage(testutil.Messages("A", "x")[0])
	assert.NotPanics(t, func() { b.Flush(context.Background()) })
}

package session

import (
	"sync"
	"testing"

	"github.com/hupe1980/turnmesh/core"
	"github.com/hupe1980/turnmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.SessionStore = (*InMemoryStore)(nil)

func TestInMemoryStore_Lifecycle(t *testing.T) {
	s := NewInMemoryStore()

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.ErrorIs(t, s.Append("missing", core.UserContent("x")), core.ErrSessionNotFound)

	_, err = s.Create("s1")
	require.NoError(t, err)
	require.NoError(t, s.Append("s1", core.UserContent("hi"), core.AssistantContent("hello")))

	sess, err := s.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, []core.Content{core.UserContent("hi"), core.AssistantContent("hello")}, sess.Turns())

	sess.Append(core.UserContent("local only"))
	again, _ := s.Get("s1")
	assert.Len(t, again.Turns(), 2, "Get returns a clone")

	_, err = s.Create("s1")
	require.NoError(t, err)
	again, _ = s.Get("s1")
	assert.Empty(t, again.Turns(), "Create overwrites")

	require.NoError(t, s.Delete("s1"))
	require.NoError(t, s.Delete("s1"))
	assert.Zero(t, s.Len())
}

func TestInMemoryStore_ConcurrentAppend(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Create("s")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Append("s", core.UserContent("x")))
		}()
	}
	wg.Wait()

	sess, _ := s.Get("s")
	assert.Len(t, sess.Turns(), 20)
}

func TestInMemoryStore_Save(t *testing.T) {
	s := NewInMemoryStore()
	assert.Error(t, s.Save(nil))

	src := testutil.NewSessionBuilder("restored").User("hi").Assistant("hello").Meta("chat", "c1").Build()
	require.NoError(t, s.Save(src))
	src.Append(core.UserContent("not stored"))

	got, err := s.Get("restored")
	require.NoError(t, err)
	assert.Len(t, got.Turns(), 2)
	assert.Equal(t, "c1", got.Metadata["chat"])
}

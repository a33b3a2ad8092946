package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/turnmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.MemoryStore = (*InMemoryStore)(nil)

func TestInMemoryStore_GetAndPut(t *testing.T) {
	svc := NewInMemoryStore()
	m, err := svc.Get("chat-1")
	require.NoError(t, err)
	assert.Empty(t, m)

	require.NoError(t, svc.Put("chat-1", map[string]any{"k1": "v1", "k2": 2}))
	m2, _ := svc.Get("chat-1")
	assert.Equal(t, map[string]any{"k1": "v1", "k2": 2}, m2)

	m2["k1"] = "changed"
	m3, _ := svc.Get("chat-1")
	assert.Equal(t, "v1", m3["k1"], "returned map is a copy")
}

func TestInMemoryStore_StoreSearchDelete(t *testing.T) {
	svc := NewInMemoryStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Store("chat-2", fmt.Sprintf("Summary %c", 'A'+i), map[string]any{"idx": i}))
	}

	res, err := svc.Search("chat-2", "", 10)
	require.NoError(t, err)
	require.Len(t, res, 5)
	assert.Equal(t, "Summary E", res[0].Content, "newest first")

	res2, _ := svc.Search("chat-2", "summary a", 5)
	require.Len(t, res2, 1)
	assert.Equal(t, 0, res2[0].Metadata["idx"])

	res3, _ := svc.Search("chat-2", "", 3)
	assert.Len(t, res3, 3)

	require.NoError(t, svc.Delete("chat-2", res[0].ID))
	res4, _ := svc.Search("chat-2", "", 0)
	assert.Len(t, res4, 4)

	require.NoError(t, svc.Store("chat-2", "Summary F", nil))
	res5, _ := svc.Search("chat-2", "", 1)
	assert.NotEqual(t, res[0].ID, res5[0].ID, "ids are not reused after delete")

	assert.ErrorIs(t, svc.Delete("chat-2", "does_not_exist"), core.ErrMemoryNotFound)
	assert.ErrorIs(t, svc.Delete("nope", "mem_1"), core.ErrMemoryNotFound)

	empty, err := svc.Search("other", "", 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	svc := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, svc.Put("s4", map[string]any{string(rune('A' + (i % 5))): i}))
			assert.NoError(t, svc.Store("s4", "x", nil))
			_, err := svc.Search("s4", "", 5)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	m, _ := svc.Get("s4")
	assert.Len(t, m, 5)
	all, _ := svc.Search("s4", "", 0)
	assert.Len(t, all, 25)
}

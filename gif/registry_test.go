package gif

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetOrCreate(t *testing.T) {
	t.Parallel()

	r := NewRegistry(&fakeSearcher{respond: pages(pageOf("g", 1, ""))}, &fakeMedia{}, nil, nil)

	a := r.GetOrCreate("a")
	assert.Same(t, a, r.GetOrCreate("a"))
	assert.NotSame(t, a, r.GetOrCreate("b"))
	assert.Equal(t, DefaultID, r.GetOrCreate("").ID())

	created := r.Create()
	_, err := uuid.Parse(created.ID())
	assert.NoError(t, err)

	got, ok := r.Lookup("a")
	assert.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, 4, r.Len())
	assert.Contains(t, r.IDs(), created.ID())
	assert.Subset(t, r.IDs(), []string{"a", "b", DefaultID})
}

func TestRegistrySessionsAreIndependent(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: pages(pageOf("g", 2, ""))}
	r := NewRegistry(searcher, &fakeMedia{}, nil, nil)

	a, b := r.GetOrCreate("a"), r.GetOrCreate("b")
	require.NoError(t, a.Open(width3))
	waitSettled(t, a)

	assert.Len(t, a.Snapshot().Items, 2)
	assert.Empty(t, b.Snapshot().Items)
}

func TestRegistryRemoveDrains(t *testing.T) {
	t.Parallel()

	media := &fakeMedia{block: true}
	r := NewRegistry(&fakeSearcher{respond: pages(pageOf("g", 3, ""))}, media, nil, nil)

	s := r.GetOrCreate("a")
	require.NoError(t, s.Open(width3))
	require.Eventually(t, func() bool { return media.calls.Load() == 1 }, time.Second, time.Millisecond)

	found, err := r.Remove("a")
	require.NoError(t, err)
	assert.True(t, found)

	// the outstanding request has settled and wrote nothing
	assert.False(t, s.Progress().Active)
	assert.Empty(t, s.Snapshot().Items)
	assert.True(t, s.Closed())

	_, ok := r.Lookup("a")
	assert.False(t, ok)
	assert.Zero(t, r.Len())

	found, err = r.Remove("a")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NotSame(t, s, r.GetOrCreate("a"), "a removed id gets a fresh session")
}

func TestRegistryRemoveAll(t *testing.T) {
	t.Parallel()

	media := &fakeMedia{block: true}
	r := NewRegistry(&fakeSearcher{respond: pages(pageOf("g", 3, ""))}, media, nil, nil)

	var sessions []*Session
	for _, id := range []string{"a", "b", "c"} {
		s := r.GetOrCreate(id)
		require.NoError(t, s.Open(width3))
		sessions = append(sessions, s)
	}
	require.Eventually(t, func() bool { return media.calls.Load() == 3 }, time.Second, time.Millisecond)

	require.NoError(t, r.RemoveAll())
	assert.Zero(t, r.Len())
	assert.Empty(t, r.IDs())

	for _, s := range sessions {
		assert.True(t, s.Closed())
		assert.False(t, s.Progress().Active)
		assert.Empty(t, s.Snapshot().Items)
	}
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	t.Parallel()

	r := NewRegistry(&fakeSearcher{respond: pages(&Page{})}, &fakeMedia{}, nil, nil)

	const n = 20
	got := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = r.GetOrCreate("shared")
		}()
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, r.Len())
}

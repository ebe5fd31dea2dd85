package gif

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gomediacache "github.com/dgduncan/go-media-cache"
)

const width3 = 256 // three columns, page size 15

type fakeSearcher struct {
	mu      sync.Mutex
	queries []Query

	respond func(ctx context.Context, q Query) (*Page, error)
}

func (f *fakeSearcher) Search(ctx context.Context, q Query) (*Page, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	respond := f.respond
	f.mu.Unlock()

	return respond(ctx, q)
}

func (f *fakeSearcher) got() []Query {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Query(nil), f.queries...)
}

func pages(p *Page) func(context.Context, Query) (*Page, error) {
	return func(context.Context, Query) (*Page, error) { return p, nil }
}

func blockUntilCancelled(ctx context.Context, _ Query) (*Page, error) {
	<-ctx.Done()
	return nil, gomediacache.ErrCancelled
}

type fakeMedia struct {
	calls atomic.Int32
	block bool
	err   error
}

func (f *fakeMedia) Get(ctx context.Context, url string) (*gomediacache.Blob, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, gomediacache.ErrCancelled
	}
	if f.err != nil {
		return nil, f.err
	}
	return &gomediacache.Blob{URL: url, ContentType: "image/gif", Data: []byte(url)}, nil
}

func pageOf(prefix string, n int, next string) *Page {
	p := &Page{Next: next}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s%d", prefix, i)
		p.Items = append(p.Items, Item{
			ExternalID:   id,
			ThumbnailURL: "https://media.example/" + id + ".gif",
			Description:  id,
		})
	}
	return p
}

func columnIDs(snap Snapshot) [][]string {
	cols := make([][]string, len(snap.Columns))
	for i, col := range snap.Columns {
		cols[i] = []string{}
		for _, t := range col {
			cols[i] = append(cols[i], t.Item.ExternalID)
		}
	}
	return cols
}

func newTestSession(searcher Searcher, media MediaLoader) *Session {
	c := DefaultConfig()
	c.DebounceDelay = 20 * time.Millisecond
	return NewSession("test", searcher, media, &c, nil)
}

func waitSettled(t *testing.T, s *Session) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestPointerCyclesThroughColumns(t *testing.T) {
	t.Parallel()

	s := newTestSession(&fakeSearcher{}, &fakeMedia{})
	s.mu.Lock()
	s.layoutLocked(width3)

	var pointers []int
	for i := 0; i < 7; i++ {
		s.placeLocked(Tile{})
		pointers = append(pointers, s.pointer)
	}
	s.mu.Unlock()

	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, pointers)
}

func TestSessionOpen(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: pages(pageOf("g", 7, "abc"))}
	s := newTestSession(searcher, &fakeMedia{})

	opened := 0
	s.OnOpen(func() { opened++ })

	require.NoError(t, s.Open(width3))
	waitSettled(t, s)

	assert.Equal(t, 1, opened)
	assert.Equal(t, []Query{{Limit: 15}}, searcher.got())

	snap := s.Snapshot()
	want := [][]string{
		{"g0", "g3", "g6"},
		{"g1", "g4"},
		{"g2", "g5"},
	}
	if diff := cmp.Diff(want, columnIDs(snap)); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, snap.Pointer)
	assert.Equal(t, 15, snap.Limit)
	assert.Equal(t, "abc", snap.Next)
	assert.Len(t, snap.Items, 7)
	assert.Equal(t, Progress{Loaded: 7, Total: 7}, snap.Progress)
	assert.Equal(t, "image/gif", snap.Columns[0][0].ContentType)
	assert.NoError(t, s.LastError())
}

func TestSearchBlankTextIsFeatured(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: pages(pageOf("g", 2, ""))}
	s := newTestSession(searcher, &fakeMedia{})

	require.NoError(t, s.Open(width3))
	waitSettled(t, s)
	require.NoError(t, s.Search("", width3))
	waitSettled(t, s)
	require.NoError(t, s.Search("   ", width3))
	waitSettled(t, s)
	require.NoError(t, s.Search("cats", 0))
	waitSettled(t, s)

	got := searcher.got()
	require.Len(t, got, 4)
	assert.Equal(t, got[0], got[1])
	assert.Equal(t, got[0], got[2])
	assert.Equal(t, Query{Text: "cats", Limit: 15}, got[3])

	snap := s.Snapshot()
	assert.Equal(t, "cats", snap.Query)
	assert.Len(t, snap.Items, 2, "search clears earlier results")
}

func TestSearchSupersedesOutstandingRequest(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: func(ctx context.Context, q Query) (*Page, error) {
		if q.Text == "slow" {
			return blockUntilCancelled(ctx, q)
		}
		return pageOf("fast", 3, ""), nil
	}}
	s := newTestSession(searcher, &fakeMedia{})

	var reported atomic.Int32
	s.OnError(func(error) { reported.Add(1) })

	require.NoError(t, s.Search("slow", width3))
	require.NoError(t, s.Search("fast", width3))
	waitSettled(t, s)

	snap := s.Snapshot()
	assert.Equal(t, "fast", snap.Query)
	assert.Equal(t, []Item{
		{ExternalID: "fast0", ThumbnailURL: "https://media.example/fast0.gif", Description: "fast0"},
		{ExternalID: "fast1", ThumbnailURL: "https://media.example/fast1.gif", Description: "fast1"},
		{ExternalID: "fast2", ThumbnailURL: "https://media.example/fast2.gif", Description: "fast2"},
	}, snap.Items)
	assert.NoError(t, s.LastError())
	assert.Zero(t, reported.Load())
}

func TestLoadMore(t *testing.T) {
	t.Parallel()

	scrolled := Scroll{Top: 95, ScrollHeight: 200, ClientHeight: 100}

	t.Run("requests the next page once", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		searcher := &fakeSearcher{respond: func(_ context.Context, q Query) (*Page, error) {
			if q.Pos == "abc" {
				<-release
				return pageOf("p", 2, ""), nil
			}
			return pageOf("g", 3, "abc"), nil
		}}
		s := newTestSession(searcher, &fakeMedia{})

		require.NoError(t, s.Open(width3))
		waitSettled(t, s)

		issued, err := s.LoadMore(Scroll{Top: 50, ScrollHeight: 200, ClientHeight: 100})
		require.NoError(t, err)
		assert.False(t, issued, "below the threshold")

		issued, err = s.LoadMore(scrolled)
		require.NoError(t, err)
		assert.True(t, issued)

		issued, err = s.LoadMore(scrolled)
		require.NoError(t, err)
		assert.False(t, issued, "request already in flight")

		close(release)
		waitSettled(t, s)

		got := searcher.got()
		require.Len(t, got, 2)
		assert.Equal(t, Query{Pos: "abc", Limit: 15}, got[1])

		snap := s.Snapshot()
		assert.Len(t, snap.Items, 5)
		assert.Empty(t, snap.Next)
		assert.Equal(t, Progress{Loaded: 2, Total: 2}, snap.Progress)

		issued, err = s.LoadMore(scrolled)
		require.NoError(t, err)
		assert.False(t, issued, "no further pages")
		assert.Len(t, searcher.got(), 2)
	})

	t.Run("keeps the query", func(t *testing.T) {
		t.Parallel()

		searcher := &fakeSearcher{respond: pages(pageOf("g", 1, "abc"))}
		s := newTestSession(searcher, &fakeMedia{})

		require.NoError(t, s.Search("dogs", width3))
		waitSettled(t, s)

		issued, err := s.LoadMore(scrolled)
		require.NoError(t, err)
		require.True(t, issued)
		waitSettled(t, s)

		assert.Equal(t, Query{Text: "dogs", Pos: "abc", Limit: 15}, searcher.got()[1])
	})

	t.Run("no cursor issues nothing", func(t *testing.T) {
		t.Parallel()

		searcher := &fakeSearcher{respond: pages(pageOf("g", 3, ""))}
		s := newTestSession(searcher, &fakeMedia{})

		issued, err := s.LoadMore(scrolled)
		require.NoError(t, err)
		assert.False(t, issued)

		require.NoError(t, s.Open(width3))
		waitSettled(t, s)

		issued, err = s.LoadMore(scrolled)
		require.NoError(t, err)
		assert.False(t, issued)
		assert.Len(t, searcher.got(), 1)
	})
}

func TestCancelAllIsSilent(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: blockUntilCancelled}
	s := newTestSession(searcher, &fakeMedia{})

	var reported atomic.Int32
	s.OnError(func(error) { reported.Add(1) })

	require.NoError(t, s.Open(width3))
	require.Eventually(t, func() bool { return len(searcher.got()) == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.Progress().Active)

	s.CancelAll()

	assert.NoError(t, s.LastError())
	assert.Zero(t, reported.Load())
	assert.False(t, s.Progress().Active)
	assert.Empty(t, s.Snapshot().Items)
}

func TestRequestFailureIsReported(t *testing.T) {
	t.Parallel()

	t.Run("search failure", func(t *testing.T) {
		t.Parallel()

		searcher := &fakeSearcher{respond: func(context.Context, Query) (*Page, error) {
			return nil, &APIError{Message: "API key not valid"}
		}}
		s := newTestSession(searcher, &fakeMedia{})

		reported := make(chan error, 1)
		s.OnError(func(err error) { reported <- err })

		require.NoError(t, s.Open(width3))
		waitSettled(t, s)

		var ae *APIError
		require.ErrorAs(t, s.LastError(), &ae)
		require.ErrorAs(t, <-reported, &ae)
		assert.Equal(t, "gif search failed: API key not valid", s.Snapshot().LastError)
		assert.False(t, s.Progress().Active)

		// recoverable: the next request clears the error
		searcher.mu.Lock()
		searcher.respond = pages(pageOf("g", 1, ""))
		searcher.mu.Unlock()

		require.NoError(t, s.Search("again", width3))
		waitSettled(t, s)
		assert.NoError(t, s.LastError())
	})

	t.Run("thumbnail failure stops the page", func(t *testing.T) {
		t.Parallel()

		fetchErr := &gomediacache.FetchError{URL: "u", Attempts: 4, StatusCode: 404}
		searcher := &fakeSearcher{respond: pages(pageOf("g", 3, ""))}
		media := &fakeMedia{err: fetchErr}
		s := newTestSession(searcher, media)

		require.NoError(t, s.Open(width3))
		waitSettled(t, s)

		assert.ErrorIs(t, s.LastError(), fetchErr)
		assert.Equal(t, int32(1), media.calls.Load())
		assert.Equal(t, Progress{Total: 3}, s.Progress())
	})
}

func TestCloseDrainsAndRejects(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: pages(pageOf("g", 3, "abc"))}
	media := &fakeMedia{block: true}
	s := newTestSession(searcher, media)

	require.NoError(t, s.Open(width3))
	require.Eventually(t, func() bool { return media.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	snap := s.Snapshot()
	assert.True(t, snap.Closed)
	assert.Empty(t, snap.Items)
	assert.False(t, snap.Progress.Active)

	assert.ErrorIs(t, s.Open(width3), ErrSessionClosed)
	assert.ErrorIs(t, s.Search("x", width3), ErrSessionClosed)
	assert.ErrorIs(t, s.Input("x", width3), ErrSessionClosed)
	assert.ErrorIs(t, s.Resize(width3), ErrSessionClosed)
	assert.ErrorIs(t, s.Relayout(width3), ErrSessionClosed)
	_, err := s.LoadMore(Scroll{Top: 100, ScrollHeight: 100})
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Select("g0")
	assert.ErrorIs(t, err, ErrSessionClosed)

	assert.Len(t, searcher.got(), 1)
	assert.Empty(t, s.Snapshot().Items)
}

func TestInputIsDebounced(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: pages(pageOf("g", 1, ""))}
	s := newTestSession(searcher, &fakeMedia{})

	for _, text := range []string{"c", "ca", "cat", "cats", "cats!"} {
		require.NoError(t, s.Input(text, width3))
	}

	require.Eventually(t, func() bool { return len(searcher.got()) == 1 }, time.Second, time.Millisecond)
	waitSettled(t, s)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []Query{{Text: "cats!", Limit: 15}}, searcher.got())
}

func TestRelayout(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: pages(pageOf("g", 6, ""))}
	s := newTestSession(searcher, &fakeMedia{})

	require.NoError(t, s.Open(width3))
	waitSettled(t, s)

	require.NoError(t, s.Relayout(800))
	snap := s.Snapshot()
	want := [][]string{{"g0", "g5"}, {"g1"}, {"g2"}, {"g3"}, {"g4"}}
	if diff := cmp.Diff(want, columnIDs(snap)); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 25, snap.Limit)

	require.NoError(t, s.Resize(130))
	require.Eventually(t, func() bool { return len(s.Snapshot().Columns) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, [][]string{{"g0", "g2", "g4"}, {"g1", "g3", "g5"}}, columnIDs(s.Snapshot()))
	assert.Len(t, searcher.got(), 1, "relayout does not refetch")
}

func TestSelect(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: pages(pageOf("g", 2, ""))}
	s := newTestSession(searcher, &fakeMedia{})

	require.NoError(t, s.Open(width3))
	waitSettled(t, s)

	_, ok := s.Selected()
	assert.False(t, ok)

	_, err := s.Select("missing")
	assert.ErrorIs(t, err, ErrItemNotFound)

	item, err := s.Select("g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", item.ExternalID)

	got, ok := s.Selected()
	assert.True(t, ok)
	assert.Equal(t, item, got)
	assert.Equal(t, &item, s.Snapshot().Selected)

	s.ClearSelection()
	_, ok = s.Selected()
	assert.False(t, ok)
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{respond: blockUntilCancelled}
	s := newTestSession(searcher, &fakeMedia{})
	defer s.Close()

	require.NoError(t, s.Wait(context.Background()), "nothing outstanding")
	require.NoError(t, s.Open(width3))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(s.Wait(ctx), context.DeadlineExceeded))
}

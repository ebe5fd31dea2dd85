package gif

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/debounce"
)

// Tile is an item placed in a column together with its resolved thumbnail.
type Tile struct {
	Item        Item   `json:"item"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Progress counts the thumbnails resolved by the current request. It is reset at
// the start of every request and Active is cleared once the request settles.
type Progress struct {
	Loaded int  `json:"loaded"`
	Total  int  `json:"total"`
	Active bool `json:"active"`
}

// Snapshot is a copy of the visible state of a Session.
type Snapshot struct {
	ID        string   `json:"id"`
	Query     string   `json:"query"`
	Next      string   `json:"next"`
	Columns   [][]Tile `json:"columns"`
	Pointer   int      `json:"pointer"`
	Limit     int      `json:"limit"`
	Items     []Item   `json:"items"`
	Progress  Progress `json:"progress"`
	Selected  *Item    `json:"selected,omitempty"`
	LastError string   `json:"last_error,omitempty"`
	Closed    bool     `json:"closed"`
}

type searchInput struct {
	text  string
	width int
}

// Session is one GIF picker. At most one page request is outstanding at a time;
// starting a new search cancels the previous one and waits for it to drain, so a
// superseded request never writes into the session.
type Session struct {
	id       string
	searcher Searcher
	media    MediaLoader
	logger   *slog.Logger

	c Config

	// op serializes operations that replace the outstanding request.
	op sync.Mutex

	mu       sync.Mutex
	closed   bool
	width    int
	cols     int
	limit    int
	pointer  int
	query    string
	next     string
	tiles    []Tile
	columns  [][]Tile
	triggers []gomediacache.TriggerFunc
	last     chan struct{}
	progress Progress
	lastErr  error
	selected *Item
	onError  func(error)
	onOpen   func()

	input  *debounce.Debouncer[searchInput]
	resize *debounce.Debouncer[int]
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Open lays out the columns for width and requests featured results, discarding
// whatever the session showed before.
func (s *Session) Open(width int) error {
	s.op.Lock()
	defer s.op.Unlock()

	if s.isClosed() {
		return ErrSessionClosed
	}
	s.drain()

	s.mu.Lock()
	onOpen := s.onOpen
	s.mu.Unlock()
	if onOpen != nil {
		onOpen()
	}

	return s.restart("", width)
}

// Search cancels the outstanding request, clears the results and requests the
// first page for text. Whitespace-only text requests featured results. A width of
// zero keeps the current layout width.
func (s *Session) Search(text string, width int) error {
	s.op.Lock()
	defer s.op.Unlock()

	if s.isClosed() {
		return ErrSessionClosed
	}
	s.drain()

	if strings.TrimSpace(text) == "" {
		text = ""
	}
	return s.restart(text, width)
}

func (s *Session) restart(text string, width int) error {
	s.mu.Lock()
	s.query = text
	s.next = ""
	s.tiles = nil
	s.selected = nil
	s.layoutLocked(width)
	q := Query{Text: text, Limit: s.limit}
	s.mu.Unlock()

	return s.start(q)
}

// Input is the debounced form of Search, used for keystrokes.
func (s *Session) Input(text string, width int) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.input.Call(searchInput{text: text, width: width})
	return nil
}

// Resize is the debounced form of Relayout.
func (s *Session) Resize(width int) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.resize.Call(width)
	return nil
}

// Relayout recomputes the columns for width and places the loaded items again,
// without a new request.
func (s *Session) Relayout(width int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.layoutLocked(width)
	return nil
}

// LoadMore requests the next page when scroll has reached the threshold, a next
// page exists and no request is outstanding. It reports whether it did.
func (s *Session) LoadMore(scroll Scroll) (bool, error) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrSessionClosed
	}
	if s.next == "" || s.progress.Active || !scroll.Reached(s.c.ScrollThreshold) {
		s.mu.Unlock()
		return false, nil
	}
	q := Query{Text: s.query, Pos: s.next, Limit: s.limit}
	s.mu.Unlock()

	if err := s.start(q); err != nil {
		return false, err
	}
	return true, nil
}

// CancelAll triggers every outstanding token and returns once the outstanding
// request has drained.
func (s *Session) CancelAll() {
	s.op.Lock()
	defer s.op.Unlock()

	s.drain()
}

// Wait blocks until the outstanding request settles or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last == nil {
		return nil
	}

	select {
	case <-last:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels pending input, drains the outstanding request and marks the
// session closed. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.input.Stop()
	s.resize.Stop()

	s.op.Lock()
	defer s.op.Unlock()

	s.drain()
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.isClosed()
}

// Select marks a loaded item as the chosen one.
func (s *Session) Select(externalID string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Item{}, ErrSessionClosed
	}

	for _, t := range s.tiles {
		if t.Item.ExternalID == externalID {
			item := t.Item
			s.selected = &item
			return item, nil
		}
	}
	return Item{}, ErrItemNotFound
}

// Selected returns the chosen item, if any.
func (s *Session) Selected() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return Item{}, false
	}
	return *s.selected, true
}

// ClearSelection drops the chosen item.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = nil
}

// OnError registers fn to receive request failures. Cancellations are not reported.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onError = fn
}

// OnOpen registers fn to run every time the session is opened.
func (s *Session) OnOpen(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onOpen = fn
}

// LastError returns the failure of the most recent request, or nil.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// Progress returns the progress of the most recent request.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progress
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:       s.id,
		Query:    s.query,
		Next:     s.next,
		Pointer:  s.pointer,
		Limit:    s.limit,
		Progress: s.progress,
		Closed:   s.closed,
		Columns:  make([][]Tile, len(s.columns)),
		Items:    make([]Item, 0, len(s.tiles)),
	}
	for i, col := range s.columns {
		snap.Columns[i] = append([]Tile{}, col...)
	}
	for _, t := range s.tiles {
		snap.Items = append(snap.Items, t.Item)
	}
	if s.selected != nil {
		item := *s.selected
		snap.Selected = &item
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// layoutLocked sets the column count for width and places every loaded tile again
// starting from the first column.
func (s *Session) layoutLocked(width int) {
	if width > 0 {
		s.width = width
	}

	s.cols = s.c.Breakpoints.Columns(s.width)
	s.limit = s.cols * s.c.PageFactor
	s.pointer = -1
	s.columns = make([][]Tile, s.cols)
	for _, t := range s.tiles {
		s.placeLocked(t)
	}
}

// placeLocked advances the pointer circularly and appends t to that column.
func (s *Session) placeLocked(t Tile) {
	if s.pointer == -1 || s.pointer >= s.cols-1 {
		s.pointer = 0
	} else {
		s.pointer++
	}
	s.columns[s.pointer] = append(s.columns[s.pointer], t)
}

// drain triggers every outstanding token and waits for the outstanding request.
// Callers hold s.op.
func (s *Session) drain() {
	s.mu.Lock()
	triggers := s.triggers
	s.triggers = nil
	last := s.last
	s.mu.Unlock()

	for _, trigger := range triggers {
		trigger()
	}

	if last != nil {
		<-last
	}
}

// start issues q on a new goroutine. Callers hold s.op and have drained any
// earlier request.
func (s *Session) start(q Query) error {
	token, trigger := gomediacache.NewToken(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		trigger()
		return ErrSessionClosed
	}
	s.triggers = append(s.triggers, trigger)
	s.last = done
	s.progress = Progress{Active: true}
	s.lastErr = nil
	s.mu.Unlock()

	go s.run(token, q, done)
	return nil
}

func (s *Session) run(token *gomediacache.Token, q Query, done chan struct{}) {
	defer close(done)
	defer s.settle()

	ctx := token.Context()

	page, err := s.searcher.Search(ctx, q)
	if err != nil {
		s.fail(ctx, token, err)
		return
	}

	s.mu.Lock()
	if token.Cancelled() {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "search cancelled", "session", s.id)
		return
	}
	s.next = page.Next
	s.progress.Total = len(page.Items)
	s.mu.Unlock()

	for _, item := range page.Items {
		blob, err := s.media.Get(ctx, item.ThumbnailURL)
		if err != nil {
			s.fail(ctx, token, err)
			return
		}

		s.mu.Lock()
		if token.Cancelled() {
			s.mu.Unlock()
			s.logger.WarnContext(ctx, "search cancelled", "session", s.id)
			return
		}
		t := Tile{Item: item, ContentType: blob.ContentType, Size: len(blob.Data)}
		s.tiles = append(s.tiles, t)
		s.placeLocked(t)
		s.progress.Loaded++
		s.mu.Unlock()
	}

	s.logger.DebugContext(ctx, "page loaded",
		"session", s.id,
		"query", q.Text,
		"pos", q.Pos,
		"items", len(page.Items),
		"next", page.Next)
}

func (s *Session) fail(ctx context.Context, token *gomediacache.Token, err error) {
	if token.Cancelled() || gomediacache.IsCancelled(err) {
		s.logger.WarnContext(ctx, "search cancelled", "session", s.id)
		return
	}

	s.mu.Lock()
	s.lastErr = err
	onError := s.onError
	s.mu.Unlock()

	s.logger.ErrorContext(ctx, "search failed", "session", s.id, "error", err)
	if onError != nil {
		onError(err)
	}
}

func (s *Session) settle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress.Active = false
}

// NewSession creates a Session. Nothing is requested until Open or Search.
//
// If opts is nil, DefaultConfig is used. If the 'logger' is nil, a no-op logger
// writing to io.Discard will be used.
func NewSession(id string, searcher Searcher, media MediaLoader, opts *Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := Config{}
	if opts != nil {
		c = *opts
	}
	c = c.withDefaults()

	s := &Session{
		id:       id,
		searcher: searcher,
		media:    media,
		logger:   logger,
		c:        c,
		pointer:  -1,
	}
	s.layoutLocked(0)

	s.input = debounce.New(c.DebounceDelay, func(in searchInput) {
		if err := s.Search(in.text, in.width); err != nil && !errors.Is(err, ErrSessionClosed) {
			s.logger.Warn("debounced search failed", "error", err)
		}
	})
	s.resize = debounce.New(c.DebounceDelay, func(width int) {
		_ = s.Relayout(width)
	})

	return s
}

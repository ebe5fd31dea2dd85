package gif

import (
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultID is the id of the picker attached to the main comment form.
const DefaultID = "default"

// Registry owns the sessions of one process by id. Sessions are only reached
// through the registry, and removing one drains it before it is dropped.
type Registry struct {
	searcher Searcher
	media    MediaLoader
	logger   *slog.Logger

	c Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// GetOrCreate returns the open session registered under id, creating it if there
// is none. An empty id means DefaultID.
func (r *Registry) GetOrCreate(id string) *Session {
	if id == "" {
		id = DefaultID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok && !s.Closed() {
		return s
	}

	s := NewSession(id, r.searcher, r.media, &r.c, r.logger)
	r.sessions[id] = s
	r.logger.Debug("session created", "session", id)
	return s
}

// Create registers a session under a new random id.
func (r *Registry) Create() *Session {
	return r.GetOrCreate(uuid.NewString())
}

// Lookup returns the open session registered under id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.Closed() {
		return nil, false
	}
	return s, true
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Remove closes the session registered under id, waiting for its outstanding
// request to drain, then drops it. It reports whether a session was found.
func (r *Registry) Remove(id string) (bool, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()

	if !ok {
		return false, nil
	}

	err := s.Close()
	r.drop(id, s)
	r.logger.Debug("session removed", "session", id)
	return true, err
}

// RemoveAll closes every session in parallel and drops them once all have drained.
func (r *Registry) RemoveAll() error {
	r.mu.Lock()
	sessions := make(map[string]*Session, len(r.sessions))
	for id, s := range r.sessions {
		sessions[id] = s
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(s.Close)
	}
	err := g.Wait()

	for id, s := range sessions {
		r.drop(id, s)
	}
	r.logger.Debug("sessions removed", "count", len(sessions))
	return err
}

// drop deletes id unless it has been replaced by a newer session meanwhile.
func (r *Registry) drop(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
}

// NewRegistry creates an empty Registry whose sessions search through searcher
// and resolve thumbnails through media.
//
// If opts is nil, DefaultConfig is used. If the 'logger' is nil, a no-op logger
// writing to io.Discard will be used.
func NewRegistry(searcher Searcher, media MediaLoader, opts *Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := DefaultConfig()
	if opts != nil {
		c = opts.withDefaults()
	}

	return &Registry{
		searcher: searcher,
		media:    media,
		logger:   logger,
		c:        c,
		sessions: make(map[string]*Session),
	}
}

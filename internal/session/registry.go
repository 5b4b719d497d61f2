package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/observability/metrics"
)

var (
	// ErrSessionAlreadyActive is returned when a call is started while
	// another is still active.
	ErrSessionAlreadyActive = errors.New("session: a call is already active")
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session: not found")
)

// Factory builds an unstarted session for id.
type Factory func(id string) (*Session, error)

// Info is a read-only view of a registered session.
type Info struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"startedAt"`
}

// Registry tracks sessions by id and allows one active call at a time.
// It is owned by the serving layer and passed to handlers explicitly.
type Registry struct {
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		log:      logging.WithComponent("session.registry"),
		metrics:  metrics.DefaultMetrics,
		sessions: make(map[string]*Session),
	}
}

// Start creates and starts a session. The slot is reserved before the
// session starts, so concurrent callers cannot both succeed.
func (r *Registry) Start(ctx context.Context, id string, factory Factory) (*Session, error) {
	r.mu.Lock()
	if len(r.sessions) > 0 {
		var active string
		for k := range r.sessions {
			active = k
		}
		r.mu.Unlock()
		r.metrics.RecordSessionRejected()
		r.log.Warn().Str("sessionId", id).Str("activeSessionId", active).Msg("Rejecting call, another session is active")
		return nil, ErrSessionAlreadyActive
	}

	s, err := factory(id)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.sessions[id] = s
	r.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		r.remove(id, s)
		return nil, err
	}

	go func() {
		<-s.Done()
		r.remove(id, s)
		if err := s.Err(); err != nil {
			r.log.Warn().Err(err).Str("sessionId", id).Msg("Session ended with error")
		}
	}()
	return s, nil
}

func (r *Registry) remove(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Stop stops the session and waits for its cleanup. Stopping an unknown or
// already stopped id returns ErrSessionNotFound and has no effect.
func (r *Registry) Stop(id string) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.Stop()
	r.remove(id, s)
	return nil
}

// StopAll stops every session; used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()

	r.mu.Lock()
	for _, s := range all {
		if r.sessions[s.ID()] == s {
			delete(r.sessions, s.ID())
		}
	}
	r.mu.Unlock()
}

// List returns the registered sessions ordered by id.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, Info{ID: id, State: s.State().String(), StartedAt: s.StartedAt()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns the number of registered sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

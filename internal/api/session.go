package api

import (
	"errors"
	"sync"
	"time"

	"github.com/kbforge/ingest/internal/request"
	"github.com/kbforge/ingest/internal/review"
)

var (
	errSessionNotFound = errors.New("review session not found")
	errSessionBusy     = errors.New("review session has a submit in flight")
	errTooManySessions = errors.New("too many open review sessions")
)

// session is one open link review. The form captures the user's crawl inputs
// so the final request can be built at proceed time; busy guards against a
// double submit.
type session struct {
	id          string
	coordinator *review.Coordinator
	form        request.Form
	busy        bool
	createdAt   time.Time
}

// sessionRegistry tracks open review sessions by ID.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
	max      int
}

func newSessionRegistry(maxSessions int) *sessionRegistry {
	if maxSessions <= 0 {
		maxSessions = 256
	}
	return &sessionRegistry{
		sessions: make(map[string]*session),
		max:      maxSessions,
	}
}

func (r *sessionRegistry) add(s *session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) >= r.max {
		return errTooManySessions
	}
	r.sessions[s.id] = s
	return nil
}

func (r *sessionRegistry) get(id string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	return s, nil
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// beginSubmit marks the session busy and returns a snapshot of its form. It
// fails when a submit is already in flight so a double-clicked proceed cannot
// produce two crawls. The form is copied under the registry lock; session
// form fields are only ever read or written while holding it.
func (r *sessionRegistry) beginSubmit(id string) (*session, request.Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, request.Form{}, errSessionNotFound
	}
	if s.busy {
		return nil, request.Form{}, errSessionBusy
	}
	s.busy = true
	return s, s.form, nil
}

// setPatterns records a successfully applied filter string on the session.
func (r *sessionRegistry) setPatterns(id, patterns string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.form.Patterns = patterns
		s.form.PatternEdited = true
	}
}

func (r *sessionRegistry) endSubmit(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.busy = false
	}
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

package game

import (
	"math/rand"
	"sync"
	"time"
)

// Registry owns every live session, keyed by room code. Rooms are fully
// independent: each session runs its own event loop and shares nothing with
// its neighbors.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	deps      Deps
	newSupply func() ScenarioSupply
	grace     time.Duration

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewRegistry builds a registry. newSupply is called once per session so
// each show gets its own shuffled deck state.
func NewRegistry(deps Deps, newSupply func() ScenarioSupply, grace time.Duration) *Registry {
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	r := &Registry{
		sessions:  make(map[string]*Session),
		deps:      deps,
		newSupply: newSupply,
		grace:     grace,
		quit:      make(chan struct{}),
	}
	r.wg.Add(1)
	go r.janitor()
	return r
}

// Create allocates a room, starts its session loop and returns it.
func (r *Registry) Create(cfg SessionConfig) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := randomCode(5)
	for r.sessions[code] != nil {
		code = randomCode(5)
	}
	deps := r.deps
	deps.Supply = r.newSupply()
	deps.Logger = deps.Logger.With().Str("room", code).Logger()
	s := NewSession(code, cfg, deps)
	r.sessions[code] = s
	s.Start()
	deps.Metrics.AddSessionStarted(string(s.Mode))
	return s
}

func (r *Registry) Get(code string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.sessions[code]
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Teardown stops and removes a session; a no-op for unknown codes.
func (r *Registry) Teardown(code string) {
	r.mu.Lock()
	s := r.sessions[code]
	delete(r.sessions, code)
	r.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// Close stops the janitor and every live session.
func (r *Registry) Close() {
	close(r.quit)
	r.wg.Wait()
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

// janitor removes sessions that reached Done more than a grace period ago.
func (r *Registry) janitor() {
	defer r.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now())
		case <-r.quit:
			return
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var expired []*Session
	for code, s := range r.sessions {
		if doneAt := s.DoneSince(); !doneAt.IsZero() && now.Sub(doneAt) > r.grace {
			delete(r.sessions, code)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()
	for _, s := range expired {
		s.Stop()
	}
}

func randomCode(n int) string {
	letters := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

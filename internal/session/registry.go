package session

import (
	"context"
	"sync"
	"time"

	"github.com/Conceptual-Machines/melodia-api/internal/logger"
	"github.com/google/uuid"
)

// DefaultIdleTimeout is how long an untouched session is kept
const DefaultIdleTimeout = 2 * time.Hour

// Registry maps session ids to controllers, in memory only
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Controller
	newSession  func() *Controller
	idleTimeout time.Duration
}

// NewRegistry creates a registry building sessions with newSession
func NewRegistry(newSession func() *Controller, idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		sessions:    map[string]*Controller{},
		newSession:  newSession,
		idleTimeout: idleTimeout,
	}
}

// Get returns the session for id
func (r *Registry) Get(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[id]
	return c, ok
}

// Acquire returns the session for id, creating a new one under a fresh id
// when id is empty or unknown.
func (r *Registry) Acquire(id string) (string, *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.sessions[id]; ok && id != "" {
		return id, c
	}

	id = uuid.New().String()
	c := r.newSession()
	r.sessions[id] = c
	logger.Debug("Session created", logger.Fields{"session_id": id})
	return id, c
}

// Remove closes and forgets a session
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle since before now minus the idle timeout
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idleTimeout)

	r.mu.Lock()
	var expired []*Controller
	for id, c := range r.sessions {
		if c.LastUsed().Before(cutoff) {
			expired = append(expired, c)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}
	if len(expired) > 0 {
		logger.Info("Expired idle sessions", logger.Fields{"count": len(expired)})
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Close closes every session
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[string]*Controller{}
	r.mu.Unlock()
	for _, c := range sessions {
		c.Close()
	}
}

package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/squadron-project/squadron/internal/feed"
	"github.com/squadron-project/squadron/internal/store"
)

// Snapshot is a point-in-time view of one session for listings.
type Snapshot struct {
	ServerID  string `json:"server_id"`
	Addr      string `json:"addr"`
	State     State  `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

// Registry maps server IDs to their session managers. One session per
// server, created explicitly and disposed explicitly; there are no
// ambient singletons.
type Registry struct {
	store store.Store
	hub   *feed.Hub

	mu       sync.RWMutex
	sessions map[string]*Manager
	cancels  map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// NewRegistry creates an empty session registry.
func NewRegistry(st store.Store, hub *feed.Hub) *Registry {
	return &Registry{
		store:    st,
		hub:      hub,
		sessions: make(map[string]*Manager),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Add creates and starts a session for cfg.ServerID. Adding an ID that
// already has a session replaces it (the old one is disposed first).
func (r *Registry) Add(ctx context.Context, cfg Config) *Manager {
	r.Remove(cfg.ServerID)

	mgr := NewManager(cfg, r.store, r.hub)
	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.sessions[cfg.ServerID] = mgr
	r.cancels[cfg.ServerID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		mgr.Run(runCtx)
	}()

	log.Info().Str("server_id", cfg.ServerID).Str("addr", cfg.Addr).Msg("session registered")
	return mgr
}

// Get returns the session manager for a server, if one exists.
func (r *Registry) Get(serverID string) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mgr, ok := r.sessions[serverID]
	return mgr, ok
}

// Remove stops and unregisters a server's session.
func (r *Registry) Remove(serverID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[serverID]
	delete(r.sessions, serverID)
	delete(r.cancels, serverID)
	r.mu.Unlock()

	if ok {
		cancel()
		log.Info().Str("server_id", serverID).Msg("session removed")
	}
}

// List returns a snapshot of every registered session.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.sessions))
	for _, mgr := range r.sessions {
		snap := Snapshot{
			ServerID: mgr.ServerID(),
			Addr:     mgr.Addr(),
			State:    mgr.State(),
		}
		if err := mgr.LastError(); err != nil {
			snap.LastError = err.Error()
		}
		out = append(out, snap)
	}
	return out
}

// Shutdown stops every session and waits for their goroutines.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for id, cancel := range r.cancels {
		cancel()
		delete(r.cancels, id)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	r.wg.Wait()
	log.Info().Msg("all sessions stopped")
}

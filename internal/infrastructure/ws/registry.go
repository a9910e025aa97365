package ws

import (
	"sync"

	"bpm-agent/internal/application/port/input"
)

// runtime couples one live session's orchestrator with its channel.
type runtime struct {
	orch input.Orchestrator
	ch   *Channel
}

// Registry tracks live session channels. Owned by the transport: the
// handler registers a runtime on connect and removes it on teardown; the
// upload path and the REST surface look sessions up here.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*runtime
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*runtime)}
}

func (r *Registry) put(sessionID string, rt *runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = rt
}

// remove drops the runtime only if it is still the registered one, so a
// reconnect racing a stale teardown keeps its fresh entry.
func (r *Registry) remove(sessionID string, rt *runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[sessionID] == rt {
		delete(r.sessions, sessionID)
	}
}

// Orchestrator returns the live session's orchestrator, if connected.
func (r *Registry) Orchestrator(sessionID string) (input.Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return rt.orch, true
}

// Disconnect closes the session's channel, if any. The read loop unwinds
// and runs the usual teardown.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	rt, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if ok {
		rt.ch.Close()
	}
}

func (r *Registry) Connected(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sessionID]
	return ok
}

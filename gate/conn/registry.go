package conn

import (
	"sync"

	"go.uber.org/zap"
)

// Registry holds one logical connection per game-server id. Registering the
// same id again replaces the previous handle (last writer wins); the registry
// does not own connection lifecycle beyond store and remove.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*GameConn
	logger *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*GameConn),
		logger: logger,
	}
}

// Add stores a connection under serverID, replacing any previous one.
func (r *Registry) Add(serverID string, g *GameConn) {
	r.mu.Lock()
	r.conns[serverID] = g
	r.mu.Unlock()
	r.logger.Info("game server registered", zap.String("server_id", serverID))
}

// Remove deletes the connection for serverID if present.
func (r *Registry) Remove(serverID string) {
	r.mu.Lock()
	delete(r.conns, serverID)
	r.mu.Unlock()
	r.logger.Info("game server unregistered", zap.String("server_id", serverID))
}

// RemoveConn deletes the entry for serverID only while it still points at g.
// The read loop of a replaced connection outlives its successor's Add, so its
// deferred cleanup must not tear down the live connection. Reports whether an
// entry was removed.
func (r *Registry) RemoveConn(serverID string, g *GameConn) bool {
	r.mu.Lock()
	cur, ok := r.conns[serverID]
	if ok && cur == g {
		delete(r.conns, serverID)
	}
	r.mu.Unlock()

	if !ok || cur != g {
		r.logger.Debug("skipped removal of superseded game server connection",
			zap.String("server_id", serverID))
		return false
	}
	r.logger.Info("game server unregistered", zap.String("server_id", serverID))
	return true
}

// Get returns the connection for serverID, or nil if absent.
func (r *Registry) Get(serverID string) *GameConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[serverID]
}

// GetAll returns a snapshot copy of the connection map, so iteration during
// fan-out is never invalidated by a concurrent Add or Remove.
func (r *Registry) GetAll() map[string]*GameConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*GameConn, len(r.conns))
	for id, g := range r.conns {
		out[id] = g
	}
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

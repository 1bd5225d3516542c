package control

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handle identifies one live remote-control connection. Handles are opaque,
// comparable, and never persisted.
type Handle uuid.UUID

// NewHandle mints a fresh connection handle.
func NewHandle() Handle {
	return Handle(uuid.New())
}

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// Registry tracks the set of currently open, authenticated connections,
// keyed by handle. It is confined to the server's event loop goroutine and
// is therefore unsynchronized; callers needing cross-goroutine access must
// go through the server's event loop.
type Registry struct {
	conns map[Handle]*websocket.Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[Handle]*websocket.Conn)}
}

// Add records a connection under its handle. Adding an existing handle is a
// no-op.
func (r *Registry) Add(h Handle, conn *websocket.Conn) {
	if _, ok := r.conns[h]; ok {
		return
	}
	r.conns[h] = conn
}

// Remove forgets a connection. Removing an absent handle is a no-op.
func (r *Registry) Remove(h Handle) {
	delete(r.conns, h)
}

// Has reports whether a handle is registered.
func (r *Registry) Has(h Handle) bool {
	_, ok := r.conns[h]
	return ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

// CloseAll closes the transport of every registered connection. The entries
// stay registered until the per-connection read loops report close events.
func (r *Registry) CloseAll() {
	for _, conn := range r.conns {
		_ = conn.Close()
	}
}

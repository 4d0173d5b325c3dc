package runtime

import (
	"fmt"
	"slices"
	"sync"

	"groupchat/contract"
	"groupchat/errors"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

type session struct {
	conn contract.Connection
	name string
}

// Registry maps live connections to their chosen display name.
// Only registered connections are broadcast targets.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]session // map connection id -> session
	names    map[string]string  // map name -> connection id
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]session),
		names:    make(map[string]string),
	}
}

// Register claims name for conn.
// It fails with ErrNameTaken when another live connection holds the name,
// and with ErrAlreadyRegistered when conn already chose a different name:
// a connection keeps its name for its whole life. Claiming the same name
// again succeeds without change.
func (r *Registry) Register(conn contract.Connection, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[conn.ID()]; ok {
		if current.name == name {
			return nil
		}
		return fmt.Errorf("connection %s is %q: %w", conn.ID(), current.name, errors.ErrAlreadyRegistered)
	}
	if _, taken := r.names[name]; taken {
		return fmt.Errorf("%q: %w", name, errors.ErrNameTaken)
	}

	r.sessions[conn.ID()] = session{conn: conn, name: name}
	r.names[name] = conn.ID()
	return nil
}

// Unregister frees the name held by conn, if any.
func (r *Registry) Unregister(conn contract.Connection) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[conn.ID()]
	if !ok {
		return "", false
	}
	delete(r.sessions, conn.ID())
	delete(r.names, s.name)
	return s.name, true
}

func (r *Registry) LookupName(conn contract.Connection) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[conn.ID()]
	return s.name, ok
}

// ListNames returns a sorted snapshot of registered names.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	names := lo.Keys(r.names)
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Connections returns a snapshot of registered connections.
// Callers deliver outside the registry lock.
func (r *Registry) Connections() []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.sessions, func(_ string, s session) contract.Connection {
		return s.conn
	})
}

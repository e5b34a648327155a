/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package duel

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	session *Session

	// attached entries belong to a live realtime connection, which is
	// solely responsible for evicting them.
	attached bool
}

// Registry owns every live Session, keyed by session ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	idleTimeout time.Duration
	now         func() time.Time
}

// NewRegistry returns an empty registry whose sessions expire after
// idleTimeout without activity.
func NewRegistry(idleTimeout time.Duration) *Registry {
	return newRegistry(idleTimeout, time.Now)
}

func newRegistry(idleTimeout time.Duration, now func() time.Time) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	return &Registry{
		sessions:    make(map[string]*entry),
		idleTimeout: idleTimeout,
		now:         now,
	}
}

// Create allocates a session under a fresh random ID.
func (r *Registry) Create() (string, *Session) {
	s := newSession(r.idleTimeout, r.now)

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id := uuid.NewString()
		if _, exists := r.sessions[id]; exists {
			continue
		}

		r.sessions[id] = &entry{session: s, attached: true}

		return id, s
	}
}

// Get looks up a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}

	return e.session, true
}

// Remove drops the session with the given ID, if any.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
}

// ResetOf clears the session stored under id, creating an empty one if
// none exists. An existing session is reset in place so that any
// connection watching it keeps seeing the same object.
func (r *Registry) ResetOf(id string) *Session {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{session: newSession(r.idleTimeout, r.now)}
		r.sessions[id] = e
	}
	r.mu.Unlock()

	if ok {
		e.session.Reset()
	}

	return e.session
}

// Sweep removes expired sessions that are not tied to a live connection and
// returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0

	for id, e := range r.sessions {
		if e.attached {
			continue
		}

		if e.session.IsExpired(now) {
			delete(r.sessions, id)
			removed++
		}
	}

	return removed
}

// Len returns the number of sessions currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

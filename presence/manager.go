/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package presence tracks live realtime connections, caps them per origin,
// keeps each player's session alive while connected, and pushes the active
// user count to everyone.
package presence

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/Seednode/wordduel/duel"
)

const (
	DefaultMaxPerOrigin = 5
	DefaultInterval     = 5 * time.Second

	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// Messages pushed to clients.
const (
	MsgConnected      = "Connected"
	MsgSessionExpired = "Session expired. Please refresh the page."
	MsgTooMany        = "too many connections"
)

// Event is the only message type sent over the channel.
type Event struct {
	ActiveUsers int    `json:"active_users"`
	SessionID   string `json:"session_id,omitempty"`
	Message     string `json:"message"`
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	ActiveUsers   int            `json:"active_users"`
	Sessions      int            `json:"sessions"`
	IPConnections map[string]int `json:"ip_connections"`
}

// Manager owns every live connection and the per-origin quota.
type Manager struct {
	sessions     *duel.Registry
	maxPerOrigin int
	interval     time.Duration
	logf         func(format string, args ...any)
	now          func() time.Time

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*client]struct{}
	origins map[string]int
}

// Options configure a Manager. Zero values select the defaults.
type Options struct {
	MaxPerOrigin int
	Interval     time.Duration
	CheckOrigin  func(r *http.Request) bool
	Logf         func(format string, args ...any)
}

// New returns a manager that allocates sessions from sessions.
func New(sessions *duel.Registry, opts Options) *Manager {
	if opts.MaxPerOrigin <= 0 {
		opts.MaxPerOrigin = DefaultMaxPerOrigin
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.CheckOrigin == nil {
		opts.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		sessions:     sessions,
		maxPerOrigin: opts.MaxPerOrigin,
		interval:     opts.Interval,
		logf:         opts.Logf,
		now:          time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*client]struct{}),
		origins: make(map[string]int),
	}
}

// Serve upgrades the request and serves the connection until it closes,
// errors, or its session expires. It blocks for the connection's lifetime.
func (m *Manager) Serve(w http.ResponseWriter, r *http.Request, origin string) {
	if !m.reserve(origin) {
		m.refuse(w, r, origin)

		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.unreserve(origin)
		m.logf("PRESENCE: Upgrade for %s failed: %v", origin, err)

		return
	}

	id, session := m.sessions.Create()

	ctx, cancel := context.WithCancel(m.ctx)

	c := &client{
		conn:      conn,
		origin:    origin,
		sessionID: id,
		cancel:    cancel,
	}

	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	m.logf("PRESENCE: %s connected from %s", id, origin)

	defer func() {
		if p := recover(); p != nil {
			m.logf("PRESENCE: Recovered while serving %s: %v", id, p)
		}
	}()
	defer m.release(c)

	go c.readPump()

	m.keepAlive(ctx, c, session)
}

// keepAlive checks the session once per interval, starting immediately.
func (m *Manager) keepAlive(ctx context.Context, c *client, session *duel.Session) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if session.IsExpired(m.now()) {
			m.logf("PRESENCE: Session %s expired", c.sessionID)

			_ = c.send(Event{ActiveUsers: m.Count(), Message: MsgSessionExpired})

			return
		}

		err := c.send(Event{ActiveUsers: m.Count(), SessionID: c.sessionID, Message: MsgConnected})
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// release is the single teardown path for an accepted connection.
func (m *Manager) release(c *client) {
	c.once.Do(func() {
		c.cancel()

		m.mu.Lock()
		delete(m.clients, c)
		m.decrementLocked(c.origin)
		remaining := lo.Keys(m.clients)
		m.mu.Unlock()

		m.sessions.Remove(c.sessionID)

		c.close()

		m.logf("PRESENCE: %s disconnected, %d remaining", c.sessionID, len(remaining))

		m.broadcast(remaining, Event{
			ActiveUsers: len(remaining),
			Message:     fmt.Sprintf("User %s disconnected", c.sessionID),
		})
	})
}

func (m *Manager) broadcast(clients []*client, ev Event) {
	for _, c := range clients {
		if err := c.send(ev); err != nil {
			m.logf("PRESENCE: Broadcast to %s failed: %v", c.sessionID, err)
		}
	}
}

func (m *Manager) reserve(origin string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.origins[origin] >= m.maxPerOrigin {
		return false
	}

	m.origins[origin]++

	return true
}

func (m *Manager) unreserve(origin string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decrementLocked(origin)
}

func (m *Manager) decrementLocked(origin string) {
	m.origins[origin]--

	if m.origins[origin] <= 0 {
		delete(m.origins, origin)
	}
}

// refuse completes the handshake only to close it with a policy violation,
// so the client can tell a quota refusal from a network failure.
func (m *Manager) refuse(w http.ResponseWriter, r *http.Request, origin string) {
	m.logf("PRESENCE: Refused connection from %s: %s", origin, MsgTooMany)

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, MsgTooMany),
		time.Now().Add(writeWait))
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.clients)
}

// Stats returns connection and session totals plus a copy of the
// per-origin counts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		ActiveUsers:   len(m.clients),
		Sessions:      m.sessions.Len(),
		IPConnections: maps.Clone(m.origins),
	}
}

// Close ends every live connection. Each one runs its normal teardown.
func (m *Manager) Close() {
	m.cancel()
}

/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package presence

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Seednode/wordduel/duel"
)

type harness struct {
	manager  *Manager
	registry *duel.Registry
	server   *httptest.Server
	url      string
}

func newHarness(t *testing.T, idle, interval time.Duration) *harness {
	t.Helper()

	h := &harness{registry: duel.NewRegistry(idle)}
	h.manager = New(h.registry, Options{Interval: interval})

	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("X-Test-Origin")
		if origin == "" {
			origin = "203.0.113.7"
		}
		h.manager.Serve(w, r, origin)
	}))
	h.url = "ws" + strings.TrimPrefix(h.server.URL, "http")

	t.Cleanup(func() {
		h.manager.Close()
		h.server.Close()
	})

	return h
}

func (h *harness) dial(t *testing.T, origin string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if origin != "" {
		header.Set("X-Test-Origin", origin)
	}

	conn, _, err := websocket.DefaultDialer.Dial(h.url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}

	return ev
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectAssignsSession(t *testing.T) {
	h := newHarness(t, time.Minute, time.Hour)
	conn := h.dial(t, "")

	ev := readEvent(t, conn)
	if ev.Message != MsgConnected {
		t.Errorf("message = %q, want %q", ev.Message, MsgConnected)
	}
	if ev.ActiveUsers != 1 {
		t.Errorf("active users = %d, want 1", ev.ActiveUsers)
	}
	if _, ok := h.registry.Get(ev.SessionID); !ok {
		t.Errorf("session %q not registered", ev.SessionID)
	}
}

func TestOriginQuota(t *testing.T) {
	h := newHarness(t, time.Minute, time.Hour)

	for range DefaultMaxPerOrigin {
		readEvent(t, h.dial(t, "198.51.100.1"))
	}

	refused := h.dial(t, "198.51.100.1")
	_ = refused.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, _, err := refused.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("sixth connection error = %v, want policy violation close", err)
	}

	stats := h.manager.Stats()
	if stats.ActiveUsers != DefaultMaxPerOrigin {
		t.Errorf("active users = %d, want %d", stats.ActiveUsers, DefaultMaxPerOrigin)
	}
	if stats.IPConnections["198.51.100.1"] != DefaultMaxPerOrigin {
		t.Errorf("origin count = %d, want %d", stats.IPConnections["198.51.100.1"], DefaultMaxPerOrigin)
	}

	other := h.dial(t, "198.51.100.2")
	if ev := readEvent(t, other); ev.Message != MsgConnected {
		t.Errorf("other origin message = %q, want %q", ev.Message, MsgConnected)
	}
}

func TestDisconnectCleansUpAndBroadcasts(t *testing.T) {
	h := newHarness(t, time.Minute, time.Hour)

	stay := h.dial(t, "192.0.2.1")
	readEvent(t, stay)

	leave := h.dial(t, "192.0.2.2")
	leaving := readEvent(t, leave)

	_ = leave.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = leave.Close()

	var ev Event
	for {
		ev = readEvent(t, stay)
		if strings.Contains(ev.Message, "disconnected") {
			break
		}
	}

	if ev.ActiveUsers != 1 {
		t.Errorf("active users after disconnect = %d, want 1", ev.ActiveUsers)
	}
	if !strings.Contains(ev.Message, leaving.SessionID) {
		t.Errorf("message = %q, want it to name %s", ev.Message, leaving.SessionID)
	}

	waitFor(t, "origin cleanup", func() bool {
		_, ok := h.manager.Stats().IPConnections["192.0.2.2"]
		return !ok
	})

	if _, ok := h.registry.Get(leaving.SessionID); ok {
		t.Error("session survived its connection")
	}
}

func TestIdleSessionExpires(t *testing.T) {
	h := newHarness(t, 60*time.Millisecond, 20*time.Millisecond)
	conn := h.dial(t, "")

	first := readEvent(t, conn)
	if first.Message != MsgConnected {
		t.Fatalf("first message = %q", first.Message)
	}

	var ev Event
	for {
		ev = readEvent(t, conn)
		if ev.Message != MsgConnected {
			break
		}
	}

	if ev.Message != MsgSessionExpired {
		t.Fatalf("message = %q, want %q", ev.Message, MsgSessionExpired)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after expiry")
	}

	waitFor(t, "eviction", func() bool { return h.registry.Len() == 0 && h.manager.Count() == 0 })

	if len(h.manager.Stats().IPConnections) != 0 {
		t.Error("origin entry left behind after expiry")
	}
}

func TestActivityKeepsSessionAlive(t *testing.T) {
	h := newHarness(t, 80*time.Millisecond, 10*time.Millisecond)
	conn := h.dial(t, "")

	id := readEvent(t, conn).SessionID
	session, ok := h.registry.Get(id)
	if !ok {
		t.Fatal("session missing")
	}

	stop := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(stop) {
		session.History()
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := h.registry.Get(id); !ok {
		t.Fatal("active session was evicted")
	}
}

func TestCloseTearsDownAll(t *testing.T) {
	h := newHarness(t, time.Minute, time.Hour)

	for range 3 {
		readEvent(t, h.dial(t, ""))
	}

	h.manager.Close()

	waitFor(t, "teardown", func() bool { return h.manager.Count() == 0 && h.registry.Len() == 0 })
}

func TestPanicWhileServingReleasesOnce(t *testing.T) {
	h := newHarness(t, time.Minute, time.Hour)

	var (
		mu     sync.Mutex
		logged []string
	)
	h.manager.logf = func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		logged = append(logged, fmt.Sprintf(format, args...))
	}

	var boom atomic.Bool
	h.manager.now = func() time.Time {
		if boom.CompareAndSwap(true, false) {
			panic("clock failure")
		}
		return time.Now()
	}

	survivor := h.dial(t, "198.51.100.1")
	readEvent(t, survivor)

	boom.Store(true)
	victim := h.dial(t, "198.51.100.2")

	ev := readEvent(t, survivor)
	if !strings.HasPrefix(ev.Message, "User ") || ev.ActiveUsers != 1 {
		t.Errorf("survivor got %+v, want a disconnect notice with 1 active user", ev)
	}

	_ = victim.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := victim.ReadMessage(); err == nil {
		t.Error("panicking connection was not closed")
	}

	stats := h.manager.Stats()
	if stats.ActiveUsers != 1 || stats.Sessions != 1 {
		t.Errorf("stats = %+v, want 1 user and 1 session", stats)
	}
	if _, ok := stats.IPConnections["198.51.100.2"]; ok {
		t.Errorf("origin count kept for failed connection: %v", stats.IPConnections)
	}
	if stats.IPConnections["198.51.100.1"] != 1 {
		t.Errorf("survivor origin count = %d, want 1", stats.IPConnections["198.51.100.1"])
	}

	count := func() (recovered, released int) {
		mu.Lock()
		defer mu.Unlock()

		for _, line := range logged {
			switch {
			case strings.Contains(line, "Recovered while serving"):
				recovered++
			case strings.Contains(line, "disconnected,"):
				released++
			}
		}
		return recovered, released
	}

	waitFor(t, "recovery", func() bool {
		recovered, _ := count()
		return recovered > 0
	})

	if recovered, released := count(); recovered != 1 || released != 1 {
		mu.Lock()
		defer mu.Unlock()

		t.Errorf("recovered=%d released=%d, want 1 each; log: %q", recovered, released, logged)
	}
}

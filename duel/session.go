/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package duel

import (
	"slices"
	"sync"
	"time"
)

// Sentinel is the implicit opening move every history starts from.
const Sentinel = "rock"

// DefaultIdleTimeout is how long a session may go untouched before it expires.
const DefaultIdleTimeout = 300 * time.Second

// Session holds one player's guess history and score.
//
// All access goes through its methods; each one counts as activity and
// pushes back the idle deadline, except IsExpired.
type Session struct {
	mu sync.Mutex

	history     []string
	score       int
	lastActive  time.Time
	idleTimeout time.Duration
	now         func() time.Time
}

func newSession(idleTimeout time.Duration, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	return &Session{
		history:     []string{},
		lastActive:  now(),
		idleTimeout: idleTimeout,
		now:         now,
	}
}

// AddGuess records word as an accepted guess. It reports false, leaving the
// session untouched, if word was already played.
func (s *Session) AddGuess(word string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addLocked(word)
}

// Accept is AddGuess plus a snapshot taken under the same lock, so the
// returned history and score include exactly this guess.
func (s *Session) Accept(word string) ([]string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.addLocked(word) {
		return nil, 0, false
	}

	return slices.Clone(s.history), s.score, true
}

func (s *Session) addLocked(word string) bool {
	if slices.Contains(s.history, word) {
		return false
	}

	if len(s.history) == 0 && word != Sentinel {
		s.history = append(s.history, Sentinel)
	}

	s.history = append(s.history, word)
	s.score++
	s.lastActive = s.now()

	return true
}

// Contains reports whether word is already in the history.
func (s *Session) Contains(word string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.now()

	return slices.Contains(s.history, word)
}

// History returns a copy of the guess history.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.now()

	return slices.Clone(s.history)
}

// Snapshot returns a copy of the history together with the matching score.
func (s *Session) Snapshot() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.now()

	return slices.Clone(s.history), s.score
}

// Score returns the number of accepted guesses.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.now()

	return s.score
}

// Reset clears the history and score. The next accepted guess will be
// preceded by the sentinel again.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = []string{}
	s.score = 0
	s.lastActive = s.now()
}

// IsExpired reports whether the session has been idle for longer than its
// timeout as of now.
func (s *Session) IsExpired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return now.Sub(s.lastActive) > s.idleTimeout
}

// LastActive returns the time of the most recent access.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActive
}

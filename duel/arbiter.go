/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package duel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL       = 24 * time.Hour
	DefaultOracleTimeout  = 30 * time.Second
	DefaultCounterTimeout = 5 * time.Second
	DefaultPersona        = "serious"
)

// User-facing messages for rejected guesses.
const (
	MsgInappropriate  = "Inappropriate content."
	MsgSessionExpired = "Session expired. Please refresh the page."
)

// Status classifies an Outcome.
type Status string

const (
	StatusRejected Status = "rejected"
	StatusGameOver Status = "game_over"
	StatusSuccess  Status = "success"
	StatusFail     Status = "fail"
)

// Guess is one request to evaluate a challenger word.
type Guess struct {
	SessionID string
	Seed      string
	Guess     string
	Persona   string
}

// Outcome is the result of evaluating a Guess. Err is set only for
// StatusRejected; History, Score and GlobalCount only for StatusSuccess.
type Outcome struct {
	Status      Status
	Message     string
	Err         error
	SeedWord    string
	Score       int
	History     []string
	GlobalCount int64
}

func rejected(err error, msg string) Outcome {
	return Outcome{Status: StatusRejected, Message: msg, Err: err}
}

func gameOver(msg string) Outcome {
	return Outcome{Status: StatusGameOver, Message: msg}
}

// Arbiter runs a guess through moderation, the verdict cache, the oracle,
// the player's session and the global counter, in that order.
type Arbiter struct {
	Sessions *Registry
	Filter   ContentFilter
	Oracle   Oracle
	Cache    VerdictCache
	Counter  GuessCounter

	CacheTTL       time.Duration
	OracleTimeout  time.Duration
	CounterTimeout time.Duration
	Logf           Logf

	inflight singleflight.Group

	mu        sync.Mutex
	lastKnown map[string]int64
}

// Evaluate decides the outcome of g. It never returns an error: dependency
// failures either degrade (cache, oracle) or are logged (counter).
func (a *Arbiter) Evaluate(ctx context.Context, g Guess) Outcome {
	seed := strings.TrimSpace(g.Seed)
	guess := strings.TrimSpace(g.Guess)

	persona := strings.TrimSpace(g.Persona)
	if persona == "" {
		persona = DefaultPersona
	}

	if a.Filter != nil && !a.Filter.IsClean(guess) {
		return rejected(ErrInappropriate, MsgInappropriate)
	}

	session, ok := a.Sessions.Get(g.SessionID)
	if !ok {
		return rejected(ErrSessionExpired, MsgSessionExpired)
	}

	if session.Contains(guess) {
		return gameOver(fmt.Sprintf("'%s' was already used!", guess))
	}

	if a.resolve(ctx, seed, guess, persona) != Yes {
		return Outcome{
			Status:  StatusFail,
			Message: fmt.Sprintf("❌ Nope! '%s' doesn't beat '%s'.", guess, seed),
		}
	}

	history, score, ok := session.Accept(guess)
	if !ok {
		return gameOver(fmt.Sprintf("'%s' already used!", guess))
	}

	count := a.increment(ctx, guess)

	return Outcome{
		Status:      StatusSuccess,
		Message:     fmt.Sprintf("✅ Nice! '%s' beats '%s'. %s has been guessed %d times before.", guess, seed, guess, count),
		SeedWord:    guess,
		Score:       score,
		History:     history,
		GlobalCount: count,
	}
}

// resolve returns the cached verdict for seed/guess, asking the oracle on a
// miss. Concurrent misses for the same pair share a single oracle call.
func (a *Arbiter) resolve(ctx context.Context, seed, guess, persona string) Verdict {
	if v, ok := a.cached(ctx, seed, guess); ok {
		return v
	}

	key := seed + "\x00" + guess

	result, _, _ := a.inflight.Do(key, func() (any, error) {
		timeout := a.OracleTimeout
		if timeout <= 0 {
			timeout = DefaultOracleTimeout
		}

		// The call is shared, so one caller going away must not cancel it.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		v, judged := a.judge(callCtx, seed, guess, persona)
		if !v.Valid() {
			v, judged = No, false
		}

		// A fallback NO is not a judgement and must not outlive the outage.
		if judged {
			a.store(callCtx, seed, guess, v)
		}

		return v, nil
	})

	return result.(Verdict)
}

func (a *Arbiter) judge(ctx context.Context, seed, guess, persona string) (Verdict, bool) {
	if o, ok := a.Oracle.(DetailedOracle); ok {
		return o.JudgeDetail(ctx, seed, guess, persona)
	}

	return a.Oracle.Judge(ctx, seed, guess, persona), true
}

func (a *Arbiter) cached(ctx context.Context, seed, guess string) (Verdict, bool) {
	if a.Cache == nil {
		return "", false
	}

	v, ok, err := a.Cache.Get(ctx, seed, guess)
	if err != nil {
		a.Logf.printf("CACHE: Lookup of %q vs %q failed: %v", guess, seed, err)

		return "", false
	}

	if !ok || !v.Valid() {
		return "", false
	}

	return v, true
}

func (a *Arbiter) store(ctx context.Context, seed, guess string, v Verdict) {
	if a.Cache == nil {
		return
	}

	ttl := a.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	if err := a.Cache.Set(ctx, seed, guess, v, ttl); err != nil {
		a.Logf.printf("CACHE: Store of %q vs %q failed: %v", guess, seed, err)
	}
}

// increment bumps the global counter for guess. The session has already
// accepted the guess, so the update is detached from the caller's context.
// On failure the player's success stands and the last count seen for guess
// is reported instead.
func (a *Arbiter) increment(ctx context.Context, guess string) int64 {
	key := guess

	if a.Counter != nil {
		key = a.Counter.Normalize(guess)

		timeout := a.CounterTimeout
		if timeout <= 0 {
			timeout = DefaultCounterTimeout
		}

		incCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		count, err := a.Counter.Increment(incCtx, guess)
		if err == nil {
			a.remember(key, count)

			return count
		}

		a.Logf.printf("COUNTER: Increment of %q failed: %v", guess, err)
	}

	return a.known(key)
}

func (a *Arbiter) remember(key string, count int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastKnown == nil {
		a.lastKnown = make(map[string]int64)
	}

	if count > a.lastKnown[key] {
		a.lastKnown[key] = count
	}
}

func (a *Arbiter) known(key string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.lastKnown[key]
}

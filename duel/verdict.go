/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package duel

import (
	"context"
	"errors"
	"time"
)

// Verdict is the judge's answer to "does the guess beat the seed?".
type Verdict string

const (
	Yes Verdict = "YES"
	No  Verdict = "NO"
)

// Valid reports whether v is one of the two known verdicts.
func (v Verdict) Valid() bool {
	return v == Yes || v == No
}

var (
	ErrInappropriate  = errors.New("inappropriate content")
	ErrSessionExpired = errors.New("session expired")
)

// Logf is the logging sink shared by the game packages. A nil Logf discards.
type Logf func(format string, args ...any)

func (l Logf) printf(format string, args ...any) {
	if l == nil {
		return
	}

	l(format, args...)
}

// ContentFilter decides whether player input is acceptable.
type ContentFilter interface {
	IsClean(text string) bool
}

// Oracle judges a guess against a seed. Implementations never fail; they
// degrade to No when no judgement can be obtained.
type Oracle interface {
	Judge(ctx context.Context, seed, guess, persona string) Verdict
}

// DetailedOracle is an Oracle that also reports whether its verdict came
// from an actual judgement. Fallback verdicts are not cached.
type DetailedOracle interface {
	Oracle
	JudgeDetail(ctx context.Context, seed, guess, persona string) (v Verdict, judged bool)
}

// VerdictCache remembers prior judgements. It is an optimisation only.
type VerdictCache interface {
	Get(ctx context.Context, seed, guess string) (Verdict, bool, error)
	Set(ctx context.Context, seed, guess string, v Verdict, ttl time.Duration) error
}

// GuessCounter keeps the all-time number of wins per guess word.
// Increment must be safe for concurrent callers on the same word, and
// Normalize returns the key under which guess is counted.
type GuessCounter interface {
	Increment(ctx context.Context, guess string) (int64, error)
	Normalize(guess string) string
}

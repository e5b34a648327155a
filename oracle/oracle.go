/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package oracle asks language models whether one word beats another.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/Seednode/wordduel/duel"
)

// Provider is a single judge. Judge returns an error when it cannot produce
// a clear YES or NO.
type Provider interface {
	Name() string
	Judge(ctx context.Context, seed, guess, persona string) (duel.Verdict, error)
}

// Chain consults its providers in order and settles on the first clear
// answer. If every provider fails the verdict is NO.
type Chain struct {
	Providers []Provider
	Logf      func(format string, args ...any)
}

func (c *Chain) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// Judge implements duel.Oracle.
func (c *Chain) Judge(ctx context.Context, seed, guess, persona string) duel.Verdict {
	v, _ := c.JudgeDetail(ctx, seed, guess, persona)

	return v
}

// JudgeDetail implements duel.DetailedOracle. judged is false when no
// provider answered and the verdict is the NO fallback.
func (c *Chain) JudgeDetail(ctx context.Context, seed, guess, persona string) (duel.Verdict, bool) {
	for _, p := range c.Providers {
		if ctx.Err() != nil {
			break
		}

		v, err := c.try(ctx, p, seed, guess, persona)
		if err != nil {
			c.logf("ORACLE: %s failed on %q vs %q: %v", p.Name(), guess, seed, err)

			continue
		}

		return v, true
	}

	c.logf("ORACLE: No provider judged %q vs %q, defaulting to %s", guess, seed, duel.No)

	return duel.No, false
}

func (c *Chain) try(ctx context.Context, p Provider, seed, guess, persona string) (v duel.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	v, err = p.Judge(ctx, seed, guess, persona)
	if err != nil {
		return "", err
	}

	if !v.Valid() {
		return "", fmt.Errorf("unexpected verdict %q", v)
	}

	return v, nil
}

// ParseVerdict reads a model reply. Only replies starting with YES or NO,
// in any case, are accepted.
func ParseVerdict(reply string) (duel.Verdict, error) {
	s := strings.ToUpper(strings.TrimSpace(reply))

	switch {
	case strings.HasPrefix(s, string(duel.Yes)):
		return duel.Yes, nil
	case strings.HasPrefix(s, string(duel.No)):
		return duel.No, nil
	}

	return "", fmt.Errorf("unrecognised reply %q", reply)
}

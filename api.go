/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/samber/lo"

	"github.com/Seednode/wordduel/duel"
	"github.com/Seednode/wordduel/presence"
)

const maxRequestBody = 4 << 10

var apiPaths = []string{"/guess", "/history", "/reset", "/active_users", "/ws/"}

type guessRequest struct {
	Seed      string `json:"seed"`
	Guess     string `json:"guess"`
	SessionID string `json:"session_id"`
	Persona   string `json:"persona"`
}

type guessResponse struct {
	Status      duel.Status `json:"status"`
	Message     string      `json:"message"`
	SeedWord    string      `json:"seed_word,omitempty"`
	Score       *int        `json:"score,omitempty"`
	History     []string    `json:"history,omitempty"`
	GlobalCount *int64      `json:"global_count,omitempty"`
}

type historyResponse struct {
	History []string `json:"history"`
	Score   *int     `json:"score,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func serveGuess(cfg *Config, arbiter *duel.Arbiter, limits *rateLimits, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		securityHeaders(cfg, w)
		corsHeaders(cfg, w)

		if !limits.allow(clientHost(cfg, r)) {
			_, _ = writeError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")

			return
		}

		var req guessRequest

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_, _ = writeError(w, http.StatusBadRequest, "Invalid request body.")

			return
		}

		if strings.TrimSpace(req.Seed) == "" || strings.TrimSpace(req.Guess) == "" {
			_, _ = writeError(w, http.StatusBadRequest, "Both seed and guess are required.")

			return
		}

		out := arbiter.Evaluate(r.Context(), duel.Guess{
			SessionID: req.SessionID,
			Seed:      req.Seed,
			Guess:     req.Guess,
			Persona:   req.Persona,
		})

		var (
			written int
			err     error
		)

		switch out.Status {
		case duel.StatusRejected:
			written, err = writeError(w, http.StatusBadRequest, out.Message)
		case duel.StatusSuccess:
			written, err = writeJSON(w, http.StatusOK, guessResponse{
				Status:      out.Status,
				Message:     out.Message,
				SeedWord:    out.SeedWord,
				Score:       &out.Score,
				History:     out.History,
				GlobalCount: &out.GlobalCount,
			})
		default:
			written, err = writeJSON(w, http.StatusOK, guessResponse{
				Status:  out.Status,
				Message: out.Message,
			})
		}
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Guess %q vs %q -> %s (%s) to %s in %s",
			req.Guess,
			req.Seed,
			out.Status,
			humanReadableSize(int64(written)),
			realIP(cfg, r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHistory(cfg *Config, sessions *duel.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)
		corsHeaders(cfg, w)

		resp := historyResponse{History: []string{}}

		if session, ok := sessions.Get(r.URL.Query().Get("session_id")); ok {
			history, score := session.Snapshot()
			resp = historyResponse{History: history, Score: &score}
		}

		if _, err := writeJSON(w, http.StatusOK, resp); err != nil {
			errs <- err
		}
	}
}

func serveReset(cfg *Config, sessions *duel.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)
		corsHeaders(cfg, w)

		id := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if id == "" {
			_, _ = writeError(w, http.StatusBadRequest, "session_id is required.")

			return
		}

		sessions.ResetOf(id)

		logf(cfg, "GAMES: Reset session %s for %s", id, realIP(cfg, r))

		if _, err := writeJSON(w, http.StatusOK, messageResponse{Message: "Game reset."}); err != nil {
			errs <- err
		}
	}
}

func serveActiveUsers(cfg *Config, connections *presence.Manager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)
		corsHeaders(cfg, w)

		if _, err := writeJSON(w, http.StatusOK, connections.Stats()); err != nil {
			errs <- err
		}
	}
}

func serveActiveUsersWS(cfg *Config, connections *presence.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		connections.Serve(w, r, clientHost(cfg, r))
	}
}

func isAPIPath(cfg *Config, path string) bool {
	path = strings.TrimPrefix(path, cfg.prefix)

	return lo.SomeBy(apiPaths, func(p string) bool {
		return path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p))
	})
}

// servePanic answers API routes in the usual {detail} shape and everything
// else with an HTML error page.
func servePanic(cfg *Config) func(http.ResponseWriter, *http.Request, any) {
	return func(w http.ResponseWriter, r *http.Request, i any) {
		logf(cfg, "ERROR: Panic serving %s: %v", r.URL.Path, i)

		securityHeaders(cfg, w)

		if isAPIPath(cfg, r.URL.Path) {
			corsHeaders(cfg, w)
			_, _ = writeError(w, http.StatusInternalServerError, "An error has occurred. Please try again.")

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}
}

// registerGame sets up the game routes:
//   - POST $prefix/guess            → evaluate one guess
//   - GET  $prefix/history          → a session's history and score
//   - POST $prefix/reset            → clear a session
//   - GET  $prefix/active_users     → connection and session totals
//   - GET  $prefix/ws/active_users  → realtime presence channel
func registerGame(cfg *Config, mux *httprouter.Router, arbiter *duel.Arbiter, sessions *duel.Registry, connections *presence.Manager, limits *rateLimits, errs chan<- error) {
	mux.POST(cfg.prefix+"/guess", serveGuess(cfg, arbiter, limits, errs))

	mux.GET(cfg.prefix+"/history", serveHistory(cfg, sessions, errs))

	mux.POST(cfg.prefix+"/reset", serveReset(cfg, sessions, errs))

	mux.GET(cfg.prefix+"/active_users", serveActiveUsers(cfg, connections, errs))

	mux.GET(cfg.prefix+"/ws/active_users", serveActiveUsersWS(cfg, connections))
}

/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/wordduel/duel"
	"github.com/Seednode/wordduel/moderation"
	"github.com/Seednode/wordduel/oracle"
	"github.com/Seednode/wordduel/presence"
	"github.com/Seednode/wordduel/store"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func corsHeaders(cfg *Config, w http.ResponseWriter) {
	if cfg.corsOrigin == "" {
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", cfg.corsOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if cfg.corsOrigin != "*" {
		w.Header().Add("Vary", "Origin")
	}
}

// clientHost identifies the client for quotas and rate limits. Proxy
// headers are only honoured with --trust-proxy.
func clientHost(cfg *Config, r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if !cfg.trustProxy {
		return host
	}

	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}

	return host
}

// realIP is clientHost with the port kept, for log lines.
func realIP(cfg *Config, r *http.Request) string {
	host := clientHost(cfg, r)
	_, port, _ := net.SplitHostPort(r.RemoteAddr)

	if port != "" {
		return net.JoinHostPort(host, port)
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("wordduel v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(cfg, r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

type verdictStore interface {
	duel.VerdictCache
	Prune(ctx context.Context) (int, error)
}

// openStores returns the SQLite-backed stores when --db is set, and
// process-local ones otherwise.
func openStores(cfg *Config) (verdictStore, duel.GuessCounter, func() error, error) {
	if cfg.db == "" {
		logf(cfg, "STORE: No --db given, guess counts will not survive a restart")

		return store.NewMemoryVerdicts(), store.NewMemoryCounter(), func() error { return nil }, nil
	}

	db, err := store.Open(cfg.db)
	if err != nil {
		return nil, nil, nil, err
	}

	logf(cfg, "STORE: Opened %s", cfg.db)

	return db.Verdicts(), db.Counter(), db.Close, nil
}

func newFilter(cfg *Config) (*moderation.Filter, error) {
	if cfg.wordlist == "" {
		return moderation.New(), nil
	}

	filter, err := moderation.Load(cfg.wordlist)
	if err != nil {
		return nil, err
	}

	logf(cfg, "MODERATION: Loaded %d banned terms", filter.Len())

	return filter, nil
}

func newOracle(cfg *Config) *oracle.Chain {
	key := cfg.oracleKey
	if key == "" {
		key = os.Getenv("GROQ_API_KEY")
	}
	if key == "" {
		logf(cfg, "ORACLE: No api key configured, every verdict will be %s", duel.No)
	}

	return &oracle.Chain{
		Providers: oracle.NewChatProviders(cfg.oracleURL, key, cfg.oracleModels, logger(cfg)),
		Logf:      logger(cfg),
	}
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: wordduel v%s", releaseVersion)

	verdicts, counter, closeStores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStores(); err != nil {
			logf(cfg, "STORE: Close failed: %v", err)
		}
	}()

	filter, err := newFilter(cfg)
	if err != nil {
		return err
	}

	sessions := duel.NewRegistry(cfg.idleTimeout)

	arbiter := &duel.Arbiter{
		Sessions:      sessions,
		Filter:        filter,
		Oracle:        newOracle(cfg),
		Cache:         verdicts,
		Counter:       counter,
		CacheTTL:      cfg.cacheTTL,
		OracleTimeout: cfg.oracleTimeout,
		Logf:          logger(cfg),
	}

	connections := presence.New(sessions, presence.Options{
		MaxPerOrigin: cfg.maxConnections,
		Interval:     cfg.heartbeat,
		Logf:         logger(cfg),
	})

	limits := newRateLimits(cfg.rateLimit, cfg.rateBurst)

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		// Guesses wait on the judge, which may take up to --oracle-timeout.
		WriteTimeout: cfg.oracleTimeout + timeout,
	}

	mux.PanicHandler = servePanic(cfg)

	mux.GlobalOPTIONS = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corsHeaders(cfg, w)
		w.WriteHeader(http.StatusNoContent)
	})

	errs := make(chan error, 64)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/", serveHomePage(cfg))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	mux.GET(cfg.prefix+"/share/qr", serveShareQR(cfg))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerGame(cfg, mux, arbiter, sessions, connections, limits, errs)

	go func() {
		for err := range errs {
			logf(cfg, "ERROR: %v", err)
		}
	}()

	startCleanup(ctx, cfg, sessions, verdicts, limits)

	go func() {
		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("%s | ERROR: %v\n", time.Now().Format(logDate), err)
		}
	}()

	<-ctx.Done()

	logf(cfg, "STOP: Shutting down, closing %d realtime connections", connections.Count())

	// Hijacked websocket connections are not tracked by Shutdown.
	connections.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}

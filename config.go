/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/wordduel/duel"
	"github.com/Seednode/wordduel/oracle"
	"github.com/Seednode/wordduel/presence"
)

type Config struct {
	bind       string
	corsOrigin string
	port       int
	prefix     string
	profile    bool
	tlsCert    string
	tlsKey     string
	trustProxy bool
	verbose    bool
	version    bool

	cacheTTL       time.Duration
	db             string
	heartbeat      time.Duration
	idleTimeout    time.Duration
	maxConnections int
	oracleKey      string
	oracleModels   []string
	oracleTimeout  time.Duration
	oracleURL      string
	rateBurst      int
	rateLimit      float64
	wordlist       string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxConnections < 1 {
		return fmt.Errorf("invalid max connections (must be at least 1): %d", c.maxConnections)
	}
	if c.idleTimeout <= 0 || c.heartbeat <= 0 || c.cacheTTL <= 0 || c.oracleTimeout <= 0 {
		return errors.New("--idle-timeout, --heartbeat, --cache-ttl and --oracle-timeout must be positive")
	}
	if c.rateLimit < 0 || c.rateBurst < 0 {
		return errors.New("--rate-limit and --rate-burst must not be negative")
	}
	if len(c.oracleModels) == 0 {
		return errors.New("at least one --oracle-models entry is required")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WORDDUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "wordduel",
		Short:         "A realtime \"what beats rock?\" word duel, judged by a language model.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WORDDUEL_BIND)")
	fs.DurationVar(&cfg.cacheTTL, "cache-ttl", duel.DefaultCacheTTL, "how long verdicts are cached (env: WORDDUEL_CACHE_TTL)")
	fs.StringVar(&cfg.corsOrigin, "cors-origin", "*", "value of Access-Control-Allow-Origin on API responses (env: WORDDUEL_CORS_ORIGIN)")
	fs.StringVar(&cfg.db, "db", "", "path to sqlite database for guess counts and verdicts; in-memory if unset (env: WORDDUEL_DB)")
	fs.DurationVar(&cfg.heartbeat, "heartbeat", presence.DefaultInterval, "interval between presence updates and expiry checks (env: WORDDUEL_HEARTBEAT)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", duel.DefaultIdleTimeout, "time before idle sessions expire (env: WORDDUEL_IDLE_TIMEOUT)")
	fs.IntVar(&cfg.maxConnections, "max-connections", presence.DefaultMaxPerOrigin, "maximum simultaneous realtime connections per address (env: WORDDUEL_MAX_CONNECTIONS)")
	fs.StringVar(&cfg.oracleKey, "oracle-key", "", "api key for the judge endpoint (env: WORDDUEL_ORACLE_KEY, falls back to GROQ_API_KEY)")
	fs.StringSliceVar(&cfg.oracleModels, "oracle-models", oracle.DefaultModels, "judge models, tried in order (env: WORDDUEL_ORACLE_MODELS)")
	fs.DurationVar(&cfg.oracleTimeout, "oracle-timeout", duel.DefaultOracleTimeout, "time allowed for one judgement across all models (env: WORDDUEL_ORACLE_TIMEOUT)")
	fs.StringVar(&cfg.oracleURL, "oracle-url", oracle.DefaultBaseURL, "openai-compatible api base url for the judge (env: WORDDUEL_ORACLE_URL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WORDDUEL_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WORDDUEL_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WORDDUEL_PROFILE)")
	fs.IntVar(&cfg.rateBurst, "rate-burst", 10, "burst size for guess rate limiting (env: WORDDUEL_RATE_BURST)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 2, "guesses per second allowed per address, 0 to disable (env: WORDDUEL_RATE_LIMIT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WORDDUEL_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WORDDUEL_TLS_KEY)")
	fs.BoolVar(&cfg.trustProxy, "trust-proxy", false, "use CF-Connecting-IP/X-Real-IP to identify clients (env: WORDDUEL_TRUST_PROXY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WORDDUEL_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WORDDUEL_VERSION)")
	fs.StringVar(&cfg.wordlist, "wordlist", "", "file of extra banned words, one per line (env: WORDDUEL_WORDLIST)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("wordduel v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

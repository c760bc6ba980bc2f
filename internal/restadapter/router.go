// Package restadapter exposes SummaryEngine, Store, and Scheduler over a
// chi-routed HTTP API for integrations that cannot speak the Discord
// slash-command surface: dashboards, cron-external triggers, and
// guild-admin tooling. Grounded on information-broker's api.go (route
// registration, per-route metrics middleware, hand-rolled CORS) adapted
// from net/http's ServeMux to chi, and on ashureev-shsh-labs's
// cmd/server/main.go for the chi middleware chain shape (RequestID,
// RealIP, Recoverer ahead of domain middleware).
package restadapter

import (
	"crypto/ed25519"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"summarybot-ng/internal/metrics"
	"summarybot-ng/internal/store"
)

// Config carries CORS and rate-limit settings, mirroring
// config.SecurityConfig / config.RestConfig.
type Config struct {
	CORSAllowedOrigins string
	CORSAllowedMethods string
	CORSAllowedHeaders string
	RequestsPerMinute  int
	RequestTimeout     time.Duration
}

// Adapter wires the REST surface to the underlying components.
type Adapter struct {
	engine           SummaryEngine
	store            store.Store
	commands         CommandHandler
	discordPublicKey ed25519.PublicKey
	metrics          *metrics.Metrics
	cfg              Config
	auth             AuthConfig
}

// New builds an Adapter. store.Store is accepted in full since every
// handler here uses a different subset of it (summaries, schedules,
// health) and a single narrow interface would just re-enumerate Store.
// commands and discordPublicKey are optional: when commands is nil, the
// Discord interactions endpoint is not registered (a deployment that
// only exposes the REST API, with slash commands disabled).
func New(engine SummaryEngine, st store.Store, commands CommandHandler, discordPublicKey ed25519.PublicKey, m *metrics.Metrics, cfg Config, auth AuthConfig) *Adapter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 100
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Adapter{
		engine:           engine,
		store:            st,
		commands:         commands,
		discordPublicKey: discordPublicKey,
		metrics:          m,
		cfg:              cfg,
		auth:             auth,
	}
}

// Router builds the chi.Router exposing spec.md 6's exact route table.
func (a *Adapter) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(a.cfg.RequestTimeout))
	r.Use(a.cors)

	r.Get("/health", a.withMetrics("/health", a.health))

	if a.commands != nil {
		r.Post("/v1/discord/interactions", a.withMetrics("/v1/discord/interactions", a.discordInteractions))
	}

	r.Group(func(protected chi.Router) {
		protected.Use(Middleware(a.auth))
		protected.Use(RateLimitMiddleware(a.cfg.RequestsPerMinute))

		protected.Post("/v1/summarize", a.withMetrics("/v1/summarize", a.postSummarize))
		protected.Get("/v1/summary/{id}", a.withMetrics("/v1/summary", a.getSummary))
		protected.Get("/v1/summaries", a.withMetrics("/v1/summaries", a.getSummaries))
		protected.Post("/v1/schedule", a.withMetrics("/v1/schedule", a.postSchedule))
		protected.Delete("/v1/schedule/{id}", a.withMetrics("/v1/schedule", a.deleteSchedule))
	})

	return r
}

// withMetrics records per-route HTTP metrics, the chi equivalent of
// api.go's s.metrics.HTTPMetricsMiddleware(handler, route) wrapping.
func (a *Adapter) withMetrics(route string, h http.HandlerFunc) http.HandlerFunc {
	if a.metrics == nil {
		return h
	}
	wrapped := a.metrics.HTTPMiddleware(route)(h)
	return wrapped.ServeHTTP
}

// cors mirrors information-broker's api.go corsHandler closure, rebuilt
// as chi middleware operating on configured origins/methods/headers
// rather than hardcoded ones.
func (a *Adapter) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.cfg.CORSAllowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", a.cfg.CORSAllowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", a.cfg.CORSAllowedHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Command summarybot is the process entry point: it loads configuration,
// wires every component, starts the Scheduler and the REST listener, and
// waits for a shutdown signal. Wiring order and shutdown shape follow
// information-broker's main.go (config -> metrics -> database -> domain
// components -> background goroutines -> signal-driven graceful stop),
// generalized from its RSS-monitor-plus-API-server pair to this
// process's Scheduler-plus-RestAdapter pair.
package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"summarybot-ng/internal/cache"
	"summarybot-ng/internal/commandhandler"
	"summarybot-ng/internal/config"
	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/llmclient"
	"summarybot-ng/internal/messagesource"
	"summarybot-ng/internal/metrics"
	"summarybot-ng/internal/restadapter"
	"summarybot-ng/internal/scheduler"
	"summarybot-ng/internal/store"
	"summarybot-ng/internal/summaryengine"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting summarybot")

	m := metrics.New()
	log.Println("Prometheus metrics initialized")

	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	st := store.NewPostgresStore(db)

	source, err := messagesource.Resolve(messagesource.Config{
		Backend:        discordBackendName(cfg),
		BotToken:       cfg.Discord.BotToken,
		RequestTimeout: cfg.App.HTTPTimeout,
		PageSize:       100,
	})
	if err != nil {
		log.Fatalf("Failed to resolve message source: %v", err)
	}

	durable := resolveDurable(cfg, db)
	summaryCache := cache.New(cfg.Cache.InMemoryCapacity, cfg.Cache.InMemoryTTL, durable, m)

	llmBackend := llmclient.NewOpenAIBackend(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.RequestTimeout)
	llm := llmclient.NewBoundedClient(llmBackend, llmclient.Config{
		Concurrency:        cfg.LLM.Concurrency,
		MinDispatchSpacing: cfg.LLM.MinDispatchSpacing,
		MaxRetries:         cfg.LLM.MaxRetries,
		BackoffBase:        cfg.LLM.BackoffBase,
		CostPerKTokens:     cfg.LLM.CostRatePerKTokens,
	})

	engine := summaryengine.New(source, st, summaryCache, llm, m, summaryengine.Config{
		DurableCacheTTL: cfg.Cache.DurableTTL,
		DefaultModel:    cfg.LLM.DefaultModel,
		MaxWindow:       cfg.App.MaxWindow,
	})

	handler := commandhandler.New(source, engine, st, summaryCache, m)

	sched := scheduler.New(st, engine, buildSinks(), m, scheduler.Config{
		TickInterval: cfg.Scheduler.TickInterval,
	})

	rest := restadapter.New(engine, st, handler, discordPublicKey(), m, restadapter.Config{
		CORSAllowedOrigins: cfg.Security.CORSAllowedOrigins,
		CORSAllowedMethods: cfg.Security.CORSAllowedMethods,
		CORSAllowedHeaders: cfg.Security.CORSAllowedHeaders,
		RequestsPerMinute:  cfg.Rest.RequestsPerMinute,
		RequestTimeout:     cfg.Rest.RequestTimeout,
	}, loadAuthConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)

	sched.Start(ctx)

	httpServer := &http.Server{
		Addr:         cfg.App.ListenAddr,
		Handler:      rest.Router(),
		ReadTimeout:  cfg.App.HTTPTimeout,
		WriteTimeout: cfg.App.HTTPTimeout,
	}

	go func() {
		defer wg.Done()
		log.Printf("REST adapter listening on %s", cfg.App.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("REST adapter stopped: %v", err)
		}
	}()

	go dbStatsLoop(ctx, db, m)

	<-sigChan
	log.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("REST adapter shutdown error: %v", err)
	}

	sched.Stop()
	cancel()
	wg.Wait()

	log.Println("Shutdown complete")
}

func discordBackendName(cfg *config.Config) string {
	if cfg.Discord.BotToken == "" {
		return "mock"
	}
	return "discord"
}

func initDatabase(cfg *config.Config) (*sql.DB, error) {
	connStr := cfg.GetConnectionString()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.PoolSize)

	if err := store.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func resolveDurable(cfg *config.Config, db *sql.DB) cache.Durable {
	if cfg.Cache.RedisAddr != "" {
		return cache.NewRedisDurable(cfg.Cache.RedisAddr)
	}
	return cache.NewStoreDurable(db)
}

// buildSinks wires the delivery sinks Scheduler dispatches to, keyed by
// the SinkKind each ScheduledTask's Destinations reference.
func buildSinks() map[domain.SinkKind]scheduler.Sink {
	sinks := map[domain.SinkKind]scheduler.Sink{
		domain.SinkDiscordChannel: scheduler.NewDiscordWebhookSink(),
		domain.SinkWebhook:        scheduler.NewGenericWebhookSink(),
	}
	if addr := os.Getenv("SMTP_ADDR"); addr != "" {
		from := os.Getenv("SMTP_FROM")
		user := os.Getenv("SMTP_USER")
		pass := os.Getenv("SMTP_PASSWORD")
		host := addr
		if idx := lastColon(addr); idx >= 0 {
			host = addr[:idx]
		}
		sinks[domain.SinkEmail] = scheduler.NewEmailSink(addr, from, smtp.PlainAuth("", user, pass, host))
	}
	return sinks
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// discordPublicKey decodes DISCORD_PUBLIC_KEY (hex-encoded, as Discord's
// developer portal presents it) for interactions signature verification.
// Empty when unset, which disables signature checking -- acceptable only
// behind a reverse proxy that performs verification itself.
func discordPublicKey() ed25519.PublicKey {
	raw := os.Getenv("DISCORD_PUBLIC_KEY")
	if raw == "" {
		return nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil || len(key) != ed25519.PublicKeySize {
		log.Printf("Ignoring malformed DISCORD_PUBLIC_KEY")
		return nil
	}
	return ed25519.PublicKey(key)
}

func loadAuthConfig(cfg *config.Config) restadapter.AuthConfig {
	auth := restadapter.AuthConfig{
		APIKeys: map[string]restadapter.Principal{},
	}
	if cfg.Security.JWTSigningSecret != "" {
		auth.JWTSecret = []byte(cfg.Security.JWTSigningSecret)
	}
	if cfg.Security.APIKeyTablePath != "" {
		keys, err := restadapter.LoadAPIKeyTable(cfg.Security.APIKeyTablePath)
		if err != nil {
			log.Printf("Failed to load API key table %s: %v", cfg.Security.APIKeyTablePath, err)
		} else {
			auth.APIKeys = keys
		}
	}
	return auth
}

func dbStatsLoop(ctx context.Context, db *sql.DB, m *metrics.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			m.UpdateDBConnections(stats.OpenConnections, stats.InUse, stats.Idle)
		}
	}
}

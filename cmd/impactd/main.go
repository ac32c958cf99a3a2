package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/communitypulse/impactd/internal/collections"
	"github.com/communitypulse/impactd/internal/httpapi"
)

func main() {
	addr := os.Getenv("IMPACTD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, configFile := buildConfigFromEnv()
	if len(config.Configured()) == 0 {
		log.Printf("warning: no collections configured; every fetch will degrade")
	}
	if configFile != "" {
		go func() {
			if err := config.Watch(ctx, configFile); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("config watcher stopped: %v", err)
			}
		}()
	}

	source := collections.NewNotionSource(collections.NotionSourceOptions{
		BaseURL:        os.Getenv("IMPACTD_NOTION_BASE_URL"),
		Token:          os.Getenv("IMPACTD_NOTION_TOKEN"),
		APIVersion:     os.Getenv("IMPACTD_NOTION_VERSION"),
		UserAgent:      "impactd",
		RequestTimeout: durationEnv("IMPACTD_REQUEST_TIMEOUT", 15*time.Second),
		PageSize:       intEnv("IMPACTD_PAGE_SIZE", 100),
		MaxPages:       intEnv("IMPACTD_MAX_PAGES", 1000),
		MaxRetries:     intEnv("IMPACTD_MAX_RETRIES", 3),
	})

	cache := collections.NewStore(collections.StoreOptions{})
	metrics := collections.NewMetrics()
	journal := buildJournalFromEnv()

	service := collections.NewService(collections.ServiceOptions{
		Source:            source,
		Cache:             cache,
		Config:            config,
		Metrics:           metrics,
		DefaultTTL:        durationEnv("IMPACTD_CACHE_TTL", 5*time.Minute),
		AllowMockFallback: boolEnv("IMPACTD_ALLOW_MOCK_FALLBACK", false),
	})

	refresher := collections.NewRefresher(collections.RefresherOptions{
		Service:  service,
		Journal:  journal,
		Interval: durationEnv("IMPACTD_REFRESH_INTERVAL", time.Minute),
	})

	server := httpapi.NewServer(httpapi.ServerOptions{
		Service:         service,
		Config:          config,
		Journal:         journal,
		MetricsHandler:  metrics.Handler(),
		RateLimitMax:    intEnv("IMPACTD_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv("IMPACTD_RATE_LIMIT_WINDOW", time.Minute),
	})
	refresher.OnChanges(server.BroadcastChanges)

	go refresher.Run(ctx)

	httpServer := &http.Server{Addr: addr, Handler: server}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("impactd listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
	if err := journal.Close(); err != nil {
		log.Printf("journal close failed: %v", err)
	}
}

func buildConfigFromEnv() (*collections.Config, string) {
	path := strings.TrimSpace(os.Getenv("IMPACTD_COLLECTIONS_FILE"))
	if path != "" {
		entries, err := collections.LoadConfigFile(path)
		if err != nil {
			log.Fatalf("failed to load collections file: %v", err)
		}
		return collections.NewConfig(entries, nil), path
	}

	entries := map[collections.Kind]collections.CollectionSettings{}
	for _, kind := range collections.Kinds() {
		name := "IMPACTD_DB_" + strings.ToUpper(string(kind))
		if id := strings.TrimSpace(os.Getenv(name)); id != "" {
			entries[kind] = collections.CollectionSettings{CollectionID: id}
		}
	}
	return collections.NewConfig(entries, nil), ""
}

func buildJournalFromEnv() collections.Journal {
	dsn := strings.TrimSpace(os.Getenv("IMPACTD_JOURNAL_DSN"))
	if dsn == "" {
		return collections.NewMemoryJournal(intEnv("IMPACTD_JOURNAL_CAPACITY", 0))
	}
	journal, err := collections.NewPostgresJournal(dsn)
	if err != nil {
		log.Fatalf("failed to initialize postgres journal: %v", err)
	}
	log.Printf("change journal backed by postgres")
	return journal
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %t", name, raw, fallback)
		return fallback
	}
	return value
}

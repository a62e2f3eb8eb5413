package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/nvoloshyn/placedesk/libs/config"
	"github.com/nvoloshyn/placedesk/libs/db"
	"github.com/nvoloshyn/placedesk/libs/httpx"
	"github.com/nvoloshyn/placedesk/libs/otelx"
	"github.com/nvoloshyn/placedesk/libs/runtime"
	"github.com/nvoloshyn/placedesk/services/console-service/internal/clients"
	"github.com/nvoloshyn/placedesk/services/console-service/internal/handlers"
	"github.com/nvoloshyn/placedesk/services/console-service/internal/storage"
	"github.com/nvoloshyn/placedesk/services/console-service/internal/upgrade"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadEnvFile()
	service := config.String("SERVICE_NAME", "console-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	clientTimeout := config.Duration("UPSTREAM_TIMEOUT", 5*time.Second)
	placesClient := clients.NewPlacesClient(config.String("PLACES_URL", "http://place-service:8082"), clientTimeout)
	billingClient := clients.NewBillingClient(config.String("BILLING_URL", "http://billing-service:8084"), clientTimeout)
	featuresClient := clients.NewFeaturesClient(config.String("FEATURES_URL", "http://feature-service:8085"), clientTimeout)

	policy := upgrade.Policy{
		Plan:         config.String("UPGRADE_TARGET_PLAN", "pro"),
		PollAttempts: config.Int("UPGRADE_POLL_ATTEMPTS", 5),
		PollInterval: config.Duration("UPGRADE_POLL_INTERVAL", 500*time.Millisecond),
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}

	// One attempt per (place, feature). With several console replicas the
	// lock has to live in Redis; a single instance gets by in memory.
	var locks upgrade.Locker
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		locks = upgrade.NewRedisLocker(rdb, config.Duration("UPGRADE_LOCK_TTL", 30*time.Second))
		readyChecks = append(readyChecks, runtime.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Info("attempt locking via redis", "addr", redisAddr)
	} else {
		locks = upgrade.NewMemoryLocker()
		logger.Info("attempt locking in memory")
	}

	orchestrator := upgrade.New(placesClient, billingClient, featuresClient, locks, logger, policy)
	pendingRepo := storage.NewPendingRepository(pool)
	handler := handlers.New(orchestrator, pendingRepo, placesClient, billingClient, featuresClient, logger)

	go purgeLoop(ctx, pendingRepo, logger,
		config.Duration("PENDING_PURGE_EVERY", time.Hour),
		config.Duration("PENDING_MAX_AGE", 24*time.Hour))

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/console/features/toggle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handler.ToggleFeature(w, r)
	})
	mux.HandleFunc("/api/v1/console/upgrade/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handler.ResumeUpgrade(w, r)
	})
	mux.HandleFunc("/api/v1/console/overview", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handler.Overview(w, r)
	})

	chained := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	wrapped := otelhttp.NewHandler(chained, "console")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           wrapped,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func purgeLoop(ctx context.Context, repo *storage.PendingRepository, logger *slog.Logger, every, maxAge time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PurgeOlderThan(ctx, maxAge)
			if err != nil {
				logger.Error("pending upgrade purge failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("pending upgrades purged", "count", n)
			}
		}
	}
}

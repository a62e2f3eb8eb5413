package main

import (
	"context"
	"net/http"
	"time"

	"github.com/nvoloshyn/placedesk/libs/config"
	"github.com/nvoloshyn/placedesk/libs/db"
	"github.com/nvoloshyn/placedesk/libs/httpx"
	"github.com/nvoloshyn/placedesk/libs/inbox"
	"github.com/nvoloshyn/placedesk/libs/kafkax"
	"github.com/nvoloshyn/placedesk/libs/otelx"
	"github.com/nvoloshyn/placedesk/libs/outbox"
	"github.com/nvoloshyn/placedesk/libs/runtime"
	"github.com/nvoloshyn/placedesk/services/feature-service/internal/consumer"
	"github.com/nvoloshyn/placedesk/services/feature-service/internal/entitlements"
	"github.com/nvoloshyn/placedesk/services/feature-service/internal/handlers"
	"github.com/nvoloshyn/placedesk/services/feature-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadEnvFile()
	service := config.String("SERVICE_NAME", "feature-service")
	port, err := config.Port("PORT", "8085")
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

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	provider, err := entitlements.NewBillingProvider(logger, config.String("BILLING_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("billing provider setup failed", "err", err)
		panic(err)
	}

	handler := handlers.New(pool, repo, outboxRepo, provider, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	go outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	}).Run(ctx)

	billingEvents := consumer.NewBillingEvents(pool, repo, outboxRepo, logger)
	if len(kafkax.SplitBrokers(brokers)) > 0 {
		group := config.String("KAFKA_GROUP_ID", "feature-service")
		go kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: group,
			Topic:   "billing.subscription.activated.v1",
		}, billingEvents.HandleActivated).Run(ctx)
		go kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: group,
			Topic:   "billing.subscription.canceled.v1",
		}, billingEvents.HandleCanceled).Run(ctx)
	} else {
		logger.Warn("kafka consumers disabled (no brokers configured)")
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if len(kafkax.SplitBrokers(brokers)) > 0 {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/features", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.GetFeatures(w, r)
		case http.MethodPut:
			handler.SetFeature(w, r)
		default:
			httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
	mux.HandleFunc("/api/v1/features/rewards/settings", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.GetRewardSettings(w, r)
		case http.MethodPut:
			handler.PutRewardSettings(w, r)
		default:
			httpx.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	chained := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	wrapped := otelhttp.NewHandler(chained, "features")

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

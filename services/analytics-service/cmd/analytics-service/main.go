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
	"github.com/nvoloshyn/placedesk/libs/runtime"
	"github.com/nvoloshyn/placedesk/services/analytics-service/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadEnvFile()
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8088")
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

	inboxRepo := inbox.NewRepository(pool)
	events := metrics.NewEvents(pool, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	group := config.String("KAFKA_GROUP_ID", "analytics-service")
	if len(kafkax.SplitBrokers(brokers)) > 0 {
		topics := []struct {
			topic   string
			handler kafkax.MessageHandler
		}{
			{"billing.subscription.activated.v1", events.HandleSubscriptionActivated},
			{"feature.toggle.applied.v1", events.HandleToggleApplied},
			{"messaging.notification.sent.v1", events.HandleNotificationSent},
			{"messaging.notification.failed.v1", events.HandleNotificationFailed},
			{"messaging.notify.dlq.v1", events.HandleNotifyDLQ},
			{"auth.audit.v1", events.HandleAuthAudit},
		}
		for _, t := range topics {
			go kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
				Brokers: brokers,
				GroupID: group,
				Topic:   t.topic,
			}, t.handler).Run(ctx)
		}
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
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
	)
	wrapped := otelhttp.NewHandler(handler, "analytics")
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

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nebulateam/nebula/internal/broker"
	"github.com/nebulateam/nebula/internal/config"
	"github.com/nebulateam/nebula/internal/db"
	"github.com/nebulateam/nebula/internal/health"
	"github.com/nebulateam/nebula/internal/logging"
	"github.com/nebulateam/nebula/internal/metrics"
	"github.com/nebulateam/nebula/internal/outbox"
	"github.com/nebulateam/nebula/internal/relay"
	"github.com/nebulateam/nebula/internal/tracing"
	"github.com/nebulateam/nebula/internal/users"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.New("nebula-users")

	shutdown, err := tracing.InitTracing(ctx, "nebula-users")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN(), int32(cfg.DB.MaxConns))
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	pub, err := broker.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	if err != nil {
		logger.Plain().WithError(err).Fatal("broker connect failed")
	}
	defer pub.Close()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	obStore := outbox.NewStore(pool)
	svc := users.NewService(pool, obStore, logger)

	// The outbox relay runs inside the users service so the only external
	// dependency of user creation is the database itself.
	outboxRelay := &relay.Relay{
		Name:           "outbox",
		Source:         obStore,
		Publisher:      pub,
		BatchSize:      cfg.Relay.OutboxBatch,
		Interval:       cfg.Relay.OutboxInterval,
		PublishTimeout: cfg.Relay.PublishTimeout,
		StaleAfter:     cfg.Relay.StaleAfter,
		Logger:         logger,
	}
	go outboxRelay.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(
		health.DB(pool),
		health.Check{Name: "broker", Probe: pub.Healthy},
	))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/users", svc.HTTPHandler())

	httpSrv := &http.Server{Addr: cfg.UsersHTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("users HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("users HTTP server failed")
		}
	}()

	logger.Plain().Info("users service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down users service")
	cancel()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("users service stopped")
}

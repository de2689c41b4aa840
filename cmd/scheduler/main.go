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
	"github.com/nebulateam/nebula/internal/relay"
	"github.com/nebulateam/nebula/internal/schedule"
	"github.com/nebulateam/nebula/internal/scheduled"
	"github.com/nebulateam/nebula/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.New("nebula-scheduler")

	shutdown, err := tracing.InitTracing(ctx, "nebula-scheduler")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN(), int32(cfg.DB.MaxConns))
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	store := scheduled.NewStore(pool)

	// Consumer side: user.created deliveries become scheduled rows.
	handler := &schedule.Handler{
		Store:  store,
		Delay:  cfg.Schedule.Delay,
		Type:   cfg.Schedule.NotificationType,
		Logger: logger,
	}
	consumer, err := broker.NewConsumer(broker.ConsumerConfig{
		URL:        cfg.AMQP.URL,
		Exchange:   cfg.AMQP.Exchange,
		Queue:      cfg.AMQP.UserEventsQueue,
		RoutingKey: cfg.AMQP.UserEventsKey,
		Prefetch:   cfg.AMQP.Prefetch,
	}, logger)
	if err != nil {
		logger.Plain().WithError(err).Fatal("broker consumer setup failed")
	}
	if err := consumer.Start(ctx, handler.Handle); err != nil {
		logger.Plain().WithError(err).Fatal("broker consume failed")
	}

	// Relay side: due rows go back out to the push queue.
	pub, err := broker.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	if err != nil {
		logger.Plain().WithError(err).Fatal("broker publisher setup failed")
	}
	defer pub.Close()

	scheduledRelay := &relay.Relay{
		Name:           "scheduled",
		Source:         store,
		Publisher:      pub,
		BatchSize:      cfg.Relay.ScheduleBatch,
		Interval:       cfg.Relay.ScheduleInterval,
		PublishTimeout: cfg.Relay.PublishTimeout,
		StaleAfter:     cfg.Relay.StaleAfter,
		Logger:         logger,
	}
	go scheduledRelay.Run(ctx)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(
		health.DB(pool),
		health.Check{Name: "broker", Probe: pub.Healthy},
	))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{Addr: cfg.SchedulerHTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("scheduler HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("scheduler HTTP server failed")
		}
	}()

	logger.Plain().Info("scheduler service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down scheduler service")
	_ = consumer.Close()
	<-consumer.Done()
	cancel()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("scheduler service stopped")
}

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
	"github.com/nebulateam/nebula/internal/health"
	"github.com/nebulateam/nebula/internal/logging"
	"github.com/nebulateam/nebula/internal/metrics"
	"github.com/nebulateam/nebula/internal/push"
	"github.com/nebulateam/nebula/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.New("nebula-sender")

	shutdown, err := tracing.InitTracing(ctx, "nebula-sender")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	claims := push.NewRedisClaimer(cfg.Redis.Addr, cfg.Redis.IdempotencyTTL)
	defer claims.Close()

	sender := &push.Sender{
		Claims:  claims,
		SinkURL: cfg.Push.SinkURL,
		Client:  &http.Client{Timeout: cfg.Push.Timeout},
		Logger:  logger,
	}

	consumer, err := broker.NewConsumer(broker.ConsumerConfig{
		URL:        cfg.AMQP.URL,
		Exchange:   cfg.AMQP.Exchange,
		Queue:      cfg.AMQP.PushQueue,
		RoutingKey: cfg.AMQP.PushKey,
		Prefetch:   cfg.AMQP.Prefetch,
	}, logger)
	if err != nil {
		logger.Plain().WithError(err).Fatal("broker consumer setup failed")
	}
	if err := consumer.Start(ctx, sender.Handle); err != nil {
		logger.Plain().WithError(err).Fatal("broker consume failed")
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(
		health.Check{Name: "broker", Probe: consumer.Healthy},
		health.Check{Name: "redis", Probe: claims.Ping},
	))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{Addr: cfg.SenderHTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("sender HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("sender HTTP server failed")
		}
	}()

	logger.Plain().Info("sender service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down sender service")
	_ = consumer.Close()
	<-consumer.Done()
	cancel()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("sender service stopped")
}

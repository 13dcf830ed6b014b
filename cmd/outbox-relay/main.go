// Command outbox-relay drains the outbox table to Redpanda.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/config"
	"github.com/drfirst/go-clinicrx/internal/domain"
	"github.com/drfirst/go-clinicrx/internal/infrastructure/postgres"
	"github.com/drfirst/go-clinicrx/internal/infrastructure/redpanda"
	"github.com/drfirst/go-clinicrx/internal/observability/logging"
	"github.com/drfirst/go-clinicrx/internal/observability/metrics"
	"github.com/drfirst/go-clinicrx/internal/observability/tracing"
	"github.com/drfirst/go-clinicrx/pkg/circuitbreaker"
)

const serviceName = "outbox-relay"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	brokers := cfg.Brokers()
	admin, err := redpanda.NewAdmin(brokers, logger)
	if err != nil {
		return err
	}
	if err := admin.EnsureTopics(ctx); err != nil {
		// The broker may still be starting; the breaker covers publishing.
		logger.Warn("topic setup failed", zap.Error(err))
	}
	admin.Close()

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = brokers
	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		return err
	}
	defer producer.Close()
	producer.WithObserver(m)
	logger.Info("connected to Redpanda", zap.Strings("brokers", brokers))
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("redpanda"), m, logger)

	outbox := postgres.NewOutbox(pool, &producerAdapter{producer: producer, breaker: breaker},
		postgres.OutboxConfig{
			BatchSize:       cfg.OutboxBatchSize,
			PollInterval:    cfg.OutboxPollInterval,
			MaxRetries:      cfg.OutboxMaxRetries,
			DeadLetterTopic: domain.TopicDeadLetter,
		}, logger).WithObserver(m)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           newRelayRouter(reg, pool, producer, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("relay http server error", zap.Error(err))
		}
	}()

	outbox.Start(ctx)
	if cfg.OutboxRetention > 0 {
		go cleanupLoop(ctx, outbox, cfg.OutboxRetention, logger)
	}
	<-ctx.Done()

	logger.Info("shutting down")
	outbox.Stop()

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(sctx)
	return nil
}

// cleanupLoop deletes published entries older than retention once an hour.
func cleanupLoop(ctx context.Context, outbox *postgres.Outbox, retention time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := outbox.CleanupProcessed(ctx, retention)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("outbox cleanup failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				logger.Info("outbox cleaned", zap.Int64("deleted", n))
			}
		}
	}
}

// Publisher is the broker side of the adapter.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// producerAdapter sends outbox entries through the breaker. While the
// breaker is open entries are deferred rather than counted as failures.
type producerAdapter struct {
	producer Publisher
	breaker  *circuitbreaker.CircuitBreaker
}

func (a *producerAdapter) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := a.breaker.Do(ctx, func(ctx context.Context) error {
		return a.producer.Publish(ctx, topic, key, value)
	})
	if circuitbreaker.IsOpen(err) {
		return fmt.Errorf("%w: %w", postgres.ErrPublishDeferred, err)
	}
	return err
}

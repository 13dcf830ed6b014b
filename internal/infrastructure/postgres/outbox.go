package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/domain"
)

// OutboxEntry is one row of the outbox table. Rows are written by the
// patient registry and prescription workflow in the same statement as the
// domain insert, and drained by the relay.
type OutboxEntry struct {
	ID            int64
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       json.RawMessage
	Topic         string
	Key           string
	CreatedAt     time.Time
	RetryCount    int
	LastError     *string
}

// OutboxConfig holds relay settings.
type OutboxConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries is how many failed publishes an entry gets before it is
	// moved to the dead-letter topic.
	MaxRetries      int
	DeadLetterTopic string
}

// DefaultOutboxConfig returns relay defaults.
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		BatchSize:       100,
		PollInterval:    500 * time.Millisecond,
		MaxRetries:      5,
		DeadLetterTopic: domain.TopicDeadLetter,
	}
}

// OutboxPublisher delivers a payload to a topic.
type OutboxPublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// ErrPublishDeferred is returned by publishers that are temporarily not
// accepting messages. The batch stops and no retry is counted.
var ErrPublishDeferred = errors.New("publish deferred")

// OutboxObserver is told the pending count after every poll and the number
// published by every batch. Optional.
type OutboxObserver interface {
	OutboxPending(n int64)
	OutboxPublishedEntries(n int)
}

// Outbox drains pending entries to a publisher. Only one relay should run
// against a database at a time; entries are read without row locks.
type Outbox struct {
	db        DB
	config    OutboxConfig
	publisher OutboxPublisher
	observer  OutboxObserver
	logger    *zap.Logger
	tracer    trace.Tracer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutbox creates a relay processor.
func NewOutbox(db DB, publisher OutboxPublisher, cfg OutboxConfig, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{
		db:        db,
		config:    cfg,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("outbox"),
	}
}

// WithObserver attaches a pending-count observer.
func (o *Outbox) WithObserver(obs OutboxObserver) *Outbox {
	o.observer = obs
	return o
}

// Start begins polling until ctx is cancelled or Stop is called.
func (o *Outbox) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})
	go o.loop(ctx)
	o.logger.Info("outbox relay started",
		zap.Int("batch_size", o.config.BatchSize),
		zap.Duration("poll_interval", o.config.PollInterval))
}

// Stop cancels polling and waits for the in-flight batch.
func (o *Outbox) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	<-o.done
	o.logger.Info("outbox relay stopped")
}

func (o *Outbox) loop(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.ProcessBatch(ctx)
			if err != nil && ctx.Err() == nil {
				o.logger.Error("outbox batch failed", zap.Error(err))
			}
			if o.observer != nil && n > 0 {
				o.observer.OutboxPublishedEntries(n)
			}
			if _, err := o.MoveToDeadLetter(ctx); err != nil && ctx.Err() == nil {
				o.logger.Error("dead-letter sweep failed", zap.Error(err))
			}
			o.reportPending(ctx)
		}
	}
}

// ProcessBatch publishes up to BatchSize pending entries, oldest first, and
// returns how many were published. A deferred publish ends the batch early.
func (o *Outbox) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := o.tracer.Start(ctx, "outbox_process_batch")
	defer span.End()

	entries, err := o.fetchPending(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("batch_size", len(entries)))

	published := 0
	for i, entry := range entries {
		if err := o.processEntry(ctx, entry); err != nil {
			if errors.Is(err, ErrPublishDeferred) {
				o.logger.Debug("publisher unavailable, deferring batch",
					zap.Int("remaining", len(entries)-i))
				break
			}
			o.logger.Warn("outbox entry not published",
				zap.Int64("id", entry.ID),
				zap.String("event_type", entry.EventType),
				zap.Error(err))
			continue
		}
		published++
	}
	return published, nil
}

func (o *Outbox) fetchPending(ctx context.Context) ([]*OutboxEntry, error) {
	rows, err := o.db.Query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       kafka_topic, kafka_key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		  AND retry_count < $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`, o.config.MaxRetries, o.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	defer rows.Close()

	var entries []*OutboxEntry
	for rows.Next() {
		e := &OutboxEntry{}
		if err := rows.Scan(
			&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Payload,
			&e.Topic, &e.Key, &e.CreatedAt, &e.RetryCount, &e.LastError,
		); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (o *Outbox) processEntry(ctx context.Context, entry *OutboxEntry) error {
	ctx, span := o.tracer.Start(ctx, "outbox_process_entry",
		trace.WithAttributes(
			attribute.Int64("entry_id", entry.ID),
			attribute.String("event_type", entry.EventType),
			attribute.String("aggregate_id", entry.AggregateID),
		))
	defer span.End()

	if err := o.publisher.Publish(ctx, entry.Topic, entry.Key, entry.Payload); err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrPublishDeferred) {
			return err
		}
		if _, uerr := o.db.Exec(ctx, `
			UPDATE outbox
			SET retry_count = retry_count + 1, last_error = $1, updated_at = NOW()
			WHERE id = $2`, err.Error(), entry.ID); uerr != nil {
			o.logger.Error("failed to record publish failure", zap.Int64("id", entry.ID), zap.Error(uerr))
		}
		return fmt.Errorf("publish: %w", err)
	}

	if _, err := o.db.Exec(ctx, `
		UPDATE outbox
		SET processed_at = NOW(), updated_at = NOW()
		WHERE id = $1`, entry.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("mark processed: %w", err)
	}

	o.logger.Debug("outbox entry published",
		zap.Int64("id", entry.ID),
		zap.String("topic", entry.Topic))
	return nil
}

// MoveToDeadLetter republishes exhausted entries to the dead-letter topic
// and marks them processed.
func (o *Outbox) MoveToDeadLetter(ctx context.Context) (int64, error) {
	rows, err := o.db.Query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       kafka_topic, kafka_key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		  AND retry_count >= $1
		ORDER BY id ASC`, o.config.MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("fetch exhausted: %w", err)
	}

	var exhausted []*OutboxEntry
	for rows.Next() {
		e := &OutboxEntry{}
		if err := rows.Scan(
			&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Payload,
			&e.Topic, &e.Key, &e.CreatedAt, &e.RetryCount, &e.LastError,
		); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan exhausted: %w", err)
		}
		exhausted = append(exhausted, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var moved int64
	for _, e := range exhausted {
		body, err := json.Marshal(map[string]any{
			"original_topic": e.Topic,
			"event_type":     e.EventType,
			"aggregate_id":   e.AggregateID,
			"payload":        e.Payload,
			"retry_count":    e.RetryCount,
			"last_error":     e.LastError,
			"created_at":     e.CreatedAt,
		})
		if err != nil {
			o.logger.Error("dead-letter envelope not encodable", zap.Int64("id", e.ID), zap.Error(err))
			continue
		}
		if err := o.publisher.Publish(ctx, o.config.DeadLetterTopic, e.Key, body); err != nil {
			if errors.Is(err, ErrPublishDeferred) {
				break
			}
			o.logger.Error("dead-letter publish failed", zap.Int64("id", e.ID), zap.Error(err))
			continue
		}
		if _, err := o.db.Exec(ctx, `UPDATE outbox SET processed_at = NOW(), updated_at = NOW() WHERE id = $1`, e.ID); err != nil {
			o.logger.Error("failed to mark dead-lettered entry", zap.Int64("id", e.ID), zap.Error(err))
			continue
		}
		moved++
	}
	return moved, nil
}

// Pending counts entries still awaiting publication.
func (o *Outbox) Pending(ctx context.Context) (int64, error) {
	var n int64
	err := o.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL`).Scan(&n)
	return n, err
}

func (o *Outbox) reportPending(ctx context.Context) {
	if o.observer == nil {
		return
	}
	n, err := o.Pending(ctx)
	if err != nil {
		return
	}
	o.observer.OutboxPending(n)
}

// CleanupProcessed deletes published entries older than the given age.
func (o *Outbox) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := o.db.Exec(ctx, `
		DELETE FROM outbox
		WHERE processed_at IS NOT NULL
		  AND processed_at < NOW() - make_interval(secs => $1)`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("cleanup outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}

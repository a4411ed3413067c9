// internal/services/analytics/consumer.go
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"platform-services/internal/common/config"
	"platform-services/internal/common/database"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/metrics"
)

const dedupeKeyPrefix = "analytics:event:"

// dedupeTTL bounds how long processed event IDs are remembered. Redelivery
// after this window double counts, which is acceptable for usage aggregates.
const dedupeTTL = 24 * time.Hour

// kafkaReader is the subset of kafka.Reader the consumer needs; tests swap in
// a fake.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer drains the platform event topic into hourly Postgres aggregates.
type Consumer struct {
	reader kafkaReader
	store  Store
	redis  *database.RedisClient
	logger logger.Logger
}

func NewConsumer(cfg config.KafkaConfig, store Store, redisClient *database.RedisClient, log logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		Dialer:         &kafka.Dialer{Timeout: config.GetDuration(cfg.DialTimeout)},
		MinBytes:       1,
		MaxBytes:       10 * 1024 * 1024,
		CommitInterval: 0, // explicit commits
	})
	return &Consumer{
		reader: reader,
		store:  store,
		redis:  redisClient,
		logger: log,
	}
}

// Run consumes until the context is cancelled. Every message is committed,
// including malformed ones; a poison event must never block the partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		c.process(ctx, msg.Value)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithError(err).Warn("commit failed, message may be redelivered")
		}
	}
}

func (c *Consumer) process(ctx context.Context, value []byte) {
	var env events.Envelope
	if err := json.Unmarshal(value, &env); err != nil || env.ID == "" || env.Type == "" {
		c.logger.WithFields(map[string]interface{}{
			"payload_size": len(value),
		}).Warn("skipping malformed event")
		metrics.EventsConsumed.WithLabelValues("unknown", "malformed").Inc()
		return
	}

	fresh, err := c.markProcessed(ctx, env.ID)
	if err != nil {
		// Dedupe store unavailable; prefer a possible double count over
		// losing the event.
		c.logger.WithError(err).Warn("event dedupe check failed")
	} else if !fresh {
		metrics.EventsConsumed.WithLabelValues(env.Type, "duplicate").Inc()
		return
	}

	bucket := env.OccurredAt.UTC().Truncate(time.Hour)
	if env.OccurredAt.IsZero() {
		bucket = time.Now().UTC().Truncate(time.Hour)
	}

	if err := c.store.RecordEventCount(ctx, env.Type, bucket); err != nil {
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"event_type": env.Type,
		}).Error("failed to record event count")
		metrics.EventsConsumed.WithLabelValues(env.Type, "error").Inc()
		return
	}
	if env.UserID != "" {
		if err := c.store.RecordUsage(ctx, env.UserID, env.Type, bucket); err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"event_type": env.Type,
				"user_id":    env.UserID,
			}).Error("failed to record usage")
			metrics.EventsConsumed.WithLabelValues(env.Type, "error").Inc()
			return
		}
	}

	metrics.EventsConsumed.WithLabelValues(env.Type, "ok").Inc()
}

// markProcessed records the event ID and reports whether it was new.
func (c *Consumer) markProcessed(ctx context.Context, eventID string) (bool, error) {
	return c.redis.GetClient().SetNX(ctx, dedupeKeyPrefix+eventID, 1, dedupeTTL).Result()
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

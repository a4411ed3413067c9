// Package events publishes platform events to the Kafka event bus.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"platform-services/internal/common/config"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/metrics"
)

// Event types emitted by the platform services.
const (
	TypeUserRegistered   = "user.registered"
	TypeDocumentUploaded = "document.uploaded"
	TypeDocumentReviewed = "document.reviewed"
	TypeDocumentDeleted  = "document.deleted"
	TypeVoiceUtterance   = "voice.utterance"
	TypePermissionDenied = "permission.denied"
)

// Envelope is the wire format for every platform event.
type Envelope struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	UserID     string                 `json:"userId,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Publisher is implemented by anything that can emit platform events.
// Services call Emit; failures never propagate to the request path.
type Publisher interface {
	Emit(ctx context.Context, eventType, userID string, payload map[string]interface{})
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by user id.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, log logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: log.WithFields(map[string]interface{}{"component": "event_publisher"}),
	}
}

// Emit publishes one event. Best effort: on failure it logs and counts, the
// caller's request still succeeds.
func (p *KafkaPublisher) Emit(ctx context.Context, eventType, userID string, payload map[string]interface{}) {
	env := Envelope{
		ID:         uuid.New().String(),
		Type:       eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	body, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("event marshal failed", map[string]interface{}{
			"eventType": eventType,
			"error":     err.Error(),
		})
		metrics.EventsPublished.WithLabelValues(eventType, "failed").Inc()
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(userID),
		Value: body,
	})
	if err != nil {
		p.logger.Warn("event publish failed", map[string]interface{}{
			"eventType": eventType,
			"eventId":   env.ID,
			"error":     err.Error(),
		})
		metrics.EventsPublished.WithLabelValues(eventType, "failed").Inc()
		return
	}

	metrics.EventsPublished.WithLabelValues(eventType, "ok").Inc()
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events. Used in tests and when the bus is disabled.
type NopPublisher struct{}

func (NopPublisher) Emit(ctx context.Context, eventType, userID string, payload map[string]interface{}) {
}

func (NopPublisher) Close() error { return nil }

// internal/services/analytics/consumer_test.go
package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-services/internal/common/database"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
)

type fakeReader struct {
	messages  []kafka.Message
	committed int
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.messages) == 0 {
		return kafka.Message{}, context.Canceled
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return msg, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.committed += len(msgs)
	return nil
}

func (f *fakeReader) Close() error { return nil }

type countingStore struct {
	mu     sync.Mutex
	usage  map[string]int
	counts map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{usage: make(map[string]int), counts: make(map[string]int)}
}

func (s *countingStore) RecordUsage(_ context.Context, userID, eventType string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[userID+"/"+eventType]++
	return nil
}

func (s *countingStore) RecordEventCount(_ context.Context, eventType string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[eventType]++
	return nil
}

func envelopeMessage(t *testing.T, id, eventType, userID string) kafka.Message {
	t.Helper()
	body, err := json.Marshal(events.Envelope{
		ID:         id,
		Type:       eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return kafka.Message{Value: body}
}

func newTestConsumer(t *testing.T, reader *fakeReader, store Store) *Consumer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := &database.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { client.Close() })
	return &Consumer{
		reader: reader,
		store:  store,
		redis:  client,
		logger: logger.NewNoOpLogger(),
	}
}

func TestConsumerAggregatesEvents(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		envelopeMessage(t, "evt-1", events.TypeDocumentUploaded, "user-1"),
		envelopeMessage(t, "evt-2", events.TypeDocumentUploaded, "user-1"),
		envelopeMessage(t, "evt-3", events.TypeUserRegistered, "user-2"),
	}}
	store := newCountingStore()
	c := newTestConsumer(t, reader, store)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 2, store.counts[events.TypeDocumentUploaded])
	assert.Equal(t, 1, store.counts[events.TypeUserRegistered])
	assert.Equal(t, 2, store.usage["user-1/"+events.TypeDocumentUploaded])
	assert.Equal(t, 3, reader.committed)
}

func TestConsumerDeduplicatesRedelivery(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		envelopeMessage(t, "evt-1", events.TypeVoiceUtterance, "user-1"),
		envelopeMessage(t, "evt-1", events.TypeVoiceUtterance, "user-1"),
	}}
	store := newCountingStore()
	c := newTestConsumer(t, reader, store)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 1, store.counts[events.TypeVoiceUtterance], "redelivered event must not double count")
	assert.Equal(t, 2, reader.committed, "duplicates are still committed")
}

func TestConsumerSkipsMalformedEvents(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Value: []byte("not json at all")},
		{Value: []byte(`{"type":""}`)},
		envelopeMessage(t, "evt-1", events.TypePermissionDenied, "user-1"),
	}}
	store := newCountingStore()
	c := newTestConsumer(t, reader, store)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 1, store.counts[events.TypePermissionDenied])
	assert.Equal(t, 3, reader.committed, "malformed events must not block the partition")
}

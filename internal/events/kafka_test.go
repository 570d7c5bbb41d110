package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisherEncodesEnvelope(t *testing.T) {
	writer := &recordingWriter{}
	publisher := &KafkaPublisher{writer: writer, log: zap.NewNop()}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	err := publisher.Publish(context.Background(), Event{
		Type:       EventNFTDelivered,
		Key:        "razorpay:pay_R1",
		OccurredAt: at,
		Payload:    map[string]string{"asset_id": "7"},
	})
	require.NoError(t, err)
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	assert.Equal(t, "razorpay:pay_R1", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, EventNFTDelivered, string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, EventNFTDelivered, decoded["type"])
	assert.Equal(t, "7", decoded["payload"].(map[string]any)["asset_id"])
}

func TestKafkaPublisherReturnsWriteError(t *testing.T) {
	publisher := &KafkaPublisher{writer: &recordingWriter{err: errors.New("broker down")}, log: zap.NewNop()}
	assert.Error(t, publisher.Publish(context.Background(), Event{Type: EventPaymentCompleted}))
	assert.NoError(t, NoopPublisher{}.Publish(context.Background(), Event{}))
}

//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/weather-pipeline/internal/adapter/kafka"
	"github.com/couchcryptid/weather-pipeline/internal/config"
	"github.com/couchcryptid/weather-pipeline/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testQualityTopic = "test-weather-quality-events"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-broker Kafka container and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err, "resolve kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "resolve controller")

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestQualityEventRoundTrip publishes a quality event through the writer and
// reads it back, verifying the key, payload, and headers.
func TestQualityEventRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testQualityTopic)

	cfg := &config.Config{
		KafkaBrokers:      []string{broker},
		KafkaQualityTopic: testQualityTopic,
	}

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	emitted := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)
	event := domain.QualityEvent{
		ID:          "evt-1",
		BatchID:     "20260825_143000",
		Passed:      false,
		TotalRows:   4,
		ValidRows:   3,
		InvalidRows: 1,
		ReasonCounts: map[domain.Reason]int{
			domain.ReasonBadTimestamps: 1,
		},
		EmittedAt: emitted,
	}
	require.NoError(t, writer.Emit(ctx, event))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testQualityTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from quality topic")

	assert.Equal(t, []byte("20260825_143000"), msg.Key)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "false", headers["passed"])
	assert.Equal(t, "2026-08-25T15:00:00Z", headers["emitted_at"])

	var decoded domain.QualityEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.TotalRows, decoded.TotalRows)
	assert.Equal(t, 1, decoded.ReasonCounts[domain.ReasonBadTimestamps])
	assert.True(t, decoded.EmittedAt.Equal(emitted))
}

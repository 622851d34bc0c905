//go:build integration

package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/kjstillabower/commute-dashboard/internal/models"
	"github.com/kjstillabower/commute-dashboard/internal/service"
)

const testTopic = "test-commute-alerts"

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestWriter_PublishRoundTrip publishes a snapshot and reads it back from the topic.
func TestWriter_PublishRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	w := NewWriter([]string{broker}, testTopic, "100479", nil)
	t.Cleanup(func() { _ = w.Close() })

	snap := service.AlertSnapshot{
		Alerts: []models.Alert{{
			EntityID:      "a-1",
			Effect:        models.EffectNoService,
			SeverityLevel: models.SeveritySevere,
		}},
		FetchedAt: time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	require.NoError(t, w.Publish(ctx, snap))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from topic")

	assert.Equal(t, "100479", string(msg.Key))
	var got service.AlertSnapshot
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, models.SeveritySevere, got.Alerts[0].SeverityLevel)
	assert.True(t, got.FetchedAt.Equal(snap.FetchedAt))
}

// Package publish writes processed alert snapshots to Kafka so other consumers can
// follow route disruptions without polling the transit feed themselves.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kjstillabower/commute-dashboard/internal/service"
)

// Writer publishes alert snapshots to a Kafka topic. It implements service.AlertSink.
type Writer struct {
	writer  *kafkago.Writer
	routeID string
	logger  *zap.Logger
}

// NewWriter creates a producer for topic. Messages are keyed by routeID so a route's
// snapshots stay ordered within one partition.
func NewWriter(brokers []string, topic, routeID string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, routeID: routeID, logger: logger}
}

// Publish writes one snapshot.
func (w *Writer) Publish(ctx context.Context, snap service.AlertSnapshot) error {
	msg, err := serializeToMessage(w.routeID, snap)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert snapshot: %w", err)
	}
	w.logger.Debug("alert snapshot published",
		zap.String("route_id", w.routeID),
		zap.Int("alerts", len(snap.Alerts)),
	)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a snapshot into a Kafka message.
func serializeToMessage(routeID string, snap service.AlertSnapshot) (kafkago.Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(routeID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "route_id", Value: []byte(routeID)},
			{Key: "fetched_at", Value: []byte(snap.FetchedAt.Format(time.RFC3339))},
		},
	}, nil
}

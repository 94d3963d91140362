// Package kafka publishes marker placements for rendering collaborators.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/station-globe/internal/config"
	"github.com/couchcryptid/station-globe/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces placement messages to a Kafka topic.
// It implements pipeline.PlacementLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured placement topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaPlacementTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes placements in a single WriteMessages
// call. Messages are keyed by station so every surface's placement of a
// station lands on the same partition.
func (w *Writer) LoadBatch(ctx context.Context, placements []domain.Placement) error {
	if len(placements) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(placements))
	for i := range placements {
		msg, err := serializeToMessage(placements[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d placements: %w", len(msgs), err)
	}
	w.logger.Debug("placements published", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Placement into a Kafka message.
func serializeToMessage(p domain.Placement) (kafkago.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize placement: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(p.StationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "surface_id", Value: []byte(p.SurfaceID)},
			{Key: "placed_at", Value: []byte(p.PlacedAt.Format(time.RFC3339))},
		},
	}, nil
}

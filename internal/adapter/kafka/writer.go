package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/geocode-backfill/internal/domain"
)

// Publisher announces committed coordinate updates on a Kafka topic so
// downstream search indexes can refresh the affected rows.
type Publisher struct {
	writer   *kafkago.Writer
	provider string
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewPublisher creates a Kafka producer for the updates topic.
func NewPublisher(brokers []string, topic, provider string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{
		writer:   w,
		provider: provider,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
	}
}

// Publish writes one message per update in a single WriteMessages call.
// Messages are keyed by row id so updates to a row stay ordered.
func (p *Publisher) Publish(ctx context.Context, updates []domain.CoordinateUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	now := p.clock.Now().UTC()
	msgs := make([]kafkago.Message, len(updates))
	for i := range updates {
		msg, err := serializeToMessage(updates[i], p.provider, now)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish coordinate updates: %w", err)
	}
	p.logger.Debug("published coordinate updates", "count", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func serializeToMessage(u domain.CoordinateUpdate, provider string, at time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize coordinate update: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(u.ID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "provider", Value: []byte(provider)},
			{Key: "geocoded_at", Value: []byte(at.Format(time.RFC3339))},
		},
	}, nil
}

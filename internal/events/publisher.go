// Package events mirrors notification events onto a Kafka topic so other
// Bloomence services (analytics, the care dashboard) can consume them without
// coupling to this service's database.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Record is the wire shape of a published event. Records are keyed by UID so
// a user's events stay ordered within a partition.
type Record struct {
	UID     string          `json:"uid"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Publisher produces notification events to Kafka.
type Publisher struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewPublisher connects a producer for the given topic. Callers skip
// construction entirely when no brokers are configured; the service treats a
// nil stream as disabled.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, logger: logger}, nil
}

// Publish produces one event record. The produce is asynchronous: a broker
// level failure is logged by the callback, not returned, because event
// mirroring must never block or fail the notification pipeline.
func (p *Publisher) Publish(ctx context.Context, uid, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(Record{UID: uid, Event: event, Payload: body, At: time.Now().UTC()})
	if err != nil {
		return err
	}

	rec := &kgo.Record{Key: []byte(uid), Value: value}
	p.client.Produce(ctx, rec, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("event publish failed",
				"event", event,
				"uid", uid,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes pending records and releases the client.
func (p *Publisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return err
	}
	p.client.Close()
	return nil
}

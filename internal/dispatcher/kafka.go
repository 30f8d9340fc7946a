package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/PADAS/gundi-integration-inreach/internal/kafka/consumer"
)

// SyncProducer captures the producer behaviour the DLQ publisher needs.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// KafkaHandler returns a consumer.Handler that feeds broker records into
// the dispatcher and binds the offset commit to terminal handling.
func KafkaHandler(d *Dispatcher, cons *consumer.Consumer) consumer.Handler {
	return func(ctx context.Context, rec *consumer.Record) error {
		if d == nil || rec == nil {
			return nil
		}

		commit := func(context.Context) error { return nil }
		if cons != nil {
			commit = func(c context.Context) error {
				return cons.Commit(c, rec)
			}
		}

		d.HandleRecord(ctx, rec.Key, rec.Value, commit)
		return nil
	}
}

// KafkaDLQ writes DLQ records to the configured topic.
type KafkaDLQ struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewKafkaDLQ constructs a Kafka-backed DLQ publisher.
func NewKafkaDLQ(prod SyncProducer, topic string, logger zerolog.Logger) *KafkaDLQ {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &KafkaDLQ{producer: prod, topic: topic, logger: logger}
}

// PublishDLQ implements DLQPublisher.
func (p *KafkaDLQ) PublishDLQ(_ context.Context, record DLQRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("dispatcher dlq: marshal record: %w", err)
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}
	if err := p.producer.PublishSync(p.topic, []byte(record.IntegrationID), headers, payload); err != nil {
		return fmt.Errorf("dispatcher dlq: publish record: %w", err)
	}

	p.logger.Warn().
		Str("integration_id", record.IntegrationID).
		Str("failure_type", string(record.FailureType)).
		Int("attempts", record.Attempts).
		Msg("push request dead-lettered")
	return nil
}

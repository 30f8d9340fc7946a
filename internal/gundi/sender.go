package gundi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"
)

var errProducerNotInitialised = errors.New("gundi sender: producer not initialised")

// SyncProducer captures the subset of producer behaviour the sender needs.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// Sender delivers normalized data to the event-routing platform.
// Observations must be sent before messages for any batch so that
// downstream subjects and sources exist when messages reference them.
type Sender interface {
	SendObservations(ctx context.Context, observations []Observation, integrationID string) error
	SendMessages(ctx context.Context, messages []Message, integrationID string) error
}

// KafkaSender publishes normalized batches to per-stream topics through
// the shared producer.
type KafkaSender struct {
	producer          SyncProducer
	observationsTopic string
	messagesTopic     string
	logger            zerolog.Logger
}

// NewKafkaSender constructs a KafkaSender.
func NewKafkaSender(prod SyncProducer, observationsTopic, messagesTopic string, logger zerolog.Logger) *KafkaSender {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &KafkaSender{
		producer:          prod,
		observationsTopic: observationsTopic,
		messagesTopic:     messagesTopic,
		logger:            logger,
	}
}

type observationBatch struct {
	IntegrationID string        `json:"integration_id"`
	Observations  []Observation `json:"observations"`
}

type messageBatch struct {
	IntegrationID string    `json:"integration_id"`
	Messages      []Message `json:"messages"`
}

// SendObservations publishes one observation batch keyed by integration.
func (s *KafkaSender) SendObservations(_ context.Context, observations []Observation, integrationID string) error {
	if s == nil || s.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(observationBatch{IntegrationID: integrationID, Observations: observations})
	if err != nil {
		return fmt.Errorf("gundi sender: marshal observations: %w", err)
	}

	if err := s.publish(s.observationsTopic, integrationID, payload); err != nil {
		return fmt.Errorf("gundi sender: publish observations: %w", err)
	}

	s.logger.Debug().
		Str("integration_id", integrationID).
		Int("count", len(observations)).
		Msg("observations sent to gundi")
	return nil
}

// SendMessages publishes one message batch keyed by integration.
func (s *KafkaSender) SendMessages(_ context.Context, messages []Message, integrationID string) error {
	if s == nil || s.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(messageBatch{IntegrationID: integrationID, Messages: messages})
	if err != nil {
		return fmt.Errorf("gundi sender: marshal messages: %w", err)
	}

	if err := s.publish(s.messagesTopic, integrationID, payload); err != nil {
		return fmt.Errorf("gundi sender: publish messages: %w", err)
	}

	s.logger.Debug().
		Str("integration_id", integrationID).
		Int("count", len(messages)).
		Msg("messages sent to gundi")
	return nil
}

func (s *KafkaSender) publish(topic, integrationID string, payload []byte) error {
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}
	return s.producer.PublishSync(topic, []byte(integrationID), headers, payload)
}

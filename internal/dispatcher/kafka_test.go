package dispatcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/PADAS/gundi-integration-inreach/internal/dispatcher"
)

type fakeSyncProducer struct {
	err     error
	topic   string
	key     []byte
	headers map[string][]byte
	payload []byte
}

func (f *fakeSyncProducer) PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	f.topic = topic
	f.key = append([]byte(nil), key...)
	f.headers = headers
	f.payload = append([]byte(nil), payload...)
	return f.err
}

func TestKafkaDLQPublishesRecord(t *testing.T) {
	prod := &fakeSyncProducer{}
	dlq := dispatcher.NewKafkaDLQ(prod, "dlq-topic", zerolog.Nop())
	if dlq == nil {
		t.Fatalf("expected DLQ instance")
	}

	record := dispatcher.DLQRecord{
		MessageID:     "msg-1",
		IntegrationID: "int-1",
		FailureType:   dispatcher.FailureTypeTransient,
		Attempts:      3,
		LastError:     "inreach: service_unreachable: The InReach service is currently unavailable.",
	}
	if err := dlq.PublishDLQ(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if prod.topic != "dlq-topic" {
		t.Fatalf("expected dlq-topic, got %s", prod.topic)
	}
	if string(prod.key) != "int-1" {
		t.Fatalf("expected record keyed by integration, got %s", string(prod.key))
	}
	if ct := prod.headers["content-type"]; string(ct) != "application/json" {
		t.Fatalf("expected content-type header, got %s", string(ct))
	}

	var decoded dispatcher.DLQRecord
	if err := json.Unmarshal(prod.payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded.Attempts != 3 || decoded.FailureType != dispatcher.FailureTypeTransient {
		t.Fatalf("unexpected DLQ payload %+v", decoded)
	}
}

func TestKafkaDLQPropagatesProducerError(t *testing.T) {
	expectedErr := errors.New("broker down")
	prod := &fakeSyncProducer{err: expectedErr}
	dlq := dispatcher.NewKafkaDLQ(prod, "dlq-topic", zerolog.Nop())

	if err := dlq.PublishDLQ(context.Background(), dispatcher.DLQRecord{IntegrationID: "int-1"}); !errors.Is(err, expectedErr) {
		t.Fatalf("expected producer error, got %v", err)
	}
}

func TestNewKafkaDLQRequiresProducer(t *testing.T) {
	if dlq := dispatcher.NewKafkaDLQ(nil, "dlq-topic", zerolog.Nop()); dlq != nil {
		t.Fatalf("expected nil DLQ without a producer")
	}
}

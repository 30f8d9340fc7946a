package activity

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PADAS/gundi-integration-inreach/internal/inreach"
)

// Levels for activity events.
const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Event is one structured activity entry describing an action outcome.
type Event struct {
	ID            string         `json:"id"`
	IntegrationID string         `json:"integration_id"`
	Action        string         `json:"action"`
	Level         string         `json:"level"`
	Title         string         `json:"title"`
	Details       map[string]any `json:"details,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Publisher captures the producer behaviour the logger needs.
type Publisher interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// Logger records activity events: every entry is mirrored to the service
// log and, when a producer is configured, published to the activity topic.
type Logger struct {
	producer Publisher
	topic    string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewLogger constructs an activity logger. A nil producer yields a
// log-only recorder.
func NewLogger(prod Publisher, topic string, logger zerolog.Logger) *Logger {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Logger{
		producer: prod,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
	}
}

// Success records a successful action outcome.
func (l *Logger) Success(ctx context.Context, integrationID, action, title string, details map[string]any) {
	l.record(ctx, LevelSuccess, integrationID, action, title, details)
}

// Error records a failed action outcome.
func (l *Logger) Error(ctx context.Context, integrationID, action, title string, details map[string]any) {
	l.record(ctx, LevelError, integrationID, action, title, details)
}

func (l *Logger) record(_ context.Context, level, integrationID, action, title string, details map[string]any) {
	if l == nil {
		return
	}

	event := Event{
		ID:            uuid.NewString(),
		IntegrationID: integrationID,
		Action:        action,
		Level:         level,
		Title:         title,
		Details:       details,
		Timestamp:     l.now().UTC(),
	}

	logEvent := l.logger.Info()
	if level == LevelError {
		logEvent = l.logger.Error()
	}
	logEvent.
		Str("integration_id", integrationID).
		Str("action", action).
		Str("title", title).
		Fields(details).
		Msg("activity recorded")

	if l.producer == nil || l.topic == "" {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		l.logger.Error().Err(err).Msg("activity logger: marshal event")
		return
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}
	if err := l.producer.PublishSync(l.topic, []byte(integrationID), headers, payload); err != nil {
		l.logger.Error().Err(err).Msg("activity logger: publish event")
	}
}

// ErrorDetails extracts diagnostic fields from a failure, including the
// captured provider response when one is attached.
func ErrorDetails(err error) map[string]any {
	if err == nil {
		return nil
	}

	details := map[string]any{
		"error": err.Error(),
	}

	var clientErr *inreach.Error
	if errors.As(err, &clientErr) {
		details["error_kind"] = string(clientErr.Kind)
		details["error"] = clientErr.Message
		if resp := clientErr.Response; resp != nil {
			details["server_response_status"] = resp.StatusCode
			details["server_response_body"] = resp.Body
		}
	}
	return details
}

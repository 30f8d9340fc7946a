package webhooks

import (
	"context"
	"errors"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/PADAS/gundi-integration-inreach/internal/gundi"
)

// Config toggles which normalized streams a delivery produces.
type Config struct {
	IncludeMessages     bool
	IncludeObservations bool
}

// DefaultConfig enables both streams.
func DefaultConfig() Config {
	return Config{IncludeMessages: true, IncludeObservations: true}
}

// ConfigFromIntegration resolves the toggle config from an integration
// record, defaulting unset toggles to true.
func ConfigFromIntegration(integration *gundi.Integration) Config {
	cfg := DefaultConfig()
	if integration == nil || integration.WebhookConfiguration == nil {
		return cfg
	}
	if include := integration.WebhookConfiguration.IncludeMessages; include != nil {
		cfg.IncludeMessages = *include
	}
	if include := integration.WebhookConfiguration.IncludeObservations; include != nil {
		cfg.IncludeObservations = *include
	}
	return cfg
}

// Result summarises one processed delivery.
type Result struct {
	TotalObservations int `json:"total_observations"`
	TotalMessages     int `json:"total_messages"`
}

// Handler normalizes inbound event batches and hands them downstream.
type Handler struct {
	sender gundi.Sender
	logger zerolog.Logger
}

// NewHandler constructs a webhook handler.
func NewHandler(sender gundi.Sender, logger zerolog.Logger) (*Handler, error) {
	if sender == nil {
		return nil, errors.New("webhooks: sender dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Handler{sender: sender, logger: logger}, nil
}

// Handle transforms every event of the batch, in input order, into the
// streams enabled by cfg and dispatches them downstream. Observations go
// first so that subjects and sources exist before messages reference
// them. Empty lists produce no downstream call.
func (h *Handler) Handle(ctx context.Context, payload *EventPayload, cfg Config, integrationID string) (*Result, error) {
	if payload == nil {
		return nil, errors.New("webhooks: payload is required")
	}

	var messages []gundi.Message
	var observations []gundi.Observation
	for _, event := range payload.Events {
		if cfg.IncludeMessages {
			messages = append(messages, BuildMessage(event))
		}
		if cfg.IncludeObservations {
			observations = append(observations, BuildObservation(event))
		}
	}

	if len(observations) > 0 {
		if err := h.sender.SendObservations(ctx, observations, integrationID); err != nil {
			return nil, err
		}
	}
	if len(messages) > 0 {
		if err := h.sender.SendMessages(ctx, messages, integrationID); err != nil {
			return nil, err
		}
	}

	h.logger.Info().
		Str("integration_id", integrationID).
		Int("total_observations", len(observations)).
		Int("total_messages", len(messages)).
		Msg("inreach webhook processed")

	return &Result{TotalObservations: len(observations), TotalMessages: len(messages)}, nil
}

// BuildMessage maps one event to the normalized communication shape.
func BuildMessage(event Event) gundi.Message {
	addresses := make([]string, 0, len(event.Addresses))
	for _, addr := range event.Addresses {
		addresses = append(addresses, addr.Address)
	}

	additional := map[string]any{
		"message_code":        event.MessageCode,
		"status":              event.Status.Fields(),
		"recipient_addresses": addresses,
	}
	mergePointFields(additional, event.Point)

	return gundi.Message{
		Sender:     event.IMEI,
		Recipients: []string{},
		Text:       event.FreeText,
		RecordedAt: event.Timestamp.Time,
		Location: gundi.Location{
			Latitude:  event.Point.Latitude,
			Longitude: event.Point.Longitude,
		},
		Additional: additional,
	}
}

// BuildObservation maps one event to the normalized telemetry shape.
func BuildObservation(event Event) gundi.Observation {
	additional := event.Status.Fields()
	mergePointFields(additional, event.Point)

	return gundi.Observation{
		Source:      event.IMEI,
		Type:        gundi.ObservationTypeGPSRadio,
		SubjectType: gundi.SubjectTypeRanger,
		SourceName:  event.IMEI,
		RecordedAt:  event.Timestamp.Time,
		Location: gundi.GeoPoint{
			Lat: event.Point.Latitude,
			Lon: event.Point.Longitude,
		},
		Additional: additional,
	}
}

// mergePointFields copies every point field except the coordinates, which
// live in the top-level location.
func mergePointFields(dst map[string]any, point EventPoint) {
	dst["altitude"] = point.Altitude
	dst["gpsFix"] = point.GPSFix
	dst["course"] = point.Course
	dst["speed"] = point.Speed
}

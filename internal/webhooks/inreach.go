package webhooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Message codes observed on the IPC Outbound feed. Others exist, see the
// Garmin Outbound IPC documentation.
const (
	CodePositionReport       = 0
	CodeLocateResponse       = 2
	CodeFreeTextMessage      = 3
	CodeDeclareSOS           = 4
	CodeConfirmSOS           = 6
	CodeCancelSOS            = 7
	CodeReferencePoint       = 8
	CodeCheckIn              = 9
	CodeStartTrack           = 10
	CodeTrackIntervalChanged = 11
	CodeStopTrack            = 12
	CodeMapShare             = 17
	CodeMailCheck            = 20
)

// lowBatteryLabels maps the raw lowBattery status to its display label.
// Values outside the table yield no label, never an error.
var lowBatteryLabels = map[int]string{
	0: "ok",
	1: "low",
	2: "not indicated",
}

// Timestamp decodes the timeStamp field, which the provider delivers
// either as epoch milliseconds or as an ISO-8601 string.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errors.New("timestamp is required")
	}

	if raw[0] == '"' {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if parsed, err := time.Parse(layout, value); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		return fmt.Errorf("unsupported timestamp format: %q", value)
	}

	millis, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("unsupported timestamp value: %s", raw)
	}
	t.Time = time.UnixMilli(millis).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// EventAddress is one recipient address attached to an event.
type EventAddress struct {
	Address string `json:"address"`
}

// EventPoint carries the GPS fix delivered with an event.
type EventPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  int     `json:"altitude"`
	GPSFix    int     `json:"gpsFix"`
	Course    int     `json:"course"`
	Speed     int     `json:"speed"`
}

// EventStatus carries device status flags. LowBatteryLabel is derived at
// decode time from LowBattery and is empty for unknown values.
type EventStatus struct {
	Autonomous      int    `json:"autonomous"`
	LowBattery      int    `json:"lowBattery"`
	IntervalChange  int    `json:"intervalChange"`
	ResetDetected   int    `json:"resetDetected"`
	LowBatteryLabel string `json:"low_battery_label,omitempty"`
}

func (s *EventStatus) UnmarshalJSON(data []byte) error {
	type plain EventStatus
	var aux plain
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	aux.LowBatteryLabel = lowBatteryLabels[aux.LowBattery]
	*s = EventStatus(aux)
	return nil
}

// Fields returns the status as a flat map. The label key is always
// present and nil when no label applies, matching the downstream schema.
func (s EventStatus) Fields() map[string]any {
	var label any
	if s.LowBatteryLabel != "" {
		label = s.LowBatteryLabel
	}
	return map[string]any{
		"autonomous":        s.Autonomous,
		"lowBattery":        s.LowBattery,
		"intervalChange":    s.IntervalChange,
		"resetDetected":     s.ResetDetected,
		"low_battery_label": label,
	}
}

// Event is one inbound device event. Immutable once parsed.
type Event struct {
	IMEI        string         `json:"imei"`
	MessageCode int            `json:"messageCode"`
	FreeText    string         `json:"freeText,omitempty"`
	Timestamp   Timestamp      `json:"timeStamp"`
	Addresses   []EventAddress `json:"addresses"`
	Point       EventPoint     `json:"point"`
	Status      EventStatus    `json:"status"`
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var aux struct {
		IMEI        *string        `json:"imei"`
		MessageCode *int           `json:"messageCode"`
		FreeText    string         `json:"freeText"`
		Timestamp   *Timestamp     `json:"timeStamp"`
		Addresses   []EventAddress `json:"addresses"`
		Point       *EventPoint    `json:"point"`
		Status      *EventStatus   `json:"status"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch {
	case aux.IMEI == nil || *aux.IMEI == "":
		return errors.New("imei is required")
	case aux.MessageCode == nil:
		return errors.New("messageCode is required")
	case aux.Timestamp == nil:
		return errors.New("timeStamp is required")
	case aux.Point == nil:
		return errors.New("point is required")
	case aux.Status == nil:
		return errors.New("status is required")
	}

	e.IMEI = *aux.IMEI
	e.MessageCode = *aux.MessageCode
	e.FreeText = aux.FreeText
	e.Timestamp = *aux.Timestamp
	e.Addresses = aux.Addresses
	e.Point = *aux.Point
	e.Status = *aux.Status
	return nil
}

// EventPayload is one webhook delivery: a versioned batch of events.
type EventPayload struct {
	Version string  `json:"Version"`
	Events  []Event `json:"Events"`
}

// ParsePayload decodes and validates one webhook delivery. A malformed
// event rejects the whole batch; the dispatch layer owns redelivery.
func ParsePayload(data []byte) (*EventPayload, error) {
	var payload rawPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("webhooks: invalid inreach payload: %w", err)
	}
	if payload.Version == nil || *payload.Version == "" {
		return nil, errors.New("webhooks: invalid inreach payload: Version is required")
	}
	if payload.Events == nil {
		return nil, errors.New("webhooks: invalid inreach payload: Events is required")
	}
	return &EventPayload{Version: *payload.Version, Events: payload.Events}, nil
}

type rawPayload struct {
	Version *string `json:"Version"`
	Events  []Event `json:"Events"`
}

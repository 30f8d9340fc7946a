package webhooks_test

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/PADAS/gundi-integration-inreach/internal/webhooks"
)

const sampleEvent = `{
	"imei": "300434030412345",
	"messageCode": 3,
	"freeText": "On my way.",
	"timeStamp": 1767182400000,
	"addresses": [{"address": "ops@example.com"}],
	"point": {"latitude": -1.25, "longitude": 36.75, "altitude": 1670, "gpsFix": 2, "course": 90, "speed": 5},
	"status": {"autonomous": 0, "lowBattery": 1, "intervalChange": 0, "resetDetected": 0}
}`

func TestParsePayload(t *testing.T) {
	payload, err := webhooks.ParsePayload([]byte(`{"Version": "2.0", "Events": [` + sampleEvent + `]}`))
	if err != nil {
		t.Fatalf("expected valid payload: %v", err)
	}
	if payload.Version != "2.0" {
		t.Fatalf("unexpected version: %q", payload.Version)
	}
	if len(payload.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(payload.Events))
	}

	event := payload.Events[0]
	if event.IMEI != "300434030412345" {
		t.Fatalf("unexpected imei: %q", event.IMEI)
	}
	if event.MessageCode != webhooks.CodeFreeTextMessage {
		t.Fatalf("unexpected message code: %d", event.MessageCode)
	}
	if event.FreeText != "On my way." {
		t.Fatalf("unexpected free text: %q", event.FreeText)
	}
	if len(event.Addresses) != 1 || event.Addresses[0].Address != "ops@example.com" {
		t.Fatalf("unexpected addresses: %v", event.Addresses)
	}
	if event.Point.Latitude != -1.25 || event.Point.Longitude != 36.75 {
		t.Fatalf("unexpected point: %+v", event.Point)
	}
}

func TestParsePayloadRequiresVersionAndEvents(t *testing.T) {
	if _, err := webhooks.ParsePayload([]byte(`{"Events": []}`)); err == nil {
		t.Fatalf("expected missing Version to reject the payload")
	}
	if _, err := webhooks.ParsePayload([]byte(`{"Version": "2.0"}`)); err == nil {
		t.Fatalf("expected missing Events to reject the payload")
	}

	// Empty batches are valid; only absent ones are rejected.
	payload, err := webhooks.ParsePayload([]byte(`{"Version": "2.0", "Events": []}`))
	if err != nil {
		t.Fatalf("expected empty batch to parse: %v", err)
	}
	if len(payload.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(payload.Events))
	}
}

func TestParsePayloadRejectsWholeBatch(t *testing.T) {
	broken := `{"Version": "2.0", "Events": [` + sampleEvent + `, {"messageCode": 0}]}`
	if _, err := webhooks.ParsePayload([]byte(broken)); err == nil {
		t.Fatalf("expected one malformed event to reject the whole batch")
	}
}

func TestEventRequiredFields(t *testing.T) {
	cases := map[string]string{
		"imei":        strings.Replace(sampleEvent, `"imei": "300434030412345",`, "", 1),
		"messageCode": strings.Replace(sampleEvent, `"messageCode": 3,`, "", 1),
		"timeStamp":   strings.Replace(sampleEvent, `"timeStamp": 1767182400000,`, "", 1),
		"point":       strings.Replace(sampleEvent, `"point": {"latitude": -1.25, "longitude": 36.75, "altitude": 1670, "gpsFix": 2, "course": 90, "speed": 5},`, "", 1),
		"status":      strings.Replace(sampleEvent, `"status": {"autonomous": 0, "lowBattery": 1, "intervalChange": 0, "resetDetected": 0}`, `"status": null`, 1),
	}

	for field, body := range cases {
		_, err := webhooks.ParsePayload([]byte(`{"Version": "2.0", "Events": [` + body + `]}`))
		if err == nil {
			t.Fatalf("expected missing %s to be rejected", field)
		}
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("expected error to name %s, got %v", field, err)
		}
	}
}

func TestTimestampFormats(t *testing.T) {
	want := time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC)

	var fromMillis webhooks.Timestamp
	if err := fromMillis.UnmarshalJSON([]byte("1767182400000")); err != nil {
		t.Fatalf("expected millis to parse: %v", err)
	}
	if !fromMillis.Time.Equal(want) {
		t.Fatalf("unexpected millis result: %v", fromMillis.Time)
	}

	var fromISO webhooks.Timestamp
	if err := fromISO.UnmarshalJSON([]byte(`"2025-12-31T12:00:00Z"`)); err != nil {
		t.Fatalf("expected rfc3339 to parse: %v", err)
	}
	if !fromISO.Time.Equal(want) {
		t.Fatalf("unexpected rfc3339 result: %v", fromISO.Time)
	}

	var fromNaive webhooks.Timestamp
	if err := fromNaive.UnmarshalJSON([]byte(`"2025-12-31T12:00:00"`)); err != nil {
		t.Fatalf("expected naive timestamp to parse: %v", err)
	}
	if !fromNaive.Time.Equal(want) {
		t.Fatalf("unexpected naive result: %v", fromNaive.Time)
	}

	var bad webhooks.Timestamp
	if err := bad.UnmarshalJSON([]byte(`"31/12/2025"`)); err == nil {
		t.Fatalf("expected unsupported format to fail")
	}
	if err := bad.UnmarshalJSON([]byte("null")); err == nil {
		t.Fatalf("expected null timestamp to fail")
	}
}

func TestLowBatteryLabels(t *testing.T) {
	cases := []struct {
		raw   int
		label string
	}{
		{0, "ok"},
		{1, "low"},
		{2, "not indicated"},
		{99, ""},
	}

	for _, tc := range cases {
		body := strings.Replace(sampleEvent, `"lowBattery": 1`, `"lowBattery": `+strconv.Itoa(tc.raw), 1)
		payload, err := webhooks.ParsePayload([]byte(`{"Version": "2.0", "Events": [` + body + `]}`))
		if err != nil {
			t.Fatalf("lowBattery %d: unexpected parse error: %v", tc.raw, err)
		}
		status := payload.Events[0].Status
		if status.LowBatteryLabel != tc.label {
			t.Fatalf("lowBattery %d: expected label %q, got %q", tc.raw, tc.label, status.LowBatteryLabel)
		}

		fields := status.Fields()
		if tc.label == "" {
			if fields["low_battery_label"] != nil {
				t.Fatalf("lowBattery %d: expected nil label field, got %v", tc.raw, fields["low_battery_label"])
			}
		} else if fields["low_battery_label"] != tc.label {
			t.Fatalf("lowBattery %d: expected label field %q, got %v", tc.raw, tc.label, fields["low_battery_label"])
		}
	}
}

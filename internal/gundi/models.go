package gundi

import "time"

// Observation type constants applied to inReach telemetry.
const (
	ObservationTypeGPSRadio = "gps-radio"
	SubjectTypeRanger       = "ranger"
)

// Location is the latitude/longitude pair used on messages.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeoPoint is the lat/lon pair used on observations.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Message is the normalized communication shape sent downstream.
// Provider-originated messages carry no downstream recipients.
type Message struct {
	Sender     string         `json:"sender"`
	Recipients []string       `json:"recipients"`
	Text       string         `json:"text"`
	RecordedAt time.Time      `json:"recorded_at"`
	Location   Location       `json:"location"`
	Additional map[string]any `json:"additional"`
}

// Observation is the normalized location/telemetry shape sent downstream.
type Observation struct {
	Source      string         `json:"source"`
	Type        string         `json:"type"`
	SubjectType string         `json:"subject_type"`
	SourceName  string         `json:"source_name"`
	RecordedAt  time.Time      `json:"recorded_at"`
	Location    GeoPoint       `json:"location"`
	Additional  map[string]any `json:"additional"`
}

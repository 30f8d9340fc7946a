package inreach

import "time"

// ReferencePoint is an optional location attached to an outbound IPC
// message, turning it into a reference-point message.
type ReferencePoint struct {
	Altitude      float64 `json:"Altitude,omitempty"`
	Course        float64 `json:"Course,omitempty"`
	Latitude      float64 `json:"Latitude"`
	Longitude     float64 `json:"Longitude"`
	Speed         float64 `json:"Speed,omitempty"`
	Label         string  `json:"Label,omitempty"`
	LocationType  int     `json:"LocationType"`
	LocationAgeMS int64   `json:"LocationAgeMS,omitempty"`
}

// IPCMessage is one outbound message in the IPC Inbound wire format.
// Recipients are inReach device IMEIs or addresses on the account.
type IPCMessage struct {
	Message        string          `json:"Message"`
	Recipients     []string        `json:"Recipients"`
	Sender         string          `json:"Sender"`
	Timestamp      time.Time       `json:"Timestamp"`
	ReferencePoint *ReferencePoint `json:"ReferencePoint,omitempty"`
}

// messageEnvelope is the request body accepted by the Messaging endpoint.
type messageEnvelope struct {
	Messages []IPCMessage `json:"Messages"`
}

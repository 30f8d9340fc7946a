package inreach

import "fmt"

// Kind enumerates the failure classes the inReach IPC API can produce.
// Every error returned by this package carries exactly one kind.
type Kind string

const (
	KindServiceUnreachable     Kind = "service_unreachable"
	KindInternalError          Kind = "internal_error"
	KindTooManyRequests        Kind = "too_many_requests"
	KindAuthentication         Kind = "authentication"
	KindUnknownDevice          Kind = "unknown_device"
	KindInvalidMessage         Kind = "invalid_message"
	KindInvalidTimestamp       Kind = "invalid_timestamp"
	KindInvalidSender          Kind = "invalid_sender"
	KindInvalidAltitude        Kind = "invalid_altitude"
	KindInvalidSpeed           Kind = "invalid_speed"
	KindInvalidCourse          Kind = "invalid_course"
	KindInvalidPosition        Kind = "invalid_position"
	KindInvalidInterval        Kind = "invalid_interval"
	KindInvalidLocationType    Kind = "invalid_location_type"
	KindInvalidLabel           Kind = "invalid_label"
	KindIllegalEmergencyAction Kind = "illegal_emergency_action"
	KindInvalidBinaryType      Kind = "invalid_binary_type"
	KindInvalidPayload         Kind = "invalid_payload"
	KindBadCredentials         Kind = "bad_credentials"
	KindGenericClientError     Kind = "client_error"
)

// defaultMessages holds the human readable message used when the caller
// does not supply one. The texts mirror the IPC Inbound API documentation.
var defaultMessages = map[Kind]string{
	KindServiceUnreachable:     "The InReach service is currently unavailable.",
	KindInternalError:          "An unexpected error occurred in InReach API.",
	KindTooManyRequests:        "Too many concurrent requests are being processed.",
	KindAuthentication:         "Invalid username or password.",
	KindUnknownDevice:          "The specified IMEI does not belong to the tenant.",
	KindInvalidMessage:         "The message length is invalid (valid range: 1-160).",
	KindInvalidTimestamp:       "The message timestamp is invalid (valid range: Jan 2011 - Current date).",
	KindInvalidSender:          "The message sender is invalid (must be a valid phone number or email address).",
	KindInvalidAltitude:        "The location's altitude is invalid (must be between -1,000 and +18,000 meters inclusive).",
	KindInvalidSpeed:           "The location's speed is invalid (must be between 0 and 1,854km/h inclusive).",
	KindInvalidCourse:          "The location's course is invalid (must be between -360° and +360° inclusive).",
	KindInvalidPosition:        "The location's position is invalid (latitude must be between -90° and +90°, longitude must be between -180° and +180°).",
	KindInvalidInterval:        "The tracking interval is invalid (must be between 30 and 65535 seconds).",
	KindInvalidLocationType:    "The location's type is invalid. It must be 0 (reference point) or 1 (GPS location).",
	KindInvalidLabel:           "The location's label is invalid (max len = 160 - message len, for reference points only).",
	KindIllegalEmergencyAction: "The account's emergencies are not handled by the account owner.",
	KindInvalidBinaryType:      "The binary type is invalid. It must be 0 (Encrypted Binary), 1 (Generic Binary), or 2 (Encrypted Pinpoint).",
	KindInvalidPayload:         "The payload is invalid. It must be base64 encoded and no greater than 268 bytes.",
	KindBadCredentials:         "Invalid username or password.",
	KindGenericClientError:     "InReach API request failed.",
}

// kindByCode maps the numeric error codes returned in IPC error bodies to
// the corresponding kind. Codes outside the table are unmapped.
var kindByCode = map[int]Kind{
	1:  KindInternalError,
	2:  KindTooManyRequests,
	3:  KindAuthentication,
	4:  KindUnknownDevice,
	5:  KindInvalidMessage,
	6:  KindInvalidTimestamp,
	7:  KindInvalidSender,
	8:  KindInvalidAltitude,
	9:  KindInvalidSpeed,
	10: KindInvalidCourse,
	11: KindInvalidPosition,
	12: KindInvalidInterval,
	13: KindInvalidLocationType,
	14: KindInvalidLabel,
	15: KindIllegalEmergencyAction,
	16: KindInvalidBinaryType,
	17: KindInvalidPayload,
}

// KindForCode returns the kind mapped to the supplied IPC error code.
func KindForCode(code int) (Kind, bool) {
	kind, ok := kindByCode[code]
	return kind, ok
}

// DefaultMessage returns the default human readable message for a kind.
func DefaultMessage(kind Kind) string {
	return defaultMessages[kind]
}

// CapturedResponse retains the provider response that produced an error so
// callers can inspect status and body while troubleshooting.
type CapturedResponse struct {
	StatusCode int
	Body       string
}

// Error is the single error type produced by the inReach client.
type Error struct {
	Kind     Kind
	Message  string
	Response *CapturedResponse
}

// NewError builds an Error of the given kind. An empty message falls back
// to the kind's default message.
func NewError(kind Kind, message string, response *CapturedResponse) *Error {
	if message == "" {
		message = DefaultMessage(kind)
	}
	return &Error{Kind: kind, Message: message, Response: response}
}

func (e *Error) Error() string {
	return fmt.Sprintf("inreach: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure class is worth retrying: transport
// failures, provider internal errors and throttling. Business and
// validation failures are the caller's fault and never retried.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindServiceUnreachable, KindInternalError, KindTooManyRequests:
		return true
	default:
		return false
	}
}

// AuthFailure reports whether the error signals rejected credentials.
func (e *Error) AuthFailure() bool {
	return e.Kind == KindAuthentication || e.Kind == KindBadCredentials
}

package actions

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/PADAS/gundi-integration-inreach/internal/activity"
	"github.com/PADAS/gundi-integration-inreach/internal/gundi"
	"github.com/PADAS/gundi-integration-inreach/internal/inreach"
)

// ErrMissingAuthConfig signals a setup defect: pushing messages requires
// the integration's auth configuration. Never retried.
var ErrMissingAuthConfig = errors.New("actions: authentication configuration is required for sending messages")

// ActivityRecorder records structured action outcomes.
type ActivityRecorder interface {
	Success(ctx context.Context, integrationID, action, title string, details map[string]any)
	Error(ctx context.Context, integrationID, action, title string, details map[string]any)
}

// AuthResult is the terminal outcome of a credential check. The check is
// a user-facing validation probe: it always produces a result, never an
// error.
type AuthResult struct {
	ValidCredentials bool   `json:"valid_credentials"`
	Error            string `json:"error,omitempty"`
}

// PushResult is the terminal outcome of a successful message push.
type PushResult struct {
	Status          string         `json:"status"`
	InReachResponse map[string]any `json:"inreach_response"`
}

// Option customises the handlers.
type Option func(*Handlers)

// WithTimeouts overrides the client connect/data timeouts.
func WithTimeouts(connect, data time.Duration) Option {
	return func(h *Handlers) {
		if connect > 0 {
			h.connectTimeout = connect
		}
		if data > 0 {
			h.dataTimeout = data
		}
	}
}

// Handlers implements the outbound actions against the inReach API.
type Handlers struct {
	defaultAPIURL  string
	connectTimeout time.Duration
	dataTimeout    time.Duration
	recorder       ActivityRecorder
	logger         zerolog.Logger
}

// NewHandlers constructs the action handlers. defaultAPIURL is used when
// the integration record carries no base URL override.
func NewHandlers(defaultAPIURL string, recorder ActivityRecorder, logger zerolog.Logger, opts ...Option) (*Handlers, error) {
	if recorder == nil {
		return nil, errors.New("actions: activity recorder dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	h := &Handlers{
		defaultAPIURL:  strings.TrimSpace(defaultAPIURL),
		connectTimeout: inreach.DefaultConnectTimeout,
		dataTimeout:    inreach.DefaultDataTimeout,
		recorder:       recorder,
		logger:         logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Authenticate probes the pingback endpoint with the supplied
// credentials. Any failure, including transport failures, is folded into
// the structured result so the caller can surface it to the user.
func (h *Handlers) Authenticate(ctx context.Context, integration *gundi.Integration, cfg AuthenticateConfig) AuthResult {
	client := h.newClient(integration)
	defer client.Close()

	_, err := client.Pingback(ctx, &inreach.Credentials{
		Username: cfg.Username,
		Password: cfg.Password.Reveal(),
	})
	if err == nil {
		return AuthResult{ValidCredentials: true}
	}

	var clientErr *inreach.Error
	if errors.As(err, &clientErr) {
		if clientErr.AuthFailure() {
			return AuthResult{ValidCredentials: false, Error: "Invalid username or password."}
		}
		return AuthResult{
			ValidCredentials: false,
			Error:            fmt.Sprintf("Error in authentication test: %s: %s.", clientErr.Kind, clientErr.Message),
		}
	}
	return AuthResult{
		ValidCredentials: false,
		Error:            fmt.Sprintf("Error in authentication test: %s.", err),
	}
}

// PushMessages sends one message through the inReach API using the
// integration's auth configuration. Failures are recorded in the activity
// log and then propagated so the invoking scheduler can retry; a missing
// auth configuration is a fatal setup defect.
func (h *Handlers) PushMessages(ctx context.Context, integration *gundi.Integration, message inreach.IPCMessage) (*PushResult, error) {
	if integration == nil {
		return nil, errors.New("actions: integration is required")
	}

	rawConfig, ok := integration.ActionConfig(ActionAuth)
	if !ok {
		return nil, ErrMissingAuthConfig
	}
	authConfig, err := ParseAuthConfig(rawConfig)
	if err != nil {
		return nil, err
	}

	targetURL := h.resolveBaseURL(integration)
	client := h.newClient(integration)
	defer client.Close()

	response, err := client.SendMessages(ctx, []inreach.IPCMessage{message}, &inreach.Credentials{
		Username: authConfig.Username,
		Password: authConfig.Password.Reveal(),
	})
	if err != nil {
		h.recorder.Error(
			ctx,
			integration.ID,
			ActionPushMessages,
			fmt.Sprintf("Error sending messages to %s", targetURL),
			activity.ErrorDetails(err),
		)
		return nil, err
	}

	h.recorder.Success(
		ctx,
		integration.ID,
		ActionPushMessages,
		fmt.Sprintf("Messages sent to %s", targetURL),
		map[string]any{"inreach_response": response},
	)
	return &PushResult{Status: "success", InReachResponse: response}, nil
}

func (h *Handlers) resolveBaseURL(integration *gundi.Integration) string {
	if integration != nil {
		if override := strings.TrimSpace(integration.BaseURL); override != "" {
			return override
		}
	}
	if h.defaultAPIURL != "" {
		return h.defaultAPIURL
	}
	return inreach.DefaultBaseURL
}

func (h *Handlers) newClient(integration *gundi.Integration) *inreach.Client {
	return inreach.NewClient(
		inreach.WithBaseURL(h.resolveBaseURL(integration)),
		inreach.WithTimeouts(h.connectTimeout, h.dataTimeout),
		inreach.WithLogger(h.logger),
	)
}

package inreach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the European enterprise IPC endpoint.
	DefaultBaseURL = "https://eur-enterprise.inreach.garmin.com"

	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultDataTimeout bounds the whole request including the body read.
	DefaultDataTimeout = 60 * time.Second

	pingbackEndpoint  = "IPCInbound/V1/Pingback.svc/PingbackRequest"
	messagingEndpoint = "IPCInbound/V1/Messaging.svc/Message"

	defaultMaxBodyBytes = 16 * 1024
)

// Credentials authenticate one call against the IPC API.
type Credentials struct {
	Username string
	Password string
}

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to the IPC API.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL sets the IPC API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithCredentials sets default credentials used when a call supplies none.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) {
		c.creds = &creds
	}
}

// WithTimeouts overrides the connect and data timeouts. Ignored when a
// custom HTTP client is supplied.
func WithTimeouts(connect, data time.Duration) Option {
	return func(c *Client) {
		if connect > 0 {
			c.connectTimeout = connect
		}
		if data > 0 {
			c.dataTimeout = data
		}
	}
}

// WithBodyLimit adjusts how many bytes are retained from response bodies.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// WithLogger attaches a logger to the client.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is a scoped session against the inReach IPC Inbound API. Acquire
// one per operation and release it with Close on every exit path.
type Client struct {
	logger         zerolog.Logger
	baseURL        string
	creds          *Credentials
	connectTimeout time.Duration
	dataTimeout    time.Duration
	maxBodyBytes   int64
	httpClient     HTTPClient
}

// NewClient constructs a client for the IPC Inbound API.
func NewClient(opts ...Option) *Client {
	c := &Client{
		logger:         zerolog.Nop(),
		baseURL:        DefaultBaseURL,
		connectTimeout: DefaultConnectTimeout,
		dataTimeout:    DefaultDataTimeout,
		maxBodyBytes:   defaultMaxBodyBytes,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if reflect.ValueOf(c.logger).IsZero() {
		c.logger = zerolog.Nop()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.dataTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: c.connectTimeout}).DialContext,
			},
		}
	}

	return c
}

// Close releases the underlying connection pool. Safe to call on every
// exit path regardless of outcome.
func (c *Client) Close() {
	if hc, ok := c.httpClient.(*http.Client); ok {
		hc.CloseIdleConnections()
	}
}

// Pingback issues an authenticated empty POST to the pingback endpoint.
// A 2xx response, even with an empty body, means the credentials are valid
// and the service is reachable.
func (c *Client) Pingback(ctx context.Context, creds *Credentials) (map[string]any, error) {
	return c.call(ctx, pingbackEndpoint, struct{}{}, creds)
}

// SendMessages delivers the supplied IPC messages in one request.
func (c *Client) SendMessages(ctx context.Context, messages []IPCMessage, creds *Credentials) (map[string]any, error) {
	if len(messages) == 0 {
		return nil, errors.New("inreach client: at least one message is required")
	}
	return c.call(ctx, messagingEndpoint, messageEnvelope{Messages: messages}, creds)
}

// errorBody is the JSON error shape the IPC API attaches to failures.
type errorBody struct {
	Code        int    `json:"Code"`
	Description string `json:"Description"`
	IMEI        string `json:"IMEI"`
	Message     string `json:"Message"`
	URL         string `json:"URL"`
}

func (c *Client) call(ctx context.Context, endpoint string, payload any, creds *Credentials) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("inreach client: marshal request: %w", err)
	}

	url := c.baseURL + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("inreach client: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	effective := creds
	if effective == nil {
		effective = c.creds
	}
	if effective != nil {
		req.SetBasicAuth(effective.Username, effective.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewError(
			KindServiceUnreachable,
			fmt.Sprintf("Failed to connect to InReach service: %v", err),
			nil,
		)
	}
	defer resp.Body.Close()

	raw, err := c.readBody(resp.Body)
	if err != nil {
		return nil, NewError(KindServiceUnreachable, fmt.Sprintf("Failed to read InReach response: %v", err), nil)
	}

	captured := &CapturedResponse{StatusCode: resp.StatusCode, Body: raw}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		clientErr := classifyResponse(resp.StatusCode, raw)
		clientErr.Response = captured
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("kind", string(clientErr.Kind)).
			Msg("inreach api call failed")
		return nil, clientErr
	}

	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}

	parsed := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, NewError(
			KindGenericClientError,
			fmt.Sprintf("Failed to parse InReach response body: %v", err),
			captured,
		)
	}

	return parsed, nil
}

func (c *Client) readBody(rc io.ReadCloser) (string, error) {
	if rc == nil {
		return "", nil
	}

	limit := c.maxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}

	data, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// classifyResponse maps a non-2xx response to exactly one error kind. The
// numeric code in the body, when mapped, wins over the HTTP status except
// for gateway statuses which always mean the service is unreachable.
func classifyResponse(status int, body string) *Error {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return NewError(KindServiceUnreachable, "", nil)
	}

	var parsed errorBody
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if kind, ok := KindForCode(parsed.Code); ok {
			return NewError(kind, "", nil)
		}
	}

	switch status {
	case http.StatusInternalServerError:
		return NewError(KindInternalError, "", nil)
	case http.StatusForbidden:
		return NewError(KindBadCredentials, "", nil)
	}

	return NewError(
		KindGenericClientError,
		fmt.Sprintf("Bad status: %d, %s", status, body),
		nil,
	)
}

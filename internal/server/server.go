package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/PADAS/gundi-integration-inreach/internal/actions"
	"github.com/PADAS/gundi-integration-inreach/internal/gundi"
	"github.com/PADAS/gundi-integration-inreach/internal/webhooks"
)

const defaultMaxBodyBytes = 1 << 20

// Server exposes the connector's HTTP surface: the inReach webhook
// endpoint and the executable auth action.
type Server struct {
	store    gundi.Store
	webhook  *webhooks.Handler
	handlers *actions.Handlers
	logger   zerolog.Logger

	maxBodyBytes int64
	readiness    map[string]func() bool
}

// Option customises the server during construction.
type Option func(*Server)

// WithReadinessChecks registers named readiness probes reported by the
// health endpoint. The endpoint degrades to 503 while any probe fails.
func WithReadinessChecks(checks map[string]func() bool) Option {
	return func(s *Server) {
		if len(checks) > 0 {
			s.readiness = checks
		}
	}
}

// New constructs the HTTP server facade.
func New(store gundi.Store, webhook *webhooks.Handler, handlers *actions.Handlers, logger zerolog.Logger, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, errors.New("server: integration store dependency is required")
	}
	if webhook == nil {
		return nil, errors.New("server: webhook handler dependency is required")
	}
	if handlers == nil {
		return nil, errors.New("server: action handlers dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	s := &Server{
		store:        store,
		webhook:      webhook,
		handlers:     handlers,
		logger:       logger,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Router builds the chi router for the connector.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/webhooks/inreach/{integrationID}", s.handleWebhook)
	r.Post("/v1/integrations/{integrationID}/actions/auth", s.handleAuthAction)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}

	for name, check := range s.readiness {
		ready := check != nil && check()
		body[name] = ready
		if !ready {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}

	writeJSON(w, status, body)
}

// handleWebhook ingests one inReach event batch. A malformed batch is
// rejected whole with 400 so the provider redelivers it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	integrationID := chi.URLParam(r, "integrationID")

	integration, err := s.store.GetIntegration(r.Context(), integrationID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "integration not found"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "failed to read request body"})
		return
	}

	payload, err := webhooks.ParsePayload(body)
	if err != nil {
		s.logger.Warn().
			Str("integration_id", integrationID).
			Err(err).
			Msg("webhook payload rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	result, err := s.webhook.Handle(r.Context(), payload, webhooks.ConfigFromIntegration(integration), integrationID)
	if err != nil {
		s.logger.Error().
			Str("integration_id", integrationID).
			Err(err).
			Msg("webhook processing failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "failed to process webhook"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleAuthAction runs the credential probe. The response is always a
// structured result: rejected credentials are not an HTTP error.
func (s *Server) handleAuthAction(w http.ResponseWriter, r *http.Request) {
	integrationID := chi.URLParam(r, "integrationID")

	integration, err := s.store.GetIntegration(r.Context(), integrationID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "integration not found"})
		return
	}

	cfg, err := s.resolveAuthConfig(r, integration)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	result := s.handlers.Authenticate(r.Context(), integration, *cfg)
	writeJSON(w, http.StatusOK, result)
}

// resolveAuthConfig prefers credentials supplied in the request body over
// the integration's stored auth configuration.
func (s *Server) resolveAuthConfig(r *http.Request, integration *gundi.Integration) (*actions.AuthenticateConfig, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes))
	if err != nil {
		return nil, errors.New("failed to read request body")
	}

	if len(body) > 0 {
		cfg, err := actions.ParseAuthConfig(body)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}

	raw, ok := integration.ActionConfig(actions.ActionAuth)
	if !ok {
		return nil, errors.New("no credentials supplied and no auth configuration stored")
	}
	return actions.ParseAuthConfig(raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package actions_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PADAS/gundi-integration-inreach/internal/actions"
	"github.com/PADAS/gundi-integration-inreach/internal/gundi"
	"github.com/PADAS/gundi-integration-inreach/internal/inreach"
)

type recordedActivity struct {
	level         string
	integrationID string
	action        string
	title         string
	details       map[string]any
}

type fakeRecorder struct {
	events []recordedActivity
}

func (r *fakeRecorder) Success(ctx context.Context, integrationID, action, title string, details map[string]any) {
	r.events = append(r.events, recordedActivity{"success", integrationID, action, title, details})
}

func (r *fakeRecorder) Error(ctx context.Context, integrationID, action, title string, details map[string]any) {
	r.events = append(r.events, recordedActivity{"error", integrationID, action, title, details})
}

func newTestHandlers(t *testing.T, apiURL string) (*actions.Handlers, *fakeRecorder) {
	t.Helper()

	recorder := &fakeRecorder{}
	handlers, err := actions.NewHandlers(apiURL, recorder, newTestLogger())
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	return handlers, recorder
}

func integrationWithAuth(baseURL string) *gundi.Integration {
	return &gundi.Integration{
		ID:      "int-1",
		Name:    "Test InReach",
		BaseURL: baseURL,
		Enabled: true,
		Configurations: []gundi.ActionConfiguration{
			{Action: actions.ActionAuth, Data: []byte(`{"username": "user", "password": "pass"}`)},
		},
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	handlers, _ := newTestHandlers(t, srv.URL)

	result := handlers.Authenticate(context.Background(), integrationWithAuth(srv.URL), actions.AuthenticateConfig{
		Username: "user",
		Password: "pass",
	})
	if !result.ValidCredentials {
		t.Fatalf("expected valid credentials, got %+v", result)
	}
	if result.Error != "" {
		t.Fatalf("expected empty error, got %q", result.Error)
	}
}

func TestAuthenticateRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"Code":3,"Description":"bad auth","IMEI":"","Message":"","URL":""}`)
	}))
	defer srv.Close()

	handlers, _ := newTestHandlers(t, srv.URL)

	result := handlers.Authenticate(context.Background(), integrationWithAuth(srv.URL), actions.AuthenticateConfig{
		Username: "user",
		Password: "wrong",
	})
	if result.ValidCredentials {
		t.Fatalf("expected invalid credentials, got %+v", result)
	}
	if result.Error != "Invalid username or password." {
		t.Fatalf("unexpected error text: %q", result.Error)
	}
}

func TestAuthenticateProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	handlers, _ := newTestHandlers(t, srv.URL)

	result := handlers.Authenticate(context.Background(), integrationWithAuth(srv.URL), actions.AuthenticateConfig{
		Username: "user",
		Password: "pass",
	})
	if result.ValidCredentials {
		t.Fatalf("expected invalid result, got %+v", result)
	}
	want := "Error in authentication test: service_unreachable: The InReach service is currently unavailable.."
	if result.Error != want {
		t.Fatalf("unexpected error text: %q", result.Error)
	}
}

func TestAuthenticateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	handlers, _ := newTestHandlers(t, srv.URL)

	result := handlers.Authenticate(context.Background(), integrationWithAuth(srv.URL), actions.AuthenticateConfig{
		Username: "user",
		Password: "pass",
	})
	if result.ValidCredentials {
		t.Fatalf("expected invalid result, got %+v", result)
	}
	if !strings.Contains(result.Error, "Failed to connect to InReach service") {
		t.Fatalf("expected connection failure in error text, got %q", result.Error)
	}
}

func TestPushMessagesSuccess(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"accepted": true}`)
	}))
	defer srv.Close()

	handlers, recorder := newTestHandlers(t, srv.URL)

	result, err := handlers.PushMessages(context.Background(), integrationWithAuth(srv.URL), inreach.IPCMessage{
		Message:    "Check in at camp.",
		Recipients: []string{"300434030412345"},
		Sender:     "ops@example.com",
		Timestamp:  time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expected success: %v", err)
	}
	if result.Status != "success" {
		t.Fatalf("unexpected status: %q", result.Status)
	}
	if result.InReachResponse["accepted"] != true {
		t.Fatalf("unexpected response payload: %v", result.InReachResponse)
	}
	if gotPath != "/IPCInbound/V1/Messaging.svc/Message" {
		t.Fatalf("unexpected path: %q", gotPath)
	}

	if len(recorder.events) != 1 {
		t.Fatalf("expected one activity event, got %d", len(recorder.events))
	}
	event := recorder.events[0]
	if event.level != "success" || event.action != actions.ActionPushMessages {
		t.Fatalf("unexpected activity event: %+v", event)
	}
	if event.title != fmt.Sprintf("Messages sent to %s", srv.URL) {
		t.Fatalf("unexpected activity title: %q", event.title)
	}
}

func TestPushMessagesProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"Code":1,"Description":"boom","IMEI":"","Message":"","URL":""}`)
	}))
	defer srv.Close()

	handlers, recorder := newTestHandlers(t, srv.URL)

	_, err := handlers.PushMessages(context.Background(), integrationWithAuth(srv.URL), inreach.IPCMessage{
		Message:    "Check in at camp.",
		Recipients: []string{"300434030412345"},
		Sender:     "ops@example.com",
		Timestamp:  time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC),
	})
	if err == nil {
		t.Fatalf("expected provider failure to propagate")
	}

	var clientErr *inreach.Error
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *inreach.Error, got %T", err)
	}
	if clientErr.Kind != inreach.KindInternalError {
		t.Fatalf("expected internal error kind, got %s", clientErr.Kind)
	}
	if clientErr.Message != "An unexpected error occurred in InReach API." {
		t.Fatalf("unexpected message: %q", clientErr.Message)
	}
	if !clientErr.Retryable() {
		t.Fatalf("internal errors must surface as retryable")
	}

	if len(recorder.events) != 1 {
		t.Fatalf("expected one activity event, got %d", len(recorder.events))
	}
	event := recorder.events[0]
	if event.level != "error" {
		t.Fatalf("expected error activity, got %+v", event)
	}
	if event.title != fmt.Sprintf("Error sending messages to %s", srv.URL) {
		t.Fatalf("unexpected activity title: %q", event.title)
	}
	if event.details["error_kind"] != string(inreach.KindInternalError) {
		t.Fatalf("unexpected error details: %v", event.details)
	}
	if event.details["server_response_status"] != http.StatusInternalServerError {
		t.Fatalf("expected captured status in details, got %v", event.details)
	}
}

func TestPushMessagesMissingAuthConfig(t *testing.T) {
	handlers, recorder := newTestHandlers(t, "http://unused.invalid")

	integration := &gundi.Integration{ID: "int-1", Enabled: true}
	_, err := handlers.PushMessages(context.Background(), integration, inreach.IPCMessage{Message: "hi"})
	if !errors.Is(err, actions.ErrMissingAuthConfig) {
		t.Fatalf("expected ErrMissingAuthConfig, got %v", err)
	}
	if len(recorder.events) != 0 {
		t.Fatalf("setup defects must not be recorded as activity, got %v", recorder.events)
	}
}

func TestResolveBaseURLPrecedence(t *testing.T) {
	var gotHost string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Integration override wins over the configured default.
	handlers, _ := newTestHandlers(t, "http://default.invalid")
	result := handlers.Authenticate(context.Background(), integrationWithAuth(srv.URL), actions.AuthenticateConfig{
		Username: "user",
		Password: "pass",
	})
	if !result.ValidCredentials {
		t.Fatalf("expected probe against override URL to succeed, got %+v", result)
	}
	if gotHost == "" {
		t.Fatalf("expected the override host to be called")
	}
}

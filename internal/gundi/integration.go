package gundi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrIntegrationNotFound is returned when a store has no record for the
// requested integration id.
var ErrIntegrationNotFound = errors.New("gundi: integration not found")

// ActionConfiguration binds configuration data to one action of an
// integration (e.g. "auth", "push_messages").
type ActionConfiguration struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// WebhookConfiguration holds the per-integration webhook toggles. Both
// default to true when the configuration is absent.
type WebhookConfiguration struct {
	IncludeMessages     *bool `json:"include_messages,omitempty"`
	IncludeObservations *bool `json:"include_observations,omitempty"`
}

// Integration is the platform record describing one connected inReach
// account: identity, optional API base URL override and per-action
// configuration.
type Integration struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	BaseURL              string                `json:"base_url,omitempty"`
	Enabled              bool                  `json:"enabled"`
	Configurations       []ActionConfiguration `json:"configurations,omitempty"`
	WebhookConfiguration *WebhookConfiguration `json:"webhook_configuration,omitempty"`
}

// ActionConfig returns the raw configuration data for the named action.
func (i *Integration) ActionConfig(action string) (json.RawMessage, bool) {
	for _, cfg := range i.Configurations {
		if cfg.Action == action {
			return cfg.Data, true
		}
	}
	return nil, false
}

// Store resolves integration records. The production platform serves
// these from its portal API; deployments without it use a file-backed
// store.
type Store interface {
	GetIntegration(ctx context.Context, id string) (*Integration, error)
}

// MemoryStore is an in-memory Store. Safe for concurrent use.
type MemoryStore struct {
	mu           sync.RWMutex
	integrations map[string]*Integration
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{integrations: make(map[string]*Integration)}
}

// LoadMemoryStore reads a JSON array of integration records from a file.
func LoadMemoryStore(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gundi: read integrations file: %w", err)
	}

	var records []*Integration
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("gundi: parse integrations file: %w", err)
	}

	store := NewMemoryStore()
	for _, record := range records {
		if record == nil || record.ID == "" {
			return nil, errors.New("gundi: integration record missing id")
		}
		store.Put(record)
	}
	return store, nil
}

// Put registers or replaces an integration record.
func (s *MemoryStore) Put(integration *Integration) {
	if integration == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrations[integration.ID] = integration
}

// GetIntegration implements Store.
func (s *MemoryStore) GetIntegration(_ context.Context, id string) (*Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	integration, ok := s.integrations[id]
	if !ok {
		return nil, ErrIntegrationNotFound
	}
	return integration, nil
}

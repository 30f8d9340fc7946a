package actions

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action names as registered on the integration record.
const (
	ActionAuth         = "auth"
	ActionPushMessages = "push_messages"
)

const secretMask = "**********"

// Secret is a string that never leaks through logs or serialization.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return secretMask
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Secret) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*s = Secret(value)
	return nil
}

// Reveal returns the underlying secret value.
func (s Secret) Reveal() string {
	return string(s)
}

// AuthenticateConfig holds the inReach account credentials. The API base
// URL is deliberately not part of this config; it resolves from the
// integration record with the environment default as fallback.
type AuthenticateConfig struct {
	Username string `json:"username"`
	Password Secret `json:"password"`
}

// Validate checks that both credential fields are present.
func (c AuthenticateConfig) Validate() error {
	if c.Username == "" {
		return errors.New("actions: auth config: username is required")
	}
	if c.Password == "" {
		return errors.New("actions: auth config: password is required")
	}
	return nil
}

// PushMessageConfig configures the push action. It carries no fields.
type PushMessageConfig struct{}

// ParseAuthConfig decodes and validates an auth action configuration.
func ParseAuthConfig(data json.RawMessage) (*AuthenticateConfig, error) {
	var cfg AuthenticateConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("actions: parse auth config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the inReach connector.
type Config struct {
	App            AppConfig
	InReach        InReachConfig
	Kafka          KafkaConfig
	Topics         TopicConfig
	Dispatch       DispatchConfig
	Integrations   IntegrationConfig
	TracingEnabled bool
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// InReachConfig holds the default IPC API endpoint and timeouts. An
// integration record's base_url overrides APIURL per operation.
type InReachConfig struct {
	APIURL                string
	ConnectTimeoutSeconds int
	DataTimeoutSeconds    int
}

// KafkaConfig defines broker information for the event bus.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

// TopicConfig enumerates the topics the connector publishes to and
// consumes from.
type TopicConfig struct {
	Observations string
	Messages     string
	Activity     string
	PushRequests string
	PushDLQ      string
}

// DispatchConfig controls push-request retry and concurrency behaviour.
type DispatchConfig struct {
	MaxAttempts        int
	BaseBackoffSeconds int
	MaxBackoffSeconds  int
	Concurrency        int
}

// IntegrationConfig locates the integration records served to the
// connector when no portal is available.
type IntegrationConfig struct {
	FilePath string
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.InReach.APIURL = ldr.getString("INREACH_API_URL", "https://eur-enterprise.inreach.garmin.com", false)
	cfg.InReach.ConnectTimeoutSeconds = ldr.getInt("INREACH_CONNECT_TIMEOUT_SECONDS", 10, false)
	cfg.InReach.DataTimeoutSeconds = ldr.getInt("INREACH_DATA_TIMEOUT_SECONDS", 60, false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", true)
	cfg.Kafka.ConsumerGroup = ldr.getString("PUSH_CONSUMER_GROUP", "inreach-connector", false)

	cfg.Topics.Observations = ldr.getString("KAFKA_OBSERVATIONS_TOPIC", "gundi.observations", false)
	cfg.Topics.Messages = ldr.getString("KAFKA_MESSAGES_TOPIC", "gundi.messages", false)
	cfg.Topics.Activity = ldr.getString("KAFKA_ACTIVITY_TOPIC", "gundi.activity", false)
	cfg.Topics.PushRequests = ldr.getString("KAFKA_PUSH_REQUEST_TOPIC", "inreach.push-requests", false)
	cfg.Topics.PushDLQ = ldr.getString("KAFKA_PUSH_DLQ_TOPIC", "inreach.push-requests.dlq", false)

	cfg.Dispatch.MaxAttempts = ldr.getInt("PUSH_MAX_ATTEMPTS", 3, false)
	cfg.Dispatch.BaseBackoffSeconds = ldr.getInt("PUSH_BASE_BACKOFF_SECONDS", 10, false)
	cfg.Dispatch.MaxBackoffSeconds = ldr.getInt("PUSH_MAX_BACKOFF_SECONDS", 120, false)
	cfg.Dispatch.Concurrency = ldr.getInt("PUSH_CONCURRENCY", 10, false)

	cfg.Integrations.FilePath = ldr.getString("INTEGRATIONS_FILE", "", true)

	cfg.TracingEnabled = ldr.getBool("TRACING_ENABLED", true, false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}

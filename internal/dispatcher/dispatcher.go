package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/PADAS/gundi-integration-inreach/internal/actions"
	"github.com/PADAS/gundi-integration-inreach/internal/gundi"
	"github.com/PADAS/gundi-integration-inreach/internal/inreach"
)

// PushRequest is one transformed-message record consumed from the broker:
// the platform asks the connector to push one IPC message for an
// integration.
type PushRequest struct {
	IntegrationID string             `json:"integration_id"`
	Payload       inreach.IPCMessage `json:"payload"`
}

// FailureType classifies DLQ entries.
type FailureType string

const (
	FailureTypePermanent     FailureType = "permanent"
	FailureTypeTransient     FailureType = "transient"
	FailureTypeValidation    FailureType = "validation"
	FailureTypeConfiguration FailureType = "configuration"
)

// DLQRecord captures a push request that could not be delivered.
type DLQRecord struct {
	MessageID     string          `json:"message_id,omitempty"`
	IntegrationID string          `json:"integration_id,omitempty"`
	FailureType   FailureType     `json:"failure_type"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error"`
	FirstFailedAt time.Time       `json:"first_failed_at"`
	LastAttemptAt time.Time       `json:"last_attempt_at"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Pusher executes the push action for one request.
type Pusher interface {
	PushMessages(ctx context.Context, integration *gundi.Integration, message inreach.IPCMessage) (*actions.PushResult, error)
}

// DLQPublisher writes undeliverable requests to the dead letter topic.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record DLQRecord) error
}

// Config tunes retry and concurrency behaviour. Retry policy lives here,
// not in the client or handlers: the push path propagates so this loop
// can apply it uniformly.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Concurrency int
}

// Dependencies collects the runtime collaborators of the dispatcher.
type Dependencies struct {
	Store  gundi.Store
	Pusher Pusher
	DLQ    DLQPublisher
	Logger zerolog.Logger
	Now    func() time.Time
}

// Dispatcher drives push requests from the broker through the outbound
// pipeline, retrying retryable failures with jittered exponential backoff
// and dead-lettering the rest.
type Dispatcher struct {
	cfg    Config
	store  gundi.Store
	pusher Pusher
	dlq    DLQPublisher
	logger zerolog.Logger

	sem *semaphore.Weighted
	now func() time.Time

	randMu sync.Mutex
	rnd    *rand.Rand
}

// New constructs a dispatcher, validating its configuration up front.
func New(cfg Config, deps Dependencies) (*Dispatcher, error) {
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("dispatcher: max attempts must be >= 1")
	}
	if cfg.Concurrency < 1 {
		return nil, errors.New("dispatcher: concurrency must be >= 1")
	}
	if deps.Store == nil {
		return nil, errors.New("dispatcher: integration store dependency is required")
	}
	if deps.Pusher == nil {
		return nil, errors.New("dispatcher: pusher dependency is required")
	}
	if deps.DLQ == nil {
		return nil, errors.New("dispatcher: DLQ publisher dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "push_dispatcher").Logger()

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Dispatcher{
		cfg:    cfg,
		store:  deps.Store,
		pusher: deps.Pusher,
		dlq:    deps.DLQ,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		now:    nowFunc,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// HandleRecord processes one broker record. key identifies the message
// for diagnostics; commit is invoked once the record reaches a terminal
// state so the offset is only advanced after handling completes.
func (d *Dispatcher) HandleRecord(ctx context.Context, key, value []byte, commit func(context.Context) error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.logger.Error().Err(err).Msg("dispatcher: failed to acquire concurrency semaphore")
		return
	}
	go func() {
		defer d.sem.Release(1)
		d.process(ctx, key, value, commit)
	}()
}

func (d *Dispatcher) process(ctx context.Context, key, value []byte, commit func(context.Context) error) {
	messageID := string(key)

	var request PushRequest
	if err := json.Unmarshal(value, &request); err != nil {
		d.deadLetter(ctx, DLQRecord{
			MessageID:   messageID,
			FailureType: FailureTypeValidation,
			LastError:   fmt.Sprintf("invalid push request: %v", err),
			Payload:     json.RawMessage(value),
		})
		d.commit(ctx, commit)
		return
	}
	if request.IntegrationID == "" {
		d.deadLetter(ctx, DLQRecord{
			MessageID:   messageID,
			FailureType: FailureTypeValidation,
			LastError:   "push request missing integration_id",
			Payload:     json.RawMessage(value),
		})
		d.commit(ctx, commit)
		return
	}

	integration, err := d.store.GetIntegration(ctx, request.IntegrationID)
	if err != nil {
		d.deadLetter(ctx, DLQRecord{
			MessageID:     messageID,
			IntegrationID: request.IntegrationID,
			FailureType:   FailureTypeConfiguration,
			LastError:     err.Error(),
			Payload:       json.RawMessage(value),
		})
		d.commit(ctx, commit)
		return
	}

	attempt := 1
	firstFailedAt := time.Time{}

	for {
		_, err := d.pusher.PushMessages(ctx, integration, request.Payload)

		logEvent := d.logger.With().
			Str("integration_id", request.IntegrationID).
			Str("message_id", messageID).
			Int("attempt", attempt).
			Logger()

		if err == nil {
			logEvent.Info().Msg("dispatcher: push delivered")
			d.commit(ctx, commit)
			return
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logEvent.Warn().Err(err).Msg("dispatcher: context cancelled during push; deferring commit for reprocessing")
			return
		}

		logEvent.Warn().Err(err).Msg("dispatcher: push failed")

		now := d.now()
		if firstFailedAt.IsZero() {
			firstFailedAt = now
		}

		if !retryable(err) {
			failureType := FailureTypePermanent
			if errors.Is(err, actions.ErrMissingAuthConfig) {
				failureType = FailureTypeConfiguration
			}
			d.deadLetter(ctx, DLQRecord{
				MessageID:     messageID,
				IntegrationID: request.IntegrationID,
				FailureType:   failureType,
				Attempts:      attempt,
				LastError:     err.Error(),
				FirstFailedAt: firstFailedAt,
				LastAttemptAt: now,
				Payload:       json.RawMessage(value),
			})
			d.commit(ctx, commit)
			return
		}

		if attempt >= d.cfg.MaxAttempts {
			d.deadLetter(ctx, DLQRecord{
				MessageID:     messageID,
				IntegrationID: request.IntegrationID,
				FailureType:   FailureTypeTransient,
				Attempts:      attempt,
				LastError:     err.Error(),
				FirstFailedAt: firstFailedAt,
				LastAttemptAt: now,
				Payload:       json.RawMessage(value),
			})
			d.commit(ctx, commit)
			return
		}

		backoff := d.computeBackoff(attempt)
		if backoff > 0 {
			logEvent.Info().Dur("backoff", backoff).Msg("dispatcher: scheduling retry after retryable failure")
		}
		if !d.wait(ctx, backoff) {
			logEvent.Warn().Msg("dispatcher: context cancelled while waiting for retry; request will be redelivered")
			return
		}

		attempt++
	}
}

func retryable(err error) bool {
	var clientErr *inreach.Error
	if errors.As(err, &clientErr) {
		return clientErr.Retryable()
	}
	return false
}

func (d *Dispatcher) computeBackoff(attempt int) time.Duration {
	if d.cfg.BaseBackoff <= 0 {
		return 0
	}

	multiplier := math.Pow(2, float64(attempt-1))
	raw := time.Duration(float64(d.cfg.BaseBackoff) * multiplier)
	if d.cfg.MaxBackoff > 0 && raw > d.cfg.MaxBackoff {
		raw = d.cfg.MaxBackoff
	}

	return d.fullJitter(raw)
}

func (d *Dispatcher) fullJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	d.randMu.Lock()
	defer d.randMu.Unlock()

	return time.Duration(d.rnd.Int63n(int64(max) + 1))
}

func (d *Dispatcher) wait(ctx context.Context, duration time.Duration) bool {
	if duration <= 0 {
		return true
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, record DLQRecord) {
	if record.FirstFailedAt.IsZero() {
		record.FirstFailedAt = d.now()
	}
	if record.LastAttemptAt.IsZero() {
		record.LastAttemptAt = record.FirstFailedAt
	}
	if err := d.dlq.PublishDLQ(ctx, record); err != nil {
		d.logger.Error().
			Str("integration_id", record.IntegrationID).
			Str("message_id", record.MessageID).
			Err(err).
			Msg("dispatcher: failed to publish DLQ record")
	}
}

func (d *Dispatcher) commit(ctx context.Context, commit func(context.Context) error) {
	if commit == nil {
		return
	}
	if err := commit(ctx); err != nil {
		d.logger.Error().Err(err).Msg("dispatcher: failed to commit record offset")
	}
}

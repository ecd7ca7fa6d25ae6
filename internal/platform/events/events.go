// Package events publishes domain events after an engine operation commits.
//
// Publishing is best effort: engines log publish failures and never change
// the outcome of a committed operation because of them.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/platform/db"
	"github.com/hospital/hms/internal/platform/metrics"
)

// Event is the envelope written to the stream.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Tenant    string         `json:"tenant,omitempty"`
	Subject   string         `json:"subject"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an event with a fresh id and timestamp.
func New(eventType, source, subject string, data map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// withTenant fills Tenant from the request's tenant when it is unset.
func withTenant(ctx context.Context, evt Event) Event {
	if evt.Tenant == "" {
		evt.Tenant = db.TenantFromContext(ctx)
	}
	return evt
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// LogPublisher writes events to the log. It is used when no broker is
// configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(ctx context.Context, evt Event) error {
	evt = withTenant(ctx, evt)
	p.logger.Info().
		Str("event_id", evt.ID).
		Str("event_type", evt.Type).
		Str("subject", evt.Subject).
		Str("tenant", evt.Tenant).
		Msg("domain event")
	metrics.EventsPublishedTotal.WithLabelValues(evt.Type, "logged").Inc()
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Emit publishes evt and logs a failure instead of returning it.
func Emit(ctx context.Context, pub Publisher, logger zerolog.Logger, evt Event) {
	if pub == nil {
		return
	}
	evt = withTenant(ctx, evt)
	if err := pub.Publish(ctx, evt); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(evt.Type, "failed").Inc()
		logger.Error().Err(err).
			Str("event_id", evt.ID).
			Str("event_type", evt.Type).
			Str("tenant", evt.Tenant).
			Msg("failed to publish event")
	}
}

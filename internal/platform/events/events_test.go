package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/hospital/hms/internal/platform/db"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestNew(t *testing.T) {
	evt := New("appointment.scheduled", "scheduling", "appt-1", map[string]any{"doctor_id": "d-1"})
	if evt.ID == "" {
		t.Error("expected event id")
	}
	if evt.Timestamp.IsZero() || evt.Timestamp.Location().String() != "UTC" {
		t.Errorf("expected UTC timestamp, got %v", evt.Timestamp)
	}
	if evt.Data["doctor_id"] != "d-1" {
		t.Errorf("unexpected data: %v", evt.Data)
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &captureWriter{}
	p := newKafkaPublisher(w, "hms.operations", zerolog.Nop())

	ctx := context.WithValue(context.Background(), db.TenantIDKey, "north_wing")
	evt := New("inventory.consumed", "inventory", "item-7", nil)
	if err := p.Publish(ctx, evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "item-7" {
		t.Errorf("expected key item-7, got %s", msg.Key)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "inventory.consumed" {
		t.Errorf("unexpected headers: %+v", msg.Headers)
	}

	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Tenant != "north_wing" {
		t.Errorf("expected tenant from context, got %q", decoded.Tenant)
	}
	if decoded.ID != evt.ID {
		t.Errorf("expected id %s, got %s", evt.ID, decoded.ID)
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	p := newKafkaPublisher(w, "hms.operations", zerolog.Nop())

	err := p.Publish(context.Background(), New("bill.paid", "billing", "bill-1", nil))
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("expected wrapped broker error, got %v", err)
	}
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &captureWriter{}
	p := newKafkaPublisher(w, "t", zerolog.Nop())
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("expected writer closed")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Event) error { return errors.New("unavailable") }
func (failingPublisher) Close() error                        { return nil }

func TestEmit_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	Emit(context.Background(), failingPublisher{}, logger, New("bill.paid", "billing", "bill-1", nil))

	if !strings.Contains(buf.String(), "failed to publish event") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
}

func TestEmit_NilPublisher(t *testing.T) {
	Emit(context.Background(), nil, zerolog.Nop(), New("x", "y", "z", nil))
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))
	if err := p.Publish(context.Background(), New("patient.registered", "identity", "p-1", nil)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "patient.registered") {
		t.Errorf("expected event type in log, got %q", buf.String())
	}
}

func TestLogPublisher_TenantFromContext(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))
	ctx := context.WithValue(context.Background(), db.TenantIDKey, "east_campus")

	Emit(ctx, p, zerolog.Nop(), New("billing.created", "billing", "bill-9", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["tenant"] != "east_campus" {
		t.Errorf("expected tenant east_campus, got %v", line["tenant"])
	}
}

func TestEmit_KeepsExplicitTenant(t *testing.T) {
	w := &captureWriter{}
	p := newKafkaPublisher(w, "hms.operations", zerolog.Nop())
	ctx := context.WithValue(context.Background(), db.TenantIDKey, "east_campus")

	evt := New("staff.created", "admin", "staff-2", nil)
	evt.Tenant = "west_campus"
	Emit(ctx, p, zerolog.Nop(), evt)

	var decoded Event
	if len(w.msgs) != 1 || json.Unmarshal(w.msgs[0].Value, &decoded) != nil {
		t.Fatalf("expected one decodable message, got %d", len(w.msgs))
	}
	if decoded.Tenant != "west_campus" {
		t.Errorf("expected explicit tenant kept, got %q", decoded.Tenant)
	}
}

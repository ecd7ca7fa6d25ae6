package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/auth"
	"github.com/hospital/hms/internal/platform/db/dbtest"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.patients {
		if existing.Name == p.Name && existing.DateOfBirth == p.DateOfBirth && existing.ContactInfo == p.ContactInfo {
			return apperr.New(apperr.KindConflict, apperr.CodeDuplicateKey, "duplicate patient")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return m.GetByID(ctx, id)
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return apperr.NotFound("patient", p.ID)
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Patient
	for _, p := range m.patients {
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if f.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Name)) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	total := len(result)
	if offset > len(result) {
		offset = len(result)
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, total, nil
}

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*AuditLog
	err     error
}

func newMockAuditRepo() *mockAuditRepo { return &mockAuditRepo{} }

func (m *mockAuditRepo) Append(_ context.Context, e *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	e.ID = uuid.New()
	e.Timestamp = time.Now()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*AuditLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*AuditLog
	for _, e := range m.entries {
		if e.PatientID == patientID {
			result = append(result, e)
		}
	}
	return result, len(result), nil
}

func (m *mockAuditRepo) actions(patientID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		if e.PatientID == patientID {
			out = append(out, e.Action)
		}
	}
	return out
}

// -- Helpers --

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService() (*Service, *mockPatientRepo, *mockAuditRepo) {
	patients := newMockPatientRepo()
	audit := newMockAuditRepo()
	svc := NewService(&dbtest.Transactor{}, patients, audit, nil, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	return svc, patients, audit
}

func dob(s string) *civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func validRegistration() RegisterPatientRequest {
	return RegisterPatientRequest{
		Name:        "Ada Okafor",
		DateOfBirth: dob("1987-06-02"),
		ContactInfo: "+44 20 7946 0018",
		InsuranceID: "INS-4471",
	}
}

func registerPatient(t *testing.T, svc *Service) *Patient {
	t.Helper()
	p, err := svc.RegisterPatient(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return p
}

// -- Tests --

func TestRegisterPatient(t *testing.T) {
	svc, _, audit := newTestService()
	ctx := auth.WithPrincipal(context.Background(), "registrar-1", []string{"registrar"})

	p, err := svc.RegisterPatient(ctx, validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.Status != PatientActive {
		t.Errorf("expected active, got %s", p.Status)
	}
	if got := audit.actions(p.ID); len(got) != 1 || got[0] != ActionRegistered {
		t.Errorf("expected registration audit, got %v", got)
	}
	if audit.entries[0].ActorID != "registrar-1" {
		t.Errorf("expected actor registrar-1, got %s", audit.entries[0].ActorID)
	}
}

func TestRegisterPatient_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *RegisterPatientRequest)
	}{
		{"name", func(r *RegisterPatientRequest) { r.Name = "  " }},
		{"date_of_birth", func(r *RegisterPatientRequest) { r.DateOfBirth = nil }},
		{"contact_info", func(r *RegisterPatientRequest) { r.ContactInfo = "" }},
		{"insurance_id", func(r *RegisterPatientRequest) { r.InsuranceID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService()
			req := validRegistration()
			tt.mutate(&req)
			_, err := svc.RegisterPatient(context.Background(), req)
			if !errors.Is(err, apperr.ErrMissingField) {
				t.Fatalf("expected MissingField, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.name) {
				t.Errorf("expected message to name %s, got %q", tt.name, err.Error())
			}
		})
	}
}

func TestRegisterPatient_FutureBirthDate(t *testing.T) {
	svc, _, _ := newTestService()
	req := validRegistration()
	req.DateOfBirth = dob("2025-03-15")

	_, err := svc.RegisterPatient(context.Background(), req)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegisterPatient_Duplicate(t *testing.T) {
	svc, _, _ := newTestService()
	registerPatient(t, svc)

	_, err := svc.RegisterPatient(context.Background(), validRegistration())
	if !errors.Is(err, apperr.ErrDuplicateKey) {
		t.Fatalf("expected DuplicateKey, got %v", err)
	}
}

func TestUpdatePatient(t *testing.T) {
	svc, _, audit := newTestService()
	p := registerPatient(t, svc)

	contact := "ada@example.org"
	updated, err := svc.UpdatePatient(context.Background(), p.ID, PatientUpdate{ContactInfo: &contact})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ContactInfo != contact || updated.Name != p.Name {
		t.Errorf("unexpected patient after update: %+v", updated)
	}
	if got := audit.actions(p.ID); len(got) != 2 || got[1] != ActionUpdated {
		t.Errorf("expected update audit entry, got %v", got)
	}
}

func TestUpdatePatient_Rejections(t *testing.T) {
	svc, _, _ := newTestService()
	p := registerPatient(t, svc)
	blank := " "

	if _, err := svc.UpdatePatient(context.Background(), p.ID, PatientUpdate{}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("empty update: expected validation, got %v", err)
	}
	if _, err := svc.UpdatePatient(context.Background(), p.ID, PatientUpdate{Name: &blank}); !errors.Is(err, apperr.ErrMissingField) {
		t.Errorf("blank name: expected MissingField, got %v", err)
	}
	name := "Someone"
	if _, err := svc.UpdatePatient(context.Background(), uuid.New(), PatientUpdate{Name: &name}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown patient: expected NotFound, got %v", err)
	}
}

func TestUpdatePatient_AuditFailurePropagates(t *testing.T) {
	svc, _, audit := newTestService()
	p := registerPatient(t, svc)
	audit.err = apperr.Storage("append", errors.New("disk full"))

	name := "Ada O."
	if _, err := svc.UpdatePatient(context.Background(), p.ID, PatientUpdate{Name: &name}); apperr.KindOf(err) != apperr.KindStorageFailure {
		t.Fatalf("expected storage failure, got %v", err)
	}
}

func TestPatientStatusLifecycle(t *testing.T) {
	svc, _, audit := newTestService()
	p := registerPatient(t, svc)
	ctx := context.Background()

	got, err := svc.DeactivatePatient(ctx, p.ID)
	if err != nil || got.Status != PatientInactive {
		t.Fatalf("deactivate: %v %v", got, err)
	}
	got, err = svc.ReactivatePatient(ctx, p.ID)
	if err != nil || got.Status != PatientActive {
		t.Fatalf("reactivate: %v %v", got, err)
	}
	got, err = svc.ArchivePatient(ctx, p.ID)
	if err != nil || got.Status != PatientArchived {
		t.Fatalf("archive: %v %v", got, err)
	}

	if _, err := svc.ReactivatePatient(ctx, p.ID); !errors.Is(err, apperr.ErrTerminalState) {
		t.Errorf("expected archived patient to stay archived, got %v", err)
	}
	name := "New Name"
	if _, err := svc.UpdatePatient(ctx, p.ID, PatientUpdate{Name: &name}); !errors.Is(err, apperr.ErrTerminalState) {
		t.Errorf("expected archived patient to be read-only, got %v", err)
	}

	want := []string{ActionRegistered, ActionDeactivated, ActionReactivated, ActionArchived}
	if got := audit.actions(p.ID); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("audit actions = %v, want %v", got, want)
	}
}

func TestDeactivatePatient_Idempotent(t *testing.T) {
	svc, _, audit := newTestService()
	p := registerPatient(t, svc)

	if _, err := svc.DeactivatePatient(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DeactivatePatient(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	if n := len(audit.actions(p.ID)); n != 2 {
		t.Errorf("expected no audit entry for a no-op change, got %d entries", n)
	}
}

func TestListPatients_Filters(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	for _, name := range []string{"Ada Okafor", "Bram de Vries", "Adaeze Nwosu"} {
		req := validRegistration()
		req.Name = name
		if _, err := svc.RegisterPatient(ctx, req); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := svc.ListPatients(ctx, PatientFilter{Name: " ada "}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 matches for 'ada', got %d", total)
	}

	inactive := PatientInactive
	_, total, _ = svc.ListPatients(ctx, PatientFilter{Status: &inactive}, 10, 0)
	if total != 0 {
		t.Errorf("expected no inactive patients, got %d", total)
	}
}

func TestPatientAuditHistory_UnknownPatient(t *testing.T) {
	svc, _, _ := newTestService()
	if _, _, err := svc.PatientAuditHistory(context.Background(), uuid.New(), 10, 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestParsePatientStatus(t *testing.T) {
	for _, s := range []string{"active", "INACTIVE", " archived "} {
		if _, err := ParsePatientStatus(s); err != nil {
			t.Errorf("ParsePatientStatus(%q): %v", s, err)
		}
	}
	if _, err := ParsePatientStatus("deleted"); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/hms/internal/domain/clinical"
	"github.com/hospital/hms/internal/platform/apperr"
	"github.com/hospital/hms/internal/platform/auth"
)

func TestClinical_RecordLifecycle(t *testing.T) {
	env := newTenant(t, "clin")
	ctx := auth.WithPrincipal(context.Background(), "dr-okafor", []string{string(auth.RoleDoctor)})
	patient := createTestPatient(t, env, "Amara Nwosu")

	rec, err := env.Clinical.CreateRecord(ctx, patient.ID)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if _, err := env.Clinical.CreateRecord(ctx, patient.ID); !errors.Is(err, apperr.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key for a second record, got %v", err)
	}

	if _, err := env.Clinical.AddDiagnosis(ctx, patient.ID, clinical.DiagnosisRequest{
		Code: "E11.9", Description: "Type 2 diabetes mellitus without complications",
	}); err != nil {
		t.Fatalf("add diagnosis: %v", err)
	}
	started := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	if _, err := env.Clinical.AddTreatment(ctx, patient.ID, clinical.TreatmentRequest{
		Type: "medication", Description: "Metformin 500mg twice daily", StartedAt: &started,
	}); err != nil {
		t.Fatalf("add treatment: %v", err)
	}
	if _, err := env.Clinical.AddClinicalNote(ctx, patient.ID, clinical.NoteRequest{Text: "Counselled on diet"}); err != nil {
		t.Fatalf("add note: %v", err)
	}

	got, err := env.Clinical.GetRecord(ctx, patient.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.ID != rec.ID || got.Version != 4 {
		t.Errorf("expected record %s at version 4, got %s at %d", rec.ID, got.ID, got.Version)
	}
	if len(got.Diagnoses) != 1 || len(got.Treatments) != 1 || len(got.Notes) != 1 {
		t.Fatalf("unexpected entries: %d diagnoses, %d treatments, %d notes",
			len(got.Diagnoses), len(got.Treatments), len(got.Notes))
	}
	if got.Notes[0].CreatedBy != "dr-okafor" || got.Notes[0].RecordVersion != 4 {
		t.Errorf("unexpected note: %+v", got.Notes[0])
	}
	if !got.Treatments[0].StartedAt.Equal(started) || got.Treatments[0].EndedAt != nil {
		t.Errorf("unexpected treatment period: %+v", got.Treatments[0])
	}

	history, err := env.Clinical.RecordHistory(ctx, patient.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	wantChanges := []clinical.Change{
		clinical.ChangeNoteAdded, clinical.ChangeTreatmentAdded, clinical.ChangeDiagnosisAdded, clinical.ChangeCreated,
	}
	if len(history) != len(wantChanges) {
		t.Fatalf("expected %d versions, got %d", len(wantChanges), len(history))
	}
	for i, v := range history {
		if v.Change != wantChanges[i] || v.Version != len(wantChanges)-i {
			t.Errorf("version %d: got %s at %d", i, v.Change, v.Version)
		}
	}
	if history[3].EntryID != nil || history[0].EntryID == nil || *history[0].EntryID != got.Notes[0].ID {
		t.Errorf("history entries not linked: %+v", history)
	}
}

func TestClinical_UnknownPatient(t *testing.T) {
	env := newTenant(t, "clin")
	ctx := context.Background()

	if _, err := env.Clinical.CreateRecord(ctx, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for an unregistered patient, got %v", err)
	}
	patient := createTestPatient(t, env, "Jonah Peretz")
	if _, err := env.Clinical.GetRecord(ctx, patient.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found before a record exists, got %v", err)
	}
}

func TestClinical_ConcurrentNotesGetDistinctVersions(t *testing.T) {
	env := newTenant(t, "clin")
	ctx := context.Background()
	patient := createTestPatient(t, env, "Lena Fischer")
	if _, err := env.Clinical.CreateRecord(ctx, patient.ID); err != nil {
		t.Fatal(err)
	}

	const writers = 8
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.Clinical.AddClinicalNote(ctx, patient.ID, clinical.NoteRequest{Text: "Vitals stable"}); err != nil {
				t.Errorf("add note: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := env.Clinical.GetRecord(ctx, patient.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Version != writers+1 || len(rec.Notes) != writers {
		t.Fatalf("expected version %d with %d notes, got %d with %d", writers+1, writers, rec.Version, len(rec.Notes))
	}
	seen := map[int]bool{}
	for _, n := range rec.Notes {
		if seen[n.RecordVersion] {
			t.Errorf("version %d stamped on two notes", n.RecordVersion)
		}
		seen[n.RecordVersion] = true
	}
}

package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/hms/internal/platform/apperr"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func expectHTTP(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d", code, he.Code)
	}
	return he
}

func TestHandler_ScheduleAppointment(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient_id":"` + patient.String() + `","doctor_id":"` + doctorA.String() + `","scheduled_time":"2025-06-02T11:00:00+02:00"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ScheduleAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if !a.ScheduledTime.Equal(nineAM) || a.ScheduledTime.Location() != time.UTC {
		t.Errorf("expected 09:00 UTC, got %v", a.ScheduledTime)
	}
}

func TestHandler_ScheduleAppointment_ConflictIs400(t *testing.T) {
	h, e := newTestHandler()
	book(t, h.svc, doctorA, nineAM)

	body := `{"patient_id":"` + uuid.New().String() + `","doctor_id":"` + doctorA.String() + `","scheduled_time":"2025-06-02T09:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	he := expectHTTP(t, h.ScheduleAppointment(c), http.StatusBadRequest)
	if b, ok := he.Message.(apperr.Body); !ok || b.Code != apperr.CodeSlotConflict {
		t.Errorf("expected slot_conflict body, got %#v", he.Message)
	}
}

func TestHandler_CancelAppointment(t *testing.T) {
	h, e := newTestHandler()
	a := book(t, h.svc, doctorA, nineAM)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.CancelAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"cancelled"`) {
		t.Errorf("expected cancelled appointment, got %s", rec.Body.String())
	}
}

func TestHandler_CancelAppointment_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("abc")

	expectHTTP(t, h.CancelAppointment(c), http.StatusBadRequest)
}

func TestHandler_RescheduleAppointment_Terminal(t *testing.T) {
	h, e := newTestHandler()
	a := book(t, h.svc, doctorA, nineAM)
	h.svc.CancelAppointment(context.Background(), a.ID)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"scheduled_time":"2025-06-02T10:00:00Z"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	expectHTTP(t, h.RescheduleAppointment(c), http.StatusConflict)
}

func TestHandler_ListAvailableSlots(t *testing.T) {
	h, e := newTestHandler()
	book(t, h.svc, doctorA, nineAM)

	req := httptest.NewRequest(http.MethodGet, "/?start=2025-06-02T09:00:00Z&end=2025-06-02T10:00:00Z", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(doctorA.String())

	if err := h.ListAvailableSlots(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Slots) != 2 || !resp.Slots[0].Equal(nineAM.Add(30*time.Minute)) {
		t.Errorf("expected 09:30 and 10:00, got %v", resp.Slots)
	}
}

func TestHandler_ListAvailableSlots_BadQuery(t *testing.T) {
	h, e := newTestHandler()
	for _, q := range []string{"/?start=yesterday&end=2025-06-02T10:00:00Z", "/?start=2025-06-02T09:00:00Z"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, q, nil), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(doctorA.String())
		expectHTTP(t, h.ListAvailableSlots(c), http.StatusBadRequest)
	}
}

func TestHandler_ListByPatient(t *testing.T) {
	h, e := newTestHandler()
	book(t, h.svc, doctorA, nineAM)
	book(t, h.svc, doctorB, nineAM)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+patient.String()+"/appointments?limit=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(patient.String())

	if err := h.ListByPatient(c); err != nil {
		t.Fatal(err)
	}
	var resp struct {
		Total   int    `json:"total"`
		HasMore bool   `json:"has_more"`
		Next    string `json:"next"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 || !resp.HasMore || !strings.Contains(resp.Next, "offset=1") {
		t.Errorf("unexpected page: %+v", resp)
	}
}

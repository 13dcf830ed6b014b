package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drfirst/go-clinicrx/internal/domain"
	"github.com/drfirst/go-clinicrx/internal/domain/prescription"
	"github.com/drfirst/go-clinicrx/internal/domain/reference"
	"github.com/drfirst/go-clinicrx/internal/observability/metrics"
)

type fakeOptions struct {
	lists map[reference.Kind][]reference.Option
	err   error
}

func (f *fakeOptions) List(_ context.Context, kind reference.Kind) ([]reference.Option, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lists[kind], nil
}

type fakeRegistry struct {
	nextID int64
	added  []CreatePatientRequest
	err    error
}

func (f *fakeRegistry) Add(_ context.Context, name, phone, email string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.added = append(f.added, CreatePatientRequest{Name: name, Phone: phone, Email: email})
	f.nextID++
	return f.nextID, nil
}

type fakeService struct {
	created []prescription.Request
	listing []prescription.Listing
	err     error
}

func (f *fakeService) Create(_ context.Context, req prescription.Request) (*prescription.Prescription, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := prescription.CheckDosage(req.Dosage); err != nil {
		return nil, err
	}
	f.created = append(f.created, req)
	return &prescription.Prescription{
		ID:     int64(len(f.created)),
		Dosage: req.Dosage,
		Date:   time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeService) List(context.Context) ([]prescription.Listing, error) {
	return f.listing, f.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func newRouter(reg *fakeRegistry, opts *fakeOptions, svc *fakeService) (chi.Router, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Mount("/patients", NewPatientHandler(reg, opts, nil, m).Routes())
	r.Mount("/doctors", NewReferenceHandler(reference.KindDoctor, opts, nil, m).Routes())
	r.Mount("/medications", NewReferenceHandler(reference.KindMedication, opts, nil, m).Routes())
	r.Mount("/prescriptions", NewPrescriptionHandler(svc, nil, m).Routes())
	return r, m
}

func TestPatientHandler_Create(t *testing.T) {
	reg := &fakeRegistry{nextID: 6}
	r, _ := newRouter(reg, &fakeOptions{}, &fakeService{})

	rec := do(t, r, "POST", "/patients", `{"name":"Jane Doe","phone":"555-0100","email":"jane@example.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[CreatePatientResponse](t, rec); got.ID != 7 {
		t.Errorf("id = %d, want 7", got.ID)
	}
	if len(reg.added) != 1 || reg.added[0].Email != "jane@example.com" {
		t.Errorf("registry got %+v", reg.added)
	}
}

func TestPatientHandler_CreateAcceptsEmptyFields(t *testing.T) {
	reg := &fakeRegistry{}
	r, _ := newRouter(reg, &fakeOptions{}, &fakeService{})

	rec := do(t, r, "POST", "/patients", `{}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if reg.added[0] != (CreatePatientRequest{}) {
		t.Errorf("fields should be passed through verbatim, got %+v", reg.added[0])
	}
}

func TestPatientHandler_CreateErrors(t *testing.T) {
	r, _ := newRouter(&fakeRegistry{err: domain.NewStorageError("insert patient", errors.New("secret detail"))},
		&fakeOptions{}, &fakeService{})

	rec := do(t, r, "POST", "/patients", `{"name":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d", rec.Code)
	}

	rec = do(t, r, "POST", "/patients", `{"name":"x"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("storage error: status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret detail") {
		t.Error("storage detail must not be echoed")
	}
	if got := decodeBody[ErrorResponse](t, rec); got.Code != "storage_error" {
		t.Errorf("code = %s", got.Code)
	}
}

func TestReferenceHandlers_List(t *testing.T) {
	opts := &fakeOptions{lists: map[reference.Kind][]reference.Option{
		reference.KindPatient:    {{ID: 1, Label: "Jane Doe"}},
		reference.KindDoctor:     {{ID: 3, Label: "Dr. Amelia Hart"}, {ID: 4, Label: "Dr. Naomi Chen"}},
		reference.KindMedication: {},
	}}
	r, _ := newRouter(&fakeRegistry{}, opts, &fakeService{})

	tests := []struct {
		path string
		want int
	}{
		{"/patients", 1},
		{"/doctors", 2},
		{"/medications", 0},
	}
	for _, tt := range tests {
		rec := do(t, r, "GET", tt.path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.path, rec.Code)
		}
		got := decodeBody[[]reference.Option](t, rec)
		if len(got) != tt.want {
			t.Errorf("%s: %d options, want %d", tt.path, len(got), tt.want)
		}
	}

	rec := do(t, r, "GET", "/doctors", "")
	if !strings.Contains(rec.Body.String(), `"label":"Dr. Amelia Hart"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestReferenceHandler_StorageError(t *testing.T) {
	r, _ := newRouter(&fakeRegistry{}, &fakeOptions{err: domain.NewStorageError("list doctor", errors.New("down"))}, &fakeService{})
	if rec := do(t, r, "GET", "/doctors", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPrescriptionHandler_Create(t *testing.T) {
	svc := &fakeService{}
	r, _ := newRouter(&fakeRegistry{}, &fakeOptions{}, svc)

	rec := do(t, r, "POST", "/prescriptions",
		`{"patient_id":1,"doctor_id":2,"medication_id":3,"dosage":"500 mg daily"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[CreatePrescriptionResponse](t, rec)
	if got.ID != 1 || got.Date != "2026-10-19" {
		t.Errorf("response = %+v", got)
	}
	if svc.created[0] != (prescription.Request{PatientID: 1, DoctorID: 2, MedicationID: 3, Dosage: "500 mg daily"}) {
		t.Errorf("service got %+v", svc.created[0])
	}
}

func TestPrescriptionHandler_ErrorMapping(t *testing.T) {
	fk := fmt.Errorf("%w: %w", domain.ErrReferenceSelection,
		domain.NewStorageError("insert prescription", errors.New("violates foreign key")))

	tests := []struct {
		name       string
		svcErr     error
		body       string
		wantStatus int
		wantCode   string
	}{
		{"dosage too high", nil, `{"patient_id":1,"doctor_id":2,"medication_id":3,"dosage":"2500 mg daily"}`,
			http.StatusUnprocessableEntity, "dosage_too_high"},
		{"reference selection", fk, `{"patient_id":1,"doctor_id":2,"medication_id":99,"dosage":"5 mg"}`,
			http.StatusBadRequest, "reference_selection"},
		{"storage", domain.NewStorageError("insert prescription", errors.New("down")),
			`{"patient_id":1,"doctor_id":2,"medication_id":3,"dosage":"5 mg"}`,
			http.StatusInternalServerError, "storage_error"},
		{"malformed", nil, `{"patient_id":"1 - Jane"}`, http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{err: tt.svcErr}
			r, _ := newRouter(&fakeRegistry{}, &fakeOptions{}, svc)

			rec := do(t, r, "POST", "/prescriptions", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			got := decodeBody[ErrorResponse](t, rec)
			if got.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", got.Code, tt.wantCode)
			}
			if len(svc.created) != 0 {
				t.Error("nothing should be created")
			}
		})
	}
}

func TestPrescriptionHandler_DosageErrorCarriesExample(t *testing.T) {
	r, _ := newRouter(&fakeRegistry{}, &fakeOptions{}, &fakeService{})

	rec := do(t, r, "POST", "/prescriptions",
		`{"patient_id":1,"doctor_id":2,"medication_id":3,"dosage":"2500 mg daily"}`)
	got := decodeBody[ErrorResponse](t, rec)
	if got.Example != prescription.DosageExample {
		t.Errorf("example = %q", got.Example)
	}
	if !strings.Contains(got.Error, "2500") {
		t.Errorf("error should name the parsed amount: %q", got.Error)
	}
}

func TestPrescriptionHandler_List(t *testing.T) {
	d := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	svc := &fakeService{listing: []prescription.Listing{
		{ID: 2, PatientName: "Jane Doe", DoctorName: "Dr. Amelia Hart", MedicationName: "Ibuprofen", Dosage: "200 mg", Date: d},
		{ID: 1, PatientName: "John Roe", DoctorName: "Dr. Naomi Chen", MedicationName: "Amoxicillin", Dosage: "500 mg daily", Date: d.AddDate(0, 0, -1)},
	}}
	r, _ := newRouter(&fakeRegistry{}, &fakeOptions{}, svc)

	rec := do(t, r, "GET", "/prescriptions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rows := decodeBody[[]PrescriptionRow](t, rec)
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].PatientName != "Jane Doe" || rows[0].Date != "2026-10-19" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Date != "2026-10-18" {
		t.Errorf("row 1 date = %s", rows[1].Date)
	}
}

func TestPrescriptionHandler_ListEmpty(t *testing.T) {
	r, _ := newRouter(&fakeRegistry{}, &fakeOptions{}, &fakeService{})

	rec := do(t, r, "GET", "/prescriptions", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list should encode as [], got %s", rec.Body.String())
	}
}

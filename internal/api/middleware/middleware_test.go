package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/observability/metrics"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("generated id %q not echoed (header %q)", seen, rec.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" {
		t.Errorf("incoming id not reused, got %q", seen)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	keys := map[string]string{"k1": "front-desk"}

	var client string
	h := APIKeyAuth(keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client = GetClientID(r.Context())
	}))

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantClient string
	}{
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"invalid", "X-API-Key", "nope", http.StatusUnauthorized, ""},
		{"header", "X-API-Key", "k1", http.StatusOK, "front-desk"},
		{"bearer", "Authorization", "Bearer k1", http.StatusOK, "front-desk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client = ""
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if client != tt.wantClient {
				t.Errorf("client = %q, want %q", client, tt.wantClient)
			}
			if tt.wantStatus == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("expected JSON error body, got %s", rec.Body.String())
			}
		})
	}
}

func TestRecover(t *testing.T) {
	h := Recover(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/patients", nil))
	if rec.Code != http.StatusNoContent || called {
		t.Errorf("preflight: status %d, called %v", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow-origin header")
	}
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/patients/{id}", okHandler)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/patients/42", nil))

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	want := `clinic_http_request_duration_seconds_count{method="GET",route="/patients/{id}",status="200"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("missing %s in\n%s", want, body)
	}
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	w := wrap(httptest.NewRecorder())
	w.WriteHeader(http.StatusCreated)
	w.WriteHeader(http.StatusInternalServerError)
	if w.statusCode != http.StatusCreated {
		t.Errorf("status = %d", w.statusCode)
	}
}

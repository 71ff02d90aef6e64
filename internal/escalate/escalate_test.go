package escalate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SoftwearDevelopment/spynl/internal/codec"
	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
	"github.com/SoftwearDevelopment/spynl/internal/metrics"
	"github.com/SoftwearDevelopment/spynl/internal/monitoring"
	"github.com/SoftwearDevelopment/spynl/internal/request"
	"github.com/SoftwearDevelopment/spynl/internal/server"
)

type recordingReporter struct {
	mu        sync.Mutex
	incidents []monitoring.Incident
	err       error
}

func (r *recordingReporter) Report(_ context.Context, inc monitoring.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, inc)
	return r.err
}

func TestClassify(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/missing/thing", nil)

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantType    string
		wantMessage string
		wantMonitor bool
	}{
		{
			name:        "spynl error",
			err:         domain.ErrMissingParameter("username"),
			wantStatus:  http.StatusBadRequest,
			wantType:    "MissingParameter",
			wantMessage: "Missing required parameter: username",
			wantMonitor: true,
		},
		{
			name:        "wrapped spynl error",
			err:         fmt.Errorf("login: %w", domain.ErrIllegalAction("not now")),
			wantStatus:  http.StatusBadRequest,
			wantType:    "IllegalAction",
			wantMessage: "not now",
			wantMonitor: true,
		},
		{
			name:        "bad origin is not monitored",
			err:         domain.ErrBadOrigin("http://evil.com"),
			wantStatus:  http.StatusForbidden,
			wantType:    "BadOrigin",
			wantMessage: "Requests to the Spynl API are not permitted from origin 'http://evil.com'.",
		},
		{
			name:        "bad origin flagged for monitoring",
			err:         domain.ErrBadOrigin("http://evil.com").WithMonitor(),
			wantStatus:  http.StatusForbidden,
			wantType:    "BadOrigin",
			wantMessage: "Requests to the Spynl API are not permitted from origin 'http://evil.com'.",
			wantMonitor: true,
		},
		{
			name:        "internal spynl error is masked",
			err:         domain.ErrInternal("db password wrong"),
			wantStatus:  http.StatusInternalServerError,
			wantType:    "InternalServerError",
			wantMessage: InternalErrorMessage,
			wantMonitor: true,
		},
		{
			name:        "not found",
			err:         domain.NewHTTPError(http.StatusNotFound, ""),
			wantStatus:  http.StatusNotFound,
			wantType:    "HTTPNotFound",
			wantMessage: "No endpoint found for path '/missing/thing'.",
		},
		{
			name:        "permission denied",
			err:         domain.ErrPermissionDenied("edit", "in context tenants"),
			wantStatus:  http.StatusForbidden,
			wantType:    "HTTPForbidden",
			wantMessage: "Permission to 'edit' in context tenants was denied.",
		},
		{
			name:        "http error uses explanation",
			err:         domain.NewHTTPError(http.StatusMethodNotAllowed, ""),
			wantStatus:  http.StatusMethodNotAllowed,
			wantType:    "HTTPMethodNotAllowed",
			wantMessage: "Method Not Allowed",
			wantMonitor: true,
		},
		{
			name:        "http error detail replaces message",
			err:         domain.NewHTTPError(http.StatusConflict, "already exists"),
			wantStatus:  http.StatusConflict,
			wantType:    "HTTPConflict",
			wantMessage: "already exists",
			wantMonitor: true,
		},
		{
			name:        "http error detail with type",
			err:         domain.NewHTTPError(http.StatusBadRequest, "DuplicateKey: tenant exists"),
			wantStatus:  http.StatusBadRequest,
			wantType:    "DuplicateKey",
			wantMessage: "tenant exists",
			wantMonitor: true,
		},
		{
			name:        "http internal server error",
			err:         domain.NewHTTPError(http.StatusInternalServerError, "disk full"),
			wantStatus:  http.StatusInternalServerError,
			wantType:    "HTTPInternalServerError",
			wantMessage: InternalErrorMessage,
			wantMonitor: true,
		},
		{
			name:        "unanticipated error",
			err:         errors.New("nil pointer"),
			wantStatus:  http.StatusInternalServerError,
			wantType:    "InternalServerError",
			wantMessage: InternalErrorMessage,
			wantMonitor: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Classify(tt.err, req)
			if rep.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", rep.Status, tt.wantStatus)
			}
			if rep.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", rep.Type, tt.wantType)
			}
			if rep.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", rep.Message, tt.wantMessage)
			}
			if rep.Monitor != tt.wantMonitor {
				t.Errorf("Monitor = %v, want %v", rep.Monitor, tt.wantMonitor)
			}
		})
	}
}

func TestClassify_ArgumentValidation(t *testing.T) {
	var target struct {
		Name string `json:"name" validate:"required"`
		Age  int    `json:"age" validate:"gte=18"`
	}
	err := request.Args{"age": 3}.Bind(&target)
	if err == nil {
		t.Fatal("Bind() should fail")
	}

	rep := Classify(err, httptest.NewRequest(http.MethodPost, "/people/add", nil))
	if rep.Status != http.StatusBadRequest || rep.Type != "ValidationError" {
		t.Fatalf("report = %+v", rep)
	}
	details, ok := rep.Details.([]map[string]any)
	if !ok || len(details) != 2 {
		t.Fatalf("Details = %#v", rep.Details)
	}
	if details[0]["field"] != "name" || details[0]["rule"] != "required" {
		t.Errorf("details[0] = %v", details[0])
	}
	if details[1]["field"] != "age" || details[1]["param"] != "18" {
		t.Errorf("details[1] = %v", details[1])
	}
}

func TestReport_LogType(t *testing.T) {
	tests := map[string]string{
		"MalformedRequestException": "MalformedRequest",
		"SpynlException":            "Spynl",
		"BadOrigin":                 "BadOrigin",
	}
	for in, want := range tests {
		if got := (Report{Type: in}).LogType(); got != want {
			t.Errorf("LogType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReport_BodyOmitsDebugMessage(t *testing.T) {
	rep := Classify(domain.ErrIllegalAction("nope").WithDebugMessage("secret"), httptest.NewRequest(http.MethodGet, "/", nil))
	body := rep.Body()
	for _, v := range body {
		if v == "secret" {
			t.Fatalf("body leaks debug message: %v", body)
		}
	}
	if body["status"] != "error" || body["developer_message"] != "nope" {
		t.Errorf("body = %v", body)
	}
}

func newEscalator(buf *bytes.Buffer) (*Escalator, *recordingReporter, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reporter := &recordingReporter{}
	return &Escalator{
		Codecs:   codec.NewDefaultRegistry(codec.DefaultHooks()),
		Reporter: reporter,
		Metrics:  metrics.NewWithRegistry(reg),
		Logger:   slog.New(slog.NewJSONHandler(buf, nil)),
	}, reporter, reg
}

func TestEscalator_Handle(t *testing.T) {
	var buf bytes.Buffer
	esc, reporter, _ := newEscalator(&buf)

	req := httptest.NewRequest(http.MethodGet, "/tenants/get", nil)
	req.Header.Set(request.HeaderSessionID, "abc")
	req.Header.Set(request.HeaderForwardedFor, "10.0.0.1, 10.0.0.2")
	rec := httptest.NewRecorder()

	esc.Handle(rec, req, errors.New("database exploded"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, codec.ContentTypeJSON) {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "error" || body["message"] != InternalErrorMessage {
		t.Errorf("body = %v", body)
	}
	if strings.Contains(rec.Body.String(), "database exploded") {
		t.Error("response leaks the original error")
	}

	if len(reporter.incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(reporter.incidents))
	}
	inc := reporter.incidents[0]
	if inc.IP != "10.0.0.1" || inc.SessionID != "abc" || inc.DebugMessage != "database exploded" {
		t.Errorf("incident = %+v", inc)
	}

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if record["level"] != "ERROR" || record["err_type"] != "InternalServerError" {
		t.Errorf("record = %v", record)
	}
	user, _ := record["user"].(map[string]any)
	if user["ipaddress"] != "10.0.0.1" || user["sid"] != "abc" {
		t.Errorf("user = %v", record["user"])
	}
}

func TestEscalator_HandleNotReported(t *testing.T) {
	var buf bytes.Buffer
	esc, reporter, reg := newEscalator(&buf)

	rec := httptest.NewRecorder()
	esc.Handle(rec, httptest.NewRequest(http.MethodGet, "/nope", nil), domain.NewHTTPError(http.StatusNotFound, ""))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if len(reporter.incidents) != 0 {
		t.Errorf("not found should not be reported, got %d incidents", len(reporter.incidents))
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Errorf("log = %s", buf.String())
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "spynl_errors_total" {
			found = true
		}
	}
	if !found {
		t.Error("spynl_errors_total not recorded")
	}
}

func TestEscalator_HandleNegotiatesContentType(t *testing.T) {
	var buf bytes.Buffer
	esc, _, _ := newEscalator(&buf)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", codec.ContentTypeXML)
	rec := httptest.NewRecorder()
	esc.Handle(rec, req, domain.ErrIllegalParameter("limit"))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, codec.ContentTypeXML) {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Illegal parameter: limit") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestEscalator_ReportFailureStillResponds(t *testing.T) {
	var buf bytes.Buffer
	esc, reporter, _ := newEscalator(&buf)
	reporter.err = errors.New("sentry down")

	rec := httptest.NewRecorder()
	esc.Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil), domain.New("boom"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "failed to report incident") {
		t.Errorf("log = %s", buf.String())
	}
}

func TestEscalator_HandlePanicLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	esc, reporter, _ := newEscalator(&buf)

	handler := server.RecoverMiddleware(esc.Logger, esc.Handle)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("log records = %d, want 1:\n%s", len(lines), buf.String())
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	source, _ := record["err_source"].(string)
	if !strings.HasPrefix(source, "escalate_test.go:") {
		t.Errorf("err_source = %q, want the panic site", source)
	}
	if stack, _ := record["stack"].(string); stack == "" {
		t.Error("stack missing from log record")
	}
	if len(reporter.incidents) != 1 || reporter.incidents[0].Source != source {
		t.Errorf("incidents = %+v", reporter.incidents)
	}
}

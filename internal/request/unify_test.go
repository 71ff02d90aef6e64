package request

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/SoftwearDevelopment/spynl/internal/codec"
	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
)

func newUnifier() *Unifier {
	return &Unifier{Codecs: codec.NewDefaultRegistry(codec.DefaultHooks())}
}

func TestUnify_Precedence(t *testing.T) {
	body := `{"a": "body", "b": "body", "c": "body"}`
	req := httptest.NewRequest(http.MethodPost, "/tenants/get?b=query&n=5&flag=true&filter=%7B%22x%22%3A%5B1%2C2%5D%7D", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Spynl-A", "header")
	req.Header.Set("X-Spynl-Delimiter", ";")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	req.AddCookie(&http.Cookie{Name: "c", Value: "cookie"})
	req.AddCookie(&http.Cookie{Name: "d", Value: "cookie"})

	ctx, err := newUnifier().Unify(httptest.NewRecorder(), req, "get", "/tenants/get")
	if err != nil {
		t.Fatalf("Unify() error = %v", err)
	}

	expected := map[string]any{
		"x-spynl-a":         "header",
		"x-spynl-delimiter": ";",
		"X-Forwarded-For":   "10.0.0.1, 10.0.0.2",
		"a":                 "body",
		"b":                 "query",
		"c":                 "body",
		"d":                 "cookie",
		"n":                 int64(5),
		"flag":              true,
		"filter":            map[string]any{"x": []any{int64(1), int64(2)}},
	}
	for k, want := range expected {
		if got := ctx.Args[k]; !reflect.DeepEqual(got, want) {
			t.Errorf("Args[%q] = %#v, want %#v", k, got, want)
		}
	}
	if len(ctx.Args) != len(expected) {
		t.Errorf("Args has %d keys, want %d: %v", len(ctx.Args), len(expected), ctx.Args)
	}
	if ctx.IP() != "10.0.0.1" {
		t.Errorf("IP() = %q, want 10.0.0.1", ctx.IP())
	}
	if ctx.EndpointMethod != "get" {
		t.Errorf("EndpointMethod = %q", ctx.EndpointMethod)
	}
}

func TestUnify_BodyIgnoredForGet(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ping", strings.NewReader(`{"a": 1}`))
	ctx, err := newUnifier().Unify(httptest.NewRecorder(), req, "ping", "/ping")
	if err != nil {
		t.Fatalf("Unify() error = %v", err)
	}
	if _, ok := ctx.Args["a"]; ok {
		t.Error("GET body should not contribute arguments")
	}
}

func TestUnify_SessionIDMovesToHeader(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"from query", func(r *http.Request) { r.URL.RawQuery = "sid=abc" }},
		{"from cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sid", Value: "abc"}) }},
		{"from header", func(r *http.Request) { r.Header.Set("sid", "abc") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			tt.setup(req)

			ctx, err := newUnifier().Unify(httptest.NewRecorder(), req, "ping", "/ping")
			if err != nil {
				t.Fatalf("Unify() error = %v", err)
			}
			if _, ok := ctx.Args["sid"]; ok {
				t.Error("sid should be removed from the arguments")
			}
			if got := ctx.SessionID(); got != "abc" {
				t.Errorf("SessionID() = %q, want abc", got)
			}
		})
	}
}

func TestUnify_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		maxBytes    int64
		check       func(error) bool
	}{
		{
			name:  "undetermined",
			body:  "plain text",
			check: func(err error) bool { return domain.IsKind(err, domain.KindUndeterminedContentType) },
		},
		{
			name:        "malformed",
			body:        `{"a":`,
			contentType: "application/json",
			check:       func(err error) bool { return domain.IsKind(err, domain.KindMalformedRequest) },
		},
		{
			name:        "too large",
			body:        `{"a": "0123456789"}`,
			contentType: "application/json",
			maxBytes:    5,
			check: func(err error) bool {
				var httpErr *domain.HTTPError
				return errors.As(err, &httpErr) && httpErr.Status == http.StatusRequestEntityTooLarge
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			u := newUnifier()
			u.MaxBytes = tt.maxBytes
			_, err := u.Unify(httptest.NewRecorder(), req, "x", "/x")
			if !tt.check(err) {
				t.Errorf("Unify() error = %v", err)
			}
		})
	}
}

func TestUnify_CustomBodyParser(t *testing.T) {
	u := newUnifier()
	u.BodyParser = func(r *http.Request) (map[string]any, error) {
		return map[string]any{"parsed": "custom"}, nil
	}
	req := httptest.NewRequest(http.MethodPut, "/x", strings.NewReader("anything"))
	ctx, err := u.Unify(httptest.NewRecorder(), req, "x", "/x")
	if err != nil {
		t.Fatalf("Unify() error = %v", err)
	}
	if ctx.Args["parsed"] != "custom" {
		t.Errorf("Args = %v", ctx.Args)
	}
}

func TestQueryArgs_RepeatedKeys(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?tag=a&tag=b&tag=3", nil)
	got, err := newUnifier().QueryArgs(req)
	if err != nil {
		t.Fatalf("QueryArgs() error = %v", err)
	}
	if !reflect.DeepEqual(got["tag"], []any{"a", "b", int64(3)}) {
		t.Errorf("tag = %#v", got["tag"])
	}

	req = httptest.NewRequest(http.MethodGet, "/x?filter=%7Bbroken", nil)
	if _, err := newUnifier().QueryArgs(req); !domain.IsKind(err, domain.KindIllegalParameter) {
		t.Errorf("QueryArgs() error = %v, want IllegalParameter", err)
	}
}

func TestEndpointMethod(t *testing.T) {
	tests := []struct {
		method, name, path string
		expected           string
	}{
		{http.MethodGet, "count", "/tenants/count", "count"},
		{http.MethodPost, "tenants", "/tenants", "edit"},
		{http.MethodGet, "tenants", "/tenants", "get"},
		{http.MethodGet, "", "/tenants", "get"},
		{http.MethodDelete, "", "/tenants", "tenants"},
	}
	for _, tt := range tests {
		if got := EndpointMethod(tt.method, tt.name, tt.path); got != tt.expected {
			t.Errorf("EndpointMethod(%s, %q, %q) = %q, want %q", tt.method, tt.name, tt.path, got, tt.expected)
		}
	}
}

func TestArgs_Require(t *testing.T) {
	args := Args{"a": "x", "empty": "", "nil": nil}

	if err := args.Require("a"); err != nil {
		t.Errorf("Require(a) error = %v", err)
	}
	for _, key := range []string{"missing", "empty", "nil"} {
		err := args.Require("a", key)
		if !domain.IsKind(err, domain.KindMissingParameter) {
			t.Errorf("Require(%s) error = %v, want MissingParameter", key, err)
			continue
		}
		if err.Error() != "Missing required parameter: "+key {
			t.Errorf("message = %q", err.Error())
		}
	}
}

func TestArgs_Bind(t *testing.T) {
	type tenantQuery struct {
		ID    string `json:"id" validate:"required"`
		Limit int    `json:"limit" validate:"min=1,max=100"`
	}

	var q tenantQuery
	if err := (Args{"id": "t1", "limit": int64(10)}).Bind(&q); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if q.ID != "t1" || q.Limit != 10 {
		t.Errorf("Bind() = %+v", q)
	}

	err := (Args{"limit": int64(500)}).Bind(&tenantQuery{})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Bind() error = %v, want ValidationErrors", err)
	}
	fields := map[string]string{}
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	if fields["id"] != "required" || fields["limit"] != "max" {
		t.Errorf("validation fields = %v", fields)
	}

	err = (Args{"id": "t1", "limit": "many"}).Bind(&tenantQuery{})
	if !domain.IsKind(err, domain.KindIllegalParameter) {
		t.Errorf("Bind() error = %v, want IllegalParameter", err)
	}
}

func TestArgs_Helpers(t *testing.T) {
	args := Args{"n": int64(3), "s": "a, b", "flag": "true", "list": []any{"x"}}
	if args.String("n") != "3" {
		t.Errorf("String(n) = %q", args.String("n"))
	}
	if !args.Bool("flag") {
		t.Error("Bool(flag) = false")
	}
	if got := args.List("s"); !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Errorf("List(s) = %v", got)
	}
	if got := args.List("list"); !reflect.DeepEqual(got, []any{"x"}) {
		t.Errorf("List(list) = %v", got)
	}
}

package endpoint

import (
	"net/http"
	"strings"
	"testing"

	"github.com/SoftwearDevelopment/spynl/internal/request"
	"github.com/SoftwearDevelopment/spynl/internal/validation"
)

func noop(*request.Context) (any, error) { return nil, nil }

func TestEndpoint_Path(t *testing.T) {
	tests := []struct {
		resource, name string
		expected       string
	}{
		{"", "ping", "/ping"},
		{"about", "build", "/about/build"},
		{"about", "", "/about"},
		{"/tenants/", "/count", "/tenants/count"},
	}
	for _, tt := range tests {
		e := Endpoint{Resource: tt.resource, Name: tt.name}
		if got := e.Path(); got != tt.expected {
			t.Errorf("Path(%q, %q) = %q, want %q", tt.resource, tt.name, got, tt.expected)
		}
	}
}

func TestEndpoint_AllowedMethods(t *testing.T) {
	if got := (Endpoint{}).AllowedMethods(); len(got) != 2 || got[0] != http.MethodGet {
		t.Errorf("default methods = %v", got)
	}
	e := Endpoint{Methods: []string{http.MethodPost}}
	if got := e.AllowedMethods(); len(got) != 1 || got[0] != http.MethodPost {
		t.Errorf("methods = %v", got)
	}
}

func TestRegistry_Add(t *testing.T) {
	r := NewRegistry()

	if err := r.Add(Endpoint{Name: "ping", Handler: noop, Plugin: "core"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add(Endpoint{Resource: "about", Handler: noop}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	tests := []struct {
		name     string
		endpoint Endpoint
		contains string
	}{
		{"no name", Endpoint{Handler: noop}, "name cannot be empty"},
		{"no handler", Endpoint{Name: "x"}, "must have a handler"},
		{"duplicate", Endpoint{Name: "ping", Handler: noop}, `already registered by plugin "core"`},
		{
			"bad validations",
			Endpoint{Name: "y", Handler: noop, Validations: []validation.Instruction{{In: validation.Response}}},
			"Missing field: schema",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Add(tt.endpoint)
			if err == nil || !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Add() error = %v, want it to contain %q", err, tt.contains)
			}
		})
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	list := r.List()
	if list[0].Path() != "/about" || list[1].Path() != "/ping" {
		t.Errorf("List() order = %s, %s", list[0].Path(), list[1].Path())
	}
	if _, ok := r.Get("/ping"); !ok {
		t.Error("Get(/ping) not found")
	}
}

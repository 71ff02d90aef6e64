package validation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
)

const pingSchema = `{
    "$schema": "http://json-schema.org/schema#",
    "required": ["status", "greeting", "time"],
    "properties": {
        "status": {"type": "string"},
        "greeting": {"type": "string"},
        "time": {"type": "string"}
    }
}`

const wrongPingSchema = `{
    "$schema": "http://json-schema.org/schema#",
    "required": ["status", "greeting", "time", "di"]
}`

const tenantSchema = `{
    "type": "object",
    "required": ["name"],
    "properties": {"name": {"type": "string"}}
}`

func writeSchemas(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"ping.json":       pingSchema,
		"wrong_ping.json": wrongPingSchema,
		"tenant.json":     tenantSchema,
		"invalid.json":    `[]`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func pingPayload() map[string]any {
	return map[string]any{"status": "ok", "greeting": "pong", "time": "2024-01-01T00:00:00+0000"}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name         string
		instructions []Instruction
		contains     string
	}{
		{"missing schema", []Instruction{{In: Request}}, "Missing field: schema"},
		{"missing in", []Instruction{{Schema: "ping.json"}}, "Missing field: in"},
		{"bad in", []Instruction{{Schema: "ping.json", In: "sideways"}}, `"request" or "response"`},
		{"second entry bad", []Instruction{{Schema: "ping.json", In: Response}, {Schema: "x"}}, "Missing field: in"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.instructions)
			if !domain.IsKind(err, domain.KindBadValidationInstructions) {
				t.Fatalf("Check() error = %v, want BadValidationInstructions", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Check() error = %q, want it to contain %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestParseInstructions(t *testing.T) {
	got, err := ParseInstructions([]any{
		map[string]any{"schema": "tenant.json", "in": "request", "apply-to": "tenants", "repeat": true},
		map[any]any{"schema": "ping.json", "in": "response"},
	})
	if err != nil {
		t.Fatalf("ParseInstructions() error = %v", err)
	}
	want := []Instruction{
		{Schema: "tenant.json", In: Request, ApplyTo: "tenants", Repeat: true},
		{Schema: "ping.json", In: Response},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instruction %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	_, err = ParseInstructions(map[string]any{"schema": "ping.json"})
	if err == nil || !strings.Contains(err.Error(), "Validations should be a list") {
		t.Errorf("ParseInstructions(map) error = %v", err)
	}

	_, err = ParseInstructions([]any{map[string]any{"in": "request"}})
	if err == nil || !strings.Contains(err.Error(), "Missing field: schema") {
		t.Errorf("ParseInstructions(no schema) error = %v", err)
	}
}

func TestValidate_EmptyInstructions(t *testing.T) {
	v := New(NewStore("/does/not/exist", nil))
	if err := v.Validate(map[string]any{"anything": 1}, nil, Request); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_IncompleteInstructionsFailBeforeLoading(t *testing.T) {
	v := New(NewStore("/does/not/exist", nil))
	err := v.Validate(pingPayload(), []Instruction{
		{Schema: "ping.json", In: Response},
		{Schema: "ping.json"},
	}, Response)
	if err == nil || !strings.Contains(err.Error(), "Missing field: in") {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_Response(t *testing.T) {
	v := New(NewStore(writeSchemas(t), nil))

	tests := []struct {
		name     string
		schema   string
		payload  map[string]any
		kind     domain.Kind
		contains string
	}{
		{name: "valid", schema: "ping.json", payload: pingPayload()},
		{name: "without extension", schema: "ping", payload: pingPayload()},
		{
			name:     "missing property",
			schema:   "wrong_ping.json",
			payload:  pingPayload(),
			kind:     domain.KindInvalidResponse,
			contains: "di",
		},
		{
			name:     "wrong type",
			schema:   "ping.json",
			payload:  map[string]any{"status": "ok", "greeting": 42, "time": "now"},
			kind:     domain.KindInvalidResponse,
			contains: "/greeting",
		},
		{
			name:     "schema missing",
			schema:   "__missing.json",
			payload:  pingPayload(),
			kind:     domain.KindBadValidationInstructions,
			contains: "required schema __missing.json could not be found",
		},
		{
			name:     "schema invalid",
			schema:   "invalid.json",
			payload:  pingPayload(),
			kind:     domain.KindBadValidationInstructions,
			contains: "invalid.json not valid",
		},
		{
			name:     "outside schema dir",
			schema:   "../ping.json",
			payload:  pingPayload(),
			kind:     domain.KindBadValidationInstructions,
			contains: "could not be found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.payload, []Instruction{{Schema: tt.schema, In: Response}}, Response)
			if tt.contains == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !domain.IsKind(err, tt.kind) {
				t.Fatalf("Validate() error = %v, want kind %s", err, tt.kind)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestValidate_DirectionFilter(t *testing.T) {
	v := New(NewStore(writeSchemas(t), nil))
	instructions := []Instruction{{Schema: "wrong_ping.json", In: Response}}

	if err := v.Validate(pingPayload(), instructions, Request); err != nil {
		t.Errorf("request validation should ignore response instructions: %v", err)
	}
}

func TestValidate_RepeatApplyTo(t *testing.T) {
	v := New(NewStore(writeSchemas(t), nil))
	instructions := []Instruction{{Schema: "tenant.json", In: Request, ApplyTo: "tenants", Repeat: true}}

	ok := map[string]any{"tenants": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}}}
	if err := v.Validate(ok, instructions, Request); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	bad := map[string]any{"tenants": []any{map[string]any{"name": "a"}, map[string]any{"id": 2}}}
	err := v.Validate(bad, instructions, Request)
	if !domain.IsKind(err, domain.KindBadValidationInstructions) {
		t.Fatalf("Validate() error = %v, want BadValidationInstructions", err)
	}
	if !strings.Contains(err.Error(), "tenants[1]: ") || !strings.Contains(err.Error(), "name") {
		t.Errorf("Validate() error = %q", err.Error())
	}

	err = v.Validate(map[string]any{"other": 1}, instructions, Request)
	if err == nil || !strings.Contains(err.Error(), "tenants: field is missing") {
		t.Errorf("Validate(missing apply-to) error = %v", err)
	}

	err = v.Validate(map[string]any{"tenants": "x"}, instructions, Request)
	if err == nil || !strings.Contains(err.Error(), "expected a list") {
		t.Errorf("Validate(not a list) error = %v", err)
	}
}

func TestValidate_RepeatApplyToResponse(t *testing.T) {
	v := New(NewStore(writeSchemas(t), nil))
	instructions := []Instruction{
		{Schema: "ping.json", In: Response},
		{Schema: "tenant.json", In: Response, ApplyTo: "tenants", Repeat: true},
	}

	payload := pingPayload()
	payload["tenants"] = []any{
		map[string]any{"id": "a", "name": "b"},
		map[string]any{"id": "c"},
	}

	err := v.Validate(payload, instructions, Response)
	if !domain.IsKind(err, domain.KindInvalidResponse) {
		t.Fatalf("Validate() error = %v, want InvalidResponse", err)
	}
	if !strings.Contains(err.Error(), "tenants[1]: ") || !strings.Contains(err.Error(), "name") {
		t.Errorf("Validate() error = %q", err.Error())
	}
	if strings.Contains(err.Error(), "tenants[0]") {
		t.Errorf("first tenant is valid, error = %q", err.Error())
	}
}

func TestValidate_NestedApplyTo(t *testing.T) {
	v := New(NewStore(writeSchemas(t), nil))
	instructions := []Instruction{{Schema: "tenant.json", In: Request, ApplyTo: "data.tenant"}}

	payload := map[string]any{"data": map[string]any{"tenant": map[string]any{"name": "x"}}}
	if err := v.Validate(payload, instructions, Request); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidateRaw(t *testing.T) {
	v := New(NewStore(writeSchemas(t), nil))
	err := v.ValidateRaw(pingPayload(), "ping.json", Response)
	if err == nil || !strings.Contains(err.Error(), "Validations should be a list") {
		t.Errorf("ValidateRaw() error = %v", err)
	}
	raw := []any{map[string]any{"schema": "ping.json", "in": "response"}}
	if err := v.ValidateRaw(pingPayload(), raw, Response); err != nil {
		t.Errorf("ValidateRaw() error = %v", err)
	}
}

func TestStore_RecompilesChangedFile(t *testing.T) {
	dir := writeSchemas(t)
	store := NewStore(dir, nil)
	v := New(store)
	instructions := []Instruction{{Schema: "ping.json", In: Response}}

	if err := v.Validate(pingPayload(), instructions, Response); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	path := filepath.Join(dir, "ping.json")
	if err := os.WriteFile(path, []byte(wrongPingSchema), 0o644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	if err := v.Validate(pingPayload(), instructions, Response); !domain.IsKind(err, domain.KindInvalidResponse) {
		t.Errorf("Validate() after change error = %v, want InvalidResponse", err)
	}
}

func TestStore_NamesAndRaw(t *testing.T) {
	store := NewStore(writeSchemas(t), nil)

	names, err := store.Names()
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	want := []string{"invalid.json", "ping.json", "tenant.json", "wrong_ping.json"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", names, want)
	}

	raw, err := store.Raw("tenant")
	if err != nil {
		t.Fatalf("Raw() error = %v", err)
	}
	if raw["type"] != "object" {
		t.Errorf("Raw() = %v", raw)
	}
}

func TestStore_Watch(t *testing.T) {
	store := NewStore(writeSchemas(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer store.Close()

	if _, err := store.Load("ping.json"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

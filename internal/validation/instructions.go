// Package validation checks request and response payloads against
// JSON-Schema files named by declarative validation instructions.
package validation

import (
	"fmt"

	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
)

// Direction tells which payload an instruction applies to.
type Direction string

const (
	Request  Direction = "request"
	Response Direction = "response"
)

// Instruction names a schema and where to apply it.
type Instruction struct {
	// Schema is the schema file name inside the schema directory
	Schema string `json:"schema" yaml:"schema"`

	// In is the payload direction
	In Direction `json:"in" yaml:"in"`

	// ApplyTo is an optional dotted path selecting a sub-value
	ApplyTo string `json:"apply-to,omitempty" yaml:"apply-to,omitempty"`

	// Repeat validates every element of the selected list
	Repeat bool `json:"repeat,omitempty" yaml:"repeat,omitempty"`
}

// Check verifies that every instruction is complete. Any problem rejects
// the whole list.
func Check(instructions []Instruction) error {
	for _, ins := range instructions {
		if ins.Schema == "" {
			return domain.ErrBadValidationInstructions("Missing field: schema")
		}
		if ins.In == "" {
			return domain.ErrBadValidationInstructions("Missing field: in")
		}
		if ins.In != Request && ins.In != Response {
			return domain.ErrBadValidationInstructions(
				fmt.Sprintf(`"in" must be "request" or "response", got %q`, ins.In))
		}
	}
	return nil
}

// ParseInstructions converts an untyped instruction list, as decoded from
// JSON or YAML, and checks it.
func ParseInstructions(raw any) ([]Instruction, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, domain.ErrBadValidationInstructions("Validations should be a list")
	}

	out := make([]Instruction, 0, len(list))
	for i, item := range list {
		m, ok := toStringMap(item)
		if !ok {
			return nil, domain.ErrBadValidationInstructions(
				fmt.Sprintf("validation %d should be a mapping", i))
		}

		var ins Instruction
		if v, present := m["schema"]; present {
			s, isString := v.(string)
			if !isString {
				return nil, domain.ErrBadValidationInstructions("schema should be a string")
			}
			ins.Schema = s
		}
		if v, present := m["in"]; present {
			s, _ := v.(string)
			ins.In = Direction(s)
			if s == "" {
				ins.In = Direction(fmt.Sprint(v))
			}
		}
		if v, present := m["apply-to"]; present {
			s, isString := v.(string)
			if !isString {
				return nil, domain.ErrBadValidationInstructions("apply-to should be a string")
			}
			ins.ApplyTo = s
		}
		ins.Repeat = truthy(m["repeat"])
		out = append(out, ins)
	}

	if err := Check(out); err != nil {
		return nil, err
	}
	return out, nil
}

func toStringMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

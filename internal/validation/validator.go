package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
)

var printer = message.NewPrinter(language.English)

// Validator applies validation instructions to payloads.
type Validator struct {
	store *Store
}

// New creates a Validator that loads schemas from store.
func New(store *Store) *Validator {
	return &Validator{store: store}
}

// Store returns the schema store.
func (v *Validator) Store() *Store {
	return v.store
}

// Validate checks payload against every instruction whose direction matches.
// Instructions are checked for completeness before any schema is loaded.
// Failures are BadValidationInstructions for requests and InvalidResponse
// for responses.
func (v *Validator) Validate(payload any, instructions []Instruction, direction Direction) error {
	if len(instructions) == 0 {
		return nil
	}
	if err := Check(instructions); err != nil {
		return err
	}

	var doc any
	normalized := false
	for _, ins := range instructions {
		if ins.In != direction {
			continue
		}
		if !normalized {
			var err error
			if doc, err = normalize(payload); err != nil {
				return fail(direction, fmt.Sprintf("payload is not valid JSON: %v", err))
			}
			normalized = true
		}
		if err := v.apply(doc, ins, direction); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRaw parses untyped instructions and validates payload against them.
func (v *Validator) ValidateRaw(payload any, raw any, direction Direction) error {
	instructions, err := ParseInstructions(raw)
	if err != nil {
		return err
	}
	return v.Validate(payload, instructions, direction)
}

func (v *Validator) apply(doc any, ins Instruction, direction Direction) error {
	schema, err := v.store.Load(ins.Schema)
	switch {
	case errors.Is(err, ErrSchemaNotFound):
		return domain.ErrBadValidationInstructions(
			fmt.Sprintf("required schema %s could not be found", ins.Schema)).WithCause(err)
	case err != nil:
		return domain.ErrBadValidationInstructions(
			fmt.Sprintf("%s not valid", ins.Schema)).WithCause(err)
	}

	target := doc
	if ins.ApplyTo != "" {
		var found bool
		if target, found = lookup(doc, ins.ApplyTo); !found {
			return fail(direction, fmt.Sprintf("%s: field is missing", ins.ApplyTo))
		}
	}

	if !ins.Repeat {
		if err := schema.Validate(target); err != nil {
			return fail(direction, describe("", err)).WithCause(err)
		}
		return nil
	}

	items, ok := target.([]any)
	if !ok {
		return fail(direction, fmt.Sprintf("%s: expected a list", ins.ApplyTo))
	}
	for i, item := range items {
		if err := schema.Validate(item); err != nil {
			prefix := fmt.Sprintf("%s[%d]: ", ins.ApplyTo, i)
			return fail(direction, describe(prefix, err)).WithCause(err)
		}
	}
	return nil
}

func fail(direction Direction, msg string) *domain.Error {
	if direction == Response {
		return domain.ErrInvalidResponse(msg)
	}
	return domain.ErrBadValidationInstructions(msg)
}

// normalize turns payload into the generic form the schema validator
// works on.
func normalize(payload any) (any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// lookup follows a dotted path through nested maps.
func lookup(doc any, path string) (any, bool) {
	current := doc
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

// describe flattens a schema validation error into one line per failing
// location.
func describe(prefix string, err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return prefix + err.Error()
	}

	var lines []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := "/" + strings.Join(e.InstanceLocation, "/")
			lines = append(lines, fmt.Sprintf("%s%s: %s", prefix, loc, e.ErrorKind.LocalizedString(printer)))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return strings.Join(lines, "; ")
}

package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
)

// Args is the unified argument map of a request.
type Args map[string]any

// Get returns the raw value for key.
func (a Args) Get(key string) (any, bool) {
	v, ok := a[key]
	return v, ok
}

// String returns the value for key as a string. Non-string values are
// formatted.
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns the value for key as a bool.
func (a Args) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}

// List returns the value for key as a list. A comma separated string is
// split into its trimmed parts.
func (a Args) List(key string) []any {
	switch v := a[key].(type) {
	case nil:
		return nil
	case []any:
		return v
	case string:
		parts := strings.Split(v, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out
	default:
		return []any{v}
	}
}

// Require returns a MissingParameter error for the first key that is
// absent or empty.
func (a Args) Require(keys ...string) error {
	for _, key := range keys {
		v, ok := a[key]
		if !ok || v == nil {
			return domain.ErrMissingParameter(key)
		}
		if s, isString := v.(string); isString && s == "" {
			return domain.ErrMissingParameter(key)
		}
	}
	return nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator. Field names in errors are
// taken from json tags.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// Bind copies the arguments into target (a pointer to a struct with json
// tags) and validates it with its `validate` tags. Validation failures are
// returned as validator.ValidationErrors.
func (a Args) Bind(target any) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.ErrIllegalParameter(typeErr.Field).WithCause(err)
		}
		return domain.ErrMalformedRequest("arguments", err)
	}
	return Validator().Struct(target)
}

package codec

import (
	"reflect"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the canonical textual form of dates on the wire.
const DateFormat = "2006-01-02T15:04:05-0700"

// DecodeHook converts a string scalar into a richer value.
type DecodeHook struct {
	// Name identifies the hook in logs and listings
	Name string

	// TextOnly hooks only apply to formats without native scalar types
	// (XML, query strings). JSON already carries booleans and numbers.
	TextOnly bool

	// Match reports whether the hook applies to s
	Match func(s string) bool

	// Convert produces the decoded value. A returned error leaves s unchanged.
	Convert func(s string) (any, error)
}

// EncodeHook converts a value of one exact Go type into a serializable one.
type EncodeHook struct {
	Type   reflect.Type
	Encode func(v any) any
}

// Hooks is an ordered table of scalar conversions. It is built at startup
// and only read while requests are served.
type Hooks struct {
	decode []DecodeHook
	encode map[reflect.Type]EncodeHook
}

// NewHooks returns an empty hook table.
func NewHooks() *Hooks {
	return &Hooks{encode: make(map[reflect.Type]EncodeHook)}
}

// DefaultHooks returns the builtin boolean, number, date and decimal hooks.
func DefaultHooks() *Hooks {
	h := NewHooks()
	h.AddDecode(BoolHook())
	h.AddDecode(NumberHook())
	h.AddDecode(DateHook())
	h.AddEncode(EncodeHook{
		Type: reflect.TypeOf(time.Time{}),
		Encode: func(v any) any {
			return v.(time.Time).Format(DateFormat)
		},
	})
	h.AddEncode(EncodeHook{
		Type: reflect.TypeOf(decimal.Decimal{}),
		Encode: func(v any) any {
			f, _ := v.(decimal.Decimal).Float64()
			return f
		},
	})
	return h
}

// AddDecode appends a decode hook. Earlier hooks win.
func (h *Hooks) AddDecode(hook DecodeHook) {
	h.decode = append(h.decode, hook)
}

// AddEncode registers an encode hook, replacing any hook for the same type.
func (h *Hooks) AddEncode(hook EncodeHook) {
	h.encode[hook.Type] = hook
}

// DecodeNames lists the registered decode hooks in evaluation order.
func (h *Hooks) DecodeNames() []string {
	names := make([]string, len(h.decode))
	for i, hook := range h.decode {
		names[i] = hook.Name
	}
	return names
}

// DecodeString runs s through the first matching hook. With text set to
// false, TextOnly hooks are skipped.
func (h *Hooks) DecodeString(s string, text bool) any {
	if h == nil {
		return s
	}
	for _, hook := range h.decode {
		if hook.TextOnly && !text {
			continue
		}
		if !hook.Match(s) {
			continue
		}
		v, err := hook.Convert(s)
		if err != nil {
			return s
		}
		return v
	}
	return s
}

// DecodeTree applies DecodeString to every string in a decoded tree.
func (h *Hooks) DecodeTree(v any, text bool) any {
	switch t := v.(type) {
	case string:
		return h.DecodeString(t, text)
	case map[string]any:
		for k, item := range t {
			t[k] = h.DecodeTree(item, text)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = h.DecodeTree(item, text)
		}
		return t
	default:
		return v
	}
}

// EncodeValue applies the encode hook for v's exact type, if any.
func (h *Hooks) EncodeValue(v any) (any, bool) {
	if h == nil || v == nil {
		return v, false
	}
	hook, ok := h.encode[reflect.TypeOf(v)]
	if !ok {
		return v, false
	}
	return hook.Encode(v), true
}

// EncodeTree applies encode hooks throughout a tree of maps and slices.
func (h *Hooks) EncodeTree(v any) any {
	if out, ok := h.EncodeValue(v); ok {
		return out
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = h.EncodeTree(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = h.EncodeTree(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = h.EncodeTree(item)
		}
		return out
	default:
		return v
	}
}

// BoolHook decodes "true" and "false".
func BoolHook() DecodeHook {
	return DecodeHook{
		Name:     "bool",
		TextOnly: true,
		Match: func(s string) bool {
			return s == "true" || s == "false"
		},
		Convert: func(s string) (any, error) {
			return s == "true", nil
		},
	}
}

var numberPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// NumberHook decodes numeric literals into int64 or float64.
func NumberHook() DecodeHook {
	return DecodeHook{
		Name:     "number",
		TextOnly: true,
		Match:    numberPattern.MatchString,
		Convert: func(s string) (any, error) {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
			return strconv.ParseFloat(s, 64)
		},
	}
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})$`)

// DateHook decodes ISO-8601 date-times that carry an offset.
func DateHook() DecodeHook {
	return DecodeHook{
		Name:  "date",
		Match: datePattern.MatchString,
		Convert: func(s string) (any, error) {
			if t, err := time.Parse(DateFormat, s); err == nil {
				return t, nil
			}
			return time.Parse(time.RFC3339Nano, s)
		},
	}
}

package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
)

// JSONHandler returns the application/json handler.
func JSONHandler() Handler {
	return Handler{
		ContentType: ContentTypeJSON,
		Decode:      decodeJSON,
		Encode:      encodeJSON,
	}
}

func decodeJSON(body []byte, dc DecodeContext) (map[string]any, error) {
	v, err := DecodeJSONValue(body, dc.Hooks)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, domain.ErrMalformedRequest(ContentTypeJSON, errors.New("body is not a JSON object"))
	}
	return m, nil
}

// DecodeJSONValue parses any JSON value. Numbers become int64 when they
// are integral and float64 otherwise. Non text-only hooks are applied to
// strings.
func DecodeJSONValue(data []byte, hooks *Hooks) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, domain.ErrMalformedRequest(ContentTypeJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, domain.ErrMalformedRequest(ContentTypeJSON, errors.New("unexpected data after JSON value"))
	}
	return hooks.DecodeTree(normalizeNumbers(v), false), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	default:
		return v
	}
}

func encodeJSON(value any, hooks *Hooks, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "    ")
	}
	if err := enc.Encode(hooks.EncodeTree(value)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// toTree converts any serializable value into a tree of maps, slices and
// scalars so the text formats can walk it.
func toTree(value any, hooks *Hooks) (any, error) {
	data, err := encodeJSON(value, hooks, false)
	if err != nil {
		return nil, err
	}
	return DecodeJSONValue(data, nil)
}

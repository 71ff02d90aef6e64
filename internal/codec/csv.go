package codec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
	"github.com/SoftwearDevelopment/spynl/internal/export"
)

// Headers configuring CSV parsing.
const (
	HeaderCSVDelimiter = "X-Spynl-Delimiter"
	HeaderCSVQuotechar = "X-Spynl-Quotechar"
)

// CSVHandler returns the text/csv handler.
//
// Decoding yields {"data": [row, ...]} where each row maps the header
// fields to their values. Encoding expects the same shape and accepts an
// optional "header" list fixing the column order.
func CSVHandler() Handler {
	return Handler{
		ContentType: ContentTypeCSV,
		Decode:      decodeCSV,
		Encode:      encodeCSV,
	}
}

func decodeCSV(body []byte, dc DecodeContext) (map[string]any, error) {
	if jsonSniff.Match(body) {
		v, err := DecodeJSONValue(body, dc.Hooks)
		if err != nil {
			return nil, err
		}
		return map[string]any{"data": v}, nil
	}

	delimiter, quote, err := csvDialect(dc)
	if err != nil {
		return nil, err
	}

	swapped := quote != '"'
	if swapped {
		body = swapRunes(body, quote, '"')
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return map[string]any{"data": []any{}}, nil
	}
	if err != nil {
		return nil, domain.ErrMalformedRequest(ContentTypeCSV, err)
	}
	if swapped {
		header = swapFields(header, quote)
	}

	rows := []any{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.ErrMalformedRequest(ContentTypeCSV, err)
		}
		if swapped {
			record = swapFields(record, quote)
		}
		row := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return map[string]any{"data": rows}, nil
}

func csvDialect(dc DecodeContext) (rune, rune, error) {
	delimiter, quote := ',', '"'
	if dc.Header == nil {
		return delimiter, quote, nil
	}
	if d := dc.Header.Get(HeaderCSVDelimiter); d != "" {
		r, err := singleRune(d)
		if err != nil {
			return 0, 0, domain.ErrIllegalParameter("delimiter").WithCause(err)
		}
		delimiter = r
	}
	if q := dc.Header.Get(HeaderCSVQuotechar); q != "" {
		r, err := singleRune(q)
		if err != nil {
			return 0, 0, domain.ErrIllegalParameter("quotechar").WithCause(err)
		}
		quote = r
	}
	if delimiter == quote {
		return 0, 0, domain.ErrIllegalParameter("quotechar")
	}
	return delimiter, quote, nil
}

func singleRune(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("expected a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// swapRunes exchanges a and b. encoding/csv only knows '"' as quote
// character, so a custom quote character is swapped in before parsing and
// swapped back in every field afterwards.
func swapRunes(body []byte, a, b rune) []byte {
	return []byte(strings.Map(func(r rune) rune {
		switch r {
		case a:
			return b
		case b:
			return a
		}
		return r
	}, string(body)))
}

func swapFields(fields []string, quote rune) []string {
	for i, f := range fields {
		fields[i] = string(swapRunes([]byte(f), quote, '"'))
	}
	return fields
}

func encodeCSV(value any, hooks *Hooks, _ bool) ([]byte, error) {
	tree, err := toTree(value, hooks)
	if err != nil {
		return nil, err
	}
	m, ok := tree.(map[string]any)
	if !ok {
		return nil, errors.New("csv output needs a mapping with a data list")
	}
	list, ok := m["data"].([]any)
	if !ok {
		return nil, errors.New("csv output needs a data list")
	}

	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("csv rows must be mappings, got %T", item)
		}
		rows = append(rows, row)
	}

	var reference []string
	if ref, ok := m["header"].([]any); ok {
		for _, name := range ref {
			if s, ok := name.(string); ok {
				reference = append(reference, s)
			}
		}
	}
	return export.CSV(export.Header(rows, reference), rows)
}

// Package export turns lists of records into tabular files (CSV, Excel)
// that endpoints can return as raw responses.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// Content types of exported files.
const (
	ContentTypeCSV   = "text/csv"
	ContentTypeExcel = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// File is a raw response body. Endpoints return a *File to bypass the
// standard response envelope.
type File struct {
	// Name, if set, is sent as an attachment filename
	Name        string
	ContentType string
	Body        []byte
}

// ContentDisposition returns the Content-Disposition header value, or ""
// when the file has no name.
func (f *File) ContentDisposition() string {
	if f.Name == "" {
		return ""
	}
	return "attachment; filename=" + f.Name
}

// Header returns the union of the keys of all rows. Keys are ordered by
// their position in reference; keys missing from reference follow in
// alphabetical order. A nil reference orders all keys alphabetically.
func Header(rows []map[string]any, reference []string) []string {
	position := make(map[string]int, len(reference))
	for i, name := range reference {
		if _, seen := position[name]; !seen {
			position[name] = i
		}
	}

	seen := make(map[string]bool)
	var header []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}

	sort.SliceStable(header, func(i, j int) bool {
		pi, iok := position[header[i]]
		pj, jok := position[header[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return header[i] < header[j]
		}
	})
	return header
}

// Data projects every row onto header. Missing keys become "".
func Data(rows []map[string]any, header []string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		line := make([]any, len(header))
		for j, k := range header {
			v, ok := row[k]
			if !ok || v == nil {
				v = ""
			}
			line[j] = v
		}
		out[i] = line
	}
	return out
}

// CSV renders header and rows as CSV with CRLF line endings.
func CSV(header []string, rows []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, line := range Data(rows, header) {
		record := make([]string, len(line))
		for i, v := range line {
			record[i] = Cell(v)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Excel renders header and rows as a single-sheet xlsx workbook.
func Excel(header []string, rows []map[string]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := writeExcelRow(f, sheet, 1, toAny(header)); err != nil {
		return nil, err
	}
	for i, line := range Data(rows, header) {
		if err := writeExcelRow(f, sheet, i+2, line); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeExcelRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// CSVFile is a convenience wrapper returning a *File.
func CSVFile(name string, header []string, rows []map[string]any) (*File, error) {
	body, err := CSV(header, rows)
	if err != nil {
		return nil, err
	}
	return &File{Name: name, ContentType: ContentTypeCSV, Body: body}, nil
}

// ExcelFile is a convenience wrapper returning a *File.
func ExcelFile(name string, header []string, rows []map[string]any) (*File, error) {
	body, err := Excel(header, rows)
	if err != nil {
		return nil, err
	}
	return &File{Name: name, ContentType: ContentTypeExcel, Body: body}, nil
}

// Cell formats a value for a text cell.
func Cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format("2006-01-02T15:04:05-0700")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

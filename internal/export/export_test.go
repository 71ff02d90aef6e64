package export

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func sampleRows() []map[string]any {
	return []map[string]any{
		{"collection": "spring", "brand": "G-Star", "warehouse": "abc"},
		{"collection": "summer", "brand": "Diesel", "warehouse": "xyz"},
	}
}

func TestHeader(t *testing.T) {
	tests := []struct {
		name      string
		rows      []map[string]any
		reference []string
		expected  []string
	}{
		{
			name:      "ordered by reference",
			rows:      sampleRows(),
			reference: []string{"warehouse", "b", "collection", "c", "d", "brand"},
			expected:  []string{"warehouse", "collection", "brand"},
		},
		{
			name: "union of differing rows",
			rows: []map[string]any{
				{"a": 1, "b": 2},
				{"b": 3, "c": 4},
			},
			reference: []string{"c", "b", "a"},
			expected:  []string{"c", "b", "a"},
		},
		{
			name: "unknown keys follow alphabetically",
			rows: []map[string]any{
				{"z": 1, "a": 2, "m": 3},
			},
			reference: []string{"m"},
			expected:  []string{"m", "a", "z"},
		},
		{
			name:     "no reference",
			rows:     sampleRows(),
			expected: []string{"brand", "collection", "warehouse"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Header(tt.rows, tt.reference)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Header() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestData(t *testing.T) {
	rows := []map[string]any{
		{"a": "1", "b": "2"},
		{"b": "3"},
	}
	got := Data(rows, []string{"b", "a"})
	want := [][]any{{"2", "1"}, {"3", ""}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Data() = %v, want %v", got, want)
	}
}

func TestCSV(t *testing.T) {
	body, err := CSV([]string{"warehouse", "collection", "brand"}, sampleRows())
	if err != nil {
		t.Fatalf("CSV() error = %v", err)
	}
	want := "warehouse,collection,brand\r\n" +
		"abc,spring,G-Star\r\n" +
		"xyz,summer,Diesel\r\n"
	if string(body) != want {
		t.Errorf("CSV() = %q, want %q", body, want)
	}
}

func TestExcelFile(t *testing.T) {
	file, err := ExcelFile("filename.xlsx", []string{"warehouse", "collection", "brand"}, sampleRows())
	if err != nil {
		t.Fatalf("ExcelFile() error = %v", err)
	}
	if file.ContentType != ContentTypeExcel {
		t.Errorf("ContentType = %q", file.ContentType)
	}
	if got := file.ContentDisposition(); got != "attachment; filename=filename.xlsx" {
		t.Errorf("ContentDisposition() = %q", got)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(file.Body))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(wb.GetSheetName(0))
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	want := [][]string{
		{"warehouse", "collection", "brand"},
		{"abc", "spring", "G-Star"},
		{"xyz", "summer", "Diesel"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

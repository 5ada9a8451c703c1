package core

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// testRow builds a row as the extractor would, with every template field
// mapped to its column in template order.
func testRow(tmpl *TaskTemplate, number int, raw map[string]string) Row {
	row := Row{
		Number: number,
		Sheet:  "Sheet1",
		Values: make(map[string]Value, len(tmpl.Fields)),
		Cells:  make(map[string]string, len(tmpl.Fields)),
	}
	for i, spec := range tmpl.Fields {
		col, _ := excelize.ColumnNumberToName(i + 1)
		row.Cells[spec.Key] = col
		row.Values[spec.Key] = parseValue(CleanCell(raw[spec.Key]), spec)
	}
	return row
}

// runEngine steps rows through a fresh engine in batches of batchSize.
func runEngine(t *testing.T, tmpl *TaskTemplate, rows []Row, batchSize int, opts EngineOptions) []ValidationError {
	t.Helper()

	eng, err := NewEngine(tmpl, opts)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		eng.Step(rows[start:end])
	}
	return eng.Finish()
}

// buildWorkbook writes rows to Sheet1 of a new workbook starting at A1.
// A nil row leaves that sheet row blank.
func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		if row == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func errorTypes(errs []ValidationError) []ErrorType {
	out := make([]ErrorType, len(errs))
	for i, e := range errs {
		out[i] = e.Type()
	}
	return out
}

func countType(errs []ValidationError, typ ErrorType) int {
	n := 0
	for _, e := range errs {
		if e.Type() == typ {
			n++
		}
	}
	return n
}

func floatPtr(f float64) *float64 {
	return &f
}

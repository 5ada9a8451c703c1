package core

// extract.go implements the Row Extractor: it streams one sheet of an
// xlsx workbook into typed Row records.
//
// The header row is the first non-empty row of the sheet. Each FieldSpec
// header is matched exactly (after cell cleanup); unmatched headers leave
// the field unmapped, which surfaces later as per-row required errors.
// Blank rows are skipped but every Row keeps its physical row number.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/visitaudit/internal/imaging"
	"github.com/xuri/excelize/v2"
)

// OpenWorkbook opens xlsx bytes. Legacy and unreadable containers are
// reported as a StructuralError.
func OpenWorkbook(data []byte) (*excelize.File, error) {
	if len(data) == 0 {
		return nil, &StructuralError{Reason: "empty file"}
	}
	if imaging.IsLegacyWorkbook(data) {
		return nil, &StructuralError{Reason: "legacy .xls workbooks are not supported, save the file as .xlsx"}
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &StructuralError{Reason: fmt.Sprintf("unreadable workbook: %v", err)}
	}
	return f, nil
}

// RowStream yields the data rows of one sheet in physical order.
type RowStream struct {
	sheet     string
	tmpl      *TaskTemplate
	rows      *excelize.Rows
	rowNum    int            // physical number of the last row read
	headerRow int            // physical number of the header row
	colIdx    map[string]int // field key -> 0-based column index
	cells     map[string]string
	pending   *Row // first data row, read ahead to detect an empty data region
	done      bool
}

// Extract opens a row stream over sheet. An empty sheet name selects the
// first sheet. A missing sheet returns *SheetNotFoundError; a sheet with
// no header row or no data rows returns *StructuralError.
func Extract(f *excelize.File, sheet string, tmpl *TaskTemplate) (*RowStream, error) {
	sheets := f.GetSheetList()
	if sheet == "" && len(sheets) > 0 {
		sheet = sheets[0]
	}
	if !containsString(sheets, sheet) {
		return nil, &SheetNotFoundError{Sheet: sheet, Available: sheets}
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, &StructuralError{Sheet: sheet, Reason: fmt.Sprintf("read sheet: %v", err)}
	}

	s := &RowStream{sheet: sheet, tmpl: tmpl, rows: rows}

	header, err := s.nextNonEmpty()
	if err != nil {
		rows.Close()
		return nil, &StructuralError{Sheet: sheet, Reason: fmt.Sprintf("read header: %v", err)}
	}
	if header == nil {
		rows.Close()
		return nil, &StructuralError{Sheet: sheet, Reason: "no header row"}
	}
	s.headerRow = s.rowNum
	s.mapHeader(header)

	first, err := s.nextNonEmpty()
	if err != nil {
		rows.Close()
		return nil, &StructuralError{Sheet: sheet, Reason: fmt.Sprintf("read rows: %v", err)}
	}
	if first == nil {
		rows.Close()
		return nil, &StructuralError{Sheet: sheet, Reason: "no data rows after header"}
	}
	row := s.buildRow(first)
	s.pending = &row

	return s, nil
}

// Sheet returns the resolved sheet name.
func (s *RowStream) Sheet() string {
	return s.sheet
}

// HeaderRow returns the physical row number of the header.
func (s *RowStream) HeaderRow() int {
	return s.headerRow
}

// MissingHeaders returns the template headers not found in the header row.
func (s *RowStream) MissingHeaders() []string {
	var missing []string
	for _, spec := range s.tmpl.Fields {
		if _, ok := s.colIdx[spec.Key]; !ok {
			missing = append(missing, spec.Header)
		}
	}
	return missing
}

// Next returns up to max rows. It returns io.EOF once the sheet is
// exhausted; the final call may return rows together with io.EOF.
func (s *RowStream) Next(max int) ([]Row, error) {
	if max <= 0 {
		max = 1
	}
	if s.done && s.pending == nil {
		return nil, io.EOF
	}

	batch := make([]Row, 0, max)
	if s.pending != nil {
		batch = append(batch, *s.pending)
		s.pending = nil
	}

	for len(batch) < max && !s.done {
		cols, err := s.nextNonEmpty()
		if err != nil {
			return batch, err
		}
		if cols == nil {
			break
		}
		batch = append(batch, s.buildRow(cols))
	}

	if s.done {
		return batch, io.EOF
	}
	return batch, nil
}

// Close releases the underlying sheet reader.
func (s *RowStream) Close() error {
	return s.rows.Close()
}

// ExtractAll reads every data row of sheet.
func ExtractAll(f *excelize.File, sheet string, tmpl *TaskTemplate) ([]Row, error) {
	stream, err := Extract(f, sheet, tmpl)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var all []Row
	for {
		batch, err := stream.Next(DefaultBatchSize)
		all = append(all, batch...)
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// nextNonEmpty advances to the next row with any content. It returns nil
// cols at the end of the sheet.
func (s *RowStream) nextNonEmpty() ([]string, error) {
	for s.rows.Next() {
		s.rowNum++
		cols, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		if isEmptyRow(cols) {
			continue
		}
		return cols, nil
	}
	s.done = true
	return nil, s.rows.Error()
}

func (s *RowStream) mapHeader(header []string) {
	s.colIdx = make(map[string]int, len(s.tmpl.Fields))
	s.cells = make(map[string]string, len(s.tmpl.Fields))

	for i, h := range header {
		h = CleanCell(h)
		if h == "" {
			continue
		}
		for _, spec := range s.tmpl.Fields {
			if spec.Header != h {
				continue
			}
			if _, taken := s.colIdx[spec.Key]; taken {
				continue
			}
			s.colIdx[spec.Key] = i
			name, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				name = "-"
			}
			s.cells[spec.Key] = name
		}
	}
}

func (s *RowStream) buildRow(cols []string) Row {
	row := Row{
		Number: s.rowNum,
		Sheet:  s.sheet,
		Values: make(map[string]Value, len(s.colIdx)),
		Cells:  s.cells,
	}
	for _, spec := range s.tmpl.Fields {
		pos, ok := s.colIdx[spec.Key]
		if !ok {
			continue
		}
		raw := ""
		if pos < len(cols) {
			raw = CleanCell(cols[pos])
		}
		row.Values[spec.Key] = parseValue(raw, spec)
	}
	return row
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

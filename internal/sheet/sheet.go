// Package sheet reads merge records from an XLSX workbook.
//
// The layout is fixed: field names sit in the header row (row 3 unless
// configured otherwise) and every following row is one record, so row 4 is
// the first data row. Rows are addressed by their 1-based spreadsheet number
// everywhere in this package.
package sheet

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge"
)

// DefaultHeaderRow is the spreadsheet row holding field names.
const DefaultHeaderRow = 3

// Options control how a workbook is read.
type Options struct {
	// Sheet names the worksheet; empty selects the first one.
	Sheet string
	// HeaderRow is the 1-based header row; zero means DefaultHeaderRow.
	HeaderRow int
}

// Sheet is a fully read worksheet with typed cells.
type Sheet struct {
	name      string
	headerRow int
	columns   []string // field name per column, "" for unnamed columns
	fields    []string // distinct field names in column order
	rows      [][]mailmerge.Value
}

// Read parses an XLSX workbook.
func Read(r io.Reader, opts Options) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, mailmerge.NewDocumentError("read sheet", opts.Sheet, err)
	}
	defer f.Close()
	return load(f, opts)
}

// ReadFile parses the XLSX workbook at path.
func ReadFile(path string, opts Options) (*Sheet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, mailmerge.NewDocumentError("read sheet", path, err)
	}
	defer file.Close()
	return Read(file, opts)
}

func load(f *excelize.File, opts Options) (*Sheet, error) {
	headerRow := opts.HeaderRow
	if headerRow <= 0 {
		headerRow = DefaultHeaderRow
	}

	name := opts.Sheet
	if name == "" {
		name = f.GetSheetName(0)
	}
	idx, err := f.GetSheetIndex(name)
	if err != nil || idx < 0 {
		verr := &mailmerge.ValidationError{}
		verr.Add("excel", "worksheet %q not found", name)
		return nil, verr
	}

	raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, mailmerge.NewDocumentError("read sheet", name, err)
	}
	if len(raw) < headerRow {
		verr := &mailmerge.ValidationError{}
		verr.Add("excel", "header row %d is empty", headerRow)
		return nil, verr
	}

	s := &Sheet{name: name, headerRow: headerRow}
	seen := make(map[string]bool)
	for _, cell := range raw[headerRow-1] {
		field := strings.TrimSpace(cell)
		s.columns = append(s.columns, field)
		if field != "" && !seen[field] {
			seen[field] = true
			s.fields = append(s.fields, field)
		}
	}
	if len(s.fields) == 0 {
		verr := &mailmerge.ValidationError{}
		verr.Add("excel", "header row %d has no field names", headerRow)
		return nil, verr
	}

	c := newConverter(f, name)
	s.rows = make([][]mailmerge.Value, len(raw))
	for i := headerRow; i < len(raw); i++ {
		values := make([]mailmerge.Value, len(raw[i]))
		for col, cell := range raw[i] {
			v, err := c.value(col+1, i+1, cell)
			if err != nil {
				return nil, mailmerge.WithContext(err, "read sheet", map[string]any{"row": i + 1, "column": col + 1})
			}
			values[col] = v
		}
		s.rows[i] = values
	}
	return s, nil
}

// Name returns the worksheet name.
func (s *Sheet) Name() string { return s.name }

// HeaderRow returns the 1-based header row.
func (s *Sheet) HeaderRow() int { return s.headerRow }

// FirstDataRow returns the first row that can hold a record.
func (s *Sheet) FirstDataRow() int { return s.headerRow + 1 }

// LastRow returns the last non-empty row, or the header row when there is no
// data.
func (s *Sheet) LastRow() int { return len(s.rows) }

// Fields returns the distinct header field names in column order.
func (s *Sheet) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// Registry builds a placeholder registry with the default delimiters from
// the header fields.
func (s *Sheet) Registry() *mailmerge.Registry {
	return mailmerge.NewRegistry(s.fields...)
}

// Record returns the record at a 1-based data row. Blank rows produce a
// record where every field is empty.
func (s *Sheet) Record(row int) (mailmerge.Record, error) {
	if row < s.FirstDataRow() || row > s.LastRow() {
		return mailmerge.Record{}, fmt.Errorf("row %d outside data rows %d-%d", row, s.FirstDataRow(), s.LastRow())
	}
	values := make(map[string]mailmerge.Value, len(s.fields))
	cells := s.rows[row-1]
	for col, field := range s.columns {
		if field == "" {
			continue
		}
		if _, ok := values[field]; ok {
			continue
		}
		if col < len(cells) {
			values[field] = cells[col]
		} else {
			values[field] = mailmerge.Empty()
		}
	}
	return mailmerge.NewRecord(row, values), nil
}

// Records returns the records of a validated window in ascending row order.
func (s *Sheet) Records(w Window) ([]mailmerge.Record, error) {
	out := make([]mailmerge.Record, 0, w.Len())
	for row := w.Start; row <= w.End; row++ {
		rec, err := s.Record(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// converter types raw cell strings using the cell type and number format.
type converter struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	isDate   map[int]bool
}

func newConverter(f *excelize.File, sheet string) *converter {
	c := &converter{f: f, sheet: sheet, isDate: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		c.date1904 = *props.Date1904
	}
	return c
}

func (c *converter) value(col, row int, raw string) (mailmerge.Value, error) {
	if raw == "" {
		return mailmerge.Empty(), nil
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return mailmerge.Value{}, err
	}
	typ, err := c.f.GetCellType(c.sheet, cell)
	if err != nil {
		return mailmerge.Value{}, err
	}

	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula, excelize.CellTypeError:
		return mailmerge.Text(raw), nil
	case excelize.CellTypeBool:
		return mailmerge.ValueOf(raw == "1" || strings.EqualFold(raw, "true")), nil
	case excelize.CellTypeDate:
		if t, ok := parseISODate(raw); ok {
			return mailmerge.Date(t), nil
		}
		return mailmerge.Text(raw), nil
	}

	// Unset and number cells hold numbers; anything unparsable stays text.
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if c.dateStyled(cell) {
			return c.serialDate(float64(i), raw), nil
		}
		return mailmerge.Integer(i), nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return mailmerge.Text(raw), nil
	}
	if c.dateStyled(cell) {
		return c.serialDate(f, raw), nil
	}
	return mailmerge.Decimal(f), nil
}

func (c *converter) serialDate(serial float64, raw string) mailmerge.Value {
	t, err := excelize.ExcelDateToTime(serial, c.date1904)
	if err != nil {
		return mailmerge.Text(raw)
	}
	return mailmerge.Date(t)
}

func (c *converter) dateStyled(cell string) bool {
	id, err := c.f.GetCellStyle(c.sheet, cell)
	if err != nil || id == 0 {
		return false
	}
	if v, ok := c.isDate[id]; ok {
		return v
	}
	v := false
	if style, err := c.f.GetStyle(id); err == nil && style != nil {
		v = isDateFormat(style.NumFmt, style.CustomNumFmt)
	}
	c.isDate[id] = v
	return v
}

// isDateFormat reports whether a number format renders dates. Built-in ids
// follow ECMA-376 18.8.30 plus the CJK date ids; custom formats count when
// they use a date or time code outside quoted text and brackets.
func isDateFormat(id int, custom *string) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	if custom == nil {
		return false
	}
	inQuote, inBracket := false, false
	for _, r := range *custom {
		switch {
		case inQuote:
			inQuote = r != '"'
		case inBracket:
			inBracket = r != ']'
		case r == '"':
			inQuote = true
		case r == '[':
			inBracket = true
		case strings.ContainsRune("yYmMdDhHsS", r):
			return true
		}
	}
	return false
}

func parseISODate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", mailmerge.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

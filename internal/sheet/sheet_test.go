package sheet

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge"
)

// workbook builds an XLSX with a title in row 1, the header in row 3 and the
// given data rows from row 4 on.
func workbook(t *testing.T, header []any, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	if err := f.SetCellValue(sheet, "A1", "Mail merge data"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow(sheet, "A3", &header); err != nil {
		t.Fatal(err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, DefaultHeaderRow+1+i)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readSheet(t *testing.T, data []byte) *Sheet {
	t.Helper()
	s, err := Read(bytes.NewReader(data), Options{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return s
}

func TestRead_HeaderAndRows(t *testing.T) {
	data := workbook(t,
		[]any{"NAME", " JOB # ", "", "NAME"},
		[]any{"Alice", 42},
		[]any{"Bob", 4.5, "ignored", "shadowed"},
	)
	s := readSheet(t, data)

	if s.Name() != "Sheet1" {
		t.Errorf("Name() = %q", s.Name())
	}
	if diff := cmp.Diff([]string{"NAME", "JOB #"}, s.Fields()); diff != "" {
		t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
	}
	if s.FirstDataRow() != 4 || s.LastRow() != 5 {
		t.Errorf("data rows = %d-%d, want 4-5", s.FirstDataRow(), s.LastRow())
	}

	rec, err := s.Record(4)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Row() != 4 {
		t.Errorf("Row() = %d, want 4", rec.Row())
	}
	if got := rec.Get("NAME").String(); got != "Alice" {
		t.Errorf("NAME = %q, want Alice", got)
	}
	if v := rec.Get("JOB #"); v.Kind() != mailmerge.KindInteger || v.String() != "42" {
		t.Errorf("JOB # = %v (%v), want integer 42", v, v.Kind())
	}

	rec, _ = s.Record(5)
	if got := rec.Get("NAME").String(); got != "Bob" {
		t.Errorf("duplicate header should keep the first column, got %q", got)
	}
	if got := rec.Get("JOB #").String(); got != "4.5" {
		t.Errorf("JOB # = %q, want 4.5", got)
	}

	reg := s.Registry()
	if _, ok := reg.Lookup("<<JOB #>>"); !ok {
		t.Error("registry should contain <<JOB #>>")
	}
}

func TestRead_CellTypes(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"
	header := []any{"INT", "FLOAT", "WHOLE", "DATE", "SERIAL", "BOOL", "TEXT", "BLANK", "CUSTOM"}
	if err := f.SetSheetRow(sheet, "A3", &header); err != nil {
		t.Fatal(err)
	}
	row := []any{7, 2.25, 4.0, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), 45358, true, "007", nil, 45358}
	if err := f.SetSheetRow(sheet, "A4", &row); err != nil {
		t.Fatal(err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellStyle(sheet, "E4", "E4", dateStyle); err != nil {
		t.Fatal(err)
	}
	custom := `dd "of" mmmm yyyy`
	customStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &custom})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellStyle(sheet, "I4", "I4", customStyle); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	rec, err := readSheet(t, buf.Bytes()).Record(4)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		field string
		kind  mailmerge.Kind
		want  string
	}{
		{"INT", mailmerge.KindInteger, "7"},
		{"FLOAT", mailmerge.KindDecimal, "2.25"},
		{"WHOLE", mailmerge.KindInteger, "4"},
		{"DATE", mailmerge.KindDate, "2024-03-07"},
		{"SERIAL", mailmerge.KindDate, "2024-03-07"},
		{"BOOL", mailmerge.KindText, "TRUE"},
		{"TEXT", mailmerge.KindText, "007"},
		{"BLANK", mailmerge.KindEmpty, ""},
		{"CUSTOM", mailmerge.KindDate, "2024-03-07"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			v := rec.Get(tt.field)
			if v.Kind() != tt.kind || v.String() != tt.want {
				t.Errorf("%s = %q (%v), want %q (%v)", tt.field, v.String(), v.Kind(), tt.want, tt.kind)
			}
		})
	}
}

func TestRead_Errors(t *testing.T) {
	if _, err := Read(strings.NewReader("not a workbook"), Options{}); !mailmerge.IsDocumentError(err) {
		t.Errorf("Read(garbage) error = %v, want DocumentError", err)
	}

	onlyTitle := excelize.NewFile()
	onlyTitle.SetCellValue("Sheet1", "A1", "title")
	buf, _ := onlyTitle.WriteToBuffer()
	onlyTitle.Close()
	if _, err := Read(bytes.NewReader(buf.Bytes()), Options{}); !mailmerge.IsValidationError(err) {
		t.Errorf("Read(no header) error = %v, want ValidationError", err)
	}

	data := workbook(t, []any{"NAME"}, []any{"x"})
	if _, err := Read(bytes.NewReader(data), Options{Sheet: "Missing"}); !mailmerge.IsValidationError(err) {
		t.Errorf("Read(missing sheet) error = %v, want ValidationError", err)
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "none.xlsx"), Options{}); !mailmerge.IsDocumentError(err) {
		t.Errorf("ReadFile(missing) error = %v, want DocumentError", err)
	}
}

func TestRead_CustomHeaderRow(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "NAME")
	f.SetCellValue("Sheet1", "A2", "Ada")
	buf, _ := f.WriteToBuffer()

	s, err := Read(bytes.NewReader(buf.Bytes()), Options{HeaderRow: 1})
	if err != nil {
		t.Fatal(err)
	}
	if s.FirstDataRow() != 2 {
		t.Errorf("FirstDataRow() = %d, want 2", s.FirstDataRow())
	}
	rec, err := s.Record(2)
	if err != nil || rec.Get("NAME").String() != "Ada" {
		t.Errorf("Record(2) = %v, %v", rec.Get("NAME"), err)
	}
}

func TestValidate_RowBoundaries(t *testing.T) {
	data := workbook(t, []any{"NAME"},
		[]any{"r4"}, []any{"r5"}, []any{"r6"}, []any{"r7"}, []any{"r8"},
	)
	s := readSheet(t, data)

	tests := []struct {
		name    string
		window  Window
		maxRows int
		wantErr string
	}{
		{"first data row", Window{4, 4}, 10, ""},
		{"whole range", Window{4, 8}, 10, ""},
		{"header row", Window{3, 5}, 10, "row_start"},
		{"title row", Window{1, 5}, 10, "row_start"},
		{"end before start", Window{6, 5}, 10, "row_end"},
		{"beyond data", Window{4, 9}, 10, "beyond the available data"},
		{"over the cap", Window{4, 8}, 3, "at most 3 rows"},
		{"cap disabled", Window{4, 8}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.window, tt.maxRows)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var verr *mailmerge.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestRecords_Window(t *testing.T) {
	data := workbook(t, []any{"NAME", "CITY"},
		[]any{"Ada", "Bern"}, []any{}, []any{"Cy"},
	)
	s := readSheet(t, data)

	w := Window{Start: 4, End: 6}
	if err := s.Validate(w, 0); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	recs, err := s.Records(w)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, r := range recs {
		got = append(got, r.Get("NAME").String()+"|"+r.Get("CITY").String())
	}
	want := []string{"Ada|Bern", "|", "Cy|"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if recs[1].Row() != 5 {
		t.Errorf("blank row number = %d, want 5", recs[1].Row())
	}

	if _, err := s.Record(3); err == nil {
		t.Error("Record(3) should reject the header row")
	}
	if w.String() != "rows4-6" || w.Len() != 3 {
		t.Errorf("window = %s len %d", w, w.Len())
	}
}

func TestValidate_NoDataRows(t *testing.T) {
	s := readSheet(t, workbook(t, []any{"NAME"}))
	err := s.Validate(Window{4, 4}, 10)
	if err == nil || !strings.Contains(err.Error(), "no data rows") {
		t.Errorf("Validate() error = %v, want no data rows", err)
	}
}

func TestIsDateFormat(t *testing.T) {
	str := func(s string) *string { return &s }
	tests := []struct {
		id     int
		custom *string
		want   bool
	}{
		{0, nil, false},
		{2, nil, false},
		{14, nil, true},
		{22, nil, true},
		{49, nil, false},
		{164, str("yyyy-mm-dd"), true},
		{164, str(`0.00 "days"`), false},
		{164, str("[Red]0.00"), false},
		{164, str("#,##0"), false},
		{164, str("h:mm AM/PM"), true},
	}
	for _, tt := range tests {
		if got := isDateFormat(tt.id, tt.custom); got != tt.want {
			name := ""
			if tt.custom != nil {
				name = *tt.custom
			}
			t.Errorf("isDateFormat(%d, %q) = %v, want %v", tt.id, name, got, tt.want)
		}
	}
}

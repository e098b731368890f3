package sheet

import (
	"strconv"

	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge"
)

// Window is an inclusive range of 1-based spreadsheet rows.
type Window struct {
	Start int
	End   int
}

// Len returns the number of rows in the window.
func (w Window) Len() int {
	if w.End < w.Start {
		return 0
	}
	return w.End - w.Start + 1
}

// String renders the window as it appears in output names, e.g. "rows4-10".
func (w Window) String() string {
	return "rows" + strconv.Itoa(w.Start) + "-" + strconv.Itoa(w.End)
}

// Validate checks the window against the sheet's data rows and a row cap.
// maxRows <= 0 disables the cap. All problems are reported together.
func (s *Sheet) Validate(w Window, maxRows int) error {
	verr := &mailmerge.ValidationError{}
	first, last := s.FirstDataRow(), s.LastRow()

	if last < first {
		verr.Add("excel", "sheet %q has no data rows after header row %d", s.name, s.headerRow)
		return verr
	}
	if w.Start < first {
		verr.Add("row_start", "must be at least %d, the first data row", first)
	}
	if w.End < w.Start {
		verr.Add("row_end", "must not be before row_start (%d)", w.Start)
	} else if w.End > last {
		verr.Add("row_end", "row %d is beyond the available data (last row is %d)", w.End, last)
	}
	if maxRows > 0 && w.Len() > maxRows {
		verr.Add("row_end", "%d rows requested, at most %d rows per job", w.Len(), maxRows)
	}
	return verr.Err()
}

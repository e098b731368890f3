package mailmerge

import (
	"sort"
	"strings"
)

// OffsetTable maps byte offsets of a paragraph's concatenated text to runs.
// It is built from run text lengths and never changes afterwards.
type OffsetTable struct {
	ends []int
}

// NewOffsetTable builds the table from the byte lengths of a paragraph's runs.
func NewOffsetTable(runLengths []int) OffsetTable {
	ends := make([]int, len(runLengths))
	total := 0
	for i, n := range runLengths {
		if n > 0 {
			total += n
		}
		ends[i] = total
	}
	return OffsetTable{ends: ends}
}

func tableFor(texts []string) OffsetTable {
	lengths := make([]int, len(texts))
	for i, t := range texts {
		lengths[i] = len(t)
	}
	return NewOffsetTable(lengths)
}

// Len returns the number of runs.
func (t OffsetTable) Len() int { return len(t.ends) }

// Total returns the length of the concatenated text.
func (t OffsetTable) Total() int {
	if len(t.ends) == 0 {
		return 0
	}
	return t.ends[len(t.ends)-1]
}

// Start returns the offset at which run i begins.
func (t OffsetTable) Start(i int) int {
	if i <= 0 {
		return 0
	}
	return t.ends[i-1]
}

// runAt returns the run containing offset pos. Runs without text never
// contain an offset.
func (t OffsetTable) runAt(pos int) int {
	return sort.Search(len(t.ends), func(i int) bool { return t.ends[i] > pos })
}

// Span is the inclusive range of runs covered by one placeholder occurrence.
type Span struct {
	First int
	Last  int
}

// Locate returns the runs covering [idx, idx+length). It reports false for
// non-positive lengths and ranges outside the text.
func (t OffsetTable) Locate(idx, length int) (Span, bool) {
	if length <= 0 || idx < 0 || idx+length > t.Total() {
		return Span{}, false
	}
	first := t.runAt(idx)
	last := t.runAt(idx + length - 1)
	if first >= len(t.ends) || last >= len(t.ends) {
		return Span{}, false
	}
	return Span{First: first, Last: last}, true
}

// Splice returns new run texts with [idx, idx+length) replaced by value.
// The spanned runs' combined text, with the occurrence replaced, goes into
// the span's first run; the other spanned runs become empty. Runs outside the
// span and the input slice are left untouched.
func Splice(texts []string, t OffsetTable, s Span, idx, length int, value string) []string {
	out := make([]string, len(texts))
	copy(out, texts)

	combined := strings.Join(texts[s.First:s.Last+1], "")
	local := idx - t.Start(s.First)
	out[s.First] = combined[:local] + value + combined[local+length:]
	for i := s.First + 1; i <= s.Last; i++ {
		out[i] = ""
	}
	return out
}

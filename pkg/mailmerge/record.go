package mailmerge

import "sort"

// Record is one spreadsheet row: field name to value. Records are immutable.
type Record struct {
	row    int
	values map[string]Value
}

// NewRecord creates a record for the 1-based spreadsheet row. The map is copied.
func NewRecord(row int, values map[string]Value) Record {
	cp := make(map[string]Value, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Record{row: row, values: cp}
}

// RecordOf builds a record from plain Go values, see ValueOf.
func RecordOf(row int, values map[string]any) Record {
	cp := make(map[string]Value, len(values))
	for k, v := range values {
		cp[k] = ValueOf(v)
	}
	return Record{row: row, values: cp}
}

// Row returns the record's spreadsheet row number.
func (r Record) Row() int { return r.row }

// Get returns the field's value; absent fields are Empty.
func (r Record) Get(field string) Value {
	return r.values[field]
}

// Has reports whether the field is present.
func (r Record) Has(field string) bool {
	_, ok := r.values[field]
	return ok
}

// Fields returns the record's field names sorted.
func (r Record) Fields() []string {
	out := make([]string, 0, len(r.values))
	for k := range r.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.values) }

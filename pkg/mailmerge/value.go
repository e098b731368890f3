package mailmerge

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindEmpty Kind = iota
	KindInteger
	KindDecimal
	KindDate
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// DateLayout is the only rendering of dates in merged documents.
const DateLayout = "2006-01-02"

// Value is a typed cell value. The zero Value is Empty.
type Value struct {
	kind Kind
	i    int64
	f    float64
	t    time.Time
	s    string
}

// Empty returns the empty value.
func Empty() Value { return Value{} }

// Integer returns an integer value.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Decimal returns a decimal value. NaN is normalized to Empty.
func Decimal(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{kind: KindDecimal, f: f}
}

// Date returns a date value. Only the calendar date is ever rendered.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Kind returns the value's variant.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the value is Empty.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// String is Format(v).
func (v Value) String() string { return Format(v) }

// Format renders a value as the exact text inserted into a document.
//
//	Empty       ""
//	Integer     base-10 digits
//	Decimal     "4" for 4.0, shortest round-trip text otherwise ("4.5")
//	Date        YYYY-MM-DD
//	Text        unchanged
func Format(v Value) string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindDecimal:
		return formatDecimal(v.f)
	case KindDate:
		return v.t.Format(DateLayout)
	case KindText:
		return v.s
	default:
		return ""
	}
}

func formatDecimal(f float64) string {
	switch {
	case math.IsNaN(f):
		return ""
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case f == 0:
		// Covers negative zero.
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ValueOf maps a Go value into a Value. Unknown types are rendered with
// fmt and stored as Text.
func ValueOf(x any) Value {
	switch v := x.(type) {
	case nil:
		return Empty()
	case Value:
		return v
	case int:
		return Integer(int64(v))
	case int8:
		return Integer(int64(v))
	case int16:
		return Integer(int64(v))
	case int32:
		return Integer(int64(v))
	case int64:
		return Integer(v)
	case uint:
		return unsignedValue(uint64(v))
	case uint8:
		return Integer(int64(v))
	case uint16:
		return Integer(int64(v))
	case uint32:
		return Integer(int64(v))
	case uint64:
		return unsignedValue(v)
	case float32:
		return Decimal(float64(v))
	case float64:
		return Decimal(v)
	case time.Time:
		if v.IsZero() {
			return Empty()
		}
		return Date(v)
	case *time.Time:
		if v == nil || v.IsZero() {
			return Empty()
		}
		return Date(*v)
	case string:
		return Text(v)
	case bool:
		if v {
			return Text("TRUE")
		}
		return Text("FALSE")
	case fmt.Stringer:
		return Text(v.String())
	default:
		return Text(fmt.Sprint(v))
	}
}

func unsignedValue(u uint64) Value {
	if u > math.MaxInt64 {
		return Text(strconv.FormatUint(u, 10))
	}
	return Integer(int64(u))
}

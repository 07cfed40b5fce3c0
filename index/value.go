package index

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Value is a typed field value. Numeric values are kept in an
// order-preserving uint64 encoding so ranges compare them as plain integers.
type Value struct {
	typ  FieldType
	num  uint64
	text string
}

// Text returns a text value.
func Text(s string) Value { return Value{typ: FieldText, text: s} }

// U64 returns an unsigned integer value.
func U64(v uint64) Value { return Value{typ: FieldU64, num: v} }

// I64 returns a signed integer value.
func I64(v int64) Value { return Value{typ: FieldI64, num: i64ToSortable(v)} }

// F64 returns a floating point value.
func F64(v float64) Value { return Value{typ: FieldF64, num: f64ToSortable(v)} }

// Date returns a timestamp value truncated to microseconds.
func Date(t time.Time) Value { return Value{typ: FieldDate, num: i64ToSortable(t.UnixMicro())} }

// Type returns the value type.
func (v Value) Type() FieldType { return v.typ }

// AsText returns the text of a text value.
func (v Value) AsText() string { return v.text }

// AsU64 returns the value of a u64 value.
func (v Value) AsU64() uint64 { return v.num }

// AsI64 returns the value of an i64 value.
func (v Value) AsI64() int64 { return sortableToI64(v.num) }

// AsF64 returns the value of an f64 value.
func (v Value) AsF64() float64 { return sortableToF64(v.num) }

// AsDate returns the value of a date value in UTC.
func (v Value) AsDate() time.Time { return time.UnixMicro(sortableToI64(v.num)).UTC() }

// sortable returns the order-preserving encoding of a numeric value.
func (v Value) sortable() uint64 { return v.num }

func (v Value) String() string {
	switch v.typ {
	case FieldText:
		return strconv.Quote(v.text)
	case FieldU64:
		return strconv.FormatUint(v.num, 10)
	case FieldI64:
		return strconv.FormatInt(v.AsI64(), 10)
	case FieldF64:
		return strconv.FormatFloat(v.AsF64(), 'g', -1, 64)
	case FieldDate:
		return v.AsDate().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("Value(%d)", v.typ)
	}
}

func i64ToSortable(v int64) uint64 { return uint64(v) ^ (1 << 63) }

func sortableToI64(u uint64) int64 { return int64(u ^ (1 << 63)) }

func f64ToSortable(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func sortableToF64(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

// parseValue parses query text as a value of type t.
func parseValue(t FieldType, s string) (Value, error) {
	switch t {
	case FieldU64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return U64(n), nil
	case FieldI64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return I64(n), nil
	case FieldF64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, err
		}
		return F64(f), nil
	case FieldDate:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return Date(ts), nil
			}
		}
		return Value{}, fmt.Errorf("expected RFC 3339 timestamp or YYYY-MM-DD, got %q", s)
	default:
		return Text(s), nil
	}
}

package sessionlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Undefined is written in place of stale values.
const Undefined = "NA"

// Field is one logged column.
type Field struct {
	// Name is the header label; unique within a logger.
	Name string

	// Value is the formatted value written on the next flush.
	Value string

	// Age is the time since the last update.
	Age time.Duration

	// AlwaysFresh fields are written every flush regardless of age.
	AlwaysFresh bool

	initial string
}

// fresh reports whether the field's value belongs in the next row.
func (f *Field) fresh() bool {
	return f.AlwaysFresh || f.Age == 0
}

// cell returns what the field contributes to a row.
func (f *Field) cell() string {
	if f.fresh() {
		return f.Value
	}
	return Undefined
}

// FieldOption configures a field at registration.
type FieldOption func(*Field)

// AlwaysFresh writes the field's current value on every flush.
func AlwaysFresh() FieldOption {
	return func(f *Field) {
		f.AlwaysFresh = true
	}
}

// Initial sets the value a field holds at the start of each session.
func Initial(v any) FieldOption {
	return func(f *Field) {
		f.initial = FormatValue(v)
	}
}

// FormatValue renders v as a single tab-free cell.
func FormatValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return Undefined
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case int32:
		s = strconv.FormatInt(int64(x), 10)
	case uint:
		s = strconv.FormatUint(uint64(x), 10)
	case uint64:
		s = strconv.FormatUint(x, 10)
	case bool:
		s = strconv.FormatBool(x)
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	return sanitize(s)
}

// sanitize replaces control characters (tabs, newlines) with spaces.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

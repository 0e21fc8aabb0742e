package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownSchema is returned when a header matches no known layout.
var ErrUnknownSchema = errors.New("unknown log schema")

// Binding maps a schema's columns to positions in a log row.
type Binding struct {
	Schema Schema

	// Exact is true when the header matched the schema cell for cell.
	Exact bool

	// Width is the number of cells in every row, including time.
	Width int

	index map[string]int
}

// Index returns the row position of a column.
func (b *Binding) Index(name string) (int, bool) {
	i, ok := b.index[name]
	return i, ok
}

// Has reports whether the log carries a column.
func (b *Binding) Has(name string) bool {
	_, ok := b.index[name]
	return ok
}

// Detect binds a header (as written by sessionlog, "time" first) to a known
// layout. An exact match on any version wins. Otherwise columns are bound by
// name to the newest layout whose required columns are all present; extra
// header columns are ignored and missing optional ones are never applied.
func Detect(header []string) (*Binding, error) {
	if len(header) == 0 || header[0] != TimeColumn {
		return nil, fmt.Errorf("%w: first column must be %q", ErrUnknownSchema, TimeColumn)
	}

	for _, s := range Known() {
		if slices.Equal(header, s.Header()) {
			return bind(s, header, true), nil
		}
	}

	present := make(map[string]bool, len(header))
	for _, h := range header[1:] {
		present[h] = true
	}

	var missing []string
	for _, s := range Known() {
		m := missingRequired(s, present)
		if len(m) == 0 {
			return bind(s, header, false), nil
		}
		if missing == nil {
			missing = m
		}
	}

	return nil, fmt.Errorf("%w: missing columns %s", ErrUnknownSchema, strings.Join(missing, ", "))
}

func bind(s Schema, header []string, exact bool) *Binding {
	b := &Binding{
		Schema: s,
		Exact:  exact,
		Width:  len(header),
		index:  make(map[string]int, len(s.Columns)),
	}
	for i, h := range header {
		if i == 0 {
			continue
		}
		if _, ok := s.Column(h); ok {
			if _, dup := b.index[h]; !dup {
				b.index[h] = i
			}
		}
	}
	return b
}

func missingRequired(s Schema, present map[string]bool) []string {
	var missing []string
	for _, c := range s.Columns {
		if c.Required && !present[c.Name] {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

package live

import (
	"sort"
	"strings"
)

// Record is a row in a live collection
type Record interface {
	RecordID() string
	Field(name string) (string, bool)
}

// Condition is a single field equality
type Condition struct {
	Field string
	Value string
}

// Filter is a conjunction of field equalities. The zero Filter matches the whole collection.
type Filter struct {
	conds []Condition
}

// All returns the filter matching every record
func All() Filter {
	return Filter{}
}

// Where returns a filter with a single equality condition
func Where(field, value string) Filter {
	return Filter{}.And(field, value)
}

// And adds an equality condition. A repeated field replaces the earlier value.
func (f Filter) And(field, value string) Filter {
	conds := make([]Condition, 0, len(f.conds)+1)
	for _, c := range f.conds {
		if c.Field != field {
			conds = append(conds, c)
		}
	}
	conds = append(conds, Condition{Field: field, Value: value})
	sort.Slice(conds, func(i, j int) bool { return conds[i].Field < conds[j].Field })
	return Filter{conds: conds}
}

// Conditions returns the conditions ordered by field name
func (f Filter) Conditions() []Condition {
	return append([]Condition(nil), f.conds...)
}

// Value returns the value required for field, if any
func (f Filter) Value(field string) (string, bool) {
	for _, c := range f.conds {
		if c.Field == field {
			return c.Value, true
		}
	}
	return "", false
}

// IsEmpty reports whether the filter matches everything
func (f Filter) IsEmpty() bool {
	return len(f.conds) == 0
}

// Matches reports whether r satisfies every condition
func (f Filter) Matches(r Record) bool {
	for _, c := range f.conds {
		v, ok := r.Field(c.Field)
		if !ok || v != c.Value {
			return false
		}
	}
	return true
}

// Key returns a canonical string for grouping identical filters
func (f Filter) Key() string {
	var b strings.Builder
	for _, c := range f.conds {
		b.WriteString(c.Field)
		b.WriteByte('=')
		b.WriteString(c.Value)
		b.WriteByte(0)
	}
	return b.String()
}

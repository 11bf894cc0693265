package faultlog

import (
	"log/slog"
	"regexp"
	"strings"

	"nimbus-hq/helios/pkg/faults"
)

// Sink receives structured fault entries. Implementations must be safe for
// concurrent use and must not retain the entry's metadata map.
type Sink interface {
	// Write delivers one entry.
	Write(entry Entry) error

	// Name identifies the sink. Registration on a Logger is keyed by it.
	Name() string
}

// FilterOp is the comparison a field filter applies.
type FilterOp string

const (
	FilterEquals     FilterOp = "equals"
	FilterContains   FilterOp = "contains"
	FilterStartsWith FilterOp = "starts_with"
	FilterPattern    FilterOp = "pattern"
)

// FieldFilter narrows which entries reach a sink. Field names the entry
// field or metadata key to inspect (see Entry.Field), Value is the operand.
// An entry missing the field never matches.
type FieldFilter struct {
	Field string   `yaml:"field" json:"field"`
	Op    FilterOp `yaml:"op" json:"op"`
	Value string   `yaml:"value" json:"value"`
}

// SinkOptions configures one sink binding on a Logger.
type SinkOptions struct {
	// MinLevel drops entries below this level. The zero value admits
	// info and above.
	MinLevel slog.Level

	// Disabled registers the sink without delivering to it. It can be
	// switched on later with EnableSink.
	Disabled bool

	// Filters must all match for an entry to be delivered.
	Filters []FieldFilter
}

// compiledFilter is a FieldFilter with its pattern compiled once at
// registration instead of per entry.
type compiledFilter struct {
	FieldFilter
	re *regexp.Regexp
}

func compileFilters(filters []FieldFilter) ([]compiledFilter, error) {
	out := make([]compiledFilter, 0, len(filters))
	for _, f := range filters {
		if f.Field == "" {
			return nil, faults.Newf(faults.ValidationKind, "filter field cannot be empty")
		}
		cf := compiledFilter{FieldFilter: f}
		switch f.Op {
		case FilterEquals, FilterContains, FilterStartsWith:
		case FilterPattern:
			re, err := regexp.Compile(f.Value)
			if err != nil {
				return nil, faults.Newf(faults.ValidationKind, "filter pattern %q: %v", f.Value, err)
			}
			cf.re = re
		default:
			return nil, faults.Newf(faults.ValidationKind, "unknown filter op %q", f.Op)
		}
		out = append(out, cf)
	}
	return out, nil
}

func (f compiledFilter) matches(e Entry) bool {
	got, ok := e.Field(f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case FilterEquals:
		return got == f.Value
	case FilterContains:
		return strings.Contains(got, f.Value)
	case FilterStartsWith:
		return strings.HasPrefix(got, f.Value)
	case FilterPattern:
		return f.re.MatchString(got)
	}
	return false
}

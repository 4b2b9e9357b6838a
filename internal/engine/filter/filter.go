// Package filter implements the recursive filter AST the pagination
// service evaluates against each LogEntry: leaf conditions over a field
// plus AND/OR/NOT branches.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/filter/operator"
)

// LogicOperator is the boolean combinator of a branch node.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
	LogicNot LogicOperator = "NOT"
)

// Filter is a recursive filter AST node: either a leaf condition (Field
// set) or a branch group (Logic set). An entirely empty Filter matches
// everything.
type Filter struct {
	Field  string `json:"field,omitempty" yaml:"field,omitempty"`
	Op     string `json:"op,omitempty" yaml:"op,omitempty"`
	Value  string `json:"value,omitempty" yaml:"value,omitempty"`
	Negate bool   `json:"negate,omitempty" yaml:"negate,omitempty"`

	Logic   LogicOperator `json:"logic,omitempty" yaml:"logic,omitempty"`
	Filters []Filter      `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// Validate checks that the filter is structurally well-formed: at most one
// of leaf/branch shape (a filter with neither is valid and matches
// everything), valid operators, and no orphan children.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}

	isLeaf := f.Field != ""
	isBranch := f.Logic != ""

	if isLeaf && isBranch {
		return fmt.Errorf("filter cannot have both 'field' and 'logic' set")
	}
	if !isLeaf && !isBranch {
		return nil
	}

	if isLeaf {
		switch f.Op {
		case "", operator.Equals, operator.Match, operator.Wildcard, operator.Exists, operator.Regex,
			operator.Gt, operator.Gte, operator.Lt, operator.Lte:
		default:
			return fmt.Errorf("invalid operator: %s", f.Op)
		}
		if f.Op != operator.Exists && f.Value == "" {
			return fmt.Errorf("filter with field '%s' requires a value (unless op is 'exists')", f.Field)
		}
		if len(f.Filters) > 0 {
			return fmt.Errorf("leaf filter (field='%s') cannot have nested filters", f.Field)
		}
	}

	if isBranch {
		switch f.Logic {
		case LogicAnd, LogicOr, LogicNot:
		default:
			return fmt.Errorf("invalid logic operator: %s", f.Logic)
		}
		if f.Logic == LogicNot && len(f.Filters) == 0 {
			return fmt.Errorf("NOT filter must have at least one child filter")
		}
		if f.Value != "" {
			return fmt.Errorf("branch filter (logic='%s') should not have a value", f.Logic)
		}
		for i, child := range f.Filters {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("filter[%d]: %w", i, err)
			}
		}
	}

	return nil
}

// Match evaluates the filter against a LogEntry.
func (f *Filter) Match(e entry.LogEntry) bool {
	if f == nil {
		return true
	}
	if f.Logic != "" {
		return f.matchBranch(e)
	}
	if f.Field != "" {
		return f.matchLeaf(e)
	}
	return true
}

func (f *Filter) matchBranch(e entry.LogEntry) bool {
	if len(f.Filters) == 0 {
		return true
	}
	switch f.Logic {
	case LogicAnd:
		for _, child := range f.Filters {
			if !child.Match(e) {
				return false
			}
		}
		return true
	case LogicOr:
		for _, child := range f.Filters {
			if child.Match(e) {
				return true
			}
		}
		return false
	case LogicNot:
		for _, child := range f.Filters {
			if !child.Match(e) {
				return true
			}
		}
		return false
	}
	return true
}

// field returns the value of a named field off a LogEntry. "_", "text" and
// "message" give the parsed message when one is present, else the raw
// text; other names map to fixed entry or Parsed fields (no dotted paths).
func field(e entry.LogEntry, name string) string {
	switch strings.ToLower(name) {
	case "_", "text", "message":
		if e.Parsed != nil && e.Parsed.Message != "" {
			return e.Parsed.Message
		}
		return e.Text
	case "level":
		return string(e.Level)
	case "type":
		return e.Type
	case "source":
		return e.Source
	case "ts", "timestamp":
		return strconv.FormatInt(e.Ts, 10)
	case "process":
		if e.Parsed != nil {
			return e.Parsed.Process
		}
		return ""
	case "pid":
		if e.Parsed != nil {
			return e.Parsed.Pid
		}
		return ""
	}
	return ""
}

func (f *Filter) matchLeaf(e entry.LogEntry) bool {
	if f.Op == operator.Exists {
		return field(e, f.Field) != ""
	}
	val := field(e, f.Field)
	if val == "" {
		return false
	}
	return f.matchValue(val)
}

func (f *Filter) matchValue(fieldVal string) bool {
	var result bool

	switch f.Op {
	case operator.Regex:
		matched, err := regexp.MatchString(f.Value, fieldVal)
		result = err == nil && matched

	case operator.Wildcard:
		pattern := regexp.QuoteMeta(f.Value)
		pattern = strings.ReplaceAll(pattern, `\*`, `.*`)
		pattern = strings.ReplaceAll(pattern, `\?`, `.`)
		pattern = "^" + pattern + "$"
		matched, err := regexp.MatchString(pattern, fieldVal)
		result = err == nil && matched

	case operator.Match:
		result = strings.Contains(strings.ToLower(fieldVal), strings.ToLower(f.Value))

	case operator.Gt, operator.Gte, operator.Lt, operator.Lte:
		result = f.compareNumeric(fieldVal)

	case "", operator.Equals:
		result = fieldVal == f.Value

	default:
		result = fieldVal == f.Value
	}

	if f.Negate {
		return !result
	}
	return result
}

func (f *Filter) compareNumeric(fieldVal string) bool {
	fieldNum, err1 := strconv.ParseFloat(fieldVal, 64)
	valueNum, err2 := strconv.ParseFloat(f.Value, 64)
	if err1 != nil || err2 != nil {
		return f.compareString(fieldVal)
	}
	switch f.Op {
	case operator.Gt:
		return fieldNum > valueNum
	case operator.Gte:
		return fieldNum >= valueNum
	case operator.Lt:
		return fieldNum < valueNum
	case operator.Lte:
		return fieldNum <= valueNum
	}
	return false
}

func (f *Filter) compareString(fieldVal string) bool {
	switch f.Op {
	case operator.Gt:
		return fieldVal > f.Value
	case operator.Gte:
		return fieldVal >= f.Value
	case operator.Lt:
		return fieldVal < f.Value
	case operator.Lte:
		return fieldVal <= f.Value
	}
	return false
}

package filter

import (
	"testing"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/filter/operator"
	"github.com/stretchr/testify/assert"
)

func TestFilter_Validate(t *testing.T) {
	t.Run("nil filter is valid", func(t *testing.T) {
		var f *Filter
		assert.NoError(t, f.Validate())
	})

	t.Run("leaf with both field and logic is invalid", func(t *testing.T) {
		f := Filter{Field: "level", Logic: LogicAnd}
		assert.Error(t, f.Validate())
	})

	t.Run("leaf missing value when op requires one", func(t *testing.T) {
		f := Filter{Field: "level", Op: operator.Equals}
		assert.Error(t, f.Validate())
	})

	t.Run("exists op does not require a value", func(t *testing.T) {
		f := Filter{Field: "level", Op: operator.Exists}
		assert.NoError(t, f.Validate())
	})

	t.Run("invalid operator rejected", func(t *testing.T) {
		f := Filter{Field: "level", Op: "bogus", Value: "E"}
		assert.Error(t, f.Validate())
	})

	t.Run("NOT requires at least one child", func(t *testing.T) {
		f := Filter{Logic: LogicNot}
		assert.Error(t, f.Validate())
	})

	t.Run("branch with value is invalid", func(t *testing.T) {
		f := Filter{Logic: LogicAnd, Value: "x"}
		assert.Error(t, f.Validate())
	})

	t.Run("nested children validated recursively", func(t *testing.T) {
		f := Filter{Logic: LogicAnd, Filters: []Filter{
			{Field: "level", Op: "bogus", Value: "E"},
		}}
		assert.Error(t, f.Validate())
	})
}

func TestFilter_Match_Equals(t *testing.T) {
	f := Filter{Field: "level", Op: operator.Equals, Value: "E"}
	assert.True(t, f.Match(entry.LogEntry{Level: entry.LevelError}))
	assert.False(t, f.Match(entry.LogEntry{Level: entry.LevelInfo}))
}

func TestFilter_Match_NegateInvertsResult(t *testing.T) {
	f := Filter{Field: "level", Op: operator.Equals, Value: "E", Negate: true}
	assert.False(t, f.Match(entry.LogEntry{Level: entry.LevelError}))
	assert.True(t, f.Match(entry.LogEntry{Level: entry.LevelInfo}))
}

func TestFilter_Match_Wildcard(t *testing.T) {
	f := Filter{Field: "text", Op: operator.Wildcard, Value: "conn*fail"}
	assert.True(t, f.Match(entry.LogEntry{Text: "connection fail"}))
	assert.False(t, f.Match(entry.LogEntry{Text: "connection ok"}))
}

func TestFilter_Match_RegexAndMatch(t *testing.T) {
	re := Filter{Field: "text", Op: operator.Regex, Value: `\d{3}-\d{4}`}
	assert.True(t, re.Match(entry.LogEntry{Text: "call 555-1234 now"}))

	substr := Filter{Field: "text", Op: operator.Match, Value: "ERR"}
	assert.True(t, substr.Match(entry.LogEntry{Text: "an err occurred"}))
}

func TestFilter_Match_NumericComparison(t *testing.T) {
	gt := Filter{Field: "ts", Op: operator.Gt, Value: "100"}
	assert.True(t, gt.Match(entry.LogEntry{Ts: 150}))
	assert.False(t, gt.Match(entry.LogEntry{Ts: 50}))
}

func TestFilter_Match_ExistsChecksParsedFields(t *testing.T) {
	f := Filter{Field: "pid", Op: operator.Exists}
	assert.True(t, f.Match(entry.LogEntry{Parsed: &entry.Parsed{Pid: "42"}}))
	assert.False(t, f.Match(entry.LogEntry{}))
}

func TestFilter_Match_BranchLogic(t *testing.T) {
	and := Filter{Logic: LogicAnd, Filters: []Filter{
		{Field: "level", Op: operator.Equals, Value: "E"},
		{Field: "type", Op: operator.Equals, Value: "auth"},
	}}
	assert.True(t, and.Match(entry.LogEntry{Level: entry.LevelError, Type: "auth"}))
	assert.False(t, and.Match(entry.LogEntry{Level: entry.LevelError, Type: "db"}))

	or := Filter{Logic: LogicOr, Filters: []Filter{
		{Field: "level", Op: operator.Equals, Value: "E"},
		{Field: "level", Op: operator.Equals, Value: "W"},
	}}
	assert.True(t, or.Match(entry.LogEntry{Level: entry.LevelWarn}))
	assert.False(t, or.Match(entry.LogEntry{Level: entry.LevelInfo}))

	not := Filter{Logic: LogicNot, Filters: []Filter{
		{Field: "level", Op: operator.Equals, Value: "E"},
	}}
	assert.True(t, not.Match(entry.LogEntry{Level: entry.LevelInfo}))
	assert.False(t, not.Match(entry.LogEntry{Level: entry.LevelError}))
}

func TestFilter_Match_EmptyFilterMatchesEverything(t *testing.T) {
	var f Filter
	assert.True(t, f.Match(entry.LogEntry{Level: entry.LevelError}))
}

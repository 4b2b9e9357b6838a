package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTemplate(t *testing.T) {
	t.Run("valid version 1 template", func(t *testing.T) {
		tmpl, err := LoadTemplate([]byte(`{"version":1,"rules":[{"match":"**/foo*.log*","time":"(?P<time>\\d{4}-\\d{2}-\\d{2}T\\S+)"}]}`))
		require.NoError(t, err)
		assert.Equal(t, 1, tmpl.Version)
		require.Len(t, tmpl.Rules, 1)
		assert.Equal(t, "**/foo*.log*", tmpl.Rules[0].Match)
	})

	t.Run("rejects unsupported version", func(t *testing.T) {
		_, err := LoadTemplate([]byte(`{"version":2,"rules":[]}`))
		assert.Error(t, err)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		_, err := LoadTemplate([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestCompile(t *testing.T) {
	t.Run("refuses rule with no match glob", func(t *testing.T) {
		_, err := Compile(RawRule{Time: "x"})
		assert.Error(t, err)
	})

	t.Run("refuses invalid extractor regex", func(t *testing.T) {
		_, err := Compile(RawRule{Match: "*.log", Time: "("})
		assert.Error(t, err)
	})
}

func TestRuleExtract(t *testing.T) {
	rule, err := Compile(RawRule{
		Match:   "*.log",
		Time:    `^(?P<time>\S+)`,
		Process: `\[(?P<process>\w+)\]`,
		Pid:     `pid=(?P<pid>\d+)`,
		Message: `: (?P<message>.*)$`,
	})
	require.NoError(t, err)

	p := rule.Extract("2024-01-02T10:00:00Z [worker] pid=42: hello world")
	assert.Equal(t, "2024-01-02T10:00:00Z", p.Time)
	assert.Equal(t, "worker", p.Process)
	assert.Equal(t, "42", p.Pid)
	assert.Equal(t, "hello world", p.Message)
	assert.True(t, p.GatePassed())
}

func TestRuleExtract_GateFailsWithoutTimeProcessOrPid(t *testing.T) {
	rule, err := Compile(RawRule{Match: "*.log", Message: `: (?P<message>.*)$`})
	require.NoError(t, err)
	p := rule.Extract("random line: hello")
	assert.False(t, p.GatePassed())
}

func TestMatchRuleForPath_DoubleStarGlob(t *testing.T) {
	tmpl := Template{Version: 1, Rules: []RawRule{
		{Match: "**/foo*.log*", Time: `(?P<time>\S+)`},
	}}
	rs, err := CompileRuleSet(tmpl)
	require.NoError(t, err)

	assert.NotNil(t, rs.MatchRuleForPath("foo.log"))
	assert.NotNil(t, rs.MatchRuleForPath("nested/dir/foo-1.log.2"))
	assert.Nil(t, rs.MatchRuleForPath("bar.log"))
}

func TestMatchRuleForPath_FirstDeclaredOrderWins(t *testing.T) {
	tmpl := Template{Version: 1, Rules: []RawRule{
		{Match: "*.log", Time: `(?P<time>A)`},
		{Match: "foo.log", Time: `(?P<time>B)`},
	}}
	rs, err := CompileRuleSet(tmpl)
	require.NoError(t, err)

	r := rs.MatchRuleForPath("foo.log")
	require.NotNil(t, r)
	p := r.Extract("A")
	assert.Equal(t, "A", p.Time)
}

func TestShouldUseParserForFile(t *testing.T) {
	rule, err := Compile(RawRule{Match: "*.log", Time: `^(?P<time>\d{4}-\d{2}-\d{2})`})
	require.NoError(t, err)

	t.Run("accepts when majority of sampled lines match", func(t *testing.T) {
		lines := []string{"2024-01-01 hello", "2024-01-02 world", "not a date line"}
		assert.True(t, ShouldUseParserForFile(rule, lines))
	})

	t.Run("rejects when majority fails to match", func(t *testing.T) {
		lines := []string{"not a date line", "also not", "2024-01-01 hello"}
		assert.False(t, ShouldUseParserForFile(rule, lines))
	})

	t.Run("rejects with no sampled lines", func(t *testing.T) {
		assert.False(t, ShouldUseParserForFile(rule, nil))
	})
}

package jsonrepair

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reencode(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestParseRoundTripsStrictJSON(t *testing.T) {
	inputs := []string{
		`{"scene":{"number":"12A","pages":1.375,"cast":["1","4"]},"ok":true,"note":null}`,
		`[1,2,3]`,
		`"just a string"`,
		`42`,
		`12345678901234567890`,
	}
	for _, in := range inputs {
		v, ok := Parse(in)
		require.True(t, ok, in)
		assert.JSONEq(t, in, reencode(t, v))
	}

	_, s := ParseDetailed(`{"a":1}`, ExpectAny)
	assert.Equal(t, StrategyDirect, s)
}

func TestParseNotJSON(t *testing.T) {
	for _, in := range []string{"not json at all", "", "   ", "I'll get right on that!"} {
		v, ok := Parse(in)
		assert.False(t, ok, in)
		assert.Nil(t, v, in)
	}
}

func TestParseSingleQuotesWithApostrophe(t *testing.T) {
	v, ok := Parse(`{'note': 'it''s fine'}`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"note": "it's fine"}, v)

	v, ok = Parse(`{'note': 'it's fine', 'who': 'Dana'}`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"note": "it's fine", "who": "Dana"}, v)
}

func TestParseFencedBlock(t *testing.T) {
	text := "Here is the plan:\n```json\n{\"tool\": \"get_scenes\", \"args\": {}}\n```\nLet me know."
	v, s := ParseDetailed(text, ExpectAny)
	require.Equal(t, StrategyFenced, s)
	assert.JSONEq(t, `{"tool":"get_scenes","args":{}}`, reencode(t, v))
}

func TestParseEmbeddedInProse(t *testing.T) {
	text := `Sure! I'll call {"name": "get_cast", "arguments": {"character": "Mara {lead}"}} right away.`
	v, s := ParseDetailed(text, ExpectAny)
	require.Equal(t, StrategyBalanced, s)
	assert.JSONEq(t, `{"name":"get_cast","arguments":{"character":"Mara {lead}"}}`, reencode(t, v))
}

func TestParsePrefersLongestSpan(t *testing.T) {
	text := `First {"a":1} and then [{"b":2},{"c":3}] done`
	v, ok := Parse(text)
	require.True(t, ok)
	assert.JSONEq(t, `[{"b":2},{"c":3}]`, reencode(t, v))
}

func TestParseRepairs(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"trailing commas": {
			in:   `{"ids": [1, 2,], "done": true,}`,
			want: `{"ids":[1,2],"done":true}`,
		},
		"comments": {
			in:   "{\n  \"url\": \"http://example.com\", // the link\n  /* block */ \"n\": 1\n}",
			want: `{"url":"http://example.com","n":1}`,
		},
		"bare keys": {
			in:   `{name: "INT. KITCHEN - NIGHT", page_count: 2}`,
			want: `{"name":"INT. KITCHEN - NIGHT","page_count":2}`,
		},
		"missing commas": {
			in:   `{"scenes": [{"n": 1} {"n": 2}]}`,
			want: `{"scenes":[{"n":1},{"n":2}]}`,
		},
		"raw newline in string": {
			in:   "{\"description\": \"line one\nline two\"}",
			want: `{"description":"line one\nline two"}`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v, s := ParseDetailed(tc.in, ExpectAny)
			require.Equal(t, StrategyRepaired, s)
			assert.JSONEq(t, tc.want, reencode(t, v))
		})
	}
}

func TestParseAggressiveFallback(t *testing.T) {
	// The longest balanced span is prose, so only the greedy list match repairs.
	text := `[{name: "get_scenes"}] then {this is a much longer stray note}`
	v, s := ParseDetailed(text, ExpectContainer)
	require.Equal(t, StrategyAggressive, s)
	assert.JSONEq(t, `[{"name":"get_scenes"}]`, reencode(t, v))
}

func TestParseExpectRestrictsValues(t *testing.T) {
	_, ok := ParseObject(`"a string"`)
	assert.False(t, ok)

	_, s := ParseDetailed(`[1,2]`, ExpectObject)
	assert.Equal(t, StrategyNone, s)

	v, s := ParseDetailed(`noise [1,2] {"k":"v"}`, ExpectObject)
	require.NotEqual(t, StrategyNone, s)
	assert.Equal(t, map[string]any{"k": "v"}, v)
}

func TestParseInto(t *testing.T) {
	var dst struct {
		Name  string  `json:"name"`
		Pages float64 `json:"pages"`
	}
	require.NoError(t, ParseInto("```\n{name: 'Diner', pages: 2.5}\n```", &dst, ExpectObject))
	assert.Equal(t, "Diner", dst.Name)
	assert.Equal(t, 2.5, dst.Pages)

	assert.ErrorIs(t, ParseInto("nothing here", &dst, ExpectObject), ErrUnparseable)
}

func TestParseWithValidation(t *testing.T) {
	requireName := func(v any) error {
		m, ok := v.(map[string]any)
		if !ok || m["name"] == nil {
			return errors.New("name is required")
		}
		return nil
	}

	res := ParseWithValidation(`{"name": "x"}`, requireName)
	assert.True(t, res.Success)
	assert.Empty(t, res.Error)

	res = ParseWithValidation(`{"other": 1}`, requireName)
	assert.False(t, res.Success)
	assert.Equal(t, "name is required", res.Error)

	res = ParseWithValidation("nope", requireName)
	assert.False(t, res.Success)
	assert.Equal(t, ErrUnparseable.Error(), res.Error)
}

package expect

import (
	"errors"
	"regexp"
	"testing"

	"github.com/dlclark/regexp2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_SentinelPositions(t *testing.T) {
	set, err := Compile(Exact("a"), TIMEOUT, EOF, Regex(`b`), EOF, TIMEOUT)
	require.NoError(t, err)
	assert.Equal(t, 6, set.Len())
	assert.Equal(t, 2, set.eofIndex)
	assert.Equal(t, 1, set.timeoutIndex)
	assert.Equal(t, EOF, set.Pattern(2))
}

func TestCompile_NoSentinels(t *testing.T) {
	set, err := Compile(Exact("a"))
	require.NoError(t, err)
	assert.Equal(t, -1, set.eofIndex)
	assert.Equal(t, -1, set.timeoutIndex)
}

func TestCompile_Errors(t *testing.T) {
	for _, tc := range [...]struct {
		name     string
		patterns []Pattern
		index    int
	}{
		{`empty`, nil, -1},
		{`nil entry`, []Pattern{Exact("a"), nil}, 1},
		{`bad regexp`, []Pattern{Regex(`[`)}, 0},
		{`bad regexp2`, []Pattern{EOF, Regex2(`(?<`, regexp2.None)}, 1},
		{`nil compiled regexp`, []Pattern{Regexp(nil)}, 0},
		{`nil compiled regexp2`, []Pattern{Exact("x"), Exact("y"), Regexp2(nil)}, 2},
		{`nil matcher`, []Pattern{Matching(nil)}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			set, err := Compile(tc.patterns...)
			assert.Nil(t, set)
			var patternErr *PatternError
			require.ErrorAs(t, err, &patternErr)
			assert.Equal(t, tc.index, patternErr.Index)
			assert.True(t, errors.Is(err, ErrInvalidPattern))
			assert.Error(t, errors.Unwrap(err))
		})
	}
}

func TestCompile_CopiesInput(t *testing.T) {
	patterns := []Pattern{Exact("a"), Exact("b")}
	set, err := Compile(patterns...)
	require.NoError(t, err)
	patterns[0] = Exact("z")
	assert.Equal(t, Exact("a"), set.Pattern(0))
}

func TestExactBytes_Clones(t *testing.T) {
	b := []byte("abc")
	p := ExactBytes(b)
	b[0] = 'x'
	assert.Equal(t, `"abc"`, p.String())
}

func TestPattern_String(t *testing.T) {
	assert.Equal(t, `"a\r\n"`, Exact("a\r\n").String())
	assert.Equal(t, `re:a+`, Regex(`a+`).String())
	assert.Equal(t, `re:b*`, Regexp(regexp.MustCompile(`b*`)).String())
	assert.Equal(t, `re2:c?`, Regex2(`c?`, regexp2.None).String())
	assert.Equal(t, `re2:d`, Regexp2(regexp2.MustCompile(`d`, regexp2.None)).String())
	assert.Equal(t, `re2:<nil>`, Regexp2(nil).String())
	assert.Equal(t, `re:expect.upperMatcher`, Matching(upperMatcher{}).String())
	assert.Equal(t, `EOF`, EOF.String())
	assert.Equal(t, `TIMEOUT`, TIMEOUT.String())
}

func TestPatternSet_findAll(t *testing.T) {
	set, err := Compile(Exact("lo"), Regex(`l+`), EOF, Exact("zz"))
	require.NoError(t, err)

	buf := []byte("hello world")
	candidates, err := set.findAll(buf, 0, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, candidate{index: 0, loc: []int{3, 5}}, candidates[0])
	assert.Equal(t, candidate{index: 1, loc: []int{2, 4}}, candidates[1])

	c, ok := selectCandidate(candidates)
	require.True(t, ok)
	assert.Equal(t, 1, c.index)

	// offsets are absolute when scanning a window
	candidates, err = set.findAll(buf, 5, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, candidate{index: 1, loc: []int{9, 10}}, candidates[0])
}

func TestPatternSet_findAllScannedPrefix(t *testing.T) {
	set, err := Compile(Exact("abc"))
	require.NoError(t, err)

	// the first 4 bytes were already scanned, a match may still straddle them
	candidates, err := set.findAll([]byte("xxabcabc"), 0, 4)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, []int{2, 5}, candidates[0].loc)

	// a known-absent prefix is skipped
	candidates, err = set.findAll([]byte("abcxxxx"), 0, 7)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestPatternSet_findAllEmptyLiteral(t *testing.T) {
	set, err := Compile(Regex(`b`), Exact(""))
	require.NoError(t, err)

	for _, tc := range [...]struct {
		name        string
		buf         string
		windowStart int
		scanned     int
		start       int
	}{
		{`empty buffer`, "", 0, 0, 0},
		{`first scan`, "abc", 0, 0, 0},
		{`rescan`, "abc", 0, 3, 0},
		{`window`, "abcd", 2, 4, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			candidates, err := set.findAll([]byte(tc.buf), tc.windowStart, tc.scanned)
			require.NoError(t, err)
			c, ok := selectCandidate(candidates)
			require.True(t, ok)
			assert.Equal(t, 1, c.index)
			assert.Equal(t, []int{tc.start, tc.start}, c.loc)
		})
	}
}

func TestSelectCandidate(t *testing.T) {
	_, ok := selectCandidate(nil)
	assert.False(t, ok)

	c, ok := selectCandidate([]candidate{
		{index: 0, loc: []int{4, 5}},
		{index: 1, loc: []int{2, 9}},
		{index: 2, loc: []int{2, 3}},
	})
	require.True(t, ok)
	assert.Equal(t, 1, c.index)
}

func TestRuneWindow(t *testing.T) {
	var x runeWindow
	x.init([]byte("aé\xffb"))
	assert.Equal(t, []rune{'a', 'é', 0xfffd, 'b'}, x.runes)
	assert.Equal(t, []int{0, 1, 3, 4, 5}, x.offsets)

	// decoded once per scan
	x.init([]byte("other"))
	assert.Len(t, x.runes, 4)
}

package expect

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

type patternKind int

const (
	kindLiteral patternKind = iota
	kindMatcher
	kindEOF
	kindTimeout
)

// Pattern is a match target, for use with [Session.Expect] and [Compile].
//
// Implementations are provided by [Exact], [ExactBytes], [Regexp], [Regex],
// [Regexp2], [Regex2], [Matching], and the sentinels [EOF] and [TIMEOUT].
type Pattern interface {
	String() string
	compile() (compiledPattern, error)
}

// Matcher is any compiled pattern matcher, e.g. [*regexp.Regexp].
// FindIndex must return the leftmost match, or nil.
type Matcher interface {
	FindIndex(b []byte) []int
}

// SubmatchMatcher is a [Matcher] that also reports capture groups, which
// are made available via [Match.Groups].
type SubmatchMatcher interface {
	Matcher
	FindSubmatchIndex(b []byte) []int
}

var (
	// EOF is a sentinel pattern that matches when the channel reaches end of
	// stream, instead of failing with an [*EOFError].
	EOF Pattern = sentinelPattern(kindEOF)

	// TIMEOUT is a sentinel pattern that matches when the deadline expires,
	// instead of failing with a [*TimeoutError].
	TIMEOUT Pattern = sentinelPattern(kindTimeout)
)

// compiledPattern is the evaluated form of a Pattern. Sentinels have neither
// a literal nor a find function.
type compiledPattern struct {
	// find returns submatch indexes relative to window, or nil
	find    func(window []byte, runes *runeWindow) ([]int, error)
	literal []byte
	kind    patternKind
}

type (
	literalPattern struct {
		b []byte
	}

	matcherPattern struct {
		m    Matcher
		desc string
	}

	regexPattern struct {
		expr string
	}

	regexp2Pattern struct {
		re *regexp2.Regexp
	}

	regex2Pattern struct {
		expr string
		opts regexp2.RegexOptions
	}

	sentinelPattern patternKind
)

// Exact matches the literal string s.
func Exact(s string) Pattern {
	return literalPattern{b: []byte(s)}
}

// ExactBytes matches the literal byte sequence b.
func ExactBytes(b []byte) Pattern {
	return literalPattern{b: bytes.Clone(b)}
}

// Regexp matches using a compiled [regexp.Regexp].
func Regexp(re *regexp.Regexp) Pattern {
	var desc string
	if re != nil {
		desc = re.String()
	}
	return matcherPattern{m: re, desc: desc}
}

// Regex matches using the [regexp] syntax. Compilation errors are reported
// as a [*PatternError] by [Compile].
func Regex(expr string) Pattern {
	return regexPattern{expr: expr}
}

// Regexp2 matches using a compiled [regexp2.Regexp], which supports
// backtracking constructs (lookaround, backreferences) of Perl and Python
// style expressions. Offsets are translated to bytes.
func Regexp2(re *regexp2.Regexp) Pattern {
	return regexp2Pattern{re: re}
}

// Regex2 compiles expr with [regexp2.Compile]. Compilation errors are
// reported as a [*PatternError] by [Compile].
func Regex2(expr string, opts regexp2.RegexOptions) Pattern {
	return regex2Pattern{expr: expr, opts: opts}
}

// Matching uses an arbitrary [Matcher]. If m also implements
// [SubmatchMatcher], capture groups are reported.
func Matching(m Matcher) Pattern {
	return matcherPattern{m: m, desc: fmt.Sprintf("%T", m)}
}

func (x literalPattern) String() string { return strconv.Quote(string(x.b)) }

func (x literalPattern) compile() (compiledPattern, error) {
	return compiledPattern{kind: kindLiteral, literal: x.b}, nil
}

func (x matcherPattern) String() string { return "re:" + x.desc }

func (x matcherPattern) compile() (compiledPattern, error) {
	if x.m == nil {
		return compiledPattern{}, errors.New("nil matcher")
	}
	if re, ok := x.m.(*regexp.Regexp); ok && re == nil {
		return compiledPattern{}, errors.New("nil regexp")
	}
	return compileMatcher(x.m), nil
}

func (x regexPattern) String() string { return "re:" + x.expr }

func (x regexPattern) compile() (compiledPattern, error) {
	re, err := regexp.Compile(x.expr)
	if err != nil {
		return compiledPattern{}, err
	}
	return compileMatcher(re), nil
}

func (x regexp2Pattern) String() string {
	if x.re == nil {
		return "re2:<nil>"
	}
	return "re2:" + x.re.String()
}

func (x regexp2Pattern) compile() (compiledPattern, error) {
	if x.re == nil {
		return compiledPattern{}, errors.New("nil regexp2")
	}
	return compileRegexp2(x.re), nil
}

func (x regex2Pattern) String() string { return "re2:" + x.expr }

func (x regex2Pattern) compile() (compiledPattern, error) {
	re, err := regexp2.Compile(x.expr, x.opts)
	if err != nil {
		return compiledPattern{}, err
	}
	return compileRegexp2(re), nil
}

func (x sentinelPattern) String() string {
	switch patternKind(x) {
	case kindEOF:
		return "EOF"
	case kindTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("sentinel(%d)", int(x))
	}
}

func (x sentinelPattern) compile() (compiledPattern, error) {
	return compiledPattern{kind: patternKind(x)}, nil
}

func compileMatcher(m Matcher) compiledPattern {
	if sm, ok := m.(SubmatchMatcher); ok {
		return compiledPattern{
			kind: kindMatcher,
			find: func(window []byte, _ *runeWindow) ([]int, error) {
				return sm.FindSubmatchIndex(window), nil
			},
		}
	}
	return compiledPattern{
		kind: kindMatcher,
		find: func(window []byte, _ *runeWindow) ([]int, error) {
			return m.FindIndex(window), nil
		},
	}
}

func compileRegexp2(re *regexp2.Regexp) compiledPattern {
	return compiledPattern{
		kind: kindMatcher,
		find: func(window []byte, runes *runeWindow) ([]int, error) {
			runes.init(window)
			m, err := re.FindRunesMatch(runes.runes)
			if err != nil || m == nil {
				return nil, err
			}
			groups := m.Groups()
			loc := make([]int, 0, 2*len(groups))
			for _, g := range groups {
				if len(g.Captures) == 0 {
					loc = append(loc, -1, -1)
					continue
				}
				loc = append(loc, runes.offsets[g.Index], runes.offsets[g.Index+g.Length])
			}
			return loc, nil
		},
	}
}

// runeWindow lazily decodes a window once per scan, for regexp2, which
// operates on runes. Each invalid byte decodes as one utf8.RuneError, like a
// []rune conversion, so offsets map back to the original bytes.
type runeWindow struct {
	runes   []rune
	offsets []int
	ready   bool
}

func (x *runeWindow) init(b []byte) {
	if x.ready {
		return
	}
	x.ready = true
	x.runes = x.runes[:0]
	x.offsets = x.offsets[:0]
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		x.runes = append(x.runes, r)
		x.offsets = append(x.offsets, i)
		i += size
	}
	x.offsets = append(x.offsets, len(b))
}

// PatternSet is an ordered, compiled list of patterns. Positions in the list
// are the match identities reported by [Match.Index].
//
// A PatternSet is immutable, and may be reused across calls and sessions.
type PatternSet struct {
	patterns     []Pattern
	entries      []compiledPattern
	eofIndex     int
	timeoutIndex int
}

// Compile compiles patterns into a [PatternSet]. Sentinels may appear at any
// position; if a sentinel is repeated, its first position is used.
func Compile(patterns ...Pattern) (*PatternSet, error) {
	if len(patterns) == 0 {
		return nil, &PatternError{Index: -1, Err: errors.New("no patterns")}
	}
	x := &PatternSet{
		patterns:     append([]Pattern(nil), patterns...),
		entries:      make([]compiledPattern, len(patterns)),
		eofIndex:     -1,
		timeoutIndex: -1,
	}
	for i, p := range patterns {
		if p == nil {
			return nil, &PatternError{Index: i, Err: errors.New("nil pattern")}
		}
		c, err := p.compile()
		if err != nil {
			return nil, &PatternError{Index: i, Err: err}
		}
		x.entries[i] = c
		switch c.kind {
		case kindEOF:
			if x.eofIndex < 0 {
				x.eofIndex = i
			}
		case kindTimeout:
			if x.timeoutIndex < 0 {
				x.timeoutIndex = i
			}
		}
	}
	return x, nil
}

// Len returns the number of patterns.
func (x *PatternSet) Len() int { return len(x.patterns) }

// Pattern returns the pattern at position i.
func (x *PatternSet) Pattern(i int) Pattern { return x.patterns[i] }

// candidate is a match found by findAll, in absolute buffer offsets.
type candidate struct {
	// loc holds submatch pairs, loc[0:2] always being the whole match
	loc   []int
	index int
}

func (x candidate) start() int { return x.loc[0] }
func (x candidate) end() int   { return x.loc[1] }

// findAll evaluates every non-sentinel pattern against buf, restricted to
// buf[windowStart:]. Literals skip the first scanned bytes (less their own
// length, to catch matches straddling the boundary), because those bytes
// are known not to contain them. An empty literal matches at windowStart.
// Results are in ascending pattern order.
func (x *PatternSet) findAll(buf []byte, windowStart, scanned int) ([]candidate, error) {
	var (
		out   []candidate
		runes runeWindow
	)
	window := buf[windowStart:]
	for i, e := range x.entries {
		switch e.kind {
		case kindLiteral:
			from := windowStart
			if len(e.literal) > 0 {
				from = max(from, scanned-len(e.literal)+1)
			}
			if from > len(buf) {
				continue
			}
			if j := bytes.Index(buf[from:], e.literal); j >= 0 {
				out = append(out, candidate{index: i, loc: []int{from + j, from + j + len(e.literal)}})
			}
		case kindMatcher:
			loc, err := e.find(window, &runes)
			if err != nil {
				return nil, &PatternError{Index: i, Err: err}
			}
			if len(loc) < 2 || loc[0] < 0 {
				continue
			}
			abs := make([]int, len(loc))
			for k, v := range loc {
				if v >= 0 {
					v += windowStart
				}
				abs[k] = v
			}
			out = append(out, candidate{index: i, loc: abs})
		}
	}
	return out, nil
}

// selectCandidate picks the earliest starting match, preferring the lowest
// pattern position on ties. Candidates must be in ascending pattern order.
func selectCandidate(candidates []candidate) (best candidate, ok bool) {
	for _, c := range candidates {
		if !ok || c.start() < best.start() {
			best, ok = c, true
		}
	}
	return best, ok
}

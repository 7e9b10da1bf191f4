package grammar

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
	"unicode/utf8"
)

// MaxWidth is the width assigned to patterns whose repetition is unbounded.
const MaxWidth = 4294967295

type PatternKind string

const (
	PatternKindStr = PatternKind("str")
	PatternKindRE  = PatternKind("re")
)

// Pattern is a matcher of a terminal. A string pattern matches its value literally, and a regexp
// pattern matches its value as a regular expression.
type Pattern struct {
	Kind  PatternKind
	Value string
	Flags []string
	Raw   string

	// width holds the [min, max] width. A nil width is computed from the value on demand.
	width []int
}

func NewStrPattern(value string, flags ...string) *Pattern {
	return &Pattern{
		Kind:  PatternKindStr,
		Value: value,
		Flags: flags,
	}
}

func NewREPattern(value string, flags ...string) *Pattern {
	return &Pattern{
		Kind:  PatternKindRE,
		Value: value,
		Flags: flags,
	}
}

// ToRegexp returns the pattern as a regular expression. The flags of the pattern are applied as an inline
// flag group.
func (p *Pattern) ToRegexp() string {
	var re string
	if p.Kind == PatternKindStr {
		re = regexp.QuoteMeta(p.Value)
	} else {
		re = p.Value
	}
	for _, f := range p.Flags {
		re = fmt.Sprintf("(?%v:%v)", f, re)
	}
	return re
}

func (p *Pattern) MinWidth() int {
	min, _ := p.widths()
	return min
}

func (p *Pattern) MaxWidth() int {
	_, max := p.widths()
	return max
}

func (p *Pattern) widths() (int, int) {
	min, max, err := p.Width()
	if err != nil {
		return 0, 0
	}
	return min, max
}

// Width returns the minimum and maximum width. It fails for a regexp pattern whose width was neither
// loaded with the grammar nor computable from the value.
func (p *Pattern) Width() (int, int, error) {
	if p.Kind == PatternKindStr {
		n := utf8.RuneCountInString(p.Value)
		return n, n, nil
	}
	if len(p.width) == 2 {
		return p.width[0], p.width[1], nil
	}
	return RegexpWidth(p.ToRegexp())
}

// HasFlag reports whether the pattern carries inline flag `f`.
func (p *Pattern) HasFlag(f string) bool {
	for _, pf := range p.Flags {
		if pf == f {
			return true
		}
	}
	return false
}

func (p *Pattern) String() string {
	if p.Raw != "" {
		return p.Raw
	}
	if p.Kind == PatternKindStr {
		return fmt.Sprintf("%q", p.Value)
	}
	return fmt.Sprintf("/%v/", p.Value)
}

func (p *Pattern) Equal(o *Pattern) bool {
	if p.Kind != o.Kind || p.Value != o.Value || len(p.Flags) != len(o.Flags) {
		return false
	}
	for i, f := range p.Flags {
		if o.Flags[i] != f {
			return false
		}
	}
	return true
}

// RegexpWidth returns the minimum and maximum count of characters the regular expression `re` can match.
// Look-arounds and the \G and \Z anchors match no characters, so they are dropped before `re` is parsed.
func RegexpWidth(re string) (int, int, error) {
	ast, err := syntax.Parse(stripZeroWidth(re), syntax.Perl)
	if err != nil {
		return 0, 0, err
	}
	min, max := regexpWidth(ast)
	return min, max, nil
}

func regexpWidth(re *syntax.Regexp) (int, int) {
	switch re.Op {
	case syntax.OpLiteral:
		return len(re.Rune), len(re.Rune)
	case syntax.OpCharClass, syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		return 1, 1
	case syntax.OpCapture:
		return regexpWidth(re.Sub[0])
	case syntax.OpStar:
		return 0, MaxWidth
	case syntax.OpPlus:
		min, _ := regexpWidth(re.Sub[0])
		return min, MaxWidth
	case syntax.OpQuest:
		_, max := regexpWidth(re.Sub[0])
		return 0, max
	case syntax.OpRepeat:
		min, max := regexpWidth(re.Sub[0])
		min = capWidth(min * re.Min)
		if re.Max < 0 {
			max = MaxWidth
		} else {
			max = capWidth(max * re.Max)
		}
		return min, max
	case syntax.OpConcat:
		min, max := 0, 0
		for _, sub := range re.Sub {
			subMin, subMax := regexpWidth(sub)
			min = capWidth(min + subMin)
			max = capWidth(max + subMax)
		}
		return min, max
	case syntax.OpAlternate:
		min, max := MaxWidth, 0
		for _, sub := range re.Sub {
			subMin, subMax := regexpWidth(sub)
			if subMin < min {
				min = subMin
			}
			if subMax > max {
				max = subMax
			}
		}
		if len(re.Sub) == 0 {
			min = 0
		}
		return min, max
	}
	// Empty matches and assertions.
	return 0, 0
}

func capWidth(w int) int {
	if w > MaxWidth {
		return MaxWidth
	}
	return w
}

// TerminalDef is a definition of a terminal. Terminals are identified by their names.
type TerminalDef struct {
	Name     string
	Pattern  *Pattern
	Priority int
}

func NewTerminalDef(name string, pattern *Pattern, priority int) *TerminalDef {
	return &TerminalDef{
		Name:     name,
		Pattern:  pattern,
		Priority: priority,
	}
}

// UserRepr returns a representation of the terminal for error messages. Generated terminals, whose names
// start with `__`, are shown by their patterns.
func (t *TerminalDef) UserRepr() string {
	if strings.HasPrefix(t.Name, "__") {
		return t.Pattern.String()
	}
	return t.Name
}

func (t *TerminalDef) String() string {
	return fmt.Sprintf("%v: %v", t.Name, t.Pattern)
}

func stripZeroWidth(re string) string {
	var b strings.Builder
	for i := 0; i < len(re); i++ {
		switch c := re[i]; {
		case c == '\\' && i+1 < len(re):
			if re[i+1] != 'G' && re[i+1] != 'Z' {
				b.WriteString(re[i : i+2])
			}
			i++
		case c == '[':
			end := classEnd(re, i)
			b.WriteString(re[i:end])
			i = end - 1
		case c == '(' && isLookaround(re[i:]):
			i = groupEnd(re, i) - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isLookaround(re string) bool {
	for _, prefix := range []string{"(?=", "(?!", "(?<=", "(?<!"} {
		if strings.HasPrefix(re, prefix) {
			return true
		}
	}
	return false
}

// classEnd returns the offset just after the character class opening at `start`.
func classEnd(re string, start int) int {
	i := start + 1
	if i < len(re) && re[i] == '^' {
		i++
	}
	if i < len(re) && re[i] == ']' {
		i++
	}
	for i < len(re) {
		switch re[i] {
		case '\\':
			i += 2
			continue
		case ']':
			return i + 1
		}
		i++
	}
	return len(re)
}

// groupEnd returns the offset just after the group opening at `start`.
func groupEnd(re string, start int) int {
	depth := 0
	for i := start; i < len(re); i++ {
		switch re[i] {
		case '\\':
			i++
		case '[':
			i = classEnd(re, i) - 1
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(re)
}

package lexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/nihei9/larkrt/spec/grammar"
)

// Scanner matches terminals at a position. Terminals are tried in the order they are given, and the
// first one matching wins.
type Scanner struct {
	re           *regexp2.Regexp
	names        []string
	groups       []string
	allowedTypes map[string]struct{}
}

// NewScanner builds a scanner from `terms`. `flags` holds inline flags applied to every terminal.
// When `matchWhole` is true, a terminal matches only if it covers the whole text after the position.
func NewScanner(terms []*grammar.TerminalDef, flags string, matchWhole bool) (*Scanner, error) {
	re, err := compileAnchored(terms, flags, matchWhole)
	if err != nil {
		return nil, err
	}

	s := &Scanner{
		re:           re,
		names:        make([]string, len(terms)),
		groups:       make([]string, len(terms)),
		allowedTypes: make(map[string]struct{}, len(terms)),
	}
	for i, t := range terms {
		s.names[i] = t.Name
		s.groups[i] = fmt.Sprintf("t%v", i)
		s.allowedTypes[t.Name] = struct{}{}
	}
	return s, nil
}

// compileAnchored joins `terms` into one alternation anchored at the position a match starts from.
// `\G` keeps the text before the position visible to look-behinds and word boundaries.
func compileAnchored(terms []*grammar.TerminalDef, flags string, matchWhole bool) (*regexp2.Regexp, error) {
	var b strings.Builder
	if flags != "" {
		fmt.Fprintf(&b, "(?%v)", flags)
	}
	b.WriteString(`\G(?:`)
	for i, t := range terms {
		if i > 0 {
			b.WriteString("|")
		}
		fmt.Fprintf(&b, "(?<t%v>%v)", i, t.Pattern.ToRegexp())
	}
	b.WriteString(")")
	if matchWhole {
		b.WriteString(`\z`)
	}
	return regexp2.Compile(b.String(), regexp2.None)
}

// Match returns the text and the type of the terminal matching at the byte offset `pos`.
func (s *Scanner) Match(text string, pos int) (string, string, bool) {
	return s.match(text, []rune(text), pos, utf8.RuneCountInString(text[:pos]))
}

// match is Match for callers already holding the runes of `text`. `runePos` is `pos` counted in runes.
func (s *Scanner) match(text string, runes []rune, pos, runePos int) (string, string, bool) {
	if len(s.names) == 0 {
		return "", "", false
	}
	m, err := s.re.FindRunesMatchStartingAt(runes, runePos)
	if err != nil || m == nil {
		return "", "", false
	}
	for i, name := range s.groups {
		g := m.GroupByName(name)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		return text[pos : pos+byteLen(text[pos:], g.Length)], s.names[i], true
	}
	return "", "", false
}

// byteLen returns the byte length of the first `n` runes of `text`. An invalid byte counts as one
// rune the way a conversion to []rune counts it.
func byteLen(text string, n int) int {
	l := 0
	for i := 0; i < n && l < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[l:])
		l += size
	}
	return l
}

// AllowedTypes returns the names of the terminals the scanner can match.
func (s *Scanner) AllowedTypes() map[string]struct{} {
	return s.allowedTypes
}

// createUnless finds string terminals a regexp terminal of the same priority also matches, and returns a
// callback per regexp terminal retyping such a match as the string terminal. String terminals whose flags
// are a subset of the regexp terminal's ones are removed from the returned terminals.
func createUnless(terms []*grammar.TerminalDef, flags string) ([]*grammar.TerminalDef, map[string]Callback, error) {
	var reTerms, strTerms []*grammar.TerminalDef
	for _, t := range terms {
		if t.Pattern.Kind == grammar.PatternKindStr {
			strTerms = append(strTerms, t)
		} else {
			reTerms = append(reTerms, t)
		}
	}

	embedded := map[*grammar.TerminalDef]struct{}{}
	callbacks := map[string]Callback{}
	for _, reTerm := range reTerms {
		re, err := compileAnchored([]*grammar.TerminalDef{reTerm}, flags, false)
		if err != nil {
			return nil, nil, err
		}
		var unless []*grammar.TerminalDef
		for _, strTerm := range strTerms {
			if strTerm.Priority != reTerm.Priority {
				continue
			}
			s := strTerm.Pattern.Value
			if m, err := re.FindStringMatch(s); err != nil || m == nil || m.String() != s {
				continue
			}
			unless = append(unless, strTerm)
			if flagsSubset(strTerm.Pattern.Flags, reTerm.Pattern.Flags) {
				embedded[strTerm] = struct{}{}
			}
		}
		if len(unless) == 0 {
			continue
		}
		sc, err := NewScanner(unless, flags, true)
		if err != nil {
			return nil, nil, err
		}
		callbacks[reTerm.Name] = unlessCallback(sc)
	}

	kept := make([]*grammar.TerminalDef, 0, len(terms))
	for _, t := range terms {
		if _, ok := embedded[t]; ok {
			continue
		}
		kept = append(kept, t)
	}
	return kept, callbacks, nil
}

func unlessCallback(sc *Scanner) Callback {
	return func(tok *grammar.Token) (*grammar.Token, error) {
		if _, typ, ok := sc.Match(tok.Value, 0); ok {
			tok.Type = typ
		}
		return tok, nil
	}
}

func flagsSubset(sub, super []string) bool {
	for _, f := range sub {
		found := false
		for _, g := range super {
			if f == g {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// callChain runs `second` after `first` only while the token keeps the type `typ`.
func callChain(first, second Callback, typ string) Callback {
	return func(tok *grammar.Token) (*grammar.Token, error) {
		t, err := first(tok)
		if err != nil || t == nil || t.Type != typ {
			return t, err
		}
		return second(t)
	}
}

func hasNewline(re string) bool {
	return strings.Contains(re, "\n") ||
		strings.Contains(re, `\n`) ||
		strings.Contains(re, `\s`) ||
		strings.Contains(re, "[^") ||
		(strings.Contains(re, "(?s") && strings.Contains(re, "."))
}

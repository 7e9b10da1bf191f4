package grammar

import (
	"fmt"
	"strings"
)

// Symbol is a terminal or non-terminal symbol. Symbols are equal when their kinds and names are equal.
type Symbol struct {
	Name   string
	IsTerm bool

	// FilterOut is meaningful only for terminals. A filtered out terminal, such as a punctuation, doesn't
	// appear in a syntax tree unless its rule keeps all tokens.
	FilterOut bool
}

func NewTerminal(name string, filterOut bool) *Symbol {
	return &Symbol{
		Name:      name,
		IsTerm:    true,
		FilterOut: filterOut,
	}
}

func NewNonTerminal(name string) *Symbol {
	return &Symbol{
		Name: name,
	}
}

func (s *Symbol) Equal(o *Symbol) bool {
	return s.IsTerm == o.IsTerm && s.Name == o.Name
}

func (s *Symbol) String() string {
	return s.Name
}

type RuleOptions struct {
	KeepAllTokens  bool
	Expand1        bool
	Priority       *int
	TemplateSource string
	EmptyIndices   []bool
}

// Rule is a production rule. Identity of a rule is derived from its origin and expansion only, see Key.
type Rule struct {
	Origin    *Symbol
	Expansion []*Symbol
	Order     int
	Alias     string
	Options   *RuleOptions
}

// Key returns a string identifying the rule. Rules with the same origin and expansion have the same key.
func (r *Rule) Key() string {
	var b strings.Builder
	b.WriteString(r.Origin.Name)
	for _, sym := range r.Expansion {
		if sym.IsTerm {
			b.WriteString("\x00t")
		} else {
			b.WriteString("\x00n")
		}
		b.WriteString(sym.Name)
	}
	return b.String()
}

func (r *Rule) Equal(o *Rule) bool {
	if !r.Origin.Equal(o.Origin) || len(r.Expansion) != len(o.Expansion) {
		return false
	}
	for i, sym := range r.Expansion {
		if !sym.Equal(o.Expansion[i]) {
			return false
		}
	}
	return true
}

func (r *Rule) String() string {
	names := make([]string, len(r.Expansion))
	for i, sym := range r.Expansion {
		names[i] = sym.Name
	}
	return fmt.Sprintf("<%v : %v>", r.Origin.Name, strings.Join(names, " "))
}

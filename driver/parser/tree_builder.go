package parser

import (
	"strings"

	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/spec/grammar"
	"github.com/nihei9/larkrt/tree"
)

// RuleCallback builds the value of a reduced rule from the values popped off the value stack.
type RuleCallback func(children []any) (any, error)

// TokenCallback converts a shifted token into the value pushed onto the value stack.
type TokenCallback func(tok *grammar.Token) (any, error)

// Callbacks is a set of actions a parser calls on reductions and shifts. Rules is keyed by Rule.Key and
// Tokens by terminal names.
type Callbacks struct {
	Rules  map[string]RuleCallback
	Tokens map[string]TokenCallback
}

// MetaProvider is implemented by values other than trees and tokens that carry a position. Such values
// are looked at while propagating positions.
type MetaProvider interface {
	LarkMeta() *tree.Meta
}

type wrapper func(next RuleCallback) RuleCallback

type ruleBuilder struct {
	rule     *grammar.Rule
	wrappers []wrapper
}

type TreeBuilderOption func(b *TreeBuilder)

// PropagatePositions makes a builder copy positions from the children to the trees it builds.
func PropagatePositions() TreeBuilderOption {
	return func(b *TreeBuilder) {
		b.propagatePositions = true
	}
}

// NodeFilter limits the children positions are propagated from. It implies PropagatePositions.
func NodeFilter(filter func(child any) bool) TreeBuilderOption {
	return func(b *TreeBuilder) {
		b.propagatePositions = true
		b.nodeFilter = filter
	}
}

// MaybePlaceholders makes a builder fill absent optional symbols with nil according to the empty
// indices of rules.
func MaybePlaceholders() TreeBuilderOption {
	return func(b *TreeBuilder) {
		b.maybePlaceholders = true
	}
}

// KeepAllTokens keeps filtered-out tokens in every rule.
func KeepAllTokens() TreeBuilderOption {
	return func(b *TreeBuilder) {
		b.keepAllTokens = true
	}
}

// TreeBuilder decides once per rule how a reduction shapes its children into a tree.
type TreeBuilder struct {
	propagatePositions bool
	nodeFilter         func(child any) bool
	maybePlaceholders  bool
	keepAllTokens      bool

	builders []*ruleBuilder
}

func NewTreeBuilder(rules []*grammar.Rule, opts ...TreeBuilderOption) (*TreeBuilder, error) {
	b := &TreeBuilder{}
	for _, opt := range opts {
		opt(b)
	}

	for _, rule := range rules {
		opts := rule.Options
		if opts == nil {
			opts = &grammar.RuleOptions{}
		}

		var ws []wrapper
		if opts.Expand1 && rule.Alias == "" {
			ws = append(ws, expandSingleChild)
		}
		var emptyIndices []bool
		if b.maybePlaceholders {
			emptyIndices = opts.EmptyIndices
		}
		cf, err := newChildFilter(rule, b.keepAllTokens || opts.KeepAllTokens, emptyIndices)
		if err != nil {
			return nil, err
		}
		if cf != nil {
			ws = append(ws, cf)
		}
		if b.propagatePositions {
			ws = append(ws, propagatePositions(b.nodeFilter))
		}
		b.builders = append(b.builders, &ruleBuilder{
			rule:     rule,
			wrappers: ws,
		})
	}
	return b, nil
}

// callbackName returns the name a tree built by `rule` is labeled with, which is also the name of its
// transformer handler.
func callbackName(rule *grammar.Rule) string {
	if rule.Alias != "" {
		return rule.Alias
	}
	if rule.Options != nil && rule.Options.TemplateSource != "" {
		return rule.Options.TemplateSource
	}
	return rule.Origin.Name
}

// CreateCallbacks returns the callbacks building a tree. When `tr` is not nil, its handlers run in place
// of building the trees they handle, and its token handlers run on shifts. Errors of the handlers are
// returned as they are.
func (b *TreeBuilder) CreateCallbacks(tr *tree.Transformer) (*Callbacks, error) {
	cbs := &Callbacks{
		Rules:  make(map[string]RuleCallback, len(b.builders)),
		Tokens: map[string]TokenCallback{},
	}
	for _, rb := range b.builders {
		name := callbackName(rb.rule)
		f := userCallback(tr, name)
		for _, w := range rb.wrappers {
			f = w(f)
		}
		key := rb.rule.Key()
		if _, ok := cbs.Rules[key]; ok {
			return nil, verr.NewGrammarError("Rule '%v' already exists", rb.rule)
		}
		cbs.Rules[key] = f
	}
	if tr != nil && !tr.SkipTokens {
		for typ, h := range tr.Tokens {
			cbs.Tokens[typ] = TokenCallback(h)
		}
	}
	return cbs, nil
}

func userCallback(tr *tree.Transformer, name string) RuleCallback {
	if tr != nil {
		if h, ok := tr.Rules[name]; ok {
			return func(children []any) (any, error) {
				return h(children, tree.NewMeta())
			}
		}
	}
	return func(children []any) (any, error) {
		return tree.New(name, children, nil), nil
	}
}

func expandSingleChild(next RuleCallback) RuleCallback {
	return func(children []any) (any, error) {
		if len(children) == 1 {
			return children[0], nil
		}
		return next(children)
	}
}

type includedChild struct {
	index  int
	expand bool
	nones  int
}

// newChildFilter returns a wrapper dropping filtered-out tokens and splicing the children of nonterminals
// whose names start with `_`. When `emptyIndices` is given, nils are inserted where optional symbols are
// absent. It returns nil when the children of `rule` need no change.
func newChildFilter(rule *grammar.Rule, keepAllTokens bool, emptyIndices []bool) (wrapper, error) {
	var nonesAt []int
	if len(emptyIndices) > 0 {
		var b strings.Builder
		for _, empty := range emptyIndices {
			if empty {
				b.WriteString("1")
			} else {
				b.WriteString("0")
			}
		}
		for _, ones := range strings.Split(b.String(), "0") {
			nonesAt = append(nonesAt, len(ones))
		}
		if len(nonesAt) != len(rule.Expansion)+1 {
			return nil, verr.NewGrammarError("empty indices of %v don't match its expansion", rule)
		}
	} else {
		nonesAt = make([]int, len(rule.Expansion)+1)
	}

	var included []includedChild
	expands := false
	nones := 0
	for i, sym := range rule.Expansion {
		nones += nonesAt[i]
		if !keepAllTokens && sym.IsTerm && sym.FilterOut {
			continue
		}
		expand := !sym.IsTerm && strings.HasPrefix(sym.Name, "_")
		if expand {
			expands = true
		}
		included = append(included, includedChild{
			index:  i,
			expand: expand,
			nones:  nones,
		})
		nones = 0
	}
	trailing := nones + nonesAt[len(rule.Expansion)]

	if len(emptyIndices) == 0 && len(included) == len(rule.Expansion) && !expands {
		return nil, nil
	}
	return func(next RuleCallback) RuleCallback {
		return func(children []any) (any, error) {
			var filtered []any
			for _, inc := range included {
				for n := 0; n < inc.nones; n++ {
					filtered = append(filtered, nil)
				}
				c := children[inc.index]
				if inc.expand {
					if sub, ok := c.(*tree.Tree); ok {
						if len(filtered) == 0 {
							// Reuse the children of the spliced tree, which is dropped. The capacity is
							// capped so that appending never writes into its backing array.
							filtered = sub.Children[:len(sub.Children):len(sub.Children)]
						} else {
							filtered = append(filtered, sub.Children...)
						}
						continue
					}
				}
				filtered = append(filtered, c)
			}
			for n := 0; n < trailing; n++ {
				filtered = append(filtered, nil)
			}
			return next(filtered)
		}
	}, nil
}

type span struct {
	line      int
	column    int
	startPos  int
	endLine   int
	endColumn int
	endPos    int
}

func spanOfMeta(m *tree.Meta) span {
	s := span{
		line:      m.Line,
		column:    m.Column,
		startPos:  m.StartPos,
		endLine:   m.EndLine,
		endColumn: m.EndColumn,
		endPos:    m.EndPos,
	}
	if m.ContainerLine != 0 {
		s.line = m.ContainerLine
		s.column = m.ContainerColumn
		s.startPos = m.ContainerStartPos
	}
	if m.ContainerEndLine != 0 {
		s.endLine = m.ContainerEndLine
		s.endColumn = m.ContainerEndColumn
		s.endPos = m.ContainerEndPos
	}
	return s
}

func spanOf(c any, filter func(any) bool) (span, bool) {
	if filter != nil && !filter(c) {
		return span{}, false
	}
	switch x := c.(type) {
	case *tree.Tree:
		if !x.HasMeta() {
			return span{}, false
		}
		return spanOfMeta(x.Meta()), true
	case *grammar.Token:
		return span{
			line:      x.Line,
			column:    x.Column,
			startPos:  x.StartPos,
			endLine:   x.EndLine,
			endColumn: x.EndColumn,
			endPos:    x.EndPos,
		}, true
	case MetaProvider:
		m := x.LarkMeta()
		if m == nil || m.Empty {
			return span{}, false
		}
		return spanOfMeta(m), true
	}
	return span{}, false
}

// propagatePositions sets the position of a built tree from its first and last positioned children.
// A tree that already has a position, such as an inlined child, only gets its container fields updated.
func propagatePositions(filter func(any) bool) wrapper {
	return func(next RuleCallback) RuleCallback {
		return func(children []any) (any, error) {
			res, err := next(children)
			if err != nil {
				return nil, err
			}
			t, ok := res.(*tree.Tree)
			if !ok {
				return res, nil
			}
			meta := t.Meta()
			fresh := meta.Empty

			for _, c := range children {
				first, ok := spanOf(c, filter)
				if !ok {
					continue
				}
				if fresh {
					meta.Line = first.line
					meta.Column = first.column
					meta.StartPos = first.startPos
					meta.Empty = false
				}
				meta.ContainerLine = first.line
				meta.ContainerColumn = first.column
				meta.ContainerStartPos = first.startPos
				break
			}
			for i := len(children) - 1; i >= 0; i-- {
				last, ok := spanOf(children[i], filter)
				if !ok {
					continue
				}
				if fresh {
					meta.EndLine = last.endLine
					meta.EndColumn = last.endColumn
					meta.EndPos = last.endPos
					meta.Empty = false
				}
				meta.ContainerEndLine = last.endLine
				meta.ContainerEndColumn = last.endColumn
				meta.ContainerEndPos = last.endPos
				break
			}
			return t, nil
		}
	}
}

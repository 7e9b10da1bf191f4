package tree

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/nihei9/larkrt/spec/grammar"
)

// Meta holds the position of a subtree. When Empty is true, no position has been set.
// Container fields cover the whole subtree including tokens filtered out of its children.
type Meta struct {
	Empty bool

	Line      int
	Column    int
	StartPos  int
	EndLine   int
	EndColumn int
	EndPos    int

	ContainerLine      int
	ContainerColumn    int
	ContainerStartPos  int
	ContainerEndLine   int
	ContainerEndColumn int
	ContainerEndPos    int
}

func NewMeta() *Meta {
	return &Meta{
		Empty: true,
	}
}

// Tree is a node of a parse tree. A child is a *Tree, a *grammar.Token, nil standing for a missing
// optional symbol, or a value a transformer returned.
type Tree struct {
	Data     string
	Children []any

	meta *Meta
}

func New(data string, children []any, meta *Meta) *Tree {
	return &Tree{
		Data:     data,
		Children: children,
		meta:     meta,
	}
}

// Meta returns the position of the tree, creating an empty one when the tree has none.
func (t *Tree) Meta() *Meta {
	if t.meta == nil {
		t.meta = NewMeta()
	}
	return t.meta
}

// HasMeta reports whether the tree carries a position.
func (t *Tree) HasMeta() bool {
	return t.meta != nil && !t.meta.Empty
}

// Set replaces the data and the children of the tree.
func (t *Tree) Set(data string, children []any) {
	t.Data = data
	t.Children = children
}

// Copy returns a shallow copy sharing the children and the meta.
func (t *Tree) Copy() *Tree {
	children := make([]any, len(t.Children))
	copy(children, t.Children)
	return New(t.Data, children, t.meta)
}

// DeepCopy copies subtrees recursively. Tokens and other values are shared.
func (t *Tree) DeepCopy() *Tree {
	children := make([]any, len(t.Children))
	for i, c := range t.Children {
		if sub, ok := c.(*Tree); ok {
			children[i] = sub.DeepCopy()
		} else {
			children[i] = c
		}
	}
	var meta *Meta
	if t.meta != nil {
		m := *t.meta
		meta = &m
	}
	return New(t.Data, children, meta)
}

// Equal reports whether two trees have the same data and equal children. Positions are ignored.
func (t *Tree) Equal(o *Tree) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Data != o.Data || len(t.Children) != len(o.Children) {
		return false
	}
	for i := range t.Children {
		if !childEqual(t.Children[i], o.Children[i]) {
			return false
		}
	}
	return true
}

func childEqual(a, b any) bool {
	switch x := a.(type) {
	case *Tree:
		y, ok := b.(*Tree)
		return ok && x.Equal(y)
	case *grammar.Token:
		y, ok := b.(*grammar.Token)
		return ok && x.Equal(y)
	}
	return reflect.DeepEqual(a, b)
}

// IterSubtrees returns all subtrees bottom-up: every tree appears after its descendants. A subtree
// shared between parents is returned once.
func (t *Tree) IterSubtrees() []*Tree {
	seen := map[*Tree]struct{}{t: {}}
	queue := []*Tree{t}
	for i := 0; i < len(queue); i++ {
		sub := queue[i]
		for j := len(sub.Children) - 1; j >= 0; j-- {
			c, ok := sub.Children[j].(*Tree)
			if !ok {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			queue = append(queue, c)
		}
	}
	for i, j := 0, len(queue)-1; i < j; i, j = i+1, j-1 {
		queue[i], queue[j] = queue[j], queue[i]
	}
	return queue
}

// IterSubtreesTopDown returns all subtrees in pre-order.
func (t *Tree) IterSubtreesTopDown() []*Tree {
	var subtrees []*Tree
	stack := []any{t}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sub, ok := n.(*Tree)
		if !ok {
			continue
		}
		subtrees = append(subtrees, sub)
		for i := len(sub.Children) - 1; i >= 0; i-- {
			stack = append(stack, sub.Children[i])
		}
	}
	return subtrees
}

// FindPred returns the subtrees satisfying `pred` in the order of IterSubtrees.
func (t *Tree) FindPred(pred func(*Tree) bool) []*Tree {
	var found []*Tree
	for _, sub := range t.IterSubtrees() {
		if pred(sub) {
			found = append(found, sub)
		}
	}
	return found
}

func (t *Tree) FindData(data string) []*Tree {
	return t.FindPred(func(sub *Tree) bool {
		return sub.Data == data
	})
}

// ScanValues returns the non-tree values under the tree satisfying `pred`, left to right.
func (t *Tree) ScanValues(pred func(any) bool) []any {
	var values []any
	for _, c := range t.Children {
		if sub, ok := c.(*Tree); ok {
			values = append(values, sub.ScanValues(pred)...)
			continue
		}
		if pred(c) {
			values = append(values, c)
		}
	}
	return values
}

// Tokens returns the tokens under the tree, left to right.
func (t *Tree) Tokens() []*grammar.Token {
	var toks []*grammar.Token
	for _, v := range t.ScanValues(func(v any) bool {
		_, ok := v.(*grammar.Token)
		return ok
	}) {
		toks = append(toks, v.(*grammar.Token))
	}
	return toks
}

// ExpandKidsByData replaces the children whose data is among `data` with their own children.
func (t *Tree) ExpandKidsByData(data ...string) bool {
	changed := false
	for i := len(t.Children) - 1; i >= 0; i-- {
		c, ok := t.Children[i].(*Tree)
		if !ok || !contains(data, c.Data) {
			continue
		}
		expanded := make([]any, 0, len(t.Children)-1+len(c.Children))
		expanded = append(expanded, t.Children[:i]...)
		expanded = append(expanded, c.Children...)
		expanded = append(expanded, t.Children[i+1:]...)
		t.Children = expanded
		changed = true
	}
	return changed
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Pretty returns an indented representation of the tree. A tree with a single non-tree child is
// written on one line.
func (t *Tree) Pretty(indent string) string {
	var b strings.Builder
	t.pretty(&b, 0, indent)
	return b.String()
}

func (t *Tree) pretty(b *strings.Builder, level int, indent string) {
	b.WriteString(strings.Repeat(indent, level))
	b.WriteString(t.Data)
	if len(t.Children) == 1 {
		if _, ok := t.Children[0].(*Tree); !ok {
			fmt.Fprintf(b, "\t%v\n", valueString(t.Children[0]))
			return
		}
	}
	b.WriteString("\n")
	for _, c := range t.Children {
		if sub, ok := c.(*Tree); ok {
			sub.pretty(b, level+1, indent)
			continue
		}
		fmt.Fprintf(b, "%v%v\n", strings.Repeat(indent, level+1), valueString(c))
	}
}

func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case *grammar.Token:
		return x.Value
	}
	return fmt.Sprint(v)
}

func (t *Tree) String() string {
	var b strings.Builder
	writeRepr(&b, t)
	return b.String()
}

func writeRepr(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case *Tree:
		fmt.Fprintf(b, "Tree(%v, [", pyQuote(x.Data))
		for i, c := range x.Children {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, c)
		}
		b.WriteString("])")
	case *grammar.Token:
		b.WriteString(x.String())
	case string:
		b.WriteString(pyQuote(x))
	default:
		fmt.Fprint(b, v)
	}
}

func pyQuote(s string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", `\'`) + "'"
}

type tokenJSON struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	children := make([]any, len(t.Children))
	for i, c := range t.Children {
		if tok, ok := c.(*grammar.Token); ok {
			children[i] = &tokenJSON{
				Type:   tok.Type,
				Value:  tok.Value,
				Line:   tok.Line,
				Column: tok.Column,
			}
		} else {
			children[i] = c
		}
	}
	return json.Marshal(struct {
		Data     string `json:"data"`
		Children []any  `json:"children"`
	}{
		Data:     t.Data,
		Children: children,
	})
}

// PrintTree prints a tree whose root is `node` with ruled lines.
func PrintTree(w io.Writer, node *Tree) {
	if node == nil {
		return
	}
	printTree(w, node, "", "")
}

func printTree(w io.Writer, node any, ruledLine string, childRuledLinePrefix string) {
	switch n := node.(type) {
	case *Tree:
		fmt.Fprintf(w, "%v%v\n", ruledLine, n.Data)

		num := len(n.Children)
		for i, child := range n.Children {
			var line string
			if num > 1 && i < num-1 {
				line = "├─ "
			} else {
				line = "└─ "
			}

			var prefix string
			if i >= num-1 {
				prefix = "   "
			} else {
				prefix = "│  "
			}

			printTree(w, child, childRuledLinePrefix+line, childRuledLinePrefix+prefix)
		}
	case *grammar.Token:
		fmt.Fprintf(w, "%v%v %v\n", ruledLine, n.Type, strconv.Quote(n.Value))
	case nil:
		fmt.Fprintf(w, "%v<none>\n", ruledLine)
	default:
		fmt.Fprintf(w, "%v%v\n", ruledLine, n)
	}
}

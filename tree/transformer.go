package tree

import (
	"errors"
	"fmt"

	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/spec/grammar"
)

type discard struct{}

func (discard) String() string {
	return "Discard"
}

// Discard is returned by a handler to remove the node from the children of its parent.
var Discard any = &discard{}

// RuleFunc transforms a tree whose children have already been transformed.
type RuleFunc func(children []any, meta *Meta) (any, error)

// TokenFunc transforms a token.
type TokenFunc func(tok *grammar.Token) (any, error)

// Inline adapts a function taking the children as separate arguments into a RuleFunc.
func Inline(f func(args ...any) (any, error)) RuleFunc {
	return func(children []any, meta *Meta) (any, error) {
		return f(children...)
	}
}

// Transformer rebuilds a tree bottom-up. For a tree, the handler in Rules keyed by its data is called;
// when there is no such handler, Default is called, and when Default is nil, an equal tree is rebuilt
// from the transformed children. Tokens are handled the same way by Tokens and DefaultToken unless
// SkipTokens is set.
//
// An error a handler returns is wrapped in a VisitError, except for a GrammarError.
type Transformer struct {
	Rules        map[string]RuleFunc
	Tokens       map[string]TokenFunc
	Default      func(data string, children []any, meta *Meta) (any, error)
	DefaultToken TokenFunc
	SkipTokens   bool
}

func wrapVisitError(rule string, obj any, err error) error {
	var grammarErr *verr.GrammarError
	if errors.As(err, &grammarErr) {
		return err
	}
	return &verr.VisitError{
		Rule: rule,
		Obj:  obj,
		Err:  err,
	}
}

func (tr *Transformer) callRule(t *Tree, children []any) (any, error) {
	meta := t.meta
	if meta == nil {
		meta = NewMeta()
	}
	if f, ok := tr.Rules[t.Data]; ok {
		res, err := f(children, meta)
		if err != nil {
			return nil, wrapVisitError(t.Data, t, err)
		}
		return res, nil
	}
	if tr.Default != nil {
		return tr.Default(t.Data, children, meta)
	}
	return New(t.Data, children, t.meta), nil
}

func (tr *Transformer) callToken(tok *grammar.Token) (any, error) {
	if f, ok := tr.Tokens[tok.Type]; ok {
		res, err := f(tok)
		if err != nil {
			return nil, wrapVisitError(tok.Type, tok, err)
		}
		return res, nil
	}
	if tr.DefaultToken != nil {
		return tr.DefaultToken(tok)
	}
	return tok, nil
}

func (tr *Transformer) transformValue(v any, tree func(*Tree) (any, error)) (any, error) {
	switch x := v.(type) {
	case *Tree:
		return tree(x)
	case *grammar.Token:
		if tr.SkipTokens {
			return x, nil
		}
		return tr.callToken(x)
	}
	return v, nil
}

func (tr *Transformer) transformChildren(children []any, tree func(*Tree) (any, error)) ([]any, error) {
	res := make([]any, 0, len(children))
	for _, c := range children {
		v, err := tr.transformValue(c, tree)
		if err != nil {
			return nil, err
		}
		if v == Discard {
			continue
		}
		res = append(res, v)
	}
	return res, nil
}

// Transform returns a transformed copy of a tree. The original tree is left unchanged. It returns nil
// when the root is discarded.
func (tr *Transformer) Transform(t *Tree) (any, error) {
	res, err := tr.transformTree(t)
	if err != nil {
		return nil, err
	}
	if res == Discard {
		return nil, nil
	}
	return res, nil
}

func (tr *Transformer) transformTree(t *Tree) (any, error) {
	children, err := tr.transformChildren(t.Children, tr.transformTree)
	if err != nil {
		return nil, err
	}
	return tr.callRule(t, children)
}

// TransformInPlace transforms a tree iterating its subtrees bottom-up instead of recursing. The
// children of the original subtrees are replaced.
func (tr *Transformer) TransformInPlace(t *Tree) (any, error) {
	callOnly := func(sub *Tree) (any, error) {
		return tr.callRule(sub, sub.Children)
	}
	for _, sub := range t.IterSubtrees() {
		children, err := tr.transformChildren(sub.Children, callOnly)
		if err != nil {
			return nil, err
		}
		sub.Children = children
	}
	res, err := callOnly(t)
	if err != nil {
		return nil, err
	}
	if res == Discard {
		return nil, nil
	}
	return res, nil
}

// TransformInPlaceRecursive transforms a tree recursively replacing the children of the original
// subtrees.
func (tr *Transformer) TransformInPlaceRecursive(t *Tree) (any, error) {
	var transform func(sub *Tree) (any, error)
	transform = func(sub *Tree) (any, error) {
		children, err := tr.transformChildren(sub.Children, transform)
		if err != nil {
			return nil, err
		}
		sub.Children = children
		return tr.callRule(sub, sub.Children)
	}
	res, err := transform(t)
	if err != nil {
		return nil, err
	}
	if res == Discard {
		return nil, nil
	}
	return res, nil
}

// TransformNonRecursive returns the same result as Transform using an explicit stack, so deep trees
// don't exhaust the call stack.
func (tr *Transformer) TransformNonRecursive(t *Tree) (any, error) {
	var revPostfix []any
	q := []any{t}
	for len(q) > 0 {
		n := q[len(q)-1]
		q = q[:len(q)-1]
		revPostfix = append(revPostfix, n)
		if sub, ok := n.(*Tree); ok {
			q = append(q, sub.Children...)
		}
	}

	var stack []any
	for i := len(revPostfix) - 1; i >= 0; i-- {
		switch x := revPostfix[i].(type) {
		case *Tree:
			size := len(x.Children)
			args := make([]any, 0, size)
			for _, v := range stack[len(stack)-size:] {
				if v != Discard {
					args = append(args, v)
				}
			}
			stack = stack[:len(stack)-size]
			res, err := tr.callRule(x, args)
			if err != nil {
				return nil, err
			}
			stack = append(stack, res)
		default:
			res, err := tr.transformValue(x, nil)
			if err != nil {
				return nil, err
			}
			stack = append(stack, res)
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("unbalanced transformation stack: %v values left", len(stack))
	}
	if stack[0] == Discard {
		return nil, nil
	}
	return stack[0], nil
}

// TransformerChain applies transformers one after another. Every transformer but the last must
// return a tree.
type TransformerChain []*Transformer

func (c TransformerChain) Transform(t *Tree) (any, error) {
	var v any = t
	for i, tr := range c {
		sub, ok := v.(*Tree)
		if !ok {
			return nil, fmt.Errorf("transformer #%v needs a tree but got %T", i, v)
		}
		res, err := tr.Transform(sub)
		if err != nil {
			return nil, err
		}
		v = res
	}
	return v, nil
}

package tree

// VisitFunc is called with a subtree.
type VisitFunc func(t *Tree) error

// Visitor calls a handler for each subtree without rebuilding the tree. The handler in Rules keyed by
// the data of a subtree is called, and Default is called when there is no such handler.
type Visitor struct {
	Rules   map[string]VisitFunc
	Default VisitFunc
}

func (v *Visitor) call(t *Tree) error {
	if f, ok := v.Rules[t.Data]; ok {
		return f(t)
	}
	if v.Default != nil {
		return v.Default(t)
	}
	return nil
}

// Visit visits the subtrees bottom-up.
func (v *Visitor) Visit(t *Tree) (*Tree, error) {
	for _, sub := range t.IterSubtrees() {
		err := v.call(sub)
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// VisitTopDown visits the subtrees top-down.
func (v *Visitor) VisitTopDown(t *Tree) (*Tree, error) {
	for _, sub := range t.IterSubtreesTopDown() {
		err := v.call(sub)
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// VisitRecursive visits the subtrees bottom-up by recursion. Unlike Visit, a subtree shared between
// parents is visited once per parent.
func (v *Visitor) VisitRecursive(t *Tree) (*Tree, error) {
	for _, c := range t.Children {
		sub, ok := c.(*Tree)
		if !ok {
			continue
		}
		_, err := v.VisitRecursive(sub)
		if err != nil {
			return nil, err
		}
	}
	err := v.call(t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (v *Visitor) VisitTopDownRecursive(t *Tree) (*Tree, error) {
	err := v.call(t)
	if err != nil {
		return nil, err
	}
	for _, c := range t.Children {
		sub, ok := c.(*Tree)
		if !ok {
			continue
		}
		_, err := v.VisitTopDownRecursive(sub)
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// InterpretFunc handles a subtree. It decides itself whether and how to visit the children.
type InterpretFunc func(in *Interpreter, t *Tree) (any, error)

// Interpreter walks a tree top-down calling the handler in Rules keyed by the data of a subtree. When
// there is no such handler, Default is called, and when Default is nil, the children are visited and
// their results returned as a []any.
type Interpreter struct {
	Rules   map[string]InterpretFunc
	Default InterpretFunc
}

func (in *Interpreter) Visit(t *Tree) (any, error) {
	if f, ok := in.Rules[t.Data]; ok {
		return f(in, t)
	}
	if in.Default != nil {
		return in.Default(in, t)
	}
	return in.VisitChildren(t)
}

// VisitChildren visits the child trees of `t`. Other children are returned as they are.
func (in *Interpreter) VisitChildren(t *Tree) ([]any, error) {
	res := make([]any, len(t.Children))
	for i, c := range t.Children {
		sub, ok := c.(*Tree)
		if !ok {
			res[i] = c
			continue
		}
		v, err := in.Visit(sub)
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

package grammar

import (
	"fmt"
	"sort"
)

type ActionKind int

const (
	ActionShift  = ActionKind(0)
	ActionReduce = ActionKind(1)
)

func (k ActionKind) String() string {
	if k == ActionReduce {
		return "Reduce"
	}
	return "Shift"
}

// Action is an entry of a parse table. A shift action holds its target state, and a reduce action holds
// the rule to reduce by.
type Action struct {
	Kind  ActionKind
	State int
	Rule  *Rule
}

func (a *Action) String() string {
	if a.Kind == ActionReduce {
		return fmt.Sprintf("Reduce %v", a.Rule)
	}
	return fmt.Sprintf("Shift %v", a.State)
}

// ParseTable is an integer-indexed LALR parse table. States maps a state and a symbol name to an action.
// Symbol keys include non-terminals whose actions are the goto transitions.
type ParseTable struct {
	States      map[int]map[string]*Action
	StartStates map[string]int
	EndStates   map[string]int
}

// StateIDs returns the state IDs in ascending order.
func (t *ParseTable) StateIDs() []int {
	ids := make([]int, 0, len(t.States))
	for id := range t.States {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Symbols returns all symbol names the table refers to, in ascending order.
func (t *ParseTable) Symbols() []string {
	seen := map[string]struct{}{}
	for _, acts := range t.States {
		for sym := range acts {
			seen[sym] = struct{}{}
		}
	}
	syms := make([]string, 0, len(seen))
	for sym := range seen {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

type NamedAction struct {
	Kind  ActionKind
	State string
	Rule  *Rule
}

// NamedParseTable is a parse table whose states are identified by names.
type NamedParseTable struct {
	States      map[string]map[string]*NamedAction
	StartStates map[string]string
	EndStates   map[string]string
}

// ToParseTable converts the table into an integer-indexed one. States are numbered in ascending order of
// their names.
func (t *NamedParseTable) ToParseTable() (*ParseTable, error) {
	names := make([]string, 0, len(t.States))
	for name := range t.States {
		names = append(names, name)
	}
	sort.Strings(names)
	stateToIdx := make(map[string]int, len(names))
	for i, name := range names {
		stateToIdx[name] = i
	}
	lookup := func(name string) (int, error) {
		idx, ok := stateToIdx[name]
		if !ok {
			return 0, fmt.Errorf("undefined state: %v", name)
		}
		return idx, nil
	}

	states := make(map[int]map[string]*Action, len(t.States))
	for name, acts := range t.States {
		intActs := make(map[string]*Action, len(acts))
		for sym, act := range acts {
			if act.Kind == ActionReduce {
				intActs[sym] = &Action{
					Kind: ActionReduce,
					Rule: act.Rule,
				}
				continue
			}
			target, err := lookup(act.State)
			if err != nil {
				return nil, err
			}
			intActs[sym] = &Action{
				Kind:  ActionShift,
				State: target,
			}
		}
		states[stateToIdx[name]] = intActs
	}
	starts := make(map[string]int, len(t.StartStates))
	for start, name := range t.StartStates {
		idx, err := lookup(name)
		if err != nil {
			return nil, err
		}
		starts[start] = idx
	}
	ends := make(map[string]int, len(t.EndStates))
	for start, name := range t.EndStates {
		idx, err := lookup(name)
		if err != nil {
			return nil, err
		}
		ends[start] = idx
	}
	return &ParseTable{
		States:      states,
		StartStates: starts,
		EndStates:   ends,
	}, nil
}

package grammar

import (
	"sort"
	"strings"
)

type Terminal struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Pattern  string `json:"pattern"`
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
	MinWidth int    `json:"min_width"`
	MaxWidth int    `json:"max_width"`
	Ignored  bool   `json:"ignored"`
}

type Production struct {
	Number int      `json:"number"`
	LHS    string   `json:"lhs"`
	RHS    []string `json:"rhs"`
	Alias  string   `json:"alias,omitempty"`
	Expand bool     `json:"expand1"`
}

type Transition struct {
	Symbol string `json:"symbol"`
	State  int    `json:"state"`
}

type Reduce struct {
	LookAhead  []string `json:"look_ahead"`
	Production int      `json:"production"`
}

type State struct {
	Number int           `json:"number"`
	Shift  []*Transition `json:"shift"`
	Reduce []*Reduce     `json:"reduce"`
	GoTo   []*Transition `json:"goto"`
}

// Report is a human-oriented description of a compiled grammar.
type Report struct {
	Terminals   []*Terminal    `json:"terminals"`
	Productions []*Production  `json:"productions"`
	States      []*State       `json:"states"`
	StartStates map[string]int `json:"start_states"`
	EndStates   map[string]int `json:"end_states"`
}

func Describe(g *CompiledGrammar) *Report {
	ignored := map[string]bool{}
	for _, name := range g.Lexer.Ignore {
		ignored[name] = true
	}
	r := &Report{
		StartStates: g.Table.StartStates,
		EndStates:   g.Table.EndStates,
	}
	for i, t := range g.Lexer.Terminals {
		r.Terminals = append(r.Terminals, &Terminal{
			Number:   i,
			Name:     t.Name,
			Pattern:  t.Pattern.String(),
			Kind:     string(t.Pattern.Kind),
			Priority: t.Priority,
			MinWidth: t.Pattern.MinWidth(),
			MaxWidth: t.Pattern.MaxWidth(),
			Ignored:  ignored[t.Name],
		})
	}
	prodNum := map[string]int{}
	for i, rule := range g.Rules {
		rhs := make([]string, len(rule.Expansion))
		for j, sym := range rule.Expansion {
			rhs[j] = sym.Name
		}
		prodNum[rule.Key()] = i
		r.Productions = append(r.Productions, &Production{
			Number: i,
			LHS:    rule.Origin.Name,
			RHS:    rhs,
			Alias:  rule.Alias,
			Expand: rule.Options != nil && rule.Options.Expand1,
		})
	}
	for _, id := range g.Table.StateIDs() {
		s := &State{
			Number: id,
		}
		reduces := map[int][]string{}
		syms := make([]string, 0, len(g.Table.States[id]))
		for sym := range g.Table.States[id] {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		for _, sym := range syms {
			act := g.Table.States[id][sym]
			switch {
			case act.Kind == ActionReduce:
				num, ok := prodNum[act.Rule.Key()]
				if !ok {
					num = -1
				}
				reduces[num] = append(reduces[num], sym)
			case IsTerminalName(sym):
				s.Shift = append(s.Shift, &Transition{Symbol: sym, State: act.State})
			default:
				s.GoTo = append(s.GoTo, &Transition{Symbol: sym, State: act.State})
			}
		}
		nums := make([]int, 0, len(reduces))
		for num := range reduces {
			nums = append(nums, num)
		}
		sort.Ints(nums)
		for _, num := range nums {
			s.Reduce = append(s.Reduce, &Reduce{
				LookAhead:  reduces[num],
				Production: num,
			})
		}
		r.States = append(r.States, s)
	}
	return r
}

func (p *Production) String() string {
	var b strings.Builder
	b.WriteString(p.LHS)
	b.WriteString(" →")
	if len(p.RHS) == 0 {
		b.WriteString(" ε")
	}
	for _, sym := range p.RHS {
		b.WriteString(" ")
		b.WriteString(sym)
	}
	return b.String()
}

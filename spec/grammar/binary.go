package grammar

import (
	"encoding"
	"fmt"
	"sort"

	"github.com/dekarrin/rezi"
	"github.com/nihei9/larkrt/compressor"
)

// The binary artifact is a compact alternative to the JSON artifact. Rules are stored once and referred
// to by index, and the action table is packed densely and compressed.
//
// An action is packed into an integer: 0 means no action, -(state+1) a shift to state, and index+1 a
// reduction by the rule at index.

const (
	binaryMagic   = "larkrt-grammar"
	binaryVersion = 1
)

// MarshalBinary encodes the grammar into the binary artifact.
func (g *CompiledGrammar) MarshalBinary() ([]byte, error) {
	rules, ruleIdx := g.collectRules()

	w := &binWriter{}
	w.str(binaryMagic)
	w.int(binaryVersion)
	w.binary(g.Options)

	w.int(len(g.Lexer.Terminals))
	for _, t := range g.Lexer.Terminals {
		w.binary(t)
	}
	w.strs(g.Lexer.Ignore)
	w.int(g.Lexer.GRegexFlags)
	w.bool(g.Lexer.UseBytes)
	w.str(g.Lexer.LexerType)

	w.int(len(rules))
	for _, r := range rules {
		w.binary(r)
	}
	w.ints(ruleIndices(g.Rules, ruleIdx))
	w.ints(ruleIndices(g.Parser.Rules, ruleIdx))
	w.strs(g.Parser.Start)
	w.str(g.Parser.ParserType)

	err := w.table(g.Table, ruleIdx)
	if err != nil {
		return nil, err
	}
	return w.data, nil
}

// UnmarshalBinary decodes the binary artifact into the grammar.
func (g *CompiledGrammar) UnmarshalBinary(data []byte) error {
	r := &binReader{data: data}
	if magic := r.str(); r.err == nil && magic != binaryMagic {
		return fmt.Errorf("not a compiled grammar")
	}
	if ver := r.int(); r.err == nil && ver != binaryVersion {
		return fmt.Errorf("unsupported binary version: %v", ver)
	}
	opts := NewDefaultOptions()
	r.binary(opts)

	lexConf := &LexerConf{}
	termCount := r.count()
	for i := 0; i < termCount && r.err == nil; i++ {
		t := &TerminalDef{}
		r.binary(t)
		lexConf.Terminals = append(lexConf.Terminals, t)
	}
	lexConf.Ignore = r.strs()
	lexConf.GRegexFlags = r.int()
	lexConf.UseBytes = r.bool()
	lexConf.LexerType = r.str()

	ruleCount := r.count()
	rules := make([]*Rule, 0, ruleCount)
	for i := 0; i < ruleCount && r.err == nil; i++ {
		rule := &Rule{}
		r.binary(rule)
		rules = append(rules, rule)
	}
	dataRules := r.rules(rules)
	parserConf := &ParserConf{}
	parserConf.Rules = r.rules(rules)
	parserConf.Start = r.strs()
	parserConf.ParserType = r.str()

	tab := r.table(rules)
	if r.err != nil {
		return r.err
	}

	g.Options = opts
	g.Rules = dataRules
	g.Lexer = lexConf
	g.Parser = parserConf
	g.Table = tab
	return g.Validate()
}

// DecodeBinary loads a compiled grammar from the binary artifact.
func DecodeBinary(data []byte) (*CompiledGrammar, error) {
	g := &CompiledGrammar{}
	err := g.UnmarshalBinary(data)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// collectRules returns every distinct rule the grammar refers to in the order of first appearance.
func (g *CompiledGrammar) collectRules() ([]*Rule, map[string]int) {
	var rules []*Rule
	idx := map[string]int{}
	add := func(r *Rule) {
		key := r.Key()
		if _, ok := idx[key]; ok {
			return
		}
		idx[key] = len(rules)
		rules = append(rules, r)
	}
	for _, r := range g.Rules {
		add(r)
	}
	for _, r := range g.Parser.Rules {
		add(r)
	}
	for _, id := range g.Table.StateIDs() {
		for _, act := range g.Table.States[id] {
			if act.Kind == ActionReduce && act.Rule != nil {
				add(act.Rule)
			}
		}
	}
	return rules, idx
}

func ruleIndices(rules []*Rule, idx map[string]int) []int {
	is := make([]int, len(rules))
	for i, r := range rules {
		is[i] = idx[r.Key()]
	}
	return is
}

func (o *Options) MarshalBinary() ([]byte, error) {
	w := &binWriter{}
	w.str(o.Parser)
	w.str(o.Lexer)
	w.strs(o.Start)
	w.bool(o.Debug)
	w.bool(o.Strict)
	w.bool(o.KeepAllTokens)
	w.bool(o.PropagatePositions)
	w.bool(o.MaybePlaceholders)
	w.int(o.GRegexFlags)
	w.str(o.Priority)
	w.str(o.Ambiguity)
	w.bool(o.UseBytes)
	w.bool(o.OrderedSets)
	return w.data, nil
}

func (o *Options) UnmarshalBinary(data []byte) error {
	r := &binReader{data: data}
	o.Parser = r.str()
	o.Lexer = r.str()
	o.Start = r.strs()
	o.Debug = r.bool()
	o.Strict = r.bool()
	o.KeepAllTokens = r.bool()
	o.PropagatePositions = r.bool()
	o.MaybePlaceholders = r.bool()
	o.GRegexFlags = r.int()
	o.Priority = r.str()
	o.Ambiguity = r.str()
	o.UseBytes = r.bool()
	o.OrderedSets = r.bool()
	return r.err
}

func (t *TerminalDef) MarshalBinary() ([]byte, error) {
	w := &binWriter{}
	w.str(t.Name)
	w.int(t.Priority)
	w.str(string(t.Pattern.Kind))
	w.str(t.Pattern.Value)
	w.strs(t.Pattern.Flags)
	w.str(t.Pattern.Raw)
	min, max := t.Pattern.widths()
	w.int(min)
	w.int(max)
	return w.data, nil
}

func (t *TerminalDef) UnmarshalBinary(data []byte) error {
	r := &binReader{data: data}
	t.Name = r.str()
	t.Priority = r.int()
	p := &Pattern{}
	p.Kind = PatternKind(r.str())
	p.Value = r.str()
	p.Flags = r.strs()
	p.Raw = r.str()
	min := r.int()
	max := r.int()
	if r.err != nil {
		return r.err
	}
	switch p.Kind {
	case PatternKindStr:
	case PatternKindRE:
		p.width = []int{min, max}
	default:
		return fmt.Errorf("unknown pattern kind: %v", p.Kind)
	}
	t.Pattern = p
	return nil
}

func (r *Rule) MarshalBinary() ([]byte, error) {
	w := &binWriter{}
	w.symbol(r.Origin)
	w.int(len(r.Expansion))
	for _, sym := range r.Expansion {
		w.symbol(sym)
	}
	w.int(r.Order)
	w.str(r.Alias)

	opts := r.Options
	if opts == nil {
		opts = &RuleOptions{}
	}
	w.bool(opts.KeepAllTokens)
	w.bool(opts.Expand1)
	w.bool(opts.Priority != nil)
	if opts.Priority != nil {
		w.int(*opts.Priority)
	}
	w.str(opts.TemplateSource)
	w.int(len(opts.EmptyIndices))
	for _, b := range opts.EmptyIndices {
		w.bool(b)
	}
	return w.data, nil
}

func (r *Rule) UnmarshalBinary(data []byte) error {
	br := &binReader{data: data}
	r.Origin = br.symbol()
	n := br.count()
	r.Expansion = make([]*Symbol, 0, n)
	for i := 0; i < n && br.err == nil; i++ {
		r.Expansion = append(r.Expansion, br.symbol())
	}
	r.Order = br.int()
	r.Alias = br.str()

	opts := &RuleOptions{}
	opts.KeepAllTokens = br.bool()
	opts.Expand1 = br.bool()
	if br.bool() {
		prio := br.int()
		opts.Priority = &prio
	}
	opts.TemplateSource = br.str()
	n = br.count()
	for i := 0; i < n && br.err == nil; i++ {
		opts.EmptyIndices = append(opts.EmptyIndices, br.bool())
	}
	r.Options = opts
	return br.err
}

type binWriter struct {
	data []byte
}

func (w *binWriter) int(v int) {
	w.data = append(w.data, rezi.EncInt(v)...)
}

func (w *binWriter) str(s string) {
	w.data = append(w.data, rezi.EncString(s)...)
}

func (w *binWriter) bool(b bool) {
	w.data = append(w.data, rezi.EncBool(b)...)
}

func (w *binWriter) binary(b encoding.BinaryMarshaler) {
	w.data = append(w.data, rezi.EncBinary(b)...)
}

func (w *binWriter) strs(ss []string) {
	w.int(len(ss))
	for _, s := range ss {
		w.str(s)
	}
}

func (w *binWriter) ints(vs []int) {
	w.int(len(vs))
	for _, v := range vs {
		w.int(v)
	}
}

func (w *binWriter) symbol(sym *Symbol) {
	w.str(sym.Name)
	w.bool(sym.IsTerm)
	w.bool(sym.FilterOut)
}

func (w *binWriter) stateMap(m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.strs(keys)
	for _, k := range keys {
		w.int(m[k])
	}
}

func (w *binWriter) table(t *ParseTable, ruleIdx map[string]int) error {
	syms := t.Symbols()
	ids := t.StateIDs()
	w.strs(syms)
	w.ints(ids)

	col := make(map[string]int, len(syms))
	for i, sym := range syms {
		col[sym] = i
	}
	colCount := len(syms)
	if colCount == 0 {
		colCount = 1
	}
	entries := make([]int, len(ids)*colCount)
	for row, id := range ids {
		for sym, act := range t.States[id] {
			v := -(act.State + 1)
			if act.Kind == ActionReduce {
				v = ruleIdx[act.Rule.Key()] + 1
			}
			entries[row*colCount+col[sym]] = v
		}
	}
	if len(entries) == 0 {
		w.str("")
	} else {
		orig, err := compressor.NewOriginalTable(entries, colCount)
		if err != nil {
			return err
		}
		comp, kind, err := compressor.Compact(orig, 0)
		if err != nil {
			return err
		}
		w.str(kind)
		w.binary(comp)
	}

	w.stateMap(t.StartStates)
	w.stateMap(t.EndStates)
	return nil
}

// binReader decodes values in sequence. The first failure sticks; later reads return zero values and
// the failure is available in err.
type binReader struct {
	data []byte
	err  error
}

func (r *binReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *binReader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := rezi.DecInt(r.data)
	if err != nil {
		r.fail(err)
		return 0
	}
	r.data = r.data[n:]
	return v
}

func (r *binReader) count() int {
	n := r.int()
	if n < 0 {
		r.fail(fmt.Errorf("negative count: %v", n))
		return 0
	}
	return n
}

func (r *binReader) str() string {
	if r.err != nil {
		return ""
	}
	s, n, err := rezi.DecString(r.data)
	if err != nil {
		r.fail(err)
		return ""
	}
	r.data = r.data[n:]
	return s
}

func (r *binReader) bool() bool {
	if r.err != nil {
		return false
	}
	b, n, err := rezi.DecBool(r.data)
	if err != nil {
		r.fail(err)
		return false
	}
	r.data = r.data[n:]
	return b
}

func (r *binReader) binary(b encoding.BinaryUnmarshaler) {
	if r.err != nil {
		return
	}
	n, err := rezi.DecBinary(r.data, b)
	if err != nil {
		r.fail(err)
		return
	}
	r.data = r.data[n:]
}

func (r *binReader) strs() []string {
	n := r.count()
	var ss []string
	for i := 0; i < n && r.err == nil; i++ {
		ss = append(ss, r.str())
	}
	return ss
}

func (r *binReader) ints() []int {
	n := r.count()
	var vs []int
	for i := 0; i < n && r.err == nil; i++ {
		vs = append(vs, r.int())
	}
	return vs
}

func (r *binReader) symbol() *Symbol {
	sym := &Symbol{}
	sym.Name = r.str()
	sym.IsTerm = r.bool()
	sym.FilterOut = r.bool()
	return sym
}

func (r *binReader) rules(all []*Rule) []*Rule {
	is := r.ints()
	rules := make([]*Rule, 0, len(is))
	for _, i := range is {
		if i < 0 || i >= len(all) {
			r.fail(fmt.Errorf("rule index is out of range: %v", i))
			return nil
		}
		rules = append(rules, all[i])
	}
	return rules
}

func (r *binReader) stateMap() map[string]int {
	keys := r.strs()
	m := make(map[string]int, len(keys))
	for _, k := range keys {
		m[k] = r.int()
	}
	return m
}

func (r *binReader) table(rules []*Rule) *ParseTable {
	syms := r.strs()
	ids := r.ints()
	kind := r.str()
	t := &ParseTable{
		States: make(map[int]map[string]*Action, len(ids)),
	}
	if kind != "" {
		comp, err := compressor.New(kind)
		if err != nil {
			r.fail(err)
			return nil
		}
		r.binary(comp)
		if r.err != nil {
			return nil
		}
		rowCount, colCount := comp.OriginalTableSize()
		if rowCount != len(ids) || (len(syms) > 0 && colCount != len(syms)) {
			r.fail(fmt.Errorf("action table size mismatch: %vx%v", rowCount, colCount))
			return nil
		}
		for row, id := range ids {
			acts := map[string]*Action{}
			for c, sym := range syms {
				v, err := comp.Lookup(row, c)
				if err != nil {
					r.fail(err)
					return nil
				}
				switch {
				case v < 0:
					acts[sym] = &Action{
						Kind:  ActionShift,
						State: -v - 1,
					}
				case v > 0:
					if v > len(rules) {
						r.fail(fmt.Errorf("rule index is out of range: %v", v-1))
						return nil
					}
					acts[sym] = &Action{
						Kind: ActionReduce,
						Rule: rules[v-1],
					}
				}
			}
			t.States[id] = acts
		}
	} else {
		for _, id := range ids {
			t.States[id] = map[string]*Action{}
		}
	}
	t.StartStates = r.stateMap()
	t.EndStates = r.stateMap()
	return t
}

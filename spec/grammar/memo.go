package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// The JSON artifact is a tree of objects tagged with `__type__`. Terminal definitions and rules are
// stored once in `memo` and referenced by `{"@": index}` elsewhere.

const (
	typeLark            = "Lark"
	typeParsingFrontend = "ParsingFrontend"
	typeLexerConf       = "LexerConf"
	typeParserConf      = "ParserConf"
	typeTerminalDef     = "TerminalDef"
	typePatternStr      = "PatternStr"
	typePatternRE       = "PatternRE"
	typeRule            = "Rule"
	typeRuleOptions     = "RuleOptions"
	typeTerminal        = "Terminal"
	typeNonTerminal     = "NonTerminal"
)

type artifactJSON struct {
	Data json.RawMessage            `json:"data"`
	Memo map[string]json.RawMessage `json:"memo"`
}

type typeTagJSON struct {
	Type string `json:"__type__"`
	Ref  *int   `json:"@"`
}

type dataJSON struct {
	Parser  *frontendJSON     `json:"parser"`
	Rules   []json.RawMessage `json:"rules"`
	Options *optionsJSON      `json:"options"`
	Type    string            `json:"__type__"`
}

type optionsJSON struct {
	Debug              bool            `json:"debug"`
	Strict             bool            `json:"strict"`
	KeepAllTokens      bool            `json:"keep_all_tokens"`
	Parser             string          `json:"parser"`
	Lexer              string          `json:"lexer"`
	Start              json.RawMessage `json:"start"`
	Priority           *string         `json:"priority"`
	Ambiguity          string          `json:"ambiguity"`
	PropagatePositions json.RawMessage `json:"propagate_positions"`
	MaybePlaceholders  bool            `json:"maybe_placeholders"`
	GRegexFlags        json.RawMessage `json:"g_regex_flags"`
	UseBytes           bool            `json:"use_bytes"`
	OrderedSets        bool            `json:"ordered_sets"`
}

type frontendJSON struct {
	LexerConf  *lexerConfJSON  `json:"lexer_conf"`
	ParserConf *parserConfJSON `json:"parser_conf"`
	Parser     *tableJSON      `json:"parser"`
	Type       string          `json:"__type__"`
}

type lexerConfJSON struct {
	Terminals   []json.RawMessage `json:"terminals"`
	Ignore      []string          `json:"ignore"`
	GRegexFlags json.RawMessage   `json:"g_regex_flags"`
	UseBytes    bool              `json:"use_bytes"`
	LexerType   string            `json:"lexer_type"`
	Type        string            `json:"__type__"`
}

type parserConfJSON struct {
	Rules      []json.RawMessage `json:"rules"`
	Start      []string          `json:"start"`
	ParserType string            `json:"parser_type"`
	Type       string            `json:"__type__"`
}

type tableJSON struct {
	Tokens      map[string]string                       `json:"tokens"`
	States      map[string]map[string][]json.RawMessage `json:"states"`
	StartStates map[string]json.RawMessage              `json:"start_states"`
	EndStates   map[string]json.RawMessage              `json:"end_states"`
}

type terminalDefJSON struct {
	Name     string       `json:"name"`
	Pattern  *patternJSON `json:"pattern"`
	Priority int          `json:"priority"`
	Type     string       `json:"__type__"`
}

type patternJSON struct {
	Value string   `json:"value"`
	Flags []string `json:"flags"`
	Raw   *string  `json:"raw"`
	Width []int    `json:"_width,omitempty"`
	Type  string   `json:"__type__"`
}

type symbolJSON struct {
	Name      string `json:"name"`
	FilterOut *bool  `json:"filter_out,omitempty"`
	Type      string `json:"__type__"`
}

type ruleOptionsJSON struct {
	KeepAllTokens  bool    `json:"keep_all_tokens"`
	Expand1        bool    `json:"expand1"`
	Priority       *int    `json:"priority"`
	TemplateSource *string `json:"template_source"`
	EmptyIndices   []bool  `json:"empty_indices"`
	Type           string  `json:"__type__"`
}

type ruleJSON struct {
	Origin    *symbolJSON      `json:"origin"`
	Expansion []*symbolJSON    `json:"expansion"`
	Order     int              `json:"order"`
	Alias     *string          `json:"alias"`
	Options   *ruleOptionsJSON `json:"options"`
	Type      string           `json:"__type__"`
}

// DecodeJSON loads a compiled grammar from the memoized JSON artifact.
func DecodeJSON(data []byte) (*CompiledGrammar, error) {
	var a artifactJSON
	err := json.Unmarshal(data, &a)
	if err != nil {
		return nil, err
	}
	if a.Data == nil {
		return nil, fmt.Errorf("data is missing")
	}
	d := &memoDecoder{
		memo:      a.Memo,
		terminals: map[int]*TerminalDef{},
		rules:     map[int]*Rule{},
	}
	return d.decode(a.Data)
}

type memoDecoder struct {
	memo      map[string]json.RawMessage
	terminals map[int]*TerminalDef
	rules     map[int]*Rule
}

func (d *memoDecoder) decode(raw json.RawMessage) (*CompiledGrammar, error) {
	var data dataJSON
	err := json.Unmarshal(raw, &data)
	if err != nil {
		return nil, err
	}
	if data.Type != "" && data.Type != typeLark {
		return nil, fmt.Errorf("unexpected type: expected %v but got %v", typeLark, data.Type)
	}
	if data.Parser == nil || data.Parser.LexerConf == nil || data.Parser.ParserConf == nil || data.Parser.Parser == nil {
		return nil, fmt.Errorf("parsing frontend is incomplete")
	}

	opts, err := decodeOptions(data.Options)
	if err != nil {
		return nil, err
	}
	rules, err := d.decodeRules(data.Rules)
	if err != nil {
		return nil, err
	}
	lexConf, err := d.decodeLexerConf(data.Parser.LexerConf)
	if err != nil {
		return nil, err
	}
	parserConf := &ParserConf{
		Start:      data.Parser.ParserConf.Start,
		ParserType: data.Parser.ParserConf.ParserType,
	}
	parserConf.Rules, err = d.decodeRules(data.Parser.ParserConf.Rules)
	if err != nil {
		return nil, err
	}
	if len(parserConf.Start) == 0 {
		parserConf.Start = opts.Start
	}
	tab, err := d.decodeTable(data.Parser.Parser)
	if err != nil {
		return nil, err
	}

	g := &CompiledGrammar{
		Options: opts,
		Rules:   rules,
		Lexer:   lexConf,
		Parser:  parserConf,
		Table:   tab,
	}
	err = g.Validate()
	if err != nil {
		return nil, err
	}
	return g, nil
}

func decodeOptions(o *optionsJSON) (*Options, error) {
	opts := NewDefaultOptions()
	if o == nil {
		return opts, nil
	}
	opts.Debug = o.Debug
	opts.Strict = o.Strict
	opts.KeepAllTokens = o.KeepAllTokens
	opts.MaybePlaceholders = o.MaybePlaceholders
	opts.UseBytes = o.UseBytes
	opts.OrderedSets = o.OrderedSets
	if o.Parser != "" {
		opts.Parser = o.Parser
	}
	if o.Lexer != "" {
		opts.Lexer = o.Lexer
	}
	if o.Ambiguity != "" {
		opts.Ambiguity = o.Ambiguity
	}
	if o.Priority != nil {
		opts.Priority = *o.Priority
	}
	if len(o.Start) > 0 {
		var start []string
		err := json.Unmarshal(o.Start, &start)
		if err != nil {
			var s string
			err := json.Unmarshal(o.Start, &s)
			if err != nil {
				return nil, fmt.Errorf("invalid start option: %v", string(o.Start))
			}
			start = []string{s}
		}
		opts.Start = start
	}
	// propagate_positions may hold a non-boolean value such as a node filter. Only a boolean true enables it.
	if len(o.PropagatePositions) > 0 {
		var pp bool
		if json.Unmarshal(o.PropagatePositions, &pp) == nil {
			opts.PropagatePositions = pp
		}
	}
	flags, err := decodeRegexFlags(o.GRegexFlags)
	if err != nil {
		return nil, err
	}
	opts.GRegexFlags = flags
	return opts, nil
}

// decodeRegexFlags accepts an integer or an empty string, which some exporters write for no flags.
func decodeRegexFlags(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var flags int
	if err := json.Unmarshal(raw, &flags); err == nil {
		return flags, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	}
	return 0, fmt.Errorf("invalid g_regex_flags: %v", string(raw))
}

func (d *memoDecoder) decodeLexerConf(c *lexerConfJSON) (*LexerConf, error) {
	if c.Type != "" && c.Type != typeLexerConf {
		return nil, fmt.Errorf("unexpected type: expected %v but got %v", typeLexerConf, c.Type)
	}
	flags, err := decodeRegexFlags(c.GRegexFlags)
	if err != nil {
		return nil, err
	}
	conf := &LexerConf{
		Ignore:      c.Ignore,
		GRegexFlags: flags,
		UseBytes:    c.UseBytes,
		LexerType:   c.LexerType,
	}
	for _, raw := range c.Terminals {
		t, err := d.decodeTerminalDef(raw)
		if err != nil {
			return nil, err
		}
		conf.Terminals = append(conf.Terminals, t)
	}
	return conf, nil
}

func (d *memoDecoder) readRef(raw json.RawMessage) (json.RawMessage, int, bool, error) {
	var tag typeTagJSON
	err := json.Unmarshal(raw, &tag)
	if err != nil {
		return nil, 0, false, err
	}
	if tag.Ref == nil {
		return raw, 0, false, nil
	}
	entry, ok := d.memo[strconv.Itoa(*tag.Ref)]
	if !ok {
		return nil, 0, false, fmt.Errorf("undefined memo reference: %v", *tag.Ref)
	}
	return entry, *tag.Ref, true, nil
}

func (d *memoDecoder) decodeTerminalDef(raw json.RawMessage) (*TerminalDef, error) {
	raw, ref, isRef, err := d.readRef(raw)
	if err != nil {
		return nil, err
	}
	if isRef {
		if t, ok := d.terminals[ref]; ok {
			return t, nil
		}
	}

	var tj terminalDefJSON
	err = json.Unmarshal(raw, &tj)
	if err != nil {
		return nil, err
	}
	if tj.Type != typeTerminalDef {
		return nil, fmt.Errorf("unexpected type: expected %v but got %v", typeTerminalDef, tj.Type)
	}
	if tj.Pattern == nil {
		return nil, fmt.Errorf("terminal %v has no pattern", tj.Name)
	}
	p := &Pattern{
		Value: tj.Pattern.Value,
		Flags: tj.Pattern.Flags,
	}
	if tj.Pattern.Raw != nil {
		p.Raw = *tj.Pattern.Raw
	}
	switch tj.Pattern.Type {
	case typePatternStr:
		p.Kind = PatternKindStr
	case typePatternRE:
		p.Kind = PatternKindRE
		if len(tj.Pattern.Width) == 2 {
			p.width = tj.Pattern.Width
		}
	default:
		return nil, fmt.Errorf("unknown pattern type: %v", tj.Pattern.Type)
	}
	t := NewTerminalDef(tj.Name, p, tj.Priority)
	if isRef {
		d.terminals[ref] = t
	}
	return t, nil
}

func (d *memoDecoder) decodeRules(raws []json.RawMessage) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(raws))
	for _, raw := range raws {
		r, err := d.decodeRule(raw)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (d *memoDecoder) decodeRule(raw json.RawMessage) (*Rule, error) {
	raw, ref, isRef, err := d.readRef(raw)
	if err != nil {
		return nil, err
	}
	if isRef {
		if r, ok := d.rules[ref]; ok {
			return r, nil
		}
	}

	var rj ruleJSON
	err = json.Unmarshal(raw, &rj)
	if err != nil {
		return nil, err
	}
	if rj.Type != typeRule {
		return nil, fmt.Errorf("unexpected type: expected %v but got %v", typeRule, rj.Type)
	}
	if rj.Origin == nil {
		return nil, fmt.Errorf("rule has no origin")
	}
	origin, err := decodeSymbol(rj.Origin)
	if err != nil {
		return nil, err
	}
	r := &Rule{
		Origin:    origin,
		Expansion: make([]*Symbol, 0, len(rj.Expansion)),
		Order:     rj.Order,
		Options:   &RuleOptions{},
	}
	for _, sj := range rj.Expansion {
		sym, err := decodeSymbol(sj)
		if err != nil {
			return nil, err
		}
		r.Expansion = append(r.Expansion, sym)
	}
	if rj.Alias != nil {
		r.Alias = *rj.Alias
	}
	if o := rj.Options; o != nil {
		r.Options.KeepAllTokens = o.KeepAllTokens
		r.Options.Expand1 = o.Expand1
		r.Options.Priority = o.Priority
		r.Options.EmptyIndices = o.EmptyIndices
		if o.TemplateSource != nil {
			r.Options.TemplateSource = *o.TemplateSource
		}
	}
	if isRef {
		d.rules[ref] = r
	}
	return r, nil
}

func decodeSymbol(sj *symbolJSON) (*Symbol, error) {
	switch sj.Type {
	case typeTerminal:
		filterOut := false
		if sj.FilterOut != nil {
			filterOut = *sj.FilterOut
		}
		return NewTerminal(sj.Name, filterOut), nil
	case typeNonTerminal:
		return NewNonTerminal(sj.Name), nil
	}
	return nil, fmt.Errorf("unknown symbol type: %v", sj.Type)
}

func (d *memoDecoder) decodeTable(tj *tableJSON) (*ParseTable, error) {
	named := false
	for id := range tj.States {
		if _, err := strconv.Atoi(id); err != nil {
			named = true
			break
		}
	}

	nt := &NamedParseTable{
		States:      make(map[string]map[string]*NamedAction, len(tj.States)),
		StartStates: map[string]string{},
		EndStates:   map[string]string{},
	}
	for id, acts := range tj.States {
		nacts := make(map[string]*NamedAction, len(acts))
		for tokIdx, entry := range acts {
			sym, ok := tj.Tokens[tokIdx]
			if !ok {
				return nil, fmt.Errorf("undefined token index: %v", tokIdx)
			}
			if len(entry) != 2 {
				return nil, fmt.Errorf("malformed action of state %v on %v", id, sym)
			}
			var kind int
			err := json.Unmarshal(entry[0], &kind)
			if err != nil {
				return nil, err
			}
			switch ActionKind(kind) {
			case ActionShift:
				target, isName, err := decodeStateID(entry[1])
				if err != nil {
					return nil, err
				}
				named = named || isName
				nacts[sym] = &NamedAction{
					Kind:  ActionShift,
					State: target,
				}
			case ActionReduce:
				r, err := d.decodeRule(entry[1])
				if err != nil {
					return nil, err
				}
				nacts[sym] = &NamedAction{
					Kind: ActionReduce,
					Rule: r,
				}
			default:
				return nil, fmt.Errorf("unknown action kind: %v", kind)
			}
		}
		nt.States[id] = nacts
	}
	for start, raw := range tj.StartStates {
		id, isName, err := decodeStateID(raw)
		if err != nil {
			return nil, err
		}
		named = named || isName
		nt.StartStates[start] = id
	}
	for start, raw := range tj.EndStates {
		id, isName, err := decodeStateID(raw)
		if err != nil {
			return nil, err
		}
		named = named || isName
		nt.EndStates[start] = id
	}

	if named {
		return nt.ToParseTable()
	}
	return namedToInt(nt)
}

// namedToInt converts a table whose state names are all decimal integers, keeping the original numbers.
func namedToInt(nt *NamedParseTable) (*ParseTable, error) {
	atoi := func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid state ID: %v", s)
		}
		return n, nil
	}
	t := &ParseTable{
		States:      make(map[int]map[string]*Action, len(nt.States)),
		StartStates: make(map[string]int, len(nt.StartStates)),
		EndStates:   make(map[string]int, len(nt.EndStates)),
	}
	for id, nacts := range nt.States {
		state, err := atoi(id)
		if err != nil {
			return nil, err
		}
		acts := make(map[string]*Action, len(nacts))
		for sym, nact := range nacts {
			act := &Action{
				Kind: nact.Kind,
				Rule: nact.Rule,
			}
			if nact.Kind == ActionShift {
				act.State, err = atoi(nact.State)
				if err != nil {
					return nil, err
				}
			}
			acts[sym] = act
		}
		t.States[state] = acts
	}
	for start, id := range nt.StartStates {
		state, err := atoi(id)
		if err != nil {
			return nil, err
		}
		t.StartStates[start] = state
	}
	for start, id := range nt.EndStates {
		state, err := atoi(id)
		if err != nil {
			return nil, err
		}
		t.EndStates[start] = state
	}
	return t, nil
}

// decodeStateID returns a state ID and whether the ID is a name rather than an integer.
func decodeStateID(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		if err != nil {
			return "", false, err
		}
		_, convErr := strconv.Atoi(s)
		return s, convErr != nil, nil
	}
	var n int
	err := json.Unmarshal(raw, &n)
	if err != nil {
		return "", false, fmt.Errorf("invalid state ID: %v", string(raw))
	}
	return strconv.Itoa(n), false, nil
}

// EncodeJSON writes a compiled grammar as the memoized JSON artifact. Terminal definitions are memoized
// first in declaration order, followed by rules.
func EncodeJSON(g *CompiledGrammar) ([]byte, error) {
	e := &memoEncoder{
		memo:      map[string]any{},
		terminals: map[*TerminalDef]int{},
		rules:     map[string]int{},
	}
	for _, t := range g.Lexer.Terminals {
		e.terminalRef(t)
	}
	for _, r := range g.Rules {
		e.ruleRef(r)
	}

	terms := make([]any, len(g.Lexer.Terminals))
	for i, t := range g.Lexer.Terminals {
		terms[i] = e.terminalRef(t)
	}
	ignore := g.Lexer.Ignore
	if ignore == nil {
		ignore = []string{}
	}
	tab, err := e.encodeTable(g.Table)
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"parser": map[string]any{
			"lexer_conf": map[string]any{
				"terminals":     terms,
				"ignore":        ignore,
				"g_regex_flags": g.Lexer.GRegexFlags,
				"use_bytes":     g.Lexer.UseBytes,
				"lexer_type":    g.Lexer.LexerType,
				"__type__":      typeLexerConf,
			},
			"parser_conf": map[string]any{
				"rules":       e.ruleRefs(g.Parser.Rules),
				"start":       g.Parser.Start,
				"parser_type": g.Parser.ParserType,
				"__type__":    typeParserConf,
			},
			"parser":   tab,
			"__type__": typeParsingFrontend,
		},
		"rules":    e.ruleRefs(g.Rules),
		"options":  encodeOptions(g.Options),
		"__type__": typeLark,
	}
	return json.Marshal(map[string]any{
		"data": data,
		"memo": e.memo,
	})
}

type memoEncoder struct {
	memo      map[string]any
	terminals map[*TerminalDef]int
	rules     map[string]int
}

func (e *memoEncoder) terminalRef(t *TerminalDef) map[string]int {
	if ref, ok := e.terminals[t]; ok {
		return map[string]int{"@": ref}
	}
	ref := len(e.memo)
	e.terminals[t] = ref

	pj := &patternJSON{
		Value: t.Pattern.Value,
		Flags: t.Pattern.Flags,
	}
	if pj.Flags == nil {
		pj.Flags = []string{}
	}
	if t.Pattern.Raw != "" {
		raw := t.Pattern.Raw
		pj.Raw = &raw
	}
	if t.Pattern.Kind == PatternKindStr {
		pj.Type = typePatternStr
	} else {
		pj.Type = typePatternRE
		min, max := t.Pattern.widths()
		pj.Width = []int{min, max}
	}
	e.memo[strconv.Itoa(ref)] = &terminalDefJSON{
		Name:     t.Name,
		Pattern:  pj,
		Priority: t.Priority,
		Type:     typeTerminalDef,
	}
	return map[string]int{"@": ref}
}

func (e *memoEncoder) ruleRef(r *Rule) map[string]int {
	key := r.Key()
	if ref, ok := e.rules[key]; ok {
		return map[string]int{"@": ref}
	}
	ref := len(e.memo)
	e.rules[key] = ref

	rj := &ruleJSON{
		Origin:    encodeSymbol(r.Origin),
		Expansion: make([]*symbolJSON, len(r.Expansion)),
		Order:     r.Order,
		Type:      typeRule,
	}
	for i, sym := range r.Expansion {
		rj.Expansion[i] = encodeSymbol(sym)
	}
	if r.Alias != "" {
		alias := r.Alias
		rj.Alias = &alias
	}
	opts := r.Options
	if opts == nil {
		opts = &RuleOptions{}
	}
	oj := &ruleOptionsJSON{
		KeepAllTokens: opts.KeepAllTokens,
		Expand1:       opts.Expand1,
		Priority:      opts.Priority,
		EmptyIndices:  opts.EmptyIndices,
		Type:          typeRuleOptions,
	}
	if oj.EmptyIndices == nil {
		oj.EmptyIndices = []bool{}
	}
	if opts.TemplateSource != "" {
		ts := opts.TemplateSource
		oj.TemplateSource = &ts
	}
	rj.Options = oj
	e.memo[strconv.Itoa(ref)] = rj
	return map[string]int{"@": ref}
}

func (e *memoEncoder) ruleRefs(rules []*Rule) []any {
	refs := make([]any, len(rules))
	for i, r := range rules {
		refs[i] = e.ruleRef(r)
	}
	return refs
}

func encodeSymbol(sym *Symbol) *symbolJSON {
	if sym.IsTerm {
		filterOut := sym.FilterOut
		return &symbolJSON{
			Name:      sym.Name,
			FilterOut: &filterOut,
			Type:      typeTerminal,
		}
	}
	return &symbolJSON{
		Name: sym.Name,
		Type: typeNonTerminal,
	}
}

// encodeTable enumerates symbols in ascending state order and, within a state, ascending symbol order
// so that the output is deterministic.
func (e *memoEncoder) encodeTable(t *ParseTable) (map[string]any, error) {
	tokens := map[string]string{}
	tokenIdx := map[string]int{}
	states := map[string]any{}
	for _, id := range t.StateIDs() {
		acts := t.States[id]
		syms := make([]string, 0, len(acts))
		for sym := range acts {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		entries := map[string]any{}
		for _, sym := range syms {
			idx, ok := tokenIdx[sym]
			if !ok {
				idx = len(tokenIdx)
				tokenIdx[sym] = idx
				tokens[strconv.Itoa(idx)] = sym
			}
			act := acts[sym]
			switch act.Kind {
			case ActionShift:
				entries[strconv.Itoa(idx)] = []any{int(ActionShift), act.State}
			case ActionReduce:
				if act.Rule == nil {
					return nil, fmt.Errorf("reduce action of state %v on %v has no rule", id, sym)
				}
				entries[strconv.Itoa(idx)] = []any{int(ActionReduce), e.ruleRef(act.Rule)}
			}
		}
		states[strconv.Itoa(id)] = entries
	}
	return map[string]any{
		"tokens":       tokens,
		"states":       states,
		"start_states": t.StartStates,
		"end_states":   t.EndStates,
	}, nil
}

func encodeOptions(o *Options) map[string]any {
	return map[string]any{
		"debug":               o.Debug,
		"strict":              o.Strict,
		"keep_all_tokens":     o.KeepAllTokens,
		"parser":              o.Parser,
		"lexer":               o.Lexer,
		"start":               o.Start,
		"priority":            o.Priority,
		"ambiguity":           o.Ambiguity,
		"propagate_positions": o.PropagatePositions,
		"maybe_placeholders":  o.MaybePlaceholders,
		"g_regex_flags":       o.GRegexFlags,
		"use_bytes":           o.UseBytes,
		"ordered_sets":        o.OrderedSets,
	}
}

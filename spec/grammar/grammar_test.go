package grammar

import (
	"fmt"
	"os"
	"testing"
)

func readMathGrammar(t *testing.T) *CompiledGrammar {
	t.Helper()

	data, err := os.ReadFile("../../grammars/math/math.json")
	if err != nil {
		t.Fatal(err)
	}
	g, err := DecodeJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestDecodeJSON(t *testing.T) {
	g := readMathGrammar(t)

	if g.Options.Parser != ParserLALR || g.Options.Lexer != LexerContextual {
		t.Fatalf("unexpected frontend: %v/%v", g.Options.Parser, g.Options.Lexer)
	}
	if len(g.Lexer.Terminals) != 14 {
		t.Fatalf("unexpected terminal count; want: %v, got: %v", 14, len(g.Lexer.Terminals))
	}
	if len(g.Rules) != 41 || len(g.Parser.Rules) != 41 {
		t.Fatalf("unexpected rule count; want: %v, got: %v and %v", 41, len(g.Rules), len(g.Parser.Rules))
	}
	if len(g.Table.States) != 58 {
		t.Fatalf("unexpected state count; want: %v, got: %v", 58, len(g.Table.States))
	}
	if g.Table.StartStates["start"] != 11 || g.Table.EndStates["start"] != 32 {
		t.Fatalf("unexpected start/end states: %v, %v", g.Table.StartStates, g.Table.EndStates)
	}
	if len(g.Lexer.Ignore) != 1 || g.Lexer.Ignore[0] != "WS" {
		t.Fatalf("unexpected ignore list: %v", g.Lexer.Ignore)
	}

	ws, ok := g.Terminal("WS")
	if !ok {
		t.Fatal("WS is not defined")
	}
	if ws.Pattern.Kind != PatternKindRE || ws.Pattern.MinWidth() != 1 || ws.Pattern.MaxWidth() != MaxWidth {
		t.Fatalf("unexpected pattern: %#v", ws.Pattern)
	}
	lpar, ok := g.Terminal("LPAR")
	if !ok {
		t.Fatal("LPAR is not defined")
	}
	if lpar.Pattern.Kind != PatternKindStr || lpar.Pattern.Value != "(" || lpar.Pattern.Raw != `"("` {
		t.Fatalf("unexpected pattern: %#v", lpar.Pattern)
	}

	// Memoized rules are shared between the rule list and the table.
	shared := map[*Rule]bool{}
	for _, r := range g.Rules {
		shared[r] = true
	}
	for _, r := range g.Parser.Rules {
		if !shared[r] {
			t.Fatalf("rule %v is not shared", r)
		}
	}
	for _, acts := range g.Table.States {
		for _, act := range acts {
			if act.Kind == ActionReduce && !shared[act.Rule] {
				t.Fatalf("rule %v is not shared", act.Rule)
			}
		}
	}

	call := g.Rules[13]
	if call.String() != "<expr_func_call : ID LPAR expr __expr_func_call_star_0 COMMA RPAR>" {
		t.Fatalf("unexpected rule: %v", call)
	}
	if !call.Expansion[1].IsTerm || !call.Expansion[1].FilterOut || call.Expansion[0].FilterOut {
		t.Fatalf("unexpected filter flags: %#v, %#v", call.Expansion[0], call.Expansion[1])
	}
	bin := g.Rules[23]
	if bin.Alias != "expr_binary" || bin.Options.TemplateSource != "lassoc" || !bin.Options.Expand1 {
		t.Fatalf("unexpected rule: %v %#v", bin, bin.Options)
	}
}

func TestDecodeJSON_Invalid(t *testing.T) {
	tests := []string{
		`{}`,
		`{"data": {"__type__": "Foo"}, "memo": {}}`,
		`{"data": {"parser": {}, "__type__": "Lark"}, "memo": {}}`,
		`{"data": {
			"parser": {
				"lexer_conf": {"terminals": [{"@": 0}], "ignore": [], "__type__": "LexerConf"},
				"parser_conf": {"rules": [], "start": ["start"], "__type__": "ParserConf"},
				"parser": {"tokens": {}, "states": {}, "start_states": {"start": 0}, "end_states": {"start": 1}},
				"__type__": "ParsingFrontend"
			},
			"rules": [],
			"options": {},
			"__type__": "Lark"
		}, "memo": {}}`,
		`{"data": {
			"parser": {
				"lexer_conf": {"terminals": [], "ignore": [], "__type__": "LexerConf"},
				"parser_conf": {"rules": [], "start": ["start"], "__type__": "ParserConf"},
				"parser": {"tokens": {}, "states": {"0": {}}, "start_states": {}, "end_states": {}},
				"__type__": "ParsingFrontend"
			},
			"rules": [],
			"options": {},
			"__type__": "Lark"
		}, "memo": {}}`,
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			_, err := DecodeJSON([]byte(tt))
			if err == nil {
				t.Fatal("expected error didn't occur")
			}
		})
	}
}

func TestCompiledGrammar_Validate(t *testing.T) {
	tests := []struct {
		caption string
		modify  func(g *CompiledGrammar)
	}{
		{
			caption: "options are missing",
			modify:  func(g *CompiledGrammar) { g.Options = nil },
		},
		{
			caption: "lexer configuration is missing",
			modify:  func(g *CompiledGrammar) { g.Lexer = nil },
		},
		{
			caption: "parser configuration is missing",
			modify:  func(g *CompiledGrammar) { g.Parser = nil },
		},
		{
			caption: "parse table is missing",
			modify:  func(g *CompiledGrammar) { g.Table = nil },
		},
		{
			caption: "start rule list is empty",
			modify:  func(g *CompiledGrammar) { g.Parser.Start = nil },
		},
		{
			caption: "start rule is unknown to the table",
			modify:  func(g *CompiledGrammar) { g.Parser.Start = []string{"unknown"} },
		},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v %v", i, tt.caption), func(t *testing.T) {
			g := readMathGrammar(t)
			if err := g.Validate(); err != nil {
				t.Fatalf("an unexpected error occurred: %v", err)
			}
			tt.modify(g)
			if err := g.Validate(); err == nil {
				t.Fatal("expected error didn't occur")
			}
		})
	}

	if err := (&CompiledGrammar{}).Validate(); err == nil {
		t.Fatal("an empty grammar must be invalid")
	}
}

func TestDecodeJSON_NamedParseTable(t *testing.T) {
	src := `{"data": {
		"parser": {
			"lexer_conf": {"terminals": [{"@": 0}], "ignore": [], "g_regex_flags": "", "__type__": "LexerConf"},
			"parser_conf": {"rules": [{"@": 1}], "start": ["start"], "__type__": "ParserConf"},
			"parser": {
				"tokens": {"0": "A", "1": "$END", "2": "start"},
				"states": {
					"begin": {"0": [0, "after_a"], "2": [0, "end"]},
					"after_a": {"1": [1, {"@": 1}]},
					"end": {"1": [1, {"@": 1}]}
				},
				"start_states": {"start": "begin"},
				"end_states": {"start": "end"}
			},
			"__type__": "ParsingFrontend"
		},
		"rules": [{"@": 1}],
		"options": {"start": "start"},
		"__type__": "Lark"
	}, "memo": {
		"0": {"name": "A", "pattern": {"value": "a", "flags": [], "raw": null, "__type__": "PatternStr"}, "priority": 0, "__type__": "TerminalDef"},
		"1": {"origin": {"name": "start", "__type__": "NonTerminal"}, "expansion": [{"name": "A", "filter_out": false, "__type__": "Terminal"}], "order": 0, "alias": null, "options": null, "__type__": "Rule"}
	}}`
	g, err := DecodeJSON([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	// States are numbered in ascending order of their names: after_a, begin, end.
	if g.Table.StartStates["start"] != 1 || g.Table.EndStates["start"] != 2 {
		t.Fatalf("unexpected start/end states: %v, %v", g.Table.StartStates, g.Table.EndStates)
	}
	act := g.Table.States[1]["A"]
	if act.Kind != ActionShift || act.State != 0 {
		t.Fatalf("unexpected action: %v", act)
	}
	if g.Options.Start[0] != "start" {
		t.Fatalf("unexpected start: %v", g.Options.Start)
	}
}

func TestEncodeJSON_RoundTrip(t *testing.T) {
	g := readMathGrammar(t)

	data, err := EncodeJSON(g)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	testGrammarEqual(t, g, decoded)
}

func TestBinary_RoundTrip(t *testing.T) {
	g := readMathGrammar(t)

	data, err := g.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeBinary(data)
	if err != nil {
		t.Fatal(err)
	}
	testGrammarEqual(t, g, decoded)

	_, err = DecodeBinary([]byte("broken"))
	if err == nil {
		t.Fatal("expected error didn't occur")
	}
}

func testGrammarEqual(t *testing.T, expected, actual *CompiledGrammar) {
	t.Helper()

	if fmt.Sprint(expected.Options) != fmt.Sprint(actual.Options) {
		t.Fatalf("unexpected options; want: %+v, got: %+v", expected.Options, actual.Options)
	}
	if len(expected.Lexer.Terminals) != len(actual.Lexer.Terminals) {
		t.Fatalf("unexpected terminal count; want: %v, got: %v", len(expected.Lexer.Terminals), len(actual.Lexer.Terminals))
	}
	for i, et := range expected.Lexer.Terminals {
		at := actual.Lexer.Terminals[i]
		if et.Name != at.Name || et.Priority != at.Priority || !et.Pattern.Equal(at.Pattern) || et.Pattern.Raw != at.Pattern.Raw {
			t.Fatalf("unexpected terminal; want: %v, got: %v", et, at)
		}
		if et.Pattern.MinWidth() != at.Pattern.MinWidth() || et.Pattern.MaxWidth() != at.Pattern.MaxWidth() {
			t.Fatalf("unexpected width of %v", et.Name)
		}
	}
	if fmt.Sprint(expected.Lexer.Ignore) != fmt.Sprint(actual.Lexer.Ignore) {
		t.Fatalf("unexpected ignore list; want: %v, got: %v", expected.Lexer.Ignore, actual.Lexer.Ignore)
	}
	testRulesEqual(t, expected.Rules, actual.Rules)
	testRulesEqual(t, expected.Parser.Rules, actual.Parser.Rules)
	if fmt.Sprint(expected.Parser.Start) != fmt.Sprint(actual.Parser.Start) {
		t.Fatalf("unexpected start; want: %v, got: %v", expected.Parser.Start, actual.Parser.Start)
	}

	if len(expected.Table.States) != len(actual.Table.States) {
		t.Fatalf("unexpected state count; want: %v, got: %v", len(expected.Table.States), len(actual.Table.States))
	}
	for id, eacts := range expected.Table.States {
		aacts, ok := actual.Table.States[id]
		if !ok || len(eacts) != len(aacts) {
			t.Fatalf("unexpected actions of state %v; want: %v, got: %v", id, eacts, aacts)
		}
		for sym, eact := range eacts {
			aact, ok := aacts[sym]
			if !ok || eact.Kind != aact.Kind || eact.State != aact.State {
				t.Fatalf("unexpected action of state %v on %v; want: %v, got: %v", id, sym, eact, aact)
			}
			if eact.Kind == ActionReduce && !eact.Rule.Equal(aact.Rule) {
				t.Fatalf("unexpected rule of state %v on %v; want: %v, got: %v", id, sym, eact.Rule, aact.Rule)
			}
		}
	}
	if fmt.Sprint(expected.Table.StartStates) != fmt.Sprint(actual.Table.StartStates) ||
		fmt.Sprint(expected.Table.EndStates) != fmt.Sprint(actual.Table.EndStates) {
		t.Fatalf("unexpected start/end states")
	}
}

func testRulesEqual(t *testing.T, expected, actual []*Rule) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Fatalf("unexpected rule count; want: %v, got: %v", len(expected), len(actual))
	}
	for i, er := range expected {
		ar := actual[i]
		if !er.Equal(ar) || er.Order != ar.Order || er.Alias != ar.Alias {
			t.Fatalf("unexpected rule; want: %v, got: %v", er, ar)
		}
		for j, sym := range er.Expansion {
			if sym.FilterOut != ar.Expansion[j].FilterOut {
				t.Fatalf("unexpected filter flag of %v in %v", sym, er)
			}
		}
		eo, ao := er.Options, ar.Options
		if eo.Expand1 != ao.Expand1 || eo.KeepAllTokens != ao.KeepAllTokens || eo.TemplateSource != ao.TemplateSource || len(eo.EmptyIndices) != len(ao.EmptyIndices) {
			t.Fatalf("unexpected rule options of %v; want: %+v, got: %+v", er, eo, ao)
		}
	}
}

func TestRegexpWidth(t *testing.T) {
	tests := []struct {
		re  string
		min int
		max int
	}{
		{re: `a`, min: 1, max: 1},
		{re: `abc`, min: 3, max: 3},
		{re: `\d+`, min: 1, max: MaxWidth},
		{re: `[a-z]*`, min: 0, max: MaxWidth},
		{re: `(?:==|!=|<=|>=|<|>)`, min: 1, max: 2},
		{re: `(?:\*\*|\^)`, min: 1, max: 2},
		{re: `a?b`, min: 1, max: 2},
		{re: `x{2,5}`, min: 2, max: 5},
		{re: `x{3,}`, min: 3, max: MaxWidth},
		{re: `\b`, min: 0, max: 0},
		{re: `(?i:ab)`, min: 2, max: 2},
		{re: `あい`, min: 2, max: 2},
		{re: `".*?(?<!\\)(\\\\)*?"`, min: 2, max: MaxWidth},
		{re: `a(?=b)`, min: 1, max: 1},
		{re: `(?<=[(])x(?!\))`, min: 1, max: 1},
		{re: `\Gab\Z`, min: 2, max: 2},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			min, max, err := RegexpWidth(tt.re)
			if err != nil {
				t.Fatal(err)
			}
			if min != tt.min || max != tt.max {
				t.Fatalf("unexpected width; want: [%v, %v], got: [%v, %v]", tt.min, tt.max, min, max)
			}
		})
	}

	for _, re := range []string{`(`, `(a)\1`} {
		_, _, err := RegexpWidth(re)
		if err == nil {
			t.Fatalf("expected error didn't occur: %v", re)
		}
	}
}

func TestPattern_ToRegexp(t *testing.T) {
	tests := []struct {
		pattern *Pattern
		re      string
	}{
		{pattern: NewStrPattern("+"), re: `\+`},
		{pattern: NewStrPattern("if"), re: `if`},
		{pattern: NewStrPattern("if", "i"), re: `(?i:if)`},
		{pattern: NewREPattern(`\d+`), re: `\d+`},
		{pattern: NewREPattern(`a.b`, "s"), re: `(?s:a.b)`},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			if re := tt.pattern.ToRegexp(); re != tt.re {
				t.Fatalf("unexpected regexp; want: %v, got: %v", tt.re, re)
			}
		})
	}
}

func TestIsTerminalName(t *testing.T) {
	tests := []struct {
		name string
		term bool
	}{
		{name: "NUMBER", term: true},
		{name: "OP_1", term: true},
		{name: "$END", term: true},
		{name: "__ANON_0", term: true},
		{name: "expr", term: false},
		{name: "expr_1", term: false},
		{name: "lassoc{expr_0,expr_1,OP_0}", term: false},
		{name: "__expr_func_call_star_0", term: false},
		{name: "_", term: false},
		{name: "", term: false},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			if IsTerminalName(tt.name) != tt.term {
				t.Fatalf("unexpected result of %v; want: %v", tt.name, tt.term)
			}
		})
	}
}

func TestRegexFlags(t *testing.T) {
	tests := []struct {
		bits  int
		flags string
		err   bool
	}{
		{bits: 0, flags: ""},
		{bits: 2, flags: "i"},
		{bits: 2 | 8 | 16, flags: "ims"},
		{bits: 32, flags: ""},
		{bits: 64, err: true},
		{bits: 4, err: true},
		{bits: 1024, err: true},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			flags, err := RegexFlags(tt.bits)
			if tt.err {
				if err == nil {
					t.Fatal("expected error didn't occur")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if flags != tt.flags {
				t.Fatalf("unexpected flags; want: %v, got: %v", tt.flags, flags)
			}
		})
	}
}

func TestToken(t *testing.T) {
	a := NewToken("NUMBER", "1", 0, 1, 1)
	b := NewToken("NUMBER", "1", 10, 2, 3)
	c := NewToken("ID", "1", 0, 1, 1)
	if !a.Equal(b) {
		t.Fatal("tokens of the same type and text must be equal")
	}
	if a.Equal(c) {
		t.Fatal("tokens of different types must not be equal")
	}
	if s := NewToken("OP", "it's", 0, 1, 1).String(); s != `Token('OP', 'it\'s')` {
		t.Fatalf("unexpected string: %v", s)
	}

	b.EndLine, b.EndColumn, b.EndPos = 2, 4, 11
	end := NewTokenBorrowPos(TokenTypeEnd, "", b)
	if end.StartPos != 10 || end.Line != 2 || end.Column != 3 || end.EndPos != 11 {
		t.Fatalf("unexpected position: %+v", end)
	}
	u := b.Update("ID", "")
	if u.Type != "ID" || u.Value != "1" || u.StartPos != 10 {
		t.Fatalf("unexpected token: %+v", u)
	}
}

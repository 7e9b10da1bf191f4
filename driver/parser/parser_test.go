package parser

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/nihei9/larkrt/driver/lexer"
	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/spec/grammar"
	"github.com/nihei9/larkrt/tree"
)

func readMathGrammar(t *testing.T) *grammar.CompiledGrammar {
	t.Helper()

	src, err := os.ReadFile("../../grammars/math/math.json")
	if err != nil {
		t.Fatal(err)
	}
	g, err := grammar.DecodeJSON(src)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

type mathParser struct {
	gram   *grammar.CompiledGrammar
	parser *Parser
	lexer  lexer.Lexer
}

func newMathParser(t *testing.T, tr *tree.Transformer, opts ...TreeBuilderOption) *mathParser {
	t.Helper()

	g := readMathGrammar(t)
	states := map[int][]string{}
	for id, row := range g.Table.States {
		for sym := range row {
			states[id] = append(states[id], sym)
		}
	}
	l, err := lexer.NewContextualLexer(&lexer.Conf{
		Terminals: g.Lexer.Terminals,
		Ignore:    g.Lexer.Ignore,
	}, states, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewTreeBuilder(g.Rules, opts...)
	if err != nil {
		t.Fatal(err)
	}
	cbs, err := b.CreateCallbacks(tr)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewParser(g.Table, cbs, WithTerminals(g.TerminalsByName()))
	if err != nil {
		t.Fatal(err)
	}
	return &mathParser{
		gram:   g,
		parser: p,
		lexer:  l,
	}
}

func (m *mathParser) parse(src string, onError OnErrorFunc) (any, error) {
	return m.parser.Parse(lexer.NewThread(m.lexer, src), "start", onError)
}

func tr(data string, children ...any) *tree.Tree {
	return tree.New(data, children, nil)
}

func tk(typ, value string) *grammar.Token {
	return &grammar.Token{
		Type:  typ,
		Value: value,
	}
}

func num(v string) *tree.Tree {
	return tr("number", tk("NUMBER", v))
}

func id(v string) *tree.Tree {
	return tr("var", tk("ID", v))
}

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		src  string
		tree *tree.Tree
	}{
		{
			src:  "1",
			tree: num("1"),
		},
		{
			src:  "1+2*3",
			tree: tr("expr_binary", num("1"), tk("OP_4", "+"), tr("expr_binary", num("2"), tk("OP_5", "*"), num("3"))),
		},
		{
			src:  "(1+2)*3",
			tree: tr("expr_binary", tr("expr_binary", num("1"), tk("OP_4", "+"), num("2")), tk("OP_5", "*"), num("3")),
		},
		{
			src:  "f(x, 1)",
			tree: tr("expr_func_call", tk("ID", "f"), id("x"), num("1")),
		},
		{
			src:  "x^2",
			tree: tr("expr_binary", id("x"), tk("OP_1", "^"), num("2")),
		},
		{
			src:  "2**3**2",
			tree: tr("expr_binary", num("2"), tk("OP_7", "**"), tr("expr_binary", num("3"), tk("OP_7", "**"), num("2"))),
		},
		{
			src:  "-x",
			tree: tr("expr_unary", tk("OP_6", "-"), id("x")),
		},
		{
			src:  "!~x",
			tree: tr("expr_unary", tk("OP_6", "!"), tr("expr_unary", tk("OP_6", "~"), id("x"))),
		},
		{
			src:  "1+-2",
			tree: tr("expr_binary", num("1"), tk("OP_4", "+"), tr("expr_unary", tk("OP_6", "-"), num("2"))),
		},
		{
			src:  "f()",
			tree: tr("expr_func_call", tk("ID", "f")),
		},
		{
			src:  "f(1,)",
			tree: tr("expr_func_call", tk("ID", "f"), num("1")),
		},
		{
			src:  "f(1,2,3)",
			tree: tr("expr_func_call", tk("ID", "f"), num("1"), num("2"), num("3")),
		},
		{
			src:  "g(1,2,)",
			tree: tr("expr_func_call", tk("ID", "g"), num("1"), num("2")),
		},
		{
			src:  "a==b",
			tree: tr("expr_binary", id("a"), tk("OP_3", "=="), id("b")),
		},
		{
			src:  "1|2^3&4",
			tree: tr("expr_binary", num("1"), tk("OP_0", "|"), tr("expr_binary", num("2"), tk("OP_1", "^"), tr("expr_binary", num("3"), tk("OP_2", "&"), num("4")))),
		},
		{
			src:  " x \n+\n 1 ",
			tree: tr("expr_binary", id("x"), tk("OP_4", "+"), num("1")),
		},
	}
	m := newMathParser(t, nil)
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			res, err := m.parse(tt.src, nil)
			if err != nil {
				t.Fatal(err)
			}
			actual, ok := res.(*tree.Tree)
			if !ok {
				t.Fatalf("a parse result must be a tree; got: %T", res)
			}
			if !actual.Equal(tt.tree) {
				t.Fatalf("unexpected tree; want: %v, got: %v", tt.tree, actual)
			}
		})
	}
}

func TestParser_Parse_Deterministic(t *testing.T) {
	m := newMathParser(t, nil)
	var first *tree.Tree
	for i := 0; i < 5; i++ {
		res, err := m.parse("f(1, 2*x) - -3 == y", nil)
		if err != nil {
			t.Fatal(err)
		}
		actual := res.(*tree.Tree)
		if first == nil {
			first = actual
			continue
		}
		if !actual.Equal(first) {
			t.Fatalf("parses of the same text must be equal; want: %v, got: %v", first, actual)
		}
	}
}

func TestParser_PropagatePositions(t *testing.T) {
	m := newMathParser(t, nil, PropagatePositions())

	t.Run("a tree covers its children and an inlined tree keeps its own position", func(t *testing.T) {
		res, err := m.parse("(1+2)*3", nil)
		if err != nil {
			t.Fatal(err)
		}
		root := res.(*tree.Tree)
		meta := root.Meta()
		if meta.Empty || meta.Line != 1 || meta.Column != 1 || meta.StartPos != 0 || meta.EndColumn != 8 || meta.EndPos != 7 {
			t.Fatalf("unexpected meta of the root: %+v", meta)
		}

		inner := root.Children[0].(*tree.Tree).Meta()
		if inner.Column != 2 || inner.StartPos != 1 || inner.EndColumn != 5 || inner.EndPos != 4 {
			t.Fatalf("unexpected meta of the parenthesized tree: %+v", inner)
		}
		if inner.ContainerColumn != 1 || inner.ContainerStartPos != 0 || inner.ContainerEndColumn != 6 || inner.ContainerEndPos != 5 {
			t.Fatalf("the container of the parenthesized tree must include the parentheses: %+v", inner)
		}
	})

	t.Run("multiple lines", func(t *testing.T) {
		res, err := m.parse("x\n+\n 1", nil)
		if err != nil {
			t.Fatal(err)
		}
		root := res.(*tree.Tree)
		meta := root.Meta()
		if meta.Line != 1 || meta.Column != 1 || meta.EndLine != 3 || meta.EndColumn != 3 || meta.EndPos != 6 {
			t.Fatalf("unexpected meta of the root: %+v", meta)
		}
		op := root.Children[1].(*grammar.Token)
		if op.Line != 2 || op.Column != 1 || op.EndLine != 2 || op.EndColumn != 2 {
			t.Fatalf("unexpected position of the operator: %+v", op)
		}
	})

	t.Run("a node filter skips children", func(t *testing.T) {
		m := newMathParser(t, nil, NodeFilter(func(c any) bool {
			tok, ok := c.(*grammar.Token)
			return !ok || tok.Type != "ID"
		}))
		res, err := m.parse("f(1)", nil)
		if err != nil {
			t.Fatal(err)
		}
		meta := res.(*tree.Tree).Meta()
		if meta.Column != 2 || meta.EndColumn != 5 {
			t.Fatalf("the position must start after the function name; got: %+v", meta)
		}
	})
}

func TestParser_Errors(t *testing.T) {
	m := newMathParser(t, nil)

	t.Run("unexpected end of input", func(t *testing.T) {
		_, err := m.parse("1+", nil)
		var eof *verr.UnexpectedEOF
		if !errors.As(err, &eof) {
			t.Fatalf("expected UnexpectedEOF; got: %v", err)
		}
		tok := eof.Token
		if tok.Type != grammar.TokenTypeEnd || tok.StartPos != 1 || tok.Line != 1 || tok.Column != 2 || tok.EndColumn != 3 || tok.EndPos != 2 {
			t.Fatalf("the end marker must borrow the position of the last token; got: %+v", tok)
		}
		if strings.Join(eof.Expected, " ") != "ID LPAR NUMBER OP_6" {
			t.Fatalf("unexpected expected terminals: %v", eof.Expected)
		}
		if last := eof.LastToken(); last == nil || last.Type != "OP_4" || last.Value != "+" {
			t.Fatalf("unexpected last token: %v", last)
		}
		var ut *verr.UnexpectedToken
		if !errors.As(err, &ut) {
			t.Fatalf("UnexpectedEOF must be an UnexpectedToken too")
		}
		if InteractiveOf(eof) == nil {
			t.Fatalf("an interactive parser must be attached")
		}
		if !strings.HasPrefix(err.Error(), "Unexpected end-of-input at line 1, column 2.") {
			t.Fatalf("unexpected message: %v", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := m.parse("", nil)
		var eof *verr.UnexpectedEOF
		if !errors.As(err, &eof) {
			t.Fatalf("expected UnexpectedEOF; got: %v", err)
		}
		if eof.Token.StartPos != 0 || eof.Token.Line != 1 || eof.Token.Column != 1 {
			t.Fatalf("unexpected position: %+v", eof.Token)
		}
		if eof.LastToken() != nil {
			t.Fatalf("an empty input has no last token; got: %v", eof.LastToken())
		}
	})

	t.Run("unexpected characters", func(t *testing.T) {
		_, err := m.parse("1 $ 2", nil)
		var uc *verr.UnexpectedCharacters
		if !errors.As(err, &uc) {
			t.Fatalf("expected UnexpectedCharacters; got: %v", err)
		}
		if uc.Pos != 2 || uc.Line != 1 || uc.Column != 3 || uc.Char != "$" {
			t.Fatalf("unexpected position: %v %v:%v %q", uc.Pos, uc.Line, uc.Column, uc.Char)
		}
		if strings.Join(uc.Allowed, " ") != "COMMA OP_0 OP_2 OP_3 OP_4 OP_5 OP_7 RPAR" {
			t.Fatalf("unexpected allowed terminals: %v", uc.Allowed)
		}
		if len(uc.TokenHistory) != 1 || uc.TokenHistory[0].Value != "1" {
			t.Fatalf("unexpected history: %v", uc.TokenHistory)
		}
	})

	t.Run("a terminal the state doesn't accept", func(t *testing.T) {
		_, err := m.parse("1 2", nil)
		var ut *verr.UnexpectedToken
		if !errors.As(err, &ut) {
			t.Fatalf("expected UnexpectedToken; got: %v", err)
		}
		var eof *verr.UnexpectedEOF
		if errors.As(err, &eof) {
			t.Fatalf("the error must not be UnexpectedEOF")
		}
		if ut.Token.Type != "NUMBER" || ut.Token.Value != "2" || ut.Token.StartPos != 2 || ut.Token.Column != 3 {
			t.Fatalf("unexpected token: %+v", ut.Token)
		}
		if strings.Join(ut.Expected, " ") != "COMMA OP_0 OP_2 OP_3 OP_4 OP_5 OP_7 RPAR" {
			t.Fatalf("unexpected expected terminals: %v", ut.Expected)
		}
		if strings.Join(ut.Accepts(), " ") != "$END OP_0 OP_1 OP_2 OP_3 OP_4 OP_5 OP_7" {
			t.Fatalf("unexpected accepted terminals: %v", ut.Accepts())
		}
	})

	t.Run("unknown start", func(t *testing.T) {
		_, err := m.parser.Parse(lexer.NewThread(m.lexer, "1"), "expr", nil)
		var confErr *verr.ConfigurationError
		if !errors.As(err, &confErr) {
			t.Fatalf("expected ConfigurationError; got: %v", err)
		}
	})
}

func TestParser_OnError(t *testing.T) {
	m := newMathParser(t, nil)

	t.Run("skipping characters and tokens", func(t *testing.T) {
		var errs []verr.UnexpectedInput
		res, err := m.parse("1 $ 2", func(e verr.UnexpectedInput) bool {
			errs = append(errs, e)
			return true
		})
		if err != nil {
			t.Fatal(err)
		}
		if !res.(*tree.Tree).Equal(num("1")) {
			t.Fatalf("unexpected tree: %v", res)
		}
		if len(errs) != 2 {
			t.Fatalf("unexpected error count; want: %v, got: %v", 2, len(errs))
		}
		if _, ok := errs[0].(*verr.UnexpectedCharacters); !ok {
			t.Fatalf("the first error must be UnexpectedCharacters; got: %T", errs[0])
		}
		if _, ok := errs[1].(*verr.UnexpectedToken); !ok {
			t.Fatalf("the second error must be UnexpectedToken; got: %T", errs[1])
		}
	})

	t.Run("a handler declining to recover", func(t *testing.T) {
		_, err := m.parse("1 $ 2", func(e verr.UnexpectedInput) bool {
			return false
		})
		var uc *verr.UnexpectedCharacters
		if !errors.As(err, &uc) {
			t.Fatalf("expected UnexpectedCharacters; got: %v", err)
		}
	})

	t.Run("the end of input can't be recovered from forever", func(t *testing.T) {
		calls := 0
		_, err := m.parse("1+", func(e verr.UnexpectedInput) bool {
			calls++
			return true
		})
		var eof *verr.UnexpectedEOF
		if !errors.As(err, &eof) {
			t.Fatalf("expected UnexpectedEOF; got: %v", err)
		}
		if calls != 1 {
			t.Fatalf("unexpected call count; want: %v, got: %v", 1, calls)
		}
	})

	t.Run("feeding a missing token", func(t *testing.T) {
		res, err := m.parse("1+", func(e verr.UnexpectedInput) bool {
			ip := InteractiveOf(e)
			_, err := ip.FeedToken(grammar.NewToken("NUMBER", "0", 2, 1, 3))
			return err == nil
		})
		if err != nil {
			t.Fatal(err)
		}
		want := tr("expr_binary", num("1"), tk("OP_4", "+"), num("0"))
		if !res.(*tree.Tree).Equal(want) {
			t.Fatalf("unexpected tree; want: %v, got: %v", want, res)
		}
	})
}

func TestInteractiveParser(t *testing.T) {
	m := newMathParser(t, nil)
	newIP := func(t *testing.T, src string) *InteractiveParser {
		t.Helper()
		ip, err := m.parser.ParseInteractive(lexer.NewThread(m.lexer, src), "start")
		if err != nil {
			t.Fatal(err)
		}
		return ip
	}

	t.Run("exhausting the lexer and feeding the end marker", func(t *testing.T) {
		ip := newIP(t, "1+2")
		toks, err := ip.ExhaustLexer()
		if err != nil {
			t.Fatal(err)
		}
		if len(toks) != 3 {
			t.Fatalf("unexpected token count; want: %v, got: %v", 3, len(toks))
		}
		acc, err := ip.Accepts()
		if err != nil {
			t.Fatal(err)
		}
		if strings.Join(verr.SortedNames(acc), " ") != "$END OP_0 OP_1 OP_2 OP_3 OP_4 OP_5 OP_7" {
			t.Fatalf("unexpected accepted terminals: %v", verr.SortedNames(acc))
		}
		if !strings.HasSuffix(ip.Pretty(), "stack size: 4") {
			t.Fatalf("unexpected pretty output: %v", ip.Pretty())
		}
		res, err := ip.FeedEOF(toks[len(toks)-1])
		if err != nil {
			t.Fatal(err)
		}
		want := tr("expr_binary", num("1"), tk("OP_4", "+"), num("2"))
		if !res.(*tree.Tree).Equal(want) {
			t.Fatalf("unexpected tree; want: %v, got: %v", want, res)
		}
	})

	t.Run("accepts at the start", func(t *testing.T) {
		ip := newIP(t, "")
		acc, err := ip.Accepts()
		if err != nil {
			t.Fatal(err)
		}
		if strings.Join(verr.SortedNames(acc), " ") != "ID LPAR NUMBER OP_6" {
			t.Fatalf("unexpected accepted terminals: %v", verr.SortedNames(acc))
		}
		if _, ok := ip.Choices()["expr"]; !ok {
			t.Fatalf("choices must include goto transitions")
		}
		if ip.ParserState().StackSize() != 1 {
			t.Fatalf("computing accepts must not change the parser")
		}
	})

	t.Run("iterating tokens", func(t *testing.T) {
		ip := newIP(t, "f(1)")
		stream := ip.IterParse()
		var sizes []int
		for {
			_, ok, err := stream.Next()
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				break
			}
			sizes = append(sizes, ip.ParserState().StackSize())
		}
		if len(sizes) != 4 || sizes[0] != 1 {
			t.Fatalf("a token must be fed after it is returned; got stack sizes: %v", sizes)
		}
		res, err := ip.ResumeParse()
		if err != nil {
			t.Fatal(err)
		}
		want := tr("expr_func_call", tk("ID", "f"), num("1"))
		if !res.(*tree.Tree).Equal(want) {
			t.Fatalf("unexpected tree; want: %v, got: %v", want, res)
		}
	})

	t.Run("copies are independent", func(t *testing.T) {
		ip := newIP(t, "1")
		c := ip.Copy()
		if !ip.Equal(c) {
			t.Fatalf("a copy must be equal to the original")
		}
		_, err := c.FeedToken(grammar.NewToken("NUMBER", "1", 0, 1, 1))
		if err != nil {
			t.Fatal(err)
		}
		if ip.Equal(c) {
			t.Fatalf("feeding a copy must not change the original")
		}
		if ip.ParserState().StackSize() != 1 {
			t.Fatalf("unexpected stack size of the original: %v", ip.ParserState().StackSize())
		}
	})

	t.Run("immutable", func(t *testing.T) {
		im := newIP(t, "+2").AsImmutable()
		im2, err := im.FeedToken(grammar.NewToken("NUMBER", "1", 0, 1, 1))
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := im.Choices()["NUMBER"]; !ok {
			t.Fatalf("the original must stay at the start")
		}
		if _, ok := im2.Choices()[grammar.TokenTypeEnd]; !ok {
			t.Fatalf("the new parser must have consumed the token")
		}
		if im.Equal(im2) {
			t.Fatalf("parsers in different states must not be equal")
		}

		res, err := im2.ResumeParse()
		if err != nil {
			t.Fatal(err)
		}
		want := tr("expr_binary", num("1"), tk("OP_4", "+"), num("2"))
		if !res.(*tree.Tree).Equal(want) {
			t.Fatalf("unexpected tree; want: %v, got: %v", want, res)
		}
		if _, ok := im2.Choices()[grammar.TokenTypeEnd]; !ok {
			t.Fatalf("resuming an immutable parser must not change it")
		}
	})
}

func TestParser_Transformer(t *testing.T) {
	binary := func(children []any, meta *tree.Meta) (any, error) {
		l := children[0].(int)
		r := children[2].(int)
		switch op := children[1].(*grammar.Token).Value; op {
		case "+":
			return l + r, nil
		case "-":
			return l - r, nil
		case "*":
			return l * r, nil
		default:
			return nil, fmt.Errorf("unsupported operator: %v", op)
		}
	}

	t.Run("rule handlers replace trees", func(t *testing.T) {
		m := newMathParser(t, &tree.Transformer{
			Rules: map[string]tree.RuleFunc{
				"number": func(children []any, meta *tree.Meta) (any, error) {
					return strconv.Atoi(children[0].(*grammar.Token).Value)
				},
				"expr_binary": binary,
			},
		})
		tests := []struct {
			src string
			v   int
		}{
			{src: "1+2*3", v: 7},
			{src: "(1+2)*3", v: 9},
			{src: "10-2-3", v: 5},
		}
		for i, tt := range tests {
			t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
				res, err := m.parse(tt.src, nil)
				if err != nil {
					t.Fatal(err)
				}
				if res != tt.v {
					t.Fatalf("unexpected value; want: %v, got: %v", tt.v, res)
				}
			})
		}
	})

	t.Run("token handlers run on shifts", func(t *testing.T) {
		m := newMathParser(t, &tree.Transformer{
			Rules: map[string]tree.RuleFunc{
				"number": func(children []any, meta *tree.Meta) (any, error) {
					return children[0], nil
				},
				"expr_binary": binary,
			},
			Tokens: map[string]tree.TokenFunc{
				"NUMBER": func(tok *grammar.Token) (any, error) {
					return strconv.Atoi(tok.Value)
				},
			},
		})
		res, err := m.parse("2*3+4", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res != 10 {
			t.Fatalf("unexpected value; want: %v, got: %v", 10, res)
		}
	})

	t.Run("errors of handlers are returned as they are", func(t *testing.T) {
		m := newMathParser(t, &tree.Transformer{
			Rules: map[string]tree.RuleFunc{
				"number": func(children []any, meta *tree.Meta) (any, error) {
					return strconv.Atoi(children[0].(*grammar.Token).Value)
				},
				"expr_binary": binary,
			},
		})
		_, err := m.parse("1/2", nil)
		if err == nil || err.Error() != "unsupported operator: /" {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rules without a handler build trees", func(t *testing.T) {
		var names []string
		m := newMathParser(t, &tree.Transformer{
			Default: func(data string, children []any, meta *tree.Meta) (any, error) {
				names = append(names, data)
				return tree.New(strings.ToUpper(data), children, meta), nil
			},
		})
		res, err := m.parse("-x", nil)
		if err != nil {
			t.Fatal(err)
		}
		want := tr("expr_unary", tk("OP_6", "-"), tr("var", tk("ID", "x")))
		actual, ok := res.(*tree.Tree)
		if !ok || !actual.Equal(want) {
			t.Fatalf("unexpected tree; want: %v, got: %v", want, res)
		}
		if len(names) != 0 {
			t.Fatalf("the default handler must not run while parsing: %v", names)
		}
	})
}

func TestTreeBuilder(t *testing.T) {
	b := grammar.NewTerminal("B", false)
	semi := grammar.NewTerminal("SEMI", true)
	pos := func(typ, value string, start int) *grammar.Token {
		return &grammar.Token{
			Type:      typ,
			Value:     value,
			StartPos:  start,
			Line:      1,
			Column:    start + 1,
			EndLine:   1,
			EndColumn: start + 1 + len(value),
			EndPos:    start + len(value),
		}
	}

	optional := &grammar.Rule{
		Origin:    grammar.NewNonTerminal("a"),
		Expansion: []*grammar.Symbol{b, semi},
		Options: &grammar.RuleOptions{
			EmptyIndices: []bool{false, true, false},
		},
	}
	inlined := &grammar.Rule{
		Origin:    grammar.NewNonTerminal("c"),
		Expansion: []*grammar.Symbol{b},
		Options: &grammar.RuleOptions{
			Expand1: true,
		},
	}
	spliced := &grammar.Rule{
		Origin:    grammar.NewNonTerminal("d"),
		Expansion: []*grammar.Symbol{grammar.NewNonTerminal("_items"), b},
	}
	keep := &grammar.Rule{
		Origin:    grammar.NewNonTerminal("e"),
		Expansion: []*grammar.Symbol{b, semi},
		Options: &grammar.RuleOptions{
			KeepAllTokens: true,
		},
	}
	rules := []*grammar.Rule{optional, inlined, spliced, keep}

	tests := []struct {
		caption  string
		opts     []TreeBuilderOption
		rule     *grammar.Rule
		children []any
		result   any
	}{
		{
			caption:  "filtered-out tokens are dropped",
			rule:     optional,
			children: []any{tk("B", "b"), tk("SEMI", ";")},
			result:   tr("a", tk("B", "b")),
		},
		{
			caption:  "placeholders fill absent optional symbols",
			opts:     []TreeBuilderOption{MaybePlaceholders()},
			rule:     optional,
			children: []any{tk("B", "b"), tk("SEMI", ";")},
			result:   tr("a", tk("B", "b"), nil),
		},
		{
			caption:  "a single child is inlined",
			rule:     inlined,
			children: []any{tk("B", "b")},
			result:   tk("B", "b"),
		},
		{
			caption:  "children of a rule starting with _ are spliced",
			rule:     spliced,
			children: []any{tr("_items", tk("B", "1"), tk("B", "2")), tk("B", "3")},
			result:   tr("d", tk("B", "1"), tk("B", "2"), tk("B", "3")),
		},
		{
			caption:  "a rule keeping all tokens",
			rule:     keep,
			children: []any{tk("B", "b"), tk("SEMI", ";")},
			result:   tr("e", tk("B", "b"), tk("SEMI", ";")),
		},
		{
			caption:  "all rules keeping all tokens",
			opts:     []TreeBuilderOption{KeepAllTokens()},
			rule:     optional,
			children: []any{tk("B", "b"), tk("SEMI", ";")},
			result:   tr("a", tk("B", "b"), tk("SEMI", ";")),
		},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v %v", i, tt.caption), func(t *testing.T) {
			tb, err := NewTreeBuilder(rules, tt.opts...)
			if err != nil {
				t.Fatal(err)
			}
			cbs, err := tb.CreateCallbacks(nil)
			if err != nil {
				t.Fatal(err)
			}
			res, err := cbs.Rules[tt.rule.Key()](tt.children)
			if err != nil {
				t.Fatal(err)
			}
			switch want := tt.result.(type) {
			case *tree.Tree:
				actual, ok := res.(*tree.Tree)
				if !ok || !actual.Equal(want) {
					t.Fatalf("unexpected result; want: %v, got: %v", want, res)
				}
			case *grammar.Token:
				actual, ok := res.(*grammar.Token)
				if !ok || !actual.Equal(want) {
					t.Fatalf("unexpected result; want: %v, got: %v", want, res)
				}
			}
		})
	}

	t.Run("positions include filtered-out tokens in the container", func(t *testing.T) {
		tb, err := NewTreeBuilder(rules, PropagatePositions())
		if err != nil {
			t.Fatal(err)
		}
		cbs, err := tb.CreateCallbacks(nil)
		if err != nil {
			t.Fatal(err)
		}
		res, err := cbs.Rules[optional.Key()]([]any{pos("B", "bb", 0), pos("SEMI", ";", 2)})
		if err != nil {
			t.Fatal(err)
		}
		meta := res.(*tree.Tree).Meta()
		if meta.StartPos != 0 || meta.EndPos != 3 || meta.EndColumn != 4 {
			t.Fatalf("unexpected meta: %+v", meta)
		}
		if meta.ContainerStartPos != 0 || meta.ContainerEndPos != 3 {
			t.Fatalf("unexpected container: %+v", meta)
		}
	})

	t.Run("mismatched empty indices", func(t *testing.T) {
		broken := &grammar.Rule{
			Origin:    grammar.NewNonTerminal("f"),
			Expansion: []*grammar.Symbol{b},
			Options: &grammar.RuleOptions{
				EmptyIndices: []bool{false, false},
			},
		}
		_, err := NewTreeBuilder([]*grammar.Rule{broken}, MaybePlaceholders())
		var gramErr *verr.GrammarError
		if !errors.As(err, &gramErr) {
			t.Fatalf("expected GrammarError; got: %v", err)
		}
	})

	t.Run("duplicate rules", func(t *testing.T) {
		tb, err := NewTreeBuilder([]*grammar.Rule{inlined, inlined})
		if err != nil {
			t.Fatal(err)
		}
		_, err = tb.CreateCallbacks(nil)
		var gramErr *verr.GrammarError
		if !errors.As(err, &gramErr) {
			t.Fatalf("expected GrammarError; got: %v", err)
		}
	})
}

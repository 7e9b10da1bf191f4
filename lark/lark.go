package lark

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/nihei9/larkrt/driver/lexer"
	"github.com/nihei9/larkrt/driver/parser"
	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/spec/grammar"
	"github.com/nihei9/larkrt/tree"
)

var log = commonlog.GetLogger("larkrt.lark")

// Lark parses texts with a compiled grammar. A Lark is safe for concurrent use by multiple goroutines.
type Lark struct {
	gram      *grammar.CompiledGrammar
	opts      *options
	start     []string
	terminals map[string]*grammar.TerminalDef
	lexerConf *lexer.Conf
	lexer     lexer.Lexer
	parser    *parser.Parser

	lexOnce      [2]sync.Once
	lexLexers    [2]*lexer.BasicLexer
	lexLexerErrs [2]error
}

// Load reads a grammar in the memoized JSON form.
func Load(r io.Reader, opts ...Option) (*Lark, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read a grammar: %w", err)
	}
	g, err := grammar.DecodeJSON(data)
	if err != nil {
		return nil, &verr.GrammarError{
			Message: "invalid grammar",
			Cause:   err,
		}
	}
	return New(g, opts...)
}

// LoadBinary reads a grammar in the binary form.
func LoadBinary(r io.Reader, opts ...Option) (*Lark, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read a grammar: %w", err)
	}
	g, err := grammar.DecodeBinary(data)
	if err != nil {
		return nil, &verr.GrammarError{
			Message: "invalid grammar",
			Cause:   err,
		}
	}
	return New(g, opts...)
}

func New(g *grammar.CompiledGrammar, opts ...Option) (*Lark, error) {
	if g == nil {
		return nil, verr.NewConfigurationError("a grammar is required")
	}
	if err := g.Validate(); err != nil {
		return nil, &verr.GrammarError{
			Message: "invalid grammar",
			Cause:   err,
		}
	}
	o := &options{}
	for _, opt := range opts {
		err := opt(o)
		if err != nil {
			return nil, err
		}
	}

	parserType := g.Options.Parser
	if g.Parser != nil && g.Parser.ParserType != "" {
		parserType = g.Parser.ParserType
	}
	if parserType != grammar.ParserLALR {
		return nil, verr.NewConfigurationError("Got %v, expected one of [%v]", parserType, grammar.ParserLALR)
	}

	lexerType := o.lexerType
	if lexerType == "" {
		lexerType = g.Lexer.LexerType
	}
	if lexerType == "" || lexerType == "auto" {
		lexerType = grammar.LexerContextual
	}
	if lexerType != grammar.LexerBasic && lexerType != grammar.LexerContextual {
		return nil, verr.NewConfigurationError("Parser '%v' does not support lexer %v, expected one of [%v %v]",
			parserType, lexerType, grammar.LexerBasic, grammar.LexerContextual)
	}

	start := o.start
	if len(start) == 0 {
		start = g.Parser.Start
	}
	for _, s := range start {
		if _, ok := g.Table.StartStates[s]; !ok {
			return nil, verr.NewConfigurationError("Unknown start rule %v. Must be one of %v", s, tableStarts(g.Table))
		}
	}

	flags := g.Lexer.GRegexFlags
	if o.regexFlags != nil {
		flags = *o.regexFlags
	}
	terms := g.TerminalsByName()
	l := &Lark{
		gram:      g,
		opts:      o,
		start:     start,
		terminals: terms,
		lexerConf: &lexer.Conf{
			Terminals:       g.Lexer.Terminals,
			Ignore:          g.Lexer.Ignore,
			Callbacks:       o.lexerCallbacks,
			RegexFlags:      flags,
			TerminalsByName: terms,
		},
	}

	callbacks, err := l.prepareCallbacks()
	if err != nil {
		return nil, err
	}
	l.parser, err = parser.NewParser(g.Table, callbacks, parser.Debug(o.debug || g.Options.Debug), parser.WithTerminals(terms))
	if err != nil {
		return nil, err
	}

	var lex lexer.Lexer
	switch lexerType {
	case grammar.LexerBasic:
		lex, err = lexer.NewBasicLexer(l.lexerConf)
	case grammar.LexerContextual:
		lex, err = l.newContextualLexer()
	}
	if err != nil {
		return nil, err
	}
	if o.postLex != nil {
		lex = &lexer.PostLexConnector{
			Lexer:     lex,
			PostLexer: o.postLex,
		}
	}
	l.lexer = lex

	log.Debugf("loaded a grammar: %v terminals, %v rules, %v states, %v lexer", len(g.Lexer.Terminals), len(g.Rules), len(g.Table.States), lexerType)

	return l, nil
}

func tableStarts(t *grammar.ParseTable) []string {
	starts := make([]string, 0, len(t.StartStates))
	for s := range t.StartStates {
		starts = append(starts, s)
	}
	sort.Strings(starts)
	return starts
}

func (l *Lark) prepareCallbacks() (*parser.Callbacks, error) {
	var tbOpts []parser.TreeBuilderOption
	if l.opts.nodeFilter != nil {
		tbOpts = append(tbOpts, parser.NodeFilter(l.opts.nodeFilter))
	} else if l.opts.propagatePositions || l.gram.Options.PropagatePositions {
		tbOpts = append(tbOpts, parser.PropagatePositions())
	}
	maybePlaceholders := l.gram.Options.MaybePlaceholders
	if l.opts.maybePlaceholders != nil {
		maybePlaceholders = *l.opts.maybePlaceholders
	}
	if maybePlaceholders {
		tbOpts = append(tbOpts, parser.MaybePlaceholders())
	}
	if l.opts.keepAllTokens || l.gram.Options.KeepAllTokens {
		tbOpts = append(tbOpts, parser.KeepAllTokens())
	}

	b, err := parser.NewTreeBuilder(l.gram.Rules, tbOpts...)
	if err != nil {
		return nil, err
	}
	return b.CreateCallbacks(l.opts.transformer)
}

func (l *Lark) newContextualLexer() (*lexer.ContextualLexer, error) {
	states := make(map[int][]string, len(l.gram.Table.States))
	for id, row := range l.gram.Table.States {
		syms := make([]string, 0, len(row))
		for sym := range row {
			syms = append(syms, sym)
		}
		states[id] = syms
	}
	var alwaysAccept []string
	if l.opts.postLex != nil {
		alwaysAccept = l.opts.postLex.AlwaysAccept()
	}
	return lexer.NewContextualLexer(l.lexerConf, states, alwaysAccept)
}

func (l *Lark) verifyStart(start string) (string, error) {
	if start == "" {
		if len(l.start) > 1 {
			return "", verr.NewConfigurationError("Lark initialized with more than 1 possible start rule. Must specify which start rule to parse")
		}
		if len(l.start) == 0 {
			return "", verr.NewConfigurationError("no start rule is available")
		}
		return l.start[0], nil
	}
	for _, s := range l.start {
		if s == start {
			return start, nil
		}
	}
	return "", verr.NewConfigurationError("Unknown start rule %v. Must be one of %v", start, l.start)
}

// Parse parses `text` and returns the tree, or the value the transformer returns when one was given.
// A failed parse returns one of the UnexpectedInput errors unless OnError recovers from it.
func (l *Lark) Parse(text string, opts ...ParseOption) (any, error) {
	o := &parseOptions{}
	for _, opt := range opts {
		opt(o)
	}
	start, err := l.verifyStart(o.start)
	if err != nil {
		return nil, err
	}
	return l.parser.Parse(lexer.NewThread(l.lexer, text), start, o.onError)
}

// ParseTree is Parse for a Lark without a transformer replacing the root.
func (l *Lark) ParseTree(text string, opts ...ParseOption) (*tree.Tree, error) {
	res, err := l.Parse(text, opts...)
	if err != nil {
		return nil, err
	}
	t, ok := res.(*tree.Tree)
	if !ok {
		return nil, fmt.Errorf("the parse result is not a tree: %T", res)
	}
	return t, nil
}

// ParseInteractive returns an interactive parser positioned before the first token of `text`.
// OnError is ignored.
func (l *Lark) ParseInteractive(text string, opts ...ParseOption) (*parser.InteractiveParser, error) {
	o := &parseOptions{}
	for _, opt := range opts {
		opt(o)
	}
	start, err := l.verifyStart(o.start)
	if err != nil {
		return nil, err
	}
	return l.parser.ParseInteractive(lexer.NewThread(l.lexer, text), start)
}

// Lex tokenizes `text` with a basic lexer trying all terminals, without parsing. When `dontIgnore` is
// true, tokens of ignored terminals are returned too. The post-lexer, if any, is applied.
func (l *Lark) Lex(text string, dontIgnore bool) lexer.TokenStream {
	bl, err := l.lexLexer(dontIgnore)
	if err != nil {
		return &errStream{
			err: err,
		}
	}
	var stream lexer.TokenStream = bl.Lex(lexer.NewState(text), nil)
	if l.opts.postLex != nil {
		stream = l.opts.postLex.Process(stream)
	}
	return stream
}

func (l *Lark) lexLexer(dontIgnore bool) (*lexer.BasicLexer, error) {
	i := 0
	if dontIgnore {
		i = 1
	}
	l.lexOnce[i].Do(func() {
		conf := *l.lexerConf
		if dontIgnore {
			conf.Ignore = nil
		}
		l.lexLexers[i], l.lexLexerErrs[i] = lexer.NewBasicLexer(&conf)
	})
	return l.lexLexers[i], l.lexLexerErrs[i]
}

type errStream struct {
	err error
}

func (s *errStream) Next() (*grammar.Token, bool, error) {
	return nil, false, s.err
}

// Terminal returns the definition of a terminal.
func (l *Lark) Terminal(name string) (*grammar.TerminalDef, bool) {
	t, ok := l.terminals[name]
	return t, ok
}

func (l *Lark) Grammar() *grammar.CompiledGrammar {
	return l.gram
}

// Starts returns the start symbols a parse may choose from.
func (l *Lark) Starts() []string {
	return l.start
}

// Save writes the grammar in the memoized JSON form.
func (l *Lark) Save(w io.Writer) error {
	data, err := grammar.EncodeJSON(l.gram)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// SaveBinary writes the grammar in the binary form.
func (l *Lark) SaveBinary(w io.Writer) error {
	data, err := l.gram.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

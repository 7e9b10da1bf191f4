package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/nihei9/larkrt/driver/lexer"
	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/spec/grammar"
)

var log = commonlog.GetLogger("larkrt.parser")

// ParseConf binds a parse table and callbacks to a start symbol.
type ParseConf struct {
	Table      *grammar.ParseTable
	Callbacks  *Callbacks
	Start      string
	StartState int
	EndState   int
}

func NewParseConf(table *grammar.ParseTable, callbacks *Callbacks, start string) (*ParseConf, error) {
	startState, ok := table.StartStates[start]
	if !ok {
		return nil, verr.NewConfigurationError("Unknown start rule %v. Must be one of %v", start, startNames(table))
	}
	endState, ok := table.EndStates[start]
	if !ok {
		return nil, verr.NewConfigurationError("start rule %v has no end state", start)
	}
	return &ParseConf{
		Table:      table,
		Callbacks:  callbacks,
		Start:      start,
		StartState: startState,
		EndState:   endState,
	}, nil
}

func startNames(table *grammar.ParseTable) []string {
	names := make([]string, 0, len(table.StartStates))
	for name := range table.StartStates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParserState holds the state stack and the value stack of a parse.
type ParserState struct {
	conf       *ParseConf
	stateStack []int
	valueStack []any
}

func NewParserState(conf *ParseConf) *ParserState {
	return &ParserState{
		conf:       conf,
		stateStack: []int{conf.StartState},
	}
}

// Position returns the state on the top of the stack.
func (s *ParserState) Position() int {
	return s.stateStack[len(s.stateStack)-1]
}

func (s *ParserState) StackSize() int {
	return len(s.stateStack)
}

func (s *ParserState) Conf() *ParseConf {
	return s.conf
}

// Equal reports whether two states are at the same position with the same stack size. The values on the
// stacks aren't compared.
func (s *ParserState) Equal(o *ParserState) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Position() == o.Position() && s.StackSize() == o.StackSize()
}

// Copy returns a state with its own stacks. The values on the value stack are shared.
func (s *ParserState) Copy() *ParserState {
	states := make([]int, len(s.stateStack))
	copy(states, s.stateStack)
	values := make([]any, len(s.valueStack))
	copy(values, s.valueStack)
	return &ParserState{
		conf:       s.conf,
		stateStack: states,
		valueStack: values,
	}
}

// FeedToken advances the state by `tok`, reducing as many times as needed before shifting it. When
// `isEnd` is true, `tok` is the end marker and FeedToken returns the final value and true once the
// end state is reached.
func (s *ParserState) FeedToken(tok *grammar.Token, isEnd bool) (any, bool, error) {
	states := s.conf.Table.States
	cbs := s.conf.Callbacks

	// A correct table never reduces more times than this without shifting.
	limit := (len(s.stateStack) + 1) * (len(states) + 1)
	for n := 0; ; n++ {
		if n > limit {
			return nil, false, verr.NewGrammarError("the parser doesn't converge on %v in state %v", tok, s.Position())
		}

		state := s.Position()
		act, ok := states[state][tok.Type]
		if !ok {
			expected := map[string]struct{}{}
			for sym := range states[state] {
				if grammar.IsTerminalName(sym) {
					expected[sym] = struct{}{}
				}
			}
			return nil, false, verr.NewUnexpectedToken(tok, expected, s)
		}

		if act.Kind == grammar.ActionShift {
			if isEnd {
				return nil, false, verr.NewGrammarError("the end marker is shifted in state %v", state)
			}
			var v any = tok
			if cbs != nil {
				if cb, ok := cbs.Tokens[tok.Type]; ok {
					var err error
					v, err = cb(tok)
					if err != nil {
						return nil, false, err
					}
				}
			}
			s.stateStack = append(s.stateStack, act.State)
			s.valueStack = append(s.valueStack, v)
			return nil, false, nil
		}

		rule := act.Rule
		size := len(rule.Expansion)
		children := make([]any, size)
		copy(children, s.valueStack[len(s.valueStack)-size:])
		s.stateStack = s.stateStack[:len(s.stateStack)-size]
		s.valueStack = s.valueStack[:len(s.valueStack)-size]

		var value any = children
		if cbs != nil {
			cb, ok := cbs.Rules[rule.Key()]
			if !ok {
				return nil, false, verr.NewGrammarError("no callback for rule %v", rule)
			}
			var err error
			value, err = cb(children)
			if err != nil {
				return nil, false, err
			}
		}

		gotoAct, ok := states[s.Position()][rule.Origin.Name]
		if !ok || gotoAct.Kind != grammar.ActionShift {
			return nil, false, verr.NewGrammarError("no goto on %v in state %v", rule.Origin.Name, s.Position())
		}
		s.stateStack = append(s.stateStack, gotoAct.State)
		s.valueStack = append(s.valueStack, value)

		if isEnd && s.Position() == s.conf.EndState {
			return s.valueStack[len(s.valueStack)-1], true, nil
		}
	}
}

func (s *ParserState) dump() string {
	var b strings.Builder
	b.WriteString("STATE STACK DUMP\n----------------\n")
	for i, state := range s.stateStack {
		fmt.Fprintf(&b, "%v) %v\n", i, state)
	}
	return b.String()
}

type ParserOption func(p *Parser) error

// Debug makes a parser log its state stack when a parse fails with an error other than an unexpected
// input.
func Debug(debug bool) ParserOption {
	return func(p *Parser) error {
		p.debug = debug
		return nil
	}
}

// WithTerminals gives the terminal definitions used to describe expected terminals in errors.
func WithTerminals(terms map[string]*grammar.TerminalDef) ParserOption {
	return func(p *Parser) error {
		p.terminalsByName = terms
		return nil
	}
}

// Parser is a LALR(1) parser driven by a parse table.
type Parser struct {
	table           *grammar.ParseTable
	callbacks       *Callbacks
	debug           bool
	terminalsByName map[string]*grammar.TerminalDef
}

func NewParser(table *grammar.ParseTable, callbacks *Callbacks, opts ...ParserOption) (*Parser, error) {
	if table == nil {
		return nil, verr.NewConfigurationError("a parse table is required")
	}
	p := &Parser{
		table:     table,
		callbacks: callbacks,
	}
	for _, opt := range opts {
		err := opt(p)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Parser) Table() *grammar.ParseTable {
	return p.table
}

// OnErrorFunc is called with an error a parse runs into. Returning true resumes the parse, and returning
// false makes the parse fail with the error.
type OnErrorFunc func(e verr.UnexpectedInput) bool

// Parse parses the text of `thread` from `start`. When `onError` is not nil, the parse recovers from
// unexpected inputs as long as `onError` returns true. When `onError` leaves the lexer position as it
// was after unexpected characters, one character is skipped before resuming.
func (p *Parser) Parse(thread *lexer.Thread, start string, onError OnErrorFunc) (any, error) {
	conf, err := NewParseConf(p.table, p.callbacks, start)
	if err != nil {
		return nil, err
	}
	res, err := p.parseFromState(NewParserState(conf), thread, nil)
	if err == nil || onError == nil {
		return res, err
	}

	var e verr.UnexpectedInput
	if !errors.As(err, &e) {
		return nil, err
	}
	for {
		var ls *lexer.State
		var pos int
		if _, ok := e.(*verr.UnexpectedCharacters); ok {
			if ip := InteractiveOf(e); ip != nil {
				ls = ip.thread.State
				pos = ls.LineCounter.CharPos
			}
		}

		if !onError(e) {
			return nil, e
		}
		ip := InteractiveOf(e)
		if ip == nil {
			return nil, e
		}
		if ls != nil && ls.LineCounter.CharPos == pos {
			lexer.AdvanceRune(ls)
		}

		res, err := ip.ResumeParse()
		if err == nil {
			return res, nil
		}
		log.Debugf("recovery resumed into another error: %v", err)

		var e2 verr.UnexpectedInput
		if !errors.As(err, &e2) {
			return nil, err
		}
		if ut2 := asUnexpectedToken(e2); ut2 != nil {
			if ut := asUnexpectedToken(e); ut != nil && ut.Token.Type == ut2.Token.Type && ut2.Token.Type == grammar.TokenTypeEnd {
				if ip2 := InteractiveOf(e2); ip2 != nil && ip.Equal(ip2) {
					return nil, e2
				}
			}
		}
		e = e2
	}
}

func asUnexpectedToken(e verr.UnexpectedInput) *verr.UnexpectedToken {
	switch x := e.(type) {
	case *verr.UnexpectedToken:
		return x
	case *verr.UnexpectedEOF:
		return x.UnexpectedToken
	}
	return nil
}

// ParseInteractive returns an interactive parser positioned before the first token.
func (p *Parser) ParseInteractive(thread *lexer.Thread, start string) (*InteractiveParser, error) {
	conf, err := NewParseConf(p.table, p.callbacks, start)
	if err != nil {
		return nil, err
	}
	return &InteractiveParser{
		parser: p,
		state:  NewParserState(conf),
		thread: thread,
	}, nil
}

// parseFromState feeds the tokens of `thread` to `state` followed by the end marker. `last` is the token
// consumed before the parse resumed. The end marker borrows the position of the last token.
func (p *Parser) parseFromState(state *ParserState, thread *lexer.Thread, last *grammar.Token) (any, error) {
	res, err := p.feedAll(state, thread, last)
	if err == nil {
		return res, nil
	}

	var e verr.UnexpectedInput
	if errors.As(err, &e) {
		if ut := asUnexpectedToken(e); ut != nil && ut.TerminalsByName == nil {
			ut.TerminalsByName = p.terminalsByName
		}
		e.SetInteractive(&InteractiveParser{
			parser: p,
			state:  state,
			thread: thread,
		})
		return nil, err
	}
	if p.debug {
		log.Errorf("%v", state.dump())
	}
	return nil, err
}

func (p *Parser) feedAll(state *ParserState, thread *lexer.Thread, last *grammar.Token) (any, error) {
	stream := thread.Lex(state)
	for {
		tok, ok, err := stream.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		_, _, err = state.FeedToken(tok, false)
		if err != nil {
			return nil, err
		}
		last = tok
	}

	var end *grammar.Token
	if last != nil {
		end = grammar.NewTokenBorrowPos(grammar.TokenTypeEnd, "", last)
	} else {
		end = grammar.NewToken(grammar.TokenTypeEnd, "", 0, 1, 1)
	}
	res, _, err := state.FeedToken(end, true)
	if err != nil {
		var ut *verr.UnexpectedToken
		if errors.As(err, &ut) && ut.Token.Type == grammar.TokenTypeEnd {
			if last != nil {
				ut.TokenHistory = []*grammar.Token{last}
			}
			ut.TerminalsByName = p.terminalsByName
			return nil, &verr.UnexpectedEOF{
				UnexpectedToken: ut,
			}
		}
		return nil, err
	}
	return res, nil
}

// InteractiveOf returns the interactive parser attached to an error, or nil.
func InteractiveOf(e verr.UnexpectedInput) *InteractiveParser {
	ip, _ := e.Interactive().(*InteractiveParser)
	return ip
}

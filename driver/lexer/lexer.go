package lexer

import (
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/tliron/commonlog"

	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/spec/grammar"
)

var log = commonlog.GetLogger("larkrt.lexer")

// EOFAllowed is reported as the allowed set when a lexer can match no terminal at all.
const EOFAllowed = "<END-OF-FILE>"

// TokenStream is a sequence of tokens produced on demand.
type TokenStream interface {
	// Next returns the next token. It returns false when the stream is exhausted.
	Next() (*grammar.Token, bool, error)
}

// Callback is called with each token of a terminal. It may return a modified token.
type Callback func(tok *grammar.Token) (*grammar.Token, error)

// Lexer turns the text in a State into tokens. A lexer may consult the parser state to choose which
// terminals to try.
type Lexer interface {
	Lex(ls *State, ps verr.ParserState) TokenStream
}

// PostLexer transforms the token stream of a lexer before the parser consumes it.
type PostLexer interface {
	Process(stream TokenStream) TokenStream

	// AlwaysAccept returns terminal types a contextual lexer must match in every parser state.
	AlwaysAccept() []string
}

// State is the mutable position of a lexer in its text.
type State struct {
	Text        string
	LineCounter *LineCounter
	LastToken   *grammar.Token

	// runes is Text decoded once and shared by copies of the state.
	runes *[]rune
}

func NewState(text string) *State {
	return &State{
		Text:        text,
		LineCounter: NewLineCounter(),
		runes:       new([]rune),
	}
}

func (s *State) textRunes() []rune {
	if s.runes == nil {
		s.runes = new([]rune)
	}
	if *s.runes == nil && s.Text != "" {
		*s.runes = []rune(s.Text)
	}
	return *s.runes
}

func (s *State) Copy() *State {
	return &State{
		Text:        s.Text,
		LineCounter: s.LineCounter.Copy(),
		LastToken:   s.LastToken,
		runes:       s.runes,
	}
}

func (s *State) Equal(o *State) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Text == o.Text && s.LineCounter.Equal(o.LineCounter) && s.LastToken == o.LastToken
}

// Thread couples a lexer with the state it lexes from.
type Thread struct {
	Lexer Lexer
	State *State
}

func NewThread(l Lexer, text string) *Thread {
	return &Thread{
		Lexer: l,
		State: NewState(text),
	}
}

func (t *Thread) Lex(ps verr.ParserState) TokenStream {
	return t.Lexer.Lex(t.State, ps)
}

func (t *Thread) Copy() *Thread {
	return &Thread{
		Lexer: t.Lexer,
		State: t.State.Copy(),
	}
}

// Conf configures a BasicLexer.
type Conf struct {
	Terminals []*grammar.TerminalDef
	Ignore    []string
	Callbacks map[string]Callback

	// RegexFlags holds Python-compatible `re` flag bits applied to all terminals.
	RegexFlags int

	// SkipValidation disables the checks NewBasicLexer runs against terminals.
	SkipValidation bool

	// TerminalsByName is used to describe terminals in errors. When nil, Terminals is used.
	TerminalsByName map[string]*grammar.TerminalDef
}

func (c *Conf) terminalsByName() map[string]*grammar.TerminalDef {
	if c.TerminalsByName != nil {
		return c.TerminalsByName
	}
	m := make(map[string]*grammar.TerminalDef, len(c.Terminals))
	for _, t := range c.Terminals {
		m[t.Name] = t
	}
	return m
}

// BasicLexer tries the same set of terminals regardless of the parser state.
type BasicLexer struct {
	terminals       []*grammar.TerminalDef
	ignoreTypes     map[string]struct{}
	newlineTypes    map[string]struct{}
	userCallbacks   map[string]Callback
	flags           string
	terminalsByName map[string]*grammar.TerminalDef

	once      sync.Once
	scanner   *Scanner
	callbacks map[string]Callback
	buildErr  error
}

func NewBasicLexer(conf *Conf) (*BasicLexer, error) {
	flags, err := grammar.RegexFlags(conf.RegexFlags)
	if err != nil {
		return nil, verr.NewLexError("%v", err)
	}

	terms := make([]*grammar.TerminalDef, len(conf.Terminals))
	copy(terms, conf.Terminals)

	if !conf.SkipValidation {
		err := validateTerminals(terms, conf.Ignore, flags)
		if err != nil {
			return nil, err
		}
	}

	l := &BasicLexer{
		ignoreTypes:     make(map[string]struct{}, len(conf.Ignore)),
		newlineTypes:    map[string]struct{}{},
		userCallbacks:   conf.Callbacks,
		flags:           flags,
		terminalsByName: conf.terminalsByName(),
	}
	for _, name := range conf.Ignore {
		l.ignoreTypes[name] = struct{}{}
	}
	for _, t := range terms {
		if hasNewline(t.Pattern.ToRegexp()) {
			l.newlineTypes[t.Name] = struct{}{}
		}
	}
	sort.SliceStable(terms, func(i, j int) bool {
		a, b := terms[i], terms[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if aw, bw := a.Pattern.MaxWidth(), b.Pattern.MaxWidth(); aw != bw {
			return aw > bw
		}
		if al, bl := len(a.Pattern.Value), len(b.Pattern.Value); al != bl {
			return al > bl
		}
		return a.Name < b.Name
	})
	l.terminals = terms
	return l, nil
}

func validateTerminals(terms []*grammar.TerminalDef, ignore []string, flags string) error {
	defined := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		defined[t.Name] = struct{}{}
		_, err := NewScanner([]*grammar.TerminalDef{t}, flags, false)
		if err != nil {
			return verr.NewLexError("Cannot compile token %v: %v", t.Name, t.Pattern)
		}
		min, _, err := t.Pattern.Width()
		if err != nil {
			return verr.NewLexError("Cannot compute the width of token %v: %v", t.Name, t.Pattern)
		}
		if min == 0 {
			return verr.NewLexError("Lexer does not allow zero-width terminals. (%v: %v)", t.Name, t.Pattern)
		}
	}
	var undefined []string
	for _, name := range ignore {
		if _, ok := defined[name]; !ok {
			undefined = append(undefined, name)
		}
	}
	if len(undefined) > 0 {
		sort.Strings(undefined)
		return verr.NewLexError("Ignore terminals are not defined: %v", undefined)
	}
	return nil
}

// Terminals returns the terminals of the lexer in the order the lexer tries them.
func (l *BasicLexer) Terminals() []*grammar.TerminalDef {
	return l.terminals
}

func (l *BasicLexer) build() error {
	l.once.Do(func() {
		terms, callbacks, err := createUnless(l.terminals, l.flags)
		if err != nil {
			l.buildErr = verr.NewLexError("%v", err)
			return
		}
		for typ, f := range l.userCallbacks {
			if cb, ok := callbacks[typ]; ok {
				callbacks[typ] = callChain(cb, f, typ)
			} else {
				callbacks[typ] = f
			}
		}
		sc, err := NewScanner(terms, l.flags, false)
		if err != nil {
			l.buildErr = verr.NewLexError("%v", err)
			return
		}
		l.scanner = sc
		l.callbacks = callbacks
		log.Debugf("built a scanner over %v terminals (%v merged into regexp terminals)", len(terms), len(l.terminals)-len(terms))
	})
	return l.buildErr
}

// NextToken returns the next token that isn't ignored. It returns false at the end of the text.
func (l *BasicLexer) NextToken(ls *State, ps verr.ParserState) (*grammar.Token, bool, error) {
	err := l.build()
	if err != nil {
		return nil, false, err
	}

	lc := ls.LineCounter
	for lc.CharPos < len(ls.Text) {
		value, typ, ok := l.scanner.match(ls.Text, ls.textRunes(), lc.CharPos, lc.RunePos)
		if !ok || value == "" {
			allowed := map[string]struct{}{}
			for name := range l.scanner.AllowedTypes() {
				if _, ignored := l.ignoreTypes[name]; !ignored {
					allowed[name] = struct{}{}
				}
			}
			if len(allowed) == 0 {
				allowed[EOFAllowed] = struct{}{}
			}
			var history []*grammar.Token
			if ls.LastToken != nil {
				history = []*grammar.Token{ls.LastToken}
			}
			return nil, false, verr.NewUnexpectedCharacters(ls.Text, lc.CharPos, lc.Line, lc.Column, allowed, history, ps, l.terminalsByName)
		}

		_, ignored := l.ignoreTypes[typ]
		cb, hasCallback := l.callbacks[typ]
		var tok *grammar.Token
		if !ignored || hasCallback {
			tok = grammar.NewToken(typ, value, lc.CharPos, lc.Line, lc.Column)
		}
		_, newline := l.newlineTypes[typ]
		lc.Feed(value, newline)
		if tok == nil {
			continue
		}
		tok.EndLine = lc.Line
		tok.EndColumn = lc.Column
		tok.EndPos = lc.CharPos
		if hasCallback {
			tok, err = cb(tok)
			if err != nil {
				return nil, false, err
			}
		}
		if ignored {
			continue
		}
		if tok == nil {
			return nil, false, verr.NewLexError("Callbacks must return a token (returned %v)", tok)
		}
		ls.LastToken = tok
		return tok, true, nil
	}
	return nil, false, nil
}

func (l *BasicLexer) Lex(ls *State, ps verr.ParserState) TokenStream {
	return &basicStream{
		lexer: l,
		ls:    ls,
		ps:    ps,
	}
}

type basicStream struct {
	lexer *BasicLexer
	ls    *State
	ps    verr.ParserState
}

func (s *basicStream) Next() (*grammar.Token, bool, error) {
	return s.lexer.NextToken(s.ls, s.ps)
}

// SliceStream is a TokenStream over tokens lexed in advance.
type SliceStream struct {
	toks []*grammar.Token
}

func NewSliceStream(toks []*grammar.Token) *SliceStream {
	return &SliceStream{
		toks: toks,
	}
}

func (s *SliceStream) Next() (*grammar.Token, bool, error) {
	if len(s.toks) == 0 {
		return nil, false, nil
	}
	tok := s.toks[0]
	s.toks = s.toks[1:]
	return tok, true, nil
}

// Collect reads all tokens of a stream. On an error, it returns the tokens read so far together with
// the error.
func Collect(stream TokenStream) ([]*grammar.Token, error) {
	var toks []*grammar.Token
	for {
		tok, ok, err := stream.Next()
		if err != nil {
			return toks, err
		}
		if !ok {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

// PostLexConnector runs a lexer and passes its tokens through a post-lexer.
type PostLexConnector struct {
	Lexer     Lexer
	PostLexer PostLexer
}

func (c *PostLexConnector) Lex(ls *State, ps verr.ParserState) TokenStream {
	return c.PostLexer.Process(c.Lexer.Lex(ls, ps))
}

// AdvanceRune skips the rune at the current position of `ls`. Error recovery uses it to step over
// characters no terminal matches.
func AdvanceRune(ls *State) {
	lc := ls.LineCounter
	if lc.CharPos >= len(ls.Text) {
		return
	}
	_, size := utf8.DecodeRuneInString(ls.Text[lc.CharPos:])
	lc.Feed(ls.Text[lc.CharPos:lc.CharPos+size], true)
}

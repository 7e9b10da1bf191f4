package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nihei9/larkrt/driver/lexer"
	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/spec/grammar"
)

// InteractiveParser lets a caller drive a parse token by token. It is attached to the unexpected-input
// errors a parse returns so that a parse can be inspected and resumed.
type InteractiveParser struct {
	parser *Parser
	state  *ParserState
	thread *lexer.Thread

	// Result holds the value of the parse once the end marker has been fed.
	Result any
}

var _ verr.InteractiveParser = &InteractiveParser{}

// FeedToken feeds a token as if the lexer produced it. Feeding the end marker returns the final value.
func (ip *InteractiveParser) FeedToken(tok *grammar.Token) (any, error) {
	res, _, err := ip.state.FeedToken(tok, tok.Type == grammar.TokenTypeEnd)
	return res, err
}

// IterParse returns a stream of the tokens the lexer produces. Each token is fed to the parser when the
// following one is requested, so a caller may inspect the parser before the token is consumed. The end
// marker isn't fed.
func (ip *InteractiveParser) IterParse() lexer.TokenStream {
	return &iterParseStream{
		ip:     ip,
		stream: ip.thread.Lex(ip.state),
	}
}

type iterParseStream struct {
	ip      *InteractiveParser
	stream  lexer.TokenStream
	pending *grammar.Token
}

func (s *iterParseStream) Next() (*grammar.Token, bool, error) {
	if s.pending != nil {
		res, err := s.ip.FeedToken(s.pending)
		s.pending = nil
		if err != nil {
			return nil, false, err
		}
		s.ip.Result = res
	}
	tok, ok, err := s.stream.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	s.pending = tok
	return tok, true, nil
}

// ExhaustLexer feeds all remaining tokens of the lexer and returns them. The end marker isn't fed.
func (ip *InteractiveParser) ExhaustLexer() ([]*grammar.Token, error) {
	return lexer.Collect(ip.IterParse())
}

// FeedEOF feeds the end marker. The marker borrows the position of `last` when it is not nil.
func (ip *InteractiveParser) FeedEOF(last *grammar.Token) (any, error) {
	var eof *grammar.Token
	if last != nil {
		eof = grammar.NewTokenBorrowPos(grammar.TokenTypeEnd, "", last)
	} else {
		eof = grammar.NewToken(grammar.TokenTypeEnd, "", 0, 1, 1)
	}
	return ip.FeedToken(eof)
}

// Copy returns a parser with its own parser state and lexer state.
func (ip *InteractiveParser) Copy() *InteractiveParser {
	return &InteractiveParser{
		parser: ip.parser,
		state:  ip.state.Copy(),
		thread: ip.thread.Copy(),
		Result: ip.Result,
	}
}

// Equal reports whether two parsers are in the same parser state and lexer state.
func (ip *InteractiveParser) Equal(o *InteractiveParser) bool {
	if ip == nil || o == nil {
		return ip == o
	}
	return ip.state.Equal(o.state) && ip.thread.State.Equal(o.thread.State)
}

func (ip *InteractiveParser) AsImmutable() *ImmutableInteractiveParser {
	return &ImmutableInteractiveParser{
		ip: ip.Copy(),
	}
}

// Pretty returns the choices of the current state in a readable form.
func (ip *InteractiveParser) Pretty() string {
	choices := ip.Choices()
	syms := make([]string, 0, len(choices))
	for sym := range choices {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	var b strings.Builder
	b.WriteString("Parser choices:")
	for _, sym := range syms {
		fmt.Fprintf(&b, "\n\t- %v -> %v", sym, choices[sym])
	}
	fmt.Fprintf(&b, "\nstack size: %v", ip.state.StackSize())
	return b.String()
}

// Choices returns the actions of the current state keyed by symbols. Keys include the nonterminals of
// goto transitions.
func (ip *InteractiveParser) Choices() map[string]*grammar.Action {
	return ip.state.conf.Table.States[ip.state.Position()]
}

// Accepts returns the terminals that can be fed next without an error. Each terminal is tried on a
// copy of the parser with no callbacks, so the parser itself is left unchanged.
func (ip *InteractiveParser) Accepts() (map[string]struct{}, error) {
	noCallbacks := *ip.state.conf
	noCallbacks.Callbacks = nil

	accepts := map[string]struct{}{}
	for sym := range ip.Choices() {
		if !grammar.IsTerminalName(sym) {
			continue
		}
		cursor := ip.Copy()
		cursor.state.conf = &noCallbacks
		_, err := cursor.FeedToken(grammar.NewToken(sym, "", 0, 0, 0))
		if err != nil {
			var ut *verr.UnexpectedToken
			if errors.As(err, &ut) {
				continue
			}
			return nil, err
		}
		accepts[sym] = struct{}{}
	}
	return accepts, nil
}

// ResumeParse continues the parse from the current state to the end of the text.
func (ip *InteractiveParser) ResumeParse() (any, error) {
	return ip.parser.parseFromState(ip.state, ip.thread, ip.thread.State.LastToken)
}

func (ip *InteractiveParser) ParserState() *ParserState {
	return ip.state
}

func (ip *InteractiveParser) LexerThread() *lexer.Thread {
	return ip.thread
}

// ImmutableInteractiveParser is an InteractiveParser whose operations return a new parser instead of
// changing the receiver.
type ImmutableInteractiveParser struct {
	ip *InteractiveParser

	Result any
}

var _ verr.InteractiveParser = &ImmutableInteractiveParser{}

// FeedToken returns a parser that has consumed `tok`. Its Result holds the value FeedToken of
// InteractiveParser would return.
func (p *ImmutableInteractiveParser) FeedToken(tok *grammar.Token) (*ImmutableInteractiveParser, error) {
	c := p.ip.Copy()
	res, err := c.FeedToken(tok)
	if err != nil {
		return nil, err
	}
	return &ImmutableInteractiveParser{
		ip:     c,
		Result: res,
	}, nil
}

// ExhaustLexer returns a parser that has consumed all remaining tokens of the lexer.
func (p *ImmutableInteractiveParser) ExhaustLexer() (*ImmutableInteractiveParser, error) {
	c := p.AsMutable()
	_, err := c.ExhaustLexer()
	if err != nil {
		return nil, err
	}
	return c.AsImmutable(), nil
}

func (p *ImmutableInteractiveParser) AsMutable() *InteractiveParser {
	return p.ip.Copy()
}

func (p *ImmutableInteractiveParser) Choices() map[string]*grammar.Action {
	return p.ip.Choices()
}

func (p *ImmutableInteractiveParser) Accepts() (map[string]struct{}, error) {
	return p.ip.Accepts()
}

func (p *ImmutableInteractiveParser) Pretty() string {
	return p.ip.Pretty()
}

func (p *ImmutableInteractiveParser) Equal(o *ImmutableInteractiveParser) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.ip.Equal(o.ip)
}

// ResumeParse continues the parse on a copy, so the receiver stays where it is.
func (p *ImmutableInteractiveParser) ResumeParse() (any, error) {
	return p.ip.Copy().ResumeParse()
}

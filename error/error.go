package error

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nihei9/larkrt/spec/grammar"
)

// LarkError is implemented by every error the runtime raises.
type LarkError interface {
	error
	larkError()
}

var (
	_ LarkError = &ConfigurationError{}
	_ LarkError = &GrammarError{}
	_ LarkError = &LexError{}
	_ LarkError = &VisitError{}
	_ LarkError = &DedentError{}

	_ UnexpectedInput = &UnexpectedCharacters{}
	_ UnexpectedInput = &UnexpectedToken{}
	_ UnexpectedInput = &UnexpectedEOF{}
)

// ConfigurationError reports invalid options given to a parser.
type ConfigurationError struct {
	Message string
}

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func (e *ConfigurationError) larkError() {}

// GrammarError reports a malformed compiled grammar.
type GrammarError struct {
	Message  string
	FilePath string
	Cause    error
}

func NewGrammarError(format string, args ...any) *GrammarError {
	return &GrammarError{
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *GrammarError) Error() string {
	var b strings.Builder
	if e.FilePath != "" {
		fmt.Fprintf(&b, "%v: ", e.FilePath)
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		fmt.Fprintf(&b, "%v", e.Cause)
	}
	return b.String()
}

func (e *GrammarError) Unwrap() error {
	return e.Cause
}

func (e *GrammarError) larkError() {}

// LexError reports a terminal a lexer cannot be constructed with, or a lexer callback misbehaving.
type LexError struct {
	Message string
}

func NewLexError(format string, args ...any) *LexError {
	return &LexError{
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *LexError) Error() string {
	return e.Message
}

func (e *LexError) larkError() {}

// VisitError wraps an error returned by a tree-processing handler.
type VisitError struct {
	Rule string
	Obj  any
	Err  error
}

func (e *VisitError) Error() string {
	return fmt.Sprintf("Error trying to process rule \"%v\":\n\n%v", e.Rule, e.Err)
}

func (e *VisitError) Unwrap() error {
	return e.Err
}

func (e *VisitError) larkError() {}

// DedentError reports an indentation that doesn't match any enclosing level.
type DedentError struct {
	Message string
}

func (e *DedentError) Error() string {
	return e.Message
}

func (e *DedentError) larkError() {}

// ParserState is the part of a parser state errors expose. Two states are considered the same when
// their positions and stack sizes are equal.
type ParserState interface {
	Position() int
	StackSize() int
}

func sameState(a, b ParserState) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Position() == b.Position() && a.StackSize() == b.StackSize()
}

// InteractiveParser is the part of an interactive parser errors expose.
type InteractiveParser interface {
	Accepts() (map[string]struct{}, error)
}

// UnexpectedInput is implemented by recoverable errors raised while lexing or parsing.
type UnexpectedInput interface {
	LarkError

	// Position returns the byte offset where the error occurred.
	Position() int
	LineCol() (int, int)

	// GetContext returns the line of `text` at the error position with a caret under the position.
	// `span` limits the count of bytes shown on each side.
	GetContext(text string, span int) string

	ParserState() ParserState
	Interactive() InteractiveParser
	SetInteractive(ip InteractiveParser)
}

func getContext(text string, pos, span int) string {
	if pos < 0 {
		pos = 0
	}
	if pos > len(text) {
		pos = len(text)
	}
	start := pos - span
	if start < 0 {
		start = 0
	}
	end := pos + span
	if end > len(text) {
		end = len(text)
	}
	start = alignRuneStart(text, start)
	end = alignRuneStart(text, end)

	before := text[start:pos]
	if i := strings.LastIndex(before, "\n"); i >= 0 {
		before = before[i+1:]
	}
	after := text[pos:end]
	if i := strings.Index(after, "\n"); i >= 0 {
		after = after[:i]
	}
	return before + after + "\n" + strings.Repeat(" ", displayWidth(before)) + "^\n"
}

// alignRuneStart moves `i` forward to the start of a rune.
func alignRuneStart(text string, i int) int {
	for i < len(text) && text[i]&0xC0 == 0x80 {
		i++
	}
	return i
}

// displayWidth counts runes with tabs expanded to the next multiple of 8.
func displayWidth(s string) int {
	w := 0
	for _, c := range s {
		if c == '\t' {
			w += 8 - w%8
			continue
		}
		w++
	}
	return w
}

func formatExpected(expected []string, terms map[string]*grammar.TerminalDef) string {
	names := make([]string, len(expected))
	for i, name := range expected {
		if t, ok := terms[name]; ok {
			names[i] = t.UserRepr()
		} else {
			names[i] = name
		}
	}
	return fmt.Sprintf("Expected one of: \n\t* %v\n", strings.Join(names, "\n\t* "))
}

func formatTokens(toks []*grammar.Token) string {
	strs := make([]string, len(toks))
	for i, tok := range toks {
		strs[i] = tok.String()
	}
	return strings.Join(strs, ", ")
}

// SortedNames returns the keys of a set in ascending order.
func SortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnexpectedCharacters reports that no terminal matches the text at a position.
type UnexpectedCharacters struct {
	Char              string
	Pos               int
	Line              int
	Column            int
	Allowed           []string
	TokenHistory      []*grammar.Token
	State             ParserState
	InteractiveParser InteractiveParser
	TerminalsByName   map[string]*grammar.TerminalDef

	context string
}

func NewUnexpectedCharacters(text string, pos, line, column int, allowed map[string]struct{}, history []*grammar.Token, state ParserState, terms map[string]*grammar.TerminalDef) *UnexpectedCharacters {
	var char string
	if pos < len(text) {
		for _, c := range text[pos:] {
			char = string(c)
			break
		}
	}
	return &UnexpectedCharacters{
		Char:            char,
		Pos:             pos,
		Line:            line,
		Column:          column,
		Allowed:         SortedNames(allowed),
		TokenHistory:    history,
		State:           state,
		TerminalsByName: terms,
		context:         getContext(text, pos, 40),
	}
}

func (e *UnexpectedCharacters) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "No terminal matches '%v' in the current parser context, at line %v col %v", e.Char, e.Line, e.Column)
	b.WriteString("\n\n")
	b.WriteString(e.context)
	if len(e.Allowed) > 0 {
		b.WriteString(formatExpected(e.Allowed, e.TerminalsByName))
	}
	if len(e.TokenHistory) > 0 {
		fmt.Fprintf(&b, "\nPrevious tokens: %v\n", formatTokens(e.TokenHistory))
	}
	return b.String()
}

func (e *UnexpectedCharacters) Position() int {
	return e.Pos
}

func (e *UnexpectedCharacters) LineCol() (int, int) {
	return e.Line, e.Column
}

func (e *UnexpectedCharacters) GetContext(text string, span int) string {
	return getContext(text, e.Pos, span)
}

func (e *UnexpectedCharacters) ParserState() ParserState {
	return e.State
}

func (e *UnexpectedCharacters) Interactive() InteractiveParser {
	return e.InteractiveParser
}

func (e *UnexpectedCharacters) SetInteractive(ip InteractiveParser) {
	e.InteractiveParser = ip
}

func (e *UnexpectedCharacters) larkError() {}

// UnexpectedToken reports that the parser has no action for a token in its current state.
type UnexpectedToken struct {
	Token             *grammar.Token
	Expected          []string
	State             ParserState
	TokenHistory      []*grammar.Token
	InteractiveParser InteractiveParser
	TerminalsByName   map[string]*grammar.TerminalDef

	accepts     []string
	acceptsDone bool
}

func NewUnexpectedToken(tok *grammar.Token, expected map[string]struct{}, state ParserState) *UnexpectedToken {
	return &UnexpectedToken{
		Token:    tok,
		Expected: SortedNames(expected),
		State:    state,
	}
}

// Accepts returns the token types the interactive parser attached to the error accepts. It returns nil
// when no interactive parser is attached.
func (e *UnexpectedToken) Accepts() []string {
	if e.acceptsDone {
		return e.accepts
	}
	e.acceptsDone = true
	if e.InteractiveParser == nil {
		return nil
	}
	acc, err := e.InteractiveParser.Accepts()
	if err != nil {
		return nil
	}
	e.accepts = SortedNames(acc)
	return e.accepts
}

func (e *UnexpectedToken) expectedForMessage() []string {
	if acc := e.Accepts(); len(acc) > 0 {
		return acc
	}
	return e.Expected
}

func (e *UnexpectedToken) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unexpected token %v at line %v, column %v.\n", e.Token, e.Token.Line, e.Token.Column)
	b.WriteString(formatExpected(e.expectedForMessage(), e.TerminalsByName))
	if len(e.TokenHistory) > 0 {
		fmt.Fprintf(&b, "Previous tokens: [%v]\n", formatTokens(e.TokenHistory))
	}
	return b.String()
}

func (e *UnexpectedToken) Position() int {
	return e.Token.StartPos
}

func (e *UnexpectedToken) LineCol() (int, int) {
	return e.Token.Line, e.Token.Column
}

func (e *UnexpectedToken) GetContext(text string, span int) string {
	return getContext(text, e.Token.StartPos, span)
}

func (e *UnexpectedToken) ParserState() ParserState {
	return e.State
}

func (e *UnexpectedToken) Interactive() InteractiveParser {
	return e.InteractiveParser
}

func (e *UnexpectedToken) SetInteractive(ip InteractiveParser) {
	e.InteractiveParser = ip
	e.acceptsDone = false
	e.accepts = nil
}

func (e *UnexpectedToken) larkError() {}

// UnexpectedEOF is an UnexpectedToken raised for the end-marker token. errors.As finds the underlying
// UnexpectedToken too.
type UnexpectedEOF struct {
	*UnexpectedToken
}

func (e *UnexpectedEOF) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unexpected end-of-input at line %v, column %v. ", e.Token.Line, e.Token.Column)
	b.WriteString(formatExpected(e.expectedForMessage(), e.TerminalsByName))
	if len(e.TokenHistory) > 0 {
		fmt.Fprintf(&b, "Previous tokens: [%v]\n", formatTokens(e.TokenHistory))
	}
	return b.String()
}

func (e *UnexpectedEOF) Unwrap() error {
	return e.UnexpectedToken
}

// LastToken returns the last token consumed before the end of input, or nil for an empty input.
func (e *UnexpectedEOF) LastToken() *grammar.Token {
	if len(e.TokenHistory) == 0 {
		return nil
	}
	return e.TokenHistory[len(e.TokenHistory)-1]
}

// Example is a labeled group of malformed inputs used by MatchExamples.
type Example struct {
	Label  string
	Inputs []string
}

// MatchExamples parses each example input with `parse` and returns the label of the example whose
// error happened in the same parser state as `e`. An example raising the same token is preferred over
// a plain state match. When `tokenTypeFallback` is set, an example raising a token of the same type
// is preferred over a plain state match too. MatchExamples returns false when no example matches.
func MatchExamples(e UnexpectedInput, parse func(text string) error, examples []Example, tokenTypeFallback, useAccepts bool) (string, bool) {
	if e.ParserState() == nil {
		return "", false
	}
	selfTok := unexpectedTokenOf(e)

	var label string
	found := false
	byType := false
	for _, ex := range examples {
		for _, input := range ex.Inputs {
			var ut UnexpectedInput
			if !errors.As(parse(input), &ut) || !sameState(ut.ParserState(), e.ParserState()) {
				continue
			}
			utTok := unexpectedTokenOf(ut)
			if useAccepts && selfTok != nil && utTok != nil && !sameNames(selfTok.Accepts(), utTok.Accepts()) {
				continue
			}
			if selfTok != nil && utTok != nil {
				if utTok.Token.Equal(selfTok.Token) {
					return ex.Label, true
				}
				if tokenTypeFallback && !byType && utTok.Token.Type == selfTok.Token.Type {
					label = ex.Label
					found = true
					byType = true
				}
			}
			if !found {
				label = ex.Label
				found = true
			}
		}
	}
	return label, found
}

func unexpectedTokenOf(e UnexpectedInput) *UnexpectedToken {
	switch err := e.(type) {
	case *UnexpectedToken:
		return err
	case *UnexpectedEOF:
		return err.UnexpectedToken
	}
	return nil
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

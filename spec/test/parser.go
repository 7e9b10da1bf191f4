// Package test reads test cases of grammars. A test case consists of a description, a source text, and
// the tree the source text is expected to parse into, separated by lines of three or more hyphens:
//
//	Addition
//	---
//	1+2
//	---
//	(expr_binary
//	    (number (NUMBER '1'))
//	    (OP_4 '+')
//	    (number (NUMBER '2')))
//
// A node with a string is a token. `_` matches any kind, `(None)` is an absent optional symbol, and a
// tree consisting of only `(error)` expects the source text to be rejected.
package test

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nihei9/larkrt/spec/grammar"
	"github.com/nihei9/larkrt/tree"
)

const (
	// KindAny matches any kind.
	KindAny = "_"

	// KindNone is the kind of a placeholder of an absent optional symbol.
	KindNone = "None"

	// KindError is the kind of the tree expecting a parse failure.
	KindError = "error"
)

type TreeDiff struct {
	ExpectedPath string
	ActualPath   string
	Message      string
}

func newTreeDiff(expected, actual *Tree, message string) *TreeDiff {
	return &TreeDiff{
		ExpectedPath: expected.path(),
		ActualPath:   actual.path(),
		Message:      message,
	}
}

type Tree struct {
	Parent   *Tree
	Offset   int
	Kind     string
	Children []*Tree
	Lexeme   string
	IsToken  bool
}

func NewNonTerminalTree(kind string, children ...*Tree) *Tree {
	return &Tree{
		Kind:     kind,
		Children: children,
	}
}

func NewTerminalNode(kind string, lexeme string) *Tree {
	return &Tree{
		Kind:    kind,
		Lexeme:  lexeme,
		IsToken: true,
	}
}

// ConvertTree converts a tree a parser built. A nil child is converted into a `None` node.
func ConvertTree(t *tree.Tree) *Tree {
	return convertNode(t).Fill()
}

func convertNode(v any) *Tree {
	switch n := v.(type) {
	case *tree.Tree:
		var children []*Tree
		if len(n.Children) > 0 {
			children = make([]*Tree, len(n.Children))
			for i, c := range n.Children {
				children[i] = convertNode(c)
			}
		}
		return NewNonTerminalTree(n.Data, children...)
	case *grammar.Token:
		return NewTerminalNode(n.Type, n.Value)
	case nil:
		return NewNonTerminalTree(KindNone)
	}
	return NewTerminalNode(fmt.Sprintf("%T", v), fmt.Sprint(v))
}

func (t *Tree) Fill() *Tree {
	for i, c := range t.Children {
		c.Parent = t
		c.Offset = i
		c.Fill()
	}
	return t
}

// ExpectsError reports whether the tree is `(error)`.
func (t *Tree) ExpectsError() bool {
	return t.Kind == KindError && !t.IsToken && len(t.Children) == 0
}

func (t *Tree) path() string {
	if t.Parent == nil {
		return t.Kind
	}
	return fmt.Sprintf("%v.[%v]%v", t.Parent.path(), t.Offset, t.Kind)
}

func (t *Tree) Format() []byte {
	var b bytes.Buffer
	t.format(&b, 0)
	return b.Bytes()
}

func (t *Tree) format(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("    ")
	}
	buf.WriteString("(")
	buf.WriteString(t.Kind)
	if t.IsToken {
		buf.WriteString(" ")
		buf.WriteString(strconv.Quote(t.Lexeme))
	}
	if len(t.Children) > 0 {
		buf.WriteString("\n")
		for i, c := range t.Children {
			c.format(buf, depth+1)
			if i < len(t.Children)-1 {
				buf.WriteString("\n")
			}
		}
	}
	buf.WriteString(")")
}

func DiffTree(expected, actual *Tree) []*TreeDiff {
	if expected == nil && actual == nil {
		return nil
	}
	if expected.Kind != KindAny && actual.Kind != expected.Kind {
		msg := fmt.Sprintf("unexpected kind: expected '%v' but got '%v'", expected.Kind, actual.Kind)
		return []*TreeDiff{
			newTreeDiff(expected, actual, msg),
		}
	}
	if expected.IsToken != actual.IsToken {
		msg := "unexpected node type: expected a tree but got a token"
		if expected.IsToken {
			msg = "unexpected node type: expected a token but got a tree"
		}
		return []*TreeDiff{
			newTreeDiff(expected, actual, msg),
		}
	}
	if expected.Lexeme != actual.Lexeme {
		msg := fmt.Sprintf("unexpected lexeme: expected '%v' but got '%v'", expected.Lexeme, actual.Lexeme)
		return []*TreeDiff{
			newTreeDiff(expected, actual, msg),
		}
	}
	if len(actual.Children) != len(expected.Children) {
		msg := fmt.Sprintf("unexpected node count: expected %v but got %v", len(expected.Children), len(actual.Children))
		return []*TreeDiff{
			newTreeDiff(expected, actual, msg),
		}
	}
	var diffs []*TreeDiff
	for i, exp := range expected.Children {
		if ds := DiffTree(exp, actual.Children[i]); len(ds) > 0 {
			diffs = append(diffs, ds...)
		}
	}
	return diffs
}

type TestCase struct {
	Description string
	Source      []byte
	Output      *Tree
}

func ParseTestCase(r io.Reader) (*TestCase, error) {
	parts, err := splitIntoParts(r)
	if err != nil {
		return nil, err
	}
	if len(parts) != 3 {
		return nil, fmt.Errorf("too many or too few part delimiters: a test case consists of just tree parts: %v parts found", len(parts))
	}

	tp := &treeParser{
		lineOffset: parts[0].lineCount + parts[1].lineCount + 2,
	}
	output, err := tp.parse(bytes.NewReader(parts[2].buf))
	if err != nil {
		return nil, err
	}

	return &TestCase{
		Description: string(parts[0].buf),
		Source:      parts[1].buf,
		Output:      output,
	}, nil
}

type testCasePart struct {
	buf       []byte
	lineCount int
}

func splitIntoParts(r io.Reader) ([]*testCasePart, error) {
	var bufs []*testCasePart
	s := bufio.NewScanner(r)
	delimited := false
	for {
		buf, lineCount, endsWithDelim, err := readPart(s)
		if err != nil {
			return nil, err
		}
		if buf == nil {
			// A delimiter on the last line opens one more part that is empty.
			if delimited {
				bufs = append(bufs, &testCasePart{
					buf: []byte{},
				})
			}
			break
		}
		bufs = append(bufs, &testCasePart{
			buf:       buf,
			lineCount: lineCount,
		})
		delimited = endsWithDelim
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return bufs, nil
}

var reDelim = regexp.MustCompile(`^\s*---+\s*$`)

func readPart(s *bufio.Scanner) ([]byte, int, bool, error) {
	if !s.Scan() {
		return nil, 0, false, s.Err()
	}
	buf := &bytes.Buffer{}
	line := s.Bytes()
	if reDelim.Match(line) {
		// Return an empty slice because (*bytes.Buffer).Bytes() returns nil if we have never written data.
		return []byte{}, 0, true, nil
	}
	_, err := buf.Write(line)
	if err != nil {
		return nil, 0, false, err
	}
	lineCount := 1
	for s.Scan() {
		line := s.Bytes()
		if reDelim.Match(line) {
			return buf.Bytes(), lineCount, true, nil
		}
		_, err := buf.Write([]byte("\n"))
		if err != nil {
			return nil, 0, false, err
		}
		_, err = buf.Write(line)
		if err != nil {
			return nil, 0, false, err
		}
		lineCount++
	}
	if err := s.Err(); err != nil {
		return nil, 0, false, err
	}
	return buf.Bytes(), lineCount, false, nil
}

type treeParser struct {
	lineOffset int
	lex        *lexer
	peeked     *token
}

func (tp *treeParser) parse(src io.Reader) (*Tree, error) {
	var err error
	tp.lex, err = newLexer(src)
	if err != nil {
		return nil, err
	}
	t, err := tp.parseTree()
	if err != nil {
		return nil, err
	}
	tok, err := tp.consume()
	if err != nil {
		return nil, err
	}
	if tok.kind != tokenKindEOF {
		return nil, tp.syntaxError(tok, tokenKindEOF)
	}
	return t.Fill(), nil
}

func (tp *treeParser) peek() (*token, error) {
	if tp.peeked == nil {
		tok, err := tp.lex.next()
		if err != nil {
			return nil, err
		}
		tp.peeked = tok
	}
	return tp.peeked, nil
}

func (tp *treeParser) consume() (*token, error) {
	tok, err := tp.peek()
	if err != nil {
		return nil, err
	}
	tp.peeked = nil
	return tok, nil
}

func (tp *treeParser) expect(kind tokenKind) (*token, error) {
	tok, err := tp.consume()
	if err != nil {
		return nil, err
	}
	if tok.kind != kind {
		return nil, tp.syntaxError(tok, kind)
	}
	return tok, nil
}

func (tp *treeParser) syntaxError(tok *token, expected ...tokenKind) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%v:%v: unexpected token: ", tp.lineOffset+tok.row+1, tok.col+1)
	switch tok.kind {
	case tokenKindEOF:
		b.WriteString("<eof>")
	case tokenKindInvalid:
		fmt.Fprintf(&b, "'%v' (<invalid>)", tok.text)
	default:
		fmt.Fprintf(&b, "'%v' (%v)", tok.text, tok.kind)
	}
	fmt.Fprintf(&b, ": expected: %v", expected[0])
	for _, k := range expected[1:] {
		fmt.Fprintf(&b, ", %v", k)
	}
	return errors.New(b.String())
}

// parseTree parses `'(' identifier (string | tree*) ')'`.
func (tp *treeParser) parseTree() (*Tree, error) {
	_, err := tp.expect(tokenKindLParen)
	if err != nil {
		return nil, err
	}
	kind, err := tp.expect(tokenKindID)
	if err != nil {
		return nil, err
	}

	tok, err := tp.peek()
	if err != nil {
		return nil, err
	}
	switch tok.kind {
	case tokenKindRawString, tokenKindInterpretedString:
		tp.peeked = nil
		lexeme, err := tp.unquote(tok)
		if err != nil {
			return nil, err
		}
		_, err = tp.expect(tokenKindRParen)
		if err != nil {
			return nil, err
		}
		if kind.text == KindError {
			return nil, fmt.Errorf("%v:%v: error node cannot take a lexeme", tp.lineOffset+kind.row+1, kind.col+1)
		}
		return NewTerminalNode(kind.text, lexeme), nil
	}

	var children []*Tree
	for {
		tok, err := tp.peek()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokenKindRParen {
			tp.peeked = nil
			break
		}
		if tok.kind != tokenKindLParen {
			tp.peeked = nil
			return nil, tp.syntaxError(tok, tokenKindLParen, tokenKindRParen, tokenKindRawString, tokenKindInterpretedString)
		}
		c, err := tp.parseTree()
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}

	// A node labeled 'error' cannot have children. It always must be (error).
	if kind.text == KindError && len(children) > 0 {
		return nil, fmt.Errorf("%v:%v: error node cannot take children", tp.lineOffset+kind.row+1, kind.col+1)
	}
	return NewNonTerminalTree(kind.text, children...), nil
}

func (tp *treeParser) unquote(tok *token) (string, error) {
	if tok.kind == tokenKindRawString {
		return tok.text[1 : len(tok.text)-1], nil
	}
	s, err := strconv.Unquote(tok.text)
	if err != nil {
		return "", fmt.Errorf("%v:%v: invalid string: %v", tp.lineOffset+tok.row+1, tok.col+1, tok.text)
	}
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%v:%v: invalid code point: %v", tp.lineOffset+tok.row+1, tok.col+1, tok.text)
	}
	return s, nil
}

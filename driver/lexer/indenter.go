package lexer

import (
	"fmt"
	"strings"

	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/spec/grammar"
)

// Indenter is a post-lexer turning the indentation after newline tokens into INDENT and DEDENT tokens.
// Newlines inside parentheses are dropped.
type Indenter struct {
	NLType          string
	OpenParenTypes  []string
	CloseParenTypes []string
	IndentType      string
	DedentType      string
	TabLen          int
}

// NewPythonIndenter returns an Indenter with the terminal names of a Python-like grammar.
func NewPythonIndenter() *Indenter {
	return &Indenter{
		NLType:          "_NEWLINE",
		OpenParenTypes:  []string{"LPAR", "LSQB", "LBRACE"},
		CloseParenTypes: []string{"RPAR", "RSQB", "RBRACE"},
		IndentType:      "_INDENT",
		DedentType:      "_DEDENT",
		TabLen:          8,
	}
}

func (ind *Indenter) AlwaysAccept() []string {
	return []string{ind.NLType}
}

// Process returns a stream with indentation tokens. Each call starts with a fresh indentation stack.
func (ind *Indenter) Process(stream TokenStream) TokenStream {
	return &indentStream{
		ind:         ind,
		src:         stream,
		indentLevel: []int{0},
	}
}

type indentStream struct {
	ind         *Indenter
	src         TokenStream
	parenLevel  int
	indentLevel []int
	buf         []*grammar.Token
	last        *grammar.Token
	done        bool
}

func (s *indentStream) Next() (*grammar.Token, bool, error) {
	for len(s.buf) == 0 {
		if s.done {
			return nil, false, nil
		}
		err := s.fill()
		if err != nil {
			return nil, false, err
		}
	}
	tok := s.buf[0]
	s.buf = s.buf[1:]
	return tok, true, nil
}

func (s *indentStream) fill() error {
	tok, ok, err := s.src.Next()
	if err != nil {
		return err
	}
	if !ok {
		s.done = true
		for len(s.indentLevel) > 1 {
			s.indentLevel = s.indentLevel[:len(s.indentLevel)-1]
			s.buf = append(s.buf, s.eofDedent())
		}
		return nil
	}
	s.last = tok

	if tok.Type == s.ind.NLType {
		err := s.handleNL(tok)
		if err != nil {
			return err
		}
	} else {
		s.buf = append(s.buf, tok)
	}

	switch {
	case contains(s.ind.OpenParenTypes, tok.Type):
		s.parenLevel++
	case contains(s.ind.CloseParenTypes, tok.Type):
		if s.parenLevel == 0 {
			return fmt.Errorf("unbalanced closing parenthesis: %v", tok)
		}
		s.parenLevel--
	}
	return nil
}

func (s *indentStream) handleNL(tok *grammar.Token) error {
	if s.parenLevel > 0 {
		return nil
	}
	s.buf = append(s.buf, tok)

	indentStr := tok.Value
	if i := strings.LastIndex(indentStr, "\n"); i >= 0 {
		indentStr = indentStr[i+1:]
	}
	indent := strings.Count(indentStr, " ") + strings.Count(indentStr, "\t")*s.ind.TabLen

	top := s.indentLevel[len(s.indentLevel)-1]
	if indent > top {
		s.indentLevel = append(s.indentLevel, indent)
		s.buf = append(s.buf, grammar.NewTokenBorrowPos(s.ind.IndentType, indentStr, tok))
		return nil
	}
	for indent < s.indentLevel[len(s.indentLevel)-1] {
		s.indentLevel = s.indentLevel[:len(s.indentLevel)-1]
		s.buf = append(s.buf, grammar.NewTokenBorrowPos(s.ind.DedentType, indentStr, tok))
	}
	if expected := s.indentLevel[len(s.indentLevel)-1]; indent != expected {
		return &verr.DedentError{
			Message: fmt.Sprintf("Unexpected dedent to column %v. Expected dedent to %v", indent, expected),
		}
	}
	return nil
}

func (s *indentStream) eofDedent() *grammar.Token {
	if s.last == nil {
		return grammar.NewToken(s.ind.DedentType, "", 0, 1, 1)
	}
	tok := grammar.NewToken(s.ind.DedentType, "", s.last.EndPos, s.last.EndLine, s.last.EndColumn)
	tok.EndPos = s.last.EndPos
	tok.EndLine = s.last.EndLine
	tok.EndColumn = s.last.EndColumn
	return tok
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

package test

import (
	"fmt"
	"io"
	"strings"
	"sync"

	mlcompiler "github.com/nihei9/maleeni/compiler"
	mldriver "github.com/nihei9/maleeni/driver"
	mlspec "github.com/nihei9/maleeni/spec"
)

type tokenKind string

const (
	tokenKindLParen            = tokenKind("(")
	tokenKindRParen            = tokenKind(")")
	tokenKindID                = tokenKind("id")
	tokenKindRawString         = tokenKind("raw string")
	tokenKindInterpretedString = tokenKind("interpreted string")
	tokenKindEOF               = tokenKind("<eof>")
	tokenKindInvalid           = tokenKind("<invalid>")
)

type token struct {
	kind tokenKind
	text string
	row  int
	col  int
}

func newTreeLexSpec() *mlspec.LexSpec {
	return &mlspec.LexSpec{
		Name: "tree",
		Entries: []*mlspec.LexEntry{
			{
				Kind:    "white_space",
				Pattern: `[\u{0009}\u{000A}\u{000D}\u{0020}]+`,
			},
			{
				Kind:    "l_paren",
				Pattern: mlspec.LexPattern(mlspec.EscapePattern("(")),
			},
			{
				Kind:    "r_paren",
				Pattern: mlspec.LexPattern(mlspec.EscapePattern(")")),
			},
			{
				Kind:    "identifier",
				Pattern: `[A-Za-z_][0-9A-Za-z_]*`,
			},
			{
				Kind:    "raw_string",
				Pattern: `'[^\u{0027}]*'`,
			},
			{
				Kind:    "interpreted_string",
				Pattern: `\u{0022}([^\u{0022}\u{005C}]|\u{005C}.)*\u{0022}`,
			},
		},
	}
}

var (
	treeLexSpecOnce sync.Once
	treeLexSpec     *mlspec.CompiledLexSpec
	treeLexSpecErr  error
)

func compiledTreeLexSpec() (*mlspec.CompiledLexSpec, error) {
	treeLexSpecOnce.Do(func() {
		s, err, cErrs := mlcompiler.Compile(newTreeLexSpec(), mlcompiler.CompressionLevel(mlcompiler.CompressionLevelMax))
		if err != nil {
			if len(cErrs) > 0 {
				var b strings.Builder
				for i, cErr := range cErrs {
					if i > 0 {
						b.WriteString("\n")
					}
					fmt.Fprintf(&b, "%v: %v", cErr.Kind, cErr.Cause)
					if cErr.Detail != "" {
						fmt.Fprintf(&b, ": %v", cErr.Detail)
					}
				}
				treeLexSpecErr = fmt.Errorf("failed to compile the lexical specification of trees: %v", b.String())
				return
			}
			treeLexSpecErr = err
			return
		}
		treeLexSpec = s
	})
	return treeLexSpec, treeLexSpecErr
}

type lexer struct {
	s *mlspec.CompiledLexSpec
	d *mldriver.Lexer
}

func newLexer(src io.Reader) (*lexer, error) {
	s, err := compiledTreeLexSpec()
	if err != nil {
		return nil, err
	}
	d, err := mldriver.NewLexer(mldriver.NewLexSpec(s), src)
	if err != nil {
		return nil, err
	}
	return &lexer{
		s: s,
		d: d,
	}, nil
}

func (l *lexer) next() (*token, error) {
	for {
		tok, err := l.d.Next()
		if err != nil {
			return nil, err
		}
		if tok.EOF {
			return &token{
				kind: tokenKindEOF,
				row:  tok.Row,
				col:  tok.Col,
			}, nil
		}
		t := &token{
			text: string(tok.Lexeme),
			row:  tok.Row,
			col:  tok.Col,
		}
		if tok.Invalid {
			t.kind = tokenKindInvalid
			return t, nil
		}
		switch string(l.s.KindNames[tok.KindID]) {
		case "white_space":
			continue
		case "l_paren":
			t.kind = tokenKindLParen
		case "r_paren":
			t.kind = tokenKindRParen
		case "identifier":
			t.kind = tokenKindID
		case "raw_string":
			t.kind = tokenKindRawString
		case "interpreted_string":
			t.kind = tokenKindInterpretedString
		default:
			t.kind = tokenKindInvalid
		}
		return t, nil
	}
}

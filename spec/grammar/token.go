package grammar

import (
	"fmt"
	"strings"
)

// TokenTypeEnd is the type of the end-marker token the parser feeds after the last token.
const TokenTypeEnd = "$END"

// Token is a lexical unit. StartPos and EndPos are byte offsets, Line and Column are 1-based, and
// columns count runes.
type Token struct {
	Type      string
	Value     string
	StartPos  int
	Line      int
	Column    int
	EndLine   int
	EndColumn int
	EndPos    int
}

func NewToken(typ, value string, startPos, line, column int) *Token {
	return &Token{
		Type:     typ,
		Value:    value,
		StartPos: startPos,
		Line:     line,
		Column:   column,
	}
}

// NewTokenBorrowPos returns a new token whose position is copied from `borrow`.
func NewTokenBorrowPos(typ, value string, borrow *Token) *Token {
	return &Token{
		Type:      typ,
		Value:     value,
		StartPos:  borrow.StartPos,
		Line:      borrow.Line,
		Column:    borrow.Column,
		EndLine:   borrow.EndLine,
		EndColumn: borrow.EndColumn,
		EndPos:    borrow.EndPos,
	}
}

// Update returns a copy of the token with a new type and value. An empty argument keeps the original.
func (t *Token) Update(typ, value string) *Token {
	if typ == "" {
		typ = t.Type
	}
	if value == "" {
		value = t.Value
	}
	return NewTokenBorrowPos(typ, value, t)
}

// Equal reports whether two tokens have the same type and text. Positions are ignored.
func (t *Token) Equal(o *Token) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Type == o.Type && t.Value == o.Value
}

func (t *Token) String() string {
	return fmt.Sprintf("Token(%v, %v)", quote(t.Type), quote(t.Value))
}

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func quote(s string) string {
	return "'" + quoteReplacer.Replace(s) + "'"
}

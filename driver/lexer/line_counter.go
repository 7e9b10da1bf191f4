package lexer

import (
	"strings"
	"unicode/utf8"
)

// LineCounter tracks the position of a lexer in its input. CharPos and LineStartPos are byte offsets,
// RunePos is CharPos counted in runes. Line and Column are 1-based, and Column counts runes.
type LineCounter struct {
	NewlineChar  string
	CharPos      int
	RunePos      int
	Line         int
	Column       int
	LineStartPos int
}

func NewLineCounter() *LineCounter {
	return &LineCounter{
		NewlineChar: "\n",
		Line:        1,
		Column:      1,
	}
}

// Feed advances the counter over `text`. Newlines are looked for only when `testNewline` is true.
func (c *LineCounter) Feed(text string, testNewline bool) {
	n := utf8.RuneCountInString(text)
	c.RunePos += n
	if testNewline {
		if lines := strings.Count(text, c.NewlineChar); lines > 0 {
			last := strings.LastIndex(text, c.NewlineChar) + len(c.NewlineChar)
			c.Line += lines
			c.LineStartPos = c.CharPos + last
			c.CharPos += len(text)
			c.Column = utf8.RuneCountInString(text[last:]) + 1
			return
		}
	}
	c.CharPos += len(text)
	c.Column += n
}

func (c *LineCounter) Equal(o *LineCounter) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.CharPos == o.CharPos && c.NewlineChar == o.NewlineChar
}

func (c *LineCounter) Copy() *LineCounter {
	d := *c
	return &d
}

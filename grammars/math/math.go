// Package math embeds the compiled grammar of arithmetic expressions and compiles the expressions into
// functions that can be evaluated repeatedly.
package math

import (
	_ "embed"
	"sync"

	"github.com/nihei9/larkrt/lark"
	"github.com/nihei9/larkrt/spec/grammar"
)

//go:embed math.json
var grammarJSON []byte

var (
	gramOnce sync.Once
	gram     *grammar.CompiledGrammar
	gramErr  error
)

// Grammar returns the compiled grammar. The grammar is decoded once and shared, so callers must not
// modify it.
func Grammar() (*grammar.CompiledGrammar, error) {
	gramOnce.Do(func() {
		gram, gramErr = grammar.DecodeJSON(grammarJSON)
	})
	return gram, gramErr
}

// New returns a parser of the grammar.
func New(opts ...lark.Option) (*lark.Lark, error) {
	g, err := Grammar()
	if err != nil {
		return nil, err
	}
	return lark.New(g, opts...)
}

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nihei9/larkrt/lark"
	"github.com/nihei9/larkrt/spec/grammar"
)

// handlePanic turns a panic of a command into its error.
func handlePanic(retErr *error) {
	v := recover()
	if v == nil {
		return
	}
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("an unexpected error occurred: %v", v)
	}
	fmt.Fprintf(os.Stderr, "%v:\n%v", err, string(debug.Stack()))
	*retErr = err
}

// isBinary reports whether a grammar file holds the binary form.
func isBinary(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".bin"
}

func readCompiledGrammar(path string) (*grammar.CompiledGrammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isBinary(path) {
		return grammar.DecodeBinary(data)
	}
	return grammar.DecodeJSON(data)
}

// grammarPath returns the grammar given as the first argument, or the one of the config file.
func grammarPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.Grammar != "" {
		return cfg.Grammar, nil
	}
	return "", fmt.Errorf("a grammar file is required. Pass it as an argument or set `grammar` in the config file")
}

// addParserFlags registers the flags configuring a parser. They override the config file.
func addParserFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "start symbol (default: the one of the grammar)")
	cmd.Flags().String("lexer", "", "lexer type: basic, contextual, or auto (default: the one of the grammar)")
	cmd.Flags().Bool("propagate-positions", false, "fill the positions of trees")
}

func overrideParserConfig(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("start") {
		cfg.Start, _ = flags.GetString("start")
	}
	if flags.Changed("lexer") {
		cfg.Lexer, _ = flags.GetString("lexer")
	}
	if flags.Changed("propagate-positions") {
		cfg.PropagatePositions, _ = flags.GetBool("propagate-positions")
	}
}

// openParser loads the grammar of a command and builds a parser from the config.
func openParser(cmd *cobra.Command, args []string) (*lark.Lark, error) {
	path, err := grammarPath(args)
	if err != nil {
		return nil, err
	}
	overrideParserConfig(cmd)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g, err := readCompiledGrammar(path)
	if err != nil {
		return nil, fmt.Errorf("Cannot read a compiled grammar: %w", err)
	}
	var opts []lark.Option
	if cfg.Lexer != "" {
		opts = append(opts, lark.WithLexer(cfg.Lexer))
	}
	if cfg.Start != "" {
		opts = append(opts, lark.WithStart(cfg.Start))
	}
	if cfg.PropagatePositions {
		opts = append(opts, lark.PropagatePositions())
	}
	if cfg.Log.Verbosity >= 2 {
		opts = append(opts, lark.Debug(true))
	}
	p, err := lark.New(g, opts...)
	if err != nil {
		return nil, err
	}
	log.Infof("loaded %v", path)
	return p, nil
}

// readSource reads the file given by `path`, or stdin when it is empty.
func readSource(path string) (string, error) {
	if path == "" {
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("Cannot read the source: %w", err)
		}
		return string(src), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("Cannot open the source file %s: %w", path, err)
	}
	return string(src), nil
}

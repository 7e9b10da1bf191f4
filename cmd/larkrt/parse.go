package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/lark"
	tspec "github.com/nihei9/larkrt/spec/test"
	"github.com/nihei9/larkrt/tree"
)

var parseFlags = struct {
	source  *string
	format  *string
	recover *bool
}{}

func init() {
	cmd := &cobra.Command{
		Use:   "parse [<grammar file path>]",
		Short: "Parse a text stream",
		Example: `  cat src | larkrt parse grammar.json
  larkrt parse grammar.bin -s src --format sexp`,
		Args: cobra.MaximumNArgs(1),
		RunE: runParse,
	}
	parseFlags.source = cmd.Flags().StringP("source", "s", "", "source file path (default stdin)")
	parseFlags.format = cmd.Flags().StringP("format", "f", "", "output format: tree, json, or sexp (default tree)")
	parseFlags.recover = cmd.Flags().Bool("recover", false, "report every syntax error by skipping the tokens the parser can't accept")
	addParserFlags(cmd)
	rootCmd.AddCommand(cmd)
}

func runParse(cmd *cobra.Command, args []string) (retErr error) {
	defer handlePanic(&retErr)

	if cmd.Flags().Changed("format") {
		cfg.Output.Format = *parseFlags.format
	}
	if cmd.Flags().Changed("recover") {
		cfg.Recovery = *parseFlags.recover
	}
	p, err := openParser(cmd, args)
	if err != nil {
		return err
	}
	src, err := readSource(*parseFlags.source)
	if err != nil {
		return err
	}

	t, synErrs, err := parse(p, src, cfg.Recovery)
	for _, synErr := range synErrs {
		fmt.Fprint(os.Stderr, formatError(src, synErr))
	}
	if err != nil {
		return err
	}
	if len(synErrs) > 0 {
		return fmt.Errorf("%v syntax errors found", len(synErrs))
	}
	return writeTree(os.Stdout, t, cfg.Output.Format)
}

// parse parses `src`. With `recovery`, the unexpected inputs the parser skipped are returned along with
// the tree, and only a syntax error the parser can't recover from fails the parse.
func parse(p *lark.Lark, src string, recovery bool) (*tree.Tree, []verr.UnexpectedInput, error) {
	var synErrs []verr.UnexpectedInput
	var opts []lark.ParseOption
	if recovery {
		opts = append(opts, lark.OnError(func(e verr.UnexpectedInput) bool {
			if _, ok := e.(*verr.UnexpectedEOF); ok {
				return false
			}
			log.Debugf("recovering from %v", e)
			synErrs = append(synErrs, e)
			return true
		}))
	}
	t, err := p.ParseTree(src, opts...)
	if err != nil {
		var e verr.UnexpectedInput
		if errors.As(err, &e) {
			return nil, append(synErrs, e), nil
		}
		return nil, synErrs, err
	}
	return t, synErrs, nil
}

func writeTree(w io.Writer, t *tree.Tree, format string) error {
	switch format {
	case "", "tree":
		tree.PrintTree(w, t)
	case "json":
		b, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	case "sexp":
		fmt.Fprintln(w, string(tspec.ConvertTree(t).Format()))
	default:
		return fmt.Errorf("invalid output format: %v (tree, json, or sexp is required)", format)
	}
	return nil
}

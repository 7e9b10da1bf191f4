package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/nihei9/larkrt/lark"
)

var replFlags = struct {
	eval *bool
}{}

func init() {
	cmd := &cobra.Command{
		Use:   "repl [<grammar file path>]",
		Short: "Parse lines read interactively",
		Long: `repl reads lines with line editing and history and prints the tree of each line.
With --eval, each line is an arithmetic expression of the built-in math grammar instead, and a line in
the form 'name = expression' binds a variable the following lines may refer to.`,
		Example: `  larkrt repl grammar.json
  larkrt repl --eval`,
		Args: cobra.MaximumNArgs(1),
		RunE: runREPL,
	}
	replFlags.eval = cmd.Flags().Bool("eval", false, "evaluate arithmetic expressions")
	addParserFlags(cmd)
	rootCmd.AddCommand(cmd)
}

func runREPL(cmd *cobra.Command, args []string) (retErr error) {
	defer handlePanic(&retErr)

	var handle func(line string) error
	prompt := "> "
	if *replFlags.eval {
		handle = newEvaluator().eval
		prompt = "= "
	} else {
		p, err := openParser(cmd, args)
		if err != nil {
			return err
		}
		handle = func(line string) error {
			return parseLine(p, line)
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("create readline config: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, readline.ErrInterrupt) {
				if line == "" {
					return nil
				}
				continue
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := handle(line); err != nil {
			fmt.Fprint(os.Stderr, formatError(line, err))
			fmt.Fprintln(os.Stderr)
		}
	}
}

func parseLine(p *lark.Lark, line string) error {
	t, synErrs, err := parse(p, line, cfg.Recovery)
	if err != nil {
		return err
	}
	for _, synErr := range synErrs[:max(0, len(synErrs)-1)] {
		fmt.Fprint(os.Stderr, formatError(line, synErr))
	}
	if len(synErrs) > 0 {
		return synErrs[len(synErrs)-1]
	}
	return writeTree(os.Stdout, t, cfg.Output.Format)
}

var reBinding = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([^=].*)$`)

type evaluator struct {
	env map[string]float64
}

func newEvaluator() *evaluator {
	return &evaluator{
		env: map[string]float64{},
	}
}

func (e *evaluator) eval(line string) error {
	name := ""
	expr := line
	if m := reBinding.FindStringSubmatch(line); m != nil {
		name = m[1]
		// Padding keeps the positions of errors relative to the line.
		expr = strings.Repeat(" ", len(line)-len(m[2])) + m[2]
	}
	v, err := evaluate(expr, e.env)
	if err != nil {
		return err
	}
	if name != "" {
		e.env[name] = v
		fmt.Fprintf(os.Stdout, "%v = %v\n", name, formatNumber(v))
		return nil
	}
	fmt.Fprintln(os.Stdout, formatNumber(v))
	return nil
}

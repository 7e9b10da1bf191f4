package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	mathgrammar "github.com/nihei9/larkrt/grammars/math"
)

var evalFlags = struct {
	vars *[]string
}{}

func init() {
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an arithmetic expression with the built-in math grammar",
		Example: `  larkrt eval '2**10 - 1'
  larkrt eval 'a*x**2 + b' --var a=2 --var b=1 --var x=3`,
		Args: cobra.ExactArgs(1),
		RunE: runEval,
	}
	evalFlags.vars = cmd.Flags().StringArray("var", nil, "variable binding in the form name=value (repeatable)")
	rootCmd.AddCommand(cmd)
}

func runEval(cmd *cobra.Command, args []string) (retErr error) {
	defer handlePanic(&retErr)

	env, err := parseBindings(*evalFlags.vars)
	if err != nil {
		return err
	}
	v, err := evaluate(args[0], env)
	if err != nil {
		fmt.Fprint(os.Stderr, formatError(args[0], err))
		return fmt.Errorf("Cannot evaluate the expression")
	}
	fmt.Fprintln(os.Stdout, formatNumber(v))
	return nil
}

func parseBindings(bindings []string) (map[string]float64, error) {
	env := map[string]float64{}
	for _, b := range bindings {
		name, value, ok := strings.Cut(b, "=")
		if !ok {
			return nil, fmt.Errorf("invalid variable binding: %v (name=value is required)", b)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value of %v: %w", name, err)
		}
		env[strings.TrimSpace(name)] = v
	}
	return env, nil
}

func evaluate(expr string, env map[string]float64) (float64, error) {
	f, err := mathgrammar.Compile(expr)
	if err != nil {
		return 0, err
	}
	log.Debugf("compiled %v: variables %v", f, f.Vars())
	return f.Eval(env)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

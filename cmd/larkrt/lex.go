package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var lexFlags = struct {
	source      *string
	keepIgnored *bool
	plain       *bool
}{}

func init() {
	cmd := &cobra.Command{
		Use:     "lex [<grammar file path>]",
		Short:   "Tokenize a text stream",
		Example: `  cat src | larkrt lex grammar.json`,
		Args:    cobra.MaximumNArgs(1),
		RunE:    runLex,
	}
	lexFlags.source = cmd.Flags().StringP("source", "s", "", "source file path (default stdin)")
	lexFlags.keepIgnored = cmd.Flags().BoolP("keep-ignored", "k", false, "print tokens of ignored terminals too")
	lexFlags.plain = cmd.Flags().Bool("plain", false, "print a token per line instead of a table")
	rootCmd.AddCommand(cmd)
}

func runLex(cmd *cobra.Command, args []string) (retErr error) {
	defer handlePanic(&retErr)

	p, err := openParser(cmd, args)
	if err != nil {
		return err
	}
	src, err := readSource(*lexFlags.source)
	if err != nil {
		return err
	}

	data := [][]string{{"#", "Type", "Value", "Line", "Column"}}
	stream := p.Lex(src, *lexFlags.keepIgnored)
	for i := 0; ; i++ {
		tok, ok, err := stream.Next()
		if err != nil {
			if len(data) > 1 {
				printTokens(data)
			}
			fmt.Fprint(os.Stderr, formatError(src, err))
			return fmt.Errorf("Cannot tokenize the source")
		}
		if !ok {
			break
		}
		data = append(data, []string{
			strconv.Itoa(i),
			tok.Type,
			strconv.Quote(tok.Value),
			strconv.Itoa(tok.Line),
			strconv.Itoa(tok.Column),
		})
	}
	printTokens(data)
	return nil
}

func printTokens(data [][]string) {
	if *lexFlags.plain {
		for _, row := range data[1:] {
			fmt.Fprintf(os.Stdout, "%v:%v: %v %v\n", row[3], row[4], row[1], row[2])
		}
		return
	}
	fmt.Fprintln(os.Stdout, table(data))
}

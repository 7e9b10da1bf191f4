package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nihei9/larkrt/lark"
)

func init() {
	cmd := &cobra.Command{
		Use:   "convert <input grammar file path> <output grammar file path>",
		Short: "Convert a compiled grammar between the JSON and the binary forms",
		Long: `convert reads a compiled grammar and writes it in the form the extension of the output file
chooses: .bin for the binary form, and the JSON form otherwise.`,
		Example: `  larkrt convert grammar.json grammar.bin`,
		Args:    cobra.ExactArgs(2),
		RunE:    runConvert,
	}
	rootCmd.AddCommand(cmd)
}

func runConvert(cmd *cobra.Command, args []string) (retErr error) {
	defer handlePanic(&retErr)

	g, err := readCompiledGrammar(args[0])
	if err != nil {
		return fmt.Errorf("Cannot read a compiled grammar: %w", err)
	}
	// Building a parser validates the grammar before it is written.
	p, err := lark.New(g)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(args[1], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("Cannot create the output file %s: %w", args[1], err)
	}
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()
	if isBinary(args[1]) {
		err = p.SaveBinary(f)
	} else {
		err = p.Save(f)
	}
	if err != nil {
		return fmt.Errorf("Cannot write the grammar: %w", err)
	}
	log.Infof("converted %v into %v", args[0], args[1])
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nihei9/larkrt/tester"
)

func init() {
	cmd := &cobra.Command{
		Use:     "test [<grammar file path>] <test file path>|<test directory path>",
		Short:   "Test a grammar",
		Example: `  larkrt test grammar.json testdata`,
		Args:    cobra.RangeArgs(1, 2),
		RunE:    runTest,
	}
	addParserFlags(cmd)
	rootCmd.AddCommand(cmd)
}

func runTest(cmd *cobra.Command, args []string) (retErr error) {
	defer handlePanic(&retErr)

	testPath := args[len(args)-1]
	p, err := openParser(cmd, args[:len(args)-1])
	if err != nil {
		return err
	}

	var cs []*tester.TestCaseWithMetadata
	{
		cs = tester.ListTestCases(testPath)
		errOccurred := false
		for _, c := range cs {
			if c.Error != nil {
				fmt.Fprintf(os.Stderr, "Failed to read a test case or a directory: %v\n%v\n", c.FilePath, c.Error)
				errOccurred = true
			}
		}
		if errOccurred {
			return errors.New("Cannot run test")
		}
	}

	t := &tester.Tester{
		Parser: p,
		Cases:  cs,
		Start:  cfg.Start,
	}
	rs := t.Run()
	testFailed := false
	for _, r := range rs {
		if r.Error != nil {
			fmt.Fprintln(os.Stdout, errorStyle.Render(r.String()))
			testFailed = true
			continue
		}
		fmt.Fprintln(os.Stdout, passedStyle.Render(r.String()))
	}
	if testFailed {
		return errors.New("Test failed")
	}
	return nil
}

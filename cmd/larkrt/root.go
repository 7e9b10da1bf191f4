package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/nihei9/larkrt/config"
)

var log = commonlog.GetLogger("larkrt.cli")

var rootFlags = struct {
	config    *string
	verbosity *int
	logFile   *string
}{}

// cfg holds the settings of the running command. Flags given on the command line override it.
var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:   "larkrt",
	Short: "Parse texts with compiled Lark grammars",
	Long: `larkrt runs LALR parsers compiled by Lark:
- Parses a text stream and prints the tree.
- Tokenizes a text stream according to the grammar.
- Prints the tables of a grammar and runs test cases against it.
- Converts a grammar between the JSON and the binary forms.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setUp,
}

func init() {
	rootFlags.config = rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (.toml, .yaml, or .yml)")
	rootFlags.verbosity = rootCmd.PersistentFlags().CountP("verbose", "v", "increase the log verbosity (repeatable)")
	rootFlags.logFile = rootCmd.PersistentFlags().String("log", "", "log file path (default stderr)")
}

func setUp(cmd *cobra.Command, args []string) error {
	if *rootFlags.config != "" {
		c, err := config.Load(*rootFlags.config)
		if err != nil {
			return err
		}
		cfg = c
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Log.Verbosity = *rootFlags.verbosity
	}
	if cmd.Flags().Changed("log") {
		cfg.Log.File = *rootFlags.logFile
	}

	var logPath *string
	if cfg.Log.File != "" {
		logPath = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, logPath)
	log.Debugf("config: %+v", cfg)
	return nil
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return err
	}
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/nihei9/larkrt/spec/grammar"
)

var showFlags = struct {
	json     *bool
	noStates *bool
}{}

func init() {
	cmd := &cobra.Command{
		Use:     "show [<grammar file path>]",
		Short:   "Print the terminals, the productions, and the parse table of a grammar in a readable format",
		Example: `  larkrt show grammar.json`,
		Args:    cobra.MaximumNArgs(1),
		RunE:    runShow,
	}
	showFlags.json = cmd.Flags().Bool("json", false, "print the report in JSON")
	showFlags.noStates = cmd.Flags().Bool("no-states", false, "omit the states")
	rootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) (retErr error) {
	defer handlePanic(&retErr)

	path, err := grammarPath(args)
	if err != nil {
		return err
	}
	g, err := readCompiledGrammar(path)
	if err != nil {
		return fmt.Errorf("Cannot read a compiled grammar: %w", err)
	}
	report := grammar.Describe(g)
	if *showFlags.noStates {
		report.States = nil
	}

	if *showFlags.json {
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(b))
		return nil
	}
	return writeReport(os.Stdout, report)
}

const reportTemplate = `{{ heading "Terminals" }}

{{ printTerminals .Terminals }}

{{ heading "Productions" }}

{{ range .Productions -}}
{{ printProduction . }}
{{ end }}
{{ heading "Start States" }}

{{ printStarts . }}
{{ if .States }}
{{ heading "States" }}
{{ range .States }}
## State {{ .Number }}

{{ range .Shift -}}
{{ printShift . }}
{{ end -}}
{{ range .Reduce -}}
{{ printReduce . }}
{{ end -}}
{{ range .GoTo -}}
{{ printGoTo . }}
{{ end -}}
{{ end }}{{ end }}`

func writeReport(w io.Writer, report *grammar.Report) error {
	fns := template.FuncMap{
		"heading": func(title string) string {
			return headingStyle.Render("# " + title)
		},
		"printTerminals": func(terms []*grammar.Terminal) string {
			data := [][]string{{"#", "Name", "Pattern", "Priority", "Width", "Ignored"}}
			for _, t := range terms {
				ignored := ""
				if t.Ignored {
					ignored = "yes"
				}
				data = append(data, []string{
					strconv.Itoa(t.Number),
					t.Name,
					t.Pattern,
					strconv.Itoa(t.Priority),
					fmt.Sprintf("%v..%v", t.MinWidth, t.MaxWidth),
					ignored,
				})
			}
			return table(data)
		},
		"printProduction": func(prod *grammar.Production) string {
			var b strings.Builder
			fmt.Fprintf(&b, "%4v %v", prod.Number, prod.String())
			if prod.Alias != "" {
				fmt.Fprintf(&b, " -> %v", prod.Alias)
			}
			if prod.Expand {
				b.WriteString(mutedStyle.Render(" (expand1)"))
			}
			return b.String()
		},
		"printStarts": func(report *grammar.Report) string {
			starts := make([]string, 0, len(report.StartStates))
			for s := range report.StartStates {
				starts = append(starts, s)
			}
			sort.Strings(starts)
			var b strings.Builder
			for _, s := range starts {
				fmt.Fprintf(&b, "%v: start %v, end %v\n", s, report.StartStates[s], report.EndStates[s])
			}
			return b.String()
		},
		"printShift": func(tran *grammar.Transition) string {
			return fmt.Sprintf("shift  %4v on %v", tran.State, tran.Symbol)
		},
		"printReduce": func(reduce *grammar.Reduce) string {
			return fmt.Sprintf("reduce %4v on %v", reduce.Production, strings.Join(reduce.LookAhead, ", "))
		},
		"printGoTo": func(tran *grammar.Transition) string {
			return fmt.Sprintf("goto   %4v on %v", tran.State, tran.Symbol)
		},
	}

	tmpl, err := template.New("").Funcs(fns).Parse(reportTemplate)
	if err != nil {
		return err
	}

	err = tmpl.Execute(w, report)
	if err != nil {
		return err
	}

	return nil
}

package grammar

import "fmt"

const (
	ParserLALR = "lalr"

	LexerBasic      = "basic"
	LexerContextual = "contextual"
)

// CompiledGrammar is the loaded form of a compiled grammar artifact: terminal definitions, rules and
// a parse table. A CompiledGrammar is read-only once loaded and may be shared between parsers.
type CompiledGrammar struct {
	Options *Options
	Rules   []*Rule
	Lexer   *LexerConf
	Parser  *ParserConf
	Table   *ParseTable
}

type Options struct {
	Parser             string
	Lexer              string
	Start              []string
	Debug              bool
	Strict             bool
	KeepAllTokens      bool
	PropagatePositions bool
	MaybePlaceholders  bool
	GRegexFlags        int
	Priority           string
	Ambiguity          string
	UseBytes           bool
	OrderedSets        bool
}

func NewDefaultOptions() *Options {
	return &Options{
		Parser:      ParserLALR,
		Lexer:       LexerContextual,
		Start:       []string{"start"},
		Priority:    "auto",
		Ambiguity:   "auto",
		OrderedSets: true,
	}
}

type LexerConf struct {
	Terminals   []*TerminalDef
	Ignore      []string
	GRegexFlags int
	UseBytes    bool
	LexerType   string
}

type ParserConf struct {
	Rules      []*Rule
	Start      []string
	ParserType string
}

// Terminal returns a terminal definition named `name`.
func (g *CompiledGrammar) Terminal(name string) (*TerminalDef, bool) {
	for _, t := range g.Lexer.Terminals {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// TerminalsByName returns a map from terminal names to their definitions.
func (g *CompiledGrammar) TerminalsByName() map[string]*TerminalDef {
	m := make(map[string]*TerminalDef, len(g.Lexer.Terminals))
	for _, t := range g.Lexer.Terminals {
		m[t.Name] = t
	}
	return m
}

// Validate reports a missing section of the grammar and a start rule the parse table doesn't know.
func (g *CompiledGrammar) Validate() error {
	if g.Options == nil {
		return fmt.Errorf("options are missing")
	}
	if g.Lexer == nil {
		return fmt.Errorf("lexer configuration is missing")
	}
	if g.Parser == nil {
		return fmt.Errorf("parser configuration is missing")
	}
	if g.Table == nil {
		return fmt.Errorf("parse table is missing")
	}
	if len(g.Parser.Start) == 0 {
		return fmt.Errorf("start rule is missing")
	}
	for _, start := range g.Parser.Start {
		if _, ok := g.Table.StartStates[start]; !ok {
			return fmt.Errorf("start state of %v is missing", start)
		}
		if _, ok := g.Table.EndStates[start]; !ok {
			return fmt.Errorf("end state of %v is missing", start)
		}
	}
	return nil
}

// RegexFlags converts Python-compatible `re` flag bits into inline flags.
// Supported bits are IGNORECASE (2), MULTILINE (8), DOTALL (16) and UNICODE (32) that doesn't change
// the behavior since classes are always Unicode aware.
func RegexFlags(bits int) (string, error) {
	const (
		flagI = 2
		flagL = 4
		flagM = 8
		flagS = 16
		flagU = 32
		flagX = 64
	)

	if bits&flagL != 0 {
		return "", fmt.Errorf("LOCALE flag is not supported")
	}
	if bits&flagX != 0 {
		return "", fmt.Errorf("VERBOSE flag is not supported")
	}
	if rest := bits &^ (flagI | flagM | flagS | flagU); rest != 0 {
		return "", fmt.Errorf("unknown regex flags: %v", rest)
	}
	var fs string
	if bits&flagI != 0 {
		fs += "i"
	}
	if bits&flagM != 0 {
		fs += "m"
	}
	if bits&flagS != 0 {
		fs += "s"
	}
	return fs, nil
}

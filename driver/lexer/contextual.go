package lexer

import (
	"errors"
	"sort"
	"strings"

	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/spec/grammar"
)

// ContextualLexer tries only the terminals the parser accepts in its current state. Parser states
// accepting the same terminals share one BasicLexer.
type ContextualLexer struct {
	lexers    map[int]*BasicLexer
	rootLexer *BasicLexer
}

// NewContextualLexer builds a lexer per distinct set of accepted symbols in `states`. Symbols that
// aren't terminals of `conf` are ignored. The terminals in `alwaysAccept` and the ignored ones are
// added to every set.
func NewContextualLexer(conf *Conf, states map[int][]string, alwaysAccept []string) (*ContextualLexer, error) {
	byName := conf.terminalsByName()

	ids := make([]int, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	lexerByKey := map[string]*BasicLexer{}
	lexers := make(map[int]*BasicLexer, len(states))
	for _, id := range ids {
		key := acceptsKey(states[id])
		l, ok := lexerByKey[key]
		if !ok {
			accepts := map[string]struct{}{}
			for _, names := range [][]string{states[id], conf.Ignore, alwaysAccept} {
				for _, name := range names {
					accepts[name] = struct{}{}
				}
			}
			var terms []*grammar.TerminalDef
			for _, t := range conf.Terminals {
				if _, ok := accepts[t.Name]; ok {
					terms = append(terms, t)
				}
			}
			var err error
			l, err = NewBasicLexer(&Conf{
				Terminals:       terms,
				Ignore:          conf.Ignore,
				Callbacks:       conf.Callbacks,
				RegexFlags:      conf.RegexFlags,
				SkipValidation:  conf.SkipValidation,
				TerminalsByName: byName,
			})
			if err != nil {
				return nil, err
			}
			lexerByKey[key] = l
		}
		lexers[id] = l
	}

	root, err := NewBasicLexer(&Conf{
		Terminals:       conf.Terminals,
		Ignore:          conf.Ignore,
		Callbacks:       conf.Callbacks,
		RegexFlags:      conf.RegexFlags,
		SkipValidation:  true,
		TerminalsByName: byName,
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("built %v contextual lexers for %v parser states", len(lexerByKey), len(states))

	return &ContextualLexer{
		lexers:    lexers,
		rootLexer: root,
	}, nil
}

func acceptsKey(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// RootLexer returns the lexer trying all terminals.
func (l *ContextualLexer) RootLexer() *BasicLexer {
	return l.rootLexer
}

func (l *ContextualLexer) Lex(ls *State, ps verr.ParserState) TokenStream {
	return &contextualStream{
		lexer: l,
		ls:    ls,
		ps:    ps,
	}
}

type contextualStream struct {
	lexer *ContextualLexer
	ls    *State
	ps    verr.ParserState
}

func (s *contextualStream) Next() (*grammar.Token, bool, error) {
	l, ok := s.lexer.lexers[s.ps.Position()]
	if !ok {
		l = s.lexer.rootLexer
	}
	tok, ok, err := l.NextToken(s.ls, s.ps)
	if err == nil {
		return tok, ok, nil
	}

	var uc *verr.UnexpectedCharacters
	if !errors.As(err, &uc) {
		return nil, false, err
	}

	// A terminal the current state doesn't accept may still match. Such an input is reported as an
	// unexpected token rather than unexpected characters.
	last := s.ls.LastToken
	rootTok, ok, rootErr := s.lexer.rootLexer.NextToken(s.ls, s.ps)
	if rootErr != nil || !ok {
		return nil, false, uc
	}
	allowed := make(map[string]struct{}, len(uc.Allowed))
	for _, name := range uc.Allowed {
		allowed[name] = struct{}{}
	}
	ut := verr.NewUnexpectedToken(rootTok, allowed, s.ps)
	if last != nil {
		ut.TokenHistory = []*grammar.Token{last}
	}
	ut.TerminalsByName = s.lexer.rootLexer.terminalsByName
	return nil, false, ut
}

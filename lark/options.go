package lark

import (
	"github.com/nihei9/larkrt/driver/lexer"
	"github.com/nihei9/larkrt/driver/parser"
	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/spec/grammar"
	"github.com/nihei9/larkrt/tree"
)

type options struct {
	transformer        *tree.Transformer
	postLex            lexer.PostLexer
	lexerCallbacks     map[string]lexer.Callback
	propagatePositions bool
	nodeFilter         func(child any) bool
	maybePlaceholders  *bool
	keepAllTokens      bool
	debug              bool
	lexerType          string
	start              []string
	regexFlags         *int
}

// Option configures a Lark when it is loaded.
type Option func(o *options) error

// WithTransformer applies a transformer while parsing. Its handlers run on each reduction in place of
// building the trees they handle, so Parse returns whatever the handler of the root returns.
// Rules without a handler in Rules build trees; Default is used only by Transform, not while parsing.
func WithTransformer(tr *tree.Transformer) Option {
	return func(o *options) error {
		o.transformer = tr
		return nil
	}
}

// WithPostLex inserts a post-lexer between the lexer and the parser.
func WithPostLex(pl lexer.PostLexer) Option {
	return func(o *options) error {
		o.postLex = pl
		return nil
	}
}

// WithLexerCallbacks registers callbacks called with each token of the terminal they are keyed by,
// including tokens of ignored terminals.
func WithLexerCallbacks(cbs map[string]lexer.Callback) Option {
	return func(o *options) error {
		if o.lexerCallbacks == nil {
			o.lexerCallbacks = map[string]lexer.Callback{}
		}
		for name, cb := range cbs {
			o.lexerCallbacks[name] = cb
		}
		return nil
	}
}

// PropagatePositions sets the position of every tree from its children.
func PropagatePositions() Option {
	return func(o *options) error {
		o.propagatePositions = true
		return nil
	}
}

// WithNodeFilter propagates positions only from the children `filter` returns true for.
func WithNodeFilter(filter func(child any) bool) Option {
	return func(o *options) error {
		o.propagatePositions = true
		o.nodeFilter = filter
		return nil
	}
}

// MaybePlaceholders overrides whether absent optional symbols leave nil children. By default the
// setting stored in the grammar is used.
func MaybePlaceholders(enabled bool) Option {
	return func(o *options) error {
		o.maybePlaceholders = &enabled
		return nil
	}
}

// KeepAllTokens keeps punctuation tokens in all trees.
func KeepAllTokens() Option {
	return func(o *options) error {
		o.keepAllTokens = true
		return nil
	}
}

func Debug(debug bool) Option {
	return func(o *options) error {
		o.debug = debug
		return nil
	}
}

// WithLexer chooses the lexer: grammar.LexerBasic or grammar.LexerContextual. `auto` chooses the
// contextual lexer.
func WithLexer(typ string) Option {
	return func(o *options) error {
		o.lexerType = typ
		return nil
	}
}

// WithStart overrides the start symbols declared in the grammar. Each of them must have a start state
// in the parse table.
func WithStart(start ...string) Option {
	return func(o *options) error {
		if len(start) == 0 {
			return verr.NewConfigurationError("at least one start symbol is required")
		}
		o.start = start
		return nil
	}
}

// WithRegexFlags overrides the regular expression flags applied to all terminals. `bits` are
// Python-compatible `re` flag bits.
func WithRegexFlags(bits int) Option {
	return func(o *options) error {
		_, err := grammar.RegexFlags(bits)
		if err != nil {
			return verr.NewConfigurationError("invalid regex flags: %v", err)
		}
		o.regexFlags = &bits
		return nil
	}
}

type parseOptions struct {
	start   string
	onError parser.OnErrorFunc
}

// ParseOption configures a single parse.
type ParseOption func(o *parseOptions)

// Start chooses the start symbol. It is required when the grammar declares more than one.
func Start(start string) ParseOption {
	return func(o *parseOptions) {
		o.start = start
	}
}

// OnError makes a parse call `fn` with each unexpected input and recover when it returns true. Before
// returning true, `fn` may use the interactive parser attached to the error to feed or skip tokens.
func OnError(fn parser.OnErrorFunc) ParseOption {
	return func(o *parseOptions) {
		o.onError = fn
	}
}

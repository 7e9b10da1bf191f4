package math

import (
	"fmt"
	gomath "math"
	"sort"
	"strconv"
	"sync"

	"github.com/nihei9/larkrt/lark"
	"github.com/nihei9/larkrt/spec/grammar"
	"github.com/nihei9/larkrt/tree"
)

// Error reports an expression that parses but can't be compiled or evaluated.
type Error struct {
	Line    int
	Column  int
	Message string
}

func newError(tok *grammar.Token, format string, args ...any) *Error {
	return &Error{
		Line:    tok.Line,
		Column:  tok.Column,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *Error) Error() string {
	if e.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("%v:%v: %v", e.Line, e.Column, e.Message)
}

// opPower is the terminal of the exponent operators, `**` and `^`.
const opPower = "OP_7"

type evalFunc func(env map[string]float64) (float64, error)

type node struct {
	eval evalFunc
	vars map[string]struct{}
}

func constNode(v float64) *node {
	return &node{
		eval: func(map[string]float64) (float64, error) {
			return v, nil
		},
	}
}

func mergeVars(nodes ...*node) map[string]struct{} {
	var vars map[string]struct{}
	for _, n := range nodes {
		for v := range n.vars {
			if vars == nil {
				vars = map[string]struct{}{}
			}
			vars[v] = struct{}{}
		}
	}
	return vars
}

var constants = map[string]float64{
	"pi":  gomath.Pi,
	"e":   gomath.E,
	"tau": 2 * gomath.Pi,
	"phi": gomath.Phi,
	"inf": gomath.Inf(1),
}

// Function is a compiled expression. A Function is safe for concurrent use.
type Function struct {
	expr string
	vars []string
	eval evalFunc
}

var (
	compilerOnce sync.Once
	compiler     *lark.Lark
	compilerErr  error
)

func getCompiler() (*lark.Lark, error) {
	compilerOnce.Do(func() {
		compiler, compilerErr = New(lark.WithTransformer(newCompileTransformer()))
	})
	return compiler, compilerErr
}

// Compile parses an expression. Identifiers other than the constants pi, e, tau, phi and inf are
// variables bound when the function is evaluated.
func Compile(expr string) (*Function, error) {
	c, err := getCompiler()
	if err != nil {
		return nil, err
	}
	res, err := c.Parse(expr)
	if err != nil {
		return nil, err
	}
	n, ok := res.(*node)
	if !ok {
		return nil, fmt.Errorf("an expression compiled into an unexpected value: %T", res)
	}

	vars := make([]string, 0, len(n.vars))
	for v := range n.vars {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	return &Function{
		expr: expr,
		vars: vars,
		eval: n.eval,
	}, nil
}

// MustCompile is like Compile but panics if the expression can't be compiled.
func MustCompile(expr string) *Function {
	f, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Function) String() string {
	return f.expr
}

// Vars returns the free variables of the expression in ascending order.
func (f *Function) Vars() []string {
	return f.vars
}

// Eval evaluates the expression. `env` must bind all the free variables.
func (f *Function) Eval(env map[string]float64) (float64, error) {
	return f.eval(env)
}

// Call evaluates an expression of at most one free variable with the variable bound to `x`.
func (f *Function) Call(x float64) (float64, error) {
	switch len(f.vars) {
	case 0:
		return f.eval(nil)
	case 1:
		return f.eval(map[string]float64{
			f.vars[0]: x,
		})
	}
	return 0, &Error{
		Message: fmt.Sprintf("a function of one variable was expected, but the expression has %v: %v", len(f.vars), f.vars),
	}
}

func newCompileTransformer() *tree.Transformer {
	return &tree.Transformer{
		Rules: map[string]tree.RuleFunc{
			"number":         compileNumber,
			"var":            compileVar,
			"expr_unary":     compileUnary,
			"expr_binary":    compileBinary,
			"expr_func_call": compileFuncCall,
		},
	}
}

func compileNumber(children []any, _ *tree.Meta) (any, error) {
	tok := children[0].(*grammar.Token)
	v, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		return nil, newError(tok, "invalid number: %v", tok.Value)
	}
	return constNode(v), nil
}

func compileVar(children []any, _ *tree.Meta) (any, error) {
	tok := children[0].(*grammar.Token)
	name := tok.Value
	if v, ok := constants[name]; ok {
		return constNode(v), nil
	}
	return &node{
		eval: func(env map[string]float64) (float64, error) {
			v, ok := env[name]
			if !ok {
				return 0, newError(tok, "undefined variable: %v", name)
			}
			return v, nil
		},
		vars: map[string]struct{}{
			name: {},
		},
	}, nil
}

func toInt(tok *grammar.Token, v float64) (int64, error) {
	if v != gomath.Trunc(v) || gomath.IsInf(v, 0) {
		return 0, newError(tok, "operands of %v must be integers, but got %v", tok.Value, v)
	}
	return int64(v), nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func compileUnary(children []any, _ *tree.Meta) (any, error) {
	op := children[0].(*grammar.Token)
	x := children[1].(*node)

	var f func(v float64) (float64, error)
	switch op.Value {
	case "+":
		return x, nil
	case "-":
		f = func(v float64) (float64, error) {
			return -v, nil
		}
	case "!":
		f = func(v float64) (float64, error) {
			return boolValue(v == 0), nil
		}
	case "~":
		f = func(v float64) (float64, error) {
			i, err := toInt(op, v)
			if err != nil {
				return 0, err
			}
			return float64(^i), nil
		}
	default:
		return nil, newError(op, "unsupported unary operator: %v", op.Value)
	}

	return &node{
		eval: func(env map[string]float64) (float64, error) {
			v, err := x.eval(env)
			if err != nil {
				return 0, err
			}
			return f(v)
		},
		vars: x.vars,
	}, nil
}

func compileBinary(children []any, _ *tree.Meta) (any, error) {
	lhs := children[0].(*node)
	op := children[1].(*grammar.Token)
	rhs := children[2].(*node)

	var f func(a, b float64) (float64, error)
	switch op.Value {
	case "+":
		f = func(a, b float64) (float64, error) { return a + b, nil }
	case "-":
		f = func(a, b float64) (float64, error) { return a - b, nil }
	case "*":
		f = func(a, b float64) (float64, error) { return a * b, nil }
	case "/":
		f = func(a, b float64) (float64, error) { return a / b, nil }
	case "%":
		f = func(a, b float64) (float64, error) { return gomath.Mod(a, b), nil }
	case "**":
		f = func(a, b float64) (float64, error) { return gomath.Pow(a, b), nil }
	case "==":
		f = func(a, b float64) (float64, error) { return boolValue(a == b), nil }
	case "!=":
		f = func(a, b float64) (float64, error) { return boolValue(a != b), nil }
	case "<":
		f = func(a, b float64) (float64, error) { return boolValue(a < b), nil }
	case "<=":
		f = func(a, b float64) (float64, error) { return boolValue(a <= b), nil }
	case ">":
		f = func(a, b float64) (float64, error) { return boolValue(a > b), nil }
	case ">=":
		f = func(a, b float64) (float64, error) { return boolValue(a >= b), nil }
	case "^":
		// The exponent pattern matches "^" too, but the lexer retypes it into the exclusive-or
		// operator wherever both are acceptable.
		if op.Type == opPower {
			f = func(a, b float64) (float64, error) { return gomath.Pow(a, b), nil }
			break
		}
		fallthrough
	case "|", "&":
		bitOp := op.Value
		f = func(a, b float64) (float64, error) {
			i, err := toInt(op, a)
			if err != nil {
				return 0, err
			}
			j, err := toInt(op, b)
			if err != nil {
				return 0, err
			}
			switch bitOp {
			case "|":
				return float64(i | j), nil
			case "^":
				return float64(i ^ j), nil
			}
			return float64(i & j), nil
		}
	default:
		return nil, newError(op, "unsupported operator: %v", op.Value)
	}

	return &node{
		eval: func(env map[string]float64) (float64, error) {
			a, err := lhs.eval(env)
			if err != nil {
				return 0, err
			}
			b, err := rhs.eval(env)
			if err != nil {
				return 0, err
			}
			return f(a, b)
		},
		vars: mergeVars(lhs, rhs),
	}, nil
}

type builtin struct {
	// minArgs and maxArgs bound the count of arguments. A negative maxArgs means no upper bound.
	minArgs int
	maxArgs int
	call    func(args []float64) float64
}

func unaryBuiltin(f func(float64) float64) *builtin {
	return &builtin{
		minArgs: 1,
		maxArgs: 1,
		call: func(args []float64) float64 {
			return f(args[0])
		},
	}
}

func binaryBuiltin(f func(float64, float64) float64) *builtin {
	return &builtin{
		minArgs: 2,
		maxArgs: 2,
		call: func(args []float64) float64 {
			return f(args[0], args[1])
		},
	}
}

var builtins = map[string]*builtin{
	"sin":   unaryBuiltin(gomath.Sin),
	"cos":   unaryBuiltin(gomath.Cos),
	"tan":   unaryBuiltin(gomath.Tan),
	"asin":  unaryBuiltin(gomath.Asin),
	"acos":  unaryBuiltin(gomath.Acos),
	"atan":  unaryBuiltin(gomath.Atan),
	"sinh":  unaryBuiltin(gomath.Sinh),
	"cosh":  unaryBuiltin(gomath.Cosh),
	"tanh":  unaryBuiltin(gomath.Tanh),
	"sqrt":  unaryBuiltin(gomath.Sqrt),
	"cbrt":  unaryBuiltin(gomath.Cbrt),
	"abs":   unaryBuiltin(gomath.Abs),
	"exp":   unaryBuiltin(gomath.Exp),
	"ln":    unaryBuiltin(gomath.Log),
	"log10": unaryBuiltin(gomath.Log10),
	"log2":  unaryBuiltin(gomath.Log2),
	"floor": unaryBuiltin(gomath.Floor),
	"ceil":  unaryBuiltin(gomath.Ceil),
	"round": unaryBuiltin(gomath.Round),
	"trunc": unaryBuiltin(gomath.Trunc),
	"sign": unaryBuiltin(func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return x
	}),
	"atan2": binaryBuiltin(gomath.Atan2),
	"pow":   binaryBuiltin(gomath.Pow),
	"hypot": binaryBuiltin(gomath.Hypot),
	// log(x) is the natural logarithm and log(x, base) is the logarithm to the base.
	"log": {
		minArgs: 1,
		maxArgs: 2,
		call: func(args []float64) float64 {
			if len(args) == 1 {
				return gomath.Log(args[0])
			}
			return gomath.Log(args[0]) / gomath.Log(args[1])
		},
	},
	"min": {
		minArgs: 1,
		maxArgs: -1,
		call: func(args []float64) float64 {
			m := args[0]
			for _, a := range args[1:] {
				m = gomath.Min(m, a)
			}
			return m
		},
	},
	"max": {
		minArgs: 1,
		maxArgs: -1,
		call: func(args []float64) float64 {
			m := args[0]
			for _, a := range args[1:] {
				m = gomath.Max(m, a)
			}
			return m
		},
	},
}

func compileFuncCall(children []any, _ *tree.Meta) (any, error) {
	name := children[0].(*grammar.Token)
	args := make([]*node, 0, len(children)-1)
	for _, c := range children[1:] {
		args = append(args, c.(*node))
	}

	b, ok := builtins[name.Value]
	if !ok {
		return nil, newError(name, "unknown function: %v", name.Value)
	}
	if len(args) < b.minArgs || (b.maxArgs >= 0 && len(args) > b.maxArgs) {
		return nil, newError(name, "%v takes %v, but got %v", name.Value, arity(b), len(args))
	}

	return &node{
		eval: func(env map[string]float64) (float64, error) {
			vs := make([]float64, len(args))
			for i, a := range args {
				v, err := a.eval(env)
				if err != nil {
					return 0, err
				}
				vs[i] = v
			}
			return b.call(vs), nil
		},
		vars: mergeVars(args...),
	}, nil
}

func arity(b *builtin) string {
	switch {
	case b.maxArgs < 0:
		return fmt.Sprintf("at least %v arguments", b.minArgs)
	case b.minArgs == b.maxArgs && b.minArgs == 1:
		return "1 argument"
	case b.minArgs == b.maxArgs:
		return fmt.Sprintf("%v arguments", b.minArgs)
	}
	return fmt.Sprintf("%v to %v arguments", b.minArgs, b.maxArgs)
}

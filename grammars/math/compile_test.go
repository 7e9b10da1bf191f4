package math

import (
	"errors"
	gomath "math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	verr "github.com/nihei9/larkrt/error"
)

func TestCompile(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		env    map[string]float64
		expect float64
	}{
		{
			name:   "precedence",
			input:  "1+2*3",
			expect: 7,
		},
		{
			name:   "parentheses",
			input:  "(1+2)*3",
			expect: 9,
		},
		{
			name:   "power is right associative",
			input:  "2**3**2",
			expect: 512,
		},
		{
			name:   "double star is power",
			input:  "x**2",
			env:    map[string]float64{"x": 3},
			expect: 9,
		},
		{
			name:   "caret is exclusive or",
			input:  "6^3",
			expect: 5,
		},
		{
			name:   "double star binds tighter than negation",
			input:  "-2**2",
			expect: -4,
		},
		{
			name:   "bitwise operators",
			input:  "6&3 | 8",
			expect: 10,
		},
		{
			name:   "bitwise and power",
			input:  "1|2^3&4",
			expect: 3,
		},
		{
			name:   "unary operators",
			input:  "!0 + ~5",
			expect: -5,
		},
		{
			name:   "comparisons",
			input:  "(3 > 2) + (3 <= 2) + (x == 1)",
			env:    map[string]float64{"x": 1},
			expect: 2,
		},
		{
			name:   "modulo",
			input:  "7 % 4",
			expect: 3,
		},
		{
			name:   "variadic function",
			input:  "max(1, 5, 3)",
			expect: 5,
		},
		{
			name:   "trailing comma",
			input:  "min(4, 2,)",
			expect: 2,
		},
		{
			name:   "nested calls",
			input:  "hypot(3, abs(-4))",
			expect: 5,
		},
		{
			name:   "several variables",
			input:  "x*y - z",
			env:    map[string]float64{"x": 2, "y": 5, "z": 1},
			expect: 9,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			f, err := Compile(tc.input)
			if !assert.NoError(err) {
				return
			}
			actual, err := f.Eval(tc.env)
			if !assert.NoError(err) {
				return
			}
			assert.Equal(tc.expect, actual)
		})
	}
}

func TestCompile_Constants(t *testing.T) {
	assert := assert.New(t)

	f, err := Compile("sin(pi/2) + log(e) + log(8, 2)")
	if !assert.NoError(err) {
		return
	}
	assert.Empty(f.Vars())
	v, err := f.Call(0)
	if assert.NoError(err) {
		assert.InDelta(5, v, 1e-9)
	}
}

func TestCompile_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "dereference isn't supported",
			input:  "*x",
			expect: "1:1: unsupported unary operator: *",
		},
		{
			name:   "unknown function",
			input:  "1 + foo(1)",
			expect: "1:5: unknown function: foo",
		},
		{
			name:   "too many arguments",
			input:  "sin(1, 2)",
			expect: "1:1: sin takes 1 argument, but got 2",
		},
		{
			name:   "too few arguments",
			input:  "atan2(1)",
			expect: "1:1: atan2 takes 2 arguments, but got 1",
		},
		{
			name:   "no arguments",
			input:  "max()",
			expect: "1:1: max takes at least 1 arguments, but got 0",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			_, err := Compile(tc.input)
			var exprErr *Error
			if !assert.True(errors.As(err, &exprErr), "unexpected error: %v", err) {
				return
			}
			assert.Equal(tc.expect, err.Error())
		})
	}

	t.Run("syntax error", func(t *testing.T) {
		_, err := Compile("1+")
		var eof *verr.UnexpectedEOF
		assert.True(t, errors.As(err, &eof))
	})
}

func TestFunction_Eval(t *testing.T) {
	t.Run("undefined variable", func(t *testing.T) {
		assert := assert.New(t)

		f := MustCompile("1 + x")
		assert.Equal([]string{"x"}, f.Vars())
		_, err := f.Eval(nil)
		if assert.Error(err) {
			assert.Equal("1:5: undefined variable: x", err.Error())
		}
	})

	t.Run("bitwise operators need integers", func(t *testing.T) {
		assert := assert.New(t)

		f := MustCompile("x | 1")
		_, err := f.Eval(map[string]float64{"x": 1.5})
		if assert.Error(err) {
			assert.Equal("1:3: operands of | must be integers, but got 1.5", err.Error())
		}
		v, err := f.Eval(map[string]float64{"x": 2})
		if assert.NoError(err) {
			assert.Equal(float64(3), v)
		}
	})

	t.Run("division by zero", func(t *testing.T) {
		v, err := MustCompile("1/x").Call(0)
		if assert.NoError(t, err) {
			assert.True(t, gomath.IsInf(v, 1))
		}
	})
}

func TestFunction_Call(t *testing.T) {
	assert := assert.New(t)

	f := MustCompile("x**2 + 1")
	assert.Equal("x**2 + 1", f.String())
	for x, want := range map[float64]float64{0: 1, 2: 5, -3: 10} {
		v, err := f.Call(x)
		if assert.NoError(err) {
			assert.Equal(want, v)
		}
	}

	_, err := MustCompile("x + y").Call(1)
	assert.EqualError(err, "a function of one variable was expected, but the expression has 2: [x y]")
}

func TestFunction_Concurrent(t *testing.T) {
	f := MustCompile("a*x**2 + b*x + c")

	var wg sync.WaitGroup
	results := make([]float64, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.Eval(map[string]float64{
				"a": 1,
				"b": 2,
				"c": 3,
				"x": float64(i),
			})
		}(i)
	}
	wg.Wait()

	for i, v := range results {
		x := float64(i)
		assert.Equal(t, x*x+2*x+3, v)
	}
}

func TestGrammar(t *testing.T) {
	assert := assert.New(t)

	g, err := Grammar()
	if !assert.NoError(err) {
		return
	}
	assert.Equal([]string{"start"}, g.Parser.Start)

	l, err := New()
	if !assert.NoError(err) {
		return
	}
	res, err := l.ParseTree("f(x)")
	if assert.NoError(err) {
		assert.Equal("expr_func_call", res.Data)
	}
}

package tester

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mathgrammar "github.com/nihei9/larkrt/grammars/math"
	tspec "github.com/nihei9/larkrt/spec/test"
)

func TestTester_Run(t *testing.T) {
	tests := []struct {
		testSrc string
		error   bool
	}{
		{
			testSrc: `
Test
---
1+2
---
(expr_binary
    (number (NUMBER '1'))
    (OP_4 '+')
    (number (NUMBER '2')))
`,
		},
		{
			testSrc: `
Test
---
f(x, 1,)
---
(expr_func_call
    (ID 'f')
    (var (ID 'x'))
    (_ (NUMBER '1')))
`,
		},
		{
			testSrc: `
Test
---
1 +
---
(error)
`,
		},
		{
			testSrc: `
Test
---
1 + 2
---
(error)
`,
			error: true,
		},
		{
			testSrc: `
Test
---
1+2
---
(expr_binary)
`,
			error: true,
		},
		{
			testSrc: `
Test
---
1+2
---
(expr_binary
    (number (NUMBER '1'))
    (OP_4 '-')
    (number (NUMBER '2')))
`,
			error: true,
		},
		{
			testSrc: `
Test
---
1+2
---
(expr_binary
    (number (NUMBER '1'))
    (OP_4 '+')
    (number))
`,
			error: true,
		},
		{
			testSrc: `
Test
---
1 $ 2
---
(number (NUMBER '1'))
`,
			error: true,
		},
	}

	p, err := mathgrammar.New()
	if err != nil {
		t.Fatal(err)
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("#%v", i), func(t *testing.T) {
			c, err := tspec.ParseTestCase(strings.NewReader(tt.testSrc))
			if err != nil {
				t.Fatal(err)
			}
			tester := &Tester{
				Parser: p,
				Cases: []*TestCaseWithMetadata{
					{
						TestCase: c,
					},
				},
			}
			rs := tester.Run()
			if tt.error {
				errOccurred := false
				for _, r := range rs {
					if r.Error != nil {
						errOccurred = true
					}
				}
				if !errOccurred {
					t.Fatal("this test must fail, but it passed")
				}
			} else {
				for _, r := range rs {
					if r.Error != nil {
						t.Fatalf("unexpected error occurred: %v", r)
					}
				}
			}
		})
	}
}

func TestTestResult_String(t *testing.T) {
	p, err := mathgrammar.New()
	if err != nil {
		t.Fatal(err)
	}
	c, err := tspec.ParseTestCase(strings.NewReader(`Test
---
1+2
---
(expr_binary
    (number (NUMBER '1'))
    (OP_4 '-')
    (number (NUMBER '2')))
`))
	if err != nil {
		t.Fatal(err)
	}
	tester := &Tester{
		Parser: p,
		Cases: []*TestCaseWithMetadata{
			{
				TestCase: c,
				FilePath: "add.txt",
			},
		},
	}
	rs := tester.Run()
	if len(rs) != 1 {
		t.Fatalf("unexpected result count: want: 1, got: %v", len(rs))
	}
	expected := `Failed add.txt:
    output mismatch
        unexpected lexeme: expected '-' but got '+'
            expected path: expr_binary.[1]OP_4
            actual path:   expr_binary.[1]OP_4`
	if actual := rs[0].String(); actual != expected {
		t.Fatalf("unexpected result: want: %v, got: %v", expected, actual)
	}
}

func TestListTestCases(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "ok.txt"), []byte("Test\n---\n1\n---\n(number (NUMBER '1'))\n"), 0644)
	if err != nil {
		t.Fatal(err)
	}
	err = os.Mkdir(filepath.Join(dir, "sub"), 0755)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(filepath.Join(dir, "sub", "broken.txt"), []byte("Test\n---\n1\n"), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cs := ListTestCases(dir)
	if len(cs) != 2 {
		t.Fatalf("unexpected test case count: want: 2, got: %v", len(cs))
	}
	if cs[0].Error != nil || cs[0].TestCase == nil {
		t.Fatalf("a test case must be read: %v", cs[0].Error)
	}
	if cs[1].Error == nil {
		t.Fatalf("a broken test case must be reported")
	}

	p, err := mathgrammar.New()
	if err != nil {
		t.Fatal(err)
	}
	rs := (&Tester{
		Parser: p,
		Cases:  cs,
	}).Run()
	if rs[0].Error != nil {
		t.Fatalf("unexpected error occurred: %v", rs[0])
	}
	if rs[1].Error == nil {
		t.Fatalf("a broken test case must fail")
	}
}

func TestTester_Corpus(t *testing.T) {
	p, err := mathgrammar.New()
	if err != nil {
		t.Fatal(err)
	}
	cs := ListTestCases("../grammars/math/testdata")
	if len(cs) == 0 {
		t.Fatal("no test cases found")
	}
	for _, r := range (&Tester{Parser: p, Cases: cs}).Run() {
		if r.Error != nil {
			t.Errorf("%v", r)
		}
	}
}

package tester

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/tliron/commonlog"

	verr "github.com/nihei9/larkrt/error"
	"github.com/nihei9/larkrt/lark"
	tspec "github.com/nihei9/larkrt/spec/test"
	"github.com/nihei9/larkrt/tree"
)

var log = commonlog.GetLogger("larkrt.tester")

type TestResult struct {
	TestCasePath string
	Error        error
	Diffs        []*tspec.TreeDiff
}

func (r *TestResult) String() string {
	if r.Error == nil {
		return fmt.Sprintf("Passed %v", r.TestCasePath)
	}

	const indent = "    "
	var b strings.Builder
	fmt.Fprintf(&b, "Failed %v:", r.TestCasePath)
	for _, line := range strings.Split(r.Error.Error(), "\n") {
		fmt.Fprintf(&b, "\n%v%v", indent, line)
	}
	for _, diff := range r.Diffs {
		fmt.Fprintf(&b, "\n%v%v", indent+indent, diff.Message)
		fmt.Fprintf(&b, "\n%vexpected path: %v", indent+indent+indent, diff.ExpectedPath)
		fmt.Fprintf(&b, "\n%vactual path:   %v", indent+indent+indent, diff.ActualPath)
	}
	return b.String()
}

type TestCaseWithMetadata struct {
	TestCase *tspec.TestCase
	FilePath string
	Error    error
}

// ListTestCases reads the test case at `testPath`, or every .txt file under it when it is a directory.
// A file or a directory that can't be read is reported as a case holding the error.
func ListTestCases(testPath string) []*TestCaseWithMetadata {
	var cases []*TestCaseWithMetadata
	filepath.WalkDir(testPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			cases = append(cases, &TestCaseWithMetadata{
				FilePath: path,
				Error:    err,
			})
			return nil
		}
		if d.IsDir() || (path != testPath && filepath.Ext(path) != ".txt") {
			return nil
		}
		c, err := parseTestCase(path)
		cases = append(cases, &TestCaseWithMetadata{
			TestCase: c,
			FilePath: path,
			Error:    err,
		})
		return nil
	})
	return cases
}

func parseTestCase(testCasePath string) (*tspec.TestCase, error) {
	f, err := os.Open(testCasePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tspec.ParseTestCase(f)
}

// Tester parses the source of each test case and compares the tree with the expected one.
type Tester struct {
	Parser *lark.Lark
	Cases  []*TestCaseWithMetadata

	// Start chooses the start symbol of a parser having more than one.
	Start string
}

func (t *Tester) Run() []*TestResult {
	var rs []*TestResult
	for _, c := range t.Cases {
		r := t.runTest(c)
		if r.Error != nil {
			log.Debugf("%v failed: %v", c.FilePath, r.Error)
		}
		rs = append(rs, r)
	}
	return rs
}

func (t *Tester) runTest(c *TestCaseWithMetadata) *TestResult {
	if c.Error != nil {
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        c.Error,
		}
	}

	var opts []lark.ParseOption
	if t.Start != "" {
		opts = append(opts, lark.Start(t.Start))
	}
	res, err := t.Parser.Parse(string(c.TestCase.Source), opts...)
	if c.TestCase.Output.ExpectsError() {
		var unexpected verr.UnexpectedInput
		if errors.As(err, &unexpected) {
			return &TestResult{
				TestCasePath: c.FilePath,
			}
		}
		if err == nil {
			err = fmt.Errorf("an expected syntax error didn't occur")
		}
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        err,
		}
	}
	if err != nil {
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        err,
		}
	}

	tr, ok := res.(*tree.Tree)
	if !ok {
		// The parser of the tester must not have a transformer replacing trees, so a result other than a
		// tree is a bug. We also include a stack trace in the error message to be sure.
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        fmt.Errorf("parse tree was not generated: got %T:\n%v", res, string(debug.Stack())),
		}
	}

	diffs := tspec.DiffTree(c.TestCase.Output, tspec.ConvertTree(tr))
	if len(diffs) > 0 {
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        fmt.Errorf("output mismatch"),
			Diffs:        diffs,
		}
	}
	return &TestResult{
		TestCasePath: c.FilePath,
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func Test_Load(t *testing.T) {
	testCases := []struct {
		name      string
		file      string
		content   string
		expect    Config
		expectErr bool
	}{
		{
			name: "toml",
			file: "larkrt.toml",
			content: `
grammar = "/grammars/math.json"
start = "start"
lexer = "basic"
propagate_positions = true

[output]
format = "json"
width = 100

[log]
verbosity = 2
`,
			expect: Config{
				Grammar:            "/grammars/math.json",
				Start:              "start",
				Lexer:              "basic",
				PropagatePositions: true,
				Output:             OutputConfig{Format: "json", Width: 100},
				Log:                LogConfig{Verbosity: 2},
			},
		},
		{
			name: "yaml",
			file: "larkrt.yaml",
			content: `
grammar: /grammars/math.json
recovery: true
output:
  format: sexp
`,
			expect: Config{
				Grammar:  "/grammars/math.json",
				Recovery: true,
				Output:   OutputConfig{Format: "sexp", Width: 80},
			},
		},
		{
			name:    "defaults",
			file:    "larkrt.yml",
			content: "{}\n",
			expect: Config{
				Output: OutputConfig{Format: "tree", Width: 80},
			},
		},
		{
			name:      "unknown extension",
			file:      "larkrt.ini",
			content:   "grammar = x\n",
			expectErr: true,
		},
		{
			name:      "invalid lexer",
			file:      "larkrt.toml",
			content:   "lexer = \"dynamic\"\n",
			expectErr: true,
		},
		{
			name:      "invalid output format",
			file:      "larkrt.yaml",
			content:   "output:\n  format: xml\n",
			expectErr: true,
		},
		{
			name:      "broken toml",
			file:      "larkrt.toml",
			content:   "grammar = \n",
			expectErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			c, err := Load(writeFile(t, tc.file, tc.content))
			if tc.expectErr {
				assert.Error(err)
				return
			}
			if !assert.NoError(err) {
				return
			}
			assert.Equal(tc.expect, *c)
		})
	}
}

func Test_Load_RelativeGrammar(t *testing.T) {
	assert := assert.New(t)

	path := writeFile(t, "larkrt.toml", "grammar = \"math.json\"\n")
	c, err := Load(path)
	if !assert.NoError(err) {
		return
	}
	assert.Equal(filepath.Join(filepath.Dir(path), "math.json"), c.Grammar)
}

func Test_Load_ExpandsEnv(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("LARKRT_TEST_GRAMMAR", "/env/math.json")
	c, err := Load(writeFile(t, "larkrt.yaml", "grammar: ${LARKRT_TEST_GRAMMAR}\n"))
	if !assert.NoError(err) {
		return
	}
	assert.Equal("/env/math.json", c.Grammar)
}

func Test_Load_NotFound(t *testing.T) {
	assert := assert.New(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(err, "config file not found")
}

func Test_Default(t *testing.T) {
	assert := assert.New(t)

	c := Default()
	assert.Equal(OutputFormatTree, c.Output.Format)
	assert.Equal(80, c.Output.Width)
	assert.NoError(c.Validate())
}

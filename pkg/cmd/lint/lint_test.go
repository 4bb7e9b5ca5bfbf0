package lint

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(stdin string, args ...string) (string, error) {
	cmd := NewCmdLint()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNaming(t *testing.T) {
	good := "+var _ = g.Describe(\"[sig-operators] OLM catalog\", func() {\n+\tg.It(\"Author:bob-High-30001-desc\", func() {\n"
	file := filepath.Join(t.TempDir(), "change.diff")
	require.NoError(t, os.WriteFile(file, []byte(good), 0644))

	out, err := run("", "naming", "--diff-file", file)
	require.NoError(t, err)
	assert.Equal(t, "the title naming looks good!\n", out)

	out, err = run("+\tg.It(\"no case id\", func() {\n", "naming", "--diff-file", "-")
	assert.Error(t, err)
	assert.Contains(t, out, "line 1: title has no -<caseid>- part")

	_, err = run("", "naming", "--diff-file", filepath.Join(t.TempDir(), "missing.diff"))
	assert.Error(t, err)
}

func TestCaseIDs(t *testing.T) {
	out, err := run("+   g.It(\"ConnectedOnly-High-37826-Low-23170-use a pull secret\", func() {\n", "case-ids", "--diff-file", "-")
	require.NoError(t, err)
	assert.Equal(t, "37826|23170\n", out)

	out, err = run("+ nothing here\n", "case-ids", "--diff-file", "-")
	require.NoError(t, err)
	assert.Empty(t, out)
}

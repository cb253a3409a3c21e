package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(args ...string) (string, error) {
	root := newRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestDownRejectsNonPositiveSteps(t *testing.T) {
	_, err := run("down", "--steps", "0", "--database-url", "postgres://unused")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps must be positive")
}

func TestCommandsRejectArgs(t *testing.T) {
	_, err := run("up", "extra")
	assert.Error(t, err)
}

func TestHelpListsSubcommands(t *testing.T) {
	out, err := run("--help")
	require.NoError(t, err)
	assert.Contains(t, out, "up")
	assert.Contains(t, out, "down")
}

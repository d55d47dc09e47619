package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "codeintel", "Help should mention program name")
	assert.Contains(t, output, "Usage:", "Help should show usage")
}

func TestRootCmd_ShowsVersion(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--version"})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	hasVersion := strings.Contains(output, "0.1") || strings.Contains(output, "dev")
	assert.True(t, hasVersion, "Version output should contain a version number or 'dev'")
	assert.Contains(t, output, "codeintel", "Version output should mention program name")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	subcommands := cmd.Commands()

	var commandNames []string
	for _, subcmd := range subcommands {
		commandNames = append(commandNames, subcmd.Name())
	}

	assert.Contains(t, commandNames, "serve", "Should have serve subcommand")
	assert.Contains(t, commandNames, "index", "Should have index subcommand")
	assert.Contains(t, commandNames, "search", "Should have search subcommand")
	assert.Contains(t, commandNames, "version", "Should have version subcommand")
}

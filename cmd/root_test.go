package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "serve", "sessions", "ledger", "policies", "status"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "curator", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestSubcommandTrees(t *testing.T) {
	tests := []struct {
		parent   string
		children []string
	}{
		{"sessions", []string{"list", "show"}},
		{"ledger", []string{"list", "stats"}},
		{"policies", []string{"list", "validate"}},
	}
	for _, tt := range tests {
		t.Run(tt.parent, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{tt.parent})
			require.NoError(t, err)
			names := make(map[string]bool)
			for _, c := range cmd.Commands() {
				names[c.Name()] = true
			}
			for _, child := range tt.children {
				assert.True(t, names[child], "%s should have subcommand %q", tt.parent, child)
			}
		})
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestStatusCommand_Flags(t *testing.T) {
	flag := statusCmd.Flags().Lookup("alert")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestSessionsListCommand_Flags(t *testing.T) {
	for _, name := range []string{"action", "limit", "since"} {
		assert.NotNil(t, sessionsListCmd.Flags().Lookup(name), "sessions list should have --%s", name)
	}
	assert.Equal(t, "30", sessionsListCmd.Flags().Lookup("limit").DefValue)
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
	assert.Equal(t, 8080, resolvePort(0, 8080))
	assert.Equal(t, 0, resolvePort(0, 0))
}

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"research", "runs", "topics", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "topic-research", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestResearchCommand_Flags(t *testing.T) {
	for _, name := range []string{"topic", "model", "temperature", "fast", "json", "metrics-file"} {
		require.NotNil(t, researchCmd.Flags().Lookup(name), "research command should have --%s flag", name)
	}
	assert.Equal(t, "false", researchCmd.Flags().Lookup("fast").DefValue)
}

func TestResearchCommand_RequiresQuery(t *testing.T) {
	assert.Error(t, researchCmd.Args(researchCmd, nil))
	assert.NoError(t, researchCmd.Args(researchCmd, []string{"postgres", "vs", "dynamodb"}))
}

func TestRunsCommand_Flags(t *testing.T) {
	flag := runsCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)

	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["show"])
	assert.True(t, names["stats"])
}

func TestRootCommand_ConfigAndLogLevelFlags(t *testing.T) {
	prev := cfg
	t.Cleanup(func() {
		cfg = prev
		rootCmd.SetArgs(nil)
	})

	path := filepath.Join(t.TempDir(), "research.yaml")
	require.NoError(t, os.WriteFile(path, []byte("topics:\n  default_key: database\nlog:\n  level: info\n"), 0o644))

	rootCmd.SetArgs([]string{"topics", "--config", path, "--log-level", "warn"})
	require.NoError(t, rootCmd.Execute())

	require.NotNil(t, cfg)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "database", cfg.Topics.DefaultKey)
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	prev := cfg
	t.Cleanup(func() {
		cfg = prev
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"topics", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--log-level", ""})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/food-access-cli/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "batch", "places", "serve", "export"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "food-access", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.Contains(t, rootCmd.Long, "FOODACCESS_")
	for _, name := range []string{"run", "batch", "places", "serve", "export"} {
		assert.Contains(t, rootCmd.Long, name)
	}
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"place", "radius", "buffer", "out", "edges-out"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
	flag := runCmd.Flags().Lookup("buffer")
	require.NotNil(t, flag)
	assert.Equal(t, "-1", flag.DefValue)
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "batch command should have --limit flag")
	assert.Equal(t, "0", flag.DefValue)

	for _, name := range []string{"places", "delineation", "export"} {
		assert.NotNil(t, batchCmd.Flags().Lookup(name), "batch should have --%s", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	for _, name := range []string{"place", "database-url", "list"} {
		assert.NotNil(t, exportCmd.Flags().Lookup(name), "export should have --%s", name)
	}
}

func TestRootCommand_LogFlags(t *testing.T) {
	for _, name := range []string{"log-level", "log-format"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "root should have --%s", name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestApplyLogFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "t"}
	addLogFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "debug", "--log-format", "console"}))

	c := &config.Config{Log: config.LogConfig{Level: "info", Format: "json"}}
	require.NoError(t, applyLogFlags(cmd, c))
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "console", c.Log.Format)
}

func TestApplyLogFlags_UnsetKeepsConfig(t *testing.T) {
	cmd := &cobra.Command{Use: "t"}
	addLogFlags(cmd)
	require.NoError(t, cmd.ParseFlags(nil))

	c := &config.Config{Log: config.LogConfig{Level: "warn", Format: "json"}}
	require.NoError(t, applyLogFlags(cmd, c))
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
}

func TestApplyLogFlags_BadFormat(t *testing.T) {
	cmd := &cobra.Command{Use: "t"}
	addLogFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--log-format", "xml"}))

	err := applyLogFlags(cmd, &config.Config{})
	assert.ErrorContains(t, err, "log-format")
}

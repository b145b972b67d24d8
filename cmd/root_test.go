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

	expected := []string{"assess", "predict", "optimize", "monitor", "execute", "actions", "events", "serve", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "reroute", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	flag := rootCmd.PersistentFlags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "table", flag.DefValue)
}

func TestActionsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range actionsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "approve", "reject", "run"} {
		assert.True(t, names[name], "actions should have subcommand %q", name)
	}
}

func TestCommandFlags(t *testing.T) {
	for _, f := range []string{"origin", "destination", "regions", "waypoints", "shipment", "route-id"} {
		assert.NotNil(t, assessCmd.Flags().Lookup(f), "assess --%s", f)
		assert.NotNil(t, monitorCmd.Flags().Lookup(f), "monitor --%s", f)
	}
	for _, f := range []string{"priority", "weights", "max", "predictions"} {
		assert.NotNil(t, optimizeCmd.Flags().Lookup(f), "optimize --%s", f)
	}
	assert.Equal(t, "balanced", optimizeCmd.Flags().Lookup("priority").DefValue)
	assert.NotNil(t, executeCmd.Flags().Lookup("to"))
	assert.Equal(t, "20", actionsListCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "0", serveCmd.Flags().Lookup("port").DefValue)
}

func TestRootCmd_PersistentPreRunE_WithValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
store:
  driver: none
log:
  level: debug
  format: console
policy:
  mode: manual
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(configContent), 0o644))
	t.Chdir(tmpDir)

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))
	require.NotNil(t, cfg)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "manual", cfg.Policy.Mode)
}

func TestRootCmd_PersistentPreRunE_NoConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))
	require.NotNil(t, cfg)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestRootCmd_PersistentPreRunE_BadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("store: [unclosed"), 0o644))
	t.Chdir(tmpDir)

	oldCfg := cfg
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRootCmd_PersistentPreRunE_BadLogLevel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REROUTE_LOG_LEVEL", "loud")

	oldCfg := cfg
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
}

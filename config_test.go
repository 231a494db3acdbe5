package coresim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsShireCountOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shires = 32 // the all-ones sentinel must stay out of range
	require.Error(t, cfg.Validate())

	cfg.Shires = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsScratchpadWaysBelowTwo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScratchpadWays = 1
	require.Error(t, cfg.Validate(), "ways-1 must be >= 1 for the lock invariant")
}

func TestLoadConfigMergesOverYAMLDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chip.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shires: 2\nwatchdog_reload: 100\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Shires)
	require.EqualValues(t, 100, cfg.WatchdogReload)
	require.Equal(t, DefaultTopology().MinionsPerNeighborhood, cfg.MinionsPerNeighborhood, "unset fields keep DefaultConfig's value")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfigRejectsInvalidTopology(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shires: 0\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestPromotionSetBuildsFromNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromoteToFatal = []string{"memory", "debug"}
	set := cfg.PromotionSet()
	require.True(t, set[WarnMemory])
	require.True(t, set[WarnDebug])
	require.False(t, set[WarnTensors])
}

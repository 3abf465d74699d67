package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkgtx/corepm/pkg/config"
	"github.com/pkgtx/corepm/pkg/types"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadResolvesFlagNames(t *testing.T) {
	path := writeEnv(t, `
rootDir: /mnt/target
dbPath: /mnt/target/var/lib/pkgtx/records.db
transFlags:
  - test
  - noscripts
vsFlags:
  - nosha1
filterFlags:
  - diskspace
`)

	env, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "/mnt/target", env.RootDir)
	require.True(t, env.TransFlags&types.TransTest != 0)
	require.True(t, env.TransFlags&types.TransNoScripts != 0)
	require.False(t, env.TransFlags&types.TransCommit != 0)
	require.True(t, env.VSFlags&types.VSNoSHA1 != 0)
	require.True(t, env.FilterFlags&types.FilterDiskSpace != 0)
}

func TestLoadDefaultsWhenFieldsOmitted(t *testing.T) {
	path := writeEnv(t, "{}\n")

	env, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "/", env.RootDir)
	require.Equal(t, types.TransFlag(0), env.TransFlags)
}

func TestLoadRejectsUnknownFlagName(t *testing.T) {
	path := writeEnv(t, "transFlags: [bogus]\n")

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestDefaultEnvironment(t *testing.T) {
	env := config.Default()
	require.Equal(t, "/", env.RootDir)
	require.Equal(t, types.TransFlag(0), env.TransFlags)
}

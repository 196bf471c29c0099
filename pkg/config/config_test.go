package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klever-verify/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"identifier": "job-1",
		"Klever Bridge": {"host": "bridge.local", "user": "u", "password": "p"},
		"main working directory": "/tmp/klever-job-1",
		"code coverage details": "lines",
		"resource limits": {"memory size": 1073741824, "cpu time": 900, "wall time": 900, "CPUs num": 1}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "job-1", cfg.Identifier)
	assert.Equal(t, "bridge.local", cfg.Bridge.Host)
	assert.Equal(t, types.CoverageLines, cfg.CodeCoverageDetails)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	var cfgErr *types.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *types.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadFailsValidation(t *testing.T) {
	path := writeConfig(t, `{"identifier": ""}`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "identifier", cfgErr.Field)
}

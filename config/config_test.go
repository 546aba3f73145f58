package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7, cfg.Ledger.NodeCount)
	assert.Equal(t, 1, cfg.Ledger.Difficulty)
	assert.Equal(t, PolicyStrict, cfg.Service.Policy)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logger:
  enabled: false
ledger:
  node_count: 10
  difficulty: 2
  hash: keccak256
service:
  policy: permissive
  batch_size: 5
  session_duration: 30m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Logger.Enabled)
	assert.Equal(t, 10, cfg.Ledger.NodeCount)
	assert.Equal(t, 2, cfg.Ledger.Difficulty)
	assert.Equal(t, "keccak256", cfg.Ledger.Hash)
	assert.Equal(t, uint64(10_000_000), cfg.Ledger.MaxNonceAttempts)
	assert.Equal(t, PolicyPermissive, cfg.Service.Policy)
	assert.Equal(t, 5, cfg.Service.BatchSize)
	assert.Equal(t, 64, cfg.Service.QueueSize)
	assert.Equal(t, 30*time.Minute, cfg.Service.SessionDuration)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"difficulty": "ledger:\n  difficulty: 70\n",
		"nodes":      "ledger:\n  node_count: 0\n",
		"hash":       "ledger:\n  hash: md5\n",
		"policy":     "service:\n  policy: lenient\n",
		"batch":      "service:\n  batch_size: 0\n",
		"yaml":       "ledger: [\n",
	} {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

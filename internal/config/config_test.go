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
	path := filepath.Join(t.TempDir(), "posthunter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 7, cfg.Quality.PassThreshold)
	assert.Equal(t, 3, cfg.Generate.MaxAttempts)
	assert.Equal(t, 3, cfg.Stock.MinPerAccount)
	assert.Equal(t, 5, cfg.Stock.MaxPerAccount)
	assert.Equal(t, 10, cfg.Monitor.LikeThreshold)
	assert.InDelta(t, 3.0, cfg.Monitor.RateThreshold, 0.001)
	assert.Equal(t, 20, cfg.Monitor.MaxPerAccount)
	assert.Equal(t, 12, cfg.PDCA.HighScoreCutoff)
	assert.Equal(t, 8, cfg.PDCA.LowScoreCutoff)
	assert.Equal(t, 2, cfg.PDCA.MinSamples)
	assert.False(t, cfg.Paused)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - id: liver
    name: Liver Recruiting
    channel: x
  - id: chatre1
    name: Chat Lady One
    channel: x
quality:
  pass_threshold: 9
stock:
  min_per_account: 2
  max_per_account: 4
monitor:
  like_threshold: 15
  rate_threshold: 2.5
scheduler:
  jobs:
    - name: nightly-post
      schedule: "0 */12 * * *"
      type: post.run
      enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "liver", cfg.Accounts[0].ID)
	assert.Equal(t, "x", cfg.Accounts[0].Channel)
	assert.Equal(t, 9, cfg.Quality.PassThreshold)
	assert.Equal(t, 2, cfg.Stock.MinPerAccount)
	assert.Equal(t, 15, cfg.Monitor.LikeThreshold)
	assert.InDelta(t, 2.5, cfg.Monitor.RateThreshold, 0.001)

	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Generate.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Generate.Timeout)

	require.Len(t, cfg.Scheduler.Jobs, 1)
	assert.Equal(t, "post.run", cfg.Scheduler.Jobs[0].Type)
	assert.True(t, cfg.Scheduler.Jobs[0].Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Quality, cfg.Quality)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POSTHUNTER_SECRET", "env-secret")
	t.Setenv("POSTHUNTER_REDIS_ADDR", "redis:6379")
	t.Setenv("PAUSE_AUTOMATION", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Server.Secret)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Paused)
}

func TestValidateRejectsDuplicateAccounts(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - id: liver
    channel: x
  - id: liver
    channel: x
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "duplicate account")
}

func TestValidateRejectsEmptyAccountID(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - name: nameless
    channel: x
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "empty id")
}

func TestValidateRejectsInvertedStockBounds(t *testing.T) {
	path := writeConfig(t, `
stock:
  min_per_account: 5
  max_per_account: 3
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "max_per_account")
}

func TestAccountLookup(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - id: liver
    channel: x
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	a, ok := cfg.Account("liver")
	assert.True(t, ok)
	assert.Equal(t, "liver", a.ID)

	_, ok = cfg.Account("ghost")
	assert.False(t, ok)
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ferreirogomes/custodia/escrow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custodia.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.Watcher.Interval.Duration)

	settings, err := cfg.EscrowSettings()
	require.NoError(t, err)
	assert.Equal(t, escrow.DefaultConfig(), settings)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9090"

[Log]
Level = "debug"
Format = "text"

[Store]
Driver = "bolt"
BoltPath = "/var/lib/custodia/escrow.db"

[Escrow]
MinPrice = 10
MaxPrice = 100

[Watcher]
Interval = "5s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddress)
	assert.Equal(t, "bolt", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Watcher.Interval.Duration)
	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	settings, err := cfg.EscrowSettings()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), settings.MinPrice)
	assert.Equal(t, uint64(100), settings.MaxPrice)
	assert.Equal(t, escrow.DefaultProgramID, settings.ProgramID)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[Store]
Drvier = "bolt"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Store.Drvier")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"postgres sem url": func(c *Config) { c.Store.Driver = "postgres" },
		"driver":           func(c *Config) { c.Store.Driver = "mysql" },
		"program id":       func(c *Config) { c.Escrow.ProgramID = "nope" },
		"intervalo":        func(c *Config) { c.Escrow.MinPrice = c.Escrow.MaxPrice },
		"fee payer":        func(c *Config) { c.Solana.FeePayerKey = "0OIl" },
		"watcher":          func(c *Config) { c.Watcher.Interval.Duration = 0 },
		"admin sem token":  func(c *Config) { c.Admin.Enabled = true },
		"nível de log":     func(c *Config) { c.Log.Level = "verbose" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDatabaseURL:  "postgres://custodia@localhost/custodia",
		EnvSolanaRPCURL: "http://127.0.0.1:8899",
		EnvListenAddr:   ":7070",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, env[EnvDatabaseURL], cfg.Store.DatabaseURL)
	assert.Equal(t, env[EnvSolanaRPCURL], cfg.Solana.RPCURL)
	assert.Equal(t, ":7070", cfg.ListenAddress)
	assert.Empty(t, cfg.Solana.FeePayerKey)
}

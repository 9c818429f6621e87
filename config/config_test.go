package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updown/config"
	"github.com/alejandrodnm/updown/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_RepoConfig(t *testing.T) {
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Engine.Mode)
	assert.False(t, cfg.IsLive())
	assert.Equal(t, 2*time.Second, cfg.TickInterval())
	assert.Equal(t, 60*time.Second, cfg.ReloadInterval())
	assert.Equal(t, 3*time.Hour, cfg.RetrainInterval())
	assert.Equal(t, "BTCUSDT", cfg.Oracle.Symbol)
	assert.Equal(t, 10, cfg.TradeLog.MaxMB)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeFile(t, "c.yaml", "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Engine.Mode)
	assert.Equal(t, 1.0, cfg.Engine.OrderSizeUSDC)
	assert.Equal(t, 30, cfg.Engine.ActivityFloorSeconds)
	assert.Equal(t, 25.0, cfg.Engine.DefaultVolatility)
	assert.Equal(t, "https://clob.polymarket.com", cfg.API.CLOBBase)
	assert.Equal(t, "updown.db", cfg.Storage.DSN)
	assert.Equal(t, "file", cfg.Retrain.Backend)
	assert.Equal(t, time.Minute, cfg.RetrainPoll())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("UPDOWN_MODE", "live")
	t.Setenv("METRICS_ADDR", ":9102")

	cfg, err := config.Load(writeFile(t, "c.yaml", "engine:\n  mode: paper\n"))
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.IsLive())
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad mode":          "engine:\n  mode: yolo\n",
		"bad backend":       "retrain:\n  backend: kafka\n",
		"redis without url": "retrain:\n  enabled: true\n  backend: redis\n",
		"bad yaml":          "engine: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, "c.yaml", content))
			assert.ErrorIs(t, err, domain.ErrConfig)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadTunables_RepoDocument(t *testing.T) {
	tun, err := config.LoadTunables("tunables.yaml")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTunables(), tun)
}

func TestLoadTunables_PartialUsesDefaults(t *testing.T) {
	tun, err := config.LoadTunables(writeFile(t, "t.yaml", "min_edge: 0.12\nexecution_enabled: true\n"))
	require.NoError(t, err)

	want := domain.DefaultTunables()
	want.MinEdge = 0.12
	want.ExecutionEnabled = true
	assert.Equal(t, want, tun)
}

func TestLoadTunables_Empty(t *testing.T) {
	tun, err := config.LoadTunables(writeFile(t, "t.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTunables(), tun)
}

func TestLoadTunables_Invalid(t *testing.T) {
	cases := map[string]string{
		"negative pct": "stop_loss_pct: -0.1\n",
		"weight > 1":   "nudge_weight: 1.5\n",
		"unknown key":  "stop_los_pct: 0.3\n",
		"wrong type":   "min_edge: lots\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadTunables(writeFile(t, "t.yaml", content))
			assert.ErrorIs(t, err, domain.ErrConfig)
		})
	}
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("POLY_PRIVATE_KEY", "0xabc")
	t.Setenv("POLY_FUNDER_ADDRESS", "0x1111111111111111111111111111111111111111")

	s, err := config.LoadSecrets()
	require.NoError(t, err)
	assert.Equal(t, "0xabc", s.PrivateKey)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", s.FunderAddress)
	assert.NoError(t, s.RequireLive(true))
	assert.NotContains(t, s.String(), "0xabc")
}

func TestSecrets_RequireLive(t *testing.T) {
	assert.ErrorIs(t, config.Secrets{}.RequireLive(false), domain.ErrConfig)
	assert.ErrorIs(t, config.Secrets{PrivateKey: "k"}.RequireLive(true), domain.ErrConfig)
	assert.NoError(t, config.Secrets{PrivateKey: "k"}.RequireLive(false))
}

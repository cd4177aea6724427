package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
app:
  log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "yahoo", cfg.Feed.Source)
	assert.Equal(t, "long_only", cfg.Strategy.Policy)
	assert.Equal(t, []string{"GC=F", "CL=F", "CT=F", "OJ=F", "SB=F", "ZS=F", "ZC=F"}, cfg.Strategy.Universe)
	assert.Equal(t, 5, cfg.Strategy.Spans.Short)
	assert.Equal(t, 50, cfg.Strategy.Spans.Medium)
	assert.Equal(t, 250, cfg.Strategy.Spans.Long)
	assert.Equal(t, 1_000_000.0, cfg.Backtest.InitialCash)
	assert.Equal(t, ":9985", cfg.Server.Addr)
}

func TestLoadIncludeMergeLaterWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
strategy:
  policy: long_only
  universe: ["GC=F"]
backtest:
  initial_cash: 500
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
strategy:
  policy: long_short
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	// 主文件覆盖 include，未覆盖的键保留
	assert.Equal(t, "long_short", cfg.Strategy.Policy)
	assert.Equal(t, []string{"GC=F"}, cfg.Strategy.Universe)
	assert.Equal(t, 500.0, cfg.Backtest.InitialCash)
}

func TestLoadIncludeCycleFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "环")
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad source": `
feed:
  source: bloomberg
`,
		"bad policy": `
strategy:
  policy: momentum
`,
		"bad spans": `
strategy:
  spans: {short: 50, medium: 5, long: 250}
`,
		"end before start": `
backtest:
  start: "2020-06-01"
  end: "2020-01-01"
`,
		"csv without dir": `
feed:
  source: csv
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, "cfg_"+filepath.Base(t.Name())+".yaml", content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "yahoo", cfg.Feed.Source)

	assert.Error(t, WriteDefault(path))
}

package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profilesYAML = `profiles:
  metals:
    policy: long_short
    universe: ["GC=F", " SI=F ", ""]
    span_short: 3
    span_medium: 20
    span_long: 60
    initial_cash: 250000
    default: true
  grains:
    universe: ["ZS=F", "ZC=F"]
`

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProfileLoaderLoad(t *testing.T) {
	loader, err := NewProfileLoader(writeProfiles(t, profilesYAML))
	require.NoError(t, err)

	metals, ok := loader.Get("metals")
	require.True(t, ok)
	assert.Equal(t, "metals", metals.Name)
	assert.Equal(t, "long_short", metals.Policy)
	assert.Equal(t, []string{"GC=F", "SI=F"}, metals.Universe, "空白项剔除、前后空格修剪")
	assert.Equal(t, 250000.0, metals.InitialCash)

	// 未填字段按缺省归一化
	grains, ok := loader.Get("grains")
	require.True(t, ok)
	assert.Equal(t, "long_only", grains.Policy)
	assert.Equal(t, 5, grains.SpanShort)
	assert.Equal(t, 50, grains.SpanMedium)
	assert.Equal(t, 250, grains.SpanLong)
	assert.Equal(t, 1_000_000.0, grains.InitialCash)

	_, ok = loader.Get("softs")
	assert.False(t, ok)
}

func TestProfileSnapshotDefault(t *testing.T) {
	loader, err := NewProfileLoader(writeProfiles(t, profilesYAML))
	require.NoError(t, err)

	snap := loader.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	def, ok := snap.DefaultProfile()
	require.True(t, ok)
	assert.Equal(t, "metals", def.Name)

	// 没有 default 标记时按名取第一个
	loader2, err := NewProfileLoader(writeProfiles(t, "profiles:\n  zz: {}\n  aa: {}\n"))
	require.NoError(t, err)
	def, ok = loader2.Snapshot().DefaultProfile()
	require.True(t, ok)
	assert.Equal(t, "aa", def.Name)
}

func TestProfileLoaderRequiresPath(t *testing.T) {
	_, err := NewProfileLoader("  ")
	assert.Error(t, err)

	_, err = NewProfileLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProfileSnapshotIsCopy(t *testing.T) {
	loader, err := NewProfileLoader(writeProfiles(t, profilesYAML))
	require.NoError(t, err)

	snap := loader.Snapshot()
	snap.Profiles["metals"] = ProfileDefinition{Name: "tampered"}
	fresh, _ := loader.Get("metals")
	assert.Equal(t, "metals", fresh.Name)
}

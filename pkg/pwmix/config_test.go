package pwmix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type silentNotifier struct{}

func (silentNotifier) Notify(title string, message string) {}

func newTestConfig(t *testing.T, contents string) *ConfigManager {
	t.Helper()

	dir := t.TempDir()
	if contents != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, userConfigFilepath), []byte(contents), 0o644))
	}
	t.Chdir(dir)

	cc, err := NewConfig(zap.NewNop().Sugar(), silentNotifier{})
	require.NoError(t, err)

	return cc
}

func TestConfigDefaultsWithoutFile(t *testing.T) {
	cc := newTestConfig(t, "")

	require.NoError(t, cc.Load())

	assert.Equal(t, "SPDIF", cc.current.Marker)
	assert.Equal(t, "first", cc.current.OutputPolicy)
	assert.True(t, cc.current.ActiveLinks)
	assert.False(t, cc.current.DisableTray)
}

func TestConfigOverrides(t *testing.T) {
	cc := newTestConfig(t, `
marker: HDMI
active_links: false
disable_tray: true
`)

	require.NoError(t, cc.Load())

	assert.Equal(t, "HDMI", cc.current.Marker)
	assert.False(t, cc.current.ActiveLinks)
	assert.True(t, cc.current.DisableTray)
}

func TestConfigRejectsEmptyMarker(t *testing.T) {
	cc := newTestConfig(t, `marker: ""`)

	assert.Error(t, cc.Load())
}

func TestConfigRejectsUnimplementedOutputPolicy(t *testing.T) {
	cc := newTestConfig(t, `output_policy: all`)

	err := cc.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not implemented")
}

func TestConfigRejectsUnknownOutputPolicy(t *testing.T) {
	cc := newTestConfig(t, `output_policy: sideways`)

	assert.Error(t, cc.Load())
}

func TestConfigRejectsBrokenYAML(t *testing.T) {
	cc := newTestConfig(t, "marker: [unterminated")

	assert.Error(t, cc.Load())
}

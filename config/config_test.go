package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "/cameras/right_hand_camera/image", c.InputTopic)
	assert.Equal(t, "/coordinates_from_opencv_hand", c.OutputTopic)
	assert.Equal(t, 10, c.OutputQueueSize)
	assert.Equal(t, "Right Arm Camera", c.WindowName)
	assert.Equal(t, "q", c.QuitKey)
	assert.False(t, c.Republish)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"http uri", func(c *Config) { c.BridgeURI = "http://localhost:9090" }},
		{"bad uri", func(c *Config) { c.BridgeURI = "ws://[::1" }},
		{"no input", func(c *Config) { c.InputTopic = "" }},
		{"no output", func(c *Config) { c.OutputTopic = "" }},
		{"negative queue", func(c *Config) { c.OutputQueueSize = -1 }},
		{"long quit key", func(c *Config) { c.QuitKey = "quit" }},
		{"no quit key", func(c *Config) { c.QuitKey = "" }},
		{"zero fps", func(c *Config) { c.MaxFPS = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	require.NoError(t, Load(context.Background(), ""))
	assert.Equal(t, Default(), Get())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armcam.json")
	writeFile(t, path, `{"BridgeURI": "ws://robot:9090", "Republish": true}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, Load(ctx, path))

	c := Get()
	assert.Equal(t, "ws://robot:9090", c.BridgeURI)
	assert.True(t, c.Republish)
	assert.Equal(t, "/cameras/right_hand_camera/image", c.InputTopic)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	assert.Error(t, Load(context.Background(), filepath.Join(dir, "missing.json")))

	unknown := filepath.Join(dir, "unknown.json")
	writeFile(t, unknown, `{"Bogus": 1}`)
	assert.Error(t, Load(context.Background(), unknown))

	invalid := filepath.Join(dir, "invalid.json")
	writeFile(t, invalid, `{"MaxFPS": -3}`)
	assert.Error(t, Load(context.Background(), invalid))
}

func TestLoadReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armcam.json")
	writeFile(t, path, `{"Republish": false}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, Load(ctx, path))
	require.False(t, Get().Republish)

	// The watcher is installed asynchronously; keep touching the file.
	require.Eventually(t, func() bool {
		os.WriteFile(path, []byte(`{"Republish": true}`), 0644)
		return Get().Republish
	}, 5*time.Second, 200*time.Millisecond)

	// A broken file keeps the last good configuration.
	writeFile(t, path, `{"Republish": `)
	time.Sleep(300 * time.Millisecond)
	assert.True(t, Get().Republish)
}

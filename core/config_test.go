package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
system:
  device_id: "aa:bb:cc:dd:ee:ff"
  network:
    websocket:
      url: "wss://voice.example.com/ws"
      access_token: "secret"
reconnect:
  max_attempts: 3
audio:
  frame_interval: 100ms
session:
  voice: "alloy"
  turn_detection:
    type: "server_vad"
    silence_duration_ms: 500
logging:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "aa:bb:cc:dd:ee:ff", cfg.System.DeviceID)
	assert.Equal(t, "wss://voice.example.com/ws", cfg.System.Network.Websocket.URL)
	assert.Equal(t, "secret", cfg.System.Network.Websocket.AccessToken)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Reconnect.Interval)
	assert.Equal(t, 100*time.Millisecond, cfg.Audio.FrameInterval)
	assert.Equal(t, 16000, cfg.Audio.InputSampleRate)
	assert.Equal(t, 24000, cfg.Audio.OutputSampleRate)
	assert.Equal(t, "alloy", cfg.Session.Voice)
	require.NotNil(t, cfg.Session.TurnDetection)
	assert.Equal(t, "server_vad", cfg.Session.TurnDetection.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("RTVOICE_SYSTEM_NETWORK_WEBSOCKET_ACCESS_TOKEN", "from-env")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.System.Network.Websocket.AccessToken)
}

func TestLoadConfigRequiresURL(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "logging:\n  level: info\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 3000*time.Millisecond, cfg.Reconnect.Interval)
	assert.Equal(t, 250*time.Millisecond, cfg.Audio.FrameInterval)
	assert.Equal(t, 3.0, cfg.Audio.Gain)
	assert.Equal(t, 7*24*time.Hour, cfg.Logging.MaxAge)
	assert.True(t, cfg.Session.IsZero())
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "url has no default")
}

func TestValidateRejectsStereo(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)
	cfg.System.Network.Websocket.URL = "ws://localhost/ws"
	require.NoError(t, cfg.Validate())

	cfg.Audio.Channels = 2
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")), "missing file is not an error")

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("RTVOICE_TEST_LOADENV_TOKEN=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("RTVOICE_TEST_LOADENV_TOKEN") })

	require.NoError(t, LoadEnv(envFile))
	assert.Equal(t, "from-dotenv", os.Getenv("RTVOICE_TEST_LOADENV_TOKEN"))

	// 目录无法作为 .env 读取，错误必须返回给调用方
	assert.Error(t, LoadEnv(dir))
}

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{Port: "8080"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultServerName, cfg.ServerName)
	assert.Equal(t, DefaultPeerTimeout, cfg.PeerTimeout)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.MaxBodyBytes)
	assert.Equal(t, DefaultRedisChannel, cfg.RedisChannel)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing port", Config{}},
		{"non numeric port", Config{Port: "http"}},
		{"port out of range", Config{Port: "70000"}},
		{"negative read timeout", Config{Port: "1", ReadTimeout: -time.Second}},
		{"bad log level", Config{Port: "1", LogLevel: "loud"}},
		{"bad log format", Config{Port: "1", LogFormat: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "friendlist.yaml")
	err := os.WriteFile(path, []byte(`
port: "9000"
bind_host: 127.0.0.1
peer_timeout: 250ms
ops_addr: ":9100"
log_level: debug
`), 0o600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, 250*time.Millisecond, cfg.PeerTimeout)
	assert.Equal(t, ":9100", cfg.OpsAddr)
	assert.Equal(t, DefaultServerName, cfg.ServerName)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unknown_field: 1\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Port: "1", LogFormat: "text", LogLevel: "warn"}

	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

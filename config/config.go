package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerName   = "Friendlist Web Server"
	DefaultPeerTimeout  = 5 * time.Second
	DefaultMaxBodyBytes = 1 << 20
	DefaultRedisChannel = "friendlist:events"
)

// Config captures server runtime configuration.
type Config struct {
	Port         string        `yaml:"port"`
	BindHost     string        `yaml:"bind_host"`
	ServerName   string        `yaml:"server_name"`
	PeerTimeout  time.Duration `yaml:"peer_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	OpsAddr      string        `yaml:"ops_addr"`
	RedisAddr    string        `yaml:"redis_addr"`
	RedisChannel string        `yaml:"redis_channel"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
}

func Default() *Config {
	return &Config{
		ServerName:   DefaultServerName,
		PeerTimeout:  DefaultPeerTimeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
		RedisChannel: DefaultRedisChannel,
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate fills unset fields with defaults and rejects invalid values.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: port must be set")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("config: invalid port %q", c.Port)
	}
	if c.ServerName == "" {
		c.ServerName = DefaultServerName
	}
	if c.PeerTimeout <= 0 {
		c.PeerTimeout = DefaultPeerTimeout
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("config: read timeout must not be negative, got %s", c.ReadTimeout)
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.RedisChannel == "" {
		c.RedisChannel = DefaultRedisChannel
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return nil
}

// Addr is the listen address of the friend protocol.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.BindHost, c.Port)
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return level, nil
}

// NewLogger builds the process logger described by the config.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Package config loads mqlsp settings.
//
// Settings are layered with later layers overriding earlier ones:
//
//  1. Built-in defaults
//  2. Configuration file (TOML, or YAML by extension)
//  3. Environment variables (MQLSP_SECTION_KEY)
//
// Load returns a validated *Config; invalid values yield *ValidationError.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/mqlsp/internal/config/loader"
	"github.com/dshills/mqlsp/internal/logging"
	"github.com/dshills/mqlsp/internal/queue"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MQLSP_"

// Config holds all settings.
type Config struct {
	Log         LogConfig         `toml:"log"`
	Queue       QueueConfig       `toml:"queue"`
	Redis       RedisConfig       `toml:"redis"`
	RabbitMQ    RabbitMQConfig    `toml:"rabbitmq"`
	NATS        NATSConfig        `toml:"nats"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// QueueConfig configures detection and command execution.
type QueueConfig struct {
	// System forces a backing system and skips detection when set.
	System         string `toml:"system"`
	DetectTimeout  string `toml:"detect_timeout"`
	CommandTimeout string `toml:"command_timeout"`
}

// RedisConfig configures the stream-store adapter.
type RedisConfig struct {
	CLI  string `toml:"cli"`
	Host string `toml:"host"`
	Port int    `toml:"port"`
	DB   int    `toml:"db"`
}

// RabbitMQConfig configures the broker adapter.
type RabbitMQConfig struct {
	Ctl   string `toml:"ctl"`
	Admin string `toml:"admin"`
	Host  string `toml:"host"`
	Port  int    `toml:"port"`
	VHost string `toml:"vhost"`
	Node  string `toml:"node"`
}

// NATSConfig configures the pub/sub adapter.
type NATSConfig struct {
	CLI     string `toml:"cli"`
	Server  string `toml:"server"`
	Context string `toml:"context"`
}

// DiagnosticsConfig configures diagnostics.
type DiagnosticsConfig struct {
	// Watch enables diagnostics for configuration files changed on disk.
	Watch bool `toml:"watch"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Queue: QueueConfig{
			DetectTimeout:  "5s",
			CommandTimeout: "15s",
		},
		Redis: RedisConfig{
			CLI:  "redis-cli",
			Host: "127.0.0.1",
			Port: 6379,
		},
		RabbitMQ: RabbitMQConfig{
			Ctl:   "rabbitmqctl",
			Admin: "rabbitmqadmin",
			Host:  "127.0.0.1",
			Port:  15672,
			VHost: "/",
		},
		NATS: NATSConfig{
			CLI:    "nats",
			Server: "nats://127.0.0.1:4222",
		},
		Diagnostics: DiagnosticsConfig{Watch: true},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/mqlsp/config.toml, falling back to
// the user config directory.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "mqlsp", "config.toml")
}

// Load builds the configuration from defaults, the file at path and the
// process environment. An empty path uses DefaultPath; a missing file is
// not an error.
func Load(path string) (*Config, error) {
	return LoadWith(path, loader.DefaultFS(), loader.NewEnvLoader(EnvPrefix))
}

// LoadWith is Load with explicit file system and environment sources.
func LoadWith(path string, fsys loader.FileSystem, env loader.Loader) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	merged, err := toMap(Default())
	if err != nil {
		return nil, err
	}

	if path != "" {
		file, err := fileLoader(fsys, path).Load()
		if err != nil {
			return nil, err
		}
		if file != nil {
			logging.Debug("config", "loaded %s", path)
		}
		merged = loader.DeepMerge(merged, file)
	}

	if env != nil {
		vars, err := env.Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, vars)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fileLoader(fsys loader.FileSystem, path string) loader.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loader.NewYAMLLoaderWithFS(fsys, path)
	default:
		return loader.NewTOMLLoaderWithFS(fsys, path)
	}
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := toml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		var decErr *toml.DecodeError
		if errors.As(err, &decErr) {
			return nil, &ValidationError{Key: strings.Join(decErr.Key(), "."), Message: decErr.Error()}
		}
		return nil, &ValidationError{Message: err.Error()}
	}
	return cfg, nil
}

// ValidationError reports an invalid setting.
type ValidationError struct {
	Key     string
	Value   any
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Key == "" {
		return "invalid configuration: " + e.Message
	}
	if e.Value != nil {
		return fmt.Sprintf("invalid %s %q: %s", e.Key, fmt.Sprint(e.Value), e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Key, e.Message)
}

// Validate checks every setting that has a restricted form.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{Key: "log.level", Value: c.Log.Level, Message: "want debug, info, warn or error"}
	}
	if _, err := queue.ParseSystem(c.Queue.System); err != nil {
		return &ValidationError{Key: "queue.system", Value: c.Queue.System, Message: "want stream-store, broker or pubsub"}
	}
	for key, val := range map[string]string{
		"queue.detect_timeout":  c.Queue.DetectTimeout,
		"queue.command_timeout": c.Queue.CommandTimeout,
	} {
		d, err := time.ParseDuration(val)
		if err != nil || d <= 0 {
			return &ValidationError{Key: key, Value: val, Message: "want a positive duration such as 5s"}
		}
	}
	for key, port := range map[string]int{"redis.port": c.Redis.Port, "rabbitmq.port": c.RabbitMQ.Port} {
		if port <= 0 || port > 65535 {
			return &ValidationError{Key: key, Value: port, Message: "out of range"}
		}
	}
	if c.Redis.DB < 0 {
		return &ValidationError{Key: "redis.db", Value: c.Redis.DB, Message: "must not be negative"}
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logging.LogLevel {
	level, _ := logging.ParseLevel(c.Log.Level)
	return level
}

// ForcedSystem returns the configured system, or SystemNone to detect.
func (c *Config) ForcedSystem() queue.System {
	s, _ := queue.ParseSystem(c.Queue.System)
	return s
}

// DetectTimeout returns the detection deadline.
func (c *Config) DetectTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Queue.DetectTimeout)
	return d
}

// CommandTimeout returns the per-command deadline.
func (c *Config) CommandTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Queue.CommandTimeout)
	return d
}

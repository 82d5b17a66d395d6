package config

import (
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/dshills/mqlsp/internal/config/loader"
	"github.com/dshills/mqlsp/internal/logging"
	"github.com/dshills/mqlsp/internal/queue"
)

type memFS map[string]string

func (m memFS) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(data), nil
}

func env(vars ...string) loader.Loader {
	return loader.NewEnvLoaderWithEnviron(EnvPrefix, vars)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith("/missing.toml", memFS{}, env())
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}

	if cfg.Redis.Port != 6379 || cfg.RabbitMQ.Port != 15672 || cfg.RabbitMQ.VHost != "/" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.NATS.Server != "nats://127.0.0.1:4222" {
		t.Errorf("nats server = %q", cfg.NATS.Server)
	}
	if cfg.DetectTimeout() != 5*time.Second || cfg.CommandTimeout() != 15*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.DetectTimeout(), cfg.CommandTimeout())
	}
	if !cfg.Diagnostics.Watch {
		t.Error("watch should default to true")
	}
	if cfg.ForcedSystem() != queue.SystemNone || cfg.LogLevel() != logging.LevelInfo {
		t.Errorf("system/level = %v/%v", cfg.ForcedSystem(), cfg.LogLevel())
	}
}

func TestLoadTOMLFile(t *testing.T) {
	fsys := memFS{"/cfg/config.toml": `
[queue]
system = "redis"
command_timeout = "30s"

[redis]
host = "cache.internal"
db = 2

[diagnostics]
watch = false
`}

	cfg, err := LoadWith("/cfg/config.toml", fsys, env())
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.ForcedSystem() != queue.SystemStreamStore {
		t.Errorf("system = %v", cfg.ForcedSystem())
	}
	if cfg.CommandTimeout() != 30*time.Second {
		t.Errorf("command timeout = %v", cfg.CommandTimeout())
	}
	if cfg.Redis.Host != "cache.internal" || cfg.Redis.DB != 2 || cfg.Redis.Port != 6379 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Diagnostics.Watch {
		t.Error("watch should be false")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	fsys := memFS{"/cfg/mqlsp.yaml": `
log:
  level: debug
rabbitmq:
  vhost: /prod
  node: rabbit@host1
`}

	cfg, err := LoadWith("/cfg/mqlsp.yaml", fsys, env())
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.LogLevel() != logging.LevelDebug {
		t.Errorf("level = %v", cfg.LogLevel())
	}
	if cfg.RabbitMQ.VHost != "/prod" || cfg.RabbitMQ.Node != "rabbit@host1" || cfg.RabbitMQ.Ctl != "rabbitmqctl" {
		t.Errorf("rabbitmq = %+v", cfg.RabbitMQ)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	fsys := memFS{"/c.toml": "[redis]\nport = 7000\n"}

	cfg, err := LoadWith("/c.toml", fsys, env(
		"MQLSP_REDIS_PORT=7001",
		"MQLSP_QUEUE_DETECT_TIMEOUT=250ms",
		"MQLSP_NATS_CONTEXT=prod",
		"HOME=/root",
	))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.Redis.Port != 7001 {
		t.Errorf("port = %d", cfg.Redis.Port)
	}
	if cfg.DetectTimeout() != 250*time.Millisecond {
		t.Errorf("detect timeout = %v", cfg.DetectTimeout())
	}
	if cfg.NATS.Context != "prod" {
		t.Errorf("context = %q", cfg.NATS.Context)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		key  string
	}{
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"bad system", "[queue]\nsystem = \"kafka\"\n", "queue.system"},
		{"bad duration", "[queue]\ndetect_timeout = \"soon\"\n", "queue.detect_timeout"},
		{"negative duration", "[queue]\ncommand_timeout = \"-1s\"\n", "queue.command_timeout"},
		{"bad port", "[redis]\nport = 70000\n", "redis.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith("/c.toml", memFS{"/c.toml": tt.file}, env())
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if vErr.Key != tt.key {
				t.Errorf("key = %q, want %q", vErr.Key, tt.key)
			}
		})
	}
}

func TestParseErrorForMalformedFile(t *testing.T) {
	_, err := LoadWith("/c.toml", memFS{"/c.toml": "[redis\nport = "}, env())
	var pErr *loader.ParseError
	if !errors.As(err, &pErr) {
		t.Fatalf("err = %v, want *loader.ParseError", err)
	}
	if pErr.Path != "/c.toml" {
		t.Errorf("path = %q", pErr.Path)
	}
}

func TestDefaultPathUsesXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != "/xdg/mqlsp/config.toml" {
		t.Errorf("DefaultPath = %q", got)
	}
}

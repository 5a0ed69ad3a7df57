package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leaguestats/statscache/pkg/invalidation"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statscache.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_DefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Cache.DefaultTTL != 30*time.Second {
		t.Errorf("defaults not applied: %+v", cfg.Server)
	}
	if cfg.Redis.URL != "" {
		t.Error("change feed should be disabled by default")
	}
}

func TestLoadFile_YAMLOverlay(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  admin_token: secret
upstream:
  url: https://api.league.test
cache:
  capacity: 500
  reap_interval: 30s
  routes:
    - prefix: /matches
      ttl: 45s
    - prefix: /users
      disabled: true
invalidation:
  mapping:
    season: ["/seasons*", "/leagues*"]
log:
  level: debug
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.AdminToken != "secret" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Error("unset fields should keep their defaults")
	}
	if cfg.Cache.Capacity != 500 || cfg.Cache.ReapInterval != 30*time.Second {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if len(cfg.Cache.Routes) != 2 || cfg.Cache.Routes[0].TTL != 45*time.Second {
		t.Errorf("routes = %+v", cfg.Cache.Routes)
	}
	if _, ok := cfg.Invalidation.Mapping["season"]; !ok {
		t.Error("custom mapping entry missing")
	}
	if _, ok := cfg.Invalidation.Mapping["match"]; ok {
		t.Error("configured mapping should replace the defaults")
	}

	rule := cfg.MiddlewareConfig().Rules.Lookup("/matches/m1")
	if rule.TTL != 45*time.Second {
		t.Errorf("rule TTL = %v, want 45s", rule.TTL)
	}
	if !cfg.MiddlewareConfig().Rules.Lookup("/users/u1").Disabled {
		t.Error("/users should be disabled")
	}
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("UPSTREAM_URL", "http://api:3000")
	t.Setenv("REDIS_URL", "redis://redis:6379/2")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("ADMIN_TOKEN", "t0k3n")

	cfg, err := LoadFile(writeConfig(t, "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, env should win over file", cfg.Server.Port)
	}
	if cfg.Upstream.URL != "http://api:3000" || cfg.Server.AdminToken != "t0k3n" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if !cfg.Log.Pretty || cfg.Log.Level != "warn" {
		t.Errorf("log = %+v", cfg.Log)
	}

	opts, err := cfg.RedisOptions()
	if err != nil {
		t.Fatalf("RedisOptions() error = %v", err)
	}
	if opts.Addr != "redis:6379" || opts.DB != 2 {
		t.Errorf("RedisOptions() = %s db %d", opts.Addr, opts.DB)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad yaml", yaml: "server: [", wantErr: "parse config"},
		{name: "bad duration", yaml: "cache:\n  default_ttl: soon\n", wantErr: "parse config"},
		{name: "bad port env", env: map[string]string{"PORT": "http"}, wantErr: "PORT"},
		{name: "port range", yaml: "server:\n  port: 70000\n", wantErr: "server.port"},
		{name: "relative upstream", yaml: "upstream:\n  url: api:3000\n", wantErr: "upstream.url"},
		{name: "route prefix", yaml: "cache:\n  routes:\n    - prefix: matches\n", wantErr: "prefix"},
		{name: "chunk limits", yaml: "chunk:\n  default_limit: 100\n  max_limit: 10\n", wantErr: "chunk limits"},
		{name: "bad pattern", yaml: "invalidation:\n  mapping:\n    match: [\"\"]\n", wantErr: "invalidation.mapping"},
		{name: "bad redis url", env: map[string]string{"REDIS_URL": "redis"}, wantErr: "redis.url"},
		{name: "log level", env: map[string]string{"LOG_LEVEL": "verbose"}, wantErr: "log.level"},
		{name: "short reap", yaml: "cache:\n  reap_interval: 10ms\n", wantErr: "reap_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatalf("LoadFile() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_UsesEnvPath(t *testing.T) {
	t.Setenv("STATSCACHE_CONFIG", writeConfig(t, "server:\n  port: 8181\n"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("Port = %d, want 8181", cfg.Server.Port)
	}
}

func TestBridgeConfig(t *testing.T) {
	cfg := Default()
	bc := cfg.BridgeConfig()
	if bc.Reconnect.InitialInterval != 500*time.Millisecond || bc.Reconnect.MaxInterval != 30*time.Second {
		t.Errorf("reconnect = %+v", bc.Reconnect)
	}
	if len(bc.Mapping["statistic"]) != 4 {
		t.Errorf("statistic mapping = %v", bc.Mapping["statistic"])
	}
}

func TestBridgeConfig_MappingReplacesDefaults(t *testing.T) {
	path := writeConfig(t, `
invalidation:
  mapping:
    match: ["/matches*"]
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	want := map[string][]string{"match": {"/matches*"}}
	got := cfg.BridgeConfig().Mapping
	if !reflect.DeepEqual(map[string][]string(got), want) {
		t.Errorf("mapping = %v, want %v", got, want)
	}
}

func TestBridgeConfig_EmptyMappingUsesDefaults(t *testing.T) {
	path := writeConfig(t, `
invalidation:
  mapping: {}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := cfg.BridgeConfig().Mapping; len(got) != len(invalidation.DefaultMapping()) {
		t.Errorf("mapping = %v, want the defaults", got)
	}
}

func TestUpstreamConfigs(t *testing.T) {
	cfg := Default()
	cfg.Upstream.URL = "http://api:3000"
	cfg.Upstream.Timeout = 3 * time.Second

	up := cfg.UpstreamConfig()
	if up.BaseURL != "http://api:3000" || up.Timeout != 3*time.Second || up.UserAgent == "" {
		t.Errorf("UpstreamConfig() = %+v", up)
	}

	ac := cfg.AccessorConfig()
	if ac.BaseURL != "http://api:3000" || ac.RetryMax != 2 {
		t.Errorf("AccessorConfig() = %+v", ac)
	}
}

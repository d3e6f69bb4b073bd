package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEngineConfigFromFile(t *testing.T) {
	path := writeConfig(t, `config_version: 1
engine:
  mode: grpc
  socket_path: /tmp/tmplay-test/engine.sock
  binary: tmlang-dev
  args: ["--strict"]
  keepalive_interval_seconds: 5
  keepalive_misses: 2
`)
	cfg, err := loadEngineConfig(engineFlags{cfgPath: path})
	if err != nil {
		t.Fatalf("loadEngineConfig: %v", err)
	}
	if cfg.SocketPath != "/tmp/tmplay-test/engine.sock" || cfg.Binary != "tmlang-dev" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Args, []string{"--strict"}) {
		t.Fatalf("unexpected args %v", cfg.Args)
	}
	if cfg.KeepaliveInterval != 5*time.Second || cfg.KeepaliveMisses != 2 {
		t.Fatalf("unexpected keepalive %v/%d", cfg.KeepaliveInterval, cfg.KeepaliveMisses)
	}
}

func TestLoadEngineConfigFlagsOverride(t *testing.T) {
	path := writeConfig(t, "config_version: 1\n")
	cfg, err := loadEngineConfig(engineFlags{
		cfgPath:           path,
		socketPath:        "/run/tmplay/engine.sock",
		binary:            "/opt/tmlang/bin/tmlang",
		args:              []string{"--trace"},
		env:               []string{"TM_LIMIT=500", "broken", "=nokey"},
		keepaliveInterval: 3 * time.Second,
		keepaliveMisses:   4,
	})
	if err != nil {
		t.Fatalf("loadEngineConfig: %v", err)
	}
	if cfg.SocketPath != "/run/tmplay/engine.sock" || cfg.Binary != "/opt/tmlang/bin/tmlang" {
		t.Fatalf("expected flag overrides, got %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Env, map[string]string{"TM_LIMIT": "500"}) {
		t.Fatalf("unexpected env %v", cfg.Env)
	}
	if cfg.KeepaliveInterval != 3*time.Second || cfg.KeepaliveMisses != 4 {
		t.Fatalf("unexpected keepalive %v/%d", cfg.KeepaliveInterval, cfg.KeepaliveMisses)
	}
}

func TestLoadEngineConfigRejectsVersion(t *testing.T) {
	path := writeConfig(t, "config_version: 9\n")
	if _, err := loadEngineConfig(engineFlags{cfgPath: path}); err == nil {
		t.Fatalf("expected unsupported config_version error")
	}
}

func TestMapFromEnv(t *testing.T) {
	if mapFromEnv(nil) != nil {
		t.Fatalf("expected nil map for no values")
	}
	got := mapFromEnv([]string{"A=1", "B=x=y", "C"})
	want := map[string]string{"A": "1", "B": "x=y"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mapFromEnv = %v, want %v", got, want)
	}
}

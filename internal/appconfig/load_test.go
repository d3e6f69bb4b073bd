package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.SpeedMS != 500 || cfg.Service.VisibleCells != 15 {
		t.Fatalf("unexpected service defaults %+v", cfg.Service)
	}
	if cfg.Engine.Mode != EngineModeGRPC || cfg.HTTP.Addr != ":27580" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("TMPLAY_TEST_DIR", "/opt/tm")
	path := writeConfig(t, `
config_version: 1
service:
  speed_ms: 200
  default_tape: "101"
engine:
  mode: exec
  binary: $TMPLAY_TEST_DIR/tmlang
  args: ["--json"]
http:
  addr: 127.0.0.1:9000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.SpeedMS != 200 || cfg.Service.DefaultTape != "101" {
		t.Fatalf("unexpected service config %+v", cfg.Service)
	}
	if cfg.Service.VisibleCells != 15 {
		t.Fatalf("expected default visible cells to survive, got %d", cfg.Service.VisibleCells)
	}
	if cfg.Engine.Binary != "/opt/tm/tmlang" || len(cfg.Engine.Args) != 1 {
		t.Fatalf("unexpected engine config %+v", cfg.Engine)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected http addr %q", cfg.HTTP.Addr)
	}
	settings := cfg.ServiceSettings()
	if settings.SpeedMS != 200 || settings.DefaultTape != "101" {
		t.Fatalf("unexpected service settings %+v", settings)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 7
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRequiresConfigVersion(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":1"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsUnsupportedEngineMode(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
engine:
  mode: wasm
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported engine.mode") {
		t.Fatalf("expected engine mode error, got %v", err)
	}
}

func TestLoadRejectsNonPositiveSpeed(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
service:
  speed_ms: 0
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "service.speed_ms") {
		t.Fatalf("expected speed error, got %v", err)
	}
}

func TestLoadRejectsURLBasePath(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
http:
  base_path: https://example.com/tm
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "http.base_path") {
		t.Fatalf("expected base_path error, got %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("expected written default to load: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

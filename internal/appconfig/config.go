package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/tmplay/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	Service       ServiceConfig `mapstructure:"service" yaml:"service"`
	Engine        EngineConfig  `mapstructure:"engine" yaml:"engine"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Engine modes.
const (
	// EngineModeGRPC reaches an engine daemon over a unix socket.
	EngineModeGRPC = "grpc"
	// EngineModeExec runs the engine binary once per request.
	EngineModeExec = "exec"
)

// ServiceConfig controls core session behavior.
type ServiceConfig struct {
	SpeedMS        int    `mapstructure:"speed_ms" yaml:"speed_ms"`
	VisibleCells   int    `mapstructure:"visible_cells" yaml:"visible_cells"`
	NoticeMaxLines int    `mapstructure:"notice_max_lines" yaml:"notice_max_lines"`
	DefaultTape    string `mapstructure:"default_tape" yaml:"default_tape"`
}

// EngineConfig configures how the TM-Lang engine is reached.
type EngineConfig struct {
	Mode                     string            `mapstructure:"mode" yaml:"mode"`
	SocketPath               string            `mapstructure:"socket_path" yaml:"socket_path"`
	Binary                   string            `mapstructure:"binary" yaml:"binary"`
	Args                     []string          `mapstructure:"args" yaml:"args"`
	Env                      map[string]string `mapstructure:"env" yaml:"env"`
	TimeoutSeconds           int               `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	ReadyTimeoutSeconds      int               `mapstructure:"ready_timeout_seconds" yaml:"ready_timeout_seconds"`
	KeepaliveIntervalSeconds int               `mapstructure:"keepalive_interval_seconds" yaml:"keepalive_interval_seconds"`
	KeepaliveMisses          int               `mapstructure:"keepalive_misses" yaml:"keepalive_misses"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string `mapstructure:"addr" yaml:"addr"`
	SessionCookie   string `mapstructure:"session_cookie" yaml:"session_cookie"`
	SessionTTLHours int    `mapstructure:"session_ttl_hours" yaml:"session_ttl_hours"`
	BasePath        string `mapstructure:"base_path" yaml:"base_path"`
}

// SSHConfig configures the SSH tape viewer.
type SSHConfig struct {
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
	Example            string `mapstructure:"example" yaml:"example"`
	Theme              string `mapstructure:"theme" yaml:"theme"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Service: ServiceConfig{
			SpeedMS:        schema.DefaultSpeedMS,
			VisibleCells:   schema.DefaultVisibleCells,
			NoticeMaxLines: schema.DefaultNoticeMaxLines,
			DefaultTape:    schema.DefaultTapeInput,
		},
		Engine: EngineConfig{
			Mode:                     EngineModeGRPC,
			SocketPath:               filepath.Join(home, ".tmplay", "engine.sock"),
			Binary:                   "tmlang",
			Args:                     []string{},
			Env:                      map[string]string{},
			TimeoutSeconds:           10,
			ReadyTimeoutSeconds:      30,
			KeepaliveIntervalSeconds: 10,
			KeepaliveMisses:          3,
		},
		HTTP: HTTPConfig{
			Addr:            ":27580",
			SessionCookie:   "tmplay_session",
			SessionTTLHours: 24,
			BasePath:        "",
		},
		SSH: SSHConfig{
			Addr:               ":27522",
			HostKeyPath:        filepath.Join(home, ".tmplay", "ssh_host_key"),
			AuthorizedKeysPath: "",
			Example:            "binary-increment",
			Theme:              "outrun",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tmplay", "config.yaml"), nil
}

// ServiceSettings maps the service section onto the core service config.
func (c Config) ServiceSettings() schema.ServiceConfig {
	return schema.ServiceConfig{
		SpeedMS:        c.Service.SpeedMS,
		VisibleCells:   c.Service.VisibleCells,
		NoticeMaxLines: c.Service.NoticeMaxLines,
		DefaultTape:    c.Service.DefaultTape,
	}
}

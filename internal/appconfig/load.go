package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("service.speed_ms", cfg.Service.SpeedMS)
	v.SetDefault("service.visible_cells", cfg.Service.VisibleCells)
	v.SetDefault("service.notice_max_lines", cfg.Service.NoticeMaxLines)
	v.SetDefault("service.default_tape", cfg.Service.DefaultTape)
	v.SetDefault("engine.mode", cfg.Engine.Mode)
	v.SetDefault("engine.socket_path", cfg.Engine.SocketPath)
	v.SetDefault("engine.binary", cfg.Engine.Binary)
	v.SetDefault("engine.args", cfg.Engine.Args)
	v.SetDefault("engine.env", cfg.Engine.Env)
	v.SetDefault("engine.timeout_seconds", cfg.Engine.TimeoutSeconds)
	v.SetDefault("engine.ready_timeout_seconds", cfg.Engine.ReadyTimeoutSeconds)
	v.SetDefault("engine.keepalive_interval_seconds", cfg.Engine.KeepaliveIntervalSeconds)
	v.SetDefault("engine.keepalive_misses", cfg.Engine.KeepaliveMisses)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.session_cookie", cfg.HTTP.SessionCookie)
	v.SetDefault("http.session_ttl_hours", cfg.HTTP.SessionTTLHours)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath)
	v.SetDefault("ssh.example", cfg.SSH.Example)
	v.SetDefault("ssh.theme", cfg.SSH.Theme)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Engine.Mode {
	case EngineModeGRPC:
		if strings.TrimSpace(cfg.Engine.SocketPath) == "" {
			return fmt.Errorf("engine.socket_path is required for engine.mode %q", EngineModeGRPC)
		}
	case EngineModeExec:
		if strings.TrimSpace(cfg.Engine.Binary) == "" {
			return fmt.Errorf("engine.binary is required for engine.mode %q", EngineModeExec)
		}
	default:
		return fmt.Errorf("unsupported engine.mode %q", cfg.Engine.Mode)
	}
	if cfg.Service.SpeedMS <= 0 {
		return fmt.Errorf("service.speed_ms must be positive")
	}
	if cfg.Service.VisibleCells <= 0 {
		return fmt.Errorf("service.visible_cells must be positive")
	}
	if cfg.Engine.TimeoutSeconds < 0 {
		return fmt.Errorf("engine.timeout_seconds must not be negative")
	}
	basePath := strings.TrimSpace(cfg.HTTP.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Engine.SocketPath = expandEnv(cfg.Engine.SocketPath)
	cfg.Engine.Binary = expandEnv(cfg.Engine.Binary)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeysPath = expandEnv(cfg.SSH.AuthorizedKeysPath)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// Marshal renders cfg as YAML in the config file layout.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

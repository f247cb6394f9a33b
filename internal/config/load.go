package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "DECKLOAD"

type LoadOptions struct {
	ExplicitPath string
	WorkingDir   string
	Env          map[string]string
}

// Load layers defaults, the user config, the project config (or only the
// explicit file when one is given) and DECKLOAD_* environment overrides.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	cwd := opts.WorkingDir
	if strings.TrimSpace(cwd) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("resolve working directory: %w", err)
		}
		cwd = wd
	}

	env := opts.Env
	if env == nil {
		env = osEnvMap()
	}

	if explicit := strings.TrimSpace(opts.ExplicitPath); explicit != "" {
		if err := mergeFile(v, explicit, true); err != nil {
			return Config{}, err
		}
	} else {
		userPath, err := UserConfigPath()
		if err != nil {
			return Config{}, err
		}
		if err := mergeFile(v, userPath, false); err != nil {
			return Config{}, err
		}
		if err := mergeFile(v, ProjectConfigPath(cwd), false); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(v, env)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("version", cfg.Version)
	v.SetDefault("tools.downloader", cfg.Tools.Downloader)
	v.SetDefault("tools.rsync", cfg.Tools.Rsync)
	v.SetDefault("install.temp_dir", cfg.Install.TempDir)
	v.SetDefault("install.max_downloads", cfg.Install.MaxDownloads)
	v.SetDefault("install.throttle_ms", cfg.Install.ThrottleMS)
	v.SetDefault("install.kill_grace_ms", cfg.Install.KillGraceMS)
	v.SetDefault("target.local", cfg.Target.Local)
	v.SetDefault("target.host", cfg.Target.Host)
	v.SetDefault("target.port", cfg.Target.Port)
	v.SetDefault("target.user", cfg.Target.User)
	v.SetDefault("target.password", cfg.Target.Password)
	v.SetDefault("target.key_path", cfg.Target.KeyPath)
	v.SetDefault("target.library_dir", cfg.Target.LibraryDir)
	v.SetDefault("steam.allowlist", cfg.Steam.AllowList)
	v.SetDefault("steam.config_vdf", cfg.Steam.ConfigVDF)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

func mergeFile(v *viper.Viper, path string, required bool) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file does not exist: %s", path)
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := v.MergeConfig(bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides maps every known key to its environment name, for
// example target.password to DECKLOAD_TARGET_PASSWORD.
func applyEnvOverrides(v *viper.Viper, env map[string]string) {
	for _, key := range v.AllKeys() {
		name := EnvName(key)
		if value, ok := env[name]; ok && strings.TrimSpace(value) != "" {
			v.Set(key, strings.TrimSpace(value))
		}
	}
}

// EnvName returns the environment variable that overrides a config key.
func EnvName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func normalize(cfg *Config) {
	cfg.Tools.Downloader = strings.TrimSpace(cfg.Tools.Downloader)
	cfg.Tools.Rsync = strings.TrimSpace(cfg.Tools.Rsync)
	cfg.Target.Host = strings.TrimSpace(cfg.Target.Host)
	cfg.Target.User = strings.TrimSpace(cfg.Target.User)
	cfg.Target.LibraryDir = strings.TrimSpace(cfg.Target.LibraryDir)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Install.TempDir == "" {
		cfg.Install.TempDir = defaultTempDir()
	}
	vdf := cfg.Steam.ConfigVDF[:0]
	for _, p := range cfg.Steam.ConfigVDF {
		if p = strings.TrimSpace(p); p != "" {
			vdf = append(vdf, p)
		}
	}
	cfg.Steam.ConfigVDF = vdf
}

func osEnvMap() map[string]string {
	result := map[string]string{}
	for _, pair := range os.Environ() {
		pieces := strings.SplitN(pair, "=", 2)
		if len(pieces) == 2 {
			result[pieces[0]] = pieces[1]
		}
	}
	return result
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	return nil
}

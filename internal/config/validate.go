package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid config"
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Problems, "; "))
}

func Validate(cfg Config) error {
	problems := []string{}

	if cfg.Version != 1 {
		problems = append(problems, "version must be 1")
	}

	if strings.TrimSpace(cfg.Tools.Downloader) == "" {
		problems = append(problems, "tools.downloader must be set")
	}

	tempDir, err := ExpandPath(cfg.Install.TempDir)
	if err != nil || tempDir == "" {
		problems = append(problems, "install.temp_dir must be a valid path")
	} else if !filepath.IsAbs(tempDir) {
		problems = append(problems, "install.temp_dir must resolve to an absolute path")
	}
	if cfg.Install.MaxDownloads <= 0 {
		problems = append(problems, "install.max_downloads must be > 0")
	}
	if cfg.Install.ThrottleMS < 0 {
		problems = append(problems, "install.throttle_ms must be >= 0")
	}
	if cfg.Install.KillGraceMS <= 0 {
		problems = append(problems, "install.kill_grace_ms must be > 0")
	}

	for _, problem := range cfg.Target.Problems() {
		problems = append(problems, "target: "+problem)
	}
	if strings.TrimSpace(cfg.Target.LibraryDir) == "" {
		problems = append(problems, "target.library_dir must be set")
	}

	if strings.TrimSpace(cfg.Steam.AllowList) == "" {
		problems = append(problems, "steam.allowlist must be set")
	}
	if len(cfg.Steam.ConfigVDF) == 0 {
		problems = append(problems, "steam.config_vdf must list at least one path")
	}

	if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		problems = append(problems, fmt.Sprintf("server.addr %q is invalid: %v", cfg.Server.Addr, err))
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q must be one of debug, info, warn, error", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be console or json", cfg.Log.Format))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

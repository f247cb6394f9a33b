package config

import (
	"time"

	"github.com/jaa/deckload/internal/target"
)

type Config struct {
	Version int     `mapstructure:"version"`
	Tools   Tools   `mapstructure:"tools"`
	Install Install `mapstructure:"install"`
	Target  Target  `mapstructure:"target"`
	Steam   Steam   `mapstructure:"steam"`
	Server  Server  `mapstructure:"server"`
	Log     Log     `mapstructure:"log"`
}

// Tools locates the external programs an install drives. Rsync may be left
// empty to use discovery.
type Tools struct {
	Downloader string `mapstructure:"downloader"`
	Rsync      string `mapstructure:"rsync"`
}

type Install struct {
	TempDir      string `mapstructure:"temp_dir"`
	MaxDownloads int    `mapstructure:"max_downloads"`
	ThrottleMS   int    `mapstructure:"throttle_ms"`
	KillGraceMS  int    `mapstructure:"kill_grace_ms"`
}

func (i Install) Throttle() time.Duration {
	return time.Duration(i.ThrottleMS) * time.Millisecond
}

func (i Install) KillGrace() time.Duration {
	return time.Duration(i.KillGraceMS) * time.Millisecond
}

// Target is the default destination and the Steam library folder games
// are installed into on it.
type Target struct {
	target.Destination `mapstructure:",squash"`
	LibraryDir         string `mapstructure:"library_dir"`
}

type Steam struct {
	AllowList string   `mapstructure:"allowlist"`
	ConfigVDF []string `mapstructure:"config_vdf"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func DefaultConfig() Config {
	return Config{
		Version: 1,
		Tools: Tools{
			Downloader: "DepotDownloaderMod",
		},
		Install: Install{
			MaxDownloads: 25,
			ThrottleMS:   100,
			KillGraceMS:  500,
		},
		Target: Target{
			Destination: target.Destination{Local: true, Port: target.DefaultPort, User: "deck"},
			LibraryDir:  "~/.local/share/Steam/steamapps/common",
		},
		Steam: Steam{
			AllowList: "~/.config/SLSsteam/config.yaml",
			ConfigVDF: []string{
				"~/.steam/steam/config/config.vdf",
				"~/.local/share/Steam/config/config.vdf",
			},
		},
		Server: Server{Addr: "127.0.0.1:7373"},
		Log:    Log{Level: "info", Format: "console"},
	}
}

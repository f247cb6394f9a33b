package config

import (
	"fmt"
	"strings"
)

// TemplateOptions selects the target block written by `deckload init`.
type TemplateOptions struct {
	Local bool
	Host  string
	User  string
}

func Template(opts TemplateOptions) string {
	cfg := DefaultConfig()
	host := strings.TrimSpace(opts.Host)
	if host == "" && !opts.Local {
		host = "steamdeck.local"
	}
	user := strings.TrimSpace(opts.User)
	if user == "" {
		user = cfg.Target.User
	}

	var target string
	if opts.Local {
		target = fmt.Sprintf(`target:
  local: true
  library_dir: %q
`, "~/.local/share/Steam/steamapps/common")
	} else {
		target = fmt.Sprintf(`target:
  local: false
  host: %q
  port: %d
  user: %q
  # password is better kept in DECKLOAD_TARGET_PASSWORD
  key_path: "~/.ssh/id_ed25519"
  library_dir: %q
`, host, cfg.Target.Port, user, "/home/"+user+"/.local/share/Steam/steamapps/common")
	}

	return fmt.Sprintf(`version: 1
tools:
  downloader: %q
  # rsync: "/opt/homebrew/bin/rsync"
install:
  temp_dir: %q
  max_downloads: %d
  throttle_ms: %d
  kill_grace_ms: %d
%ssteam:
  allowlist: %q
  config_vdf:
    - %q
    - %q
server:
  addr: %q
log:
  level: "info"
  format: "console"
`,
		cfg.Tools.Downloader,
		defaultTempDir(),
		cfg.Install.MaxDownloads,
		cfg.Install.ThrottleMS,
		cfg.Install.KillGraceMS,
		target,
		cfg.Steam.AllowList,
		cfg.Steam.ConfigVDF[0],
		cfg.Steam.ConfigVDF[1],
		cfg.Server.Addr,
	)
}

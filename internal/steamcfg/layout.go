package steamcfg

import (
	"strings"
	"unicode"
)

// Layout lists the well-known files patched after an install. Paths may
// start with "~/" and are resolved by the destination filesystem.
type Layout struct {
	AllowListPath  string
	ConfigVDFPaths []string
}

func DefaultLayout() Layout {
	return Layout{
		AllowListPath: "~/.config/SLSsteam/config.yaml",
		ConfigVDFPaths: []string{
			"~/.steam/steam/config/config.vdf",
			"~/.local/share/Steam/config/config.vdf",
		},
	}
}

// FolderName turns a game title into an install folder name, keeping
// letters, digits, spaces, dashes and underscores. An empty result falls
// back to the app id.
func FolderName(gameName string, appID string) string {
	var b strings.Builder
	for _, r := range gameName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		return strings.TrimSpace(appID)
	}
	return name
}

// SteamappsDir maps a library install directory (usually
// ".../steamapps/common") to the steamapps directory holding app manifests
// and the depotcache. Paths use forward slashes on both ends.
func SteamappsDir(targetDir string) string {
	dir := strings.TrimRight(strings.ReplaceAll(targetDir, "\\", "/"), "/")
	if dir == "" {
		return "."
	}
	if strings.HasSuffix(dir, "/common") {
		return strings.TrimSuffix(dir, "/common")
	}
	if dir == "common" {
		return "."
	}
	return dir
}

func DepotcacheDir(targetDir string) string {
	return SteamappsDir(targetDir) + "/depotcache"
}

// DepotKeysFile renders the downloader keys file: one "depot;key" per line.
func DepotKeysFile(keys []DepotKey) []byte {
	var b strings.Builder
	for _, key := range keys {
		b.WriteString(strings.TrimSpace(key.DepotID))
		b.WriteString(";")
		b.WriteString(strings.TrimSpace(key.Key))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

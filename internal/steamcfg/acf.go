package steamcfg

import (
	"fmt"
	"strings"
)

type InstalledDepot struct {
	DepotID    string
	ManifestID string
	Size       int64
}

type AppManifestInfo struct {
	AppID      string
	Name       string
	InstallDir string
	SizeOnDisk int64
	Depots     []InstalledDepot
}

// AppManifest renders appmanifest_<appid>.acf content marking the app as
// fully installed (StateFlags 4) with a Proton platform override.
func AppManifest(info AppManifestInfo) string {
	var b strings.Builder
	b.WriteString("\"AppState\"\n{\n")
	writeKV(&b, 1, "appid", info.AppID)
	writeKV(&b, 1, "Universe", "1")
	writeKV(&b, 1, "name", info.Name)
	writeKV(&b, 1, "StateFlags", "4")
	writeKV(&b, 1, "installdir", info.InstallDir)
	writeKV(&b, 1, "SizeOnDisk", fmt.Sprintf("%d", info.SizeOnDisk))
	writeKV(&b, 1, "buildid", "0")
	b.WriteString("\t\"InstalledDepots\"\n\t{\n")
	for _, depot := range info.Depots {
		if strings.TrimSpace(depot.DepotID) == "" {
			continue
		}
		fmt.Fprintf(&b, "\t\t\"%s\"\n\t\t{\n", depot.DepotID)
		writeKV(&b, 3, "manifest", depot.ManifestID)
		writeKV(&b, 3, "size", fmt.Sprintf("%d", depot.Size))
		b.WriteString("\t\t}\n")
	}
	b.WriteString("\t}\n")
	for _, section := range []string{"UserConfig", "MountedConfig"} {
		fmt.Fprintf(&b, "\t\"%s\"\n\t{\n", section)
		writeKV(&b, 2, "platform_override_dest", "linux")
		writeKV(&b, 2, "platform_override_source", "windows")
		b.WriteString("\t}\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func AppManifestName(appID string) string {
	return fmt.Sprintf("appmanifest_%s.acf", appID)
}

func writeKV(b *strings.Builder, depth int, key string, value string) {
	value = strings.ReplaceAll(value, "\"", "'")
	fmt.Fprintf(b, "%s\"%s\"\t\t\"%s\"\n", indent(depth), key, value)
}

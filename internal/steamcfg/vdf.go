package steamcfg

import (
	"fmt"
	"strings"
)

// DepotKey is a depot id paired with its hex decryption key.
type DepotKey struct {
	DepotID string `json:"depot_id"`
	Key     string `json:"key"`
}

// AddDecryptionKeys inserts DecryptionKey entries into Steam's config.vdf
// under InstallConfigStore > Software > Valve > Steam > depots. Depots that
// already have an entry are skipped. Missing sections are created; empty
// content yields a fresh document.
func AddDecryptionKeys(content string, keys []DepotKey) string {
	existing := existingDepotIDs(content)
	fresh := make([]DepotKey, 0, len(keys))
	seen := map[string]struct{}{}
	for _, key := range keys {
		id := strings.TrimSpace(key.DepotID)
		if id == "" || strings.TrimSpace(key.Key) == "" {
			continue
		}
		if _, ok := existing[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, DepotKey{DepotID: id, Key: strings.TrimSpace(key.Key)})
	}
	if len(fresh) == 0 {
		return content
	}

	entries := depotEntries(fresh)

	if strings.TrimSpace(content) == "" {
		return "\"InstallConfigStore\"\n{\n" + softwareSection(entries) + "}\n"
	}
	if pos, ok := sectionBodyStart(content, "depots", 0); ok {
		return content[:pos] + entries + content[pos:]
	}
	if pos, ok := steamSectionBodyStart(content); ok {
		block := indent(4) + "\"depots\"\n" + indent(4) + "{\n" + entries + indent(4) + "}\n"
		return content[:pos] + block + content[pos:]
	}
	if pos, ok := sectionBodyStart(content, "InstallConfigStore", 0); ok {
		return content[:pos] + softwareSection(entries) + content[pos:]
	}
	return content
}

func softwareSection(entries string) string {
	var b strings.Builder
	b.WriteString(indent(1) + "\"Software\"\n" + indent(1) + "{\n")
	b.WriteString(indent(2) + "\"Valve\"\n" + indent(2) + "{\n")
	b.WriteString(indent(3) + "\"Steam\"\n" + indent(3) + "{\n")
	b.WriteString(indent(4) + "\"depots\"\n" + indent(4) + "{\n")
	b.WriteString(entries)
	b.WriteString(indent(4) + "}\n")
	b.WriteString(indent(3) + "}\n")
	b.WriteString(indent(2) + "}\n")
	b.WriteString(indent(1) + "}\n")
	return b.String()
}

func depotEntries(keys []DepotKey) string {
	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "%s\"%s\"\n%s{\n%s\"DecryptionKey\"\t\t\"%s\"\n%s}\n",
			indent(5), key.DepotID, indent(5), indent(6), key.Key, indent(5))
	}
	return b.String()
}

func indent(depth int) string {
	return strings.Repeat("\t", depth)
}

// sectionBodyStart finds `"name"` at or after from and returns the offset
// just past its opening brace and line break.
func sectionBodyStart(content string, name string, from int) (int, bool) {
	quoted := "\"" + name + "\""
	idx := strings.Index(content[from:], quoted)
	if idx < 0 {
		return 0, false
	}
	idx += from
	brace := strings.IndexByte(content[idx:], '{')
	if brace < 0 {
		return 0, false
	}
	pos := idx + brace + 1
	for pos < len(content) && (content[pos] == '\n' || content[pos] == '\r') {
		pos++
	}
	return pos, true
}

// steamSectionBodyStart locates the "Steam" section that sits below
// Software > Valve, ignoring unrelated keys named Steam earlier on.
func steamSectionBodyStart(content string) (int, bool) {
	from := 0
	for {
		idx := strings.Index(content[from:], "\"Steam\"")
		if idx < 0 {
			return 0, false
		}
		idx += from
		prior := content[:idx]
		if strings.Contains(prior, "\"Valve\"") && strings.Contains(prior, "\"Software\"") {
			return sectionBodyStart(content, "Steam", idx)
		}
		from = idx + len("\"Steam\"")
	}
}

func existingDepotIDs(content string) map[string]struct{} {
	ids := map[string]struct{}{}
	inDepots := false
	depth := 0
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if !inDepots {
			if strings.Contains(line, "\"depots\"") && !strings.HasPrefix(line, "//") {
				inDepots = true
				depth = 0
			}
			continue
		}
		switch line {
		case "{":
			depth++
		case "}":
			depth--
			if depth == 0 {
				inDepots = false
			}
		default:
			if depth == 1 {
				if id, ok := firstQuoted(line); ok && isDigits(id) {
					ids[id] = struct{}{}
				}
			}
		}
	}
	return ids
}

func firstQuoted(line string) (string, bool) {
	start := strings.IndexByte(line, '"')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(line[start+1:], '"')
	if end < 0 {
		return "", false
	}
	return line[start+1 : start+1+end], true
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

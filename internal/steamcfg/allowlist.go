package steamcfg

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const allowListKey = "AdditionalApps"

// AddAppToAllowList adds appID to the AdditionalApps list of an SLSsteam
// config.yaml, preceded by a "# gameName" comment. The edit is textual so
// the user's comments and layout survive; the YAML parse is only used to
// decide whether the app is already listed. Existing entries are left as is.
func AddAppToAllowList(content string, appID string, gameName string) string {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return content
	}
	if allowListContains(content, appID) {
		return content
	}

	name := strings.TrimSpace(gameName)

	if idx := findTopLevelKey(content, allowListKey); idx >= 0 {
		lineEnd := strings.IndexByte(content[idx:], '\n')
		keyLine := content[idx:]
		if lineEnd >= 0 {
			keyLine = content[idx : idx+lineEnd]
		}
		if inlineValue(keyLine) {
			if patched, err := appendWithNodes(content, appID); err == nil {
				return patched
			}
			return content
		}
		if lineEnd < 0 {
			return content + "\n" + listEntry("", name, appID)
		}
		insertAt := idx + lineEnd + 1
		entry := listEntry(itemIndent(content[insertAt:]), name, appID)
		return content[:insertAt] + entry + content[insertAt:]
	}

	entry := listEntry("", name, appID)

	var b strings.Builder
	b.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	if content != "" {
		b.WriteString("\n")
	}
	b.WriteString(allowListKey + ":\n")
	b.WriteString(entry)
	return b.String()
}

func allowListContains(content string, appID string) bool {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return strings.Contains(content, "- "+appID+"\n") || strings.HasSuffix(content, "- "+appID)
	}
	raw, ok := doc[allowListKey]
	if !ok {
		return false
	}
	items, ok := raw.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if strings.TrimSpace(fmt.Sprint(item)) == appID {
			return true
		}
	}
	return false
}

// findTopLevelKey returns the byte offset of "key:" at column zero, or -1.
func findTopLevelKey(content string, key string) int {
	offset := 0
	for _, line := range strings.SplitAfter(content, "\n") {
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(trimmed, key+":") {
			return offset
		}
		offset += len(line)
	}
	return -1
}

func listEntry(prefix string, name string, appID string) string {
	entry := fmt.Sprintf("%s- %s\n", prefix, appID)
	if name != "" {
		entry = fmt.Sprintf("%s# %s\n%s", prefix, name, entry)
	}
	return entry
}

// itemIndent returns the indentation used by the first list item in rest.
func itemIndent(rest string) string {
	for _, line := range strings.Split(rest, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || trimmed == "-" {
			return line[:len(line)-len(trimmed)]
		}
		return ""
	}
	return ""
}

func inlineValue(keyLine string) bool {
	value := strings.TrimSpace(strings.TrimPrefix(strings.TrimRight(keyLine, "\r"), allowListKey+":"))
	return value != "" && !strings.HasPrefix(value, "#")
}

// appendWithNodes handles flow-style lists ("AdditionalApps: [1, 2]") that
// cannot take a line insertion. Comments on the key are lost.
func appendWithNodes(content string, appID string) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return "", err
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return "", fmt.Errorf("config root is not a mapping")
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != allowListKey {
			continue
		}
		list := root.Content[i+1]
		if list.Kind != yaml.SequenceNode {
			list.Kind = yaml.SequenceNode
			list.Tag = "!!seq"
			list.Value = ""
			list.Content = nil
		}
		list.Style = 0
		list.Content = append(list.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: appID})
		out, err := yaml.Marshal(&doc)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return "", fmt.Errorf("%s not found", allowListKey)
}

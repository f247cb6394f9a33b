package steamcfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const configWithDepots = "\"InstallConfigStore\"\n{\n\t\"Software\"\n\t{\n\t\t\"Valve\"\n\t\t{\n\t\t\t\"Steam\"\n\t\t\t{\n\t\t\t\t\"depots\"\n\t\t\t\t{\n\t\t\t\t\t\"401\"\n\t\t\t\t\t{\n\t\t\t\t\t\t\"DecryptionKey\"\t\t\"aa\"\n\t\t\t\t\t}\n\t\t\t\t}\n\t\t\t}\n\t\t}\n\t}\n}\n"

func TestAddDecryptionKeysIntoExistingDepots(t *testing.T) {
	got := AddDecryptionKeys(configWithDepots, []DepotKey{{DepotID: "401", Key: "zz"}, {DepotID: "621", Key: "bb"}})

	assert.Equal(t, 1, strings.Count(got, "\"401\""))
	assert.Contains(t, got, "\t\t\t\t\t\"621\"\n\t\t\t\t\t{\n\t\t\t\t\t\t\"DecryptionKey\"\t\t\"bb\"\n\t\t\t\t\t}\n")
	assert.NotContains(t, got, "zz")
	assert.Equal(t, strings.Count(got, "{"), strings.Count(got, "}"))
}

func TestAddDecryptionKeysNoopWhenAllPresent(t *testing.T) {
	assert.Equal(t, configWithDepots, AddDecryptionKeys(configWithDepots, []DepotKey{{DepotID: "401", Key: "aa"}}))
}

func TestAddDecryptionKeysCreatesDepotsUnderSteam(t *testing.T) {
	content := "\"InstallConfigStore\"\n{\n\t\"Software\"\n\t{\n\t\t\"Valve\"\n\t\t{\n\t\t\t\"Steam\"\n\t\t\t{\n\t\t\t\t\"AutoUpdateWindowEnabled\"\t\t\"0\"\n\t\t\t}\n\t\t}\n\t}\n}\n"

	got := AddDecryptionKeys(content, []DepotKey{{DepotID: "621", Key: "bb"}})

	assert.Contains(t, got, "\t\t\t{\n\t\t\t\t\"depots\"\n\t\t\t\t{\n\t\t\t\t\t\"621\"")
	assert.Contains(t, got, "AutoUpdateWindowEnabled")
	assert.Equal(t, strings.Count(got, "{"), strings.Count(got, "}"))
}

func TestAddDecryptionKeysBuildsSoftwareTree(t *testing.T) {
	content := "\"InstallConfigStore\"\n{\n\t\"Music\"\n\t{\n\t}\n}\n"
	got := AddDecryptionKeys(content, []DepotKey{{DepotID: "621", Key: "bb"}})

	assert.True(t, strings.HasPrefix(got, "\"InstallConfigStore\"\n{\n\t\"Software\"\n"))
	assert.Contains(t, got, "\"Music\"")
	assert.Equal(t, strings.Count(got, "{"), strings.Count(got, "}"))
}

func TestAddDecryptionKeysCreatesDocumentFromEmpty(t *testing.T) {
	got := AddDecryptionKeys("", []DepotKey{{DepotID: "621", Key: "bb"}, {DepotID: "621", Key: "bb"}})

	assert.True(t, strings.HasPrefix(got, "\"InstallConfigStore\"\n{\n"))
	assert.Equal(t, 1, strings.Count(got, "\"621\""))
	assert.Equal(t, strings.Count(got, "{"), strings.Count(got, "}"))
	assert.Contains(t, existingDepotIDs(got), "621")
}

package steamcfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeApps(t *testing.T, content string) []int {
	t.Helper()
	var doc struct {
		AdditionalApps []int `yaml:"AdditionalApps"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(content), &doc))
	return doc.AdditionalApps
}

func TestAddAppToAllowListInsertsAfterKey(t *testing.T) {
	content := "PlayNotOwnedGames: yes\nAdditionalApps:\n# Portal\n- 400\nDisableFamilyShareLock: yes\n"

	got := AddAppToAllowList(content, "620", "Portal 2")

	assert.Equal(t, "PlayNotOwnedGames: yes\nAdditionalApps:\n# Portal 2\n- 620\n# Portal\n- 400\nDisableFamilyShareLock: yes\n", got)
	assert.ElementsMatch(t, []int{620, 400}, decodeApps(t, got))
}

func TestAddAppToAllowListIsIdempotent(t *testing.T) {
	content := "AdditionalApps:\n- 620\n"
	once := AddAppToAllowList(content, "620", "Portal 2")
	assert.Equal(t, content, once)

	added := AddAppToAllowList("AdditionalApps:\n- 6200\n", "620", "Portal 2")
	assert.ElementsMatch(t, []int{620, 6200}, decodeApps(t, added))
	assert.Equal(t, added, AddAppToAllowList(added, "620", "Portal 2"))
}

func TestAddAppToAllowListAppendsMissingSection(t *testing.T) {
	got := AddAppToAllowList("PlayNotOwnedGames: yes", "620", "Portal 2")
	assert.Equal(t, "PlayNotOwnedGames: yes\n\nAdditionalApps:\n# Portal 2\n- 620\n", got)

	fromEmpty := AddAppToAllowList("", "620", "")
	assert.Equal(t, "AdditionalApps:\n- 620\n", fromEmpty)
}

func TestAddAppToAllowListKeepsIndentedLists(t *testing.T) {
	content := "AdditionalApps:\n  - 400\n"
	got := AddAppToAllowList(content, "620", "Portal 2")
	assert.Equal(t, "AdditionalApps:\n  # Portal 2\n  - 620\n  - 400\n", got)
	assert.ElementsMatch(t, []int{620, 400}, decodeApps(t, got))
}

func TestAddAppToAllowListRewritesFlowLists(t *testing.T) {
	got := AddAppToAllowList("AdditionalApps: [400]\nOther: 1\n", "620", "Portal 2")
	assert.ElementsMatch(t, []int{400, 620}, decodeApps(t, got))
	assert.Contains(t, got, "Other: 1")
}

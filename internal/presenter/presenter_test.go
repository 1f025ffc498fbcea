package presenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuickActionsFollowVerification(t *testing.T) {
	unverified := QuickActions(false)
	require.Len(t, unverified, 3)
	assert.Equal(t, "Hello, I need help with my appointments", unverified[0])
	assert.Contains(t, unverified[1], "DOB")

	verified := QuickActions(true)
	assert.Equal(t, []string{"List my appointments", "Confirm #1", "Cancel #2", "Help"}, verified)
}

func TestQuickActionsReturnsCopy(t *testing.T) {
	first := QuickActions(true)
	first[0] = "tampered"
	assert.Equal(t, "List my appointments", QuickActions(true)[0])
}

func TestMenuNumbersSuggestionsFirst(t *testing.T) {
	items := Menu([]string{"Confirm #1", "Cancel #1"}, true)
	require.Len(t, items, 6)
	assert.Equal(t, Item{Index: 1, Text: "Confirm #1", Source: SourceSuggestion}, items[0])
	assert.Equal(t, Item{Index: 3, Text: "List my appointments", Source: SourceQuickAction}, items[2])
	assert.Equal(t, 6, items[5].Index)
}

func TestPick(t *testing.T) {
	items := Menu(nil, false)
	item, ok := Pick(items, 2)
	require.True(t, ok)
	assert.Contains(t, item.Text, "(415) 555-0123")

	_, ok = Pick(items, 0)
	assert.False(t, ok)
	_, ok = Pick(items, 4)
	assert.False(t, ok)
}

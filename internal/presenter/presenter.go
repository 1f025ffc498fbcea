// Package presenter derives the canned inputs offered to the user. It holds no
// state and validates nothing: the server decides what it accepts.
package presenter

// Source tells where a menu item came from.
type Source string

const (
	SourceSuggestion  Source = "suggestion"
	SourceQuickAction Source = "quick-action"
)

// Item is one selectable canned input.
type Item struct {
	Index  int
	Text   string
	Source Source
}

var (
	unverifiedActions = []string{
		"Hello, I need help with my appointments",
		"My phone is (415) 555-0123 and DOB is 07/14/1985",
		"Yes, that's me",
	}
	verifiedActions = []string{
		"List my appointments",
		"Confirm #1",
		"Cancel #2",
		"Help",
	}
)

// QuickActions returns the canned prompts for the current verification status.
func QuickActions(verified bool) []string {
	src := unverifiedActions
	if verified {
		src = verifiedActions
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Menu numbers the server's suggestions followed by the quick actions,
// starting at 1.
func Menu(suggestions []string, verified bool) []Item {
	actions := QuickActions(verified)
	items := make([]Item, 0, len(suggestions)+len(actions))
	for _, text := range suggestions {
		items = append(items, Item{Index: len(items) + 1, Text: text, Source: SourceSuggestion})
	}
	for _, text := range actions {
		items = append(items, Item{Index: len(items) + 1, Text: text, Source: SourceQuickAction})
	}
	return items
}

// Pick returns the item with the given 1-based index.
func Pick(items []Item, index int) (Item, bool) {
	if index < 1 || index > len(items) {
		return Item{}, false
	}
	return items[index-1], true
}

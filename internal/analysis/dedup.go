package analysis

import "strings"

// isDuplicate reports whether item repeats one of the last lookback entries
// in history. Two entries are considered duplicates when either is a
// case-insensitive substring of the other, which catches the common case of
// the model restating an issue with slightly more or less detail.
func isDuplicate(item string, history []string, lookback int) bool {
	itemLower := strings.ToLower(item)
	start := len(history) - lookback
	if start < 0 {
		start = 0
	}
	for _, prev := range history[start:] {
		prevLower := strings.ToLower(prev)
		if strings.Contains(prevLower, itemLower) || strings.Contains(itemLower, prevLower) {
			return true
		}
	}
	return false
}

// dropDuplicates filters items that repeat recent history entries.
func dropDuplicates(items, history []string, lookback int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !isDuplicate(item, history, lookback) {
			out = append(out, item)
		}
	}
	return out
}

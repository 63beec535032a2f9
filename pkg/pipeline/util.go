package pipeline

import "strings"

// snippet returns a shortened single-line version of text for logging.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// Package filter decides which senders are worth summarizing.
package filter

import "strings"

// Match reports whether sender contains any of the allowed entries,
// ignoring case. Blank entries never match.
func Match(sender string, allowed []string) bool {
	s := strings.ToLower(sender)
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if strings.Contains(s, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

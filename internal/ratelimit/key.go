package ratelimit

import "strings"

// LoginKey builds a limiter key for a login identifier. Identifiers
// are folded to lower case so "Jane" and "jane" share one bucket.
func LoginKey(identifier string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return ""
	}
	return "login:" + identifier
}

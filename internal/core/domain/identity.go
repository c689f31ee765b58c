package domain

import "strings"

// NormalizeIdentity canonicalizes an identity (typically an email address) so
// that equivalent spellings share lockout and rate-limit counters.
func NormalizeIdentity(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

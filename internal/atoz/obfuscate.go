// internal/atoz/obfuscate.go
package atoz

import (
	"strings"
)

// ObfuscateEmail returns the masked address the AtoZ verification page shows
// for email: the first two characters of the local part are kept and the rest
// replaced by '*' (one character is kept for local parts of up to two
// characters). Addresses without '@' are returned unchanged.
func ObfuscateEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	local, domain := []rune(email[:at]), email[at:]

	keep := 2
	if len(local) <= 2 {
		keep = 1
	}
	if keep > len(local) {
		keep = len(local)
	}
	return string(local[:keep]) + strings.Repeat("*", len(local)-keep) + domain
}

package game

import (
	"crypto/subtle"
	"strings"
	"unicode"
)

// sanitizeText cleans untrusted player input before it is stored or fed into
// a generation request: allowlisted characters only, collapsed whitespace,
// trimmed, truncated to max runes. Everything user-supplied passes through
// here exactly once, on the way in.
func sanitizeText(s string, max int) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	count := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			if lastSpace {
				continue
			}
			r = ' '
			lastSpace = true
		} else if allowedRune(r) {
			lastSpace = false
		} else {
			continue
		}

		if count >= max {
			break
		}
		b.WriteRune(r)
		count++
	}

	return strings.TrimRight(b.String(), " ")
}

func allowedRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.', ',', '!', '?', '\'', '"', '-', ':', ';', '(', ')':
		return true
	}
	return false
}

// checkAdminKey compares a supplied key against the configured secret in
// constant time. An unset secret disables admin status entirely.
func checkAdminKey(key, secret string) bool {
	if secret == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(secret)) == 1
}

// sanitizeRoomCode normalizes a join code from the URL path.
func sanitizeRoomCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() >= 12 {
			break
		}
	}
	return b.String()
}

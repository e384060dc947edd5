package domain

import "regexp"

// emailRe is deliberately loose: local-part@domain.tld, no whitespace.
var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address. Sign-in uses
// this to decide whether an identifier is an email or a username.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

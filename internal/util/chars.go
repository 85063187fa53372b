// Package util provides shared helpers used across the oidcd library,
// including the RFC 6749 appendix A character grammars that token-endpoint
// parameters are validated against before any backend lookup.
package util

import (
	"net/url"
	"unicode/utf8"
)

// VSChar reports whether s is a non-empty string of visible ASCII
// characters (%x20-7E). Used for client credentials, codes and tokens.
func VSChar(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// NQSChar reports whether s contains only NQSCHAR characters
// (%x20-21 / %x23-5B / %x5D-7E). The empty string is valid, matching the
// optional scope parameter.
func NQSChar(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 0x20 && c <= 0x21:
		case c >= 0x23 && c <= 0x5b:
		case c >= 0x5d && c <= 0x7e:
		default:
			return false
		}
	}
	return true
}

// NChar reports whether s is a non-empty name string: ALPHA / DIGIT /
// "-" / "." / "_". Grant type names use this grammar.
func NChar(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_':
		default:
			return false
		}
	}
	return true
}

// UChar reports whether s is a non-empty string of printable unicode
// characters without control characters. Usernames and passwords are
// restricted to this grammar before any account lookup.
func UChar(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == 0x09:
		case r >= 0x20 && r <= 0x7e:
		case r >= 0x80 && r <= 0xd7ff:
		case r >= 0xe000 && r <= 0xfffd:
		case r >= 0x10000 && r <= 0x10ffff:
		default:
			return false
		}
	}
	return true
}

// URI reports whether s parses as an absolute URI with a scheme.
func URI(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && s != ""
}

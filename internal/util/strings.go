package util

// SafeTruncate truncates a string to at most n bytes. Used when logging
// prefixes of sensitive values.
func SafeTruncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}

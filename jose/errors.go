package jose

import "fmt"

// InvalidTokenError reports why a token failed decoding, verification,
// decryption or claim assertion.
type InvalidTokenError struct {
	Reason string
}

func (e *InvalidTokenError) Error() string {
	return "jose: " + e.Reason
}

func newTokenError(format string, args ...any) *InvalidTokenError {
	return &InvalidTokenError{Reason: fmt.Sprintf(format, args...)}
}

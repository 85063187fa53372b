package jose

import (
	"crypto/sha1"
	"crypto/sha256"
)

// CertThumbprintSHA1 returns the x5t value for a DER-encoded
// certificate.
func CertThumbprintSHA1(der []byte) string {
	sum := sha1.Sum(der)
	return b64.EncodeToString(sum[:])
}

// CertThumbprintSHA256 returns the x5t#S256 value for a DER-encoded
// certificate.
func CertThumbprintSHA256(der []byte) string {
	sum := sha256.Sum256(der)
	return b64.EncodeToString(sum[:])
}

// Package jose wraps JWS signing and verification, JWE encryption and
// decryption, and JWT claim assertion behind key stores that select
// candidate keys by algorithm and key ID.
//
// Verification against a remote key store retries exactly once after a
// refresh when no current key validates the token, so key rotation at
// the issuer does not strand otherwise valid tokens.
package jose

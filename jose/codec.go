package jose

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

var b64 = base64.RawURLEncoding

// SignOptions configures Sign.
type SignOptions struct {
	// Algorithm is the JWS algorithm. jwa.NoSignature produces an
	// unsecured token with an empty signature part.
	Algorithm jwa.SignatureAlgorithm

	// Key signs the token. Ignored for unsecured tokens.
	Key jwk.Key

	// KeyID is placed in the protected header when non-empty.
	KeyID string

	// Type is the typ header value, e.g. "JWT".
	Type string

	// Fields are extra protected header fields. Explicit options win
	// over colliding field names.
	Fields map[string]any

	// Standard claims injected into the payload where the caller has
	// not already set them. Claims present in the payload always win.
	Issuer          string
	Subject         string
	Audience        string
	AuthorizedParty string

	// ExpiresIn sets exp relative to issuance, in seconds, when the
	// payload carries no exp of its own.
	ExpiresIn int64

	// NoIat suppresses the default iat claim.
	NoIat bool
}

// Sign serializes claims into a compact JWS. The standard claims named
// in opts are injected first, without overriding anything the caller
// already set.
func Sign(claims map[string]any, opts SignOptions) (string, error) {
	payload, err := json.Marshal(injectClaims(claims, opts))
	if err != nil {
		return "", err
	}

	if opts.Algorithm == jwa.NoSignature {
		return signUnsecured(payload, opts)
	}

	if opts.Key == nil {
		return "", newTokenError("signing key required for %s", opts.Algorithm)
	}

	headers := jws.NewHeaders()
	for name, value := range opts.Fields {
		if err := headers.Set(name, value); err != nil {
			return "", err
		}
	}
	if opts.KeyID != "" {
		if err := headers.Set(jws.KeyIDKey, opts.KeyID); err != nil {
			return "", err
		}
	}
	if opts.Type != "" {
		if err := headers.Set(jws.TypeKey, opts.Type); err != nil {
			return "", err
		}
	}

	signed, err := jws.Sign(payload, jws.WithKey(opts.Algorithm, opts.Key, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", newTokenError("signing failed: %v", err)
	}
	return string(signed), nil
}

// injectClaims returns a copy of claims with the option-supplied
// standard claims filled in where absent. iat defaults to now unless
// suppressed; exp is derived from iat when ExpiresIn is set.
func injectClaims(claims map[string]any, opts SignOptions) map[string]any {
	out := make(map[string]any, len(claims)+6)
	for k, v := range claims {
		out[k] = v
	}

	now := time.Now().Unix()
	if _, ok := out["iat"]; !ok && !opts.NoIat {
		out["iat"] = now
	}
	if _, ok := out["exp"]; !ok && opts.ExpiresIn > 0 {
		out["exp"] = now + opts.ExpiresIn
	}

	inject := map[string]string{
		"iss": opts.Issuer,
		"sub": opts.Subject,
		"aud": opts.Audience,
		"azp": opts.AuthorizedParty,
	}
	for name, value := range inject {
		if value == "" {
			continue
		}
		if _, ok := out[name]; !ok {
			out[name] = value
		}
	}
	return out
}

// signUnsecured builds the compact serialization of an unsecured JWS by
// hand: the library refuses alg "none" and rightly so, but ID tokens
// for clients registered with id_token_signed_response_alg "none" need
// it.
func signUnsecured(payload []byte, opts SignOptions) (string, error) {
	header := make(map[string]any, len(opts.Fields)+2)
	for name, value := range opts.Fields {
		header[name] = value
	}
	header["alg"] = "none"
	if opts.Type != "" {
		header["typ"] = opts.Type
	}
	rawHeader, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	return b64.EncodeToString(rawHeader) + "." + b64.EncodeToString(payload) + ".", nil
}

// VerifyOptions configures Verify.
type VerifyOptions struct {
	// KeyStore provides verification keys.
	KeyStore KeyStore

	// AllowUnsecured accepts alg "none" tokens. Off by default.
	AllowUnsecured bool
}

// Verify checks the token signature against the key store and returns
// the decoded claims. Candidate keys are selected by the header's alg
// and kid. When no candidate validates the token and the key store is
// stale, the store is refreshed exactly once and selection retried.
func Verify(ctx context.Context, token string, opts VerifyOptions) (map[string]any, error) {
	header, claims, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}

	alg, _ := header["alg"].(string)
	kid, _ := header["kid"].(string)

	if alg == "" {
		return nil, newTokenError("missing alg header")
	}

	if alg == "none" {
		if !opts.AllowUnsecured {
			return nil, newTokenError("unsecured token not allowed")
		}
		if !strings.HasSuffix(token, ".") {
			return nil, newTokenError("unsecured token carries a signature")
		}
		return claims, nil
	}

	if opts.KeyStore == nil {
		return nil, newTokenError("no key store configured")
	}

	if verifyAgainst(ctx, token, alg, kid, opts.KeyStore) {
		return claims, nil
	}

	// One refresh retry when the set may have rotated under us.
	if !opts.KeyStore.Fresh() {
		if err := opts.KeyStore.Refresh(ctx); err != nil {
			return nil, err
		}
		if verifyAgainst(ctx, token, alg, kid, opts.KeyStore) {
			return claims, nil
		}
	}

	return nil, newTokenError("no key validated the signature")
}

func verifyAgainst(ctx context.Context, token, alg, kid string, ks KeyStore) bool {
	set, err := ks.Keys(ctx)
	if err != nil {
		return false
	}
	for _, key := range selectKeys(set, alg, kid) {
		if _, err := jws.Verify([]byte(token), jws.WithKey(jwa.SignatureAlgorithm(alg), key)); err == nil {
			return true
		}
	}
	return false
}

// Encrypt serializes plaintext into a compact JWE.
func Encrypt(plaintext []byte, alg jwa.KeyEncryptionAlgorithm, enc jwa.ContentEncryptionAlgorithm, key jwk.Key, kid string) (string, error) {
	headers := jwe.NewHeaders()
	if kid != "" {
		if err := headers.Set(jwe.KeyIDKey, kid); err != nil {
			return "", err
		}
	}

	encrypted, err := jwe.Encrypt(plaintext,
		jwe.WithKey(alg, key),
		jwe.WithContentEncryption(enc),
		jwe.WithProtectedHeaders(headers),
	)
	if err != nil {
		return "", newTokenError("encryption failed: %v", err)
	}
	return string(encrypted), nil
}

// Decrypt resolves the decryption key from the key store and returns
// the plaintext. For direct encryption the candidate keys are matched
// against the content encryption algorithm, since "dir" never appears
// as a key's alg. The stale-store refresh retry mirrors Verify.
func Decrypt(ctx context.Context, token string, ks KeyStore) ([]byte, error) {
	msg, err := jwe.Parse([]byte(token))
	if err != nil {
		return nil, newTokenError("malformed JWE: %v", err)
	}

	headers := msg.ProtectedHeaders()
	alg := headers.Algorithm()
	enc := headers.ContentEncryption()
	kid := headers.KeyID()
	wanted := decryptionAlgorithmName(alg, enc)

	if plaintext, ok := decryptAgainst(ctx, token, alg, wanted, kid, ks); ok {
		return plaintext, nil
	}

	if !ks.Fresh() {
		if err := ks.Refresh(ctx); err != nil {
			return nil, err
		}
		if plaintext, ok := decryptAgainst(ctx, token, alg, wanted, kid, ks); ok {
			return plaintext, nil
		}
	}

	return nil, newTokenError("no key decrypted the token")
}

func decryptAgainst(ctx context.Context, token string, alg jwa.KeyEncryptionAlgorithm, wanted, kid string, ks KeyStore) ([]byte, bool) {
	set, err := ks.Keys(ctx)
	if err != nil {
		return nil, false
	}
	for _, key := range selectKeys(set, wanted, kid) {
		plaintext, err := jwe.Decrypt([]byte(token), jwe.WithKey(alg, key))
		if err == nil {
			return plaintext, true
		}
	}
	return nil, false
}

// DecodeToken decodes a compact token's header and payload without any
// verification. Callers must treat the result as untrusted input.
func DecodeToken(token string) (header, payload map[string]any, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 && len(parts) != 5 {
		return nil, nil, newTokenError("malformed token")
	}

	rawHeader, err := b64.DecodeString(parts[0])
	if err != nil {
		return nil, nil, newTokenError("malformed token header")
	}
	if err := json.Unmarshal(rawHeader, &header); err != nil {
		return nil, nil, newTokenError("malformed token header")
	}

	// JWE payloads are ciphertext; only decode the body of a JWS.
	if len(parts) == 3 {
		rawPayload, err := b64.DecodeString(parts[1])
		if err != nil {
			return nil, nil, newTokenError("malformed token payload")
		}
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, nil, newTokenError("malformed token payload")
		}
	}

	return header, payload, nil
}

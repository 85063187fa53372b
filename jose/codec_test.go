package jose

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

func symmetricKey(t *testing.T, kid string, alg jwa.KeyAlgorithm) jwk.Key {
	t.Helper()
	key, err := jwk.FromRaw([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("jwk.FromRaw() error = %v", err)
	}
	setKeyAttrs(t, key, kid, alg)
	return key
}

func rsaKey(t *testing.T, kid string) (jwk.Key, jwk.Key) {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	private, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("jwk.FromRaw() error = %v", err)
	}
	setKeyAttrs(t, private, kid, jwa.RS256)
	public, err := private.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey() error = %v", err)
	}
	return private, public
}

func ecdsaKey(t *testing.T, kid string) (jwk.Key, jwk.Key) {
	t.Helper()
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ecdsa.GenerateKey() error = %v", err)
	}
	private, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("jwk.FromRaw() error = %v", err)
	}
	setKeyAttrs(t, private, kid, jwa.ES256)
	public, err := private.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey() error = %v", err)
	}
	return private, public
}

func setKeyAttrs(t *testing.T, key jwk.Key, kid string, alg jwa.KeyAlgorithm) {
	t.Helper()
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("Set(kid) error = %v", err)
	}
	if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
		t.Fatalf("Set(alg) error = %v", err)
	}
}

func setOf(t *testing.T, keys ...jwk.Key) jwk.Set {
	t.Helper()
	set := jwk.NewSet()
	for _, key := range keys {
		if err := set.AddKey(key); err != nil {
			t.Fatalf("AddKey() error = %v", err)
		}
	}
	return set
}

func TestSignVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	claims := map[string]any{"sub": "alice", "iss": "https://op.example.com"}

	hsKey := symmetricKey(t, "hs", jwa.HS256)
	rsPriv, rsPub := rsaKey(t, "rs")
	esPriv, esPub := ecdsaKey(t, "es")

	tests := []struct {
		name   string
		alg    jwa.SignatureAlgorithm
		signer jwk.Key
		kid    string
		store  KeyStore
	}{
		{"HS256", jwa.HS256, hsKey, "hs", NewStaticKeyStore(setOf(t, hsKey))},
		{"RS256", jwa.RS256, rsPriv, "rs", NewStaticKeyStore(setOf(t, rsPub))},
		{"ES256", jwa.ES256, esPriv, "es", NewStaticKeyStore(setOf(t, esPub))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := Sign(claims, SignOptions{
				Algorithm: tt.alg,
				Key:       tt.signer,
				KeyID:     tt.kid,
				Type:      "JWT",
			})
			if err != nil {
				t.Fatalf("Sign() error = %v", err)
			}

			got, err := Verify(ctx, token, VerifyOptions{KeyStore: tt.store})
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if got["sub"] != "alice" {
				t.Errorf("claims sub = %v, want alice", got["sub"])
			}
		})
	}
}

func TestSignUnsecured(t *testing.T) {
	claims := map[string]any{"sub": "alice"}

	token, err := Sign(claims, SignOptions{Algorithm: jwa.NoSignature, Type: "JWT"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !strings.HasSuffix(token, ".") {
		t.Errorf("unsecured token %q must end with empty signature part", token)
	}

	if _, err := Verify(context.Background(), token, VerifyOptions{}); err == nil {
		t.Error("Verify() accepted unsecured token without opt-in")
	}

	got, err := Verify(context.Background(), token, VerifyOptions{AllowUnsecured: true})
	if err != nil {
		t.Fatalf("Verify() with AllowUnsecured error = %v", err)
	}
	if got["sub"] != "alice" {
		t.Errorf("claims sub = %v, want alice", got["sub"])
	}
}

func TestSignInjectsStandardClaims(t *testing.T) {
	signer := symmetricKey(t, "hs", jwa.HS256)
	now := time.Now().Unix()

	token, err := Sign(map[string]any{"iss": "caller"}, SignOptions{
		Algorithm:       jwa.HS256,
		Key:             signer,
		KeyID:           "hs",
		Issuer:          "https://op.example.com",
		Subject:         "alice",
		Audience:        "client",
		AuthorizedParty: "client",
		ExpiresIn:       600,
		Fields:          map[string]any{"cty": "JWT"},
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	header, payload, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken() error = %v", err)
	}

	// Caller-set claims always win over the injected values.
	if payload["iss"] != "caller" {
		t.Errorf("iss = %v, want caller", payload["iss"])
	}
	if payload["sub"] != "alice" || payload["aud"] != "client" || payload["azp"] != "client" {
		t.Errorf("injected claims = %v", payload)
	}

	iat, ok := payload["iat"].(float64)
	if !ok || int64(iat) < now || int64(iat) > now+5 {
		t.Errorf("iat = %v, want ~%d", payload["iat"], now)
	}
	exp, ok := payload["exp"].(float64)
	if !ok || int64(exp) != int64(iat)+600 {
		t.Errorf("exp = %v, want iat+600", payload["exp"])
	}

	if header["cty"] != "JWT" {
		t.Errorf("header cty = %v, want JWT", header["cty"])
	}
}

func TestSignNoIat(t *testing.T) {
	signer := symmetricKey(t, "hs", jwa.HS256)

	token, err := Sign(map[string]any{"sub": "alice"}, SignOptions{
		Algorithm: jwa.HS256,
		Key:       signer,
		NoIat:     true,
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	_, payload, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken() error = %v", err)
	}
	if _, present := payload["iat"]; present {
		t.Errorf("iat present despite NoIat: %v", payload)
	}
}

func TestSignUnsecuredInjectsClaims(t *testing.T) {
	token, err := Sign(map[string]any{"sub": "alice"}, SignOptions{
		Algorithm: jwa.NoSignature,
		Issuer:    "https://op.example.com",
		Fields:    map[string]any{"cty": "JWT"},
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	header, payload, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken() error = %v", err)
	}
	if header["alg"] != "none" || header["cty"] != "JWT" {
		t.Errorf("header = %v", header)
	}
	if payload["iss"] != "https://op.example.com" {
		t.Errorf("iss = %v", payload["iss"])
	}
	if _, present := payload["iat"]; !present {
		t.Errorf("iat missing: %v", payload)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	_, rsPub := rsaKey(t, "other")
	signer, _ := rsaKey(t, "rs")

	token, err := Sign(map[string]any{"sub": "alice"}, SignOptions{Algorithm: jwa.RS256, Key: signer, KeyID: "rs"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	_, err = Verify(context.Background(), token, VerifyOptions{KeyStore: NewStaticKeyStore(setOf(t, rsPub))})
	if err == nil {
		t.Error("Verify() accepted token signed by a different key")
	}
}

// rotatingStore serves one set, reports stale, and swaps in the next
// set on refresh.
type rotatingStore struct {
	set       jwk.Set
	next      jwk.Set
	refreshes int
}

func (s *rotatingStore) Keys(context.Context) (jwk.Set, error) { return s.set, nil }

func (s *rotatingStore) Fresh() bool { return false }

func (s *rotatingStore) Refresh(context.Context) error {
	s.refreshes++
	if s.next != nil {
		s.set = s.next
	}
	return nil
}

func TestVerifyRefreshesStaleStoreOnce(t *testing.T) {
	oldPriv, oldPub := rsaKey(t, "old")
	_ = oldPriv
	newPriv, newPub := rsaKey(t, "new")

	token, err := Sign(map[string]any{"sub": "alice"}, SignOptions{Algorithm: jwa.RS256, Key: newPriv, KeyID: "new"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	store := &rotatingStore{set: setOf(t, oldPub), next: setOf(t, oldPub, newPub)}
	got, err := Verify(context.Background(), token, VerifyOptions{KeyStore: store})
	if err != nil {
		t.Fatalf("Verify() after rotation error = %v", err)
	}
	if got["sub"] != "alice" {
		t.Errorf("claims sub = %v, want alice", got["sub"])
	}
	if store.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", store.refreshes)
	}

	// A token no key can validate triggers exactly one refresh, then
	// fails for good.
	strangerPriv, _ := rsaKey(t, "stranger")
	badToken, err := Sign(map[string]any{"sub": "mallory"}, SignOptions{Algorithm: jwa.RS256, Key: strangerPriv, KeyID: "stranger"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	store2 := &rotatingStore{set: setOf(t, oldPub)}
	if _, err := Verify(context.Background(), badToken, VerifyOptions{KeyStore: store2}); err == nil {
		t.Error("Verify() accepted unverifiable token")
	}
	if store2.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", store2.refreshes)
	}
}

func TestEncryptDecryptDirect(t *testing.T) {
	key, err := jwk.FromRaw([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("jwk.FromRaw() error = %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, "enc"); err != nil {
		t.Fatalf("Set(kid) error = %v", err)
	}

	token, err := Encrypt([]byte(`{"sub":"alice"}`), jwa.DIRECT, jwa.A128GCM, key, "enc")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	plaintext, err := Decrypt(context.Background(), token, NewStaticKeyStore(setOf(t, key)))
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(plaintext) != `{"sub":"alice"}` {
		t.Errorf("Decrypt() = %q", plaintext)
	}
}

func TestDecodeToken(t *testing.T) {
	signer := symmetricKey(t, "hs", jwa.HS256)
	token, err := Sign(map[string]any{"sub": "alice"}, SignOptions{Algorithm: jwa.HS256, Key: signer, KeyID: "hs"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	header, payload, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken() error = %v", err)
	}
	if header["alg"] != "HS256" || header["kid"] != "hs" {
		t.Errorf("header = %v", header)
	}
	if payload["sub"] != "alice" {
		t.Errorf("payload = %v", payload)
	}

	if _, _, err := DecodeToken("not-a-token"); err == nil {
		t.Error("DecodeToken() accepted malformed input")
	}
}

func TestAssertPayload(t *testing.T) {
	now := time.Now().Unix()

	tests := []struct {
		name     string
		claims   map[string]any
		expected Expected
		wantErr  bool
	}{
		{
			name:   "valid token",
			claims: map[string]any{"exp": float64(now + 60), "iat": float64(now), "iss": "op", "aud": "client", "sub": "alice"},
			expected: Expected{
				Issuer: "op", Audience: "client", SubjectRequired: true,
			},
		},
		{
			name:     "expired",
			claims:   map[string]any{"exp": float64(now - 60)},
			expected: Expected{},
			wantErr:  true,
		},
		{
			name:     "expired within tolerance",
			claims:   map[string]any{"exp": float64(now - 2)},
			expected: Expected{ClockTolerance: 10 * time.Second},
		},
		{
			name:     "expired but ignored",
			claims:   map[string]any{"exp": float64(now - 60)},
			expected: Expected{IgnoreExpiration: true},
		},
		{
			name:     "issued in the future",
			claims:   map[string]any{"iat": float64(now + 300)},
			expected: Expected{},
			wantErr:  true,
		},
		{
			name:     "future iat bounded by exp",
			claims:   map[string]any{"iat": float64(now + 300), "exp": float64(now + 600)},
			expected: Expected{},
		},
		{
			name:     "not yet active",
			claims:   map[string]any{"nbf": float64(now + 300)},
			expected: Expected{},
			wantErr:  true,
		},
		{
			name:     "wrong issuer",
			claims:   map[string]any{"iss": "someone-else"},
			expected: Expected{Issuer: "op"},
			wantErr:  true,
		},
		{
			name:     "audience array with azp",
			claims:   map[string]any{"aud": []any{"client", "other"}, "azp": "client"},
			expected: Expected{Audience: "client"},
		},
		{
			name:     "audience array missing azp",
			claims:   map[string]any{"aud": []any{"client", "other"}},
			expected: Expected{Audience: "client"},
			wantErr:  true,
		},
		{
			name:     "audience array azp waived",
			claims:   map[string]any{"aud": []any{"client", "other"}},
			expected: Expected{Audience: "client", IgnoreAzp: true},
		},
		{
			name:     "missing subject",
			claims:   map[string]any{"aud": "client"},
			expected: Expected{SubjectRequired: true},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AssertPayload(tt.claims, tt.expected)
			if (err != nil) != tt.wantErr {
				t.Errorf("AssertPayload() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

package oidcd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/oidcd/oidcd/instrumentation"
	"github.com/oidcd/oidcd/jose"
	"github.com/oidcd/oidcd/storage"
)

// StoreModel implements the code, refresh token and token persistence
// capabilities over a storage backend. Client and user resolution stay
// with the embedding application.
type StoreModel struct {
	codes   *storage.Store
	access  *storage.Store
	refresh *storage.Store
}

var (
	_ AuthorizationCodeService = (*StoreModel)(nil)
	_ RefreshTokenService      = (*StoreModel)(nil)
	_ TokenSaver               = (*StoreModel)(nil)
	_ GrantRevoker             = (*StoreModel)(nil)
)

// NewStoreModel creates a model over a shared storage backend.
func NewStoreModel(backend storage.Backend) *StoreModel {
	return &StoreModel{
		codes:   storage.New(storage.KindAuthorizationCode, backend),
		access:  storage.New(storage.KindAccessToken, backend),
		refresh: storage.New(storage.KindRefreshToken, backend),
	}
}

// Instrument records storage operation durations and returns the model
// for chaining.
func (m *StoreModel) Instrument(inst *instrumentation.Instrumentation) *StoreModel {
	if inst != nil {
		m.codes.Instrument(inst.Metrics())
		m.access.Instrument(inst.Metrics())
		m.refresh.Instrument(inst.Metrics())
	}
	return m
}

type storedCode struct {
	Code        string `json:"code"`
	ClientID    string `json:"clientId"`
	UserID      string `json:"userId"`
	RedirectURI string `json:"redirectUri,omitempty"`
	Scope       string `json:"scope,omitempty"`
	ExpiresAt   int64  `json:"expiresAt"`
	GrantID     string `json:"grantId,omitempty"`
}

type storedToken struct {
	AccessToken           string `json:"accessToken"`
	AccessTokenExpiresAt  int64  `json:"accessTokenExpiresAt,omitempty"`
	RefreshToken          string `json:"refreshToken,omitempty"`
	RefreshTokenExpiresAt int64  `json:"refreshTokenExpiresAt,omitempty"`
	ClientID              string `json:"clientId"`
	UserID                string `json:"userId"`
	Scope                 string `json:"scope,omitempty"`
	GrantID               string `json:"grantId,omitempty"`
	AuthorizationCode     string `json:"authorizationCode,omitempty"`
}

func recordTTL(expiresAt time.Time) (time.Duration, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return 0, fmt.Errorf("record already expired at %s", expiresAt)
	}
	return ttl, nil
}

// SaveAuthorizationCode persists a freshly minted code until its
// expiry.
func (m *StoreModel) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode, user *User) error {
	if user == nil {
		return errors.New("authorization code requires a user")
	}
	ttl, err := recordTTL(code.ExpiresAt)
	if err != nil {
		return err
	}
	return m.codes.Upsert(ctx, code.Code, storedCode{
		Code:        code.Code,
		ClientID:    code.ClientID,
		UserID:      user.ID,
		RedirectURI: code.RedirectURI,
		Scope:       code.Scope,
		ExpiresAt:   code.ExpiresAt.Unix(),
		GrantID:     code.GrantID,
	}, ttl)
}

func (m *StoreModel) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, *User, error) {
	entry, err := m.codes.Find(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var sc storedCode
	if err := entry.Decode(&sc); err != nil {
		return nil, nil, err
	}
	ac := &AuthorizationCode{
		Code:        sc.Code,
		ClientID:    sc.ClientID,
		UserID:      sc.UserID,
		RedirectURI: sc.RedirectURI,
		Scope:       sc.Scope,
		ExpiresAt:   time.Unix(sc.ExpiresAt, 0),
		GrantID:     sc.GrantID,
	}
	return ac, &User{ID: sc.UserID}, nil
}

// RevokeAuthorizationCode atomically removes the code. The losing side
// of a concurrent exchange observes false.
func (m *StoreModel) RevokeAuthorizationCode(ctx context.Context, code *AuthorizationCode) (bool, error) {
	_, err := m.codes.Revoke(ctx, code.Code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SaveToken persists the access token and, when present, the refresh
// token, each until its own expiry.
func (m *StoreModel) SaveToken(ctx context.Context, token *Token, client *Client, user *User) (*Token, error) {
	st := storedToken{
		AccessToken:       token.AccessToken,
		ClientID:          token.ClientID,
		UserID:            token.UserID,
		Scope:             token.Scope,
		GrantID:           token.GrantID,
		AuthorizationCode: token.AuthorizationCode,
	}
	if !token.AccessTokenExpiresAt.IsZero() {
		st.AccessTokenExpiresAt = token.AccessTokenExpiresAt.Unix()
	}

	accessTTL, err := recordTTL(token.AccessTokenExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := m.access.Upsert(ctx, token.AccessToken, st, accessTTL); err != nil {
		return nil, err
	}

	if token.RefreshToken != "" {
		st.RefreshToken = token.RefreshToken
		if !token.RefreshTokenExpiresAt.IsZero() {
			st.RefreshTokenExpiresAt = token.RefreshTokenExpiresAt.Unix()
		}
		refreshTTL, err := recordTTL(token.RefreshTokenExpiresAt)
		if err != nil {
			return nil, err
		}
		if err := m.refresh.Upsert(ctx, token.RefreshToken, st, refreshTTL); err != nil {
			return nil, err
		}
	}

	return token, nil
}

func (m *StoreModel) GetRefreshToken(ctx context.Context, refreshToken string) (*Token, *User, error) {
	entry, err := m.refresh.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var st storedToken
	if err := entry.Decode(&st); err != nil {
		return nil, nil, err
	}
	token := &Token{
		AccessToken:       st.AccessToken,
		RefreshToken:      st.RefreshToken,
		ClientID:          st.ClientID,
		UserID:            st.UserID,
		Scope:             st.Scope,
		GrantID:           st.GrantID,
		AuthorizationCode: st.AuthorizationCode,
	}
	if st.AccessTokenExpiresAt != 0 {
		token.AccessTokenExpiresAt = time.Unix(st.AccessTokenExpiresAt, 0)
	}
	if st.RefreshTokenExpiresAt != 0 {
		token.RefreshTokenExpiresAt = time.Unix(st.RefreshTokenExpiresAt, 0)
	}
	return token, &User{ID: st.UserID}, nil
}

// RevokeToken atomically removes the refresh token. Rotation relies on
// exactly one of two concurrent exchanges seeing true here.
func (m *StoreModel) RevokeToken(ctx context.Context, token *Token) (bool, error) {
	_, err := m.refresh.Revoke(ctx, token.RefreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RevokeGrant cascades deletion across every artifact sharing the grant
// ID.
func (m *StoreModel) RevokeGrant(ctx context.Context, grantID string) error {
	return m.access.RevokeByGrantID(ctx, grantID)
}

// JWTAccessTokenConfig configures self-contained JWT access tokens.
type JWTAccessTokenConfig struct {
	// Issuer is the iss claim value.
	Issuer string

	// Algorithm is the JWS algorithm, e.g. jwa.ES256.
	Algorithm jwa.SignatureAlgorithm

	// Key is the signing key.
	Key jwk.Key

	// KeyID goes into the token header when non-empty.
	KeyID string

	// Lifetime is the exp horizon in seconds. Default one hour. It
	// should match the access token lifetime the grants are configured
	// with.
	Lifetime int64
}

// JWTModel extends StoreModel with self-contained JWT access tokens
// instead of opaque strings. Refresh tokens stay opaque.
type JWTModel struct {
	*StoreModel
	config JWTAccessTokenConfig
}

var _ AccessTokenGenerator = (*JWTModel)(nil)

// NewJWTModel wraps a store model with a JWT access token generator.
func NewJWTModel(model *StoreModel, config JWTAccessTokenConfig) (*JWTModel, error) {
	if config.Issuer == "" {
		return nil, NewConfigError("jwt access tokens require an issuer")
	}
	if config.Key == nil {
		return nil, NewConfigError("jwt access tokens require a signing key")
	}
	if config.Lifetime <= 0 {
		config.Lifetime = DefaultAccessTokenLifetime
	}
	return &JWTModel{StoreModel: model, config: config}, nil
}

func (m *JWTModel) GenerateAccessToken(_ context.Context, client *Client, user *User, scope string) (string, error) {
	claims := map[string]any{
		"client_id": client.ID,
		"jti":       uuid.NewString(),
	}
	if scope != "" {
		claims["scope"] = scope
	}
	return jose.Sign(claims, jose.SignOptions{
		Algorithm: m.config.Algorithm,
		Key:       m.config.Key,
		KeyID:     m.config.KeyID,
		Type:      "at+jwt",
		Issuer:    m.config.Issuer,
		Subject:   user.ID,
		ExpiresIn: m.config.Lifetime,
	})
}

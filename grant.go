package oidcd

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/oidcd/oidcd/internal/util"
	"github.com/oidcd/oidcd/security"
)

// Grant type names.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeImplicit          = "implicit"
)

// Grant is one token issuance strategy. The strategy set is closed at
// construction time: each constructor demands the model capabilities
// its flow needs, so a mismatch is a compile error rather than a
// mid-request failure.
type Grant interface {
	// Name returns the grant_type value the strategy serves.
	Name() string

	// Handle validates the request against an already authenticated
	// client and issues a token.
	Handle(ctx context.Context, r *Request, client *Client) (*Token, error)
}

// GrantOptions configures the shared issuance behavior of a grant.
// Zero values select the defaults.
type GrantOptions struct {
	// AccessTokenLifetime in seconds. Default 3600.
	AccessTokenLifetime int64

	// RefreshTokenLifetime in seconds. Default two weeks.
	RefreshTokenLifetime int64

	// Auditor records security events raised inside the grant, such as
	// authorization code reuse. Optional.
	Auditor *security.Auditor
}

const (
	// DefaultAccessTokenLifetime is one hour, in seconds.
	DefaultAccessTokenLifetime = int64(3600)

	// DefaultRefreshTokenLifetime is two weeks, in seconds.
	DefaultRefreshTokenLifetime = int64(14 * 24 * 3600)
)

func (o GrantOptions) withDefaults() GrantOptions {
	if o.AccessTokenLifetime <= 0 {
		o.AccessTokenLifetime = DefaultAccessTokenLifetime
	}
	if o.RefreshTokenLifetime <= 0 {
		o.RefreshTokenLifetime = DefaultRefreshTokenLifetime
	}
	return o
}

// issuer carries the token minting behavior shared by all grants. The
// model may override generation and scope validation through the
// optional generator interfaces.
type issuer struct {
	saver   TokenSaver
	opts    GrantOptions
	auditor *security.Auditor
}

func newIssuer(saver TokenSaver, opts GrantOptions) issuer {
	return issuer{saver: saver, opts: opts.withDefaults(), auditor: opts.Auditor}
}

func (i issuer) generateAccessToken(ctx context.Context, client *Client, user *User, scope string) (string, error) {
	if g, ok := i.saver.(AccessTokenGenerator); ok {
		return g.GenerateAccessToken(ctx, client, user, scope)
	}
	return oauth2.GenerateVerifier(), nil
}

func (i issuer) generateRefreshToken(ctx context.Context, client *Client, user *User, scope string) (string, error) {
	if g, ok := i.saver.(RefreshTokenGenerator); ok {
		return g.GenerateRefreshToken(ctx, client, user, scope)
	}
	return oauth2.GenerateVerifier(), nil
}

func (i issuer) validateScope(ctx context.Context, user *User, client *Client, scope string) (string, error) {
	if v, ok := i.saver.(ScopeValidator); ok {
		validated, err := v.ValidateScope(ctx, user, client, scope)
		if err != nil {
			return "", AsError(err)
		}
		if validated == "" && scope != "" {
			return "", ErrInvalidScope("requested scope is invalid")
		}
		return validated, nil
	}
	if !util.NQSChar(scope) {
		return "", ErrInvalidScope("invalid parameter: scope")
	}
	return scope, nil
}

// accessTokenExpiresAt computes the absolute expiry at issuance time.
// A per-client lifetime overrides the grant default.
func (i issuer) accessTokenExpiresAt(client *Client) time.Time {
	lifetime := i.opts.AccessTokenLifetime
	if client.AccessTokenLifetime > 0 {
		lifetime = client.AccessTokenLifetime
	}
	return time.Now().Add(time.Duration(lifetime) * time.Second)
}

func (i issuer) refreshTokenExpiresAt(client *Client) time.Time {
	lifetime := i.opts.RefreshTokenLifetime
	if client.RefreshTokenLifetime > 0 {
		lifetime = client.RefreshTokenLifetime
	}
	return time.Now().Add(time.Duration(lifetime) * time.Second)
}

func newGrantID() string {
	return uuid.NewString()
}

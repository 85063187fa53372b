package oidcd

import (
	"context"
)

// The model interfaces below are the capabilities an embedding
// application provides. Each grant constructor takes exactly the
// capabilities it needs, so a model missing one fails at compile time
// rather than mid-request.

// ClientService resolves a client by ID and, for confidential clients,
// authenticates it. A nil client with nil error means unknown client or
// failed authentication.
type ClientService interface {
	GetClient(ctx context.Context, clientID, clientSecret string) (*Client, error)
}

// TokenSaver persists an issued token. The returned token is what the
// response is shaped from, so implementations may attach extended
// attributes.
type TokenSaver interface {
	SaveToken(ctx context.Context, token *Token, client *Client, user *User) (*Token, error)
}

// AuthorizationCodeService loads and revokes authorization codes.
// Revoke must be atomic: of two concurrent revocations of the same code
// exactly one may report success.
type AuthorizationCodeService interface {
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, *User, error)
	RevokeAuthorizationCode(ctx context.Context, code *AuthorizationCode) (bool, error)
}

// RefreshTokenService loads and revokes refresh tokens. Revoke carries
// the same atomicity requirement as authorization codes; rotation
// depends on it.
type RefreshTokenService interface {
	GetRefreshToken(ctx context.Context, refreshToken string) (*Token, *User, error)
	RevokeToken(ctx context.Context, token *Token) (bool, error)
}

// UserService authenticates resource owners for the password grant. A
// nil user with nil error means bad credentials.
type UserService interface {
	GetUser(ctx context.Context, username, password string) (*User, error)
}

// ClientUserService resolves the pseudo-user a client credentials token
// is issued for.
type ClientUserService interface {
	GetUserFromClient(ctx context.Context, client *Client) (*User, error)
}

// GrantRevoker cascades revocation across every artifact sharing a
// grant ID. Used on authorization code reuse.
type GrantRevoker interface {
	RevokeGrant(ctx context.Context, grantID string) error
}

// AccessTokenGenerator lets a model replace the default opaque access
// token format, e.g. with signed JWTs.
type AccessTokenGenerator interface {
	GenerateAccessToken(ctx context.Context, client *Client, user *User, scope string) (string, error)
}

// RefreshTokenGenerator lets a model replace the default opaque refresh
// token format.
type RefreshTokenGenerator interface {
	GenerateRefreshToken(ctx context.Context, client *Client, user *User, scope string) (string, error)
}

// ScopeValidator narrows or rejects a requested scope. Returning an
// empty scope with nil error rejects the request with invalid_scope.
type ScopeValidator interface {
	ValidateScope(ctx context.Context, user *User, client *Client, scope string) (string, error)
}

// Composite model interfaces per grant. Constructing a grant with a
// model lacking a capability is a compile error.

// AuthorizationCodeModel is what the authorization code grant needs.
type AuthorizationCodeModel interface {
	AuthorizationCodeService
	TokenSaver
}

// ClientCredentialsModel is what the client credentials grant needs.
type ClientCredentialsModel interface {
	ClientUserService
	TokenSaver
}

// PasswordModel is what the password grant needs.
type PasswordModel interface {
	UserService
	TokenSaver
}

// RefreshTokenModel is what the refresh token grant needs.
type RefreshTokenModel interface {
	RefreshTokenService
	TokenSaver
}

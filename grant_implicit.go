package oidcd

import (
	"context"
)

// ImplicitGrant issues an access token directly from an authorization
// response, without a code exchange. It is driven by the authorization
// flow rather than the token endpoint: the authenticated end-user is
// set per request with ForUser, never taken from request parameters.
// No refresh token is issued.
type ImplicitGrant struct {
	model TokenSaver
	issuer
}

var _ Grant = (*ImplicitGrant)(nil)

// NewImplicitGrant creates the implicit strategy.
func NewImplicitGrant(model TokenSaver, opts GrantOptions) *ImplicitGrant {
	return &ImplicitGrant{
		model:  model,
		issuer: newIssuer(model, opts),
	}
}

func (g *ImplicitGrant) Name() string { return GrantTypeImplicit }

// Handle rejects direct token endpoint use.
func (g *ImplicitGrant) Handle(context.Context, *Request, *Client) (*Token, error) {
	return nil, ErrUnsupportedGrantType("implicit grant is not served by the token endpoint")
}

// Issue mints the token for an authenticated end-user with the already
// consented scope.
func (g *ImplicitGrant) Issue(ctx context.Context, client *Client, user *User, scope string) (*Token, error) {
	if user == nil {
		return nil, NewConfigError("implicit grant requires an authenticated user")
	}

	validated, err := g.validateScope(ctx, user, client, scope)
	if err != nil {
		return nil, err
	}

	accessToken, err := g.generateAccessToken(ctx, client, user, validated)
	if err != nil {
		return nil, AsError(err)
	}

	token := &Token{
		AccessToken:          accessToken,
		AccessTokenExpiresAt: g.accessTokenExpiresAt(client),
		ClientID:             client.ID,
		UserID:               user.ID,
		Scope:                validated,
		GrantID:              newGrantID(),
	}

	saved, err := g.model.SaveToken(ctx, token, client, user)
	if err != nil {
		return nil, AsError(err)
	}
	return saved, nil
}

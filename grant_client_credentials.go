package oidcd

import (
	"context"
)

// ClientCredentialsGrant issues tokens to a client acting on its own
// behalf. No refresh token is issued: the client can simply ask again.
type ClientCredentialsGrant struct {
	model ClientCredentialsModel
	issuer
}

var _ Grant = (*ClientCredentialsGrant)(nil)

// NewClientCredentialsGrant creates the client credentials strategy.
func NewClientCredentialsGrant(model ClientCredentialsModel, opts GrantOptions) *ClientCredentialsGrant {
	return &ClientCredentialsGrant{
		model:  model,
		issuer: newIssuer(model, opts),
	}
}

func (g *ClientCredentialsGrant) Name() string { return GrantTypeClientCredentials }

func (g *ClientCredentialsGrant) Handle(ctx context.Context, r *Request, client *Client) (*Token, error) {
	user, err := g.model.GetUserFromClient(ctx, client)
	if err != nil {
		return nil, AsError(err)
	}
	if user == nil {
		return nil, ErrInvalidGrant("user credentials are invalid")
	}

	scope, err := g.validateScope(ctx, user, client, r.BodyValue("scope"))
	if err != nil {
		return nil, err
	}

	accessToken, err := g.generateAccessToken(ctx, client, user, scope)
	if err != nil {
		return nil, AsError(err)
	}

	token := &Token{
		AccessToken:          accessToken,
		AccessTokenExpiresAt: g.accessTokenExpiresAt(client),
		ClientID:             client.ID,
		UserID:               user.ID,
		Scope:                scope,
		GrantID:              newGrantID(),
	}

	saved, err := g.model.SaveToken(ctx, token, client, user)
	if err != nil {
		return nil, AsError(err)
	}
	return saved, nil
}

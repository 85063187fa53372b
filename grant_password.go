package oidcd

import (
	"context"

	"github.com/oidcd/oidcd/internal/util"
)

// PasswordGrant exchanges resource owner credentials for tokens.
type PasswordGrant struct {
	model PasswordModel
	issuer
}

var _ Grant = (*PasswordGrant)(nil)

// NewPasswordGrant creates the resource owner password strategy.
func NewPasswordGrant(model PasswordModel, opts GrantOptions) *PasswordGrant {
	return &PasswordGrant{
		model:  model,
		issuer: newIssuer(model, opts),
	}
}

func (g *PasswordGrant) Name() string { return GrantTypePassword }

func (g *PasswordGrant) Handle(ctx context.Context, r *Request, client *Client) (*Token, error) {
	username := r.BodyValue("username")
	password := r.BodyValue("password")
	if username == "" {
		return nil, ErrInvalidRequest("missing parameter: username")
	}
	if password == "" {
		return nil, ErrInvalidRequest("missing parameter: password")
	}
	if !util.UChar(username) {
		return nil, ErrInvalidRequest("invalid parameter: username")
	}
	if !util.UChar(password) {
		return nil, ErrInvalidRequest("invalid parameter: password")
	}

	user, err := g.model.GetUser(ctx, username, password)
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
	refreshToken, err := g.generateRefreshToken(ctx, client, user, scope)
	if err != nil {
		return nil, AsError(err)
	}

	token := &Token{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  g.accessTokenExpiresAt(client),
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: g.refreshTokenExpiresAt(client),
		ClientID:              client.ID,
		UserID:                user.ID,
		Scope:                 scope,
		GrantID:               newGrantID(),
	}

	saved, err := g.model.SaveToken(ctx, token, client, user)
	if err != nil {
		return nil, AsError(err)
	}
	return saved, nil
}

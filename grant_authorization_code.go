package oidcd

import (
	"context"
	"errors"

	"github.com/oidcd/oidcd/internal/util"
)

// AuthorizationCodeGrant exchanges a single-use authorization code for
// tokens. Revocation of the code happens before any token is minted, so
// of two concurrent exchanges of the same code exactly one succeeds.
type AuthorizationCodeGrant struct {
	model AuthorizationCodeModel
	issuer
}

var _ Grant = (*AuthorizationCodeGrant)(nil)

// NewAuthorizationCodeGrant creates the authorization code strategy.
func NewAuthorizationCodeGrant(model AuthorizationCodeModel, opts GrantOptions) *AuthorizationCodeGrant {
	return &AuthorizationCodeGrant{
		model:  model,
		issuer: newIssuer(model, opts),
	}
}

func (g *AuthorizationCodeGrant) Name() string { return GrantTypeAuthorizationCode }

func (g *AuthorizationCodeGrant) Handle(ctx context.Context, r *Request, client *Client) (*Token, error) {
	code := r.BodyValue("code")
	if code == "" {
		return nil, ErrInvalidRequest("missing parameter: code")
	}
	if !util.VSChar(code) {
		return nil, ErrInvalidRequest("invalid parameter: code")
	}

	ac, user, err := g.model.GetAuthorizationCode(ctx, code)
	if err != nil {
		return nil, AsError(err)
	}
	if ac == nil || ac.ClientID != client.ID {
		return nil, ErrInvalidGrant("authorization code is invalid")
	}
	if user == nil {
		return nil, ErrServerError(errors.New("model returned no user for authorization code"))
	}
	if ac.Expired() {
		return nil, ErrInvalidGrant("authorization code has expired")
	}

	if ac.RedirectURI != "" {
		redirectURI := r.BodyValue("redirect_uri")
		if redirectURI == "" || !util.URI(redirectURI) {
			return nil, ErrInvalidRequest("invalid parameter: redirect_uri")
		}
		if redirectURI != ac.RedirectURI {
			return nil, ErrInvalidRequest("invalid request: redirect_uri is invalid")
		}
	}

	revoked, err := g.model.RevokeAuthorizationCode(ctx, ac)
	if err != nil {
		return nil, AsError(err)
	}
	if !revoked {
		// The code was already spent. Treat it as theft and take the
		// whole grant lineage down with it when the model supports
		// cascading revocation.
		if g.auditor != nil {
			g.auditor.LogCodeReuse(client.ID, ac.GrantID)
		}
		if revoker, ok := g.model.(GrantRevoker); ok && ac.GrantID != "" {
			if err := revoker.RevokeGrant(ctx, ac.GrantID); err != nil {
				return nil, AsError(err)
			}
		}
		return nil, ErrInvalidGrant("authorization code is invalid")
	}

	accessToken, err := g.generateAccessToken(ctx, client, user, ac.Scope)
	if err != nil {
		return nil, AsError(err)
	}
	refreshToken, err := g.generateRefreshToken(ctx, client, user, ac.Scope)
	if err != nil {
		return nil, AsError(err)
	}

	grantID := ac.GrantID
	if grantID == "" {
		grantID = newGrantID()
	}

	token := &Token{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  g.accessTokenExpiresAt(client),
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: g.refreshTokenExpiresAt(client),
		ClientID:              client.ID,
		UserID:                user.ID,
		Scope:                 ac.Scope,
		GrantID:               grantID,
		AuthorizationCode:     ac.Code,
	}

	saved, err := g.model.SaveToken(ctx, token, client, user)
	if err != nil {
		return nil, AsError(err)
	}
	return saved, nil
}

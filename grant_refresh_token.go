package oidcd

import (
	"context"
	"time"

	"github.com/oidcd/oidcd/internal/util"
)

// RefreshTokenGrant exchanges a refresh token for a fresh access token.
// By default the presented refresh token is revoked before any new
// token is minted and a new one issued in its place, so each refresh
// token works at most once.
type RefreshTokenGrant struct {
	model RefreshTokenModel
	issuer

	rotate bool
}

var _ Grant = (*RefreshTokenGrant)(nil)

// RefreshTokenGrantOptions extends GrantOptions with rotation control.
type RefreshTokenGrantOptions struct {
	GrantOptions

	// KeepRefreshToken disables rotation: the presented refresh token
	// stays valid and is returned unchanged.
	KeepRefreshToken bool
}

// NewRefreshTokenGrant creates the refresh token strategy.
func NewRefreshTokenGrant(model RefreshTokenModel, opts RefreshTokenGrantOptions) *RefreshTokenGrant {
	return &RefreshTokenGrant{
		model:  model,
		issuer: newIssuer(model, opts.GrantOptions),
		rotate: !opts.KeepRefreshToken,
	}
}

func (g *RefreshTokenGrant) Name() string { return GrantTypeRefreshToken }

func (g *RefreshTokenGrant) Handle(ctx context.Context, r *Request, client *Client) (*Token, error) {
	refreshToken := r.BodyValue("refresh_token")
	if refreshToken == "" {
		return nil, ErrInvalidRequest("missing parameter: refresh_token")
	}
	if !util.VSChar(refreshToken) {
		return nil, ErrInvalidRequest("invalid parameter: refresh_token")
	}

	old, user, err := g.model.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, AsError(err)
	}
	if old == nil || old.ClientID != client.ID {
		return nil, ErrInvalidGrant("refresh token is invalid")
	}
	if user == nil {
		return nil, ErrInvalidGrant("refresh token is invalid")
	}
	if !old.RefreshTokenExpiresAt.IsZero() && old.RefreshTokenExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidGrant("refresh token has expired")
	}

	if g.rotate {
		// Revoke first, mint after. The revocation is the atomic step:
		// of two concurrent exchanges only one observes success here.
		revoked, err := g.model.RevokeToken(ctx, old)
		if err != nil {
			return nil, AsError(err)
		}
		if !revoked {
			return nil, ErrInvalidGrant("refresh token is invalid")
		}
	}

	accessToken, err := g.generateAccessToken(ctx, client, user, old.Scope)
	if err != nil {
		return nil, AsError(err)
	}

	token := &Token{
		AccessToken:          accessToken,
		AccessTokenExpiresAt: g.accessTokenExpiresAt(client),
		ClientID:             client.ID,
		UserID:               user.ID,
		Scope:                old.Scope,
		GrantID:              old.GrantID,
	}

	if g.rotate {
		newRefresh, err := g.generateRefreshToken(ctx, client, user, old.Scope)
		if err != nil {
			return nil, AsError(err)
		}
		token.RefreshToken = newRefresh
		token.RefreshTokenExpiresAt = g.refreshTokenExpiresAt(client)
	} else {
		token.RefreshToken = old.RefreshToken
		token.RefreshTokenExpiresAt = old.RefreshTokenExpiresAt
	}

	saved, err := g.model.SaveToken(ctx, token, client, user)
	if err != nil {
		return nil, AsError(err)
	}
	return saved, nil
}

package oidcd

import (
	"time"
)

// Client is a registered OAuth client as seen by the token endpoint. It
// is immutable for the duration of a request; registration and CRUD are
// owned by the embedding application.
type Client struct {
	ID     string
	Secret string // empty for public clients

	// Grants lists the grant type names this client is authorized to use.
	Grants []string

	// Per-client lifetime overrides, in seconds. Zero means the server
	// default applies.
	AccessTokenLifetime  int64
	RefreshTokenLifetime int64

	// ApplicationType is "web", "native" or "confidential".
	ApplicationType string

	// SubjectType is "public" or "pairwise".
	SubjectType string
}

// AllowsGrant reports whether grantType is in the client's authorized
// grants.
func (c *Client) AllowsGrant(grantType string) bool {
	for _, g := range c.Grants {
		if g == grantType {
			return true
		}
	}
	return false
}

// User identifies the resource owner a token is issued for.
type User struct {
	ID string

	// Extra carries account attributes the embedding application wants
	// available to token generators (e.g. claims sources). Never
	// serialized into token responses.
	Extra map[string]any
}

// Session is an authenticated end-user session. One session may be
// referenced by many grants through its UID.
type Session struct {
	UID       string
	AccountID string
	AuthTime  time.Time
}

// Past reports whether the last authentication happened more than
// maxAge seconds ago.
func (s *Session) Past(maxAge int64) bool {
	if s.AuthTime.IsZero() {
		return true
	}
	return time.Since(s.AuthTime) > time.Duration(maxAge)*time.Second
}

// AuthorizationCode is a single-use code bound to the client, user and
// redirect URI of the authorization request that produced it.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	UserID      string
	RedirectURI string
	Scope       string
	ExpiresAt   time.Time
	GrantID     string
}

// Expired reports whether the code's absolute expiry has passed.
func (c *AuthorizationCode) Expired() bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(time.Now())
}

// Token is an issued access token, optionally paired with a refresh
// token sharing the same revocation lineage.
type Token struct {
	AccessToken          string
	AccessTokenExpiresAt time.Time

	RefreshToken          string
	RefreshTokenExpiresAt time.Time

	ClientID string
	UserID   string
	Scope    string
	GrantID  string

	// AuthorizationCode records the code this token was exchanged from,
	// when issued through the authorization_code grant.
	AuthorizationCode string

	// ExtendedAttributes are custom attributes the model attached at
	// save time. They are only exposed in responses when the token
	// action allows extended token attributes.
	ExtendedAttributes map[string]any
}

// Lifetime returns the access token's remaining validity in whole
// seconds at the time of the call.
func (t *Token) Lifetime() int64 {
	if t.AccessTokenExpiresAt.IsZero() {
		return 0
	}
	secs := int64(time.Until(t.AccessTokenExpiresAt).Round(time.Second).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

// GrantRecord groups every artifact issued from one authorization event
// into a single revocation lineage, and remembers what the end-user has
// already consented to.
type GrantRecord struct {
	ID         string
	SessionUID string
	AccountID  string
	ClientID   string

	// OIDCScope is the space-delimited set of OpenID scopes already
	// granted by the end-user.
	OIDCScope string

	// OIDCClaims lists the individual claims already granted.
	OIDCClaims []string

	// ResourceScopes maps resource indicators to the space-delimited
	// scopes granted for that resource server.
	ResourceScopes map[string]string

	// UserCode is set for device-flow grants.
	UserCode string
}

// OIDCScopeEncountered returns the already-granted OpenID scope string.
func (g *GrantRecord) OIDCScopeEncountered() string {
	if g == nil {
		return ""
	}
	return g.OIDCScope
}

// OIDCClaimsEncountered returns the already-granted claims.
func (g *GrantRecord) OIDCClaimsEncountered() []string {
	if g == nil {
		return nil
	}
	return g.OIDCClaims
}

// ResourceScopeEncountered returns the scopes already granted for one
// resource indicator.
func (g *GrantRecord) ResourceScopeEncountered(indicator string) string {
	if g == nil {
		return ""
	}
	return g.ResourceScopes[indicator]
}

// BearerToken is the token-endpoint success response shape. Internal
// token fields never appear in it.
type BearerToken struct {
	accessToken string
	lifetime    int64
	refresh     string
	scope       string
	extended    map[string]any
}

// NewBearerToken shapes a stored token into the response form. Extended
// attributes are carried only when allowExtended is set.
func NewBearerToken(token *Token, allowExtended bool) (*BearerToken, error) {
	if token == nil || token.AccessToken == "" {
		return nil, ErrInvalidToken("missing parameter: access_token")
	}
	bt := &BearerToken{
		accessToken: token.AccessToken,
		lifetime:    token.Lifetime(),
		refresh:     token.RefreshToken,
		scope:       token.Scope,
	}
	if allowExtended && len(token.ExtendedAttributes) > 0 {
		bt.extended = token.ExtendedAttributes
	}
	return bt, nil
}

// Value returns the response body. Standard fields win over extended
// attributes with colliding names.
func (b *BearerToken) Value() map[string]any {
	body := make(map[string]any, 5+len(b.extended))
	for k, v := range b.extended {
		body[k] = v
	}
	body["access_token"] = b.accessToken
	body["token_type"] = "Bearer"
	if b.lifetime > 0 {
		body["expires_in"] = b.lifetime
	}
	if b.refresh != "" {
		body["refresh_token"] = b.refresh
	}
	if b.scope != "" {
		body["scope"] = b.scope
	}
	return body
}

package interaction

import (
	"context"

	"github.com/oidcd/oidcd"
)

// ClaimEntry is one member of the claims request parameter.
type ClaimEntry struct {
	Essential bool  `json:"essential,omitempty"`
	Value     any   `json:"value,omitempty"`
	Values    []any `json:"values,omitempty"`
}

// ClaimsRequest is the parsed claims request parameter.
type ClaimsRequest struct {
	IDToken  map[string]ClaimEntry `json:"id_token,omitempty"`
	UserInfo map[string]ClaimEntry `json:"userinfo,omitempty"`
}

// Params carries the authorization request parameters the checks look
// at.
type Params struct {
	// MaxAge is the max_age parameter. Nil when absent; zero forces
	// reauthentication.
	MaxAge *int64

	// Prompts are the requested prompt values.
	Prompts []string

	// Claims is the parsed claims parameter.
	Claims ClaimsRequest

	// IDTokenHintClaims are the verified claims of the id_token_hint
	// parameter, when one was given.
	IDTokenHintClaims map[string]any

	// OIDCScopes are the requested OpenID scopes.
	OIDCScopes []string

	// ClaimNames are the individually requested claims.
	ClaimNames []string

	// ResourceScopes maps each requested resource indicator to the
	// scopes requested for it.
	ResourceScopes map[string][]string
}

// Context is the state one policy evaluation runs against.
type Context struct {
	Session *oidcd.Session
	Client  *oidcd.Client

	// Grant records what the end-user has already consented to. Nil on
	// a first authorization.
	Grant *oidcd.GrantRecord

	Params Params

	// ACR is the authentication context class of the current session.
	ACR string

	// LoginCompleted marks that the end-user already worked through a
	// login prompt during this interaction, so freshness checks must not
	// send them back.
	LoginCompleted bool

	// ConsentCompleted marks that the end-user already worked through a
	// consent prompt during this interaction.
	ConsentCompleted bool

	// Subject maps an account ID to the sub value the client sees.
	// Defaults to the identity mapping; pairwise deployments install
	// their own resolver, which may need to reach storage.
	Subject func(ctx context.Context, accountID string, client *oidcd.Client) (string, error)
}

// PromptRequested reports whether the request asked for the named
// prompt.
func (ic *Context) PromptRequested(name string) bool {
	for _, p := range ic.Params.Prompts {
		if p == name {
			return true
		}
	}
	return false
}

// SessionSubject returns the sub value of the current session's account
// as the client sees it, or "" without a session.
func (ic *Context) SessionSubject(ctx context.Context) (string, error) {
	if ic.Session == nil || ic.Session.AccountID == "" {
		return "", nil
	}
	if ic.Subject != nil {
		return ic.Subject(ctx, ic.Session.AccountID, ic.Client)
	}
	return ic.Session.AccountID, nil
}

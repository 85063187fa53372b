package interaction

import (
	"context"
	"strings"

	"github.com/oidcd/oidcd"
)

// Claims an OP always issues without consent, so they never count as
// missing.
var implicitClaims = map[string]bool{
	"sub":       true,
	"sid":       true,
	"auth_time": true,
	"acr":       true,
	"amr":       true,
	"iss":       true,
}

func consentPrompt() (*Prompt, error) {
	return NewPrompt("consent", true,
		&Check{
			Name:        "native_client_prompt",
			Description: "native clients require End-User interaction",
			Error:       oidcd.ErrorCodeInteractionRequired,
			Run: func(_ context.Context, ic *Context) (bool, error) {
				return ic.Client != nil && ic.Client.ApplicationType == "native" && !ic.ConsentCompleted, nil
			},
		},
		&Check{
			Name:        "op_scopes_missing",
			Description: "requested scopes not granted",
			Error:       oidcd.ErrorCodeConsentRequired,
			Details: func(ic *Context) map[string]any {
				return map[string]any{"missingOIDCScope": missingOIDCScopes(ic)}
			},
			Run: func(_ context.Context, ic *Context) (bool, error) {
				return len(missingOIDCScopes(ic)) > 0, nil
			},
		},
		&Check{
			Name:        "op_claims_missing",
			Description: "requested claims not granted",
			Error:       oidcd.ErrorCodeConsentRequired,
			Details: func(ic *Context) map[string]any {
				return map[string]any{"missingOIDCClaims": missingOIDCClaims(ic)}
			},
			Run: func(_ context.Context, ic *Context) (bool, error) {
				return len(missingOIDCClaims(ic)) > 0, nil
			},
		},
		&Check{
			Name:        "rs_scopes_missing",
			Description: "requested resource scopes not granted",
			Error:       oidcd.ErrorCodeConsentRequired,
			Details: func(ic *Context) map[string]any {
				return map[string]any{"missingResourceScopes": missingResourceScopes(ic)}
			},
			Run: func(_ context.Context, ic *Context) (bool, error) {
				return len(missingResourceScopes(ic)) > 0, nil
			},
		},
	)
}

func missingOIDCScopes(ic *Context) []string {
	granted := fieldsSet(ic.Grant.OIDCScopeEncountered())
	var missing []string
	for _, scope := range ic.Params.OIDCScopes {
		if !granted[scope] {
			missing = append(missing, scope)
		}
	}
	return missing
}

func missingOIDCClaims(ic *Context) []string {
	granted := make(map[string]bool)
	for _, claim := range ic.Grant.OIDCClaimsEncountered() {
		granted[claim] = true
	}
	var missing []string
	for _, claim := range ic.Params.ClaimNames {
		if implicitClaims[claim] || granted[claim] {
			continue
		}
		missing = append(missing, claim)
	}
	return missing
}

func missingResourceScopes(ic *Context) map[string][]string {
	var missing map[string][]string
	for indicator, scopes := range ic.Params.ResourceScopes {
		granted := fieldsSet(ic.Grant.ResourceScopeEncountered(indicator))
		var ms []string
		for _, scope := range scopes {
			if !granted[scope] {
				ms = append(ms, scope)
			}
		}
		if len(ms) > 0 {
			if missing == nil {
				missing = make(map[string][]string)
			}
			missing[indicator] = ms
		}
	}
	return missing
}

func fieldsSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(s) {
		set[f] = true
	}
	return set
}

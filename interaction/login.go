package interaction

import (
	"context"

	"github.com/oidcd/oidcd"
)

func loginPrompt() (*Prompt, error) {
	return NewPrompt("login", true,
		&Check{
			Name:        "no_session",
			Description: "End-User authentication is required",
			Error:       oidcd.ErrorCodeLoginRequired,
			Run: func(_ context.Context, ic *Context) (bool, error) {
				return ic.Session == nil || ic.Session.AccountID == "", nil
			},
		},
		&Check{
			Name:        "max_age",
			Description: "End-User authentication could not be obtained in the requested max_age",
			Error:       oidcd.ErrorCodeLoginRequired,
			Run: func(_ context.Context, ic *Context) (bool, error) {
				if ic.Params.MaxAge == nil || ic.LoginCompleted {
					return false, nil
				}
				if ic.Session == nil {
					return true, nil
				}
				return ic.Session.Past(*ic.Params.MaxAge), nil
			},
		},
		&Check{
			Name:        "id_token_hint",
			Description: "id_token_hint and authenticated subject do not match",
			Error:       oidcd.ErrorCodeLoginRequired,
			Run: func(ctx context.Context, ic *Context) (bool, error) {
				if ic.Params.IDTokenHintClaims == nil {
					return false, nil
				}
				subject, err := ic.SessionSubject(ctx)
				if err != nil {
					return false, err
				}
				sub, _ := ic.Params.IDTokenHintClaims["sub"].(string)
				return sub != subject, nil
			},
		},
		&Check{
			Name:        "claims_id_token_sub_value",
			Description: "requested subject could not be obtained",
			Error:       oidcd.ErrorCodeLoginRequired,
			Details: func(ic *Context) map[string]any {
				return map[string]any{"sub": ic.Params.Claims.IDToken["sub"]}
			},
			Run: func(ctx context.Context, ic *Context) (bool, error) {
				entry, ok := ic.Params.Claims.IDToken["sub"]
				if !ok || entry.Value == nil {
					return false, nil
				}
				subject, err := ic.SessionSubject(ctx)
				if err != nil {
					return false, err
				}
				return entry.Value != subject, nil
			},
		},
		&Check{
			Name:        "essential_acrs",
			Description: "none of the requested ACRs could not be obtained",
			Error:       oidcd.ErrorCodeLoginRequired,
			Details: func(ic *Context) map[string]any {
				return map[string]any{"acr": ic.Params.Claims.IDToken["acr"]}
			},
			Run: func(_ context.Context, ic *Context) (bool, error) {
				entry, ok := ic.Params.Claims.IDToken["acr"]
				if !ok || !entry.Essential || len(entry.Values) == 0 {
					return false, nil
				}
				for _, v := range entry.Values {
					if s, ok := v.(string); ok && s == ic.ACR {
						return false, nil
					}
				}
				return true, nil
			},
		},
		&Check{
			Name:        "essential_acr",
			Description: "requested ACR could not be obtained",
			Error:       oidcd.ErrorCodeLoginRequired,
			Details: func(ic *Context) map[string]any {
				return map[string]any{"acr": ic.Params.Claims.IDToken["acr"]}
			},
			Run: func(_ context.Context, ic *Context) (bool, error) {
				entry, ok := ic.Params.Claims.IDToken["acr"]
				if !ok || !entry.Essential || entry.Value == nil {
					return false, nil
				}
				return entry.Value != ic.ACR, nil
			},
		},
	)
}

package jose

import (
	"time"
)

// Expected describes the claim values a verified token must carry.
type Expected struct {
	// Issuer must match the iss claim when non-empty.
	Issuer string

	// Audience must be covered by the aud claim when non-empty. A
	// multi-valued aud additionally requires azp to equal it.
	Audience string

	// SubjectRequired rejects tokens without a non-empty sub claim.
	SubjectRequired bool

	// ClockTolerance is the leeway applied to all time-based claims.
	ClockTolerance time.Duration

	// IgnoreExpiration skips the exp check.
	IgnoreExpiration bool

	// IgnoreNotBefore skips the nbf check.
	IgnoreNotBefore bool

	// IgnoreIssued skips the iat check.
	IgnoreIssued bool

	// IgnoreAzp waives the azp requirement for multi-valued aud claims.
	IgnoreAzp bool
}

// AssertPayload checks a decoded claim set against the expected values.
// Time-based claims are only checked when present.
func AssertPayload(claims map[string]any, expected Expected) error {
	now := time.Now()
	tolerance := expected.ClockTolerance

	exp, hasExp, err := numericDate(claims, "exp")
	if err != nil {
		return err
	}
	if hasExp && !expected.IgnoreExpiration && now.After(exp.Add(tolerance)) {
		return newTokenError("token is expired")
	}

	// A future iat is only meaningful without an expiry claim: exp
	// already bounds the token's validity.
	iat, ok, err := numericDate(claims, "iat")
	if err != nil {
		return err
	}
	if ok && !hasExp && !expected.IgnoreIssued && iat.After(now.Add(tolerance)) {
		return newTokenError("token issued in the future")
	}

	nbf, ok, err := numericDate(claims, "nbf")
	if err != nil {
		return err
	}
	if ok && !expected.IgnoreNotBefore && nbf.After(now.Add(tolerance)) {
		return newTokenError("token is not active yet")
	}

	if expected.Issuer != "" {
		iss, _ := claims["iss"].(string)
		if iss != expected.Issuer {
			return newTokenError("unexpected iss value")
		}
	}

	if expected.Audience != "" {
		if err := assertAudience(claims, expected.Audience, expected.IgnoreAzp); err != nil {
			return err
		}
	}

	if expected.SubjectRequired {
		sub, _ := claims["sub"].(string)
		if sub == "" {
			return newTokenError("missing sub claim")
		}
	}

	return nil
}

// assertAudience accepts both the single-value and array forms of aud.
// The array form requires an azp claim naming the expected audience
// unless the caller waived it.
func assertAudience(claims map[string]any, audience string, ignoreAzp bool) error {
	switch aud := claims["aud"].(type) {
	case string:
		if aud != audience {
			return newTokenError("unexpected aud value")
		}
	case []any:
		found := false
		for _, a := range aud {
			if s, ok := a.(string); ok && s == audience {
				found = true
				break
			}
		}
		if !found {
			return newTokenError("unexpected aud value")
		}
		if !ignoreAzp {
			azp, _ := claims["azp"].(string)
			if azp != audience {
				return newTokenError("unexpected azp value")
			}
		}
	default:
		return newTokenError("missing aud claim")
	}
	return nil
}

// numericDate reads a JSON NumericDate claim. Absent claims are not an
// error; present claims of the wrong type are.
func numericDate(claims map[string]any, name string) (time.Time, bool, error) {
	raw, ok := claims[name]
	if !ok {
		return time.Time{}, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0), true, nil
	case int64:
		return time.Unix(v, 0), true, nil
	default:
		return time.Time{}, false, newTokenError("invalid %s claim", name)
	}
}

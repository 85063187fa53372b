package oidcd

import (
	"fmt"
	"net/http"
	"strings"
)

// OAuth2 and OIDC error codes carried by Error values.
const (
	ErrorCodeInvalidRequest           = "invalid_request"
	ErrorCodeInvalidClient            = "invalid_client"
	ErrorCodeInvalidClientAuth        = "invalid_client_auth"
	ErrorCodeInvalidGrant             = "invalid_grant"
	ErrorCodeInvalidScope             = "invalid_scope"
	ErrorCodeInvalidToken             = "invalid_token"
	ErrorCodeUnauthorizedClient       = "unauthorized_client"
	ErrorCodeUnsupportedGrantType     = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType  = "unsupported_response_type"
	ErrorCodeUnsupportedResponseMode  = "unsupported_response_mode"
	ErrorCodeAccessDenied             = "access_denied"
	ErrorCodeServerError              = "server_error"
	ErrorCodeTemporarilyUnavailable   = "temporarily_unavailable"
	ErrorCodeLoginRequired            = "login_required"
	ErrorCodeConsentRequired          = "consent_required"
	ErrorCodeInteractionRequired      = "interaction_required"
	ErrorCodeAccountSelectionRequired = "account_selection_required"
	ErrorCodeAuthorizationPending     = "authorization_pending"
	ErrorCodeSlowDown                 = "slow_down"
	ErrorCodeExpiredToken             = "expired_token"
	ErrorCodeInvalidUserCode          = "invalid_user_code"
	ErrorCodeMissingUserCode          = "missing_user_code"
	ErrorCodeSessionNotFound          = "session_not_found"
	ErrorCodeInvalidRedirectURI       = "invalid_redirect_uri"
	ErrorCodeInvalidTarget            = "invalid_target"
	ErrorCodeRequestNotSupported      = "request_not_supported"
	ErrorCodeRequestURINotSupported   = "request_uri_not_supported"
	ErrorCodeRegistrationNotSupported = "registration_not_supported"
)

// errorStatus maps each error code to its fixed HTTP status.
var errorStatus = map[string]int{
	ErrorCodeInvalidRequest:           http.StatusBadRequest,
	ErrorCodeInvalidClient:            http.StatusBadRequest,
	ErrorCodeInvalidClientAuth:        http.StatusUnauthorized,
	ErrorCodeInvalidGrant:             http.StatusBadRequest,
	ErrorCodeInvalidScope:             http.StatusBadRequest,
	ErrorCodeInvalidToken:             http.StatusUnauthorized,
	ErrorCodeUnauthorizedClient:       http.StatusBadRequest,
	ErrorCodeUnsupportedGrantType:     http.StatusBadRequest,
	ErrorCodeUnsupportedResponseType:  http.StatusBadRequest,
	ErrorCodeUnsupportedResponseMode:  http.StatusBadRequest,
	ErrorCodeAccessDenied:             http.StatusForbidden,
	ErrorCodeServerError:              http.StatusInternalServerError,
	ErrorCodeTemporarilyUnavailable:   http.StatusServiceUnavailable,
	ErrorCodeLoginRequired:            http.StatusForbidden,
	ErrorCodeConsentRequired:          http.StatusForbidden,
	ErrorCodeInteractionRequired:      http.StatusForbidden,
	ErrorCodeAccountSelectionRequired: http.StatusForbidden,
	ErrorCodeAuthorizationPending:     http.StatusBadRequest,
	ErrorCodeSlowDown:                 http.StatusBadRequest,
	ErrorCodeExpiredToken:             http.StatusBadRequest,
	ErrorCodeInvalidUserCode:          http.StatusBadRequest,
	ErrorCodeMissingUserCode:          http.StatusBadRequest,
	ErrorCodeSessionNotFound:          http.StatusBadRequest,
	ErrorCodeInvalidRedirectURI:       http.StatusBadRequest,
	ErrorCodeInvalidTarget:            http.StatusBadRequest,
	ErrorCodeRequestNotSupported:      http.StatusBadRequest,
	ErrorCodeRequestURINotSupported:   http.StatusBadRequest,
	ErrorCodeRegistrationNotSupported: http.StatusBadRequest,
}

// defaultDescriptions holds per-code default human descriptions. Codes
// absent from this table fall back to a humanized code name. The table
// is data, not derived behavior: some kinds intentionally diverge from
// the plain casing transform.
var defaultDescriptions = map[string]string{
	ErrorCodeInvalidRequest:           "request is invalid",
	ErrorCodeInvalidGrant:             "grant request is invalid",
	ErrorCodeInvalidToken:             "invalid token provided",
	ErrorCodeInvalidClientAuth:        "client authentication failed",
	ErrorCodeSessionNotFound:          "session cannot be found",
	ErrorCodeInvalidRedirectURI:       "redirect_uri does not match any of the client's registered redirect_uris",
	ErrorCodeInvalidTarget:            "resource indicator is missing, or unknown",
	ErrorCodeAuthorizationPending:     "authorization request is still pending as the end-user hasn't yet completed the user interaction steps",
	ErrorCodeSlowDown:                 "polling too quickly and should back off at a reasonable rate",
	ErrorCodeUnsupportedGrantType:     "unsupported grant_type requested",
	ErrorCodeUnsupportedResponseType:  "unsupported response_type requested",
	ErrorCodeUnsupportedResponseMode:  "unsupported response_mode requested",
	ErrorCodeRequestNotSupported:      "request parameter provided but not supported",
	ErrorCodeRequestURINotSupported:   "request_uri parameter provided but not supported",
	ErrorCodeRegistrationNotSupported: "registration parameter provided but not supported",
	ErrorCodeServerError:              "internal server error",
}

// Error is an OAuth2/OIDC protocol error. It carries the machine error
// code and the HTTP status associated with that code. Detail and the
// wrapped cause are for server-side logging only and are never
// serialized to clients.
type Error struct {
	Status      int
	Code        string
	Description string
	Detail      any
	cause       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetail attaches machine-readable diagnostic detail and returns e.
func (e *Error) WithDetail(detail any) *Error {
	e.Detail = detail
	return e
}

// ErrorBody is the client-visible error response shape.
type ErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Body returns the serializable response body. The description is
// included only when the deployment opts into verbose errors.
func (e *Error) Body(verbose bool) ErrorBody {
	body := ErrorBody{Error: e.Code}
	if verbose {
		body.ErrorDescription = e.Description
	}
	return body
}

// NewError creates a protocol error for code. An empty description picks
// the code's default.
func NewError(code, description string) *Error {
	status, ok := errorStatus[code]
	if !ok {
		status = http.StatusBadRequest
	}
	if description == "" {
		if d, ok := defaultDescriptions[code]; ok {
			description = d
		} else {
			description = strings.ReplaceAll(code, "_", " ")
		}
	}
	return &Error{Status: status, Code: code, Description: description}
}

// Constructors for the error kinds raised throughout the library.

func ErrInvalidRequest(description string) *Error {
	return NewError(ErrorCodeInvalidRequest, description)
}

func ErrInvalidClient(description string) *Error {
	return NewError(ErrorCodeInvalidClient, description)
}

func ErrInvalidClientAuth(description string) *Error {
	return NewError(ErrorCodeInvalidClientAuth, description)
}

func ErrInvalidGrant(description string) *Error {
	return NewError(ErrorCodeInvalidGrant, description)
}

func ErrInvalidScope(description string) *Error {
	return NewError(ErrorCodeInvalidScope, description)
}

func ErrInvalidToken(description string) *Error {
	return NewError(ErrorCodeInvalidToken, description)
}

func ErrUnauthorizedClient(description string) *Error {
	return NewError(ErrorCodeUnauthorizedClient, description)
}

func ErrUnsupportedGrantType(description string) *Error {
	return NewError(ErrorCodeUnsupportedGrantType, description)
}

func ErrAccessDenied(description string) *Error {
	return NewError(ErrorCodeAccessDenied, description)
}

func ErrTemporarilyUnavailable(description string) *Error {
	return NewError(ErrorCodeTemporarilyUnavailable, description)
}

func ErrLoginRequired(description string) *Error {
	return NewError(ErrorCodeLoginRequired, description)
}

func ErrConsentRequired(description string) *Error {
	return NewError(ErrorCodeConsentRequired, description)
}

func ErrInteractionRequired(description string) *Error {
	return NewError(ErrorCodeInteractionRequired, description)
}

// ErrServerError wraps an unexpected failure into a generic server
// error. The cause is preserved for logging but never serialized.
func ErrServerError(cause error) *Error {
	e := NewError(ErrorCodeServerError, "")
	e.cause = cause
	return e
}

// AsError coerces err into a protocol error. Known protocol errors pass
// through unmodified. Configuration errors are never converted: they
// indicate a deployment mistake and propagate as a panic so startup
// fails loudly. Anything else becomes a server_error wrapping the
// original cause.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	if ce, ok := err.(*ConfigError); ok {
		panic(ce)
	}
	return ErrServerError(err)
}

// ConfigError reports a deployment misconfiguration: a missing required
// option or a store/model lacking a required capability. It is fatal and
// must surface at startup, never as a protocol error.
type ConfigError struct {
	msg string
}

// NewConfigError creates a configuration error.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return e.msg
}

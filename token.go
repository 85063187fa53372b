package oidcd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oidcd/oidcd/instrumentation"
	"github.com/oidcd/oidcd/internal/util"
	"github.com/oidcd/oidcd/security"
)

// TokenOptions configures a TokenAction.
type TokenOptions struct {
	// RequireClientAuthentication overrides the client authentication
	// requirement per grant type. Grants absent from the map require
	// authentication. Only registered grant types may appear.
	RequireClientAuthentication map[string]bool

	// AllowExtendedTokenAttributes exposes model-attached token
	// attributes in responses.
	AllowExtendedTokenAttributes bool

	// VerboseErrors includes error_description in error responses.
	// Descriptions stay server-side by default.
	VerboseErrors bool

	// Logger is the structured logger (default slog.Default()).
	Logger *slog.Logger

	// Auditor records security events. Optional.
	Auditor *security.Auditor

	// Instrumentation records metrics. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// TokenAction serves token requests: it authenticates the client,
// dispatches to the registered grant strategy and shapes the bearer
// token response. It is transport neutral; see Handler for the HTTP
// adapter.
type TokenAction struct {
	clients ClientService
	grants  map[string]Grant
	opts    TokenOptions
	logger  *slog.Logger
	auditor *security.Auditor
	metrics *instrumentation.Metrics
}

// NewTokenAction creates a token action over an authenticated client
// source and a closed set of grant strategies. Configuration mistakes
// surface here as ConfigError, never as protocol errors at request
// time.
func NewTokenAction(clients ClientService, grants []Grant, opts TokenOptions) (*TokenAction, error) {
	if clients == nil {
		return nil, NewConfigError("client service is required")
	}
	if len(grants) == 0 {
		return nil, NewConfigError("at least one grant is required")
	}

	byName := make(map[string]Grant, len(grants))
	for _, g := range grants {
		name := g.Name()
		if !util.NChar(name) && !util.URI(name) {
			return nil, NewConfigError("invalid grant type name %q", name)
		}
		if _, dup := byName[name]; dup {
			return nil, NewConfigError("duplicate grant type %q", name)
		}
		byName[name] = g
	}

	for name := range opts.RequireClientAuthentication {
		if _, ok := byName[name]; !ok {
			return nil, NewConfigError("client authentication override for unregistered grant type %q", name)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &TokenAction{
		clients: clients,
		grants:  byName,
		opts:    opts,
		logger:  logger,
		auditor: opts.Auditor,
	}
	if opts.Instrumentation != nil {
		a.metrics = opts.Instrumentation.Metrics()
	}
	return a, nil
}

// handleState carries per-request facts the response shaping needs.
type handleState struct {
	grantType  string
	clientID   string
	headerAuth bool
}

// Handle processes one token request and always produces a response:
// protocol errors become error bodies with their mapped status, and
// unexpected failures a generic server_error. Token responses are
// marked uncacheable.
func (a *TokenAction) Handle(ctx context.Context, r *Request) *Response {
	resp := &Response{}
	resp.SetHeader("Cache-Control", "no-store")
	resp.SetHeader("Pragma", "no-cache")

	state := &handleState{}
	token, err := a.handle(ctx, r, state)
	if err != nil {
		return a.errorResponse(ctx, resp, state, err)
	}

	bearer, err := NewBearerToken(token, a.opts.AllowExtendedTokenAttributes)
	if err != nil {
		return a.errorResponse(ctx, resp, state, err)
	}

	if a.metrics != nil {
		a.metrics.RecordTokenIssued(ctx, state.grantType)
		if state.grantType == GrantTypeRefreshToken {
			a.metrics.RecordTokenRotated(ctx)
		}
	}
	if a.auditor != nil {
		if state.grantType == GrantTypeRefreshToken {
			a.auditor.LogTokenRefreshed(token.UserID, token.ClientID, token.RefreshToken != "")
		} else {
			a.auditor.LogTokenIssued(token.UserID, token.ClientID, state.grantType, token.Scope)
		}
	}

	resp.Status = 200
	resp.Body = bearer.Value()
	return resp
}

func (a *TokenAction) handle(ctx context.Context, r *Request, state *handleState) (*Token, error) {
	grantType := r.BodyValue("grant_type")
	if grantType == "" {
		return nil, ErrInvalidRequest("missing parameter: grant_type")
	}
	if !util.NChar(grantType) && !util.URI(grantType) {
		return nil, ErrInvalidRequest("invalid parameter: grant_type")
	}
	state.grantType = grantType

	grant, ok := a.grants[grantType]
	if !ok {
		return nil, ErrUnsupportedGrantType("")
	}

	client, err := a.authenticateClient(ctx, r, grantType, state)
	if err != nil {
		return nil, err
	}

	if !client.AllowsGrant(grantType) {
		return nil, ErrUnauthorizedClient("requested grant type is not allowed for this client")
	}

	return grant.Handle(ctx, r, client)
}

func (a *TokenAction) authenticateClient(ctx context.Context, r *Request, grantType string, state *handleState) (*Client, error) {
	credentials, err := DecodeBasicAuth(r.Header("Authorization"))
	if err != nil {
		return nil, err
	}

	var clientID, clientSecret string
	if credentials != nil {
		state.headerAuth = true
		clientID, clientSecret = credentials.Name, credentials.Pass
	} else {
		clientID = r.BodyValue("client_id")
		clientSecret = r.BodyValue("client_secret")
	}
	state.clientID = clientID

	if clientID == "" {
		return nil, ErrInvalidRequest("missing parameter: client_id")
	}
	if !util.VSChar(clientID) {
		return nil, ErrInvalidRequest("invalid parameter: client_id")
	}
	if clientSecret != "" && !util.VSChar(clientSecret) {
		return nil, ErrInvalidRequest("invalid parameter: client_secret")
	}
	if a.clientAuthRequired(grantType) && clientSecret == "" && !state.headerAuth {
		return nil, ErrInvalidRequest("missing parameter: client_secret")
	}

	client, err := a.clients.GetClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, AsError(err)
	}
	if client == nil {
		if a.auditor != nil {
			a.auditor.LogClientAuthFailure(clientID, "unknown client or bad credentials")
		}
		return nil, ErrInvalidClient("client is invalid")
	}
	if len(client.Grants) == 0 {
		return nil, ErrServerError(errors.New("client grants must be defined"))
	}
	return client, nil
}

func (a *TokenAction) clientAuthRequired(grantType string) bool {
	if required, ok := a.opts.RequireClientAuthentication[grantType]; ok {
		return required
	}
	return true
}

// errorResponse converts err into the client-visible error body. Failed
// header authentication answers 401 with a Basic challenge instead of
// the code's default status, per RFC 6749 section 5.2.
func (a *TokenAction) errorResponse(ctx context.Context, resp *Response, state *handleState, err error) *Response {
	pe := AsError(err)

	if pe.Code == ErrorCodeServerError {
		a.logger.Error("token request failed",
			"grant_type", state.grantType,
			"client_id", state.clientID,
			"error", pe.Unwrap())
	} else {
		a.logger.Debug("token request rejected",
			"grant_type", state.grantType,
			"client_id", state.clientID,
			"code", pe.Code,
			"description", pe.Description)
	}

	if a.metrics != nil {
		a.metrics.RecordGrantFailure(ctx, state.grantType, pe.Code)
	}
	if a.auditor != nil {
		a.auditor.LogGrantRejected(state.clientID, state.grantType, pe.Code)
	}

	resp.Status = pe.Status
	if (pe.Code == ErrorCodeInvalidClient || pe.Code == ErrorCodeInvalidClientAuth) && state.headerAuth {
		resp.Status = 401
		resp.SetHeader("WWW-Authenticate", `Basic realm="Service"`)
	}

	body := pe.Body(a.opts.VerboseErrors)
	resp.Body = map[string]any{"error": body.Error}
	if body.ErrorDescription != "" {
		resp.Body["error_description"] = body.ErrorDescription
	}
	return resp
}

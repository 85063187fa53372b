package oidcd

import (
	"encoding/json"
	"mime"
	"net/http"
)

// Handler adapts a TokenAction to net/http. The token endpoint only
// accepts POST with a form-encoded body; everything else is rejected
// before the action runs.
type Handler struct {
	action *TokenAction
}

// NewHandler creates the HTTP adapter for the token endpoint.
func NewHandler(action *TokenAction) *Handler {
	return &Handler{action: action}
}

var _ http.Handler = (*Handler)(nil)

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, ErrInvalidRequest("method must be POST"), http.StatusMethodNotAllowed)
		return
	}

	mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/x-www-form-urlencoded" {
		writeError(w, ErrInvalidRequest("content must be application/x-www-form-urlencoded"), http.StatusBadRequest)
		return
	}

	if err := req.ParseForm(); err != nil {
		writeError(w, ErrInvalidRequest("malformed request body"), http.StatusBadRequest)
		return
	}

	resp := h.action.Handle(req.Context(), NewRequest(req))
	writeResponse(w, resp)
}

// NewRequest converts an *http.Request into the transport-neutral form.
// The body must already be parsed.
func NewRequest(req *http.Request) *Request {
	headers := make(map[string]string, len(req.Header))
	for name := range req.Header {
		headers[name] = req.Header.Get(name)
	}
	return &Request{
		Method:  req.Method,
		Headers: headers,
		Body:    req.PostForm,
		Query:   req.URL.Query(),
	}
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp.Body)
}

func writeError(w http.ResponseWriter, e *Error, status int) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e.Body(false))
}

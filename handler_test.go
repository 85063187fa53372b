package oidcd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHandlerRejectsNonPost(t *testing.T) {
	f := newFixture(t, TokenOptions{})
	h := NewHandler(f.action)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/token", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != ErrorCodeInvalidRequest {
		t.Errorf("error = %s", body.Error)
	}
}

func TestHandlerRejectsWrongContentType(t *testing.T) {
	f := newFixture(t, TokenOptions{})
	h := NewHandler(f.action)

	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"grant_type":"password"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerServesTokenRequest(t *testing.T) {
	f := newFixture(t, TokenOptions{})
	h := NewHandler(f.action)

	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {"web"},
		"client_secret": {"s3cr3t"},
		"username":      {"alice"},
		"password":      {"wonderland"},
	}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json;charset=UTF-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["token_type"] != "Bearer" {
		t.Errorf("body = %v", body)
	}
}

func TestHandlerClientAuthChallenge(t *testing.T) {
	f := newFixture(t, TokenOptions{})
	h := NewHandler(f.action)

	form := url.Values{"grant_type": {"client_credentials"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("ghost", "nope")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != `Basic realm="Service"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

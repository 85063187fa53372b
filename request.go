package oidcd

import (
	"net/textproto"
	"net/url"
)

// Request is a transport-neutral token request. The HTTP adapter fills
// one from an *http.Request; non-HTTP transports can construct it
// directly.
type Request struct {
	Method  string
	Headers map[string]string
	Body    url.Values
	Query   url.Values
}

// Header returns a header value by case-insensitive name.
func (r *Request) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	if v, ok := r.Headers[name]; ok {
		return v
	}
	return r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// BodyValue returns the first body value for name.
func (r *Request) BodyValue(name string) string {
	if r.Body == nil {
		return ""
	}
	return r.Body.Get(name)
}

// Response is a transport-neutral token response.
type Response struct {
	Status  int
	Headers map[string]string
	Body    map[string]any
}

// SetHeader sets a response header.
func (r *Response) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[name] = value
}

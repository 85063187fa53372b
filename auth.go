package oidcd

import (
	"encoding/base64"
	"strings"
)

// Credentials is a decoded basic-auth name/password pair.
type Credentials struct {
	Name string
	Pass string
}

// DecodeBasicAuth decodes an Authorization header value of the Basic
// scheme. It returns nil with no error when the header is absent, and a
// credential-format error for any malformed input: wrong part count,
// non-basic scheme, undecodable base64 or a missing colon separator.
// Empty names and passwords are valid.
func DecodeBasicAuth(header string) (*Credentials, error) {
	if header == "" {
		return nil, nil
	}

	parts := strings.Split(strings.TrimSpace(header), " ")
	if len(parts) != 2 {
		return nil, ErrInvalidRequest("invalid credential format")
	}
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "basic") || strings.TrimSpace(parts[1]) == "" {
		return nil, ErrInvalidRequest("invalid credential format")
	}

	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidRequest("invalid credential format")
	}

	credentials := string(decoded)
	idx := strings.Index(credentials, ":")
	if idx < 0 {
		return nil, ErrInvalidRequest("invalid credential format")
	}

	return &Credentials{
		Name: strings.TrimSpace(credentials[:idx]),
		Pass: strings.TrimSpace(credentials[idx+1:]),
	}, nil
}

// ABOUTME: Token transport binding: a named cookie or an Authorization-style header
// ABOUTME: Extracts the raw token from HTTP requests and gRPC metadata

package auth

import (
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// BindingMode selects where the token travels.
type BindingMode string

const (
	BindingCookie BindingMode = "cookie"
	BindingHeader BindingMode = "header"
)

// Binding defaults
const (
	DefaultCookieName   = "SESSIONID"
	DefaultHeaderName   = "Authorization"
	DefaultHeaderScheme = "Bearer"
)

// TokenBinding is chosen at deployment time and is not negotiated per request.
type TokenBinding struct {
	Mode       BindingMode
	CookieName string
	HeaderName string
	Scheme     string // expected header prefix, empty for a raw token
}

// CookieBinding reads the token from the named cookie.
func CookieBinding(name string) TokenBinding {
	if name == "" {
		name = DefaultCookieName
	}
	return TokenBinding{Mode: BindingCookie, CookieName: name}
}

// HeaderBinding reads the token from a header such as "Authorization: Bearer <token>".
func HeaderBinding(name, scheme string) TokenBinding {
	if name == "" {
		name = DefaultHeaderName
	}
	return TokenBinding{Mode: BindingHeader, HeaderName: name, Scheme: scheme}
}

// Validate checks the binding is usable.
func (b TokenBinding) Validate() error {
	switch b.Mode {
	case BindingCookie:
		if b.CookieName == "" {
			return fmt.Errorf("cookie binding requires a cookie name")
		}
	case BindingHeader:
		if b.HeaderName == "" {
			return fmt.Errorf("header binding requires a header name")
		}
	default:
		return fmt.Errorf("unknown token binding %q", b.Mode)
	}
	return nil
}

// FromRequest returns the token carried by an HTTP request, or "" if absent.
func (b TokenBinding) FromRequest(r *http.Request) string {
	if b.Mode == BindingCookie {
		c, err := r.Cookie(b.CookieName)
		if err != nil {
			return ""
		}
		return c.Value
	}
	return b.fromHeaderValue(r.Header.Get(b.HeaderName))
}

// FromMetadata returns the token carried by incoming gRPC metadata, or "" if
// absent. Cookie mode reads the standard "cookie" metadata key.
func (b TokenBinding) FromMetadata(md metadata.MD) string {
	if b.Mode == BindingCookie {
		for _, line := range md.Get("cookie") {
			cookies, err := http.ParseCookie(line)
			if err != nil {
				continue
			}
			for _, c := range cookies {
				if c.Name == b.CookieName {
					return c.Value
				}
			}
		}
		return ""
	}
	values := md.Get(strings.ToLower(b.HeaderName))
	if len(values) == 0 {
		return ""
	}
	return b.fromHeaderValue(values[0])
}

// fromHeaderValue strips the scheme prefix. A header with the wrong scheme
// yields no token.
func (b TokenBinding) fromHeaderValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if b.Scheme == "" {
		return value
	}
	prefix := b.Scheme + " "
	if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(value[len(prefix):])
}

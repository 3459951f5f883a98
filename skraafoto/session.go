package skraafoto

import (
	"fmt"
	"net/http"
	"time"
)

// Authenticator applies authentication information to a request.
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// AuthenticatorFunc converts a function into an Authenticator.
type AuthenticatorFunc func(*http.Request) error

// Authenticate applies the function to the request.
func (f AuthenticatorFunc) Authenticate(req *http.Request) error {
	return f(req)
}

// TokenHeader authenticates with the Dataforsyningen "token" header.
type TokenHeader string

// Authenticate applies the token header.
func (t TokenHeader) Authenticate(req *http.Request) error {
	if string(t) == "" {
		return nil
	}
	req.Header.Set("token", string(t))
	return nil
}

// BearerToken authenticates with a standard bearer token header.
type BearerToken string

// Authenticate applies the bearer token header.
func (b BearerToken) Authenticate(req *http.Request) error {
	if string(b) == "" {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+string(b))
	return nil
}

// Session mediates authenticated HTTP traffic for catalog requests.
type Session struct {
	client        *http.Client
	authenticator Authenticator
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithSessionHTTPClient overrides the HTTP client used by the session.
func WithSessionHTTPClient(hc *http.Client) SessionOption {
	return func(s *Session) {
		s.client = hc
	}
}

// WithSessionAuthenticator sets the session authenticator.
func WithSessionAuthenticator(auth Authenticator) SessionOption {
	return func(s *Session) {
		s.authenticator = auth
	}
}

// NewSession constructs a session with a timeout default.
func NewSession(opts ...SessionOption) *Session {
	session := &Session{client: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(session)
	}
	if session.client == nil {
		session.client = http.DefaultClient
	}
	return session
}

func (s *Session) authenticate(req *http.Request) error {
	if s == nil {
		return fmt.Errorf("skraafoto: nil session")
	}
	if s.authenticator == nil {
		return nil
	}
	if err := s.authenticator.Authenticate(req); err != nil {
		return fmt.Errorf("skraafoto: authenticate request: %w", err)
	}
	return nil
}

package skraafoto

import (
	"log/slog"
	"net/http"

	"github.com/example/go-skraafoto/skraafoto/fetch"
)

// Option mutates the client when constructing it.
type Option func(*Client)

// WithBaseURL overrides the default catalog host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient configures a custom HTTP client instance.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if c.session == nil {
			c.session = NewSession()
		}
		c.session.client = hc
	}
}

// WithAuthToken configures the Dataforsyningen token used for requests.
func WithAuthToken(token string) Option {
	return WithAuthenticator(TokenHeader(token))
}

// WithAuthenticator sets a custom authenticator for the client's session.
func WithAuthenticator(auth Authenticator) Option {
	return func(c *Client) {
		if c.session == nil {
			c.session = NewSession()
		}
		c.session.authenticator = auth
	}
}

// WithSession allows callers to provide a preconfigured session.
func WithSession(session *Session) Option {
	return func(c *Client) {
		c.session = session
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy fetch.Policy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithLogger sets the logger used for retry and traversal diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

package transport

import "net/http"

// Authenticator applies authentication to outgoing HTTP requests.
type Authenticator interface {
	Apply(req *http.Request)
}

// BasicAuth authenticates with HTTP basic credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Apply implements the Authenticator interface.
func (a BasicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(a.Username, a.Password)
}

// NoAuth applies no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface.
func (NoAuth) Apply(*http.Request) {}

package client

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/samuelg/go-ari-client/pkg/events"
)

// Options configures Connect. Zero values fall back to defaults.
type Options struct {
	// URL is the server's base URL, e.g. "http://pbx:8088". Required.
	URL string
	// Username and Password authenticate every HTTP request and the
	// WebSocket subscription.
	Username string
	Password string
	// ReconnectCeiling caps the exponential backoff between reconnect
	// attempts.
	ReconnectCeiling time.Duration
	// MaxConsecutiveFailures is the reconnect streak after which the
	// session emits WebSocketMaxRetries and gives up.
	MaxConsecutiveFailures int
	// IdleTimeout forces a reconnect when no frame arrives for this long.
	// Zero disables the idle check.
	IdleTimeout time.Duration
	// Logger receives structured diagnostics. Nil keeps the library silent.
	Logger *zerolog.Logger
	// HTTPClient overrides the HTTP client used for schema loading and
	// operations.
	HTTPClient *http.Client
	// WSDialer overrides the WebSocket dialer.
	WSDialer *websocket.Dialer
}

// DefaultOptions returns the configuration used for unset fields.
func DefaultOptions() Options {
	return Options{
		ReconnectCeiling:       10 * time.Second,
		MaxConsecutiveFailures: events.DefaultMaxConsecutiveFailures,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.ReconnectCeiling <= 0 {
		o.ReconnectCeiling = defaults.ReconnectCeiling
	}
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = defaults.MaxConsecutiveFailures
	}
	return o
}

func (o Options) validate() (*url.URL, error) {
	if o.URL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", o.URL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must use http or https", o.URL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", o.URL)
	}
	return base, nil
}

func (o Options) logger() zerolog.Logger {
	if o.Logger != nil {
		return *o.Logger
	}
	return zerolog.Nop()
}

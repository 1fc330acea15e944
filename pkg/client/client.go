package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/samuelg/go-ari-client/pkg/events"
	"github.com/samuelg/go-ari-client/pkg/resource"
	"github.com/samuelg/go-ari-client/pkg/schema"
	"github.com/samuelg/go-ari-client/pkg/transport"
)

// Client is the facade over the synthesized resource namespaces and the
// event pipeline. Connect builds a ready client without opening the
// WebSocket; Start opens it.
type Client struct {
	opts    Options
	base    *url.URL
	log     zerolog.Logger
	catalog *schema.Catalog
	model   *schema.EventModel
	invoker *transport.Invoker
	factory *resource.Factory
	router  *events.Router

	mu      sync.Mutex
	session *events.Session
}

// Connect loads the server's schema documents and materializes the resource
// namespaces. It fails with HostIsNotReachable when the server cannot be
// reached and SchemaInvalid when the documents are malformed.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	base, err := opts.validate()
	if err != nil {
		return nil, err
	}
	log := opts.logger()

	loader := schema.NewLoader(base, opts.Username, opts.Password, opts.HTTPClient, log)
	catalog, model, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	c := &Client{
		opts:    opts,
		base:    base,
		log:     log,
		catalog: catalog,
		model:   model,
	}
	auth := transport.BasicAuth{Username: opts.Username, Password: opts.Password}
	c.invoker = transport.NewInvoker(opts.HTTPClient, auth, log)
	c.router = events.NewRouter(model, log)
	c.factory = resource.NewFactory(catalog, c, c.router)
	c.router.BindFactory(c.factory)
	return c, nil
}

// Invoke implements resource.Caller: it binds the options to the named
// operation, executes the request, and shapes the response into resource
// instances where the declared response type is a known kind.
func (c *Client) Invoke(ctx context.Context, resourceName, operation string, opts map[string]any) (any, error) {
	res := c.catalog.Resource(resourceName)
	if res == nil {
		return nil, fmt.Errorf("unknown resource %q", resourceName)
	}
	op, ok := res.Operations[operation]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q on resource %q", operation, resourceName)
	}

	plan, err := transport.BuildPlan(op, opts)
	if err != nil {
		return nil, err
	}
	_, body, err := c.invoker.Do(ctx, plan)
	if err != nil {
		return nil, err
	}
	return c.factory.Shape(op.ResponseType, body), nil
}

// Resource returns the handle for a resource namespace. The namespace need
// not exist; invoking an operation on a missing one errors.
func (c *Client) Resource(name string) *Namespace {
	return &Namespace{name: name, client: c}
}

// Named accessors for the standard namespaces.

// Applications returns the applications namespace.
func (c *Client) Applications() *Namespace { return c.Resource("applications") }

// Asterisk returns the asterisk namespace.
func (c *Client) Asterisk() *Namespace { return c.Resource("asterisk") }

// Bridges returns the bridges namespace.
func (c *Client) Bridges() *Namespace { return c.Resource("bridges") }

// Channels returns the channels namespace.
func (c *Client) Channels() *Namespace { return c.Resource("channels") }

// DeviceStates returns the deviceStates namespace.
func (c *Client) DeviceStates() *Namespace { return c.Resource("deviceStates") }

// Endpoints returns the endpoints namespace.
func (c *Client) Endpoints() *Namespace { return c.Resource("endpoints") }

// Mailboxes returns the mailboxes namespace.
func (c *Client) Mailboxes() *Namespace { return c.Resource("mailboxes") }

// Playbacks returns the playbacks namespace.
func (c *Client) Playbacks() *Namespace { return c.Resource("playbacks") }

// Recordings returns the recordings namespace.
func (c *Client) Recordings() *Namespace { return c.Resource("recordings") }

// Sounds returns the sounds namespace.
func (c *Client) Sounds() *Namespace { return c.Resource("sounds") }

// Instance creators: mint a local instance, optionally with an id and
// initial fields, so listeners can attach before the server knows about the
// resource.

// Bridge mints a local Bridge instance.
func (c *Client) Bridge(args ...any) *resource.Instance { return c.factory.Bridge(args...) }

// Channel mints a local Channel instance.
func (c *Client) Channel(args ...any) *resource.Instance { return c.factory.Channel(args...) }

// Playback mints a local Playback instance.
func (c *Client) Playback(args ...any) *resource.Instance { return c.factory.Playback(args...) }

// LiveRecording mints a local LiveRecording instance.
func (c *Client) LiveRecording(args ...any) *resource.Instance {
	return c.factory.LiveRecording(args...)
}

// Mailbox mints a local Mailbox instance.
func (c *Client) Mailbox(args ...any) *resource.Instance { return c.factory.Mailbox(args...) }

// DeviceState mints a local DeviceState instance.
func (c *Client) DeviceState(args ...any) *resource.Instance { return c.factory.DeviceState(args...) }

// Start opens the WebSocket session subscribed to the given application
// names.
func (c *Client) Start(apps ...string) error {
	return c.start(apps, false)
}

// StartSubscribeAll opens the WebSocket session subscribed to all server
// events in addition to the given applications.
func (c *Client) StartSubscribeAll(apps ...string) error {
	return c.start(apps, true)
}

func (c *Client) start(apps []string, subscribeAll bool) error {
	if len(apps) == 0 {
		return fmt.Errorf("at least one application name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		switch c.session.State() {
		case events.StateIdle, events.StateStopped, events.StateGaveUp:
			// Replaced below with a fresh subscription.
		default:
			return fmt.Errorf("session already started")
		}
	}
	cfg := events.SessionConfig{
		Base:         c.base,
		Username:     c.opts.Username,
		Password:     c.opts.Password,
		Apps:         apps,
		SubscribeAll: subscribeAll,
		Backoff: events.Backoff{
			Ceiling: c.opts.ReconnectCeiling,
			Jitter:  true,
		},
		MaxConsecutiveFailures: c.opts.MaxConsecutiveFailures,
		IdleTimeout:            c.opts.IdleTimeout,
		Dialer:                 c.opts.WSDialer,
	}
	c.session = events.NewSession(cfg, c.router, c.log)
	return c.session.Start()
}

// Stop closes the WebSocket session. Events arriving afterwards are not
// routed until Start is called again.
func (c *Client) Stop() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session != nil {
		session.Stop()
	}
}

// On registers a client-wide listener for the event type.
func (c *Client) On(eventType string, h resource.Handler) resource.Subscription {
	return c.router.On(eventType, h)
}

// AddListener is an alias of On.
func (c *Client) AddListener(eventType string, h resource.Handler) resource.Subscription {
	return c.On(eventType, h)
}

// Once registers a client-wide listener removed before its first
// invocation.
func (c *Client) Once(eventType string, h resource.Handler) resource.Subscription {
	return c.router.Once(eventType, h)
}

// RemoveAllListeners removes every client-wide listener for the event type;
// other types are unaffected.
func (c *Client) RemoveAllListeners(eventType string) {
	c.router.RemoveAllListeners(eventType)
}

// Catalog returns the loaded operation catalog.
func (c *Client) Catalog() *schema.Catalog {
	return c.catalog
}

// EventModel returns the loaded event model.
func (c *Client) EventModel() *schema.EventModel {
	return c.model
}

// Package goari is a client for the Asterisk REST Interface. It synthesizes
// the resource namespaces and their operations at runtime from the server's
// own schema documents, and routes the server's WebSocket events to
// client-wide and per-instance listeners:
//
//   - Schema layer: fetches and validates the operation catalog and the
//     event model (pkg/schema)
//   - Transport layer: parameter binding and authenticated HTTP invocation
//     (pkg/transport)
//   - Resource layer: typed instances with pre-bound operations and scoped
//     event subscriptions (pkg/resource)
//   - Event layer: reconnecting WebSocket session and the event router
//     (pkg/events)
//
// Example usage:
//
//	client, err := goari.Connect(ctx, goari.Options{
//		URL:      "http://localhost:8088",
//		Username: "asterisk",
//		Password: "asterisk",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client.On("StasisStart", func(e *goari.Event) {
//		channel := e.Instance()
//		channel.Invoke(ctx, "answer", nil)
//	})
//
//	if err := client.Start("myapp"); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Stop()
package goari

import (
	"context"

	"github.com/samuelg/go-ari-client/pkg/client"
	"github.com/samuelg/go-ari-client/pkg/events"
	"github.com/samuelg/go-ari-client/pkg/models"
	"github.com/samuelg/go-ari-client/pkg/resource"
	"github.com/samuelg/go-ari-client/pkg/schema"
)

// Version is the library version.
const Version = "1.0.0"

// Opts is a caller-supplied option map for an operation. Option maps are
// never mutated by the client.
type Opts = map[string]any

// Main types.
type (
	Client    = client.Client
	Options   = client.Options
	Namespace = client.Namespace
)

// Resource layer types.
type (
	Instance     = resource.Instance
	Kind         = resource.Kind
	Event        = resource.Event
	Promotion    = resource.Promotion
	Handler      = resource.Handler
	Subscription = resource.Subscription
)

// Schema layer types.
type (
	Catalog    = schema.Catalog
	EventModel = schema.EventModel
	Operation  = schema.Operation
	Parameter  = schema.Parameter
)

// Error types.
type (
	ClientError = models.ClientError
	ErrorCode   = models.ErrorCode
)

// Resource kinds.
const (
	KindBridge        = resource.KindBridge
	KindChannel       = resource.KindChannel
	KindPlayback      = resource.KindPlayback
	KindLiveRecording = resource.KindLiveRecording
	KindMailbox       = resource.KindMailbox
	KindDeviceState   = resource.KindDeviceState
	KindEndpoint      = resource.KindEndpoint
	KindSound         = resource.KindSound
	KindApplication   = resource.KindApplication
)

// Client-observable lifecycle event types.
const (
	WebSocketConnected    = events.WebSocketConnected
	WebSocketReconnecting = events.WebSocketReconnecting
	WebSocketMaxRetries   = events.WebSocketMaxRetries
	ErrorEvent            = events.ErrorEvent
)

// Connect loads the server's schema documents and returns a ready client.
// The WebSocket is not opened until Start.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	return client.Connect(ctx, opts)
}

// DefaultOptions returns the configuration used for unset option fields.
func DefaultOptions() Options {
	return client.DefaultOptions()
}

// SchemaFromFile builds a catalog and event model from local schema
// documents, JSON or YAML.
var SchemaFromFile = schema.FromFile

// Error predicates.
var (
	IsHostUnreachable  = models.IsHostUnreachable
	IsServerError      = models.IsServerError
	IsTransportError   = models.IsTransportError
	IsSchemaInvalid    = models.IsSchemaInvalid
	IsMissingParameter = models.IsMissingParameter
	IsCancelled        = models.IsCancelled
)

package resource

import (
	"strings"

	"github.com/google/uuid"

	"github.com/samuelg/go-ari-client/pkg/schema"
)

// Factory wraps server response bodies into resource instances and mints
// unscheduled instances locally so listeners can attach before the server
// knows about the resource.
type Factory struct {
	catalog *schema.Catalog
	caller  Caller
	bus     EventBus
}

// NewFactory creates a factory over the loaded catalog. The caller executes
// pre-bound operations; the bus scopes instance subscriptions.
func NewFactory(catalog *schema.Catalog, caller Caller, bus EventBus) *Factory {
	return &Factory{catalog: catalog, caller: caller, bus: bus}
}

// New wraps decoded response fields into an instance of the given kind.
func (f *Factory) New(kind Kind, fields map[string]any) *Instance {
	return newInstance(kind, fields, f.caller, f.bus, f.catalog.Resource(kind.Namespace()))
}

// Shape converts a decoded response body according to the operation's
// declared response type: a known kind becomes an instance, List[Kind]
// becomes a slice of instances, anything else passes through.
func (f *Factory) Shape(responseType string, body any) any {
	rt := strings.TrimSpace(responseType)
	if rt == "" || rt == "void" || body == nil {
		return body
	}

	if inner, ok := listElement(rt); ok {
		kind, known := KindFromType(inner)
		if !known {
			return body
		}
		items, ok := body.([]any)
		if !ok {
			return body
		}
		instances := make([]*Instance, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				instances = append(instances, f.New(kind, m))
			}
		}
		return instances
	}

	kind, known := KindFromType(rt)
	if !known {
		return body
	}
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	return f.New(kind, m)
}

func listElement(responseType string) (string, bool) {
	if strings.HasPrefix(responseType, "List[") && strings.HasSuffix(responseType, "]") {
		return responseType[len("List[") : len(responseType)-1], true
	}
	return "", false
}

// Instance creators. Accepted argument shapes: (), (id), (fields),
// (id, fields). A missing id gets a fresh UUID so listeners can be scoped
// to the instance before it exists server-side.

// Bridge mints a local Bridge instance.
func (f *Factory) Bridge(args ...any) *Instance { return f.local(KindBridge, args) }

// Channel mints a local Channel instance.
func (f *Factory) Channel(args ...any) *Instance { return f.local(KindChannel, args) }

// Playback mints a local Playback instance.
func (f *Factory) Playback(args ...any) *Instance { return f.local(KindPlayback, args) }

// LiveRecording mints a local LiveRecording instance.
func (f *Factory) LiveRecording(args ...any) *Instance { return f.local(KindLiveRecording, args) }

// Mailbox mints a local Mailbox instance.
func (f *Factory) Mailbox(args ...any) *Instance { return f.local(KindMailbox, args) }

// DeviceState mints a local DeviceState instance.
func (f *Factory) DeviceState(args ...any) *Instance { return f.local(KindDeviceState, args) }

func (f *Factory) local(kind Kind, args []any) *Instance {
	id := ""
	fields := make(map[string]any)
	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			id = v
		case map[string]any:
			for k, val := range v {
				fields[k] = val
			}
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	fields[kind.IdentityField()] = id
	return f.New(kind, fields)
}

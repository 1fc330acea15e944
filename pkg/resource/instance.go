package resource

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/samuelg/go-ari-client/pkg/schema"
)

// Caller executes a named operation on a resource namespace. Implemented by
// the client facade.
type Caller interface {
	Invoke(ctx context.Context, resource, operation string, opts map[string]any) (any, error)
}

// EventBus scopes event subscriptions to a resource instance. Implemented
// by the event router.
type EventBus interface {
	Subscribe(inst *Instance, eventType string, once bool, h Handler) Subscription
	RemoveAll(inst *Instance, eventType string)
}

// Instance is a resource instance: a kind tag, the fields last observed
// from the server, and pre-bound operation dispatch. Instances are created
// by the factory from server responses or minted locally before any server
// interaction.
type Instance struct {
	kind   Kind
	mu     sync.RWMutex
	fields map[string]any
	caller Caller
	bus    EventBus
	ops    *schema.Resource // operation set for the kind, may be nil
}

func newInstance(kind Kind, fields map[string]any, caller Caller, bus EventBus, ops *schema.Resource) *Instance {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &Instance{
		kind:   kind,
		fields: copied,
		caller: caller,
		bus:    bus,
		ops:    ops,
	}
}

// Kind returns the instance's kind tag.
func (i *Instance) Kind() Kind {
	return i.kind
}

// Identity returns the instance's server-observed identity: the "id" field
// for most kinds, "name" for the rest.
func (i *Instance) Identity() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	switch v := i.fields[i.kind.IdentityField()].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Field returns a single field value, or nil.
func (i *Instance) Field(name string) any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.fields[name]
}

// StringField returns a string field value, or "".
func (i *Instance) StringField(name string) string {
	s, _ := i.Field(name).(string)
	return s
}

// Fields returns a copy of the instance's fields.
func (i *Instance) Fields() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]any, len(i.fields))
	for k, v := range i.fields {
		out[k] = v
	}
	return out
}

// Update assigns server response fields onto the instance.
func (i *Instance) Update(fields map[string]any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k, v := range fields {
		i.fields[k] = v
	}
}

// Invoke executes one of the kind's operations with the identity parameter
// supplied from the instance. Caller-provided options always win over
// pre-binding, and the option map is never mutated.
func (i *Instance) Invoke(ctx context.Context, operation string, opts map[string]any) (any, error) {
	clone := make(map[string]any, len(opts)+2)
	for k, v := range opts {
		clone[k] = v
	}
	if i.ops != nil {
		if op, ok := i.ops.Operations[operation]; ok {
			i.bindIdentity(op, clone)
		}
	}

	result, err := i.caller.Invoke(ctx, i.kind.Namespace(), operation, clone)
	if err != nil {
		return nil, err
	}

	// An operation returning this same resource refreshes the instance.
	if other, ok := result.(*Instance); ok && other != i &&
		other.kind == i.kind && other.Identity() == i.Identity() {
		i.Update(other.Fields())
		return i, nil
	}
	return result, nil
}

func (i *Instance) bindIdentity(op *schema.Operation, opts map[string]any) {
	identity := i.Identity()
	if identity == "" {
		return
	}
	if i.kind == KindEndpoint {
		// Endpoint identities are "tech/resource" pairs.
		tech, rest, found := strings.Cut(identity, "/")
		if !found || !op.HasParam("tech") || !op.HasParam("resource") {
			return
		}
		if _, ok := opts["tech"]; !ok {
			opts["tech"] = tech
		}
		if _, ok := opts["resource"]; !ok {
			opts["resource"] = rest
		}
		return
	}
	param := i.kind.IdentityParam()
	if param == "" || !op.HasParam(param) {
		return
	}
	if _, ok := opts[param]; !ok {
		opts[param] = identity
	}
}

// On registers a scoped listener: it fires only for events whose promoted
// set contains an instance with this (kind, identity).
func (i *Instance) On(eventType string, h Handler) Subscription {
	if i.bus == nil {
		return noopSubscription{}
	}
	return i.bus.Subscribe(i, eventType, false, h)
}

// AddListener is an alias of On.
func (i *Instance) AddListener(eventType string, h Handler) Subscription {
	return i.On(eventType, h)
}

// Once registers a scoped listener removed before its first invocation.
func (i *Instance) Once(eventType string, h Handler) Subscription {
	if i.bus == nil {
		return noopSubscription{}
	}
	return i.bus.Subscribe(i, eventType, true, h)
}

// RemoveAllListeners removes every scoped listener for the event type.
func (i *Instance) RemoveAllListeners(eventType string) {
	if i.bus != nil {
		i.bus.RemoveAll(i, eventType)
	}
}

type noopSubscription struct{}

func (noopSubscription) Remove() {}

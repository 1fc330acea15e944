package events

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/samuelg/go-ari-client/pkg/resource"
	"github.com/samuelg/go-ari-client/pkg/schema"
)

// ErrorEvent is the client-wide event type receiving listener failures and
// frame decode errors.
const ErrorEvent = "Error"

type scopeKey struct {
	kind     resource.Kind
	identity string
}

// Router accepts decoded event envelopes, promotes payload fields to
// resource instances, and dispatches to client-wide listeners and to the
// scoped listeners of each promoted instance. It also keeps the index of
// instances with live listeners: an instance stays in the index exactly as
// long as at least one scoped listener remains attached to it.
type Router struct {
	model   *schema.EventModel
	factory *resource.Factory
	client  *Emitter
	log     zerolog.Logger

	mu        sync.Mutex
	scoped    map[scopeKey]*Emitter
	instances map[scopeKey]*resource.Instance
}

// NewRouter creates a router over the loaded event model. BindFactory must
// be called before the first Dispatch.
func NewRouter(model *schema.EventModel, log zerolog.Logger) *Router {
	r := &Router{
		model:     model,
		client:    NewEmitter(),
		log:       log,
		scoped:    make(map[scopeKey]*Emitter),
		instances: make(map[scopeKey]*resource.Instance),
	}
	r.client.SetReporter(r.reportPanic)
	return r
}

// BindFactory wires the factory producing promoted instances. Separate from
// construction because the factory itself subscribes through the router.
func (r *Router) BindFactory(f *resource.Factory) {
	r.factory = f
}

// On registers a client-wide listener.
func (r *Router) On(eventType string, h resource.Handler) resource.Subscription {
	return r.client.On(eventType, h)
}

// Once registers a client-wide listener removed before its first
// invocation.
func (r *Router) Once(eventType string, h resource.Handler) resource.Subscription {
	return r.client.Once(eventType, h)
}

// RemoveAllListeners removes every client-wide listener for the event type.
func (r *Router) RemoveAllListeners(eventType string) {
	r.client.RemoveAll(eventType)
}

// Subscribe implements resource.EventBus: it registers a listener scoped to
// the instance's (kind, identity) and records the instance for reuse when
// events reference it.
func (r *Router) Subscribe(inst *resource.Instance, eventType string, once bool, h resource.Handler) resource.Subscription {
	key := scopeKey{kind: inst.Kind(), identity: inst.Identity()}
	r.mu.Lock()
	em := r.scoped[key]
	if em == nil {
		em = NewEmitter()
		em.SetReporter(r.reportPanic)
		r.scoped[key] = em
	}
	r.instances[key] = inst
	r.mu.Unlock()

	var inner resource.Subscription
	if once {
		inner = em.Once(eventType, h)
	} else {
		inner = em.On(eventType, h)
	}
	return &scopedSubscription{router: r, key: key, inner: inner}
}

// RemoveAll implements resource.EventBus.
func (r *Router) RemoveAll(inst *resource.Instance, eventType string) {
	key := scopeKey{kind: inst.Kind(), identity: inst.Identity()}
	r.mu.Lock()
	em := r.scoped[key]
	r.mu.Unlock()
	if em == nil {
		return
	}
	em.RemoveAll(eventType)
	r.prune(key)
}

// prune drops the scoped emitter and the instance index entry once no
// listener remains, releasing the router's share of the instance.
func (r *Router) prune(key scopeKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if em := r.scoped[key]; em != nil && em.Total() == 0 {
		delete(r.scoped, key)
		delete(r.instances, key)
	}
}

// Lifecycle delivers a client-observable event that did not originate from
// the server (WebSocket lifecycle signalling, listener failures).
func (r *Router) Lifecycle(eventType string, payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	if _, ok := payload["type"]; !ok {
		payload["type"] = eventType
	}
	r.client.Emit(&resource.Event{Type: eventType, Payload: payload})
}

// Dispatch routes one decoded event envelope. Client-wide listeners run
// before per-instance listeners; within each tier, registration order is
// preserved.
func (r *Router) Dispatch(raw map[string]any) {
	eventType, _ := raw["type"].(string)
	if eventType == "" {
		r.log.Warn().Msg("dropping event without type")
		return
	}

	evt := &resource.Event{
		Type:       eventType,
		Payload:    raw,
		Promotions: r.promote(eventType, raw),
	}

	r.client.Emit(evt)

	seen := make(map[scopeKey]bool, len(evt.Promotions))
	for _, p := range evt.Promotions {
		key := scopeKey{kind: p.Instance.Kind(), identity: p.Instance.Identity()}
		if seen[key] {
			continue
		}
		seen[key] = true
		r.mu.Lock()
		em := r.scoped[key]
		r.mu.Unlock()
		if em != nil {
			em.Emit(evt)
			r.prune(key)
		}
	}
}

// promote extracts resource instances from the payload's promotable fields.
// Instances held by callers are reused and field-updated; unknown event
// types fall back to the conventional field names so server-added events
// remain reachable.
func (r *Router) promote(eventType string, raw map[string]any) []resource.Promotion {
	var fields []resource.PromotableField
	if desc := r.model.Descriptor(eventType); desc != nil {
		for _, f := range desc.Fields {
			if kind, ok := resource.KindFromType(f.Type); ok {
				fields = append(fields, resource.PromotableField{Field: f.Name, Kind: kind})
			}
		}
	} else {
		fields = resource.DefaultPromotableFields
	}

	var promotions []resource.Promotion
	for _, pf := range fields {
		payload, ok := raw[pf.Field].(map[string]any)
		if !ok {
			continue
		}
		identity := formatIdentity(payload[pf.Kind.IdentityField()])
		if identity == "" {
			// Payload lacks the expected identity field, no promotion.
			continue
		}
		key := scopeKey{kind: pf.Kind, identity: identity}
		r.mu.Lock()
		inst := r.instances[key]
		r.mu.Unlock()
		if inst != nil {
			inst.Update(payload)
		} else {
			inst = r.factory.New(pf.Kind, payload)
		}
		promotions = append(promotions, resource.Promotion{Field: pf.Field, Instance: inst})
	}
	return promotions
}

func (r *Router) reportPanic(evt *resource.Event, recovered any) {
	r.log.Error().
		Str("event", evt.Type).
		Interface("panic", recovered).
		Msg("listener panic")
	if evt.Type == ErrorEvent {
		return
	}
	r.client.Emit(&resource.Event{
		Type: ErrorEvent,
		Payload: map[string]any{
			"type":    ErrorEvent,
			"message": fmt.Sprintf("listener panic during %s: %v", evt.Type, recovered),
		},
	})
}

func formatIdentity(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}

type scopedSubscription struct {
	router *Router
	key    scopeKey
	inner  resource.Subscription
}

func (s *scopedSubscription) Remove() {
	s.inner.Remove()
	s.router.prune(s.key)
}

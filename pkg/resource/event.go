package resource

// Event is a decoded server event decorated with resource instances
// extracted from its payload.
type Event struct {
	// Type is the event name from the envelope's "type" field.
	Type string
	// Payload is the raw decoded JSON envelope.
	Payload map[string]any
	// Promotions holds the payload fields promoted to resource instances,
	// in event-descriptor order.
	Promotions []Promotion
}

// Promotion is one payload field promoted to a resource instance.
type Promotion struct {
	Field    string
	Instance *Instance
}

// Instance returns the first promoted instance, or nil. Convenient for the
// common single-promotion case.
func (e *Event) Instance() *Instance {
	if len(e.Promotions) == 0 {
		return nil
	}
	return e.Promotions[0].Instance
}

// Promoted returns the instance promoted from the named payload field, or
// nil.
func (e *Event) Promoted(field string) *Instance {
	for _, p := range e.Promotions {
		if p.Field == field {
			return p.Instance
		}
	}
	return nil
}

// String returns a string payload field, or "".
func (e *Event) String(field string) string {
	s, _ := e.Payload[field].(string)
	return s
}

// Map returns an object payload field, or nil.
func (e *Event) Map(field string) map[string]any {
	m, _ := e.Payload[field].(map[string]any)
	return m
}

// Handler consumes a dispatched event. Handlers run in the dispatch context
// and must not block the router.
type Handler func(*Event)

// Subscription is the disposer handle returned at subscribe time. Remove
// detaches exactly the registration that produced it.
type Subscription interface {
	Remove()
}

package schema

import (
	"fmt"
	"regexp"
	"sort"
)

// Placement identifies where an operation parameter is carried in the
// request. Unknown placements are treated as query.
const (
	PlacementPath   = "path"
	PlacementQuery  = "query"
	PlacementBody   = "body"
	PlacementForm   = "form"
	PlacementHeader = "header"
)

// Catalog maps resource names to their descriptors. Immutable after load.
type Catalog struct {
	Resources map[string]*Resource
}

// Resource describes one resource namespace and its operations.
type Resource struct {
	Name       string
	Operations map[string]*Operation
}

// Operation describes a single callable server endpoint.
type Operation struct {
	Name         string
	Method       string
	Path         string // absolute URL template with {placeholders}
	Summary      string
	ResponseType string // e.g. "Channel", "List[Channel]", "void"
	Parameters   []*Parameter
}

// Parameter describes one operation parameter.
type Parameter struct {
	Name        string
	Placement   string
	Required    bool
	DataType    string
	Multiple    bool
	Description string
}

// EventModel maps event names to their descriptors.
type EventModel struct {
	Events map[string]*EventDescriptor
}

// EventDescriptor describes one event kind and its payload fields.
// Field order follows the source document.
type EventDescriptor struct {
	Name        string
	Description string
	Fields      []*EventField
}

// EventField is a single payload field of an event.
type EventField struct {
	Name        string
	Type        string
	Description string
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Placeholders returns the names of the {placeholders} in the operation's
// path template.
func (op *Operation) Placeholders() []string {
	matches := placeholderRe.FindAllStringSubmatch(op.Path, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Param returns the parameter with the given name, or nil.
func (op *Operation) Param(name string) *Parameter {
	for _, p := range op.Parameters {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// HasParam reports whether the operation declares a parameter by name.
func (op *Operation) HasParam(name string) bool {
	return op.Param(name) != nil
}

// OperationNames returns the resource's operation names in sorted order.
func (r *Resource) OperationNames() []string {
	names := make([]string, 0, len(r.Operations))
	for name := range r.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resource returns the descriptor for a resource name, or nil.
func (c *Catalog) Resource(name string) *Resource {
	if c == nil {
		return nil
	}
	return c.Resources[name]
}

// ResourceNames returns the catalog's resource names in sorted order.
func (c *Catalog) ResourceNames() []string {
	names := make([]string, 0, len(c.Resources))
	for name := range c.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the catalog's structural invariants: every path
// placeholder must correspond to exactly one path-placement parameter.
func (c *Catalog) Validate() error {
	for resName, res := range c.Resources {
		for opName, op := range res.Operations {
			if op.Method == "" {
				return fmt.Errorf("operation %s.%s has no HTTP method", resName, opName)
			}
			for _, ph := range op.Placeholders() {
				count := 0
				for _, p := range op.Parameters {
					if p.Name == ph && p.Placement == PlacementPath {
						count++
					}
				}
				if count != 1 {
					return fmt.Errorf("operation %s.%s: placeholder {%s} bound by %d path parameters, want 1",
						resName, opName, ph, count)
				}
			}
		}
	}
	return nil
}

// Descriptor returns the descriptor for an event name, or nil.
func (m *EventModel) Descriptor(eventType string) *EventDescriptor {
	if m == nil {
		return nil
	}
	return m.Events[eventType]
}

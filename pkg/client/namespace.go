package client

import (
	"context"
	"fmt"
)

// Namespace is one resource namespace of the catalog, e.g. "channels". Its
// operations perform authenticated HTTP calls and shape responses into
// resource instances.
type Namespace struct {
	name   string
	client *Client
}

// Name returns the namespace's resource name.
func (n *Namespace) Name() string {
	return n.name
}

// Invoke executes the named operation with the given options. The option
// map is never mutated.
func (n *Namespace) Invoke(ctx context.Context, operation string, opts map[string]any) (any, error) {
	return n.client.Invoke(ctx, n.name, operation, opts)
}

// Operations returns the namespace's operation names in sorted order.
func (n *Namespace) Operations() ([]string, error) {
	res := n.client.catalog.Resource(n.name)
	if res == nil {
		return nil, fmt.Errorf("unknown resource %q", n.name)
	}
	return res.OperationNames(), nil
}

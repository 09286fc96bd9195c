// ABOUTME: Immutable registry of capability descriptors keyed by model id
// ABOUTME: Built once at startup with every descriptor bound to its provider client

package capability

import (
	"fmt"

	"github.com/2389/model-router/internal/provider"
)

// Resolver builds the client that serves a descriptor.
type Resolver func(d Descriptor) (provider.Client, error)

// Registry is read-only after construction and safe for concurrent use
// without locking.
type Registry struct {
	byID  map[string]Descriptor
	order []string
}

// NewRegistry validates descriptors and indexes them. Ids must be unique and
// every descriptor must already carry a Client.
func NewRegistry(descs []Descriptor) (*Registry, error) {
	r := &Registry{
		byID:  make(map[string]Descriptor, len(descs)),
		order: make([]string, 0, len(descs)),
	}
	for _, d := range descs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", d.ID)
		}
		if d.Client == nil {
			return nil, fmt.Errorf("model %s has no provider client", d.ID)
		}
		r.byID[d.ID] = d.clone()
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// Bind resolves a client for every descriptor and builds the registry.
func Bind(table []Descriptor, resolve Resolver) (*Registry, error) {
	bound := make([]Descriptor, 0, len(table))
	for _, d := range table {
		client, err := resolve(d)
		if err != nil {
			return nil, fmt.Errorf("binding model %s: %w", d.ID, err)
		}
		d.Client = client
		bound = append(bound, d)
	}
	return NewRegistry(bound)
}

// Lookup returns the descriptor for a model id.
func (r *Registry) Lookup(id string) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return d.clone(), nil
}

// Has reports whether id names a registered model.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// IDs returns the registered model ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

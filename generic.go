package sapling

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/pkg/errors"
)

// materialize returns the registration behind a generic key, creating it from
// the template on first use.
//
// The generic key and the concrete type produced by the template are both
// bound to one registration. When the concrete type was registered on its own
// first, the generic key reuses that registration and its lifecycle;
// otherwise the template's lifecycle applies to both. A materialized
// registration is validated before it is published and dropped again if it
// introduces a cycle or a lifecycle mismatch.
//
// The materializer runs with the registry locked and must not call back into
// it.
func (r *Registry) materialize(ref *genericRef) (*descriptor, error) {
	key := GenericKey(ref.base, ref.params...)
	if d, ok := r.find(key); ok {
		return d, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.descriptors[key]; ok {
		return d, nil
	}

	t, ok := r.templates[ref.base]
	if !ok {
		return nil, fmt.Errorf("%w: generic %s", ErrServiceNotFound, key)
	}

	ctor, err := t.materialize(slices.Clone(ref.params))
	if err != nil {
		return nil, errors.Wrapf(err, "materializing %s", key)
	}
	d, err := newDescriptor(ctor, t.lifecycle, false, t.opts)
	if err != nil {
		return nil, errors.Wrapf(err, "materializing %s", key)
	}

	if inner, ok := r.lookup(d.key); ok {
		r.descriptors[key] = inner
		return inner, nil
	}

	r.descriptors[d.key] = d
	r.descriptors[key] = d
	if _, err := newWalker(r).walk(d, nil); err != nil {
		delete(r.descriptors, d.key)
		delete(r.descriptors, key)
		return nil, err
	}
	return d, nil
}

// ResolveGeneric resolves the generic template base instantiated with params
// and converts the instance to T.
//
//	repo, err := sapling.ResolveGeneric[*Repository[User]](p, "repository", reflect.TypeFor[User]())
func ResolveGeneric[T any](r Resolver, base string, params ...reflect.Type) (T, error) {
	var zero T

	val, err := r.ResolveGeneric(base, params...)
	if err != nil {
		return zero, err
	}
	return convert[T](val)
}

package sapling

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Provider methods
// ---------------------------------------------------------------------------

func (p *Provider) Resolve(key Key) (reflect.Value, error) {
	if err := p.live(); err != nil {
		return reflect.Value{}, err
	}

	if val, ok := p.capability(key); ok {
		return val, nil
	}

	d, ok := p.registry.find(key)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrServiceNotFound, key)
	}

	n, err := p.buildSimple(nil, d)
	if err != nil {
		return reflect.Value{}, err
	}
	return n.value(), nil
}

func (p *Provider) ResolveNamed(key Key, name string) (reflect.Value, error) {
	if err := p.live(); err != nil {
		return reflect.Value{}, err
	}

	d, ok := p.registry.findNamed(key, name)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s named %q", ErrServiceNotFound, key, name)
	}

	n, err := p.buildSimple(nil, d)
	if err != nil {
		return reflect.Value{}, err
	}
	return n.value(), nil
}

func (p *Provider) ResolveSlice(key Key) (reflect.Value, error) {
	if err := p.live(); err != nil {
		return reflect.Value{}, err
	}

	n, err := p.buildSlice(nil, key)
	if err != nil {
		return reflect.Value{}, err
	}
	return n.value(), nil
}

func (p *Provider) ResolveGeneric(base string, params ...reflect.Type) (reflect.Value, error) {
	if err := p.live(); err != nil {
		return reflect.Value{}, err
	}

	d, err := p.registry.materialize(&genericRef{base: base, params: params})
	if err != nil {
		return reflect.Value{}, err
	}

	n, err := p.buildSimple(nil, d)
	if err != nil {
		return reflect.Value{}, err
	}
	return n.value(), nil
}

func (p *Provider) Unresolve(key Key, instance reflect.Value) error {
	if err := p.live(); err != nil {
		return err
	}

	regs := p.registry.findAll(key)
	if len(regs) == 0 {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, key)
	}
	if !slices.ContainsFunc(regs, func(d *descriptor) bool { return d.lifecycle == Transient }) {
		return fmt.Errorf("%w: %s is %s", ErrUnresolveNotTransient, key, regs[0].lifecycle)
	}

	ident, ok := identity(instance)
	if !ok {
		return fmt.Errorf("%w: %s instance has no identity", ErrNoResolveContext, key)
	}

	n := p.pool.take(func(n *node) bool {
		return !n.multi && n.ident == ident && slices.Contains(regs, n.desc)
	})
	if n == nil {
		return fmt.Errorf("%w: %s", ErrNoResolveContext, key)
	}

	p.logger.Debug("transient released", zap.Stringer("key", n.key))
	return p.release(n)
}

func (p *Provider) UnresolveSlice(key Key, slice reflect.Value) error {
	if err := p.live(); err != nil {
		return err
	}

	if len(p.registry.findAll(key)) == 0 {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, key)
	}

	ident, ok := identity(slice)
	if !ok {
		return fmt.Errorf("%w: []%s", ErrNoResolveContext, key)
	}

	n := p.pool.take(func(n *node) bool {
		return n.multi && n.key == key && n.ident == ident
	})
	if n == nil {
		return fmt.Errorf("%w: []%s", ErrNoResolveContext, key)
	}

	p.logger.Debug("slice released", zap.Stringer("key", key), zap.Int("elements", len(n.children)))
	return p.release(n)
}

// ---------------------------------------------------------------------------
// Generic helpers
// ---------------------------------------------------------------------------

// Resolve is a generic helper that resolves T from a provider or scope. It
// is the recommended way to retrieve services:
//
//	db, err := sapling.Resolve[*Database](p)
func Resolve[T any](r Resolver) (T, error) {
	var zero T

	val, err := r.Resolve(KeyOf[T]())
	if err != nil {
		return zero, err
	}
	return convert[T](val)
}

// ResolveNamed is a generic helper that resolves the factory registered for
// T under name:
//
//	sink, err := sapling.ResolveNamed[Sink](p, "file")
func ResolveNamed[T any](r Resolver, name string) (T, error) {
	var zero T

	val, err := r.ResolveNamed(KeyOf[T](), name)
	if err != nil {
		return zero, err
	}
	return convert[T](val)
}

// ResolveSlice is a generic helper that resolves every registration of T.
// The backing array is owned by the resolver until it is released with
// [UnresolveSlice]; the elements follow their own lifecycles.
//
//	sinks, err := sapling.ResolveSlice[Sink](p)
func ResolveSlice[T any](r Resolver) ([]T, error) {
	val, err := r.ResolveSlice(KeyOf[T]())
	if err != nil {
		return nil, err
	}
	return convert[[]T](val)
}

// Unresolve is a generic helper that releases a transient instance of T:
//
//	db, _ := sapling.Resolve[*Database](p)
//	defer sapling.Unresolve(p, db)
func Unresolve[T any](r Resolver, instance T) error {
	return r.Unresolve(KeyOf[T](), reflect.ValueOf(&instance).Elem())
}

// UnresolveSlice is a generic helper that releases a slice returned by
// [ResolveSlice].
func UnresolveSlice[T any](r Resolver, slice []T) error {
	return r.UnresolveSlice(KeyOf[T](), reflect.ValueOf(slice))
}

func convert[T any](val reflect.Value) (T, error) {
	var out T

	want := reflect.TypeFor[T]()
	if !val.IsValid() || !val.Type().AssignableTo(want) {
		return out, fmt.Errorf("cannot convert %s to %s", val.Type(), want)
	}
	reflect.ValueOf(&out).Elem().Set(val)
	return out, nil
}

// ---------------------------------------------------------------------------
// Internal
// ---------------------------------------------------------------------------

// capability returns the reserved values every constructor may ask for
// without registering them.
func (p *Provider) capability(key Key) (reflect.Value, bool) {
	switch key {
	case KeyFor(allocatorType):
		return reflect.ValueOf(&p.alloc).Elem(), true
	case KeyFor(providerType):
		return reflect.ValueOf(p), true
	case KeyFor(resolverType):
		var r Resolver = p
		return reflect.ValueOf(&r).Elem(), true
	default:
		return reflect.Value{}, false
	}
}

// resolveDependency produces one constructor argument inside frame f.
func (p *Provider) resolveDependency(f *frame, dep Dependency) (reflect.Value, error) {
	switch dep.Kind {
	case KindAllocator:
		return reflect.ValueOf(&p.alloc).Elem(), nil

	case KindProvider:
		return reflect.ValueOf(p), nil

	case KindSlice:
		n, err := p.buildSlice(f, dep.Key)
		if err != nil {
			return reflect.Value{}, err
		}
		return n.value(), nil

	case KindGeneric:
		d, err := p.registry.materialize(dep.generic)
		if err != nil {
			return reflect.Value{}, err
		}
		if parent := f.parent(); parent != nil {
			if err := checkEdge(parent, d); err != nil {
				return reflect.Value{}, err
			}
		}
		n, err := p.buildSimple(f, d)
		if err != nil {
			return reflect.Value{}, err
		}
		return n.value(), nil

	default:
		d, ok := p.registry.find(dep.Key)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrServiceNotFound, dep.Key)
		}
		n, err := p.buildSimple(f, d)
		if err != nil {
			return reflect.Value{}, err
		}
		return n.value(), nil
	}
}

// buildSimple resolves one registration according to its lifecycle and links
// the resulting node under the frame that asked for it.
func (p *Provider) buildSimple(f *frame, d *descriptor) (*node, error) {
	if chain, ok := f.chain(d.key); ok {
		return nil, circularError(chain)
	}

	var (
		n   *node
		err error
	)
	switch d.lifecycle {
	case Singleton:
		n, err = p.rootProvider().buildSingleton(f, d)
	case Scoped:
		n, err = p.buildScoped(f, d)
	default:
		n, err = p.buildTransient(f, d)
	}
	if err != nil {
		return nil, err
	}

	f.link(n)
	return n, nil
}

func (p *Provider) buildTransient(f *frame, d *descriptor) (*node, error) {
	n := p.pool.acquire(p)
	n.key, n.desc = d.key, d

	if err := p.construct(f.push(n), n); err != nil {
		p.rollback(n)
		return nil, err
	}

	if f == nil {
		p.pool.activate(n)
	}
	return n, nil
}

// buildSingleton must be called on the root provider. The per-registration
// lock is held for the whole build so concurrent first resolutions construct
// the instance exactly once.
func (p *Provider) buildSingleton(f *frame, d *descriptor) (*node, error) {
	if n, ok := p.singletons.get(d.id); ok {
		return n, nil
	}

	mu := p.locks.get(d.id)
	mu.Lock()
	defer mu.Unlock()

	if n, ok := p.singletons.get(d.id); ok {
		return n, nil
	}

	n := &node{key: d.key, desc: d, owner: p, slot: -1}
	if err := p.construct(f.push(n), n); err != nil {
		p.rollback(n)
		return nil, err
	}

	p.singletons.put(d.id, n)
	p.logger.Debug("singleton constructed", zap.Stringer("key", d.key))
	return n, nil
}

func (p *Provider) buildScoped(f *frame, d *descriptor) (*node, error) {
	if p.scoped == nil {
		return nil, fmt.Errorf("%w: %s is scoped", ErrNoActiveScope, d.key)
	}

	if n, ok := p.scoped.get(d.id); ok {
		return n, nil
	}

	n := &node{key: d.key, desc: d, owner: p, slot: -1}
	if err := p.construct(f.push(n), n); err != nil {
		p.rollback(n)
		return nil, err
	}

	p.scoped.put(d.id, n)
	p.logger.Debug("scoped constructed", zap.Stringer("key", d.key))
	return n, nil
}

// buildSlice resolves every registration of key into one allocator-backed
// slice owned by a pooled multi node.
func (p *Provider) buildSlice(f *frame, key Key) (*node, error) {
	regs := p.registry.findAll(key)
	if len(regs) == 0 {
		return nil, fmt.Errorf("%w: []%s", ErrServiceNotFound, key)
	}

	elem := regs[0].typ
	n := p.pool.acquire(p)
	n.key, n.multi = key, true
	n.box = p.alloc.AllocSlice(elem, len(regs))

	inner := f.push(n)
	for i, d := range regs {
		child, err := p.buildSimple(inner, d)
		if err != nil {
			p.rollback(n)
			return nil, errors.Wrapf(err, "resolving %s[%d]", key, i)
		}

		val := child.value()
		if !val.Type().AssignableTo(elem) {
			p.rollback(n)
			return nil, fmt.Errorf("%w: %s registration %d produces %s, not %s",
				ErrInvalidConstructor, key, i, val.Type(), elem)
		}
		n.box.Index(i).Set(val)
	}

	n.ident, _ = identity(n.box)
	if f == nil {
		p.pool.activate(n)
	}
	return n, nil
}

// construct resolves the dependencies of n's registration in declared order,
// calls its constructor and boxes the result in an allocator cell.
func (p *Provider) construct(f *frame, n *node) error {
	d := n.desc

	args := make([]reflect.Value, len(d.deps))
	for i, dep := range d.deps {
		arg, err := p.resolveDependency(f, dep)
		if err != nil {
			return errors.Wrapf(err, "resolving %s for %s", dep, d.key)
		}
		if !arg.Type().AssignableTo(d.params[i]) {
			return fmt.Errorf("%w: %s resolved to %s but %s expects %s",
				ErrInvalidConstructor, dep, arg.Type(), d.key, d.params[i])
		}
		args[i] = arg
	}

	val, err := d.call(args)
	if err != nil {
		return errors.Wrapf(err, "constructing %s", d.key)
	}

	n.box = p.alloc.Alloc(d.typ)
	n.box.Elem().Set(val)
	n.ident, _ = identity(val)
	return nil
}

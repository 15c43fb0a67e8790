package sapling

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Materializer returns the constructor for one parameterization of a generic
// template. It is called at most once per distinct parameter list.
type Materializer func(params []reflect.Type) (constructor any, err error)

type template struct {
	base        string
	lifecycle   Lifecycle
	materialize Materializer
	opts        []Option
}

// Registry holds service registrations and validates them before any
// instance is built. Use [NewRegistry] to create one.
type Registry struct {
	mu sync.RWMutex

	descriptors map[Key]*descriptor
	factories   map[Key][]*descriptor
	templates   map[string]*template

	// order records keys in first-registration order so validation and
	// eager construction are deterministic.
	order []Key

	built bool
}

// NewRegistry creates an empty [Registry] ready for registration.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[Key]*descriptor),
		factories:   make(map[Key][]*descriptor),
		templates:   make(map[string]*template),
	}
}

// Register adds the default registration for the constructor's return type.
// The constructor must have the signature func(deps...) T or
// func(deps...) (T, error); dependencies are resolved from its parameters.
func (r *Registry) Register(constructor any, lc Lifecycle, opts ...Option) error {
	d, err := newDescriptor(constructor, lc, false, opts)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.built {
		return ErrAlreadyBuilt
	}
	if _, exists := r.descriptors[d.key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, d.key)
	}

	r.track(d.key)
	r.descriptors[d.key] = d
	return nil
}

// RegisterSingleton registers constructor with the [Singleton] lifecycle.
func (r *Registry) RegisterSingleton(constructor any, opts ...Option) error {
	return r.Register(constructor, Singleton, opts...)
}

// RegisterScoped registers constructor with the [Scoped] lifecycle.
func (r *Registry) RegisterScoped(constructor any, opts ...Option) error {
	return r.Register(constructor, Scoped, opts...)
}

// RegisterTransient registers constructor with the [Transient] lifecycle.
func (r *Registry) RegisterTransient(constructor any, opts ...Option) error {
	return r.Register(constructor, Transient, opts...)
}

// RegisterWithFactory adds an additional registration for the factory's
// return type. Factories sit beside the default registration of the same
// type and are resolved together by [ResolveSlice]. A factory takes no
// arguments, or a single [Allocator], *[Provider] or [Resolver].
func (r *Registry) RegisterWithFactory(lc Lifecycle, factory any, opts ...Option) error {
	d, err := newDescriptor(factory, lc, true, opts)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.built {
		return ErrAlreadyBuilt
	}

	existing := r.factories[d.key]
	if d.name != "" {
		for _, f := range existing {
			if f.name == d.name {
				return fmt.Errorf("%w: %s named %q", ErrDuplicateService, d.key, d.name)
			}
		}
		d.id = string(d.key) + "#" + d.name
	} else {
		d.id = string(d.key) + "#" + strconv.Itoa(len(existing))
	}

	r.track(d.key)
	r.factories[d.key] = append(existing, d)
	return nil
}

// RegisterSingletonWithFactory registers factory with the [Singleton]
// lifecycle.
func (r *Registry) RegisterSingletonWithFactory(factory any, opts ...Option) error {
	return r.RegisterWithFactory(Singleton, factory, opts...)
}

// RegisterScopedWithFactory registers factory with the [Scoped] lifecycle.
func (r *Registry) RegisterScopedWithFactory(factory any, opts ...Option) error {
	return r.RegisterWithFactory(Scoped, factory, opts...)
}

// RegisterTransientWithFactory registers factory with the [Transient]
// lifecycle.
func (r *Registry) RegisterTransientWithFactory(factory any, opts ...Option) error {
	return r.RegisterWithFactory(Transient, factory, opts...)
}

// RegisterGeneric adds a generic template under base. Parameterizations are
// materialized lazily, the first time [GenericKey](base, params...) is
// resolved; opts apply to every materialized constructor.
func (r *Registry) RegisterGeneric(base string, lc Lifecycle, materialize Materializer, opts ...Option) error {
	if base == "" {
		return fmt.Errorf("%w: generic base cannot be empty", ErrInvalidConstructor)
	}
	if materialize == nil {
		return fmt.Errorf("%w: generic %q has no materializer", ErrInvalidConstructor, base)
	}
	if !lc.valid() {
		return fmt.Errorf("%w: unknown lifecycle %d", ErrInvalidConstructor, lc)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.built {
		return ErrAlreadyBuilt
	}
	if _, exists := r.templates[base]; exists {
		return fmt.Errorf("%w: generic %q", ErrDuplicateService, base)
	}

	r.templates[base] = &template{base: base, lifecycle: lc, materialize: materialize, opts: opts}
	return nil
}

// Descriptor returns the registration used to resolve key: the default
// registration when there is one, otherwise the most recent factory.
func (r *Registry) Descriptor(key Key) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.lookup(key)
	if !ok {
		return Descriptor{}, false
	}
	return d.view(), true
}

// Descriptors returns every registration of key, the default first.
func (r *Registry) Descriptors(key Key) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.registrations(key)
	out := make([]Descriptor, len(regs))
	for i, d := range regs {
		out[i] = d.view()
	}
	return out
}

// CreateProvider validates the full dependency graph for missing services,
// circular dependencies and lifecycle mismatches, and returns a root
// [Provider]. After the first successful call the registry no longer
// accepts registrations; further providers may still be created from it.
func (r *Registry) CreateProvider(opts ...ProviderOption) (*Provider, error) {
	cfg := providerConfig{
		allocator: HeapAllocator(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	err := newWalker(r).validateAll()
	if err == nil {
		r.built = true
	}
	services := len(r.order)
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}

	p := newRootProvider(r, cfg)
	p.logger.Debug("provider created", zap.Int("services", services))

	if cfg.eager {
		if err := p.buildSingletons(); err != nil {
			_ = p.Shutdown(context.Background())
			return nil, err
		}
	}
	return p, nil
}

func (r *Registry) track(key Key) {
	if _, ok := r.descriptors[key]; ok {
		return
	}
	if _, ok := r.factories[key]; ok {
		return
	}
	r.order = append(r.order, key)
}

// lookup must hold at least mu.RLock.
func (r *Registry) lookup(key Key) (*descriptor, bool) {
	if d, ok := r.descriptors[key]; ok {
		return d, true
	}
	if fs := r.factories[key]; len(fs) > 0 {
		return fs[len(fs)-1], true
	}
	return nil, false
}

// registrations must hold at least mu.RLock.
func (r *Registry) registrations(key Key) []*descriptor {
	fs := r.factories[key]
	d, ok := r.descriptors[key]
	if !ok {
		return fs
	}
	out := make([]*descriptor, 0, len(fs)+1)
	out = append(out, d)
	return append(out, fs...)
}

func (r *Registry) find(key Key) (*descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(key)
}

func (r *Registry) findAll(key Key) []*descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registrations(key)
}

func (r *Registry) findNamed(key Key, name string) (*descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.factories[key] {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

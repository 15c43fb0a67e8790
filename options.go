package sapling

import "go.uber.org/zap"

// registration collects the options of a single Register call.
type registration struct {
	name   string
	deinit any
	deps   []Dependency
}

// Option configures a registration.
type Option func(*registration)

// WithName names a factory registration so it can be resolved on its own
// with [ResolveNamed]. Names are unique per key.
func WithName(name string) Option {
	return func(r *registration) {
		r.name = name
	}
}

// WithDeinit sets the hook run when an instance is released. The hook must
// be one of
//
//	func(T)
//	func(T) error
//	func(T, *sapling.Provider)
//	func(T, *sapling.Provider) error
//
// Without a hook, instances implementing io.Closer are closed.
func WithDeinit(fn any) Option {
	return func(r *registration) {
		r.deinit = fn
	}
}

// WithDependencies declares the constructor's dependencies explicitly, one
// per parameter and in parameter order. A zero [Dependency] is inferred from
// the parameter type.
//
//	reg.RegisterTransient(NewUserHandler, sapling.WithDependencies(
//		sapling.Generic("repository", reflect.TypeFor[User]()),
//		sapling.Dependency{},
//	))
func WithDependencies(deps ...Dependency) Option {
	return func(r *registration) {
		r.deps = deps
	}
}

type providerConfig struct {
	allocator Allocator
	logger    *zap.Logger
	eager     bool
}

// ProviderOption configures a provider created by [Registry.CreateProvider].
type ProviderOption func(*providerConfig)

// WithAllocator sets the allocator of the root provider. The default is
// [HeapAllocator].
func WithAllocator(a Allocator) ProviderOption {
	return func(c *providerConfig) {
		if a != nil {
			c.allocator = a
		}
	}
}

// WithLogger sets the logger used for lifecycle events and deinit failures.
// The default discards everything.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(c *providerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEagerSingletons builds every singleton registration while the provider
// is created, so constructor failures surface from CreateProvider instead of
// the first Resolve.
func WithEagerSingletons() ProviderOption {
	return func(c *providerConfig) {
		c.eager = true
	}
}

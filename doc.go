// Package sapling provides a reflection-based inversion-of-control container
// for Go with lifecycle-aware instancing and an ownership-tracking resolution
// tree.
//
// Register constructors with a [Registry], call [Registry.CreateProvider] to
// validate the dependency graph, then retrieve fully-assembled objects with
// [Resolve]. Every instance built during one resolution is recorded in a tree
// that mirrors the dependency graph, which lets transient subtrees be released
// early with [Unresolve] and rolled back when a constructor fails.
//
// # Quick Start
//
//	reg := sapling.NewRegistry()
//	reg.RegisterSingleton(NewLogger)
//	reg.RegisterTransient(NewDatabase)
//
//	p, err := reg.CreateProvider()
//	db, err := sapling.Resolve[*Database](p)
//	defer sapling.Unresolve(p, db)
//
// # Lifecycles
//
// [Singleton]: one shared instance per root [Provider]. Construction is
// serialized per service so concurrent first resolutions build exactly once.
//
// [Scoped]: one instance per [Scope]. Resolving a scoped service outside a
// scope fails with [ErrNoActiveScope].
//
// [Transient]: a fresh instance on every resolution. Transient instances are
// owned by the provider until they are released with [Unresolve] or the
// provider shuts down.
//
// A singleton may only depend on singletons, and a scoped service may not
// depend on transients. Both rules, together with cycle detection, are checked
// for the whole graph before any instance is built.
//
// # Multi-registration
//
// Factories registered with [Registry.RegisterWithFactory] live alongside the
// default registration of the same type and are resolved together:
//
//	reg.RegisterSingleton(NewConsoleSink)
//	reg.RegisterSingletonWithFactory(func() Sink { return NewFileSink("app.log") })
//
//	sinks, _ := sapling.ResolveSlice[Sink](p)
//
// A constructor parameter of an unnamed slice type ([]Sink) receives the same
// aggregate.
//
// # Generic services
//
// Templates registered with [Registry.RegisterGeneric] are materialized the
// first time a parameterization is requested:
//
//	reg.RegisterGeneric("repository", sapling.Transient, func(params []reflect.Type) (any, error) {
//		return repositoryConstructors[params[0]], nil
//	})
//
//	users, _ := sapling.ResolveGeneric[*Repository[User]](p, "repository", reflect.TypeFor[User]())
//
// # Injected capabilities
//
// Constructors may declare a parameter of type [Allocator] or *[Provider]
// (or [Resolver]) without registering it. Services resolved manually through
// an injected provider are not owned by the calling constructor: they are not
// rolled back when it fails and must be released on their own.
package sapling

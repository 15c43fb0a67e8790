package sapling

import "reflect"

// DependencyKind selects how a constructor parameter is resolved.
type DependencyKind int

const (
	// KindDirect resolves the default registration of the key.
	KindDirect DependencyKind = iota

	// KindGeneric materializes a generic template on first use and then
	// resolves it like a direct dependency.
	KindGeneric

	// KindAllocator injects the allocator of the resolving provider.
	KindAllocator

	// KindProvider injects the resolving provider itself.
	KindProvider

	// KindSlice resolves every registration of the key into one slice.
	KindSlice
)

// String returns the human-readable name of the kind.
func (k DependencyKind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindGeneric:
		return "generic"
	case KindAllocator:
		return "allocator"
	case KindProvider:
		return "provider"
	case KindSlice:
		return "slice"
	default:
		return "unknown"
	}
}

func (k DependencyKind) reserved() bool {
	return k == KindAllocator || k == KindProvider
}

// Dependency describes one constructor parameter. The zero Dependency asks
// the registry to infer the dependency from the parameter type.
type Dependency struct {
	Key  Key
	Kind DependencyKind

	generic *genericRef
}

type genericRef struct {
	base   string
	params []reflect.Type
}

// Dep declares a direct dependency on T.
func Dep[T any]() Dependency {
	return Dependency{Key: KeyOf[T](), Kind: KindDirect}
}

// SliceOf declares a dependency on every registration of T.
func SliceOf[T any]() Dependency {
	return Dependency{Key: KeyOf[T](), Kind: KindSlice}
}

// Generic declares a dependency on the generic template base instantiated
// with params.
func Generic(base string, params ...reflect.Type) Dependency {
	return Dependency{
		Key:     GenericKey(base, params...),
		Kind:    KindGeneric,
		generic: &genericRef{base: base, params: params},
	}
}

func (d Dependency) String() string {
	if d.Kind == KindDirect {
		return d.Key.String()
	}
	return d.Kind.String() + "(" + d.Key.String() + ")"
}

var (
	errorType     = reflect.TypeFor[error]()
	allocatorType = reflect.TypeFor[Allocator]()
	providerType  = reflect.TypeFor[*Provider]()
	resolverType  = reflect.TypeFor[Resolver]()
)

// inferDependency derives a dependency from a constructor parameter type.
// Unnamed slice types aggregate their element's registrations; named slice
// types are ordinary services.
func inferDependency(t reflect.Type) Dependency {
	switch {
	case t == allocatorType:
		return Dependency{Key: KeyFor(t), Kind: KindAllocator}
	case t == providerType || t == resolverType:
		return Dependency{Key: KeyFor(t), Kind: KindProvider}
	case t.Kind() == reflect.Slice && t.Name() == "":
		return Dependency{Key: KeyFor(t.Elem()), Kind: KindSlice}
	default:
		return Dependency{Key: KeyFor(t), Kind: KindDirect}
	}
}

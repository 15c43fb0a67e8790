package sapling

import "github.com/pkg/errors"

var (
	// ErrServiceNotFound is returned when no registration exists for the
	// requested key, name or generic template.
	ErrServiceNotFound = errors.New("service not found")

	// ErrCircularDependency is returned when a dependency chain revisits a
	// key. The error message includes the full chain.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrLifecycle is returned when a singleton depends on a non-singleton or
	// a scoped service depends on a transient.
	ErrLifecycle = errors.New("lifecycle mismatch")

	// ErrUnresolveNotTransient is returned when Unresolve is called for a
	// service that has no transient registration.
	ErrUnresolveNotTransient = errors.New("unresolve requires a transient service")

	// ErrNoResolveContext is returned when Unresolve cannot find an active
	// resolution that produced the given instance.
	ErrNoResolveContext = errors.New("no resolve context found")

	// ErrNoActiveScope is returned when a scoped service is resolved outside
	// of a Scope.
	ErrNoActiveScope = errors.New("no active scope")

	// ErrDuplicateService is returned when a default registration, or a named
	// factory, is registered twice for the same key.
	ErrDuplicateService = errors.New("duplicate service")

	// ErrInvalidConstructor is returned when a constructor, factory or deinit
	// hook has an unsupported signature.
	ErrInvalidConstructor = errors.New("invalid constructor")

	// ErrAlreadyBuilt is returned when Register is called after the registry
	// has produced a provider.
	ErrAlreadyBuilt = errors.New("registry already built")

	// ErrAlreadyShutdown is returned when a provider is used or shut down
	// after Shutdown.
	ErrAlreadyShutdown = errors.New("provider already shut down")
)

package sapling

import (
	"context"
	"reflect"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Resolver is the resolution surface shared by [Provider] and [Scope].
// Prefer the generic helpers ([Resolve], [ResolveSlice], [Unresolve], ...)
// over calling these methods directly.
type Resolver interface {
	// Resolve returns the instance registered for key, building it and its
	// dependencies according to their lifecycles.
	Resolve(key Key) (reflect.Value, error)

	// ResolveNamed returns the instance of the factory registered for key
	// under name.
	ResolveNamed(key Key, name string) (reflect.Value, error)

	// ResolveSlice returns a slice holding one instance of every
	// registration of key, the default registration first.
	ResolveSlice(key Key) (reflect.Value, error)

	// ResolveGeneric materializes the generic template base for params if
	// needed and returns its instance.
	ResolveGeneric(base string, params ...reflect.Type) (reflect.Value, error)

	// Unresolve releases a transient instance and every transient instance
	// it pulled in while it was built.
	Unresolve(key Key, instance reflect.Value) error

	// UnresolveSlice releases a slice returned by ResolveSlice.
	UnresolveSlice(key Key, slice reflect.Value) error
}

// Provider resolves services from a validated [Registry]. A root provider
// owns the singleton instances; scopes created from it share those and own
// their scoped instances. Every provider owns the transient instances it
// resolved until they are released with Unresolve or Shutdown.
type Provider struct {
	registry *Registry
	alloc    Allocator
	logger   *zap.Logger

	// root is nil on the root provider itself.
	root       *Provider
	singletons *store
	locks      *keyLocks

	// scope and scoped are set on scope providers only.
	scope  *Scope
	scoped *store

	pool *pool

	closed atomic.Bool
}

var _ Resolver = (*Provider)(nil)

func newRootProvider(r *Registry, cfg providerConfig) *Provider {
	return &Provider{
		registry:   r,
		alloc:      cfg.allocator,
		logger:     cfg.logger,
		singletons: newStore(),
		locks:      &keyLocks{},
		pool:       newPool(),
	}
}

func (p *Provider) rootProvider() *Provider {
	if p.root == nil {
		return p
	}
	return p.root
}

// Allocator returns the allocator that boxes this provider's instances.
func (p *Provider) Allocator() Allocator {
	return p.alloc
}

// PoolStats reports the state of this provider's transient pool.
func (p *Provider) PoolStats() PoolStats {
	return p.pool.stats()
}

// Shutdown releases every transient instance still owned by the provider,
// newest first, then its scoped instances and, on the root provider, its
// singletons, each in reverse creation order. Deinit failures are logged and
// joined into the returned error; they do not stop the remaining teardown.
// If ctx expires, the remaining instances are skipped and the context error
// is included in the result.
//
// Shutdown is safe to call multiple times; subsequent calls return
// [ErrAlreadyShutdown]. Shutting down a scope never touches the singletons
// it shares with the root.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrAlreadyShutdown
	}

	var err error

	active := p.pool.drain()
	for i := len(active) - 1; i >= 0; i-- {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return multierr.Append(err, ctxErr)
		}
		err = multierr.Append(err, p.release(active[i]))
	}

	if p.scoped != nil {
		if stopErr := p.disposeAll(ctx, p.scoped.drain()); stopErr != nil {
			err = multierr.Append(err, stopErr)
		}
	}
	if p.root == nil {
		if stopErr := p.disposeAll(ctx, p.singletons.drain()); stopErr != nil {
			err = multierr.Append(err, stopErr)
		}
	}

	p.logger.Debug("provider shut down", zap.Int("errors", len(multierr.Errors(err))))
	return err
}

func (p *Provider) disposeAll(ctx context.Context, nodes []*node) error {
	var err error
	for i := len(nodes) - 1; i >= 0; i-- {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return multierr.Append(err, ctxErr)
		}
		err = multierr.Append(err, p.release(nodes[i]))
	}
	return err
}

// release disposes n and then every transient or multi node beneath it,
// dependents before their dependencies, and returns pooled slots to their
// pool. Singleton and scoped descendants belong to their stores and are left
// alone.
func (p *Provider) release(n *node) error {
	err := n.owner.dispose(n)
	for _, child := range n.children {
		if child.transient() {
			err = multierr.Append(err, p.release(child))
		}
	}
	if n.pooled() {
		n.owner.pool.recycle(n)
	}
	return err
}

// rollback releases a node whose build failed together with whatever it
// already owns.
func (p *Provider) rollback(n *node) {
	if err := p.release(n); err != nil {
		p.logger.Warn("rollback incomplete", zap.Stringer("key", n.key), zap.Error(err))
	}
}

// dispose runs the deinit hook of a built node and frees its cell. Multi
// nodes only free their backing slice; the elements belong to their own
// lifecycles.
func (p *Provider) dispose(n *node) error {
	if !n.box.IsValid() {
		return nil
	}

	var err error
	if !n.multi {
		if hookErr := n.desc.release(n.box.Elem(), p); hookErr != nil {
			p.logger.Warn("deinit failed",
				zap.Stringer("key", n.key),
				zap.Stringer("lifecycle", n.desc.lifecycle),
				zap.Error(hookErr),
			)
			err = errors.Wrapf(hookErr, "deinit %s", n.key)
		}
	}

	p.alloc.Free(n.box)
	n.box = reflect.Value{}
	return err
}

// buildSingletons resolves every singleton registration in registration
// order.
func (p *Provider) buildSingletons() error {
	p.registry.mu.RLock()
	var singletons []*descriptor
	for _, key := range p.registry.order {
		for _, d := range p.registry.registrations(key) {
			if d.lifecycle == Singleton {
				singletons = append(singletons, d)
			}
		}
	}
	p.registry.mu.RUnlock()

	for _, d := range singletons {
		if _, err := p.buildSimple(nil, d); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) live() error {
	if p.closed.Load() {
		return ErrAlreadyShutdown
	}
	return nil
}

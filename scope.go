package sapling

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scope is a child provider with its own scoped instances and its own
// transient pool. Singletons are shared with the root provider the scope was
// created from. A Scope is used like a [Provider]:
//
//	scope := p.InitScope()
//	defer scope.Close()
//
//	req, err := sapling.Resolve[*RequestContext](scope)
type Scope struct {
	*Provider
	id uuid.UUID
}

// InitScope creates a scope that shares this provider's allocator. Scopes
// created from a scope hang off the same root and are independent of each
// other.
func (p *Provider) InitScope() *Scope {
	return p.InitScopeWithAllocator(p.alloc)
}

// InitScopeWithAllocator creates a scope whose scoped and transient instances
// are boxed by a. Singletons keep using the root provider's allocator.
func (p *Provider) InitScopeWithAllocator(a Allocator) *Scope {
	if a == nil {
		a = p.alloc
	}

	root := p.rootProvider()
	id := uuid.New()
	s := &Scope{id: id}
	s.Provider = &Provider{
		registry:   root.registry,
		alloc:      a,
		logger:     root.logger.With(zap.Stringer("scope", id)),
		root:       root,
		singletons: root.singletons,
		locks:      root.locks,
		scope:      s,
		scoped:     newStore(),
		pool:       newPool(),
	}

	s.logger.Debug("scope created")
	return s
}

// Scope returns the scope p belongs to, or nil for a root provider.
// Constructors that take a *Provider use it to tell which scope they are
// built for.
func (p *Provider) Scope() *Scope {
	return p.scope
}

// ID returns the unique id of the scope. It tags every log entry the scope
// writes.
func (s *Scope) ID() uuid.UUID {
	return s.id
}

// Close shuts the scope down without a deadline. See [Provider.Shutdown].
func (s *Scope) Close() error {
	return s.Shutdown(context.Background())
}

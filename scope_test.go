package sapling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestScope(t *testing.T) {
	t.Run("scoped instance is shared within a scope", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, newTestConfig, Scoped)
		p := mustProvider(t, r)

		s := p.InitScope()
		defer s.Close()

		c1, err := Resolve[*testConfig](s)
		require.NoError(t, err)
		c2, _ := Resolve[*testConfig](s)
		assert.Same(t, c1, c2)
	})

	t.Run("scopes do not share scoped instances", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, newTestConfig, Scoped)
		p := mustProvider(t, r)

		s1, s2 := p.InitScope(), p.InitScope()
		defer s1.Close()
		defer s2.Close()

		c1, _ := Resolve[*testConfig](s1)
		c2, _ := Resolve[*testConfig](s2)
		assert.NotSame(t, c1, c2)
		assert.NotEqual(t, s1.ID(), s2.ID())
	})

	t.Run("singletons are shared with the root", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, newTestLogger, Singleton)
		mustRegister(t, r, newTestOrderService, Scoped)
		p := mustProvider(t, r)

		root, _ := Resolve[*testLogger](p)

		s := p.InitScope()
		defer s.Close()
		o, err := Resolve[*testOrderService](s)
		require.NoError(t, err)
		assert.Same(t, root, o.Logger)
	})

	t.Run("scoped outside a scope", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, newTestConfig, Scoped)
		p := mustProvider(t, r)

		_, err := Resolve[*testConfig](p)
		assert.ErrorIs(t, err, ErrNoActiveScope)
	})

	t.Run("transient pulling a scoped dependency outside a scope", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, newTestLogger, Scoped)
		mustRegister(t, r, newTestOrderService, Transient)
		p := mustProvider(t, r)

		_, err := Resolve[*testOrderService](p)
		assert.ErrorIs(t, err, ErrNoActiveScope)
		assert.Zero(t, p.PoolStats().Active)
	})

	t.Run("close disposes scoped and transient instances only", func(t *testing.T) {
		var log closeLog
		r := NewRegistry()
		registerChain(t, r, &log, Transient, Scoped, Singleton)
		p := mustProvider(t, r)

		s := p.InitScope()
		_, err := Resolve[*testHandler](s)
		require.NoError(t, err)

		require.NoError(t, s.Close())
		assert.Equal(t, []string{"handler", "repo"}, log.all())

		require.NoError(t, p.Shutdown(t.Context()))
		assert.Equal(t, []string{"handler", "repo", "conn"}, log.all())
	})

	t.Run("closed scope rejects use", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, newTestConfig, Scoped)
		p := mustProvider(t, r)

		s := p.InitScope()
		require.NoError(t, s.Close())

		_, err := Resolve[*testConfig](s)
		assert.ErrorIs(t, err, ErrAlreadyShutdown)
		assert.ErrorIs(t, s.Close(), ErrAlreadyShutdown)
	})

	t.Run("scope allocator boxes scoped and transient instances", func(t *testing.T) {
		rootAlloc := NewCountingAllocator(nil)
		scopeAlloc := NewCountingAllocator(nil)
		r := NewRegistry()
		mustRegister(t, r, newTestLogger, Singleton)
		mustRegister(t, r, newTestConfig, Scoped)
		mustRegister(t, r, newTestOrderService, Transient)
		p := mustProvider(t, r, WithAllocator(rootAlloc))

		s := p.InitScopeWithAllocator(scopeAlloc)
		_, err := Resolve[*testOrderService](s)
		require.NoError(t, err)
		_, err = Resolve[*testConfig](s)
		require.NoError(t, err)

		assert.EqualValues(t, 1, rootAlloc.Allocs())
		assert.EqualValues(t, 2, scopeAlloc.Allocs())

		require.NoError(t, s.Close())
		assert.Zero(t, scopeAlloc.Live())
		assert.EqualValues(t, 1, rootAlloc.Live())
	})

	t.Run("constructors see their scope", func(t *testing.T) {
		var seen *Scope
		r := NewRegistry()
		mustRegister(t, r, func(p *Provider) *testConfig {
			seen = p.Scope()
			return &testConfig{}
		}, Scoped)
		p := mustProvider(t, r)

		s := p.InitScope()
		defer s.Close()
		_, err := Resolve[*testConfig](s)
		require.NoError(t, err)
		assert.Same(t, s, seen)
	})

	t.Run("scopes from scopes hang off the root", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, newTestLogger, Singleton)
		p := mustProvider(t, r)

		outer := p.InitScope()
		inner := outer.InitScope()
		defer inner.Close()
		require.NoError(t, outer.Close())

		l, err := Resolve[*testLogger](inner)
		require.NoError(t, err)
		root, _ := Resolve[*testLogger](p)
		assert.Same(t, root, l)
	})

	t.Run("log entries carry the scope id", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		r := NewRegistry()
		mustRegister(t, r, newTestConfig, Scoped)
		p := mustProvider(t, r, WithLogger(zap.New(core)))

		s := p.InitScope()
		defer s.Close()
		_, err := Resolve[*testConfig](s)
		require.NoError(t, err)

		entries := logs.FilterMessage("scoped constructed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, s.ID().String(), entries[0].ContextMap()["scope"])
	})
}

package sapling

import (
	"reflect"
	"slices"
	"sync"
)

// node is one resolved instance and the subtree it pulled in while it was
// built. Singleton and scoped nodes are owned by their store; transient and
// multi nodes are slots of a provider's pool.
type node struct {
	key  Key
	desc *descriptor

	// box is the allocator cell holding the instance, or the backing slice
	// of a multi node. It is invalid until the build succeeds.
	box   reflect.Value
	ident uintptr
	multi bool

	children []*node

	owner *Provider
	slot  int
}

func (n *node) value() reflect.Value {
	if n.multi {
		return n.box
	}
	return n.box.Elem()
}

func (n *node) pooled() bool {
	return n.slot >= 0
}

// transient reports whether n is released together with its parent.
func (n *node) transient() bool {
	return n.multi || n.desc.lifecycle == Transient
}

func (n *node) reset() {
	clear(n.children)
	*n = node{children: n.children[:0], slot: n.slot}
}

// PoolStats describes a provider's transient pool.
type PoolStats struct {
	// Slots is the number of slots ever allocated.
	Slots int
	// Active is the number of top-level transient resolutions not yet
	// released.
	Active int
	// Available is the number of free slots ready for reuse.
	Available int
}

// pool is an arena of index-addressed node slots with a free-list. Active
// holds the top-level transient and multi nodes in resolution order.
type pool struct {
	mu     sync.Mutex
	slots  []*node
	free   []int
	active []*node
}

func newPool() *pool {
	return &pool{}
}

func (p *pool) acquire(owner *Provider) *node {
	p.mu.Lock()
	defer p.mu.Unlock()

	var n *node
	if last := len(p.free) - 1; last >= 0 {
		n = p.slots[p.free[last]]
		p.free = p.free[:last]
	} else {
		n = &node{slot: len(p.slots)}
		p.slots = append(p.slots, n)
	}
	n.owner = owner
	return n
}

func (p *pool) recycle(n *node) {
	n.reset()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, n.slot)
}

func (p *pool) activate(n *node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = append(p.active, n)
}

// take removes and returns the most recent active node matching fn.
func (p *pool) take(fn func(*node) bool) *node {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(p.active) - 1; i >= 0; i-- {
		if n := p.active[i]; fn(n) {
			p.active = slices.Delete(p.active, i, i+1)
			return n
		}
	}
	return nil
}

func (p *pool) drain() []*node {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := p.active
	p.active = nil
	return active
}

func (p *pool) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Slots: len(p.slots), Active: len(p.active), Available: len(p.free)}
}

// store holds singleton or scoped nodes by registration id. Reads are locked
// as well: a Go map must not be read while it is written.
type store struct {
	mu    sync.RWMutex
	nodes map[string]*node
	order []*node
}

func newStore() *store {
	return &store{nodes: make(map[string]*node)}
}

func (s *store) get(id string) (*node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

func (s *store) put(id string, n *node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[id] = n
	s.order = append(s.order, n)
}

// drain empties the store and returns its nodes in creation order.
func (s *store) drain() []*node {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.order
	s.nodes = make(map[string]*node)
	s.order = nil
	return order
}

// keyLocks hands out one mutex per registration id, created on first use.
type keyLocks struct {
	m sync.Map
}

func (l *keyLocks) get(id string) *sync.Mutex {
	if mu, ok := l.m.Load(id); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := l.m.LoadOrStore(id, new(sync.Mutex))
	return mu.(*sync.Mutex)
}

// frame is one level of the in-flight resolution chain.
type frame struct {
	node *node
	up   *frame
}

func (f *frame) push(n *node) *frame {
	return &frame{node: n, up: f}
}

// link records child as owned by the frame's node.
func (f *frame) link(child *node) {
	if f != nil {
		f.node.children = append(f.node.children, child)
	}
}

// chain returns the keys from the outermost frame to f, ending with key,
// when key is already being resolved.
func (f *frame) chain(key Key) ([]Key, bool) {
	found := false
	for cur := f; cur != nil && !found; cur = cur.up {
		found = !cur.node.multi && cur.node.key == key
	}
	if !found {
		return nil, false
	}

	var keys []Key
	for cur := f; cur != nil; cur = cur.up {
		if !cur.node.multi {
			keys = append(keys, cur.node.key)
		}
	}
	slices.Reverse(keys)
	return append(keys, key), true
}

// parent returns the registration of the nearest non-multi frame.
func (f *frame) parent() *descriptor {
	for cur := f; cur != nil; cur = cur.up {
		if !cur.node.multi {
			return cur.node.desc
		}
	}
	return nil
}

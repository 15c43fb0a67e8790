package sapling

import (
	"reflect"
	"sync/atomic"
)

// Allocator owns the cells that hold resolved instances. A provider boxes
// every instance it builds in a cell from its allocator and frees the cell
// when the instance is released.
//
// Constructors may declare an Allocator parameter to receive the allocator
// of the resolving provider or scope.
type Allocator interface {
	// Alloc returns a pointer to a new zero value of type t.
	Alloc(t reflect.Type) reflect.Value

	// AllocSlice returns a new slice of n zero values of type elem.
	AllocSlice(elem reflect.Type, n int) reflect.Value

	// Free releases a value previously returned by Alloc or AllocSlice.
	Free(v reflect.Value)
}

type heapAllocator struct{}

// HeapAllocator returns the default allocator. It allocates on the Go heap
// and zeroes cells on Free so released instances are not kept reachable.
func HeapAllocator() Allocator {
	return heapAllocator{}
}

func (heapAllocator) Alloc(t reflect.Type) reflect.Value {
	return reflect.New(t)
}

func (heapAllocator) AllocSlice(elem reflect.Type, n int) reflect.Value {
	return reflect.MakeSlice(reflect.SliceOf(elem), n, n)
}

func (heapAllocator) Free(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			v.Elem().SetZero()
		}
	case reflect.Slice:
		v.Clear()
	}
}

// CountingAllocator wraps another allocator and counts allocations and
// frees. It is safe for concurrent use.
type CountingAllocator struct {
	inner  Allocator
	allocs atomic.Int64
	frees  atomic.Int64
}

// NewCountingAllocator returns a CountingAllocator backed by inner, or by
// [HeapAllocator] when inner is nil.
func NewCountingAllocator(inner Allocator) *CountingAllocator {
	if inner == nil {
		inner = HeapAllocator()
	}
	return &CountingAllocator{inner: inner}
}

func (a *CountingAllocator) Alloc(t reflect.Type) reflect.Value {
	a.allocs.Add(1)
	return a.inner.Alloc(t)
}

func (a *CountingAllocator) AllocSlice(elem reflect.Type, n int) reflect.Value {
	a.allocs.Add(1)
	return a.inner.AllocSlice(elem, n)
}

func (a *CountingAllocator) Free(v reflect.Value) {
	a.frees.Add(1)
	a.inner.Free(v)
}

// Allocs returns the number of allocations made so far.
func (a *CountingAllocator) Allocs() int64 { return a.allocs.Load() }

// Frees returns the number of frees made so far.
func (a *CountingAllocator) Frees() int64 { return a.frees.Load() }

// Live returns the number of allocations not yet freed.
func (a *CountingAllocator) Live() int64 { return a.allocs.Load() - a.frees.Load() }

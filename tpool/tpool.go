// Package tpool provides a typed sync.Pool.
package tpool

import "sync"

// Pool is a typed pool of reusable values.
// The zero value is ready to use and makes zero values of T when empty.
type Pool[T any] struct {
	p sync.Pool
	// New makes a value when the pool is empty. It may be nil.
	New func() T
}

// Get takes a value from the pool, making a new one if it is empty.
func (p *Pool[T]) Get() T {
	if v, ok := p.p.Get().(T); ok {
		return v
	}
	if p.New != nil {
		return p.New()
	}
	var zero T
	return zero
}

// Put returns a value to the pool.
func (p *Pool[T]) Put(v T) {
	p.p.Put(v)
}

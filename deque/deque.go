// Package deque provides a slice-backed double-ended queue.
package deque

// Deque is a slice-backed double-ended queue.
// Methods return the updated deque in the manner of append.
type Deque[Elem any] struct {
	el []Elem
	// left is the position of the leftmost valid element in el.
	// left >= len(el) implies the deque is empty.
	left int
}

// Len returns the number of elements in the deque.
func (d Deque[Elem]) Len() int {
	return len(d.el) - d.left
}

// Append adds elements to the end of the deque.
func (d Deque[Elem]) Append(ee ...Elem) Deque[Elem] {
	d = d.compact()
	d.el = append(d.el, ee...)
	return d
}

// DropFront removes n elements from the front of the deque.
// If n is negative, there is no change.
// If n is larger than the deque's size, the result is empty.
func (d Deque[Elem]) DropFront(n int) Deque[Elem] {
	if n <= 0 {
		return d
	}
	if n >= d.Len() {
		return d.Reset()
	}
	var zero Elem
	for i := d.left; i < d.left+n; i++ {
		// Release references held by dropped elements.
		d.el[i] = zero
	}
	d.left += n
	return d
}

// Limit drops elements from the front until at most n remain.
func (d Deque[Elem]) Limit(n int) Deque[Elem] {
	return d.DropFront(d.Len() - n)
}

// DropEndWhile removes elements from the end of the deque until the predicate
// returns false.
func (d Deque[Elem]) DropEndWhile(pred func(Elem) bool) Deque[Elem] {
	for len(d.el) > d.left {
		if !pred(d.el[len(d.el)-1]) {
			break
		}
		d.el = d.el[:len(d.el)-1]
	}
	return d
}

// Reset removes all elements from the deque.
func (d Deque[Elem]) Reset() Deque[Elem] {
	clear(d.el)
	d.el = d.el[:0]
	d.left = 0
	return d
}

// Slice returns a view into the deque's memory, oldest element first.
func (d Deque[Elem]) Slice() []Elem {
	return d.el[d.left:]
}

// compact slides the live elements to the start of the backing array once
// more than half of it is dead space.
func (d Deque[Elem]) compact() Deque[Elem] {
	if d.left == 0 || d.left < len(d.el)/2 {
		return d
	}
	n := copy(d.el, d.el[d.left:])
	clear(d.el[n:])
	d.el = d.el[:n]
	d.left = 0
	return d
}

package ring

import (
	"github.com/emirpasic/gods/trees/redblacktree"

	"tokenring/internal/token"
)

// Iterator walks ring bindings.
type Iterator interface {
	// Next advances the iterator and returns true if another binding was found.
	Next() bool
	// At returns the binding at the current position.
	At() Binding
	// Err returns the error that stopped the walk, if any.
	Err() error
	// Reset restarts the walk from its first binding.
	Reset()
}

// ReplicasStartingAt returns a clockwise walk beginning at the first token
// greater than or equal to t. Every binding is visited at most once; the walk
// ends after one lap. On an empty ring the walk yields nothing and reports
// ErrEmptyRing.
func (r *Ring) ReplicasStartingAt(t token.Token) Iterator {
	if r.tree.Empty() {
		return &errIterator{err: ErrEmptyRing}
	}
	start, found := r.tree.Ceiling(t)
	if !found {
		start = r.tree.Left()
	}
	return &walk{ring: r, start: start}
}

type walk struct {
	ring    *Ring
	start   *redblacktree.Node
	cur     *redblacktree.Node
	visited int
}

func (w *walk) Next() bool {
	if w.visited == w.ring.tree.Size() {
		return false
	}
	if w.cur == nil {
		w.cur = w.start
	} else if w.cur = next(w.cur); w.cur == nil {
		w.cur = w.ring.tree.Left()
	}
	w.visited++
	return true
}

func (w *walk) At() Binding {
	if w.cur == nil {
		return Binding{}
	}
	return binding(w.cur)
}

func (w *walk) Err() error { return nil }

func (w *walk) Reset() {
	w.cur = nil
	w.visited = 0
}

type errIterator struct {
	err error
}

func (*errIterator) Next() bool { return false }

func (*errIterator) At() Binding { return Binding{} }

func (i *errIterator) Err() error { return i.err }

func (*errIterator) Reset() {}

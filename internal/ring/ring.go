package ring

import (
	"net/netip"
	"slices"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/pkg/errors"

	"tokenring/internal/token"
)

var (
	// ErrDuplicateToken is returned when a token is already bound to a node.
	ErrDuplicateToken = errors.New("token already bound")
	// ErrEmptyRing is returned by lookups against a ring without tokens.
	ErrEmptyRing = errors.New("ring has no tokens")
)

// Node identifies a cluster member.
type Node = netip.AddrPort

// Binding is a token together with the node that owns it.
type Binding struct {
	Token token.Token
	Node  Node
}

// Ring is an ordered mapping from tokens to nodes. It is not safe for
// concurrent mutation.
type Ring struct {
	tree  *redblacktree.Tree
	nodes map[Node][]token.Token // node -> tokens in insertion order
}

// NewRing creates an empty ring.
func NewRing() *Ring {
	return &Ring{
		tree:  redblacktree.NewWith(compareTokens),
		nodes: make(map[Node][]token.Token),
	}
}

func compareTokens(a, b interface{}) int {
	return a.(token.Token).Compare(b.(token.Token))
}

// Insert binds t to node.
func (r *Ring) Insert(t token.Token, node Node) error {
	if owner, found := r.tree.Get(t); found {
		return errors.Wrapf(ErrDuplicateToken, "token %s owned by %s", t, owner.(Node))
	}
	r.tree.Put(t, node)
	r.nodes[node] = append(r.nodes[node], t)
	return nil
}

// Len returns the number of bound tokens.
func (r *Ring) Len() int {
	return r.tree.Size()
}

// NodeCount returns the number of distinct nodes owning tokens.
func (r *Ring) NodeCount() int {
	return len(r.nodes)
}

// Contains reports whether t is bound.
func (r *Ring) Contains(t token.Token) bool {
	_, found := r.tree.Get(t)
	return found
}

// Owner returns the node bound to t.
func (r *Ring) Owner(t token.Token) (Node, bool) {
	v, found := r.tree.Get(t)
	if !found {
		return Node{}, false
	}
	return v.(Node), true
}

// Successor returns the first bound token strictly after t, wrapping to the
// smallest token past the end of the ring.
func (r *Ring) Successor(t token.Token) (token.Token, error) {
	if r.tree.Empty() {
		return nil, ErrEmptyRing
	}
	n, found := r.tree.Ceiling(t)
	if found && n.Key.(token.Token).Compare(t) == 0 {
		n = next(n)
	}
	if n == nil {
		n = r.tree.Left()
	}
	return n.Key.(token.Token), nil
}

// Predecessor returns the last bound token strictly before t, wrapping to the
// largest token before the start of the ring.
func (r *Ring) Predecessor(t token.Token) (token.Token, error) {
	if r.tree.Empty() {
		return nil, ErrEmptyRing
	}
	n, found := r.tree.Floor(t)
	if found && n.Key.(token.Token).Compare(t) == 0 {
		n = prev(n)
	}
	if n == nil {
		n = r.tree.Right()
	}
	return n.Key.(token.Token), nil
}

// Tokens returns all bound tokens in ring order.
func (r *Ring) Tokens() []token.Token {
	tokens := make([]token.Token, 0, r.tree.Size())
	for n := r.tree.Left(); n != nil; n = next(n) {
		tokens = append(tokens, n.Key.(token.Token))
	}
	return tokens
}

// Bindings returns all bindings in ring order.
func (r *Ring) Bindings() []Binding {
	bindings := make([]Binding, 0, r.tree.Size())
	for n := r.tree.Left(); n != nil; n = next(n) {
		bindings = append(bindings, binding(n))
	}
	return bindings
}

// TokensOf returns the tokens bound to node in ring order.
func (r *Ring) TokensOf(node Node) []token.Token {
	tokens := slices.Clone(r.nodes[node])
	slices.SortFunc(tokens, func(a, b token.Token) int { return a.Compare(b) })
	return tokens
}

// Nodes returns the distinct nodes owning tokens, sorted by address.
func (r *Ring) Nodes() []Node {
	nodes := make([]Node, 0, len(r.nodes))
	for node := range r.nodes {
		nodes = append(nodes, node)
	}
	slices.SortFunc(nodes, func(a, b Node) int { return a.Compare(b) })
	return nodes
}

// Clone returns an independent copy of the ring.
func (r *Ring) Clone() *Ring {
	c := NewRing()
	for n := r.tree.Left(); n != nil; n = next(n) {
		c.tree.Put(n.Key, n.Value)
	}
	for node, tokens := range r.nodes {
		c.nodes[node] = slices.Clone(tokens)
	}
	return c
}

func binding(n *redblacktree.Node) Binding {
	return Binding{Token: n.Key.(token.Token), Node: n.Value.(Node)}
}

// next returns the in-order successor of n, or nil at the end of the tree.
func next(n *redblacktree.Node) *redblacktree.Node {
	if n.Right != nil {
		n = n.Right
		for n.Left != nil {
			n = n.Left
		}
		return n
	}
	p := n.Parent
	for p != nil && n == p.Right {
		n, p = p, p.Parent
	}
	return p
}

// prev returns the in-order predecessor of n, or nil at the start of the tree.
func prev(n *redblacktree.Node) *redblacktree.Node {
	if n.Left != nil {
		n = n.Left
		for n.Right != nil {
			n = n.Right
		}
		return n
	}
	p := n.Parent
	for p != nil && n == p.Left {
		n, p = p, p.Parent
	}
	return p
}

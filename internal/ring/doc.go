// Package ring implements the token ring: an ordered set of token to node
// bindings traversed clockwise. It supports ordered insertion, neighbour
// lookup with wrap-around, and lazy clockwise walks used to select replica
// preference lists.
package ring

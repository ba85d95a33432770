// Package allocator chooses ring positions for a node joining the ring.
//
// Tokens are picked one at a time. Each candidate splits one of the largest
// arcs of the ring and is scored by the spread of replicated ownership among
// the nodes of the joining node's rack, as computed by the replication
// strategy. The lowest spread wins. Allocation is deterministic for a given
// seed and ring.
package allocator

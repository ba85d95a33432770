// Package replication computes replica placement on the token ring.
//
// A Strategy walks the ring clockwise from a token and picks replicas for
// every datacenter independently, honouring the datacenter's replication
// factor and spreading replicas over as many racks as the datacenter has
// before placing a second replica in any rack. Datacenters listed as excluded
// receive no replicas.
//
// The same walk drives ownership statistics, which the token allocator uses
// to judge how balanced a rack is.
package replication

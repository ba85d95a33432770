// Package topology maps cluster nodes to their failure domains. A node lives
// in exactly one rack of exactly one datacenter. Placement and allocation only
// depend on the Topology interface; Index is the in-memory table owned by an
// allocation session and RackInferring derives locations from IPv4 addresses.
package topology

// Package quorum computes how many replica acknowledgements a consistency
// level requires under a replication configuration, and checks a set of
// acknowledging replicas against it.
package quorum

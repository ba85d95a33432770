// Package token defines ring positions and the partitioners that own their
// ordering. A partitioner decides how keys map to tokens, how new tokens are
// generated, and how much of the ring an arc between two tokens covers.
package token

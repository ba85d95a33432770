package token

import (
	"math/rand/v2"
	"sort"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownPartitioner is returned by Lookup for unregistered names.
	ErrUnknownPartitioner = errors.New("unknown partitioner")
	// ErrMalformedToken is returned when a token string cannot be parsed.
	ErrMalformedToken = errors.New("malformed token")
)

// Token is a position on the ring. Tokens produced by different partitioners
// must not be compared with each other.
type Token interface {
	// Compare returns a negative number, zero or a positive number when the
	// token sorts before, equal to or after other.
	Compare(other Token) int
	String() string
}

// Partitioner describes a token space: its ordering, how keys and random
// positions map into it, and how to measure arcs between tokens.
type Partitioner interface {
	Name() string
	MinimumToken() Token
	TokenForKey(key []byte) Token
	RandomToken(rnd *rand.Rand) Token
	// Midpoint returns the token halfway along the clockwise arc from left
	// to right. Equal arguments denote the whole ring. If no token fits
	// strictly inside the arc, left is returned.
	Midpoint(left, right Token) Token
	// Split returns the token at fraction ratio of the clockwise arc from
	// left to right. Ratios outside (0, 1), and arcs too narrow to split,
	// yield left.
	Split(left, right Token, ratio float64) Token
	// Size returns the fraction of the ring covered by the arc (left, right].
	// Equal arguments cover the whole ring.
	Size(left, right Token) float64
	ParseToken(s string) (Token, error)
}

var partitioners = map[string]Partitioner{
	HashPartitionerName:        HashPartitioner{},
	ByteOrderedPartitionerName: ByteOrderedPartitioner{},
}

// Lookup returns the partitioner registered under name.
func Lookup(name string) (Partitioner, error) {
	p, ok := partitioners[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPartitioner, "%q (known: %v)", name, Names())
	}
	return p, nil
}

// Names returns the registered partitioner names in sorted order.
func Names() []string {
	names := make([]string, 0, len(partitioners))
	for name := range partitioners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRand returns the deterministic generator used for token generation.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

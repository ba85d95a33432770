package token

import (
	"cmp"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// HashPartitionerName is the registry name of HashPartitioner.
const HashPartitionerName = "hash"

// LongToken is a position in the signed 64-bit hash space.
type LongToken int64

func (t LongToken) Compare(other Token) int {
	return cmp.Compare(t, other.(LongToken))
}

func (t LongToken) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// HashPartitioner spreads keys over [-2^63, 2^63) using xxhash. The minimum
// value is reserved as the ring origin and is never handed out as a token.
type HashPartitioner struct{}

func (HashPartitioner) Name() string { return HashPartitionerName }

func (HashPartitioner) MinimumToken() Token { return LongToken(math.MinInt64) }

func (HashPartitioner) TokenForKey(key []byte) Token {
	return normalizeLong(xxhash.Sum64(key))
}

func (HashPartitioner) RandomToken(rnd *rand.Rand) Token {
	return normalizeLong(rnd.Uint64())
}

func (HashPartitioner) Midpoint(left, right Token) Token {
	l, r := left.(LongToken), right.(LongToken)
	half := (uint64(r) - uint64(l)) / 2
	if l == r {
		half = 1 << 63
	}
	return LongToken(int64(uint64(l) + half))
}

func (HashPartitioner) Split(left, right Token, ratio float64) Token {
	l, r := left.(LongToken), right.(LongToken)
	if ratio <= 0 || ratio >= 1 {
		return l
	}
	width := math.Ldexp(1, 64)
	if l != r {
		width = float64(uint64(r) - uint64(l))
	}
	off := uint64(width * ratio)
	if l != r && off >= uint64(r)-uint64(l) {
		return l
	}
	return LongToken(int64(uint64(l) + off))
}

func (HashPartitioner) Size(left, right Token) float64 {
	l, r := left.(LongToken), right.(LongToken)
	if l == r {
		return 1
	}
	return math.Ldexp(float64(uint64(r)-uint64(l)), -64)
}

func (HashPartitioner) ParseToken(s string) (Token, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedToken, "%q: %v", s, err)
	}
	return LongToken(v), nil
}

func normalizeLong(v uint64) LongToken {
	t := LongToken(int64(v))
	if t == math.MinInt64 {
		return math.MaxInt64
	}
	return t
}

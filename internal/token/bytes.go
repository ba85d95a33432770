package token

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"math/big"
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"
)

// ByteOrderedPartitionerName is the registry name of ByteOrderedPartitioner.
const ByteOrderedPartitionerName = "byteordered"

const randomBytesTokenLen = 16

// BytesToken is a raw byte string ordered lexicographically. It prints as hex.
type BytesToken string

func (t BytesToken) Compare(other Token) int {
	return strings.Compare(string(t), string(other.(BytesToken)))
}

func (t BytesToken) String() string {
	return hex.EncodeToString([]byte(t))
}

// ByteOrderedPartitioner keeps keys in their natural byte order, so the key
// itself is the token.
type ByteOrderedPartitioner struct{}

func (ByteOrderedPartitioner) Name() string { return ByteOrderedPartitionerName }

func (ByteOrderedPartitioner) MinimumToken() Token { return BytesToken("") }

func (ByteOrderedPartitioner) TokenForKey(key []byte) Token {
	return BytesToken(key)
}

func (ByteOrderedPartitioner) RandomToken(rnd *rand.Rand) Token {
	b := make([]byte, randomBytesTokenLen)
	for i := 0; i < len(b); i += 8 {
		binary.BigEndian.PutUint64(b[i:], rnd.Uint64())
	}
	return BytesToken(b)
}

// Midpoint works on both tokens right-padded to a common width one byte
// longer than the longest of them, so distinct tokens always leave room for
// a midpoint.
func (p ByteOrderedPartitioner) Midpoint(left, right Token) Token {
	return p.Split(left, right, 0.5)
}

const splitPrecision = 32

func (ByteOrderedPartitioner) Split(left, right Token, ratio float64) Token {
	l, r := left.(BytesToken), right.(BytesToken)
	if ratio <= 0 || ratio >= 1 {
		return l
	}
	width := max(len(l), len(r)) + 1
	lv := new(big.Int).SetBytes(padRight(l, width))
	rv := new(big.Int).SetBytes(padRight(r, width))

	space := new(big.Int).Lsh(big.NewInt(1), uint(8*width))
	if l.Compare(r) >= 0 {
		rv.Add(rv, space)
	}
	off := new(big.Int).Sub(rv, lv)
	off.Mul(off, new(big.Int).SetUint64(uint64(math.Ldexp(ratio, splitPrecision))))
	off.Rsh(off, splitPrecision)
	if off.Sign() == 0 {
		return l
	}
	at := off.Add(off, lv)
	at.Mod(at, space)
	return BytesToken(at.FillBytes(make([]byte, width)))
}

// Size approximates the arc using the first eight bytes of each token.
func (ByteOrderedPartitioner) Size(left, right Token) float64 {
	l, r := left.(BytesToken), right.(BytesToken)
	if l == r {
		return 1
	}
	d := prefix64(r) - prefix64(l)
	if d == 0 && l.Compare(r) > 0 {
		return 1
	}
	return math.Ldexp(float64(d), -64)
}

func (ByteOrderedPartitioner) ParseToken(s string) (Token, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedToken, "%q: %v", s, err)
	}
	return BytesToken(b), nil
}

func padRight(t BytesToken, width int) []byte {
	b := make([]byte, width)
	copy(b, t)
	return b
}

func prefix64(t BytesToken) uint64 {
	return binary.BigEndian.Uint64(padRight(t, max(len(t), 8))[:8])
}

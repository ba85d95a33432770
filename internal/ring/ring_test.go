package ring

import (
	"net/netip"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenring/internal/token"
)

func node(port uint16) Node {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

func newTestRing(t *testing.T, tokens ...int64) *Ring {
	t.Helper()
	r := NewRing()
	for i, tok := range tokens {
		require.NoError(t, r.Insert(token.LongToken(tok), node(uint16(i%3))))
	}
	return r
}

func TestRing_Insert(t *testing.T) {
	r := NewRing()
	require.NoError(t, r.Insert(token.LongToken(10), node(1)))
	require.NoError(t, r.Insert(token.LongToken(-5), node(2)))
	require.NoError(t, r.Insert(token.LongToken(3), node(1)))

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 2, r.NodeCount())
	assert.Equal(t, []token.Token{token.LongToken(-5), token.LongToken(3), token.LongToken(10)}, r.Tokens())
	assert.Equal(t, []token.Token{token.LongToken(3), token.LongToken(10)}, r.TokensOf(node(1)))
	assert.Equal(t, []Node{node(1), node(2)}, r.Nodes())

	owner, ok := r.Owner(token.LongToken(-5))
	require.True(t, ok)
	assert.Equal(t, node(2), owner)
	_, ok = r.Owner(token.LongToken(4))
	assert.False(t, ok)
}

func TestRing_InsertDuplicate(t *testing.T) {
	r := NewRing()
	require.NoError(t, r.Insert(token.LongToken(10), node(1)))

	err := r.Insert(token.LongToken(10), node(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateToken))

	owner, _ := r.Owner(token.LongToken(10))
	assert.Equal(t, node(1), owner, "failed insert must not rebind the token")
	assert.Equal(t, 1, r.NodeCount())
}

func TestRing_SuccessorPredecessor(t *testing.T) {
	r := newTestRing(t, -100, 0, 100)

	tests := []struct {
		name      string
		at        int64
		successor int64
		pred      int64
	}{
		{name: "bound token", at: 0, successor: 100, pred: -100},
		{name: "between tokens", at: 50, successor: 100, pred: 0},
		{name: "max wraps", at: 100, successor: -100, pred: 0},
		{name: "min wraps", at: -100, successor: 0, pred: 100},
		{name: "past the end", at: 500, successor: -100, pred: 100},
		{name: "before the start", at: -500, successor: -100, pred: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Successor(token.LongToken(tt.at))
			require.NoError(t, err)
			assert.Equal(t, token.LongToken(tt.successor), s)

			p, err := r.Predecessor(token.LongToken(tt.at))
			require.NoError(t, err)
			assert.Equal(t, token.LongToken(tt.pred), p)
		})
	}
}

func TestRing_SingleToken(t *testing.T) {
	r := newTestRing(t, 42)
	s, err := r.Successor(token.LongToken(42))
	require.NoError(t, err)
	assert.Equal(t, token.LongToken(42), s)
	p, err := r.Predecessor(token.LongToken(42))
	require.NoError(t, err)
	assert.Equal(t, token.LongToken(42), p)
}

func TestRing_EmptyRing(t *testing.T) {
	r := NewRing()
	_, err := r.Successor(token.LongToken(1))
	assert.True(t, errors.Is(err, ErrEmptyRing))
	_, err = r.Predecessor(token.LongToken(1))
	assert.True(t, errors.Is(err, ErrEmptyRing))

	it := r.ReplicasStartingAt(token.LongToken(1))
	assert.False(t, it.Next())
	assert.True(t, errors.Is(it.Err(), ErrEmptyRing))
}

func TestRing_ReplicasStartingAt(t *testing.T) {
	r := newTestRing(t, -100, 0, 100, 200)

	collect := func(it Iterator) []token.Token {
		var out []token.Token
		for it.Next() {
			out = append(out, it.At().Token)
		}
		require.NoError(t, it.Err())
		return out
	}

	assert.Equal(t,
		[]token.Token{token.LongToken(100), token.LongToken(200), token.LongToken(-100), token.LongToken(0)},
		collect(r.ReplicasStartingAt(token.LongToken(50))))
	assert.Equal(t,
		[]token.Token{token.LongToken(0), token.LongToken(100), token.LongToken(200), token.LongToken(-100)},
		collect(r.ReplicasStartingAt(token.LongToken(0))))
	assert.Equal(t,
		[]token.Token{token.LongToken(-100), token.LongToken(0), token.LongToken(100), token.LongToken(200)},
		collect(r.ReplicasStartingAt(token.LongToken(201))))
}

func TestRing_WalkReset(t *testing.T) {
	r := newTestRing(t, 1, 2, 3)
	it := r.ReplicasStartingAt(token.LongToken(2))
	require.True(t, it.Next())
	require.True(t, it.Next())
	assert.Equal(t, token.LongToken(3), it.At().Token)

	it.Reset()
	require.True(t, it.Next())
	assert.Equal(t, token.LongToken(2), it.At().Token)
	assert.Equal(t, node(1), it.At().Node)
}

func TestRing_Clone(t *testing.T) {
	r := newTestRing(t, 1, 2, 3)
	c := r.Clone()
	require.NoError(t, c.Insert(token.LongToken(4), node(9)))

	assert.Equal(t, 3, r.Len())
	assert.False(t, r.Contains(token.LongToken(4)))
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, r.Bindings(), c.Bindings()[:3])
}

func TestRing_BytesTokens(t *testing.T) {
	r := NewRing()
	require.NoError(t, r.Insert(token.BytesToken("b"), node(1)))
	require.NoError(t, r.Insert(token.BytesToken("a"), node(2)))
	require.NoError(t, r.Insert(token.BytesToken("ab"), node(3)))

	s, err := r.Successor(token.BytesToken("a"))
	require.NoError(t, err)
	assert.Equal(t, token.BytesToken("ab"), s)

	it := r.ReplicasStartingAt(token.BytesToken("aa"))
	require.True(t, it.Next())
	assert.Equal(t, node(3), it.At().Node)
}

package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenring/internal/token"
)

func randomRing(t *testing.T, seed int64, n int) *Ring {
	t.Helper()
	p := token.HashPartitioner{}
	rnd := token.NewRand(seed)
	r := NewRing()
	for r.Len() < n {
		tok := p.RandomToken(rnd)
		if r.Contains(tok) {
			continue
		}
		require.NoError(t, r.Insert(tok, node(uint16(r.Len()%7))))
	}
	return r
}

// TestRing_Property_StrictlyIncreasing tests that bindings always come out sorted and distinct
func TestRing_Property_StrictlyIncreasing(t *testing.T) {
	for seed := int64(0); seed < 5; seed++ {
		tokens := randomRing(t, seed, 200).Tokens()
		for i := 1; i < len(tokens); i++ {
			assert.Negative(t, tokens[i-1].Compare(tokens[i]), "seed %d index %d", seed, i)
		}
	}
}

// TestRing_Property_NeighboursAreInverse tests that predecessor undoes successor for bound tokens
func TestRing_Property_NeighboursAreInverse(t *testing.T) {
	r := randomRing(t, 11, 100)
	for _, tok := range r.Tokens() {
		s, err := r.Successor(tok)
		require.NoError(t, err)
		p, err := r.Predecessor(s)
		require.NoError(t, err)
		assert.Equal(t, 0, p.Compare(tok))
	}
}

// TestRing_Property_WalkIsOneLap tests that every walk visits each binding exactly once
func TestRing_Property_WalkIsOneLap(t *testing.T) {
	r := randomRing(t, 3, 64)
	p := token.HashPartitioner{}
	rnd := token.NewRand(99)
	for i := 0; i < 20; i++ {
		it := r.ReplicasStartingAt(p.RandomToken(rnd))
		seen := make(map[string]bool)
		for it.Next() {
			key := it.At().Token.String()
			assert.False(t, seen[key], "token %s visited twice", key)
			seen[key] = true
		}
		assert.Len(t, seen, r.Len())
	}
}

// TestRing_Property_WalkStartsAtCeiling tests that the first walked token is the successor of the looked-up token
func TestRing_Property_WalkStartsAtCeiling(t *testing.T) {
	r := randomRing(t, 5, 50)
	p := token.HashPartitioner{}
	rnd := token.NewRand(17)
	for i := 0; i < 50; i++ {
		lookup := p.RandomToken(rnd)
		if r.Contains(lookup) {
			continue
		}
		it := r.ReplicasStartingAt(lookup)
		require.True(t, it.Next())
		s, err := r.Successor(lookup)
		require.NoError(t, err)
		assert.Equal(t, 0, s.Compare(it.At().Token))
	}
}

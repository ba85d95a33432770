package quorum

import (
	"net/netip"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenring/internal/replication"
	"tokenring/internal/ring"
	"tokenring/internal/token"
	"tokenring/internal/topology"
)

var datacenters = []string{"dc1", "dc2"}

func TestParseLevel(t *testing.T) {
	for l, name := range levelNames {
		got, err := ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, l, got)
		assert.Equal(t, name, l.String())
	}

	got, err := ParseLevel(" local_quorum ")
	require.NoError(t, err)
	assert.Equal(t, LocalQuorum, got)

	_, err = ParseLevel("SERIAL")
	assert.True(t, errors.Is(err, ErrUnknownLevel))
	assert.Equal(t, "Level(42)", Level(42).String())
}

func TestBlockFor(t *testing.T) {
	params := replication.NewParams(map[string]int{"dc1": 3, "dc2": 5})

	tests := []struct {
		level Level
		want  int
	}{
		{One, 1},
		{Two, 2},
		{Three, 3},
		{Quorum, 5},
		{All, 8},
		{LocalOne, 1},
		{LocalQuorum, 2},
		{EachQuorum, 5},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got, err := BlockFor(tt.level, params, datacenters, "dc1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlockFor_Errors(t *testing.T) {
	params := replication.NewParams(map[string]int{"dc1": 3})

	_, err := BlockFor(LocalQuorum, params, datacenters, "dc2")
	assert.True(t, errors.Is(err, replication.ErrMissingReplicationFactor))

	_, err = BlockFor(EachQuorum, params, datacenters, "dc1")
	assert.True(t, errors.Is(err, replication.ErrMissingReplicationFactor))

	_, err = BlockFor(Level(0), params, datacenters, "dc1")
	assert.True(t, errors.Is(err, ErrUnknownLevel))
}

func TestBlockForEach_SkipsExcluded(t *testing.T) {
	params := replication.Uniform(3, "dc2")
	perDC, err := BlockForEach(params, datacenters)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"dc1": 2}, perDC)
}

func addr(s string) ring.Node {
	return netip.MustParseAddrPort(s)
}

func cluster() *topology.Index {
	idx := topology.NewIndex()
	for _, n := range []string{"10.0.0.1:7000", "10.0.0.2:7000", "10.0.0.3:7000"} {
		idx.SetRackAndDC(addr(n), "dc1", "r1")
	}
	for _, n := range []string{"10.1.0.1:7000", "10.1.0.2:7000", "10.1.0.3:7000"} {
		idx.SetRackAndDC(addr(n), "dc2", "r1")
	}
	return idx
}

func TestSatisfied(t *testing.T) {
	params := replication.Uniform(3)
	idx := cluster()

	tests := []struct {
		name    string
		level   Level
		acked   []string
		success bool
		acks    int
	}{
		{"one", One, []string{"10.1.0.1:7000"}, true, 1},
		{"quorum met across datacenters", Quorum, []string{"10.0.0.1:7000", "10.0.0.2:7000", "10.1.0.1:7000", "10.1.0.2:7000"}, true, 4},
		{"quorum not met", Quorum, []string{"10.0.0.1:7000", "10.0.0.2:7000", "10.0.0.3:7000"}, false, 3},
		{"duplicates count once", Two, []string{"10.0.0.1:7000", "10.0.0.1:7000"}, false, 1},
		{"local quorum ignores remote", LocalQuorum, []string{"10.0.0.1:7000", "10.1.0.1:7000", "10.1.0.2:7000"}, false, 1},
		{"local quorum", LocalQuorum, []string{"10.0.0.1:7000", "10.0.0.3:7000"}, true, 2},
		{"local one remote only", LocalOne, []string{"10.1.0.1:7000"}, false, 0},
		{"each quorum", EachQuorum, []string{"10.0.0.1:7000", "10.0.0.2:7000", "10.1.0.2:7000", "10.1.0.3:7000"}, true, 4},
		{"each quorum short in one datacenter", EachQuorum, []string{"10.0.0.1:7000", "10.0.0.2:7000", "10.0.0.3:7000", "10.1.0.3:7000"}, false, 3},
		{"all", All, []string{"10.0.0.1:7000", "10.0.0.2:7000", "10.0.0.3:7000", "10.1.0.1:7000", "10.1.0.2:7000", "10.1.0.3:7000"}, true, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acked := make([]ring.Node, 0, len(tt.acked))
			for _, s := range tt.acked {
				acked = append(acked, addr(s))
			}
			res, err := Satisfied(tt.level, params, datacenters, "dc1", acked, idx)
			require.NoError(t, err)
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.acks, res.Acks)
			if tt.success {
				assert.Empty(t, res.ErrorMessage)
			} else {
				assert.NotEmpty(t, res.ErrorMessage)
			}
		})
	}
}

func TestSatisfied_EachQuorumReportsShortDatacenter(t *testing.T) {
	res, err := Satisfied(EachQuorum, replication.Uniform(3), datacenters, "dc1",
		[]ring.Node{addr("10.0.0.1:7000"), addr("10.0.0.2:7000")}, cluster())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 4, res.Required)
	assert.Contains(t, res.ErrorMessage, "dc2=0/2")
}

func TestSatisfied_UnknownReplica(t *testing.T) {
	_, err := Satisfied(One, replication.Uniform(1), datacenters, "dc1",
		[]ring.Node{addr("192.168.0.1:7000")}, cluster())
	assert.True(t, errors.Is(err, topology.ErrUnknownNode))
}

func TestSatisfied_WithPlacement(t *testing.T) {
	idx := cluster()
	r := ring.NewRing()
	tokens := []int64{10, 20, 30, 40, 50, 60}
	nodes := []string{"10.0.0.1:7000", "10.1.0.1:7000", "10.0.0.2:7000", "10.1.0.2:7000", "10.0.0.3:7000", "10.1.0.3:7000"}
	for i, v := range tokens {
		require.NoError(t, r.Insert(longToken(v), addr(nodes[i])))
	}

	params := replication.Uniform(2)
	replicas, err := replication.NewStrategy(params).NaturalEndpoints(longToken(15), r, idx)
	require.NoError(t, err)
	require.Len(t, replicas, 4)

	res, err := Satisfied(EachQuorum, params, datacenters, "dc1", replicas, idx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.Required)

	res, err = Satisfied(EachQuorum, params, datacenters, "dc1", replicas[:1], idx)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func longToken(v int64) token.LongToken {
	return token.LongToken(v)
}

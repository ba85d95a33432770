package replication

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"tokenring/internal/ring"
	"tokenring/internal/token"
	"tokenring/internal/topology"
)

// ErrInsufficientTopology is returned when the ring cannot supply the
// configured number of replicas.
var ErrInsufficientTopology = errors.New("insufficient topology for replication")

// Strategy places replicas in every datacenter according to Params.
type Strategy struct {
	params *Params
}

// NewStrategy creates a placement strategy.
func NewStrategy(params *Params) *Strategy {
	return &Strategy{params: params}
}

// Params returns the replication parameters of the strategy.
func (s *Strategy) Params() *Params {
	return s.params
}

// NaturalEndpoints returns the replicas of t in the order they were chosen.
func (s *Strategy) NaturalEndpoints(t token.Token, r *ring.Ring, topo topology.Topology) ([]ring.Node, error) {
	c, err := s.Calculator(r, topo)
	if err != nil {
		return nil, err
	}
	return c.NaturalEndpoints(t)
}

// ReplicasForKey returns the replicas responsible for key.
func (s *Strategy) ReplicasForKey(p token.Partitioner, key []byte, r *ring.Ring, topo topology.Topology) ([]ring.Node, error) {
	return s.NaturalEndpoints(p.TokenForKey(key), r, topo)
}

// Calculator answers repeated placement queries against a fixed ring. It
// must be rebuilt after the ring or the topology changes.
type Calculator struct {
	ring     *ring.Ring
	location map[ring.Node]topology.Location
	factors  map[string]int // datacenters with a positive factor
	racks    map[string]int // datacenter -> distinct racks on the ring
	total    int
}

// Calculator resolves the location of every ring node and checks that the
// replication parameters can be satisfied. Joining nodes are counted as
// members of the ring even before they own tokens.
func (s *Strategy) Calculator(r *ring.Ring, topo topology.Topology, joining ...ring.Node) (*Calculator, error) {
	if r.Len() == 0 {
		return nil, ring.ErrEmptyRing
	}
	c := &Calculator{
		ring:     r,
		location: make(map[ring.Node]topology.Location, r.NodeCount()),
		factors:  make(map[string]int),
		racks:    make(map[string]int),
	}

	nodes := make(map[string]int)
	racks := make(map[string]map[string]struct{})
	for _, n := range lo.Uniq(append(r.Nodes(), joining...)) {
		dc, err := topo.Datacenter(n)
		if err != nil {
			return nil, err
		}
		rack, err := topo.Rack(n)
		if err != nil {
			return nil, err
		}
		c.location[n] = topology.Location{Datacenter: dc, Rack: rack}
		nodes[dc]++
		if racks[dc] == nil {
			racks[dc] = make(map[string]struct{})
		}
		racks[dc][rack] = struct{}{}
	}

	dcs := make([]string, 0, len(nodes))
	for dc := range nodes {
		dcs = append(dcs, dc)
	}
	for _, dc := range s.params.ExplicitDatacenters() {
		if _, ok := nodes[dc]; !ok {
			dcs = append(dcs, dc)
		}
	}
	slices.Sort(dcs)

	for _, dc := range dcs {
		rf, ok := s.params.Factor(dc)
		if !ok {
			return nil, errors.Wrapf(ErrMissingReplicationFactor, "datacenter %q", dc)
		}
		if rf == 0 {
			continue
		}
		if rf > nodes[dc] {
			return nil, errors.Wrapf(ErrInsufficientTopology,
				"datacenter %q needs %d replicas but has %d nodes", dc, rf, nodes[dc])
		}
		c.factors[dc] = rf
		c.racks[dc] = len(racks[dc])
		c.total += rf
	}
	return c, nil
}

// ReplicaCount returns the number of replicas every query yields.
func (c *Calculator) ReplicaCount() int {
	return c.total
}

// Location returns the cached location of a ring node.
func (c *Calculator) Location(n ring.Node) (topology.Location, bool) {
	loc, ok := c.location[n]
	return loc, ok
}

// NaturalEndpoints returns the replicas of t on the calculator's ring.
func (c *Calculator) NaturalEndpoints(t token.Token) ([]ring.Node, error) {
	if c.total == 0 {
		return nil, nil
	}
	it := c.ring.ReplicasStartingAt(t)
	replicas, _, ok := c.Walk(func() (ring.Node, bool) {
		if !it.Next() {
			return ring.Node{}, false
		}
		return it.At().Node, true
	})
	if err := it.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrInsufficientTopology,
			"found %d of %d replicas for token %s", len(replicas), c.total, t)
	}
	return replicas, nil
}

// Walk chooses replicas from a clockwise sequence of token owners, as read
// from next until it reports false. A node is accepted when its datacenter
// still needs replicas and its rack is new to that datacenter. Nodes passed
// over for rack reasons are kept in sequence order and accepted first once
// every rack of the datacenter holds a replica.
//
// Walk returns the replicas in the order they were chosen, how many entries
// of the sequence were consumed, and whether every datacenter got its full
// count.
func (c *Calculator) Walk(next func() (ring.Node, bool)) ([]ring.Node, int, bool) {
	if c.total == 0 {
		return nil, 0, true
	}

	var (
		replicas  = make([]ring.Node, 0, c.total)
		chosen    = make(map[ring.Node]struct{}, c.total)
		count     = make(map[string]int, len(c.factors))
		usedRacks = make(map[string]map[string]struct{}, len(c.factors))
		skipped   = make(map[string][]ring.Node)
		parked    = make(map[ring.Node]struct{})
		satisfied int
		consumed  int
	)

	accept := func(n ring.Node, loc topology.Location) {
		replicas = append(replicas, n)
		chosen[n] = struct{}{}
		usedRacks[loc.Datacenter][loc.Rack] = struct{}{}
		count[loc.Datacenter]++
		if count[loc.Datacenter] == c.factors[loc.Datacenter] {
			satisfied++
		}
	}

	for satisfied < len(c.factors) {
		n, ok := next()
		if !ok {
			break
		}
		consumed++
		if _, ok := chosen[n]; ok {
			continue
		}
		if _, ok := parked[n]; ok {
			continue
		}
		loc := c.location[n]
		dc := loc.Datacenter
		rf, ok := c.factors[dc]
		if !ok || count[dc] >= rf {
			continue
		}

		used := usedRacks[dc]
		if used == nil {
			used = make(map[string]struct{})
			usedRacks[dc] = used
		}
		if _, seen := used[loc.Rack]; seen && len(used) < c.racks[dc] {
			skipped[dc] = append(skipped[dc], n)
			parked[n] = struct{}{}
			continue
		}

		accept(n, loc)
		if len(used) == c.racks[dc] {
			for len(skipped[dc]) > 0 && count[dc] < rf {
				s := skipped[dc][0]
				skipped[dc] = skipped[dc][1:]
				accept(s, c.location[s])
			}
		}
	}
	return replicas, consumed, satisfied == len(c.factors)
}

// Members returns the nodes known to the calculator in the given rack,
// sorted by address.
func (c *Calculator) Members(dc, rack string) []ring.Node {
	var nodes []ring.Node
	for n, loc := range c.location {
		if loc.Datacenter == dc && loc.Rack == rack {
			nodes = append(nodes, n)
		}
	}
	sortNodes(nodes)
	return nodes
}

func sortNodes(nodes []ring.Node) {
	slices.SortFunc(nodes, func(a, b ring.Node) int { return a.Compare(b) })
}

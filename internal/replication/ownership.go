package replication

import (
	"tokenring/internal/ring"
	"tokenring/internal/stats"
	"tokenring/internal/token"
)

// NodeOwnership returns, for every ring node in the given rack, the fraction
// of the ring it replicates. Each token owns the arc from its predecessor, and
// every replica of the token is credited with the arc's size.
func (c *Calculator) NodeOwnership(p token.Partitioner, dc, rack string) (map[ring.Node]float64, error) {
	ownership := make(map[ring.Node]float64)
	for _, n := range c.Members(dc, rack) {
		ownership[n] = 0
	}
	if len(ownership) == 0 {
		return ownership, nil
	}

	bindings := c.ring.Bindings()
	for i, b := range bindings {
		prev := bindings[(i+len(bindings)-1)%len(bindings)].Token
		size := p.Size(prev, b.Token)
		replicas, err := c.NaturalEndpoints(b.Token)
		if err != nil {
			return nil, err
		}
		for _, n := range replicas {
			if _, ok := ownership[n]; ok {
				ownership[n] += size
			}
		}
	}
	return ownership, nil
}

// Ownership summarizes NodeOwnership over the nodes of the rack.
func (c *Calculator) Ownership(p token.Partitioner, dc, rack string) (stats.Summary, error) {
	ownership, err := c.NodeOwnership(p, dc, rack)
	if err != nil {
		return stats.Summary{}, err
	}
	nodes := make([]ring.Node, 0, len(ownership))
	for n := range ownership {
		nodes = append(nodes, n)
	}
	sortNodes(nodes)
	values := make([]float64, 0, len(nodes))
	for _, n := range nodes {
		values = append(values, ownership[n])
	}
	return stats.Summarize(values), nil
}

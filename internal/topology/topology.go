package topology

import (
	"slices"
	"sync"

	"github.com/pkg/errors"

	"tokenring/internal/ring"
)

// ErrUnknownNode is returned when a node has no known location.
var ErrUnknownNode = errors.New("unknown node")

// Topology answers failure-domain queries for nodes.
type Topology interface {
	Rack(node ring.Node) (string, error)
	Datacenter(node ring.Node) (string, error)
}

// Location is the failure domain of a node.
type Location struct {
	Datacenter string
	Rack       string
}

// Index is an in-memory Topology. Entries are never removed. It tolerates
// concurrent readers alongside a single writer.
type Index struct {
	mu      sync.RWMutex
	entries map[ring.Node]Location
}

var _ Topology = (*Index)(nil)

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		entries: make(map[ring.Node]Location),
	}
}

// SetRackAndDC records the location of node, replacing any previous entry.
func (x *Index) SetRackAndDC(node ring.Node, dc, rack string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[node] = Location{Datacenter: dc, Rack: rack}
}

// Location returns the location of node.
func (x *Index) Location(node ring.Node) (Location, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	loc, ok := x.entries[node]
	if !ok {
		return Location{}, errors.Wrapf(ErrUnknownNode, "%s", node)
	}
	return loc, nil
}

func (x *Index) Rack(node ring.Node) (string, error) {
	loc, err := x.Location(node)
	return loc.Rack, err
}

func (x *Index) Datacenter(node ring.Node) (string, error) {
	loc, err := x.Location(node)
	return loc.Datacenter, err
}

// Len returns the number of registered nodes.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Datacenters returns the sorted names of all datacenters with registered nodes.
func (x *Index) Datacenters() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var dcs []string
	for _, loc := range x.entries {
		dcs = append(dcs, loc.Datacenter)
	}
	slices.Sort(dcs)
	return slices.Compact(dcs)
}

// Racks returns the sorted rack names of dc.
func (x *Index) Racks(dc string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var racks []string
	for _, loc := range x.entries {
		if loc.Datacenter == dc {
			racks = append(racks, loc.Rack)
		}
	}
	slices.Sort(racks)
	return slices.Compact(racks)
}

// Nodes returns the nodes registered in the given rack, sorted by address.
func (x *Index) Nodes(dc, rack string) []ring.Node {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var nodes []ring.Node
	for node, loc := range x.entries {
		if loc.Datacenter == dc && loc.Rack == rack {
			nodes = append(nodes, node)
		}
	}
	slices.SortFunc(nodes, func(a, b ring.Node) int { return a.Compare(b) })
	return nodes
}

package topology

import (
	"strconv"

	"github.com/pkg/errors"

	"tokenring/internal/ring"
)

// RackInferring derives locations from IPv4 addresses: the second octet
// names the datacenter and the third octet names the rack.
type RackInferring struct{}

var _ Topology = RackInferring{}

func (RackInferring) Rack(node ring.Node) (string, error) {
	return octet(node, 2)
}

func (RackInferring) Datacenter(node ring.Node) (string, error) {
	return octet(node, 1)
}

func octet(node ring.Node, i int) (string, error) {
	addr := node.Addr().Unmap()
	if !addr.Is4() {
		return "", errors.Wrapf(ErrUnknownNode, "%s is not an IPv4 address", node)
	}
	return strconv.Itoa(int(addr.As4()[i])), nil
}

package offline

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"tokenring/internal/allocator"
	"tokenring/internal/metrics"
	"tokenring/internal/replication"
	"tokenring/internal/ring"
	"tokenring/internal/stats"
	"tokenring/internal/token"
	"tokenring/internal/topology"
)

const (
	// Datacenter is the datacenter every simulated node belongs to.
	Datacenter = "datacenter1"
	// DefaultMaxStdevGrowth is the growth in a rack's ownership standard
	// deviation above which a warning is logged.
	DefaultMaxStdevGrowth = 0.03
)

// ErrInvalidConfig is returned when the allocation parameters are unusable.
var ErrInvalidConfig = errors.New("invalid offline allocation config")

// Config holds the parameters of an offline allocation.
type Config struct {
	ReplicationFactor int
	TokensPerNode     int
	// NodesPerRack holds the number of nodes to create in each rack. The
	// index is the rack id.
	NodesPerRack []int

	// Partitioner defaults to token.HashPartitioner.
	Partitioner token.Partitioner
	Seed        int64
	// Candidates defaults to allocator.DefaultCandidates.
	Candidates int
	// MaxStdevGrowth defaults to DefaultMaxStdevGrowth.
	MaxStdevGrowth float64
	// NodeIdentity maps a node id to its ring identity. Defaults to
	// LoopbackIdentity.
	NodeIdentity func(nodeID int) ring.Node

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Assignment is the outcome for one simulated node.
type Assignment struct {
	Node   ring.Node
	NodeID int
	RackID int
	Tokens []token.Token
}

// Rack returns the rack name the node was registered under.
func (a Assignment) Rack() string {
	return strconv.Itoa(a.RackID)
}

// LoopbackIdentity identifies node id n as 127.0.0.1:n.
func LoopbackIdentity(nodeID int) ring.Node {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), uint16(nodeID))
}

// Validate reports every problem with the config.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.ReplicationFactor < 1 {
		result = multierror.Append(result, errors.Errorf("replication factor must be positive, got %d", c.ReplicationFactor))
	}
	if c.TokensPerNode < 1 {
		result = multierror.Append(result, errors.Errorf("tokens per node must be positive, got %d", c.TokensPerNode))
	}
	if len(c.NodesPerRack) == 0 {
		result = multierror.Append(result, errors.New("at least one rack is required"))
	}
	for rack, n := range c.NodesPerRack {
		if n < 0 {
			result = multierror.Append(result, errors.Errorf("rack %d has negative node count %d", rack, n))
		}
	}
	if c.NodeIdentity == nil && lo.Sum(c.NodesPerRack) > 1<<16 {
		result = multierror.Append(result, errors.Errorf("loopback identities support at most %d nodes", 1<<16))
	}
	if c.Candidates < 0 {
		result = multierror.Append(result, errors.Errorf("candidates must not be negative, got %d", c.Candidates))
	}
	if c.MaxStdevGrowth < 0 {
		result = multierror.Append(result, errors.Errorf("max stdev growth must not be negative, got %g", c.MaxStdevGrowth))
	}
	return invalid(result)
}

// invalid returns nil when there are no problems, or a multierror led by
// ErrInvalidConfig and followed by every problem.
func invalid(problems *multierror.Error) error {
	if problems.ErrorOrNil() == nil {
		return nil
	}
	err := multierror.Append(ErrInvalidConfig, problems.Errors...)
	err.ErrorFormat = formatProblems
	return err
}

func formatProblems(errs []error) string {
	msgs := lo.Map(errs[1:], func(err error, _ int) string { return err.Error() })
	return errs[0].Error() + ": " + strings.Join(msgs, "; ")
}

func (c Config) withDefaults() Config {
	if c.Partitioner == nil {
		c.Partitioner = token.HashPartitioner{}
	}
	if c.Candidates == 0 {
		c.Candidates = allocator.DefaultCandidates
	}
	if c.MaxStdevGrowth == 0 {
		c.MaxStdevGrowth = DefaultMaxStdevGrowth
	}
	if c.NodeIdentity == nil {
		c.NodeIdentity = LoopbackIdentity
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New(nil)
	}
	return c
}

// checkpoints holds the last ownership summary seen for each rack.
type checkpoints map[int]stats.Summary

type session struct {
	cfg       Config
	ring      *ring.Ring
	topology  *topology.Index
	allocator *allocator.Allocator
	logger    *zap.Logger
}

// Allocate simulates starting every node described by cfg and returns their
// tokens in allocation order.
func Allocate(cfg Config) ([]Assignment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	s := &session{
		cfg:      cfg,
		ring:     ring.NewRing(),
		topology: topology.NewIndex(),
		logger:   cfg.Logger,
	}
	s.allocator = allocator.New(s.ring, s.topology, cfg.Partitioner,
		replication.Uniform(cfg.ReplicationFactor),
		allocator.WithTokens(cfg.TokensPerNode),
		allocator.WithSeed(cfg.Seed),
		allocator.WithCandidates(cfg.Candidates),
		allocator.WithLogger(cfg.Logger),
	)

	schedule := Schedule(cfg.NodesPerRack)
	assignments := make([]Assignment, 0, len(schedule))
	last := make(checkpoints, len(cfg.NodesPerRack))
	for nodeID, rackID := range schedule {
		a, err := s.allocateNode(nodeID, rackID)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
		last = s.validate(last, nodeID, rackID)
	}

	s.logger.Info("offline allocation complete",
		zap.Int("nodes", len(assignments)),
		zap.Int("racks", len(cfg.NodesPerRack)),
		zap.Int("tokens", s.ring.Len()),
		zap.String("partitioner", cfg.Partitioner.Name()))
	return assignments, nil
}

func (s *session) allocateNode(nodeID, rackID int) (Assignment, error) {
	start := time.Now()
	node := s.cfg.NodeIdentity(nodeID)
	if len(s.ring.TokensOf(node)) > 0 {
		return Assignment{}, errors.Wrapf(ErrInvalidConfig, "node identity %s assigned to node %d is already in use", node, nodeID)
	}
	s.topology.SetRackAndDC(node, Datacenter, strconv.Itoa(rackID))

	tokens, err := s.allocator.Allocate(node)
	if err != nil {
		return Assignment{}, errors.Wrapf(err, "allocating node %d on rack %d", nodeID, rackID)
	}
	for _, t := range tokens {
		if err := s.ring.Insert(t, node); err != nil {
			return Assignment{}, errors.Wrapf(err, "node %d", nodeID)
		}
	}

	s.cfg.Metrics.NodesAllocated.Inc()
	s.cfg.Metrics.TokensAllocated.Add(float64(len(tokens)))
	s.cfg.Metrics.AllocationDuration.Observe(time.Since(start).Seconds())
	return Assignment{Node: node, NodeID: nodeID, RackID: rackID, Tokens: tokens}, nil
}

// validate checks the ownership spread of the rack after a node joined it and
// returns the updated checkpoints.
func (s *session) validate(last checkpoints, nodeID, rackID int) checkpoints {
	summary, err := s.allocator.RackOwnership(Datacenter, strconv.Itoa(rackID))
	if err != nil {
		s.logger.Debug("skipping ownership validation",
			zap.Int("node", nodeID),
			zap.Int("rack", rackID),
			zap.Error(err))
		return last
	}
	return s.record(last, nodeID, rackID, summary)
}

func (s *session) record(last checkpoints, nodeID, rackID int, summary stats.Summary) checkpoints {
	old, seen := last[rackID]
	if seen {
		s.logger.Debug("replicated node load before allocation",
			zap.Int("rack", rackID),
			zap.Int("node", nodeID),
			zap.Stringer("load", old))
	}
	s.logger.Debug("replicated node load after allocation",
		zap.Int("rack", rackID),
		zap.Int("node", nodeID),
		zap.Stringer("load", summary))

	rack := strconv.Itoa(rackID)
	s.cfg.Metrics.RackOwnershipStdDev.WithLabelValues(rack).Set(summary.StdDev)
	if seen && old.StdDev != 0 && summary.StdDev-old.StdDev > s.cfg.MaxStdevGrowth {
		s.logger.Warn("growth in token ownership standard deviation above limit",
			zap.String("limit", fmt.Sprintf("%.4f%%", s.cfg.MaxStdevGrowth*100)),
			zap.Int("node", nodeID),
			zap.Int("rack", rackID),
			zap.Float64("old_stddev", old.StdDev),
			zap.Float64("new_stddev", summary.StdDev))
		s.cfg.Metrics.SkewWarnings.WithLabelValues(rack).Inc()
	}

	last[rackID] = summary
	return last
}

// BuildRing rebuilds the ring and topology described by assignments.
func BuildRing(assignments []Assignment) (*ring.Ring, *topology.Index, error) {
	r := ring.NewRing()
	idx := topology.NewIndex()
	for _, a := range assignments {
		idx.SetRackAndDC(a.Node, Datacenter, a.Rack())
		for _, t := range a.Tokens {
			if err := r.Insert(t, a.Node); err != nil {
				return nil, nil, errors.Wrapf(err, "node %d", a.NodeID)
			}
		}
	}
	return r, idx, nil
}

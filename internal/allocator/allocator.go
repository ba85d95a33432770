package allocator

import (
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tokenring/internal/replication"
	"tokenring/internal/ring"
	"tokenring/internal/stats"
	"tokenring/internal/token"
	"tokenring/internal/topology"
)

const (
	// DefaultTokens is the number of tokens allocated per node.
	DefaultTokens = 16
	// DefaultCandidates is the number of arcs kept per ranking when choosing
	// a token.
	DefaultCandidates = 16

	maxRandomAttempts = 64
)

// ErrNoTokenSpace is returned when no unbound token can be found.
var ErrNoTokenSpace = errors.New("no free token found")

// Option configures an Allocator.
type Option func(*Allocator)

// WithTokens sets the number of tokens returned by Allocate.
func WithTokens(n int) Option {
	return func(a *Allocator) {
		a.numTokens = n
	}
}

// WithCandidates sets how many arcs are evaluated per token under each of
// the two rankings: most ownership taken from loaded members, and size.
func WithCandidates(n int) Option {
	return func(a *Allocator) {
		a.candidates = n
	}
}

// WithSeed seeds the generator used when the ring offers no arcs to split.
func WithSeed(seed int64) Option {
	return func(a *Allocator) {
		a.rnd = token.NewRand(seed)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Allocator) {
		a.logger = logger
	}
}

// Allocator picks tokens for joining nodes. It reads the ring but never
// modifies it; callers insert the returned tokens themselves.
type Allocator struct {
	ring        *ring.Ring
	topo        topology.Topology
	partitioner token.Partitioner
	strategy    *replication.Strategy
	numTokens   int
	candidates  int
	rnd         *rand.Rand
	logger      *zap.Logger
}

// New creates an allocator over r.
func New(r *ring.Ring, topo topology.Topology, p token.Partitioner, params *replication.Params, opts ...Option) *Allocator {
	a := &Allocator{
		ring:        r,
		topo:        topo,
		partitioner: p,
		strategy:    replication.NewStrategy(params),
		numTokens:   DefaultTokens,
		candidates:  DefaultCandidates,
		rnd:         token.NewRand(0),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.candidates < 1 {
		a.candidates = 1
	}
	return a
}

// Allocate returns the configured number of distinct, unbound tokens for
// node, sorted in ring order. The node must already have a location.
//
// Each token is placed inside one of the arcs that lets the node take the
// most ownership from the most loaded members of its rack, at the position
// that leaves the rack's replicated ownership most even. Until the ring can
// replicate every token, tokens split the largest arc instead.
func (a *Allocator) Allocate(node ring.Node) ([]token.Token, error) {
	dc, err := a.topo.Datacenter(node)
	if err != nil {
		return nil, err
	}
	rack, err := a.topo.Rack(node)
	if err != nil {
		return nil, err
	}

	work := a.ring.Clone()
	var calc *replication.Calculator
	if work.Len() > 0 {
		calc, err = a.strategy.Calculator(work, a.topo, node)
		if err != nil && !errors.Is(err, replication.ErrInsufficientTopology) {
			return nil, err
		}
	}

	// A node alone in its rack owns whatever the rack replicates.
	balance := calc != nil && len(calc.Members(dc, rack)) > 1

	var state *placement
	tokens := make([]token.Token, 0, a.numTokens)
	for len(tokens) < a.numTokens {
		if state == nil && balance {
			state, _ = newPlacement(a.partitioner, calc, work.Bindings(), node, dc, rack)
		}

		var t token.Token
		if state != nil {
			share := float64(len(tokens)+1) / float64(a.numTokens)
			t = a.balancedToken(state, work, share)
		}
		if t == nil {
			state = nil
			if t, err = a.splitLargest(work); err != nil {
				return nil, errors.Wrapf(err, "allocating token %d for %s", len(tokens)+1, node)
			}
		}
		if err := work.Insert(t, node); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	slices.SortFunc(tokens, func(x, y token.Token) int { return x.Compare(y) })

	a.logger.Debug("allocated tokens",
		zap.Stringer("node", node),
		zap.String("dc", dc),
		zap.String("rack", rack),
		zap.Int("tokens", len(tokens)))
	return tokens, nil
}

// RackOwnership summarizes replicated ownership of the rack on the current
// ring.
func (a *Allocator) RackOwnership(dc, rack string) (stats.Summary, error) {
	c, err := a.strategy.Calculator(a.ring, a.topo)
	if err != nil {
		return stats.Summary{}, err
	}
	return c.Ownership(a.partitioner, dc, rack)
}

// balancedToken scores the candidate arcs and commits the best split to
// state. It returns nil when no candidate yields an unbound token.
func (a *Allocator) balancedToken(state *placement, work *ring.Ring, share float64) token.Token {
	var best *split
	for _, gap := range state.candidates(a.candidates) {
		c, ok := state.evaluate(gap, share)
		if !ok || (best != nil && c.score >= best.score) {
			continue
		}
		prev := state.bindings[(gap+len(state.bindings)-1)%len(state.bindings)].Token
		c.token = a.partitioner.Split(prev, state.bindings[gap].Token, c.ratio)
		if c.token.Compare(prev) == 0 || work.Contains(c.token) {
			continue
		}
		best = c
	}
	if best == nil {
		return nil
	}
	state.commit(best)
	return best.token
}

// splitLargest returns the midpoint of the largest arc that can still be
// split, or a random token on an empty ring.
func (a *Allocator) splitLargest(work *ring.Ring) (token.Token, error) {
	tokens := work.Tokens()
	if len(tokens) == 0 {
		return a.randomToken(work)
	}
	var (
		best     token.Token
		bestSize float64
	)
	for i, right := range tokens {
		left := tokens[(i+len(tokens)-1)%len(tokens)]
		size := a.partitioner.Size(left, right)
		if best != nil && size <= bestSize {
			continue
		}
		if mid := a.partitioner.Midpoint(left, right); !work.Contains(mid) {
			best, bestSize = mid, size
		}
	}
	if best == nil {
		return nil, ErrNoTokenSpace
	}
	return best, nil
}

func (a *Allocator) randomToken(work *ring.Ring) (token.Token, error) {
	for i := 0; i < maxRandomAttempts; i++ {
		t := a.partitioner.RandomToken(a.rnd)
		if !work.Contains(t) {
			return t, nil
		}
	}
	return nil, ErrNoTokenSpace
}

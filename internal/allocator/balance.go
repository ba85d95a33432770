package allocator

import (
	"slices"
	"sort"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/emirpasic/gods/utils"

	"tokenring/internal/replication"
	"tokenring/internal/ring"
	"tokenring/internal/token"
)

const (
	// Split positions stay this far, as a fraction of the arc, from either
	// end of the arc.
	minSplitRatio = 1.0 / 16
	maxSplitRatio = 1 - minSplitRatio
)

// placement tracks, for the ring being extended, the replicas of every token
// and the replicated ownership of each node in the joining node's rack. A
// new token only changes the replicas of the tokens whose walk crosses its
// position, so candidates are scored and committed without replaying the
// whole ring.
type placement struct {
	p    token.Partitioner
	calc *replication.Calculator
	node ring.Node

	bindings []ring.Binding
	sizes    []float64 // sizes[i] is the arc (bindings[i-1], bindings[i]]
	replicas [][]ring.Node
	consumed []int // walk length of each token
	donor    []int // member replicating each token, or -1
	longest  int

	members []ring.Node
	member  map[ring.Node]int
	own     []float64
	joining int // index of node in members
}

// newPlacement replays every token of the ring. It reports false when some
// token cannot be fully replicated yet.
func newPlacement(p token.Partitioner, calc *replication.Calculator, bindings []ring.Binding, node ring.Node, dc, rack string) (*placement, bool) {
	s := &placement{
		p:        p,
		calc:     calc,
		node:     node,
		bindings: bindings,
		sizes:    make([]float64, len(bindings)),
		replicas: make([][]ring.Node, len(bindings)),
		consumed: make([]int, len(bindings)),
		donor:    make([]int, len(bindings)),
		members:  calc.Members(dc, rack),
		member:   make(map[ring.Node]int),
	}
	for i, n := range s.members {
		s.member[n] = i
	}
	s.joining = s.member[node]
	s.own = make([]float64, len(s.members))

	n := len(bindings)
	for i, b := range bindings {
		s.sizes[i] = p.Size(bindings[(i+n-1)%n].Token, b.Token)
		replicas, consumed, ok := s.walk(i, -1)
		if !ok {
			return nil, false
		}
		s.set(i, replicas, consumed)
		for _, r := range replicas {
			if m, ok := s.member[r]; ok {
				s.own[m] += s.sizes[i]
			}
		}
	}
	return s, true
}

func (s *placement) set(i int, replicas []ring.Node, consumed int) {
	s.replicas[i] = replicas
	s.consumed[i] = consumed
	s.donor[i] = s.rackReplica(replicas)
	s.longest = max(s.longest, consumed)
}

func (s *placement) rackReplica(replicas []ring.Node) int {
	for _, r := range replicas {
		if m, ok := s.member[r]; ok {
			return m
		}
	}
	return -1
}

// walk places replicas starting at position start of the ring. When gap is
// not negative the joining node is spliced in before bindings[gap] and
// positions count the spliced entry.
func (s *placement) walk(start, gap int) ([]ring.Node, int, bool) {
	size := len(s.bindings)
	if gap >= 0 {
		size++
	}
	k := 0
	return s.calc.Walk(func() (ring.Node, bool) {
		if k == size {
			return ring.Node{}, false
		}
		v := (start + k) % size
		k++
		switch {
		case gap < 0 || v < gap:
			return s.bindings[v].Node, true
		case v == gap:
			return s.node, true
		default:
			return s.bindings[v-1].Node, true
		}
	})
}

type rewalk struct {
	index    int
	replicas []ring.Node
	consumed int
}

// split is a scored way of placing a token inside one arc.
type split struct {
	gap      int
	ratio    float64
	score    float64
	token    token.Token
	rewalks  []rewalk
	replicas []ring.Node
	consumed int

	// Member m owns a[m] + b[m]*x once the token is placed, x being the
	// size of the token's arc.
	a, b []float64
}

// evaluate scores inserting a token into the arc ending at bindings[gap].
// Ownership of every member is linear in where the token falls inside the
// arc, so the best position is found in closed form. share is the fraction
// of the mean the joining node should reach once this token is placed.
func (s *placement) evaluate(gap int, share float64) (*split, bool) {
	n := len(s.bindings)
	c := &split{gap: gap, a: slices.Clone(s.own), b: make([]float64, len(s.members))}

	// Tokens whose walk runs across the gap see the new token.
	for d := 0; d < min(s.longest-1, n); d++ {
		j := ((gap-1-d)%n + n) % n
		if d >= s.consumed[j]-1 {
			continue
		}
		start := j
		if j >= gap {
			start++
		}
		replicas, consumed, ok := s.walk(start, gap)
		if !ok {
			return nil, false
		}
		for _, r := range s.replicas[j] {
			if m, ok := s.member[r]; ok {
				c.a[m] -= s.sizes[j]
			}
		}
		for _, r := range replicas {
			if m, ok := s.member[r]; ok {
				c.a[m] += s.sizes[j]
			}
		}
		c.rewalks = append(c.rewalks, rewalk{index: j, replicas: replicas, consumed: consumed})
	}

	// The successor keeps its replicas but only the part of its arc past the
	// new token.
	for _, r := range s.replicas[gap] {
		if m, ok := s.member[r]; ok {
			c.b[m]--
		}
	}
	replicas, consumed, ok := s.walk(gap, gap)
	if !ok {
		return nil, false
	}
	for _, r := range replicas {
		if m, ok := s.member[r]; ok {
			c.b[m]++
		}
	}
	c.replicas, c.consumed = replicas, consumed

	size := s.sizes[gap]
	x, score := s.minimize(c.a, c.b, share, size*minSplitRatio, size*maxSplitRatio)
	c.ratio, c.score = x/size, score
	return c, true
}

// minimize returns the x in [lo, hi] minimizing the squared deviation of
// every member from the rack mean, where the joining node is measured
// against share of the mean, together with that deviation.
func (s *placement) minimize(a, b []float64, share, lo, hi float64) (float64, float64) {
	m := float64(len(a))
	meanA, meanB := 0.0, 0.0
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= m
	meanB /= m

	// Deviation of member i is alpha + beta*x.
	var sab, sbb float64
	dev := func(i int) (float64, float64) {
		if i == s.joining {
			return a[i] - share*meanA, b[i] - share*meanB
		}
		return a[i] - meanA, b[i] - meanB
	}
	for i := range a {
		alpha, beta := dev(i)
		sab += alpha * beta
		sbb += beta * beta
	}

	// Ownership that does not depend on x leaves the arc split evenly.
	x := (lo + hi) / 2
	if sbb > 0 {
		x = min(max(-sab/sbb, lo), hi)
	}
	score := 0.0
	for i := range a {
		alpha, beta := dev(i)
		e := alpha + beta*x
		score += e * e
	}
	return x, score
}

// commit inserts the token chosen by c.
func (s *placement) commit(c *split) {
	for _, w := range c.rewalks {
		s.set(w.index, w.replicas, w.consumed)
	}
	n := len(s.bindings)
	prev := s.bindings[(c.gap+n-1)%n].Token
	s.sizes[c.gap] = s.p.Size(c.token, s.bindings[c.gap].Token)
	newSize := s.p.Size(prev, c.token)
	for m := range s.own {
		s.own[m] = c.a[m] + c.b[m]*newSize
	}

	pos := sort.Search(n, func(i int) bool { return s.bindings[i].Token.Compare(c.token) > 0 })
	s.bindings = slices.Insert(s.bindings, pos, ring.Binding{Token: c.token, Node: s.node})
	s.sizes = slices.Insert(s.sizes, pos, newSize)
	s.replicas = slices.Insert(s.replicas, pos, nil)
	s.consumed = slices.Insert(s.consumed, pos, 0)
	s.donor = slices.Insert(s.donor, pos, 0)
	s.set(pos, c.replicas, c.consumed)
}

type ranked struct {
	gap int
	key float64
}

// candidates returns the gaps worth scoring: those letting the joining node
// take the most ownership from the most loaded members, and the largest
// arcs. A gap's reach is the run of consecutive arcs, ending at the gap,
// replicated in the rack by the same member.
func (s *placement) candidates(limit int) []int {
	n := len(s.bindings)
	mean := 0.0
	for _, o := range s.own {
		mean += o
	}
	mean /= float64(len(s.own))

	start := 0
	for i := 0; i < n; i++ {
		if s.donor[i] != s.donor[(i+n-1)%n] {
			start = i
			break
		}
	}

	byLoad := newTopK(limit)
	bySize := newTopK(limit)
	reach := 0.0
	for k := 0; k < n; k++ {
		i := (start + k) % n
		if k == 0 || s.donor[i] != s.donor[(i+n-1)%n] {
			reach = 0
		}
		reach += s.sizes[i]

		load := mean
		if d := s.donor[i]; d >= 0 {
			load = s.own[d]
		}
		byLoad.offer(ranked{gap: i, key: reach * load})
		bySize.offer(ranked{gap: i, key: s.sizes[i]})
	}

	gaps := append(byLoad.gaps(), bySize.gaps()...)
	seen := make(map[int]struct{}, len(gaps))
	out := gaps[:0]
	for _, g := range gaps {
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// topK keeps the limit highest keys seen, preferring earlier gaps on ties.
type topK struct {
	limit int
	heap  *binaryheap.Heap
}

func newTopK(limit int) *topK {
	return &topK{
		limit: limit,
		heap: binaryheap.NewWith(func(x, y interface{}) int {
			a, b := x.(ranked), y.(ranked)
			if c := utils.Float64Comparator(a.key, b.key); c != 0 {
				return c
			}
			return utils.IntComparator(b.gap, a.gap)
		}),
	}
}

func (t *topK) offer(r ranked) {
	if t.heap.Size() < t.limit {
		t.heap.Push(r)
		return
	}
	lowest, _ := t.heap.Peek()
	if l := lowest.(ranked); r.key > l.key {
		t.heap.Pop()
		t.heap.Push(r)
	}
}

// gaps returns the kept gaps, highest key first.
func (t *topK) gaps() []int {
	kept := make([]ranked, 0, t.heap.Size())
	for _, v := range t.heap.Values() {
		kept = append(kept, v.(ranked))
	}
	slices.SortFunc(kept, func(a, b ranked) int {
		switch {
		case a.key > b.key:
			return -1
		case a.key < b.key:
			return 1
		default:
			return a.gap - b.gap
		}
	})
	out := make([]int, len(kept))
	for i, r := range kept {
		out[i] = r.gap
	}
	return out
}

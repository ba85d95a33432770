package quorum

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"tokenring/internal/replication"
	"tokenring/internal/ring"
	"tokenring/internal/topology"
)

// ErrUnknownLevel is returned by ParseLevel for unrecognized names.
var ErrUnknownLevel = errors.New("unknown consistency level")

// Level is a consistency level.
type Level int

const (
	One Level = iota + 1
	Two
	Three
	Quorum
	All
	LocalOne
	LocalQuorum
	EachQuorum
)

var levelNames = map[Level]string{
	One:         "ONE",
	Two:         "TWO",
	Three:       "THREE",
	Quorum:      "QUORUM",
	All:         "ALL",
	LocalOne:    "LOCAL_ONE",
	LocalQuorum: "LOCAL_QUORUM",
	EachQuorum:  "EACH_QUORUM",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel parses a level name, ignoring case.
func ParseLevel(s string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownLevel, "%q", s)
}

// Local reports whether only replicas in the coordinator's datacenter count.
func (l Level) Local() bool {
	return l == LocalOne || l == LocalQuorum
}

func quorumFor(rf int) int {
	return rf/2 + 1
}

// BlockFor returns the number of acknowledgements level requires.
// datacenters lists the datacenters of the ring; localDC is the
// coordinator's datacenter and is only consulted by local levels.
func BlockFor(level Level, params *replication.Params, datacenters []string, localDC string) (int, error) {
	switch level {
	case One, LocalOne:
		return 1, nil
	case Two:
		return 2, nil
	case Three:
		return 3, nil
	case Quorum:
		return quorumFor(params.TotalFactor(datacenters)), nil
	case All:
		return params.TotalFactor(datacenters), nil
	case LocalQuorum:
		rf, ok := params.Factor(localDC)
		if !ok {
			return 0, errors.Wrapf(replication.ErrMissingReplicationFactor, "datacenter %q", localDC)
		}
		return quorumFor(rf), nil
	case EachQuorum:
		perDC, err := BlockForEach(params, datacenters)
		if err != nil {
			return 0, err
		}
		return lo.Sum(lo.Values(perDC)), nil
	default:
		return 0, errors.Wrapf(ErrUnknownLevel, "%s", level)
	}
}

// BlockForEach returns the EACH_QUORUM requirement of every datacenter that
// holds replicas.
func BlockForEach(params *replication.Params, datacenters []string) (map[string]int, error) {
	perDC := make(map[string]int, len(datacenters))
	for _, dc := range datacenters {
		rf, ok := params.Factor(dc)
		if !ok {
			return nil, errors.Wrapf(replication.ErrMissingReplicationFactor, "datacenter %q", dc)
		}
		if rf > 0 {
			perDC[dc] = quorumFor(rf)
		}
	}
	return perDC, nil
}

// Result is the outcome of checking acknowledgements against a level.
type Result struct {
	Success      bool
	Acks         int
	Required     int
	ErrorMessage string
}

// Satisfied checks whether the replicas in acked meet level. Duplicate
// entries are counted once.
func Satisfied(level Level, params *replication.Params, datacenters []string, localDC string, acked []ring.Node, topo topology.Topology) (Result, error) {
	required, err := BlockFor(level, params, datacenters, localDC)
	if err != nil {
		return Result{}, err
	}

	perDC := make(map[string]int)
	for _, n := range lo.Uniq(acked) {
		dc, err := topo.Datacenter(n)
		if err != nil {
			return Result{}, err
		}
		perDC[dc]++
	}

	acks := lo.Sum(lo.Values(perDC))
	if level.Local() {
		acks = perDC[localDC]
	}
	if level == EachQuorum {
		return eachQuorum(params, datacenters, perDC, required)
	}

	if acks >= required {
		return Result{Success: true, Acks: acks, Required: required}, nil
	}
	return Result{
		Acks:         acks,
		Required:     required,
		ErrorMessage: fmt.Sprintf("%s not met: acks=%d required=%d", level, acks, required),
	}, nil
}

func eachQuorum(params *replication.Params, datacenters []string, perDC map[string]int, required int) (Result, error) {
	need, err := BlockForEach(params, datacenters)
	if err != nil {
		return Result{}, err
	}
	res := Result{Required: required}
	var short []string
	for _, dc := range datacenters {
		n, ok := need[dc]
		if !ok {
			continue
		}
		res.Acks += min(perDC[dc], n)
		if perDC[dc] < n {
			short = append(short, fmt.Sprintf("%s=%d/%d", dc, perDC[dc], n))
		}
	}
	if len(short) > 0 {
		res.ErrorMessage = fmt.Sprintf("%s not met: %s", EachQuorum, strings.Join(short, " "))
		return res, nil
	}
	res.Success = true
	return res, nil
}

package replication

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Recognized replication options. Any other option key names a datacenter
// and carries that datacenter's replication factor.
const (
	ReplicationFactorOption   = "replication_factor"
	ExcludedDatacentersOption = "excluded_datacenters"
)

var (
	// ErrMissingReplicationFactor is returned when a datacenter that is not
	// excluded has no replication factor.
	ErrMissingReplicationFactor = errors.New("missing replication factor")
	// ErrMalformedOption is returned for unparsable or negative option values.
	ErrMalformedOption = errors.New("malformed replication option")
)

// Params holds per-datacenter replication factors.
type Params struct {
	factors    map[string]int
	fallback   int
	hasDefault bool
	excluded   map[string]struct{}
}

// NewParams returns parameters with explicit per-datacenter factors.
func NewParams(factors map[string]int, excluded ...string) *Params {
	p := &Params{
		factors:  make(map[string]int, len(factors)),
		excluded: make(map[string]struct{}, len(excluded)),
	}
	for dc, rf := range factors {
		p.factors[dc] = rf
	}
	for _, dc := range excluded {
		p.excluded[dc] = struct{}{}
	}
	return p
}

// Uniform returns parameters applying rf to every datacenter that is not
// excluded.
func Uniform(rf int, excluded ...string) *Params {
	p := NewParams(nil, excluded...)
	p.fallback = rf
	p.hasDefault = true
	return p
}

// ParseOptions builds parameters from replication options and validates them
// against the given datacenters. Every problem found is reported.
func ParseOptions(opts map[string]string, datacenters []string) (*Params, error) {
	var result error
	p := NewParams(nil)

	keys := lo.Keys(opts)
	slices.Sort(keys)
	for _, key := range keys {
		value := opts[key]
		switch key {
		case ExcludedDatacentersOption:
			for _, dc := range strings.Split(value, ",") {
				if dc = strings.TrimSpace(dc); dc != "" {
					p.excluded[dc] = struct{}{}
				}
			}
		case ReplicationFactorOption:
			rf, err := parseFactor(key, value)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			p.fallback = rf
			p.hasDefault = true
		default:
			rf, err := parseFactor(key, value)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			p.factors[strings.TrimSpace(key)] = rf
		}
	}

	if err := p.Validate(datacenters); err != nil {
		result = multierror.Append(result, err)
	}
	if result != nil {
		return nil, result
	}
	return p, nil
}

func parseFactor(key, value string) (int, error) {
	rf, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedOption, "%s=%q: %v", key, value, err)
	}
	if rf < 0 {
		return 0, errors.Wrapf(ErrMalformedOption, "%s=%q: negative replication factor", key, value)
	}
	return rf, nil
}

// Factor returns the replication factor of dc. Excluded datacenters report
// zero. The boolean is false when dc has no factor at all.
func (p *Params) Factor(dc string) (int, bool) {
	if p.Excluded(dc) {
		return 0, true
	}
	if rf, ok := p.factors[dc]; ok {
		return rf, true
	}
	return p.fallback, p.hasDefault
}

// Excluded reports whether dc is excluded from replication.
func (p *Params) Excluded(dc string) bool {
	_, ok := p.excluded[dc]
	return ok
}

// Validate checks that every datacenter has a replication factor.
func (p *Params) Validate(datacenters []string) error {
	var result error
	for _, dc := range datacenters {
		if _, ok := p.Factor(dc); !ok {
			result = multierror.Append(result, errors.Wrapf(ErrMissingReplicationFactor, "datacenter %q", dc))
		}
	}
	return result
}

// TotalFactor returns the sum of the replication factors of datacenters.
func (p *Params) TotalFactor(datacenters []string) int {
	return lo.SumBy(datacenters, func(dc string) int {
		rf, _ := p.Factor(dc)
		return rf
	})
}

// ExplicitDatacenters returns the sorted datacenters with an explicit factor.
func (p *Params) ExplicitDatacenters() []string {
	dcs := lo.Keys(p.factors)
	slices.Sort(dcs)
	return dcs
}

func (p *Params) String() string {
	var parts []string
	if p.hasDefault {
		parts = append(parts, fmt.Sprintf("%s=%d", ReplicationFactorOption, p.fallback))
	}
	for _, dc := range p.ExplicitDatacenters() {
		parts = append(parts, fmt.Sprintf("%s=%d", dc, p.factors[dc]))
	}
	if len(p.excluded) > 0 {
		excluded := lo.Keys(p.excluded)
		slices.Sort(excluded)
		parts = append(parts, fmt.Sprintf("%s=%s", ExcludedDatacentersOption, strings.Join(excluded, ",")))
	}
	return strings.Join(parts, " ")
}

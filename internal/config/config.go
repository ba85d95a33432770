package config

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tokenring/internal/metrics"
	"tokenring/internal/offline"
	"tokenring/internal/quorum"
	"tokenring/internal/token"
)

// Configuration keys. They double as flag names.
const (
	KeyReplicationFactor = "rf"
	KeyTokens            = "tokens"
	KeyNodesPerRack      = "nodes-per-rack"
	KeyPartitioner       = "partitioner"
	KeySeed              = "seed"
	KeyCandidates        = "candidates"
	KeyMaxStdevGrowth    = "max-stdev-growth"
	KeyLogLevel          = "log-level"
	KeyOutput            = "output"
	KeyMetricsFile       = "metrics-file"
	KeyConsistency       = "consistency"
)

const (
	OutputTable = "table"
	OutputYAML  = "yaml"
)

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the allocation tool configuration.
type Config struct {
	ReplicationFactor int
	TokensPerNode     int
	NodesPerRack      []int
	Partitioner       string
	Seed              int64
	Candidates        int
	MaxStdevGrowth    float64
	LogLevel          string
	Output            string
	MetricsFile       string
	// Consistency is the level whose requirement is reported by place.
	Consistency string
}

// ParseNodesPerRack parses a comma-separated list of node counts, one per
// rack, e.g. "2,4,8".
func ParseNodesPerRack(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return []int{}, nil
	}

	parts := strings.Split(s, ",")
	counts := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Errorf("invalid rack size: %s", part)
		}
		if n < 0 {
			return nil, errors.Errorf("rack size cannot be negative: %s", part)
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// ParseReplicationOptions parses replication options given as key=value
// entries, e.g. "replication_factor=3" or "datacenter1=2".
func ParseReplicationOptions(entries []string) (map[string]string, error) {
	opts := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Wrapf(ErrInvalidConfig, "replication option %q is not key=value", entry)
		}
		if _, dup := opts[key]; dup {
			return nil, errors.Wrapf(ErrInvalidConfig, "replication option %q given twice", key)
		}
		opts[key] = strings.TrimSpace(value)
	}
	return opts, nil
}

// FromViper reads the configuration from v. nodes-per-rack may be either a
// comma-separated string (flags, environment) or a list (config file).
func FromViper(v *viper.Viper) (*Config, error) {
	var nodesPerRack []int
	switch raw := v.Get(KeyNodesPerRack).(type) {
	case []interface{}, []int:
		counts, err := cast.ToIntSliceE(raw)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "%s: %v", KeyNodesPerRack, err)
		}
		nodesPerRack = counts
	default:
		counts, err := ParseNodesPerRack(v.GetString(KeyNodesPerRack))
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "%s: %v", KeyNodesPerRack, err)
		}
		nodesPerRack = counts
	}

	return &Config{
		ReplicationFactor: v.GetInt(KeyReplicationFactor),
		TokensPerNode:     v.GetInt(KeyTokens),
		NodesPerRack:      nodesPerRack,
		Partitioner:       v.GetString(KeyPartitioner),
		Seed:              v.GetInt64(KeySeed),
		Candidates:        v.GetInt(KeyCandidates),
		MaxStdevGrowth:    v.GetFloat64(KeyMaxStdevGrowth),
		LogLevel:          v.GetString(KeyLogLevel),
		Output:            v.GetString(KeyOutput),
		MetricsFile:       v.GetString(KeyMetricsFile),
		Consistency:       v.GetString(KeyConsistency),
	}, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.ReplicationFactor < 1 {
		result = multierror.Append(result, errors.Errorf("%s must be positive, got %d", KeyReplicationFactor, c.ReplicationFactor))
	}
	if c.TokensPerNode < 1 {
		result = multierror.Append(result, errors.Errorf("%s must be positive, got %d", KeyTokens, c.TokensPerNode))
	}
	if len(c.NodesPerRack) == 0 {
		result = multierror.Append(result, errors.Errorf("%s must name at least one rack", KeyNodesPerRack))
	}
	for i, n := range c.NodesPerRack {
		if n < 0 {
			result = multierror.Append(result, errors.Errorf("%s: rack %d has negative size %d", KeyNodesPerRack, i, n))
		}
	}
	if _, err := token.Lookup(c.Partitioner); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Candidates < 0 {
		result = multierror.Append(result, errors.Errorf("%s must not be negative, got %d", KeyCandidates, c.Candidates))
	}
	if c.MaxStdevGrowth < 0 {
		result = multierror.Append(result, errors.Errorf("%s must not be negative, got %g", KeyMaxStdevGrowth, c.MaxStdevGrowth))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Output != OutputTable && c.Output != OutputYAML {
		result = multierror.Append(result, errors.Errorf("%s must be %q or %q, got %q", KeyOutput, OutputTable, OutputYAML, c.Output))
	}
	if c.Consistency != "" {
		if _, err := quorum.ParseLevel(c.Consistency); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result.ErrorOrNil() == nil {
		return nil
	}
	err := multierror.Append(ErrInvalidConfig, result.Errors...)
	err.ErrorFormat = func(errs []error) string {
		msgs := lo.Map(errs[1:], func(err error, _ int) string { return err.Error() })
		return errs[0].Error() + ": " + strings.Join(msgs, "; ")
	}
	return err
}

// Offline builds the offline allocation parameters.
func (c *Config) Offline(logger *zap.Logger, m *metrics.Metrics) (offline.Config, error) {
	p, err := token.Lookup(c.Partitioner)
	if err != nil {
		return offline.Config{}, err
	}
	return offline.Config{
		ReplicationFactor: c.ReplicationFactor,
		TokensPerNode:     c.TokensPerNode,
		NodesPerRack:      c.NodesPerRack,
		Partitioner:       p,
		Seed:              c.Seed,
		Candidates:        c.Candidates,
		MaxStdevGrowth:    c.MaxStdevGrowth,
		Logger:            logger,
		Metrics:           m,
	}, nil
}

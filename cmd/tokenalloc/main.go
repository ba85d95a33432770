package main

import (
	"net/netip"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tokenring/internal/allocator"
	"tokenring/internal/config"
	"tokenring/internal/metrics"
	"tokenring/internal/offline"
	"tokenring/internal/quorum"
	"tokenring/internal/replication"
	"tokenring/internal/ring"
	"tokenring/internal/token"
	"tokenring/internal/topology"
)

var rootCmd = &cobra.Command{
	Use:   "tokenalloc",
	Short: "Plans token assignments for a new cluster",

	SilenceUsage: true,
}

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Allocate tokens for every node of a new single-datacenter cluster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := allocate()
		if err != nil {
			return err
		}
		defer run.logger.Sync() //nolint:errcheck
		return writeAssignments(cmd.OutOrStdout(), run.cfg.Output, run.assignments)
	},
}

var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Allocate tokens, then show the replicas of the given tokens or keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(placeReq.tokens) == 0 && len(placeReq.keys) == 0 {
			return errors.New("at least one --token or --key is required")
		}
		run, err := allocate()
		if err != nil {
			return err
		}
		defer run.logger.Sync() //nolint:errcheck

		placements, err := place(run, placeReq)
		if err != nil {
			return err
		}
		return writePlacements(cmd.OutOrStdout(), run.cfg.Output, placements)
	},
}

var (
	cfgFile  string
	placeReq placeRequest
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "specifies a config file to load")

	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.Int(config.KeyReplicationFactor, 3, "the replication factor of the datacenter")
	configFlags.Int(config.KeyTokens, allocator.DefaultTokens, "the number of tokens per node")
	configFlags.String(config.KeyNodesPerRack, "", "comma-separated node count of every rack, e.g. 2,4,8")
	configFlags.String(config.KeyPartitioner, token.HashPartitionerName, "the token space: "+strings.Join(token.Names(), " or "))
	configFlags.Int64(config.KeySeed, 0, "the seed for random token generation")
	configFlags.Int(config.KeyCandidates, allocator.DefaultCandidates, "the number of arcs evaluated per token")
	configFlags.Float64(config.KeyMaxStdevGrowth, offline.DefaultMaxStdevGrowth, "the ownership stddev growth that triggers a warning")
	configFlags.String(config.KeyLogLevel, "info", "the log level to run at")
	configFlags.String(config.KeyOutput, config.OutputTable, "the output format: table or yaml")
	configFlags.String(config.KeyMetricsFile, "", "write allocation metrics to this file in the Prometheus text format")
	configFlags.String(config.KeyConsistency, "", "report the acknowledgements this consistency level requires")
	rootCmd.PersistentFlags().AddFlagSet(configFlags)

	placeCmd.Flags().StringSliceVar(&placeReq.tokens, "token", nil, "a token to place, in the partitioner's format")
	placeCmd.Flags().StringSliceVar(&placeReq.keys, "key", nil, "a key to hash and place")
	placeCmd.Flags().StringArrayVar(&placeReq.options, "replication-option", nil,
		"a replication option as key=value, e.g. replication_factor=3 or "+offline.Datacenter+"=2; replaces --rf for placement")
	placeCmd.Flags().StringSliceVar(&placeReq.down, "down", nil, "a node address to treat as unavailable")
	placeCmd.Flags().StringSliceVar(&placeReq.downRacks, "down-rack", nil, "a rack whose nodes are all unavailable")

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("tokenalloc")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(configFlags)

	rootCmd.AddCommand(allocateCmd, placeCmd)
}

func getLogger() (zap.AtomicLevel, *zap.Logger) {
	logLevel := zap.NewAtomicLevel()
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(logConfig)
	core := zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stderr), logLevel)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logLevel, logger
}

func readConfig(logger *zap.Logger) (*config.Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "loading config file %s", cfgFile)
		}
	}

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("parsed configuration",
		zap.String("config", cfgFile),
		zap.Int("rf", cfg.ReplicationFactor),
		zap.Int("tokens", cfg.TokensPerNode),
		zap.Ints("nodesPerRack", cfg.NodesPerRack),
		zap.String("partitioner", cfg.Partitioner),
		zap.Int64("seed", cfg.Seed),
		zap.Int("candidates", cfg.Candidates),
		zap.Float64("maxStdevGrowth", cfg.MaxStdevGrowth),
		zap.String("output", cfg.Output),
		zap.String("metricsFile", cfg.MetricsFile))
	return cfg, nil
}

type allocation struct {
	cfg         *config.Config
	logger      *zap.Logger
	partitioner token.Partitioner
	assignments []offline.Assignment
}

func allocate() (*allocation, error) {
	logLevel, logger := getLogger()

	cfg, err := readConfig(logger)
	if err != nil {
		return nil, err
	}
	parsedLogLevel, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn("invalid log level specified, using INFO instead")
		parsedLogLevel = zapcore.InfoLevel
	}
	logLevel.SetLevel(parsedLogLevel)

	reg := prometheus.NewRegistry()
	oc, err := cfg.Offline(logger.Named("offline"), metrics.New(reg))
	if err != nil {
		return nil, err
	}
	assignments, err := offline.Allocate(oc)
	if err != nil {
		return nil, err
	}

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			return nil, errors.Wrapf(err, "writing metrics to %s", cfg.MetricsFile)
		}
		logger.Info("wrote metrics", zap.String("path", cfg.MetricsFile))
	}

	return &allocation{
		cfg:         cfg,
		logger:      logger,
		partitioner: oc.Partitioner,
		assignments: assignments,
	}, nil
}

// placeRequest holds the inputs of the place command.
type placeRequest struct {
	tokens    []string
	keys      []string
	options   []string
	down      []string
	downRacks []string
}

func place(run *allocation, req placeRequest) ([]placement, error) {
	r, idx, err := offline.BuildRing(run.assignments)
	if err != nil {
		return nil, err
	}
	dcs := idx.Datacenters()

	params := replication.Uniform(run.cfg.ReplicationFactor)
	if len(req.options) > 0 {
		opts, err := config.ParseReplicationOptions(req.options)
		if err != nil {
			return nil, err
		}
		if params, err = replication.ParseOptions(opts, dcs); err != nil {
			return nil, errors.Wrap(err, "parsing replication options")
		}
	}
	calc, err := replication.NewStrategy(params).Calculator(r, idx)
	if err != nil {
		return nil, err
	}

	down, err := unavailable(idx, req.down, req.downRacks)
	if err != nil {
		return nil, err
	}

	var (
		level        quorum.Level
		blockFor     int
		blockForEach map[string]int
	)
	if run.cfg.Consistency != "" {
		if level, err = quorum.ParseLevel(run.cfg.Consistency); err != nil {
			return nil, err
		}
		if blockFor, err = quorum.BlockFor(level, params, dcs, offline.Datacenter); err != nil {
			return nil, err
		}
		if level == quorum.EachQuorum {
			if blockForEach, err = quorum.BlockForEach(params, dcs); err != nil {
				return nil, err
			}
		}
	}

	type input struct {
		label string
		token token.Token
	}
	inputs := make([]input, 0, len(req.tokens)+len(req.keys))
	for _, s := range req.tokens {
		t, err := run.partitioner.ParseToken(s)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input{label: s, token: t})
	}
	for _, key := range req.keys {
		inputs = append(inputs, input{label: key, token: run.partitioner.TokenForKey([]byte(key))})
	}

	placements := make([]placement, 0, len(inputs))
	for _, in := range inputs {
		replicas, err := calc.NaturalEndpoints(in.token)
		if err != nil {
			return nil, errors.Wrapf(err, "placing %s", in.label)
		}
		p := placement{Input: in.label, Token: in.token.String(), BlockFor: blockFor, BlockForEach: blockForEach}
		for _, n := range replicas {
			loc, _ := calc.Location(n)
			p.Replicas = append(p.Replicas, n.String()+"/"+loc.Rack)
		}

		if run.cfg.Consistency != "" {
			live := lo.Reject(replicas, func(n ring.Node, _ int) bool {
				_, ok := down[n]
				return ok
			})
			res, err := quorum.Satisfied(level, params, dcs, offline.Datacenter, live, idx)
			if err != nil {
				return nil, err
			}
			p.Acks = res.Acks
			p.Available = lo.ToPtr(res.Success)
			p.Problem = res.ErrorMessage
		}
		placements = append(placements, p)
	}
	return placements, nil
}

// unavailable resolves the nodes named by address or by rack.
func unavailable(idx *topology.Index, addrs, racks []string) (map[ring.Node]struct{}, error) {
	down := make(map[ring.Node]struct{})
	for _, s := range addrs {
		n, err := netip.ParseAddrPort(s)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing unavailable node %q", s)
		}
		if _, err := idx.Location(n); err != nil {
			return nil, err
		}
		down[n] = struct{}{}
	}
	for _, rack := range racks {
		nodes := idx.Nodes(offline.Datacenter, rack)
		if len(nodes) == 0 {
			return nil, errors.Wrapf(topology.ErrUnknownNode, "rack %q has no nodes", rack)
		}
		for _, n := range nodes {
			down[n] = struct{}{}
		}
	}
	return down, nil
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}

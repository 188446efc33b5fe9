package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hxuan190/batch-solver/internal/config"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	logLevel      string
	workers       int
	maxExecOrders int
	minTradable   string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "batch-solver",
		Short: "Batch-auction token-pair solver",
		Long: `batch-solver clears a batch of limit orders between two tokens at a
uniform exchange rate, settles the trading fee in the fee token and rounds
the result to integer amounts. Problems and solutions are JSON files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts.logLevel)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", common.GetEnvOrDefault("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flags.IntVar(&opts.workers, "workers", 0, "pairs evaluated concurrently (0 keeps the configured value)")
	flags.IntVar(&opts.maxExecOrders, "max-exec-orders", -1, "cap on executed orders per solution (-1 keeps the configured value, 0 disables)")
	flags.StringVar(&opts.minTradable, "min-tradable", "", "minimum nonzero executed amount")

	rootCmd.AddCommand(
		newTokenPairCmd(opts),
		newBestTokenPairCmd(opts),
		newServeCmd(),
	)
	return rootCmd
}

// Execute runs the command tree and exits nonzero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// solverConfig loads the environment settings and applies flag overrides.
func (o *rootOptions) solverConfig() (*config.SolverConfig, error) {
	conf := &config.SolverConfig{}
	if err := conf.Load(); err != nil {
		return nil, fmt.Errorf("load solver config: %w", err)
	}
	if o.workers > 0 {
		conf.Workers = o.workers
	}
	if o.maxExecOrders >= 0 {
		conf.MaxExecOrders = o.maxExecOrders
	}
	if o.minTradable != "" {
		v, err := parseDecimalFlag("min-tradable", o.minTradable)
		if err != nil {
			return nil, err
		}
		conf.MinTradableAmount = v
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

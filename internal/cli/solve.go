package cli

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/hxuan190/batch-solver/internal/aggregator"
	"github.com/hxuan190/batch-solver/internal/codec"
	"github.com/hxuan190/batch-solver/internal/domain"
)

// stdio names standard input or output in the file flags.
const stdio = "-"

type ioOptions struct {
	input  string
	output string
}

func (o *ioOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.input, "input", "i", stdio, "problem file, - for stdin")
	cmd.Flags().StringVarP(&o.output, "output", "o", stdio, "solution file, - for stdout")
}

func newTokenPairCmd(root *rootOptions) *cobra.Command {
	var (
		files ioOptions
		xrate string
	)

	cmd := &cobra.Command{
		Use:   "token-pair <B> <S>",
		Short: "Clear the orders between tokens B and S",
		Long: `Clear the orders between tokens B and S. The exchange rate is p(B)/p(S);
when --xrate is omitted the rate maximizing matched volume is searched.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair := domain.TokenPair{B: domain.TokenID(args[0]), S: domain.TokenID(args[1])}
			if pair.B == pair.S {
				return fmt.Errorf("token pair must name two distinct tokens, got %s twice", pair.B)
			}

			var rate *big.Rat
			if xrate != "" {
				r, err := codec.ParseXRate(xrate)
				if err != nil {
					return err
				}
				rate = r
			}

			svc, inst, err := prepare(root, files.input)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			sol, err := svc.SolveTokenPair(ctx, inst.Problem, pair, rate)
			if err != nil {
				return err
			}
			return writeSolution(cmd.OutOrStdout(), files.output, inst, sol)
		},
	}
	files.register(cmd)
	cmd.Flags().StringVar(&xrate, "xrate", "", "fixed exchange rate p(B)/p(S), as p/q or a decimal")
	return cmd
}

func newBestTokenPairCmd(root *rootOptions) *cobra.Command {
	var (
		files     ioOptions
		timeLimit time.Duration
		seed      uint64
	)

	cmd := &cobra.Command{
		Use:   "best-token-pair",
		Short: "Search every eligible token pair and keep the best solution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeLimit < 0 {
				return fmt.Errorf("time limit must not be negative")
			}

			svc, inst, err := prepare(root, files.input)
			if err != nil {
				return err
			}

			opts := svc.DefaultOptions()
			if cmd.Flags().Changed("time-limit") {
				opts.TimeLimit = timeLimit
			}
			if seed != 0 {
				opts.Rand = rand.New(rand.NewPCG(seed, seed))
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			sol, err := svc.SolveBestPair(ctx, inst.Problem, opts)
			if err != nil {
				return err
			}
			return writeSolution(cmd.OutOrStdout(), files.output, inst, sol)
		},
	}
	files.register(cmd)
	cmd.Flags().DurationVar(&timeLimit, "time-limit", 0, "stop starting new pairs after this long (0 for no limit)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for the pair visit order (0 keeps the configured value)")
	return cmd
}

func prepare(root *rootOptions, input string) (*aggregator.Service, *codec.Instance, error) {
	conf, err := root.solverConfig()
	if err != nil {
		return nil, nil, err
	}
	data, err := readInput(input)
	if err != nil {
		return nil, nil, err
	}
	inst, err := codec.DecodeProblem(data, conf.MinTradable())
	if err != nil {
		return nil, nil, err
	}
	log.Debug().
		Int("orders", len(inst.Problem.Orders)).
		Int("tokens", len(inst.Problem.Tokens())).
		Str("fee_token", string(inst.Problem.Fee.Token)).
		Msg("[cli] problem loaded")
	return aggregator.NewService(conf), inst, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func readInput(path string) ([]byte, error) {
	if path == stdio {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem: %w", err)
	}
	return data, nil
}

// writeSolution writes through a temporary file in the target directory so
// a reader never sees a partial solution.
func writeSolution(stdout io.Writer, path string, inst *codec.Instance, sol *domain.Solution) error {
	data, err := codec.EncodeSolution(inst, sol)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if path == stdio {
		_, err := stdout.Write(data)
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write solution: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write solution: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write solution: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write solution: %w", err)
	}
	log.Info().Str("path", path).Str("run_id", sol.RunID).Msg("[cli] solution written")
	return nil
}

func parseDecimalFlag(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return d, nil
}

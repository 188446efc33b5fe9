package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	container "github.com/thehyperflames/dicontainer-go"
	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/batch-solver/internal/common"
	"github.com/hxuan190/batch-solver/internal/config"
	"github.com/hxuan190/batch-solver/internal/domain"
	"github.com/hxuan190/batch-solver/internal/metrics"
	"github.com/hxuan190/batch-solver/internal/services"
	"github.com/hxuan190/batch-solver/internal/services/solver"
)

const AGGREGATOR_SERVICE = "aggregator-service"

var ErrNilProblem = errors.New("problem is nil")

// SearchOptions controls one best-pair search.
type SearchOptions struct {
	// TimeLimit stops enumeration between pairs; 0 disables it.
	TimeLimit time.Duration
	// Workers bounds the pairs evaluated concurrently.
	Workers int
	// Rand shuffles the visit order. Results are folded in visit order, so a
	// fixed source makes the choice among equal scores reproducible.
	Rand *rand.Rand
}

// pairSolver clears one token pair on a private snapshot.
type pairSolver interface {
	Solve(snap *domain.Snapshot, pair domain.TokenPair, xrate *big.Rat) (*domain.Solution, error)
}

type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger
	config *config.SolverConfig
	solver pairSolver
}

// NewService builds the service outside the container, for the CLI and tests.
func NewService(conf *config.SolverConfig) *Service {
	svc := &Service{}
	svc.init(conf)
	return svc
}

func (svc *Service) ID() string {
	return AGGREGATOR_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	conf, ok := c.GetConfig(config.SOLVER_CONFIG_KEY).(*config.SolverConfig)
	if !ok || conf == nil {
		return errors.New("invalid solver config")
	}
	svc.init(conf)
	return nil
}

func (svc *Service) init(conf *config.SolverConfig) {
	svc.logger = services.NewServiceLogger(svc)
	svc.config = conf
	svc.solver = solver.NewTokenPairSolver(conf.Params())
}

func (svc *Service) Start() error {
	return nil
}

func (svc *Service) Stop() error {
	return nil
}

func (svc *Service) Config() *config.SolverConfig {
	return svc.config
}

// DefaultOptions reads the search settings from the solver config. A zero
// seed draws a fresh one.
func (svc *Service) DefaultOptions() SearchOptions {
	seed := svc.config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return SearchOptions{
		TimeLimit: svc.config.TimeLimit,
		Workers:   svc.config.Workers,
		Rand:      rand.New(rand.NewPCG(seed, seed)),
	}
}

type pairResult struct {
	solution *domain.Solution
	err      error
	done     bool
}

// SolveBestPair runs every eligible pair and keeps the highest score. A
// strictly greater score replaces the best; ties keep the pair visited first.
// Pairs not started when the time limit expires are skipped and the best
// candidate found so far is returned, marked time-limited. Cancellation of
// ctx by the caller aborts the search with the context error instead.
func (svc *Service) SolveBestPair(ctx context.Context, problem *domain.Problem, opts SearchOptions) (*domain.Solution, error) {
	if problem == nil {
		return nil, ErrNilProblem
	}
	start := time.Now()
	runID := uuid.NewString()
	logger := svc.logger.With(runID)

	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}
	rng := opts.Rand
	if rng == nil {
		rng = svc.DefaultOptions().Rand
	}
	workers := max(1, opts.Workers)

	pairs := EligiblePairs(problem.Orders, problem.Fee.Token)
	rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
	metrics.EligiblePairs.Observe(float64(len(pairs)))

	logger.Debug().
		Int("orders", len(problem.Orders)).
		Int("pairs", len(pairs)).
		Int("connected_tokens", len(ConnectedTokens(problem.Orders, problem.Fee.Token))).
		Int("workers", workers).
		Msg("[aggregatorService] starting best pair search")

	results := make([]pairResult, len(pairs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			sol, err := svc.solvePair(problem, pair, nil)
			results[i] = pairResult{solution: sol, err: err, done: true}
			return nil
		})
	}
	_ = g.Wait()

	best := domain.TrivialSolution()
	status := domain.StatusCompleted
	for i, r := range results {
		if !r.done {
			status = domain.StatusTimeLimited
			metrics.PairsSkipped.Inc()
			continue
		}
		if r.err != nil {
			logOutcome(logger, pairs[i], r.err)
			continue
		}
		if r.solution.Score.Cmp(best.Score) > 0 {
			best = r.solution
		}
	}
	if status == domain.StatusTimeLimited {
		if err := ctx.Err(); !errors.Is(err, context.DeadlineExceeded) {
			metrics.SearchRequests.WithLabelValues("best_pair", "interrupted").Inc()
			logger.Warn().Err(err).Msg("[aggregatorService] best pair search interrupted")
			return nil, fmt.Errorf("best pair search interrupted: %w", err)
		}
		logger.Warn().Dur("time_limit", opts.TimeLimit).Msg("[aggregatorService] time limit reached")
	}

	best.RunID = runID
	best.Runtime = time.Since(start)
	best.Status = status
	observe("best_pair", best)
	score, _ := new(big.Float).SetInt(best.Score).Float64()
	metrics.BestObjective.Set(score)

	event := logger.Info().
		Str("status", string(best.Status)).
		Str("score", best.Score.String()).
		Int("orders_touched", len(best.Orders)).
		Dur("runtime", best.Runtime)
	if best.TokenPair != nil {
		event = event.Str("pair", best.TokenPair.String())
	}
	event.Msg("[aggregatorService] best pair search finished")
	return best, nil
}

// SolveTokenPair runs a single pair, optionally at a fixed clearing rate.
// Expected no-trade outcomes yield the trivial solution; a validation
// failure is returned as an error and never as a solution.
func (svc *Service) SolveTokenPair(ctx context.Context, problem *domain.Problem, pair domain.TokenPair, xrate *big.Rat) (*domain.Solution, error) {
	if problem == nil {
		return nil, ErrNilProblem
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	runID := uuid.NewString()
	logger := svc.logger.With(runID)

	sol, err := svc.solvePair(problem, pair, xrate)
	if err != nil {
		logOutcome(logger, pair, err)
		if !common.IsExpectedOutcome(err) {
			metrics.SearchRequests.WithLabelValues("token_pair", "failed").Inc()
			return nil, fmt.Errorf("solve %s: %w", pair, err)
		}
		sol = domain.TrivialSolution()
		sol.TokenPair = &pair
	}

	sol.RunID = runID
	sol.Runtime = time.Since(start)
	sol.Status = domain.StatusCompleted
	observe("token_pair", sol)

	logger.Info().
		Str("pair", pair.String()).
		Str("score", sol.Score.String()).
		Int("orders_touched", len(sol.Orders)).
		Dur("runtime", sol.Runtime).
		Msg("[aggregatorService] token pair solved")
	return sol, nil
}

func (svc *Service) solvePair(problem *domain.Problem, pair domain.TokenPair, xrate *big.Rat) (*domain.Solution, error) {
	start := time.Now()
	sol, err := svc.solver.Solve(problem.Snapshot(), pair, xrate)
	metrics.PairDuration.Observe(time.Since(start).Seconds())
	metrics.PairsEvaluated.Inc()
	metrics.PairOutcomes.WithLabelValues(common.OutcomeLabel(err)).Inc()
	return sol, err
}

func logOutcome(logger *services.ServiceLogger, pair domain.TokenPair, err error) {
	var verr *solver.ValidationError
	switch {
	case errors.As(err, &verr):
		metrics.ValidationFailures.WithLabelValues(verr.Rule).Inc()
		logger.Error().Err(err).Str("pair", pair.String()).Str("rule", verr.Rule).
			Msg("[aggregatorService] rounded solution failed validation")
	case errors.Is(err, common.ErrUnroundable):
		logger.Warn().Err(err).Str("pair", pair.String()).Msg("[aggregatorService] pair could not be rounded")
	case common.IsExpectedOutcome(err):
		logger.Debug().Err(err).Str("pair", pair.String()).Msg("[aggregatorService] pair yields no trade")
	default:
		logger.Error().Err(err).Str("pair", pair.String()).Msg("[aggregatorService] pair failed")
	}
}

func observe(mode string, sol *domain.Solution) {
	metrics.SearchRequests.WithLabelValues(mode, string(sol.Status)).Inc()
	metrics.SearchDuration.WithLabelValues(mode).Observe(sol.Runtime.Seconds())
	metrics.OrdersTouched.Observe(float64(len(sol.Orders)))
}

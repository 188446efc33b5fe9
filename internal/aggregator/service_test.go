package aggregator

import (
	"context"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/batch-solver/internal/common/exact"
	"github.com/hxuan190/batch-solver/internal/config"
	"github.com/hxuan190/batch-solver/internal/domain"
	"github.com/hxuan190/batch-solver/internal/metrics"
)

func newTestService(t testing.TB) *Service {
	t.Helper()
	conf := config.DefaultSolverConfig()
	conf.Seed = 42
	require.NoError(t, conf.Validate())
	return NewService(conf)
}

func testFee(t testing.TB) domain.Fee {
	t.Helper()
	fee, err := domain.NewFee("F", exact.R(1, 1000))
	require.NoError(t, err)
	return fee
}

// twoOrderProblem clears completely on the fee token pair F-Y.
func twoOrderProblem(t testing.TB) *domain.Problem {
	t.Helper()
	minTradable := exact.FromInt64(10_000)
	ledger := domain.NewLedger()
	require.NoError(t, ledger.SetBig("a", "F", big.NewInt(100_000_000)))
	require.NoError(t, ledger.SetBig("b", "Y", big.NewInt(100_000_000)))
	return domain.NewProblem(ledger, []domain.Order{
		domain.NewOrder("0", "a", "F", "Y", exact.FromInt64(100_000_000), exact.FromInt64(90_000_000), minTradable),
		domain.NewOrder("1", "b", "Y", "F", exact.FromInt64(100_000_000), exact.FromInt64(80_000_000), minTradable),
	}, testFee(t))
}

func randomProblem(rng *rand.Rand, fee domain.Fee) *domain.Problem {
	tokens := []domain.TokenID{"F", "W", "Y", "Z"}
	accounts := []string{"a", "b", "c", "d"}
	minTradable := exact.FromInt64(10_000)

	ledger := domain.NewLedger()
	for _, account := range accounts {
		for _, token := range tokens {
			_ = ledger.SetBig(account, token, big.NewInt(rng.Int64N(50_000_000)))
		}
	}

	orders := make([]domain.Order, 0, 16)
	for i := 0; i < 16; i++ {
		sell := tokens[rng.IntN(len(tokens))]
		buy := tokens[rng.IntN(len(tokens))]
		if sell == buy {
			continue
		}
		maxSell := exact.FromInt64(rng.Int64N(20_000_000) + 1)
		maxBuy := exact.Mul(maxSell, exact.R(rng.Int64N(40)+80, 100))
		orders = append(orders, domain.NewOrder(fmt.Sprint(i), accounts[rng.IntN(len(accounts))], sell, buy, maxSell, maxBuy, minTradable))
	}
	return domain.NewProblem(ledger, orders, fee)
}

func TestSolveBestPairTwoOrders(t *testing.T) {
	svc := newTestService(t)

	sol, err := svc.SolveBestPair(context.Background(), twoOrderProblem(t), svc.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, sol.Status)
	assert.Equal(t, &domain.TokenPair{B: "F", S: "Y"}, sol.TokenPair)
	assert.Len(t, sol.Orders, 2)
	assert.Equal(t, "29790100000000000000000000", sol.Score.String())
	assert.Equal(t, "199900", sol.Objective.Fees.String())
	assert.NotEmpty(t, sol.RunID)
	assert.True(t, sol.Runtime > 0)
}

func TestSolveBestPairOneSideEmpty(t *testing.T) {
	svc := newTestService(t)
	minTradable := exact.FromInt64(10_000)
	ledger := domain.NewLedger()
	require.NoError(t, ledger.SetBig("a", "F", big.NewInt(100_000_000)))
	problem := domain.NewProblem(ledger, []domain.Order{
		domain.NewOrder("0", "a", "F", "Y", exact.FromInt64(100_000_000), exact.FromInt64(90_000_000), minTradable),
	}, testFee(t))

	sol, err := svc.SolveBestPair(context.Background(), problem, svc.DefaultOptions())
	require.NoError(t, err)

	assert.True(t, sol.IsTrivial())
	assert.Zero(t, sol.Score.Sign())
	assert.Zero(t, sol.Objective.Utility.Sign())
	assert.Zero(t, sol.Objective.Volume.Sign())
	assert.Equal(t, domain.StatusCompleted, sol.Status)
}

// The visit order only decides between equal scores, so every seed and pool
// size reaches the same best objective.
func TestSolveBestPairSeedIndependent(t *testing.T) {
	svc := newTestService(t)
	fee := testFee(t)
	rng := rand.New(rand.NewPCG(3, 5))

	for i := 0; i < 20; i++ {
		problem := randomProblem(rng, fee)

		var want *big.Int
		for seed := uint64(1); seed <= 4; seed++ {
			for _, workers := range []int{1, 4} {
				opts := SearchOptions{Workers: workers, Rand: rand.New(rand.NewPCG(seed, seed))}
				sol, err := svc.SolveBestPair(context.Background(), problem, opts)
				require.NoError(t, err)
				require.Equal(t, domain.StatusCompleted, sol.Status)

				if want == nil {
					want = sol.Score
					continue
				}
				require.Equal(t, want.String(), sol.Score.String(), "problem %d seed %d workers %d", i, seed, workers)
			}
		}
	}
}

func TestSolveBestPairDoesNotMutateProblem(t *testing.T) {
	svc := newTestService(t)
	problem := twoOrderProblem(t)

	_, err := svc.SolveBestPair(context.Background(), problem, SearchOptions{Workers: 2})
	require.NoError(t, err)

	for _, o := range problem.Orders {
		assert.False(t, o.Touched())
	}
	assert.Equal(t, uint64(100_000_000), problem.Ledger.Balance("a", "F").Uint64())
}

// scriptedSolver scores every pair with a fixed table and records the order
// in which pairs were started. The first call sleeps for delay.
type scriptedSolver struct {
	mu     sync.Mutex
	visits []domain.TokenPair
	scores map[domain.TokenPair]int64
	delay  time.Duration
}

func (s *scriptedSolver) Solve(_ *domain.Snapshot, pair domain.TokenPair, _ *big.Rat) (*domain.Solution, error) {
	s.mu.Lock()
	s.visits = append(s.visits, pair)
	first := len(s.visits) == 1
	s.mu.Unlock()

	if first {
		time.Sleep(s.delay)
	}
	sol := domain.TrivialSolution()
	sol.TokenPair = &pair
	sol.Score = big.NewInt(s.scores[pair])
	return sol, nil
}

func (s *scriptedSolver) visited() []domain.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TokenPair(nil), s.visits...)
}

// fourPairProblem has orders in both directions between F-Y and F-Z, which
// makes Y-Z, Z-Y, F-Y and F-Z eligible.
func fourPairProblem(t testing.TB) *domain.Problem {
	t.Helper()
	minTradable := exact.FromInt64(10_000)
	amount := exact.FromInt64(1_000_000)
	ledger := domain.NewLedger()
	require.NoError(t, ledger.SetBig("a", "F", big.NewInt(10_000_000)))
	require.NoError(t, ledger.SetBig("b", "Y", big.NewInt(10_000_000)))
	require.NoError(t, ledger.SetBig("b", "Z", big.NewInt(10_000_000)))
	return domain.NewProblem(ledger, []domain.Order{
		domain.NewOrder("0", "a", "F", "Y", amount, amount, minTradable),
		domain.NewOrder("1", "b", "Y", "F", amount, amount, minTradable),
		domain.NewOrder("2", "a", "F", "Z", amount, amount, minTradable),
		domain.NewOrder("3", "b", "Z", "F", amount, amount, minTradable),
	}, testFee(t))
}

func fourPairScores(score int64) map[domain.TokenPair]int64 {
	return map[domain.TokenPair]int64{
		{B: "Y", S: "Z"}: score,
		{B: "Z", S: "Y"}: score,
		{B: "F", S: "Y"}: score,
		{B: "F", S: "Z"}: score,
	}
}

func TestSolveBestPairTimeLimited(t *testing.T) {
	svc := newTestService(t)
	scripted := &scriptedSolver{
		scores: map[domain.TokenPair]int64{
			{B: "Y", S: "Z"}: 11,
			{B: "Z", S: "Y"}: 12,
			{B: "F", S: "Y"}: 13,
			{B: "F", S: "Z"}: 14,
		},
		delay: 200 * time.Millisecond,
	}
	svc.solver = scripted

	opts := SearchOptions{TimeLimit: 20 * time.Millisecond, Workers: 1, Rand: rand.New(rand.NewPCG(9, 9))}
	sol, err := svc.SolveBestPair(context.Background(), fourPairProblem(t), opts)
	require.NoError(t, err)

	// The first pair outlives the deadline; the remaining three never start.
	visits := scripted.visited()
	require.Len(t, visits, 1)
	assert.Equal(t, domain.StatusTimeLimited, sol.Status)
	assert.Equal(t, &visits[0], sol.TokenPair)
	assert.Equal(t, scripted.scores[visits[0]], sol.Score.Int64())
	assert.Positive(t, sol.Score.Sign())
	assert.NotEmpty(t, sol.RunID)
}

func TestSolveBestPairTiesKeepFirstVisited(t *testing.T) {
	svc := newTestService(t)
	problem := fourPairProblem(t)

	sequential := &scriptedSolver{scores: fourPairScores(7)}
	svc.solver = sequential
	sol, err := svc.SolveBestPair(context.Background(), problem, SearchOptions{Workers: 1, Rand: rand.New(rand.NewPCG(4, 4))})
	require.NoError(t, err)

	visits := sequential.visited()
	require.Len(t, visits, 4)
	assert.Equal(t, domain.StatusCompleted, sol.Status)
	assert.Equal(t, &visits[0], sol.TokenPair)

	// A wider pool starts pairs in any order but folds them in visit order.
	svc.solver = &scriptedSolver{scores: fourPairScores(7)}
	pooled, err := svc.SolveBestPair(context.Background(), problem, SearchOptions{Workers: 4, Rand: rand.New(rand.NewPCG(4, 4))})
	require.NoError(t, err)
	assert.Equal(t, sol.TokenPair, pooled.TokenPair)
}

func TestSolveBestPairCancelled(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sol, err := svc.SolveBestPair(ctx, twoOrderProblem(t), svc.DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, sol)
}

func TestBestObjectiveTracksBestPairOnly(t *testing.T) {
	svc := newTestService(t)
	problem := twoOrderProblem(t)

	best, err := svc.SolveBestPair(context.Background(), problem, svc.DefaultOptions())
	require.NoError(t, err)
	want, _ := new(big.Float).SetInt(best.Score).Float64()
	require.Positive(t, want)
	assert.Equal(t, want, testutil.ToFloat64(metrics.BestObjective))

	single, err := svc.SolveTokenPair(context.Background(), problem, domain.TokenPair{B: "Y", S: "Z"}, nil)
	require.NoError(t, err)
	require.True(t, single.IsTrivial())
	assert.Equal(t, want, testutil.ToFloat64(metrics.BestObjective))
}

func TestSolveTokenPair(t *testing.T) {
	svc := newTestService(t)
	problem := twoOrderProblem(t)

	t.Run("fixed rate", func(t *testing.T) {
		sol, err := svc.SolveTokenPair(context.Background(), problem, domain.TokenPair{B: "F", S: "Y"}, exact.R(1000, 999))
		require.NoError(t, err)
		assert.Len(t, sol.Orders, 2)
		assert.Equal(t, "999000000000000000", sol.Prices["Y"].String())
	})

	t.Run("infeasible pair degrades to trivial", func(t *testing.T) {
		sol, err := svc.SolveTokenPair(context.Background(), problem, domain.TokenPair{B: "Y", S: "Z"}, nil)
		require.NoError(t, err)
		assert.True(t, sol.IsTrivial())
		assert.Equal(t, &domain.TokenPair{B: "Y", S: "Z"}, sol.TokenPair)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.SolveTokenPair(ctx, problem, domain.TokenPair{B: "F", S: "Y"}, nil)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("nil problem", func(t *testing.T) {
		_, err := svc.SolveTokenPair(context.Background(), nil, domain.TokenPair{B: "F", S: "Y"}, nil)
		require.ErrorIs(t, err, ErrNilProblem)
	})
}

func BenchmarkSolveBestPair(b *testing.B) {
	svc := newTestService(b)
	problem := randomProblem(rand.New(rand.NewPCG(1, 2)), testFee(b))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = svc.SolveBestPair(context.Background(), problem, SearchOptions{Workers: 4, Rand: rand.New(rand.NewPCG(1, 1))})
	}
}

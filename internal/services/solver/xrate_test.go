package solver

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/batch-solver/internal/common"
	"github.com/hxuan190/batch-solver/internal/common/exact"
	"github.com/hxuan190/batch-solver/internal/domain"
)

func TestFindBestXRateInfeasible(t *testing.T) {
	fee := testFee(t, tokenF)
	params := DefaultParams()
	bid := limitOrder("bid", tokenY, tokenF, exact.FromInt64(1_000_000), exact.R(1, 2))
	ask := limitOrder("ask", tokenF, tokenY, exact.FromInt64(1_000_000), exact.R(1, 2))

	tests := []struct {
		name    string
		bOrders []domain.Order
		sOrders []domain.Order
	}{
		{name: "no b-orders", sOrders: []domain.Order{ask}},
		{name: "no s-orders", bOrders: []domain.Order{bid}},
		{name: "only unfillable orders", bOrders: []domain.Order{bid.WithMaxSellAmount(exact.Zero)}, sOrders: []domain.Order{ask}},
		{name: "limits do not cross", bOrders: []domain.Order{bid}, sOrders: []domain.Order{ask}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FindBestXRate(tt.bOrders, tt.sOrders, fee, params)
			require.ErrorIs(t, err, common.ErrInfeasiblePair)
		})
	}
}

// Both orders fill completely at the rate where their capacities balance,
// strictly inside the limit window.
func TestFindBestXRateBalancesCapacity(t *testing.T) {
	book := newTwoOrderBook(t)
	ask, bid := book.orders[0], book.orders[1]

	best, err := SearchXRate([]domain.Order{bid}, []domain.Order{ask}, book.fee, DefaultParams())
	require.NoError(t, err)

	requireRatEqual(t, exact.R(1000, 999), best.XRate)
	assert.Zero(t, best.Unmatched.Sign())

	b, s := ComputeBuyAmounts(best.XRate, []domain.Order{bid}, []domain.Order{ask}, book.fee, DefaultParams())
	requireRatEqual(t, bid.MaxSellAmount, b[0].SellAmount)
	requireRatEqual(t, ask.MaxSellAmount, s[0].SellAmount)
}

func TestXRateCandidatesStayInWindow(t *testing.T) {
	fee := testFee(t, tokenF)
	bOrders := []domain.Order{
		limitOrder("b1", tokenY, tokenF, exact.FromInt64(500_000), exact.FromInt64(2)),
		limitOrder("b2", tokenY, tokenF, exact.FromInt64(500_000), exact.R(3, 2)),
	}
	sOrders := []domain.Order{
		limitOrder("s1", tokenF, tokenY, exact.FromInt64(500_000), exact.FromInt64(2)),
		limitOrder("s2", tokenF, tokenY, exact.FromInt64(500_000), exact.FromInt64(4)),
	}

	candidates := xrateCandidates(bOrders, sOrders, fee)
	require.NotEmpty(t, candidates)

	lo := exact.Inv(exact.Mul(exact.FromInt64(4), fee.OneMinus()))
	hi := exact.Mul(exact.FromInt64(2), fee.OneMinus())
	for i, c := range candidates {
		assert.GreaterOrEqual(t, c.Cmp(lo), 0)
		assert.LessOrEqual(t, c.Cmp(hi), 0)
		if i > 0 {
			assert.Positive(t, c.Cmp(candidates[i-1]), "candidates must be strictly increasing")
		}
	}
	assert.Zero(t, candidates[0].Cmp(lo))
	assert.Zero(t, candidates[len(candidates)-1].Cmp(hi))
}

// No candidate rate matches more value than the chosen one.
func TestFindBestXRateIsBestCandidate(t *testing.T) {
	fee := testFee(t, tokenF)
	params := DefaultParams()
	rng := rand.New(rand.NewPCG(3, 5))

	for i := 0; i < 100; i++ {
		bOrders := randomSide(rng, "b", tokenY, tokenF)
		sOrders := randomSide(rng, "s", tokenF, tokenY)

		t.Run(fmt.Sprintf("book-%d", i), func(t *testing.T) {
			best, err := SearchXRate(bOrders, sOrders, fee, params)
			if err != nil {
				require.ErrorIs(t, err, common.ErrInfeasiblePair)
				return
			}
			assert.Positive(t, best.Matched.Sign())
			assert.GreaterOrEqual(t, best.Unmatched.Sign(), 0)
			for _, xrate := range xrateCandidates(bOrders, sOrders, fee) {
				c := evaluateXRate(xrate, bOrders, sOrders, fee, params)
				assert.LessOrEqual(t, c.Matched.Cmp(best.Matched), 0)
			}
		})
	}
}

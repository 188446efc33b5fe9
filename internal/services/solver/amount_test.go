package solver

import (
	"fmt"
	"math/big"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/batch-solver/internal/common/exact"
	"github.com/hxuan190/batch-solver/internal/domain"
)

// checkAllocation asserts the allocator invariants on rational amounts.
func checkAllocation(t *testing.T, xrate *big.Rat, bIn, sIn, b, s []domain.Order, fee domain.Fee, params Params) {
	t.Helper()
	require.Len(t, b, len(bIn))
	require.Len(t, s, len(sIn))

	rates := NewRates(xrate, fee)
	minTradable := params.rationalMinTradable()

	// S is balanced exactly.
	requireRatEqual(t, SumSell(b), SumBuy(s))

	if params.MaxExecOrders > 0 {
		assert.LessOrEqual(t, CountTouched(b, s), params.MaxExecOrders)
	}

	check := func(in, out domain.Order, accepts func(domain.Order) bool, sellFromBuy func(*big.Rat) *big.Rat) {
		assert.Equal(t, in.ID, out.ID)
		if !out.Touched() {
			return
		}
		assert.True(t, accepts(out), "order %s filled outside its limit", out.ID)
		assert.GreaterOrEqual(t, out.BuyAmount.Cmp(minTradable), 0, "order %s buys %s", out.ID, out.BuyAmount.RatString())
		assert.GreaterOrEqual(t, out.SellAmount.Cmp(minTradable), 0, "order %s sells %s", out.ID, out.SellAmount.RatString())
		assert.LessOrEqual(t, out.SellAmount.Cmp(out.MaxSellAmount), 0, "order %s oversold", out.ID)
		assert.Zero(t, sellFromBuy(out.BuyAmount).Cmp(out.SellAmount), "order %s sell/buy mismatch", out.ID)
	}
	for i := range b {
		check(bIn[i], b[i], rates.AcceptsB, rates.SellFromBuyB)
	}
	for i := range s {
		check(sIn[i], s[i], rates.AcceptsS, rates.SellFromBuyS)
	}
}

func TestComputeBuyAmountsFillsSmallerSide(t *testing.T) {
	fee := testFee(t, tokenF)
	params := DefaultParams()
	xrate := exact.One

	bOrders := []domain.Order{limitOrder("b1", tokenY, tokenF, exact.FromInt64(1_000_000), exact.FromInt64(2))}
	sOrders := []domain.Order{limitOrder("s1", tokenF, tokenY, exact.FromInt64(500_000), exact.FromInt64(2))}

	b, s := ComputeBuyAmounts(xrate, bOrders, sOrders, fee, params)
	checkAllocation(t, xrate, bOrders, sOrders, b, s, fee, params)

	// The S-order is exhausted and the B-order takes what it pays for.
	requireRatEqual(t, exact.FromInt64(499_500), s[0].BuyAmount)
	requireRatEqual(t, exact.FromInt64(500_000), s[0].SellAmount)
	requireRatEqual(t, exact.R(998_001, 2), b[0].BuyAmount)
	requireRatEqual(t, exact.FromInt64(499_500), b[0].SellAmount)

	// Inputs are left alone.
	assert.False(t, bOrders[0].Touched())
	assert.False(t, sOrders[0].Touched())
}

func TestComputeBuyAmountsRespectsExecCap(t *testing.T) {
	fee := testFee(t, tokenF)
	params := DefaultParams()
	params.MaxExecOrders = 3
	xrate := exact.One

	bOrders := []domain.Order{limitOrder("b1", tokenY, tokenF, exact.FromInt64(10_000_000), exact.FromInt64(2))}
	sOrders := []domain.Order{
		limitOrder("s1", tokenF, tokenY, exact.FromInt64(100_000), exact.FromInt64(2)),
		limitOrder("s2", tokenF, tokenY, exact.FromInt64(100_000), exact.FromInt64(3)),
		limitOrder("s3", tokenF, tokenY, exact.FromInt64(100_000), exact.FromInt64(4)),
	}

	b, s := ComputeBuyAmounts(xrate, bOrders, sOrders, fee, params)
	checkAllocation(t, xrate, bOrders, sOrders, b, s, fee, params)

	assert.Equal(t, 3, CountTouched(b, s))
	// The worst limit is dropped.
	assert.False(t, s[0].Touched())
	requireRatEqual(t, exact.FromInt64(99_900), s[1].BuyAmount)
	requireRatEqual(t, exact.FromInt64(99_900), s[2].BuyAmount)
	requireRatEqual(t, exact.R(998_001, 5), b[0].BuyAmount)
}

func TestComputeBuyAmountsFiltersOrders(t *testing.T) {
	fee := testFee(t, tokenF)
	params := DefaultParams()
	xrate := exact.One

	tests := []struct {
		name    string
		bOrders []domain.Order
		sOrders []domain.Order
		skipped string
	}{
		{
			name: "limit below the rate",
			bOrders: []domain.Order{
				limitOrder("b1", tokenY, tokenF, exact.FromInt64(1_000_000), exact.FromInt64(2)),
				limitOrder("b2", tokenY, tokenF, exact.FromInt64(1_000_000), exact.R(1, 2)),
			},
			sOrders: []domain.Order{limitOrder("s1", tokenF, tokenY, exact.FromInt64(500_000), exact.FromInt64(2))},
			skipped: "b2",
		},
		{
			name:    "below minimum tradable amount",
			bOrders: []domain.Order{limitOrder("b1", tokenY, tokenF, exact.FromInt64(1_000_000), exact.FromInt64(2))},
			sOrders: []domain.Order{
				limitOrder("s1", tokenF, tokenY, exact.FromInt64(500_000), exact.FromInt64(2)),
				limitOrder("s2", tokenF, tokenY, exact.FromInt64(10_050), exact.FromInt64(5)),
			},
			skipped: "s2",
		},
		{
			name:    "unfillable",
			bOrders: []domain.Order{limitOrder("b1", tokenY, tokenF, exact.FromInt64(1_000_000), exact.FromInt64(2))},
			sOrders: []domain.Order{
				limitOrder("s1", tokenF, tokenY, exact.FromInt64(500_000), exact.FromInt64(2)),
				limitOrder("s2", tokenF, tokenY, exact.FromInt64(1_000_000), exact.FromInt64(3)).WithMaxSellAmount(exact.Zero),
			},
			skipped: "s2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, s := ComputeBuyAmounts(xrate, tt.bOrders, tt.sOrders, fee, params)
			checkAllocation(t, xrate, tt.bOrders, tt.sOrders, b, s, fee, params)

			all := append(append([]domain.Order{}, b...), s...)
			assert.False(t, find(t, all, tt.skipped).Touched())
			requireRatEqual(t, exact.FromInt64(499_500), find(t, all, "s1").BuyAmount)
			requireRatEqual(t, exact.R(998_001, 2), find(t, all, "b1").BuyAmount)
		})
	}
}

func TestComputeBuyAmountsEmptySide(t *testing.T) {
	fee := testFee(t, tokenF)
	bOrders := []domain.Order{limitOrder("b1", tokenY, tokenF, exact.FromInt64(1_000_000), exact.FromInt64(2))}

	b, s := ComputeBuyAmounts(exact.One, bOrders, nil, fee, DefaultParams())
	assert.Empty(t, s)
	require.Len(t, b, 1)
	assert.False(t, b[0].Touched())
}

// Small amounts near the minimum tradable amount stress the undo steps.
func TestComputeBuyAmountsSideConstraints(t *testing.T) {
	fee := testFee(t, tokenF)

	tests := []struct {
		name    string
		bOrders []domain.Order
		sOrders []domain.Order
		xrate   *big.Rat
		maxExec int
	}{
		{
			name: "executed order cap",
			bOrders: []domain.Order{
				limitOrder("0", tokenY, tokenF, exact.FromInt64(20019), exact.R(3, 10)),
			},
			sOrders: []domain.Order{
				limitOrder("1", tokenF, tokenY, exact.FromInt64(50096), exact.R(51, 10)),
				limitOrder("2", tokenF, tokenY, exact.FromInt64(50096), exact.R(16567, 3310)),
			},
			xrate:   exact.R(1, 5),
			maxExec: 2,
		},
		{
			name: "minimum tradable amount",
			bOrders: []domain.Order{
				limitOrder("0", tokenY, tokenF, exact.FromInt64(10009), exact.R(313, 330)),
				limitOrder("1", tokenY, tokenF, exact.FromInt64(136536), exact.One),
			},
			sOrders: []domain.Order{
				limitOrder("2", tokenF, tokenY, exact.FromInt64(9000), exact.R(1, 10)),
				limitOrder("3", tokenF, tokenY, exact.FromInt64(9000), exact.R(1, 10)),
				limitOrder("4", tokenF, tokenY, exact.FromInt64(21481), exact.R(11, 10)),
				limitOrder("5", tokenF, tokenY, exact.FromInt64(123177), exact.R(11, 10)),
			},
			xrate:   exact.R(61144, 64715),
			maxExec: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParams()
			params.MaxExecOrders = tt.maxExec
			b, s := ComputeBuyAmounts(tt.xrate, tt.bOrders, tt.sOrders, fee, params)
			checkAllocation(t, tt.xrate, tt.bOrders, tt.sOrders, b, s, fee, params)
		})
	}
}

// Tightening an order's sell cap never increases its own fill.
func TestComputeBuyAmountsMonotoneInMaxSell(t *testing.T) {
	fee := testFee(t, tokenF)
	params := DefaultParams()
	xrate := exact.One

	bOrders := []domain.Order{
		limitOrder("b1", tokenY, tokenF, exact.FromInt64(600_000), exact.FromInt64(2)),
		limitOrder("b2", tokenY, tokenF, exact.FromInt64(300_000), exact.FromInt64(3)),
	}
	sOrders := []domain.Order{
		limitOrder("s1", tokenF, tokenY, exact.FromInt64(500_000), exact.FromInt64(2)),
		limitOrder("s2", tokenF, tokenY, exact.FromInt64(200_000), exact.FromInt64(3)),
	}

	for _, side := range []string{"b", "s"} {
		for idx := 0; idx < 2; idx++ {
			t.Run(fmt.Sprintf("%s%d", side, idx+1), func(t *testing.T) {
				prev := (*big.Rat)(nil)
				for _, maxSell := range []int64{600_000, 400_000, 250_000, 100_000, 20_000, 10_050} {
					b := append([]domain.Order(nil), bOrders...)
					s := append([]domain.Order(nil), sOrders...)
					target := &b[idx]
					if side == "s" {
						target = &s[idx]
					}
					*target = target.WithMaxSellAmount(exact.Min(target.MaxSellAmount, exact.FromInt64(maxSell)))

					bOut, sOut := ComputeBuyAmounts(xrate, b, s, fee, params)
					checkAllocation(t, xrate, b, s, bOut, sOut, fee, params)
					fill := bOut[idx].SellAmount
					if side == "s" {
						fill = sOut[idx].SellAmount
					}
					if prev != nil {
						assert.LessOrEqual(t, fill.Cmp(prev), 0, "cap %d raised the fill", maxSell)
					}
					prev = fill
				}
			})
		}
	}
}

func randomRatio(rng *rand.Rand) *big.Rat {
	return exact.R(rng.Int64N(20)+1, rng.Int64N(20)+1)
}

func randomSide(rng *rand.Rand, prefix string, sell, buy domain.TokenID) []domain.Order {
	n := rng.IntN(4) + 1
	orders := make([]domain.Order, n)
	for i := range orders {
		maxSell := exact.FromInt64(rng.Int64N(200_000) + 1)
		orders[i] = limitOrder(fmt.Sprintf("%s%d", prefix, i), sell, buy, maxSell, randomRatio(rng))
	}
	return orders
}

func TestComputeBuyAmountsRandomBooks(t *testing.T) {
	fee := testFee(t, tokenF)
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 300; i++ {
		bOrders := randomSide(rng, "b", tokenY, tokenF)
		sOrders := randomSide(rng, "s", tokenF, tokenY)
		xrate := randomRatio(rng)
		params := DefaultParams()
		params.MaxExecOrders = rng.IntN(7) + 2

		t.Run(fmt.Sprintf("book-%d", i), func(t *testing.T) {
			b, s := ComputeBuyAmounts(xrate, bOrders, sOrders, fee, params)
			checkAllocation(t, xrate, bOrders, sOrders, b, s, fee, params)
		})
	}
}

func BenchmarkComputeBuyAmounts(b *testing.B) {
	fee, _ := domain.NewFee(tokenF, exact.R(1, 1000))
	params := DefaultParams()
	rng := rand.New(rand.NewPCG(1, 2))
	bOrders := make([]domain.Order, 0, 50)
	sOrders := make([]domain.Order, 0, 50)
	for i := 0; i < 50; i++ {
		bOrders = append(bOrders, limitOrder(fmt.Sprintf("b%d", i), tokenY, tokenF, exact.FromInt64(rng.Int64N(1e9)+1e6), randomRatio(rng)))
		sOrders = append(sOrders, limitOrder(fmt.Sprintf("s%d", i), tokenF, tokenY, exact.FromInt64(rng.Int64N(1e9)+1e6), randomRatio(rng)))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ComputeBuyAmounts(exact.One, bOrders, sOrders, fee, params)
	}
}

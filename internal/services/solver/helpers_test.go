package solver

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxuan190/batch-solver/internal/common/exact"
	"github.com/hxuan190/batch-solver/internal/domain"
)

const (
	tokenF domain.TokenID = "F"
	tokenY domain.TokenID = "Y"
	tokenZ domain.TokenID = "Z"
)

func rat(t testing.TB, s string) *big.Rat {
	t.Helper()
	r, ok := new(big.Rat).SetString(s)
	require.True(t, ok, "bad rational %q", s)
	return r
}

func bigInt(t testing.TB, s string) *big.Int {
	t.Helper()
	i, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad integer %q", s)
	return i
}

func testFee(t testing.TB, token domain.TokenID) domain.Fee {
	t.Helper()
	fee, err := domain.NewFee(token, exact.R(1, 1000))
	require.NoError(t, err)
	return fee
}

// limitOrder builds an account order with an explicit limit, owned by an
// account named after the order.
func limitOrder(id string, sell, buy domain.TokenID, maxSell, maxXRate *big.Rat) domain.Order {
	o := domain.NewSyntheticOrder(id, sell, buy, maxSell, maxXRate)
	o.AccountID = "acct-" + id
	return o
}

// twoOrderBook is a fee-token pair that clears completely:
// "ask" sells 1e8 F for at least 9e7 Y, "bid" sells 1e8 Y for at least 8e7 F.
type twoOrderBook struct {
	fee    domain.Fee
	ledger *domain.Ledger
	orders []domain.Order
}

func newTwoOrderBook(t testing.TB) twoOrderBook {
	t.Helper()
	minTradable := exact.FromInt64(10000)
	ledger := domain.NewLedger()
	require.NoError(t, ledger.SetBig("a", tokenF, big.NewInt(100_000_000)))
	require.NoError(t, ledger.SetBig("b", tokenY, big.NewInt(100_000_000)))
	return twoOrderBook{
		fee:    testFee(t, tokenF),
		ledger: ledger,
		orders: []domain.Order{
			domain.NewOrder("ask", "a", tokenF, tokenY, exact.FromInt64(100_000_000), exact.FromInt64(90_000_000), minTradable),
			domain.NewOrder("bid", "b", tokenY, tokenF, exact.FromInt64(100_000_000), exact.FromInt64(80_000_000), minTradable),
		},
	}
}

// settledPrices are the prices the two-order book clears at.
func settledPrices(t testing.TB) domain.Prices {
	return domain.Prices{
		tokenF: bigInt(t, "1000000000000000000"),
		tokenY: bigInt(t, "999000000000000000"),
	}
}

// settledOrders are the integer fills of the two-order book at settledPrices.
func (b twoOrderBook) settledOrders() []domain.Order {
	return []domain.Order{
		b.orders[0].WithAmounts(exact.FromInt64(100_000_000), exact.FromInt64(100_000_000)),
		b.orders[1].WithAmounts(exact.FromInt64(99_800_100), exact.FromInt64(100_000_000)),
	}
}

func find(t testing.TB, orders []domain.Order, id string) domain.Order {
	t.Helper()
	for _, o := range orders {
		if o.ID == id {
			return o
		}
	}
	require.Failf(t, "order not found", "id %s", id)
	return domain.Order{}
}

func requireRatEqual(t testing.TB, want, got *big.Rat) {
	t.Helper()
	require.Zero(t, want.Cmp(got), "want %s, got %s", want.RatString(), got.RatString())
}

func requirePricesEqual(t testing.TB, want, got domain.Prices) {
	t.Helper()
	require.ElementsMatch(t, want.Tokens(), got.Tokens())
	for token, p := range want {
		require.Zero(t, p.Cmp(got[token]), "price of %s: want %s, got %s", token, p, got[token])
	}
}

package domain

import (
	"fmt"
	"math/big"

	"github.com/hxuan190/batch-solver/internal/common/exact"
)

type TokenID string

// Order is a limit order. MaxXRate is expressed in sell units per buy unit:
// the order never accepts paying more than MaxXRate of its sell token for
// one unit of its buy token, fee included.
//
// Orders are values. Every stage returns new copies through the With*
// helpers; the *big.Rat fields are never modified in place.
type Order struct {
	ID        string
	AccountID string // empty for synthetic orders
	SellToken TokenID
	BuyToken  TokenID

	MaxSellAmount *big.Rat
	MaxBuyAmount  *big.Rat
	MaxXRate      *big.Rat

	BuyAmount  *big.Rat
	SellAmount *big.Rat

	// Diagnostic outputs, set once by the objective evaluator.
	Utility            *big.Int
	UtilityDisregarded *big.Int
}

// NewOrder builds an order and fixes its limit from the stated amounts. The
// buy amount is floored at minTradable so that dust orders cannot carry an
// arbitrarily good limit.
func NewOrder(id, account string, sell, buy TokenID, maxSell, maxBuy, minTradable *big.Rat) Order {
	return Order{
		ID:            id,
		AccountID:     account,
		SellToken:     sell,
		BuyToken:      buy,
		MaxSellAmount: maxSell,
		MaxBuyAmount:  maxBuy,
		MaxXRate:      exact.Quo(maxSell, exact.Max(maxBuy, minTradable)),
		BuyAmount:     exact.Zero,
		SellAmount:    exact.Zero,
	}
}

// NewSyntheticOrder builds an order that belongs to no account, with an
// explicit limit.
func NewSyntheticOrder(id string, sell, buy TokenID, maxSell, maxXRate *big.Rat) Order {
	return Order{
		ID:            id,
		SellToken:     sell,
		BuyToken:      buy,
		MaxSellAmount: maxSell,
		MaxBuyAmount:  exact.Quo(maxSell, maxXRate),
		MaxXRate:      maxXRate,
		BuyAmount:     exact.Zero,
		SellAmount:    exact.Zero,
	}
}

func (o Order) IsSynthetic() bool {
	return o.AccountID == ""
}

func (o Order) Fillable() bool {
	return exact.IsPositive(o.MaxSellAmount) && exact.IsPositive(o.MaxXRate)
}

func (o Order) Touched() bool {
	return exact.IsPositive(o.SellAmount) || exact.IsPositive(o.BuyAmount)
}

func (o Order) WithAmounts(buy, sell *big.Rat) Order {
	o.BuyAmount = buy
	o.SellAmount = sell
	return o
}

// WithMaxSellAmount tightens the sell cap. The limit stays fixed.
func (o Order) WithMaxSellAmount(amount *big.Rat) Order {
	o.MaxSellAmount = amount
	return o
}

func (o Order) WithUtility(u, disregarded *big.Int) Order {
	o.Utility = u
	o.UtilityDisregarded = disregarded
	return o
}

// Reset clears the executed amounts and diagnostics.
func (o Order) Reset() Order {
	o.BuyAmount = exact.Zero
	o.SellAmount = exact.Zero
	o.Utility = nil
	o.UtilityDisregarded = nil
	return o
}

// SellAmountAt is the sell amount an order pays for buyAmount under the
// exchange's integer semantics: floor(buy * p(buy) / ((1-fee) * p(sell))).
func (o Order) SellAmountAt(buyAmount *big.Rat, prices Prices, fee Fee) *big.Rat {
	pBuy, pSell := prices[o.BuyToken], prices[o.SellToken]
	oneMinus := fee.OneMinus()
	if buyAmount.IsInt() {
		num := new(big.Int).Mul(pBuy, oneMinus.Denom())
		den := new(big.Int).Mul(pSell, oneMinus.Num())
		return exact.FromInt(exact.MulDivFloor(buyAmount.Num(), num, den))
	}
	v := exact.Quo(exact.Mul(buyAmount, exact.FromInt(pBuy)), exact.Mul(oneMinus, exact.FromInt(pSell)))
	return exact.FloorRat(v)
}

func (o Order) String() string {
	return fmt.Sprintf("order(%s: sell %s for %s, max %s @ %s)",
		o.ID, o.SellToken, o.BuyToken, o.MaxSellAmount.RatString(), o.MaxXRate.RatString())
}

// ByExecutionPriority orders best limit first; ties go to the larger order,
// then to the lower identifier so the result is deterministic.
func ByExecutionPriority(a, b Order) int {
	if c := b.MaxXRate.Cmp(a.MaxXRate); c != 0 {
		return c
	}
	if c := b.MaxSellAmount.Cmp(a.MaxSellAmount); c != 0 {
		return c
	}
	return CompareIDs(a.ID, b.ID)
}

// CompareIDs sorts numeric identifiers numerically and everything else
// lexically.
func CompareIDs(a, b string) int {
	ai, aok := new(big.Int).SetString(a, 10)
	bi, bok := new(big.Int).SetString(b, 10)
	if aok && bok {
		return ai.Cmp(bi)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

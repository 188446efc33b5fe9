// Package solver implements the token-pair settlement pipeline: clearing
// rate search, amount allocation, fee settlement, rounding, validation and
// objective evaluation.
package solver

import (
	"math/big"

	"github.com/hxuan190/batch-solver/internal/common"
	"github.com/hxuan190/batch-solver/internal/common/exact"
	"github.com/hxuan190/batch-solver/internal/domain"
)

// Params carries every constant the pipeline depends on. Nothing in this
// package reads global configuration.
type Params struct {
	// FeeTokenPrice pins the fee token and fixes the price scale.
	FeeTokenPrice *big.Int
	// MinTradableAmount bounds every nonzero buy and sell amount from below.
	MinTradableAmount *big.Rat
	// MaxExecOrders caps the touched orders of a solution; 0 disables the cap.
	MaxExecOrders int
	// RoundingBuffer scales the fee imbalance when pricing the fee leg.
	RoundingBuffer *big.Rat
	// MarketSlack scales the best fee-order limit for synthetic market orders.
	MarketSlack *big.Rat
	// MinAverageOrderFee is the minimum fee-token surplus per touched order.
	MinAverageOrderFee *big.Rat
}

func DefaultParams() Params {
	return Params{
		FeeTokenPrice:      common.DefaultFeeTokenPrice(),
		MinTradableAmount:  exact.FromInt64(common.DefaultMinTradableAmount),
		MaxExecOrders:      common.DefaultMaxExecOrders,
		RoundingBuffer:     common.DefaultRoundingBuffer,
		MarketSlack:        common.DefaultMarketSlack,
		MinAverageOrderFee: exact.FromInt64(common.DefaultMinAverageOrderFee),
	}
}

// rationalMinTradable is the bound used on exact amounts. It sits 1% above
// the integer bound so that flooring cannot push a fill below it.
func (p Params) rationalMinTradable() *big.Rat {
	return exact.Mul(p.MinTradableAmount, exact.R(101, 100))
}

func (p Params) feePrice() *big.Rat {
	return exact.FromInt(p.FeeTokenPrice)
}

// Rates converts amounts across a token pair at a fixed clearing rate
// xrate = p(B)/p(S). B-orders buy B with S; S-orders buy S with B. The S token
// is balanced exactly: what B-orders sell is what S-orders buy.
type Rates struct {
	XRate       *big.Rat
	OneMinusFee *big.Rat
}

func NewRates(xrate *big.Rat, fee domain.Fee) Rates {
	return Rates{XRate: xrate, OneMinusFee: fee.OneMinus()}
}

// BuyFromSellB: b_buy = b_sell / xrate * (1-fee)
func (r Rates) BuyFromSellB(sell *big.Rat) *big.Rat {
	return exact.Mul(exact.Quo(sell, r.XRate), r.OneMinusFee)
}

// SellFromBuyB: b_sell = b_buy * xrate / (1-fee)
func (r Rates) SellFromBuyB(buy *big.Rat) *big.Rat {
	return exact.Quo(exact.Mul(buy, r.XRate), r.OneMinusFee)
}

// BuyFromSellS: s_buy = s_sell * xrate * (1-fee)
func (r Rates) BuyFromSellS(sell *big.Rat) *big.Rat {
	return exact.Mul(exact.Mul(sell, r.XRate), r.OneMinusFee)
}

// SellFromBuyS: s_sell = s_buy / xrate / (1-fee)
func (r Rates) SellFromBuyS(buy *big.Rat) *big.Rat {
	return exact.Quo(exact.Quo(buy, r.XRate), r.OneMinusFee)
}

// BBuyFromSBuy is the B amount bought when S-orders buy sBuy, since b_sell = s_buy.
func (r Rates) BBuyFromSBuy(sBuy *big.Rat) *big.Rat {
	return r.BuyFromSellB(sBuy)
}

// SBuyFromBBuy is the S amount S-orders must buy to cover B-orders buying bBuy.
func (r Rates) SBuyFromBBuy(bBuy *big.Rat) *big.Rat {
	return r.SellFromBuyB(bBuy)
}

// AcceptsB reports whether a B-order's limit admits the rate.
func (r Rates) AcceptsB(o domain.Order) bool {
	return r.XRate.Cmp(exact.Mul(o.MaxXRate, r.OneMinusFee)) <= 0
}

// AcceptsS reports whether an S-order's limit admits the rate.
func (r Rates) AcceptsS(o domain.Order) bool {
	return exact.Inv(r.XRate).Cmp(exact.Mul(o.MaxXRate, r.OneMinusFee)) <= 0
}

package solver

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/hxuan190/batch-solver/internal/common"
	"github.com/hxuan190/batch-solver/internal/common/exact"
	"github.com/hxuan190/batch-solver/internal/domain"
)

const (
	marketOrderID  = "market"
	feeDebtOrderID = "fee-debt"
)

// Settlement is a cleared pair together with its fee leg, before rounding.
type Settlement struct {
	Pair    domain.TokenPair
	XRate   *big.Rat
	Prices  domain.Prices
	BOrders []domain.Order
	SOrders []domain.Order
	FOrders []domain.Order
}

// Orders returns every order of the settlement.
func (s *Settlement) Orders() []domain.Order {
	return slices.Concat(s.BOrders, s.SOrders, s.FOrders)
}

// SettleFee clears the pair and, when B is not the fee token, routes the B
// imbalance left by the fee into F-orders (orders buying B with the fee
// token). B's price is fixed first from what the F-orders will pay; the pair
// is then re-cleared with that price held constant. xrate0 is optional.
func SettleFee(pair domain.TokenPair, bOrders, sOrders, fOrders []domain.Order, fee domain.Fee, xrate0 *big.Rat, params Params) (*Settlement, error) {
	if pair.S == fee.Token {
		return nil, fmt.Errorf("%w: fee token %s cannot be the S side", common.ErrInfeasiblePair, fee.Token)
	}

	if xrate0 == nil {
		var err error
		if xrate0, err = FindBestXRate(bOrders, sOrders, fee, params); err != nil {
			return nil, err
		}
	}
	if xrate0.Sign() <= 0 {
		return nil, fmt.Errorf("%w: nonpositive rate %s", common.ErrInfeasiblePair, xrate0.RatString())
	}

	if pair.B == fee.Token {
		xrate, pS, b, s, err := clearWithFixedPrice(params.FeeTokenPrice, xrate0, bOrders, sOrders, fee, params)
		if err != nil {
			return nil, err
		}
		return &Settlement{
			Pair:    pair,
			XRate:   xrate,
			Prices:  domain.Prices{fee.Token: new(big.Int).Set(params.FeeTokenPrice), pair.S: pS},
			BOrders: b,
			SOrders: s,
		}, nil
	}

	if len(fillable(fOrders)) == 0 {
		return nil, fmt.Errorf("%w: no orders buy %s with %s", common.ErrInsufficientFeeLiquidity, pair.B, fee.Token)
	}

	// Tentative clearing at xrate0 sizes the imbalance.
	b, s := ComputeBuyAmounts(xrate0, bOrders, sOrders, fee, params)
	imbalance := bImbalance(b, s)
	if imbalance.Sign() <= 0 {
		return nil, fmt.Errorf("%w: no trade at rate %s", common.ErrInfeasiblePair, xrate0.RatString())
	}

	pB, err := priceToCoverImbalance(pair.B, imbalance, fOrders, fee, params)
	if err != nil {
		return nil, err
	}

	xrate, pS, b, s, err := clearWithFixedPrice(pB, xrate0, bOrders, sOrders, fee, params)
	if err != nil {
		return nil, err
	}

	// The imbalance moves with the final rate.
	imbalance = bImbalance(b, s)
	debt := newMarketOrder(feeDebtOrderID, pair.B, fee.Token, imbalance, fOrders, params)

	feeParams := params
	if params.MaxExecOrders > 0 {
		// The synthetic order counts towards the cap inside the allocator but
		// is not part of the solution.
		feeParams.MaxExecOrders = params.MaxExecOrders - CountTouched(b, s) + 1
		if feeParams.MaxExecOrders < 2 {
			return nil, fmt.Errorf("%w: executed order cap leaves no room for fee orders", common.ErrInsufficientFeeLiquidity)
		}
	}
	feeXRate := exact.Quo(params.feePrice(), exact.FromInt(pB))
	_, f := ComputeBuyAmounts(feeXRate, []domain.Order{debt}, fOrders, fee, feeParams)

	if absorbed := SumBuy(f); absorbed.Cmp(imbalance) != 0 {
		return nil, fmt.Errorf("%w: absorbed %s of %s %s",
			common.ErrInsufficientFeeLiquidity, absorbed.FloatString(6), imbalance.FloatString(6), pair.B)
	}

	log.Debug().
		Str("pair", pair.String()).
		Str("xrate", xrate.RatString()).
		Str("price_b", pB.String()).
		Str("price_s", pS.String()).
		Str("imbalance", imbalance.FloatString(6)).
		Msg("[feeSettlement] fee leg settled")

	return &Settlement{
		Pair:  pair,
		XRate: xrate,
		Prices: domain.Prices{
			fee.Token: new(big.Int).Set(params.FeeTokenPrice),
			pair.B:    pB,
			pair.S:    pS,
		},
		BOrders: b,
		SOrders: s,
		FOrders: f,
	}, nil
}

// clearWithFixedPrice holds p(B) and derives an integer p(S) from xrate0,
// then allocates at the adjusted rate p(B)/p(S).
func clearWithFixedPrice(pB *big.Int, xrate0 *big.Rat, bOrders, sOrders []domain.Order, fee domain.Fee, params Params) (*big.Rat, *big.Int, []domain.Order, []domain.Order, error) {
	pS := exact.Round(exact.Quo(exact.FromInt(pB), xrate0))
	if !exact.PositiveInt(pS) {
		return nil, nil, nil, nil, fmt.Errorf("%w: price of S rounds to zero", common.ErrInfeasiblePair)
	}
	xrate := new(big.Rat).SetFrac(pB, pS)
	b, s := ComputeBuyAmounts(xrate, bOrders, sOrders, fee, params)
	if CountTouched(b, s) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("%w: no trade at adjusted rate %s", common.ErrInfeasiblePair, xrate.RatString())
	}
	return xrate, pS, b, s, nil
}

// bImbalance is the B sold by S-orders minus the B bought by B-orders. It is
// positive whenever anything trades, since the fee is taken on both sides.
func bImbalance(b, s []domain.Order) *big.Rat {
	return exact.Sub(SumSell(s), SumBuy(b))
}

// priceToCoverImbalance prices B so that the imbalance plus a rounding buffer
// can be sold to the F-orders. The returned price is rounded so that neither
// the market order nor the binding F-order limit is violated.
func priceToCoverImbalance(token domain.TokenID, imbalance *big.Rat, fOrders []domain.Order, fee domain.Fee, params Params) (*big.Int, error) {
	market := newMarketOrder(marketOrderID, token, fee.Token, exact.Mul(imbalance, params.RoundingBuffer), fOrders, params)

	// Pair (F, B): the market order buys F, the F-orders buy B.
	xrate, err := FindBestXRate([]domain.Order{market}, fOrders, fee, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInsufficientFeeLiquidity, err)
	}

	price := exact.Quo(params.feePrice(), xrate)
	var pB *big.Int
	if xrate.Cmp(exact.Mul(market.MaxXRate, fee.OneMinus())) == 0 {
		pB = exact.Ceil(price)
	} else {
		pB = exact.Floor(price)
	}
	if !exact.PositiveInt(pB) {
		return nil, fmt.Errorf("%w: price of %s rounds to zero", common.ErrInsufficientFeeLiquidity, token)
	}
	return pB, nil
}

// newMarketOrder sells amount of sell for buy at any rate the counter orders
// could plausibly accept, with slack against rounding.
func newMarketOrder(id string, sell, buy domain.TokenID, amount *big.Rat, counter []domain.Order, params Params) domain.Order {
	minXRate := slices.MinFunc(fillable(counter), func(a, b domain.Order) int {
		return a.MaxXRate.Cmp(b.MaxXRate)
	}).MaxXRate
	maxXRate := exact.Inv(exact.Mul(minXRate, params.MarketSlack))
	return domain.NewSyntheticOrder(id, sell, buy, amount, maxXRate)
}

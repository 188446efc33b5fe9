package solver

import (
	"math/big"

	"github.com/hxuan190/batch-solver/internal/common/exact"
	"github.com/hxuan190/batch-solver/internal/domain"
)

// EvaluateObjective computes the solution metrics. updated is the ledger after
// the solution was applied; it bounds how much each order could still have
// sold. The returned orders carry their utilities when touched. Orders on an
// unpriced token are skipped and must be unfilled.
func EvaluateObjective(prices domain.Prices, updated *domain.Ledger, orders []domain.Order, fee domain.Fee) ([]domain.Order, domain.ObjectiveValues, error) {
	obj := domain.ZeroObjective()
	out := make([]domain.Order, len(orders))
	for i, o := range orders {
		out[i] = o
		if token, ok := unpricedToken(o, prices); ok {
			if o.Touched() {
				return nil, obj, invalid("priced_tokens", o.ID, token, "filled order trades an unpriced token")
			}
			continue
		}
		pSell := priceOf(prices, o.SellToken)

		obj.Volume.Add(obj.Volume, exact.Floor(exact.Mul(o.SellAmount, pSell)))

		u := utility(o, prices)
		umax := maxUtility(o, prices, updated, fee)
		obj.Utility.Add(obj.Utility, u)
		if gap := new(big.Int).Sub(umax, u); gap.Sign() > 0 {
			obj.UtilityDisregarded.Add(obj.UtilityDisregarded, gap)
		}

		if o.SellAmount.Sign() > 0 {
			gap := new(big.Int).Sub(umax, u)
			obj.OrdersTouched++
			obj.UtilityDisregardedTouched.Add(obj.UtilityDisregardedTouched, gap)
			out[i] = o.WithUtility(u, gap)
		}

		switch fee.Token {
		case o.SellToken:
			obj.Fees.Add(obj.Fees, exact.Floor(o.SellAmount))
		case o.BuyToken:
			obj.Fees.Sub(obj.Fees, exact.Floor(o.BuyAmount))
		}
	}
	return out, obj, nil
}

func unpricedToken(o domain.Order, prices domain.Prices) (domain.TokenID, bool) {
	switch {
	case !prices.Has(o.SellToken):
		return o.SellToken, true
	case !prices.Has(o.BuyToken):
		return o.BuyToken, true
	}
	return "", false
}

// TouchedObjective ranks candidates: 2u - max(u, umax) summed over touched
// orders only, so that untouched orders do not bias the comparison.
func TouchedObjective(prices domain.Prices, updated *domain.Ledger, orders []domain.Order, fee domain.Fee) *big.Int {
	score := new(big.Int)
	for _, o := range orders {
		if o.SellAmount.Sign() == 0 || !prices.Has(o.BuyToken) || !prices.Has(o.SellToken) {
			continue
		}
		u := utility(o, prices)
		umax := maxUtility(o, prices, updated, fee)
		if umax.Cmp(u) < 0 {
			umax = u
		}
		score.Add(score, new(big.Int).Sub(new(big.Int).Lsh(u, 1), umax))
	}
	return score
}

// utility is floor(p(buy) * (buy - sell / maxXRate)).
func utility(o domain.Order, prices domain.Prices) *big.Int {
	pBuy := priceOf(prices, o.BuyToken)
	surplus := exact.Sub(o.BuyAmount, exact.Quo(o.SellAmount, o.MaxXRate))
	return exact.Floor(exact.Mul(pBuy, surplus))
}

// maxUtility is the utility the order would realize selling everything it
// still could, given its post-trade balance.
func maxUtility(o domain.Order, prices domain.Prices, updated *domain.Ledger, fee domain.Fee) *big.Int {
	balance := new(big.Rat)
	if !o.IsSynthetic() && updated != nil {
		balance = updated.BalanceRat(o.AccountID, o.SellToken)
	}
	maxSell := exact.Min(o.MaxSellAmount, exact.Add(o.SellAmount, balance))
	if maxSell.Sign() == 0 {
		return new(big.Int)
	}
	pSell := priceOf(prices, o.SellToken)
	pBuy := priceOf(prices, o.BuyToken)

	received := exact.Floor(exact.Mul(exact.Mul(maxSell, pSell), fee.OneMinus()))
	owed := exact.Floor(exact.Quo(exact.Mul(maxSell, pBuy), o.MaxXRate))
	umax := received.Sub(received, owed)
	if umax.Sign() < 0 {
		return new(big.Int)
	}
	return umax
}

package solver

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/hxuan190/batch-solver/internal/common"
	"github.com/hxuan190/batch-solver/internal/common/exact"
	"github.com/hxuan190/batch-solver/internal/domain"
)

// XRateCandidate is one evaluated clearing rate.
type XRateCandidate struct {
	XRate     *big.Rat
	Matched   *big.Rat // value traded, in S units
	Unmatched *big.Rat // compatible sell capacity left untraded, in S units
}

// FindBestXRate returns the rate p(B)/p(S) that maximizes matched value.
//
// Candidates are the limit rates of the orders, net of fee, inside the window
// where both sides can trade, plus the rate at which the compatible capacity
// of both sides balances exactly inside each interval between limits. Ties
// prefer less unmatched value, then the smaller rate.
func FindBestXRate(bOrders, sOrders []domain.Order, fee domain.Fee, params Params) (*big.Rat, error) {
	best, err := SearchXRate(bOrders, sOrders, fee, params)
	if err != nil {
		return nil, err
	}
	return best.XRate, nil
}

// SearchXRate is FindBestXRate with the evaluation of the winner.
func SearchXRate(bOrders, sOrders []domain.Order, fee domain.Fee, params Params) (*XRateCandidate, error) {
	bOrders = fillable(bOrders)
	sOrders = fillable(sOrders)
	if len(bOrders) == 0 || len(sOrders) == 0 {
		return nil, fmt.Errorf("%w: one side is empty", common.ErrInfeasiblePair)
	}

	candidates := xrateCandidates(bOrders, sOrders, fee)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: best buy limit below best sell limit", common.ErrInfeasiblePair)
	}

	var best *XRateCandidate
	for _, xrate := range candidates {
		c := evaluateXRate(xrate, bOrders, sOrders, fee, params)
		if c.Matched.Sign() == 0 {
			continue
		}
		if best == nil || betterXRate(c, best) {
			best = c
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no candidate rate matches any order", common.ErrInfeasiblePair)
	}
	return best, nil
}

// betterXRate assumes candidates are visited in increasing rate, so equal
// candidates keep the smaller rate.
func betterXRate(c, best *XRateCandidate) bool {
	if cmp := c.Matched.Cmp(best.Matched); cmp != 0 {
		return cmp > 0
	}
	return c.Unmatched.Cmp(best.Unmatched) < 0
}

func evaluateXRate(xrate *big.Rat, bOrders, sOrders []domain.Order, fee domain.Fee, params Params) *XRateCandidate {
	rates := NewRates(xrate, fee)
	b, s := ComputeBuyAmounts(xrate, bOrders, sOrders, fee, params)

	matched := exact.Add(SumSell(b), exact.Mul(SumSell(s), xrate))

	capacity := new(big.Rat)
	for _, o := range bOrders {
		if rates.AcceptsB(o) {
			capacity.Add(capacity, o.MaxSellAmount)
		}
	}
	for _, o := range sOrders {
		if rates.AcceptsS(o) {
			capacity.Add(capacity, exact.Mul(o.MaxSellAmount, xrate))
		}
	}
	return &XRateCandidate{
		XRate:     xrate,
		Matched:   matched,
		Unmatched: exact.Sub(capacity, matched),
	}
}

// xrateCandidates returns the candidate rates in increasing order.
func xrateCandidates(bOrders, sOrders []domain.Order, fee domain.Fee) []*big.Rat {
	oneMinusFee := fee.OneMinus()

	bLimits := make([]*big.Rat, len(bOrders))
	for i, o := range bOrders {
		bLimits[i] = exact.Mul(o.MaxXRate, oneMinusFee)
	}
	sLimits := make([]*big.Rat, len(sOrders))
	for i, o := range sOrders {
		sLimits[i] = exact.Inv(exact.Mul(o.MaxXRate, oneMinusFee))
	}

	hi := slices.MaxFunc(bLimits, (*big.Rat).Cmp)
	lo := slices.MinFunc(sLimits, (*big.Rat).Cmp)
	if hi.Cmp(lo) < 0 {
		return nil
	}

	var points []*big.Rat
	for _, l := range append(slices.Clone(bLimits), sLimits...) {
		if l.Cmp(lo) >= 0 && l.Cmp(hi) <= 0 {
			points = append(points, l)
		}
	}
	points = sortUnique(points)

	// Inside an interval the compatible sets are fixed; the rate at which
	// B-side capacity equals S-side capacity fills both sides completely.
	candidates := slices.Clone(points)
	for i := 0; i+1 < len(points); i++ {
		left, right := points[i], points[i+1]
		bCap, sCap := new(big.Rat), new(big.Rat)
		for k, o := range bOrders {
			if bLimits[k].Cmp(right) >= 0 {
				bCap.Add(bCap, o.MaxSellAmount)
			}
		}
		for k, o := range sOrders {
			if sLimits[k].Cmp(left) <= 0 {
				sCap.Add(sCap, o.MaxSellAmount)
			}
		}
		if bCap.Sign() == 0 || sCap.Sign() == 0 {
			continue
		}
		balance := exact.Quo(bCap, exact.Mul(sCap, oneMinusFee))
		if balance.Cmp(left) > 0 && balance.Cmp(right) < 0 {
			candidates = append(candidates, balance)
		}
	}
	return sortUnique(candidates)
}

func sortUnique(values []*big.Rat) []*big.Rat {
	slices.SortFunc(values, (*big.Rat).Cmp)
	return slices.CompactFunc(values, func(a, b *big.Rat) bool { return a.Cmp(b) == 0 })
}

func fillable(orders []domain.Order) []domain.Order {
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if o.Fillable() {
			out = append(out, o)
		}
	}
	return out
}

package solver

import (
	"math/big"
	"slices"

	"github.com/hxuan190/batch-solver/internal/common/exact"
	"github.com/hxuan190/batch-solver/internal/domain"
)

// allocSide is one side of the book, restricted to the orders that can trade
// at the current rate and sorted by execution priority.
type allocSide struct {
	orders []domain.Order
	pos    []int // index of each order in the caller's slice
	buy    []*big.Rat
}

func (s *allocSide) len() int { return len(s.orders) }

func newAllocSide(orders []domain.Order, keep func(domain.Order) bool) *allocSide {
	idx := make([]int, 0, len(orders))
	for i, o := range orders {
		if keep(o) {
			idx = append(idx, i)
		}
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return domain.ByExecutionPriority(orders[a], orders[b])
	})
	side := &allocSide{
		orders: make([]domain.Order, len(idx)),
		pos:    idx,
		buy:    make([]*big.Rat, len(idx)),
	}
	for k, i := range idx {
		side.orders[k] = orders[i]
		side.buy[k] = exact.Zero
	}
	return side
}

// removeBuyAmount takes amount away from the side's fills, walking back from
// i in reverse execution order. Returns the index of the last order still
// holding a fill.
func (s *allocSide) removeBuyAmount(i int, amount *big.Rat) int {
	for amount.Sign() > 0 && i >= 0 {
		delta := exact.Min(s.buy[i], amount)
		s.buy[i] = exact.Sub(s.buy[i], delta)
		amount = exact.Sub(amount, delta)
		if s.buy[i].Sign() == 0 {
			i--
		}
	}
	return i
}

type allocator struct {
	rates       Rates
	minTradable *big.Rat
	b, s        *allocSide
}

// ComputeBuyAmounts allocates fills across B-orders and S-orders at a fixed
// rate. Orders are executed pairwise, best limit first, until either side is
// exhausted or the executed order cap is reached. The results keep the
// positions of the inputs; orders left out carry zero amounts. The S token is
// balanced exactly: sum(b.buy) * xrate == sum(s.buy) * (1-fee).
func ComputeBuyAmounts(xrate *big.Rat, bOrders, sOrders []domain.Order, fee domain.Fee, params Params) ([]domain.Order, []domain.Order) {
	rates := NewRates(xrate, fee)
	minTradable := params.rationalMinTradable()

	a := &allocator{
		rates:       rates,
		minTradable: minTradable,
		b: newAllocSide(bOrders, func(o domain.Order) bool {
			return o.Fillable() && rates.AcceptsB(o) &&
				o.MaxSellAmount.Cmp(minTradable) >= 0 &&
				rates.BuyFromSellB(o.MaxSellAmount).Cmp(minTradable) >= 0
		}),
		s: newAllocSide(sOrders, func(o domain.Order) bool {
			return o.Fillable() && rates.AcceptsS(o) &&
				o.MaxSellAmount.Cmp(minTradable) >= 0 &&
				rates.BuyFromSellS(o.MaxSellAmount).Cmp(minTradable) >= 0
		}),
	}
	if a.b.len() > 0 && a.s.len() > 0 {
		a.run(params.MaxExecOrders)
	}
	return a.b.write(bOrders, rates.SellFromBuyB), a.s.write(sOrders, rates.SellFromBuyS)
}

func (a *allocator) run(maxExec int) {
	if maxExec <= 0 {
		maxExec = a.b.len() + a.s.len()
	}

	bi, si := 0, 0
	for bi < a.b.len() && si < a.s.len() && bi+si < maxExec {
		bi, si = a.executePair(bi, si)
	}

	// Point at the last executed order on each side.
	if bi >= a.b.len() || a.b.buy[bi].Sign() == 0 {
		bi--
	}
	if si >= a.s.len() || a.s.buy[si].Sign() == 0 {
		si--
	}

	// The final step may fill two orders at once and overshoot by one.
	for bi >= 0 && si >= 0 && bi+si+2 > maxExec {
		bi, si = a.undoPair(bi, si)
	}

	// Undoing one order may leave its counterpart below the minimum.
	for undone := true; undone; {
		bi, si, undone = a.undoBelowMinTradable(bi, si)
	}
}

// executePair fills whichever of b[bi], s[si] has less remaining capacity and
// advances past every order that is now full.
func (a *allocator) executePair(bi, si int) (int, int) {
	r := a.rates
	bUB := exact.Sub(r.BuyFromSellB(a.b.orders[bi].MaxSellAmount), a.b.buy[bi])
	sUB := exact.Sub(r.BuyFromSellS(a.s.orders[si].MaxSellAmount), a.s.buy[si])

	bFromS := r.BBuyFromSBuy(sUB)
	sFromB := r.SBuyFromBBuy(bUB)

	switch bUB.Cmp(bFromS) {
	case -1:
		a.b.buy[bi] = exact.Add(a.b.buy[bi], bUB)
		a.s.buy[si] = exact.Add(a.s.buy[si], sFromB)
		bi++
	case 1:
		a.b.buy[bi] = exact.Add(a.b.buy[bi], bFromS)
		a.s.buy[si] = exact.Add(a.s.buy[si], sUB)
		si++
	default:
		a.b.buy[bi] = exact.Add(a.b.buy[bi], bUB)
		a.s.buy[si] = exact.Add(a.s.buy[si], sUB)
		bi++
		si++
	}
	return bi, si
}

// undoPair is the inverse of executePair: it empties whichever of b[bi],
// s[si] holds less and takes the matching amount from the other.
func (a *allocator) undoPair(bi, si int) (int, int) {
	r := a.rates
	bUB := a.b.buy[bi]
	sUB := a.s.buy[si]

	bFromS := r.BBuyFromSBuy(sUB)
	sFromB := r.SBuyFromBBuy(bUB)

	switch bUB.Cmp(bFromS) {
	case -1:
		a.b.buy[bi] = exact.Zero
		a.s.buy[si] = exact.Sub(a.s.buy[si], sFromB)
		bi--
	case 1:
		a.b.buy[bi] = exact.Sub(a.b.buy[bi], bFromS)
		a.s.buy[si] = exact.Zero
		si--
	default:
		a.b.buy[bi] = exact.Zero
		a.s.buy[si] = exact.Zero
		bi--
		si--
	}
	return bi, si
}

func (a *allocator) undoB(bi, si int) (int, int) {
	si = a.s.removeBuyAmount(si, a.rates.SBuyFromBBuy(a.b.buy[bi]))
	a.b.buy[bi] = exact.Zero
	return bi - 1, si
}

func (a *allocator) undoS(bi, si int) (int, int) {
	bi = a.b.removeBuyAmount(bi, a.rates.BBuyFromSBuy(a.s.buy[si]))
	a.s.buy[si] = exact.Zero
	return bi, si - 1
}

func (a *allocator) undoBelowMinTradable(bi, si int) (int, int, bool) {
	undone := false
	if bi < 0 {
		return bi, si, undone
	}
	buy := a.b.buy[bi]
	if buy.Cmp(a.minTradable) < 0 || a.rates.SellFromBuyB(buy).Cmp(a.minTradable) < 0 {
		bi, si = a.undoB(bi, si)
		undone = true
	}
	if si < 0 {
		return bi, si, undone
	}
	buy = a.s.buy[si]
	if buy.Cmp(a.minTradable) < 0 || a.rates.SellFromBuyS(buy).Cmp(a.minTradable) < 0 {
		bi, si = a.undoS(bi, si)
		undone = true
	}
	return bi, si, undone
}

// write copies the fills back onto fresh copies of the caller's orders.
func (s *allocSide) write(orders []domain.Order, sellFromBuy func(*big.Rat) *big.Rat) []domain.Order {
	out := make([]domain.Order, len(orders))
	for i, o := range orders {
		out[i] = o.WithAmounts(exact.Zero, exact.Zero)
	}
	for k, i := range s.pos {
		buy := s.buy[k]
		out[i] = out[i].WithAmounts(buy, sellFromBuy(buy))
	}
	return out
}

// SumBuy and SumSell total the executed amounts.
func SumBuy(orders []domain.Order) *big.Rat {
	s := new(big.Rat)
	for _, o := range orders {
		s.Add(s, o.BuyAmount)
	}
	return s
}

func SumSell(orders []domain.Order) *big.Rat {
	s := new(big.Rat)
	for _, o := range orders {
		s.Add(s, o.SellAmount)
	}
	return s
}

// CountTouched counts orders with a nonzero fill.
func CountTouched(orders ...[]domain.Order) int {
	n := 0
	for _, side := range orders {
		for _, o := range side {
			if o.Touched() {
				n++
			}
		}
	}
	return n
}

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

// RoundSolution turns exact fills into integer ones. Buy amounts are floored
// and sell amounts follow the exchange's integer semantics. Token imbalances
// left by rounding are then pushed leaf by leaf along a spanning tree rooted
// at the fee token, so the residual ends up in the fee token alone.
func RoundSolution(prices domain.Prices, orders []domain.Order, fee domain.Fee, params Params) ([]domain.Order, error) {
	out := make([]domain.Order, len(orders))
	for i, o := range orders {
		if !prices.Has(o.BuyToken) || !prices.Has(o.SellToken) {
			if o.Touched() {
				return nil, fmt.Errorf("%w: order %s trades an unpriced token", common.ErrUnroundable, o.ID)
			}
			out[i] = o
			continue
		}
		buy := exact.FloorRat(o.BuyAmount)
		out[i] = o.WithAmounts(buy, o.SellAmountAt(buy, prices, fee))
	}

	parent, visit := spanningTree(out, fee.Token)

	// Tokens outside the tree cannot pass their imbalance anywhere.
	balances := tokenBalances(prices, out)
	for _, token := range prices.Tokens() {
		if _, inTree := parent[token]; inTree || token == fee.Token {
			continue
		}
		if balances[token].Sign() != 0 {
			return nil, fmt.Errorf("%w: %s is not connected to the fee token", common.ErrUnroundable, token)
		}
	}

	r := rounder{prices: prices, fee: fee, minTradable: params.MinTradableAmount}
	for i := len(visit) - 1; i >= 0; i-- {
		leaf := visit[i]
		up := parent[leaf]

		balance := tokenBalances(prices, out)[leaf]
		if balance.Sign() != 0 {
			balance = r.shiftBought(out, leaf, up, balance)
		}
		if balance.Sign() > 0 {
			balance = r.reduceSold(out, leaf, up, balance)
			if balance.Sign() < 0 {
				balance = r.shiftBought(out, leaf, up, balance)
			}
		}
		if balance.Sign() != 0 {
			return nil, fmt.Errorf("%w: residual %s of %s", common.ErrUnroundable, balance.RatString(), leaf)
		}
	}

	if err := r.check(out); err != nil {
		return nil, err
	}
	return out, nil
}

// check rejects integer fills that flooring pushed out of bounds.
func (r rounder) check(orders []domain.Order) error {
	if tokenBalances(r.prices, orders)[r.fee.Token].Sign() < 0 {
		return fmt.Errorf("%w: fee token deficit", common.ErrUnroundable)
	}
	for _, o := range orders {
		if !o.Touched() {
			continue
		}
		if o.BuyAmount.Cmp(r.minTradable) < 0 || o.SellAmount.Cmp(r.minTradable) < 0 {
			return fmt.Errorf("%w: order %s below minimum tradable amount", common.ErrUnroundable, o.ID)
		}
		if o.SellAmount.Cmp(o.MaxSellAmount) > 0 {
			return fmt.Errorf("%w: order %s above its sell cap", common.ErrUnroundable, o.ID)
		}
	}
	return nil
}

type rounder struct {
	prices      domain.Prices
	fee         domain.Fee
	minTradable *big.Rat
}

// shiftBought moves the buy amounts of orders buying leaf with parent, largest
// first, until the leaf balance reaches zero. A deficit lowers them and a
// surplus raises them, within each order's sell cap.
func (r rounder) shiftBought(orders []domain.Order, leaf, parent domain.TokenID, balance *big.Rat) *big.Rat {
	for _, i := range ordersOnEdge(orders, parent, leaf) {
		o := orders[i]
		delta := exact.Min(exact.Sub(o.BuyAmount, r.minTradable), exact.Neg(balance))
		newBuy := exact.Sub(o.BuyAmount, delta)
		if newBuy.Cmp(r.minTradable) < 0 {
			continue
		}
		newSell := o.SellAmountAt(newBuy, r.prices, r.fee)
		if newSell.Cmp(o.MaxSellAmount) > 0 || newSell.Cmp(r.minTradable) < 0 {
			continue
		}
		orders[i] = o.WithAmounts(newBuy, newSell)
		balance = exact.Add(balance, delta)
		log.Debug().Str("order", o.ID).Str("buy", newBuy.RatString()).Str("sell", newSell.RatString()).
			Msg("[rounder] shifted buy amount")
		if balance.Sign() == 0 {
			break
		}
	}
	return balance
}

// reduceSold lowers the fills of orders selling leaf for parent, largest
// first, until the leaf balance (positive) is no longer positive. It serves
// surpluses the buying side could not take. The step may overshoot below zero
// since sell amounts move in integer jumps of the buy amount.
func (r rounder) reduceSold(orders []domain.Order, leaf, parent domain.TokenID, balance *big.Rat) *big.Rat {
	for _, i := range ordersOnEdge(orders, leaf, parent) {
		o := orders[i]
		// sell = floor(buy * k)
		k := exact.Quo(
			exact.FromInt(r.prices[o.BuyToken]),
			exact.Mul(r.fee.OneMinus(), exact.FromInt(r.prices[o.SellToken])),
		)
		target := exact.Max(exact.Sub(o.SellAmount, balance), r.minTradable)
		// largest buy with floor(buy * k) <= target
		limit := exact.Sub(exact.FromInt(exact.Ceil(exact.Quo(exact.Add(target, exact.One), k))), exact.One)
		newBuy := exact.Min(o.BuyAmount, limit)
		if newBuy.Cmp(o.BuyAmount) >= 0 || newBuy.Cmp(r.minTradable) < 0 {
			continue
		}
		newSell := o.SellAmountAt(newBuy, r.prices, r.fee)
		if newSell.Cmp(r.minTradable) < 0 {
			continue
		}
		balance = exact.Sub(balance, exact.Sub(o.SellAmount, newSell))
		orders[i] = o.WithAmounts(newBuy, newSell)
		log.Debug().Str("order", o.ID).Str("buy", newBuy.RatString()).Str("sell", newSell.RatString()).
			Msg("[rounder] lowered sell amount")
		if balance.Sign() <= 0 {
			break
		}
	}
	return balance
}

// ordersOnEdge returns the indexes of touched orders selling sell for buy,
// largest buy amount first.
func ordersOnEdge(orders []domain.Order, sell, buy domain.TokenID) []int {
	var idx []int
	for i, o := range orders {
		if o.SellToken == sell && o.BuyToken == buy && o.BuyAmount.Sign() > 0 {
			idx = append(idx, i)
		}
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return orders[b].BuyAmount.Cmp(orders[a].BuyAmount)
	})
	return idx
}

// spanningTree runs a breadth-first search from root over the edges
// sell -> buy of touched orders, never entering root. It returns the parent of
// every reached token and the visit order, root excluded.
func spanningTree(orders []domain.Order, root domain.TokenID) (map[domain.TokenID]domain.TokenID, []domain.TokenID) {
	adj := make(map[domain.TokenID][]domain.TokenID)
	for _, o := range orders {
		if o.SellAmount.Sign() == 0 || o.BuyToken == root {
			continue
		}
		if !slices.Contains(adj[o.SellToken], o.BuyToken) {
			adj[o.SellToken] = append(adj[o.SellToken], o.BuyToken)
		}
	}
	for t := range adj {
		slices.Sort(adj[t])
	}

	parent := make(map[domain.TokenID]domain.TokenID)
	var visit []domain.TokenID
	queue := []domain.TokenID{root}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for _, next := range adj[t] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = t
			visit = append(visit, next)
			queue = append(queue, next)
		}
	}
	return parent, visit
}

// tokenBalances is sold minus bought per priced token.
func tokenBalances(prices domain.Prices, orders []domain.Order) map[domain.TokenID]*big.Rat {
	balances := make(map[domain.TokenID]*big.Rat, len(prices))
	for t := range prices {
		balances[t] = new(big.Rat)
	}
	for _, o := range orders {
		if b, ok := balances[o.SellToken]; ok {
			b.Add(b, o.SellAmount)
		}
		if b, ok := balances[o.BuyToken]; ok {
			b.Sub(b, o.BuyAmount)
		}
	}
	return balances
}

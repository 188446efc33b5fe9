package aggregator

import (
	"slices"

	"github.com/hxuan190/batch-solver/internal/domain"
)

// EligiblePairs lists the pairs that can settle their fee in at most one hop:
// every B bought directly with the fee token against every other non-fee
// token, then the fee token itself against every non-fee token. The result is
// sorted so that shuffling it with a fixed seed is reproducible.
func EligiblePairs(orders []domain.Order, feeToken domain.TokenID) []domain.TokenPair {
	direct := make(map[domain.TokenID]struct{})
	all := make(map[domain.TokenID]struct{})
	for _, o := range orders {
		all[o.SellToken] = struct{}{}
		all[o.BuyToken] = struct{}{}
		if o.SellToken == feeToken {
			direct[o.BuyToken] = struct{}{}
		}
	}
	tokens := sortedTokens(all)

	var pairs []domain.TokenPair
	for _, b := range sortedTokens(direct) {
		for _, s := range tokens {
			if s != b && s != feeToken {
				pairs = append(pairs, domain.TokenPair{B: b, S: s})
			}
		}
	}
	for _, s := range tokens {
		if s != feeToken {
			pairs = append(pairs, domain.TokenPair{B: feeToken, S: s})
		}
	}
	return pairs
}

// ConnectedTokens returns the tokens linked to root through any chain of
// orders, ignoring direction. Tokens outside this set can never be priced.
func ConnectedTokens(orders []domain.Order, root domain.TokenID) []domain.TokenID {
	adj := make(map[domain.TokenID][]domain.TokenID)
	for _, o := range orders {
		adj[o.SellToken] = append(adj[o.SellToken], o.BuyToken)
		adj[o.BuyToken] = append(adj[o.BuyToken], o.SellToken)
	}

	seen := map[domain.TokenID]struct{}{root: {}}
	queue := []domain.TokenID{root}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for _, next := range adj[t] {
			if _, ok := seen[next]; !ok {
				seen[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}
	return sortedTokens(seen)
}

func sortedTokens(set map[domain.TokenID]struct{}) []domain.TokenID {
	out := make([]domain.TokenID, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

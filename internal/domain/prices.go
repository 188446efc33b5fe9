package domain

import (
	"math/big"
	"sort"
)

// Prices maps tokens to positive integer prices. The fee token carries the
// configured reference price and fixes the absolute scale.
type Prices map[TokenID]*big.Int

func (p Prices) Has(token TokenID) bool {
	v, ok := p[token]
	return ok && v != nil
}

// Tokens returns the priced tokens in a stable order.
func (p Prices) Tokens() []TokenID {
	tokens := make([]TokenID, 0, len(p))
	for t := range p {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return tokens
}

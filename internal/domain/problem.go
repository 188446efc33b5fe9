package domain

import "slices"

// TokenPair names the primary leg of a candidate. B-orders sell S and buy B;
// S-orders sell B and buy S. The clearing rate is p(B)/p(S).
type TokenPair struct {
	B TokenID `json:"b"`
	S TokenID `json:"s"`
}

func (p TokenPair) String() string {
	return string(p.B) + "-" + string(p.S)
}

// Problem is a loaded batch instance. Orders have already been restricted to
// the balances of their accounts.
type Problem struct {
	Ledger *Ledger
	Orders []Order
	Fee    Fee
}

// NewProblem drops unfillable orders and caps the rest by balance.
func NewProblem(ledger *Ledger, orders []Order, fee Fee) *Problem {
	fillable := make([]Order, 0, len(orders))
	for _, o := range orders {
		if o.Fillable() && o.SellToken != o.BuyToken {
			fillable = append(fillable, o)
		}
	}
	return &Problem{
		Ledger: ledger,
		Orders: ledger.RestrictOrderSellAmounts(fillable),
		Fee:    fee,
	}
}

// Tokens lists every token traded by an order, plus the fee token, sorted.
func (p *Problem) Tokens() []TokenID {
	seen := map[TokenID]struct{}{p.Fee.Token: {}}
	for _, o := range p.Orders {
		seen[o.SellToken] = struct{}{}
		seen[o.BuyToken] = struct{}{}
	}
	tokens := make([]TokenID, 0, len(seen))
	for t := range seen {
		tokens = append(tokens, t)
	}
	slices.Sort(tokens)
	return tokens
}

// Snapshot returns a private copy for one candidate evaluation.
func (p *Problem) Snapshot() *Snapshot {
	orders := make([]Order, len(p.Orders))
	for i, o := range p.Orders {
		orders[i] = o.Reset()
	}
	return &Snapshot{
		Ledger: p.Ledger.Clone(),
		Orders: orders,
		Fee:    p.Fee,
	}
}

// Snapshot is owned by a single candidate evaluation.
type Snapshot struct {
	Ledger *Ledger
	Orders []Order
	Fee    Fee
}

// OrdersSelling returns the orders selling sell for buy.
func (s *Snapshot) OrdersSelling(sell, buy TokenID) []Order {
	var out []Order
	for _, o := range s.Orders {
		if o.SellToken == sell && o.BuyToken == buy {
			out = append(out, o)
		}
	}
	return out
}

package domain

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sort"

	"github.com/holiman/uint256"

	"github.com/hxuan190/batch-solver/internal/common/exact"
)

var (
	ErrNegativeBalance    = errors.New("account balance would become negative")
	ErrNonIntegralAmount  = errors.New("executed amount is not an integer")
	ErrBalanceOutOfBounds = errors.New("balance does not fit in 256 bits")
)

// Ledger holds account balances per token.
type Ledger struct {
	balances map[string]map[TokenID]*uint256.Int
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]map[TokenID]*uint256.Int)}
}

func (l *Ledger) Set(account string, token TokenID, amount *uint256.Int) {
	tokens, ok := l.balances[account]
	if !ok {
		tokens = make(map[TokenID]*uint256.Int)
		l.balances[account] = tokens
	}
	tokens[token] = new(uint256.Int).Set(amount)
}

// SetBig stores a big.Int balance, rejecting negatives and overflow.
func (l *Ledger) SetBig(account string, token TokenID, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: %s/%s", ErrNegativeBalance, account, token)
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return fmt.Errorf("%w: %s/%s", ErrBalanceOutOfBounds, account, token)
	}
	l.Set(account, token, v)
	return nil
}

// Balance returns a copy of the balance, zero when unknown.
func (l *Ledger) Balance(account string, token TokenID) *uint256.Int {
	if v, ok := l.balances[account][token]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (l *Ledger) BalanceRat(account string, token TokenID) *big.Rat {
	return exact.FromInt(l.Balance(account, token).ToBig())
}

func (l *Ledger) Accounts() []string {
	accounts := make([]string, 0, len(l.balances))
	for a := range l.balances {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	return accounts
}

// Tokens returns the tokens held by account in a stable order.
func (l *Ledger) Tokens(account string) []TokenID {
	tokens := make([]TokenID, 0, len(l.balances[account]))
	for t := range l.balances[account] {
		tokens = append(tokens, t)
	}
	slices.Sort(tokens)
	return tokens
}

func (l *Ledger) Clone() *Ledger {
	out := NewLedger()
	for account, tokens := range l.balances {
		for token, v := range tokens {
			out.Set(account, token, v)
		}
	}
	return out
}

// Apply returns a new ledger with the executed amounts of orders applied:
// every buy amount is credited first, then every sell amount is debited.
// Synthetic orders are skipped.
func (l *Ledger) Apply(orders []Order) (*Ledger, error) {
	out := l.Clone()
	for _, o := range orders {
		if o.IsSynthetic() || exact.IsZero(o.BuyAmount) {
			continue
		}
		amount, err := toUint256(o.BuyAmount)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		credited, overflow := new(uint256.Int).AddOverflow(out.Balance(o.AccountID, o.BuyToken), amount)
		if overflow {
			return nil, fmt.Errorf("order %s: %w", o.ID, ErrBalanceOutOfBounds)
		}
		out.Set(o.AccountID, o.BuyToken, credited)
	}
	for _, o := range orders {
		if o.IsSynthetic() || exact.IsZero(o.SellAmount) {
			continue
		}
		amount, err := toUint256(o.SellAmount)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		debited, underflow := new(uint256.Int).SubOverflow(out.Balance(o.AccountID, o.SellToken), amount)
		if underflow {
			return nil, fmt.Errorf("order %s on %s/%s: %w", o.ID, o.AccountID, o.SellToken, ErrNegativeBalance)
		}
		out.Set(o.AccountID, o.SellToken, debited)
	}
	return out, nil
}

// RestrictOrderSellAmounts caps each order's sell amount to the balance its
// account still has for the (sell token, buy token) pair. Orders are visited
// best limit first so that they claim balance before worse ones. Orders capped
// to zero are dropped. The result keeps the priority order.
func (l *Ledger) RestrictOrderSellAmounts(orders []Order) []Order {
	type pairKey struct {
		account string
		sell    TokenID
		buy     TokenID
	}

	sorted := slices.Clone(orders)
	slices.SortStableFunc(sorted, ByExecutionPriority)

	remaining := make(map[pairKey]*big.Rat)
	capped := make([]Order, 0, len(sorted))
	for _, o := range sorted {
		key := pairKey{o.AccountID, o.SellToken, o.BuyToken}
		left, ok := remaining[key]
		if !ok {
			left = l.BalanceRat(o.AccountID, o.SellToken)
		}
		sellCap := exact.Min(o.MaxSellAmount, left)
		remaining[key] = exact.Sub(left, sellCap)
		if sellCap.Sign() == 0 {
			continue
		}
		capped = append(capped, o.WithMaxSellAmount(sellCap))
	}
	return capped
}

func toUint256(r *big.Rat) (*uint256.Int, error) {
	if !r.IsInt() {
		return nil, ErrNonIntegralAmount
	}
	if r.Sign() < 0 {
		return nil, ErrNegativeBalance
	}
	v, overflow := uint256.FromBig(r.Num())
	if overflow {
		return nil, ErrBalanceOutOfBounds
	}
	return v, nil
}

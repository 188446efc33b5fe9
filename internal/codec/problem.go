// Package codec reads batch instances and writes solutions in the JSON
// layout of the batch exchange: amounts are decimal strings, orders are
// identified by their index in the instance.
package codec

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/batch-solver/internal/domain"
)

var ErrInvalidProblem = errors.New("invalid problem")

type ProblemFile struct {
	Accounts map[string]map[string]decimal.Decimal `json:"accounts"`
	Orders   []OrderFile                           `json:"orders"`
	Fee      FeeFile                               `json:"fee"`
}

type OrderFile struct {
	OrderID    *int64          `json:"orderID,omitempty"`
	AccountID  string          `json:"accountID"`
	SellToken  string          `json:"sellToken"`
	BuyToken   string          `json:"buyToken"`
	SellAmount decimal.Decimal `json:"sellAmount"`
	BuyAmount  decimal.Decimal `json:"buyAmount"`
}

type FeeFile struct {
	Token string          `json:"token"`
	Ratio decimal.Decimal `json:"ratio"`
}

// Instance keeps the parsed file next to the problem built from it, so the
// solution can echo the input orders.
type Instance struct {
	File    *ProblemFile
	Problem *domain.Problem
}

// DecodeProblem parses an instance. Orders are restricted to account balances
// and unfillable orders are dropped.
func DecodeProblem(data []byte, minTradable *big.Rat) (*Instance, error) {
	var file ProblemFile
	if err := sonic.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProblem, err)
	}
	problem, err := file.toProblem(minTradable)
	if err != nil {
		return nil, err
	}
	return &Instance{File: &file, Problem: problem}, nil
}

func (f *ProblemFile) toProblem(minTradable *big.Rat) (*domain.Problem, error) {
	if f.Fee.Token == "" {
		return nil, fmt.Errorf("%w: missing fee token", ErrInvalidProblem)
	}
	fee, err := domain.NewFee(domain.TokenID(f.Fee.Token), f.Fee.Ratio.Rat())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProblem, err)
	}

	ledger := domain.NewLedger()
	for account, balances := range f.Accounts {
		for token, amount := range balances {
			if !amount.IsInteger() {
				return nil, fmt.Errorf("%w: balance %s/%s is not an integer", ErrInvalidProblem, account, token)
			}
			if err := ledger.SetBig(account, domain.TokenID(token), amount.BigInt()); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidProblem, err)
			}
		}
	}

	orders := make([]domain.Order, 0, len(f.Orders))
	for i, o := range f.Orders {
		if o.AccountID == "" || o.SellToken == "" || o.BuyToken == "" {
			return nil, fmt.Errorf("%w: order %d is missing an account or token", ErrInvalidProblem, i)
		}
		if o.SellAmount.IsNegative() || o.BuyAmount.IsNegative() {
			return nil, fmt.Errorf("%w: order %d has a negative amount", ErrInvalidProblem, i)
		}
		orders = append(orders, domain.NewOrder(
			strconv.Itoa(i), o.AccountID,
			domain.TokenID(o.SellToken), domain.TokenID(o.BuyToken),
			o.SellAmount.Rat(), o.BuyAmount.Rat(), minTradable,
		))
	}
	return domain.NewProblem(ledger, orders, fee), nil
}

// ParseXRate reads an exchange rate given as "p/q" or as a decimal.
func ParseXRate(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() <= 0 {
		return nil, fmt.Errorf("invalid exchange rate %q", s)
	}
	return r, nil
}

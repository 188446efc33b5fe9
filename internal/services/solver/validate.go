package solver

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/hxuan190/batch-solver/internal/common"
	"github.com/hxuan190/batch-solver/internal/common/exact"
	"github.com/hxuan190/batch-solver/internal/domain"
)

// ValidationError names the rule a rounded solution breaks.
type ValidationError struct {
	Rule    string
	OrderID string
	Token   domain.TokenID
	Detail  string
}

func (e *ValidationError) Error() string {
	msg := "solution validation failed: " + e.Rule
	if e.OrderID != "" {
		msg += " (order " + e.OrderID + ")"
	}
	if e.Token != "" {
		msg += " (token " + string(e.Token) + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return common.ErrValidationFailure
}

func invalid(rule, orderID string, token domain.TokenID, format string, args ...any) error {
	return &ValidationError{Rule: rule, OrderID: orderID, Token: token, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks a rounded solution against the original ledger. It never
// modifies its inputs. An economically non-viable solution is reported with
// ErrNotEconomicallyViable; every other breach is a *ValidationError.
func Validate(ledger *domain.Ledger, orders []domain.Order, prices domain.Prices, fee domain.Fee, params Params) error {
	for _, token := range prices.Tokens() {
		if !exact.PositiveInt(prices[token]) {
			return invalid("price", "", token, "price %v is not a positive integer", prices[token])
		}
	}

	touched := CountTouched(orders)
	if touched == 0 {
		return nil
	}
	if params.MaxExecOrders > 0 && touched > params.MaxExecOrders {
		return invalid("max_exec_orders", "", "", "%d orders executed, cap is %d", touched, params.MaxExecOrders)
	}

	for _, o := range orders {
		if err := validateOrder(o, prices, params); err != nil {
			return err
		}
	}

	balances := tokenBalances(prices, orders)
	for _, token := range prices.Tokens() {
		balance := balances[token]
		if token == fee.Token {
			if balance.Sign() < 0 {
				return invalid("token_balance", "", token, "fee token deficit %s", balance.RatString())
			}
			continue
		}
		if balance.Sign() != 0 {
			return invalid("token_balance", "", token, "imbalance %s", balance.RatString())
		}
	}

	avgFee := exact.Quo(balances[fee.Token], exact.FromInt64(int64(touched)))
	if params.MinAverageOrderFee != nil && avgFee.Cmp(params.MinAverageOrderFee) < 0 {
		return fmt.Errorf("%w: average fee %s below %s",
			common.ErrNotEconomicallyViable, avgFee.FloatString(2), params.MinAverageOrderFee.FloatString(2))
	}

	if _, err := ledger.Apply(orders); err != nil {
		if errors.Is(err, domain.ErrNegativeBalance) {
			return invalid("account_balance", "", "", "%v", err)
		}
		return invalid("amounts", "", "", "%v", err)
	}
	return nil
}

func validateOrder(o domain.Order, prices domain.Prices, params Params) error {
	if !prices.Has(o.BuyToken) || !prices.Has(o.SellToken) {
		if o.Touched() {
			return invalid("unpriced_fill", o.ID, "", "order trades an unpriced token")
		}
		return nil
	}
	buy, sell := o.BuyAmount, o.SellAmount
	if !buy.IsInt() || !sell.IsInt() {
		return invalid("integral_amounts", o.ID, "", "buy %s sell %s", buy.RatString(), sell.RatString())
	}
	if sell.Cmp(o.MaxSellAmount) > 0 {
		return invalid("max_sell_amount", o.ID, "", "sell %s above %s", sell.RatString(), o.MaxSellAmount.RatString())
	}
	if buy.Sign() > 0 && exact.Quo(sell, buy).Cmp(o.MaxXRate) > 0 {
		return invalid("limit_rate", o.ID, "", "rate %s above %s",
			exact.Quo(sell, buy).FloatString(9), o.MaxXRate.FloatString(9))
	}
	if buy.Sign() == 0 && sell.Sign() > 0 {
		return invalid("limit_rate", o.ID, "", "sells %s for nothing", sell.RatString())
	}
	if buy.Sign() > 0 && buy.Cmp(params.MinTradableAmount) < 0 {
		return invalid("min_tradable_amount", o.ID, "", "buy %s", buy.RatString())
	}
	if sell.Sign() > 0 && sell.Cmp(params.MinTradableAmount) < 0 {
		return invalid("min_tradable_amount", o.ID, "", "sell %s", sell.RatString())
	}
	return nil
}

// priceOf is a convenience for callers holding big.Int prices.
func priceOf(prices domain.Prices, token domain.TokenID) *big.Rat {
	return exact.FromInt(prices[token])
}

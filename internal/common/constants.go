// Package common contains common constants and variables used across services
package common

import "math/big"

// Solver defaults. Every value can be overridden through SolverConfig.
const (
	DefaultMinTradableAmount  = 10000
	DefaultMaxExecOrders      = 30
	DefaultMinAverageOrderFee = 0
)

// DefaultFeeTokenPrice is 10^18.
func DefaultFeeTokenPrice() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

var (
	// Fee imbalance is priced with 1% headroom for rounding.
	DefaultRoundingBuffer = big.NewRat(101, 100)
	// Market orders accept 90% of the best counter limit.
	DefaultMarketSlack = big.NewRat(9, 10)
)

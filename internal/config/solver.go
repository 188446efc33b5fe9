package config

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/shopspring/decimal"

	solvercommon "github.com/hxuan190/batch-solver/internal/common"
	"github.com/hxuan190/batch-solver/internal/services/solver"
)

type SolverConfig struct {
	// FeeTokenPrice is the integer reference price of the fee token.
	// Default: 1000000000000000000
	FeeTokenPrice decimal.Decimal

	// MinTradableAmount bounds every nonzero executed amount.
	// Default: 10000
	MinTradableAmount decimal.Decimal

	// MaxExecOrders caps the executed orders per solution, 0 disables it.
	// Default: 30
	MaxExecOrders int

	// RoundingBuffer scales the fee imbalance when pricing the fee leg.
	// Default: 1.01
	RoundingBuffer decimal.Decimal

	// MarketSlack scales the best fee-order limit for synthetic orders.
	// Default: 0.9
	MarketSlack decimal.Decimal

	// MinAverageOrderFee is the minimum fee-token surplus per executed order.
	// Default: 0
	MinAverageOrderFee decimal.Decimal

	// TimeLimit bounds a best-pair search, 0 disables it.
	// Default: 0
	TimeLimit time.Duration

	// Workers is the number of pairs evaluated concurrently.
	// Default: derived from GOMAXPROCS
	Workers int

	// Seed drives the pair visit order. 0 picks a fresh seed per run.
	// Default: 0
	Seed uint64
}

func DefaultSolverConfig() *SolverConfig {
	return &SolverConfig{
		FeeTokenPrice:      decimal.NewFromBigInt(solvercommon.DefaultFeeTokenPrice(), 0),
		MinTradableAmount:  decimal.NewFromInt(solvercommon.DefaultMinTradableAmount),
		MaxExecOrders:      solvercommon.DefaultMaxExecOrders,
		RoundingBuffer:     decimal.RequireFromString(solvercommon.DefaultRoundingBuffer.FloatString(2)),
		MarketSlack:        decimal.RequireFromString(solvercommon.DefaultMarketSlack.FloatString(2)),
		MinAverageOrderFee: decimal.NewFromInt(solvercommon.DefaultMinAverageOrderFee),
		Workers:            solvercommon.DefaultWorkers(),
	}
}

func (c *SolverConfig) Key() string {
	return SOLVER_CONFIG_KEY
}

func (c *SolverConfig) Load() error {
	d := DefaultSolverConfig()

	var err error
	if c.FeeTokenPrice, err = envDecimal("SOLVER_FEE_TOKEN_PRICE", d.FeeTokenPrice); err != nil {
		return err
	}
	if c.MinTradableAmount, err = envDecimal("SOLVER_MIN_TRADABLE_AMOUNT", d.MinTradableAmount); err != nil {
		return err
	}
	if c.RoundingBuffer, err = envDecimal("SOLVER_ROUNDING_BUFFER", d.RoundingBuffer); err != nil {
		return err
	}
	if c.MarketSlack, err = envDecimal("SOLVER_MARKET_SLACK", d.MarketSlack); err != nil {
		return err
	}
	if c.MinAverageOrderFee, err = envDecimal("SOLVER_MIN_AVERAGE_ORDER_FEE", d.MinAverageOrderFee); err != nil {
		return err
	}
	c.MaxExecOrders = common.GetEnvOrDefaultInt("SOLVER_MAX_EXEC_ORDERS", d.MaxExecOrders)
	c.Workers = common.GetEnvOrDefaultInt("SOLVER_WORKERS", d.Workers)

	if c.TimeLimit, err = time.ParseDuration(common.GetEnvOrDefault("SOLVER_TIME_LIMIT", "0s")); err != nil {
		return fmt.Errorf("invalid SOLVER_TIME_LIMIT: %w", err)
	}
	if c.Seed, err = strconv.ParseUint(common.GetEnvOrDefault("SOLVER_SEED", "0"), 10, 64); err != nil {
		return fmt.Errorf("invalid SOLVER_SEED: %w", err)
	}
	return c.Validate()
}

func (c *SolverConfig) Validate() error {
	if !c.FeeTokenPrice.IsPositive() || !c.FeeTokenPrice.IsInteger() {
		return errors.New("fee token price must be a positive integer")
	}
	if !c.MinTradableAmount.IsPositive() {
		return errors.New("min tradable amount must be positive")
	}
	if c.MaxExecOrders < 0 {
		return errors.New("max exec orders must not be negative")
	}
	if c.RoundingBuffer.LessThan(decimal.NewFromInt(1)) {
		return errors.New("rounding buffer must be at least 1")
	}
	if !c.MarketSlack.IsPositive() || c.MarketSlack.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("market slack must be in (0, 1]")
	}
	if c.MinAverageOrderFee.IsNegative() {
		return errors.New("min average order fee must not be negative")
	}
	if c.TimeLimit < 0 {
		return errors.New("time limit must not be negative")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	return nil
}

// Params converts the settings into exact pipeline constants.
func (c *SolverConfig) Params() solver.Params {
	return solver.Params{
		FeeTokenPrice:      c.FeeTokenPrice.BigInt(),
		MinTradableAmount:  c.MinTradableAmount.Rat(),
		MaxExecOrders:      c.MaxExecOrders,
		RoundingBuffer:     c.RoundingBuffer.Rat(),
		MarketSlack:        c.MarketSlack.Rat(),
		MinAverageOrderFee: c.MinAverageOrderFee.Rat(),
	}
}

// MinTradable is the integer lower bound used when loading orders.
func (c *SolverConfig) MinTradable() *big.Rat {
	return c.MinTradableAmount.Rat()
}

func envDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(common.GetEnvOrDefault(key, def.String()))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

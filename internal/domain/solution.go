package domain

import (
	"math/big"
	"time"
)

type ExitStatus string

const (
	StatusCompleted   ExitStatus = "completed"
	StatusTimeLimited ExitStatus = "time-limited"
)

// ObjectiveValues aggregates the metrics of a solution.
type ObjectiveValues struct {
	Volume                    *big.Int
	Utility                   *big.Int
	UtilityDisregarded        *big.Int
	UtilityDisregardedTouched *big.Int
	Fees                      *big.Int
	OrdersTouched             int
}

func ZeroObjective() ObjectiveValues {
	return ObjectiveValues{
		Volume:                    new(big.Int),
		Utility:                   new(big.Int),
		UtilityDisregarded:        new(big.Int),
		UtilityDisregardedTouched: new(big.Int),
		Fees:                      new(big.Int),
	}
}

// Solution is the result of one run. Orders holds the touched orders only.
type Solution struct {
	RunID     string
	TokenPair *TokenPair
	Prices    Prices
	Orders    []Order
	Objective ObjectiveValues
	// Score ranks candidates against each other; the trivial solution has 0.
	Score   *big.Int
	Runtime time.Duration
	Status  ExitStatus
}

// TrivialSolution executes nothing.
func TrivialSolution() *Solution {
	return &Solution{
		Prices:    Prices{},
		Objective: ZeroObjective(),
		Score:     new(big.Int),
		Status:    StatusCompleted,
	}
}

func (s *Solution) IsTrivial() bool {
	return len(s.Orders) == 0
}

package solver

import (
	"fmt"
	"math/big"

	"github.com/hxuan190/batch-solver/internal/common"
	"github.com/hxuan190/batch-solver/internal/domain"
)

// TokenPairSolver runs the whole pipeline for one candidate pair.
type TokenPairSolver struct {
	params Params
}

func NewTokenPairSolver(params Params) *TokenPairSolver {
	return &TokenPairSolver{params: params}
}

func (ps *TokenPairSolver) Params() Params {
	return ps.params
}

// Solve clears pair on snap, settles the fee, rounds, validates and scores.
// xrate is optional. Expected no-trade outcomes are reported through the
// sentinel errors of package common; a *ValidationError means a defect.
func (ps *TokenPairSolver) Solve(snap *domain.Snapshot, pair domain.TokenPair, xrate *big.Rat) (*domain.Solution, error) {
	fee := snap.Fee
	if pair.B == pair.S {
		return nil, fmt.Errorf("%w: %s is traded against itself", common.ErrInfeasiblePair, pair.B)
	}

	bOrders := snap.OrdersSelling(pair.S, pair.B)
	sOrders := snap.OrdersSelling(pair.B, pair.S)
	if len(bOrders) == 0 || len(sOrders) == 0 {
		return nil, fmt.Errorf("%w: %s has an empty side", common.ErrInfeasiblePair, pair)
	}
	var fOrders []domain.Order
	if pair.B != fee.Token {
		fOrders = snap.OrdersSelling(fee.Token, pair.B)
	}

	settlement, err := SettleFee(pair, bOrders, sOrders, fOrders, fee, xrate, ps.params)
	if err != nil {
		return nil, err
	}

	rounded, err := RoundSolution(settlement.Prices, settlement.Orders(), fee, ps.params)
	if err != nil {
		return nil, err
	}

	if err := Validate(snap.Ledger, rounded, settlement.Prices, fee, ps.params); err != nil {
		return nil, err
	}
	updated, err := snap.Ledger.Apply(rounded)
	if err != nil {
		return nil, &ValidationError{Rule: "account_balance", Detail: err.Error()}
	}

	all := mergeExecuted(snap.Orders, rounded)
	evaluated, obj, err := EvaluateObjective(settlement.Prices, updated, all, fee)
	if err != nil {
		return nil, err
	}
	score := TouchedObjective(settlement.Prices, updated, rounded, fee)

	touched := make([]domain.Order, 0, obj.OrdersTouched)
	for _, o := range evaluated {
		if o.Touched() {
			touched = append(touched, o)
		}
	}

	return &domain.Solution{
		TokenPair: &pair,
		Prices:    settlement.Prices,
		Orders:    touched,
		Objective: obj,
		Score:     score,
		Status:    domain.StatusCompleted,
	}, nil
}

// mergeExecuted overlays executed orders onto the full order list by ID.
func mergeExecuted(orders, executed []domain.Order) []domain.Order {
	byID := make(map[string]domain.Order, len(executed))
	for _, o := range executed {
		byID[o.ID] = o
	}
	out := make([]domain.Order, len(orders))
	for i, o := range orders {
		if e, ok := byID[o.ID]; ok {
			out[i] = e
			continue
		}
		out[i] = o
	}
	return out
}

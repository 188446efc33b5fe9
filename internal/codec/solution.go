package codec

import (
	"fmt"
	"math/big"
	"slices"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/hxuan190/batch-solver/internal/domain"
)

const SolverName = "batch-solver"

type SolutionFile struct {
	// Accounts holds the balances after the executed orders are applied.
	Accounts map[string]map[string]string `json:"accounts"`
	Orders   []SolvedOrder                `json:"orders"`
	Fee      FeeFile                      `json:"fee"`
	// Prices is null for tokens the solution leaves unpriced.
	Prices  map[string]*string `json:"prices"`
	ObjVals ObjectiveFile      `json:"objVals"`
	Solver  SolverStats        `json:"solver"`
}

type SolvedOrder struct {
	OrderFile
	ExecSellAmount string `json:"execSellAmount"`
	ExecBuyAmount  string `json:"execBuyAmount"`
	Utility        string `json:"utility"`
	UtilityDisreg  string `json:"utility_disreg"`
}

type ObjectiveFile struct {
	Volume               string `json:"volume"`
	Utility              string `json:"utility"`
	UtilityDisreg        string `json:"utility_disreg"`
	UtilityDisregTouched string `json:"utility_disreg_touched"`
	Fees                 string `json:"fees"`
	OrdersTouched        int    `json:"orders_touched"`
}

type SolverStats struct {
	Name       string  `json:"name"`
	RunID      string  `json:"runId,omitempty"`
	TokenPair  string  `json:"tokenPair,omitempty"`
	Score      string  `json:"score"`
	Runtime    float64 `json:"runtime"`
	ExitStatus string  `json:"exit_status"`
}

// BuildSolution lays out sol against the instance it solves.
func BuildSolution(inst *Instance, sol *domain.Solution) (*SolutionFile, error) {
	updated, err := inst.Problem.Ledger.Apply(sol.Orders)
	if err != nil {
		return nil, fmt.Errorf("apply solution: %w", err)
	}

	out := &SolutionFile{
		Accounts: make(map[string]map[string]string),
		Orders:   make([]SolvedOrder, 0, len(sol.Orders)),
		Fee:      inst.File.Fee,
		Prices:   make(map[string]*string),
		ObjVals: ObjectiveFile{
			Volume:               sol.Objective.Volume.String(),
			Utility:              sol.Objective.Utility.String(),
			UtilityDisreg:        sol.Objective.UtilityDisregarded.String(),
			UtilityDisregTouched: sol.Objective.UtilityDisregardedTouched.String(),
			Fees:                 sol.Objective.Fees.String(),
			OrdersTouched:        sol.Objective.OrdersTouched,
		},
		Solver: SolverStats{
			Name:       SolverName,
			RunID:      sol.RunID,
			Score:      sol.Score.String(),
			Runtime:    sol.Runtime.Seconds(),
			ExitStatus: string(sol.Status),
		},
	}
	if sol.TokenPair != nil {
		out.Solver.TokenPair = sol.TokenPair.String()
	}

	for _, account := range updated.Accounts() {
		balances := make(map[string]string)
		for _, token := range updated.Tokens(account) {
			balances[string(token)] = updated.Balance(account, token).Dec()
		}
		out.Accounts[account] = balances
	}

	for _, token := range inst.Problem.Tokens() {
		if p, ok := sol.Prices[token]; ok && p != nil {
			s := p.String()
			out.Prices[string(token)] = &s
			continue
		}
		out.Prices[string(token)] = nil
	}

	orders := slices.Clone(sol.Orders)
	slices.SortFunc(orders, func(a, b domain.Order) int { return domain.CompareIDs(a.ID, b.ID) })
	for _, o := range orders {
		if o.IsSynthetic() {
			continue
		}
		idx, err := strconv.Atoi(o.ID)
		if err != nil || idx < 0 || idx >= len(inst.File.Orders) {
			return nil, fmt.Errorf("order %s is not part of the instance", o.ID)
		}
		out.Orders = append(out.Orders, SolvedOrder{
			OrderFile:      inst.File.Orders[idx],
			ExecSellAmount: o.SellAmount.RatString(),
			ExecBuyAmount:  o.BuyAmount.RatString(),
			Utility:        intString(o.Utility),
			UtilityDisreg:  intString(o.UtilityDisregarded),
		})
	}
	return out, nil
}

// EncodeSolution renders sol as indented JSON.
func EncodeSolution(inst *Instance, sol *domain.Solution) ([]byte, error) {
	out, err := BuildSolution(inst, sol)
	if err != nil {
		return nil, err
	}
	return sonic.ConfigStd.MarshalIndent(out, "", "    ")
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

package domain

import (
	"errors"
	"math/big"

	"github.com/hxuan190/batch-solver/internal/common/exact"
)

var ErrInvalidFee = errors.New("fee ratio must lie strictly between 0 and 1")

// Fee is the exchange fee, realized in a single token.
type Fee struct {
	Token TokenID
	Ratio *big.Rat
}

func NewFee(token TokenID, ratio *big.Rat) (Fee, error) {
	if ratio == nil || ratio.Sign() <= 0 || ratio.Cmp(exact.One) >= 0 {
		return Fee{}, ErrInvalidFee
	}
	return Fee{Token: token, Ratio: ratio}, nil
}

// OneMinus returns 1 - ratio.
func (f Fee) OneMinus() *big.Rat {
	return exact.Sub(exact.One, f.Ratio)
}

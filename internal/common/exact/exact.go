// Package exact holds the rational and integer helpers used by the solver.
// Every helper allocates its result; operands are never modified, so values
// can be shared freely between order copies.
package exact

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Pre-computed constants (never mutate)
var (
	Zero = new(big.Rat)
	One  = big.NewRat(1, 1)

	bigZero = big.NewInt(0)
	bigOne  = big.NewInt(1)
	bigTwo  = big.NewInt(2)
)

// R builds n/d.
func R(n, d int64) *big.Rat {
	return big.NewRat(n, d)
}

// FromInt converts an integer into a rational.
func FromInt(i *big.Int) *big.Rat {
	if i == nil {
		return new(big.Rat)
	}
	return new(big.Rat).SetInt(i)
}

// FromInt64 converts an int64 into a rational.
func FromInt64(i int64) *big.Rat {
	return new(big.Rat).SetInt64(i)
}

func Add(a, b *big.Rat) *big.Rat { return new(big.Rat).Add(a, b) }
func Sub(a, b *big.Rat) *big.Rat { return new(big.Rat).Sub(a, b) }
func Mul(a, b *big.Rat) *big.Rat { return new(big.Rat).Mul(a, b) }
func Neg(a *big.Rat) *big.Rat    { return new(big.Rat).Neg(a) }

// Quo returns a/b. The caller guarantees b != 0.
func Quo(a, b *big.Rat) *big.Rat { return new(big.Rat).Quo(a, b) }

// Inv returns 1/a. The caller guarantees a != 0.
func Inv(a *big.Rat) *big.Rat { return new(big.Rat).Inv(a) }

func Min(a, b *big.Rat) *big.Rat {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func Max(a, b *big.Rat) *big.Rat {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func IsZero(a *big.Rat) bool     { return a == nil || a.Sign() == 0 }
func IsPositive(a *big.Rat) bool { return a != nil && a.Sign() > 0 }

// Floor rounds toward negative infinity.
func Floor(a *big.Rat) *big.Int {
	q, m := new(big.Int).QuoRem(a.Num(), a.Denom(), new(big.Int))
	if m.Sign() < 0 {
		q.Sub(q, bigOne)
	}
	return q
}

// Ceil rounds toward positive infinity.
func Ceil(a *big.Rat) *big.Int {
	q, m := new(big.Int).QuoRem(a.Num(), a.Denom(), new(big.Int))
	if m.Sign() > 0 {
		q.Add(q, bigOne)
	}
	return q
}

// Round rounds to the nearest integer, halves to even.
func Round(a *big.Rat) *big.Int {
	fl := Floor(a)
	frac := new(big.Rat).Sub(a, new(big.Rat).SetInt(fl))
	switch frac.Cmp(big.NewRat(1, 2)) {
	case -1:
		return fl
	case 1:
		return fl.Add(fl, bigOne)
	}
	if new(big.Int).Rem(fl, bigTwo).Sign() == 0 {
		return fl
	}
	return fl.Add(fl, bigOne)
}

// FloorRat is Floor returned as a rational.
func FloorRat(a *big.Rat) *big.Rat {
	return new(big.Rat).SetInt(Floor(a))
}

// MulDivFloor computes floor(a*b/c) for nonnegative integers. The uint256
// path covers every realistic token amount; big.Int is the fallback.
func MulDivFloor(a, b, c *big.Int) *big.Int {
	if c.Sign() == 0 {
		return new(big.Int)
	}
	ua, overA := uint256.FromBig(a)
	ub, overB := uint256.FromBig(b)
	uc, overC := uint256.FromBig(c)
	if !overA && !overB && !overC && a.Sign() >= 0 && b.Sign() >= 0 && c.Sign() > 0 {
		out, overflow := new(uint256.Int).MulDivOverflow(ua, ub, uc)
		if !overflow {
			return out.ToBig()
		}
	}
	out := new(big.Int).Mul(a, b)
	return Floor(new(big.Rat).SetFrac(out, c))
}

// PositiveInt reports whether i is a strictly positive integer.
func PositiveInt(i *big.Int) bool {
	return i != nil && i.Cmp(bigZero) > 0
}

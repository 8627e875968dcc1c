// Package types provides the value types shared across subvault.
package types

import (
	"errors"
	"math"
	"math/bits"
	"strconv"
)

// Amount is a quantity of the payment token in its smallest indivisible unit.
// All arithmetic is integer-only; helpers report overflow instead of wrapping.
type Amount uint64

// MaxAmount is the largest representable amount.
const MaxAmount = Amount(math.MaxUint64)

var (
	// ErrAmountOverflow is returned when an addition or product exceeds MaxAmount.
	ErrAmountOverflow = errors.New("types: amount overflow")

	// ErrAmountUnderflow is returned when a subtraction would go below zero.
	ErrAmountUnderflow = errors.New("types: amount underflow")

	// ErrDivideByZero is returned by MulDiv when the divisor is zero.
	ErrDivideByZero = errors.New("types: division by zero")
)

// Add returns a+b or ErrAmountOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, ErrAmountOverflow
	}
	return Amount(sum), nil
}

// Sub returns a-b or ErrAmountUnderflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, ErrAmountUnderflow
	}
	return a - b, nil
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// String renders the amount in smallest units.
func (a Amount) String() string { return strconv.FormatUint(uint64(a), 10) }

// MulDiv computes floor(a*b/c) with a 128-bit intermediate product, so the
// multiplication itself never overflows. Only a quotient above MaxAmount is
// an error.
func MulDiv(a, b, c uint64) (Amount, error) {
	if c == 0 {
		return 0, ErrDivideByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, ErrAmountOverflow
	}
	q, _ := bits.Div64(hi, lo, c)
	return Amount(q), nil
}

// Sum adds amounts, stopping at the first overflow.
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the number of decimal places of the native currency.
const NativeDecimals = 18

// BasisPoints is the denominator for fee rates expressed in bps.
const BasisPoints = 10_000

// Amount is a non-negative quantity of native currency in base units (wei).
// The zero value is zero. Arithmetic never wraps: overflow, underflow and
// division by zero surface as arithmetic errors.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount of n base units.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a decimal string of base units.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	s = strings.TrimSpace(s)
	if s == "" {
		return a, Validationf("parse amount", "empty amount")
	}
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, Validationf("parse amount", "invalid amount %q: %v", s, err)
	}
	return a, nil
}

// ParseNative parses a human amount such as "1.5" into base units. More than
// NativeDecimals fractional digits is rejected rather than rounded.
func ParseNative(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, Validationf("parse amount", "invalid amount %q: %v", s, err)
	}
	if d.IsNegative() {
		return Amount{}, Validationf("parse amount", "amount %q is negative", s)
	}
	wei := d.Shift(NativeDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return Amount{}, Validationf("parse amount", "amount %q has more than %d decimals", s, NativeDecimals)
	}
	return ParseAmount(wei.String())
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Equal(b Amount) bool { return a.v.Eq(&b.v) }

// Add returns a+b.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, Arithmeticf("add", "amount overflow")
	}
	return out, nil
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, Arithmeticf("sub", "amount underflow")
	}
	return out, nil
}

// MulDiv returns floor(a*num/den) with a full-width intermediate product.
func (a Amount) MulDiv(num, den Amount) (Amount, error) {
	if den.IsZero() {
		return Amount{}, Arithmeticf("muldiv", "division by zero")
	}
	var out Amount
	if _, overflow := out.v.MulDivOverflow(&a.v, &num.v, &den.v); overflow {
		return Amount{}, Arithmeticf("muldiv", "amount overflow")
	}
	return out, nil
}

// Bps returns floor(a*bps/10000).
func (a Amount) Bps(bps uint64) (Amount, error) {
	return a.MulDiv(NewAmount(bps), NewAmount(BasisPoints))
}

// Split divides a into n equal parts; the remainder is returned separately.
func (a Amount) Split(n uint64) (part, remainder Amount, err error) {
	if n == 0 {
		return Amount{}, Amount{}, Arithmeticf("split", "division by zero")
	}
	d := uint256.NewInt(n)
	part.v.Div(&a.v, d)
	remainder.v.Mod(&a.v, d)
	return part, remainder, nil
}

// Uint64 returns a as a uint64, failing if it does not fit.
func (a Amount) Uint64() (uint64, error) {
	if !a.v.IsUint64() {
		return 0, Arithmeticf("uint64", "amount %s exceeds 64 bits", a.v.Dec())
	}
	return a.v.Uint64(), nil
}

// BigInt returns a as a new big.Int.
func (a Amount) BigInt() *big.Int { return a.v.ToBig() }

// String returns the decimal base-unit representation.
func (a Amount) String() string { return a.v.Dec() }

// Decimal returns a in whole native units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.RequireFromString(a.v.Dec()).Shift(-NativeDecimals)
}

// Format renders a in native units with the given number of decimals.
func (a Amount) Format(places int32) string {
	return a.Decimal().StringFixed(places)
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.Dec()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = parsed
	return nil
}

// SumAmounts adds every element of xs.
func SumAmounts(xs []Amount) (Amount, error) {
	var total Amount
	for _, x := range xs {
		var err error
		if total, err = total.Add(x); err != nil {
			return Amount{}, err
		}
	}
	return total, nil
}

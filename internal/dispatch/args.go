package dispatch

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/fixedpoint"
)

// ErrBadArgs is returned when a call carries arguments of the wrong shape.
var ErrBadArgs = errors.New("dispatch: bad arguments")

// AmountArgs carries a single amount.
type AmountArgs struct {
	Amount *uint256.Int
}

// AddressArgs carries a single address.
type AddressArgs struct {
	Address common.Address
}

// FractionArgs carries a single fraction parameter.
type FractionArgs struct {
	Fraction fixedpoint.Fraction
}

// ArgsAs extracts the typed arguments of call.
func ArgsAs[T any](call Call) (T, error) {
	v, ok := call.Args.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s expects %T, got %T", ErrBadArgs, call.Op, zero, call.Args)
	}
	return v, nil
}

// Amount extracts AmountArgs and rejects a nil amount.
func Amount(call Call) (*uint256.Int, error) {
	a, err := ArgsAs[AmountArgs](call)
	if err != nil {
		return nil, err
	}
	if a.Amount == nil {
		return nil, fmt.Errorf("%w: %s requires an amount", ErrBadArgs, call.Op)
	}
	return a.Amount.Clone(), nil
}

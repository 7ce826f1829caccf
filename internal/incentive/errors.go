package incentive

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariantViolation is fatal: the triggering call must be aborted and
	// the process should stop feeding events into the engine.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrNoClaimableBalance is returned when a beneficiary has nothing accrued.
	ErrNoClaimableBalance = errors.New("no claimable balance")
	// ErrInsufficientFundedBalance is returned when the reserve cannot cover a
	// claim. The claim can be retried once the reserve is replenished.
	ErrInsufficientFundedBalance = errors.New("insufficient funded balance")
	// ErrUnauthorized is returned when a caller other than the configured admin
	// changes a reward rate.
	ErrUnauthorized = errors.New("unauthorized reward rate change")
)

func invariantf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

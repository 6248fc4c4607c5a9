package orchestrator

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned to the caller of a load whose result arrived
// after a newer action made it stale. The result is discarded.
var ErrSuperseded = errors.New("request superseded by a newer action")

// InvalidTickerError is returned by LoadContracts when the pending ticker is
// empty or not a plausible symbol.
type InvalidTickerError struct {
	Ticker string
	Reason string
}

func (e *InvalidTickerError) Error() string {
	if e.Ticker == "" {
		return "invalid ticker: " + e.Reason
	}
	return fmt.Sprintf("invalid ticker %q: %s", e.Ticker, e.Reason)
}

// IllegalTransitionError is returned when an action is not allowed in the
// current state. The snapshot is left unchanged.
type IllegalTransitionError struct {
	Action Action
	State  State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s is not allowed in state %s", e.Action, e.State)
}

// IsInvalidTicker reports whether err is an *InvalidTickerError.
func IsInvalidTicker(err error) bool {
	var target *InvalidTickerError
	return errors.As(err, &target)
}

// IsIllegalTransition reports whether err is an *IllegalTransitionError.
func IsIllegalTransition(err error) bool {
	var target *IllegalTransitionError
	return errors.As(err, &target)
}

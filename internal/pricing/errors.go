package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/irfndi/optionscope/internal/services"
)

// ErrEmptyTicker is returned when a lookup is attempted without a ticker.
var ErrEmptyTicker = errors.New("ticker is required")

// NetworkError reports a failure to get a response from the pricing service:
// transport errors, timeouts, HTTP error statuses and an open circuit.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("pricing service %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("pricing service %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Temporary reports whether repeating the request may succeed.
func (e *NetworkError) Temporary() bool {
	switch {
	case e.StatusCode >= http.StatusInternalServerError, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode > 0:
		return false
	}
	return !errors.Is(e.Err, services.ErrCircuitOpen) &&
		!errors.Is(e.Err, context.Canceled) &&
		!errors.Is(e.Err, context.DeadlineExceeded)
}

// DecodeError reports a response whose payload does not match the contract.
// StatusCode is set when the service rejected the request parameters (HTTP 422).
type DecodeError struct {
	Op         string
	Reason     string
	StatusCode int
	Err        error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pricing service %s: malformed response: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("pricing service %s: malformed response: %s", e.Op, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ShapeMismatchError reports a heatmap grid whose dimensions disagree with
// its axes. Row is -1 when the row count is wrong, otherwise the offending row.
type ShapeMismatchError struct {
	Rows     int
	Cols     int
	WantRows int
	WantCols int
	Row      int
}

func (e *ShapeMismatchError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("heatmap grid has %d rows, want %d (len(y))", e.Rows, e.WantRows)
	}
	return fmt.Sprintf("heatmap grid row %d has %d cells, want %d (len(x))", e.Row, e.Cols, e.WantCols)
}

// IsNetworkError reports whether err is or wraps a *NetworkError.
func IsNetworkError(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

// IsShapeMismatchError reports whether err is or wraps a *ShapeMismatchError.
func IsShapeMismatchError(err error) bool {
	var target *ShapeMismatchError
	return errors.As(err, &target)
}

func isRetryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Temporary()
}

// countsAgainstBreaker keeps client-side mistakes (4xx) from opening the circuit.
func countsAgainstBreaker(err error) bool {
	var de *DecodeError
	if errors.As(err, &de) && de.StatusCode != 0 {
		return false
	}
	var ne *NetworkError
	if !errors.As(err, &ne) {
		return true
	}
	if ne.StatusCode == 0 {
		return !errors.Is(ne.Err, context.Canceled)
	}
	return ne.StatusCode >= http.StatusInternalServerError
}

package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every terminal failure path in the pipeline resolves to
// one of these (directly or via errors.Is/As on a wrapped error), so the
// orchestrator can classify a failure without string matching.
var (
	ErrRateTimeout       = errors.New("rate governor: acquire timed out")
	ErrEnqueueTimeout    = errors.New("request manager: queue wait timed out")
	ErrTransport         = errors.New("transport error")
	ErrSignalStale       = errors.New("signal is stale")
	ErrSignalDuplicate   = errors.New("signal is a duplicate within the dedup window")
	ErrSignalExpired     = errors.New("signal expired before dequeue")
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrStateInconsistency = errors.New("local state inconsistent with exchange")
	ErrPositionExists     = errors.New("an active position already exists for this symbol")
	ErrMaxConcurrentTrades = errors.New("maximum concurrent trades reached")
	ErrQueueFull          = errors.New("priority signal queue is full")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient available balance for requested position size")
)

// ExchangeError is a classified error returned by the exchange REST API.
// It is never cached and is inspected by C7 to decide retryability.
type ExchangeError struct {
	Code    int
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Message)
}

// Retryable reports whether the executor pool should retry the task that
// produced this error. Insufficient balance, an already-open position, and
// explicit rate-limit responses are treated as terminal for the task.
func (e *ExchangeError) Retryable() bool {
	switch e.Code {
	case CodeInsufficientBalance, CodePositionExists, CodeRateLimited:
		return false
	default:
		return true
	}
}

// Well-known exchange error codes the pool classifies explicitly. These
// mirror the values the reference futures exchange actually returns.
const (
	CodeInsufficientBalance = -2019
	CodePositionExists      = -4061
	CodeRateLimited         = -1003
	CodeInvalidSymbol       = -1121
	CodeOrderWouldImmediateTrigger = -2021
	CodeMarginInsufficient  = -2027
)

// ValidationFailure carries the full set of reasons RiskValidator rejected
// a candidate trade. Not retryable; the orchestrator reports it verbatim.
type ValidationFailure struct {
	Errors   []string
	Warnings []string
}

func (v *ValidationFailure) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %v", v.Errors)
}

// TransportError wraps a lower-level transport failure (network, decode,
// unrecognized schema) so callers can distinguish it from ExchangeError
// without inspecting strings.
type TransportError struct {
	Reason string
	Err    error
}

func (t *TransportError) Error() string {
	if t.Err != nil {
		return fmt.Sprintf("transport error (%s): %v", t.Reason, t.Err)
	}
	return fmt.Sprintf("transport error: %s", t.Reason)
}

func (t *TransportError) Unwrap() error { return t.Err }

func (t *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Package common provides shared utilities used across all features
package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Expected solver outcomes. A pair ending in one of these degrades to the
// trivial solution.
var (
	ErrInfeasiblePair           = errors.New("no compatible exchange rate for token pair")
	ErrInsufficientFeeLiquidity = errors.New("fee orders cannot absorb the fee imbalance")
	ErrUnroundable              = errors.New("solution cannot be rounded to integers")
	ErrNotEconomicallyViable    = errors.New("average order fee below minimum")
)

// ErrValidationFailure marks a rounded solution that breaks an invariant. It
// signals a defect upstream and is never accepted as a result.
var ErrValidationFailure = errors.New("solution validation failed")

// IsExpectedOutcome reports whether err is an ordinary no-trade result rather
// than a defect.
func IsExpectedOutcome(err error) bool {
	return errors.Is(err, ErrInfeasiblePair) ||
		errors.Is(err, ErrInsufficientFeeLiquidity) ||
		errors.Is(err, ErrUnroundable) ||
		errors.Is(err, ErrNotEconomicallyViable)
}

// OutcomeLabel names err for metrics and logs.
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "solved"
	case errors.Is(err, ErrInsufficientFeeLiquidity):
		return "insufficient_fee_liquidity"
	case errors.Is(err, ErrInfeasiblePair):
		return "infeasible"
	case errors.Is(err, ErrUnroundable):
		return "unroundable"
	case errors.Is(err, ErrNotEconomicallyViable):
		return "not_viable"
	case errors.Is(err, ErrValidationFailure):
		return "validation_failure"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	}
	return "error"
}

// HttpError represents an HTTP error with status code and message
type HttpError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s %s", e.StatusCode, e.Code, e.Message)
}

func messageOrDefault(msg string, defaultMsg string) string {
	if msg != "" {
		return msg
	}
	return defaultMsg
}

// HTTP Error constructors

func HTTPErrorBadRequest(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    messageOrDefault(msg, "Bad request"),
	}
}

func HTTPErrorNotFound(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    messageOrDefault(msg, "Not found"),
	}
}

func HTTPErrorInternalError(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    messageOrDefault(msg, "Internal server error"),
	}
}

// HTTPErrorSolverFailure reports a solve that ended in a defect rather than
// an expected no-trade outcome.
func HTTPErrorSolverFailure(err error) *HttpError {
	code := "SOLVER_ERROR"
	if errors.Is(err, ErrValidationFailure) {
		code = "VALIDATION_FAILURE"
	}
	return &HttpError{
		StatusCode: http.StatusInternalServerError,
		Code:       code,
		Message:    "solver failed: " + OutcomeLabel(err),
	}
}

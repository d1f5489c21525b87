package domain

import (
	"context"
	"errors"
	"strings"
)

// Error kinds surfaced by the store, the order service and the validator.
// Callers branch on these with errors.Is; the retry manager never wraps
// them, so the kind survives exhaustion.
var (
	ErrUserCancelled = errors.New("user cancelled")

	// Retryable.
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrRequestTimeout     = errors.New("request timeout")
	ErrServerValidation   = errors.New("server validation failure")

	// Terminal.
	ErrProductNotFound      = errors.New("product not found")
	ErrPaymentNotAllowed    = errors.New("payment not allowed")
	ErrInvalidReceipt       = errors.New("invalid receipt data")
	ErrConfiguration        = errors.New("configuration error")
	ErrOrderMismatch        = errors.New("server order mismatch")
	ErrOrderExpired         = errors.New("order expired")
	ErrOrderValidation      = errors.New("order validation failed")
	ErrOrderNotFound        = errors.New("order not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// Category determines how an error is handled.
type Category int

const (
	CategoryRetryable Category = iota
	CategoryTerminal
	CategoryCancelled
)

// Classify maps an error to its handling category. Known kinds are matched
// with errors.Is; anything transport-shaped (timeouts, resets, 5xx) falls
// back to retryable, everything else is terminal.
func Classify(err error) Category {
	if err == nil {
		return CategoryTerminal
	}

	switch {
	case errors.Is(err, ErrUserCancelled),
		errors.Is(err, context.Canceled):
		return CategoryCancelled
	case errors.Is(err, ErrNetworkUnavailable),
		errors.Is(err, ErrRequestTimeout),
		errors.Is(err, ErrServerValidation),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryRetryable
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrPaymentNotAllowed),
		errors.Is(err, ErrInvalidReceipt),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrOrderMismatch),
		errors.Is(err, ErrOrderExpired),
		errors.Is(err, ErrOrderValidation),
		errors.Is(err, ErrDuplicateTransaction):
		return CategoryTerminal
	}

	s := strings.ToLower(err.Error())
	if strings.Contains(s, "cancel") {
		return CategoryCancelled
	}
	if strings.Contains(s, "timeout") || strings.Contains(s, "timed out") ||
		strings.Contains(s, "connection reset") || strings.Contains(s, "connection refused") ||
		strings.Contains(s, "temporarily unavailable") ||
		strings.Contains(s, "http 5") || strings.Contains(s, "network") {
		return CategoryRetryable
	}

	return CategoryTerminal
}

// Retryable reports whether err should be scheduled for another attempt.
func Retryable(err error) bool {
	return Classify(err) == CategoryRetryable
}

// ClassifyFailure maps a store-carried failure message (no error value
// survives serialization) to a category using the same transport patterns.
func ClassifyFailure(msg string) Category {
	if msg == "" {
		return CategoryTerminal
	}
	return Classify(errors.New(msg))
}

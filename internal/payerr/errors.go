// Package payerr defines the error taxonomy shared across the payment core.
// Callers discriminate failure kinds with errors.Is.
package payerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates a malformed payment request.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimitExceeded indicates the customer exceeded their request rate.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidPaymentMethod indicates an absent or unusable payment method.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrFraudDetected indicates the fraud score crossed the hard threshold.
	// Non-retryable.
	ErrFraudDetected = errors.New("fraud detected")

	// ErrCurrencyConversion indicates a rate refresh or lookup failure.
	ErrCurrencyConversion = errors.New("currency conversion failed")

	// ErrGatewayTimeout indicates every settlement attempt timed out.
	ErrGatewayTimeout = errors.New("payment gateway timeout")

	// ErrProcessingFailed indicates settlement failed after exhausting retries.
	ErrProcessingFailed = errors.New("payment processing failed")

	// ErrDecryption indicates a tampered or malformed encryption envelope.
	ErrDecryption = errors.New("decryption failed")

	// ErrTokenExpired indicates a payment token past its expiry. Callers
	// re-issue on this, so it is distinct from ErrTokenInvalid.
	ErrTokenExpired = errors.New("payment token expired")

	// ErrTokenInvalid indicates a payment token that fails verification.
	ErrTokenInvalid = errors.New("payment token invalid")

	// ErrNotFound indicates a referenced record does not exist. Distinct
	// from storage failures, which pass through unwrapped.
	ErrNotFound = errors.New("not found")
)

// FraudError carries the computed score alongside ErrFraudDetected.
type FraudError struct {
	Score float64
}

func (e *FraudError) Error() string {
	return fmt.Sprintf("high fraud risk detected: %.2f", e.Score)
}

func (e *FraudError) Unwrap() error {
	return ErrFraudDetected
}

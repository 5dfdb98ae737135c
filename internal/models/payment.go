package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payment-orchestrator/internal/payerr"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// PaymentRequest is the caller-supplied description of a payment attempt.
type PaymentRequest struct {
	Amount          decimal.Decimal        `json:"amount"`
	Currency        string                 `json:"currency"`
	PaymentMethodID string                 `json:"payment_method_id"`
	CustomerID      string                 `json:"customer_id"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	IdempotencyKey  string                 `json:"idempotency_key,omitempty"`
}

// Validate checks the request invariants: positive amount, 3-letter
// uppercase currency code, and required identifiers.
func (r *PaymentRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", payerr.ErrValidation)
	}
	if !currencyPattern.MatchString(r.Currency) {
		return fmt.Errorf("%w: currency must be a 3-letter uppercase code", payerr.ErrValidation)
	}
	if r.PaymentMethodID == "" {
		return fmt.Errorf("%w: payment_method_id is required", payerr.ErrValidation)
	}
	if r.CustomerID == "" {
		return fmt.Errorf("%w: customer_id is required", payerr.ErrValidation)
	}
	return nil
}

// DedupKey is the key used to serialize processing attempts: the
// idempotency key when present, otherwise the payment method id.
func (r *PaymentRequest) DedupKey() string {
	if r.IdempotencyKey != "" {
		return r.IdempotencyKey
	}
	return r.PaymentMethodID
}

// PaymentMethod is a stored instrument. GatewayToken is opaque provider
// material and never leaves the encryption boundary in clear.
type PaymentMethod struct {
	ID                string                 `json:"id" db:"id"`
	CustomerID        string                 `json:"customer_id" db:"customer_id"`
	GatewayToken      string                 `json:"-" db:"gateway_token"`
	Type              string                 `json:"type" db:"type"`
	PreferredCurrency string                 `json:"preferred_currency" db:"preferred_currency"`
	IsActive          bool                   `json:"is_active" db:"is_active"`
	Metadata          map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at" db:"updated_at"`
}

// CanProcessPayment reports whether the method is usable for settlement:
// active and all required fields populated.
func (m *PaymentMethod) CanProcessPayment() bool {
	if !m.IsActive {
		return false
	}
	required := []string{m.ID, m.CustomerID, m.GatewayToken, m.Type, m.PreferredCurrency}
	for _, field := range required {
		if field == "" {
			return false
		}
	}
	return true
}

// GatewayResponse is the immutable result of one provider call. Status is
// provider-defined and opaque to the core.
type GatewayResponse struct {
	TransactionID string                 `json:"transaction_id"`
	Status        string                 `json:"status"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      string                 `json:"currency"`
	GatewayFee    decimal.Decimal        `json:"gateway_fee"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	ErrorCode     string                 `json:"error_code,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
}

// Transaction is the durable record of a settled payment, keyed by the
// gateway-assigned transaction id.
type Transaction struct {
	ID                   string                 `json:"id" db:"id"`
	Amount               decimal.Decimal        `json:"amount" db:"amount"`
	Currency             string                 `json:"currency" db:"currency"`
	Status               string                 `json:"status" db:"status"`
	PaymentMethodID      string                 `json:"payment_method_id" db:"payment_method_id"`
	CustomerID           string                 `json:"customer_id" db:"customer_id"`
	GatewayTransactionID string                 `json:"gateway_transaction_id" db:"gateway_transaction_id"`
	FraudScore           *float64               `json:"fraud_score,omitempty" db:"fraud_score"`
	Metadata             map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt            time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at" db:"updated_at"`
}

// DefaultFraudThreshold is the score at or above which a stored
// transaction is considered fraudulent.
const DefaultFraudThreshold = 0.8

// IsPaymentSuccessful reports whether the transaction settled, matching
// provider statuses case-insensitively.
func (t *Transaction) IsPaymentSuccessful() bool {
	switch strings.ToLower(t.Status) {
	case "success", "completed", "paid":
		return true
	}
	return false
}

// IsFraudulent reports whether the recorded fraud score meets the
// threshold. An absent score is never fraudulent.
func (t *Transaction) IsFraudulent(threshold float64) bool {
	if t.FraudScore == nil {
		return false
	}
	return *t.FraudScore >= threshold
}

// UpdateStatus mutates the reconciliation status and refreshes UpdatedAt.
func (t *Transaction) UpdateStatus(status string) {
	t.Status = status
	t.UpdatedAt = time.Now()
}

// Database schema
const TransactionSchema = `
CREATE TABLE IF NOT EXISTS transactions (
    id VARCHAR(255) PRIMARY KEY,
    amount DECIMAL(19, 4) NOT NULL,
    currency VARCHAR(3) NOT NULL,
    status VARCHAR(50) NOT NULL,
    payment_method_id VARCHAR(255) NOT NULL,
    customer_id VARCHAR(255) NOT NULL,
    gateway_transaction_id VARCHAR(255) NOT NULL,
    fraud_score DOUBLE PRECISION,
    metadata JSONB,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`

const PaymentMethodSchema = `
CREATE TABLE IF NOT EXISTS payment_methods (
    id VARCHAR(255) PRIMARY KEY,
    customer_id VARCHAR(255) NOT NULL,
    gateway_token VARCHAR(255) NOT NULL,
    type VARCHAR(50) NOT NULL,
    preferred_currency VARCHAR(3) NOT NULL,
    is_active BOOLEAN DEFAULT TRUE,
    metadata JSONB,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`

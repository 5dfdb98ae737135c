package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"payment-orchestrator/internal/payerr"
)

func validRequest() *PaymentRequest {
	return &PaymentRequest{
		Amount:          decimal.NewFromFloat(100.00),
		Currency:        "USD",
		PaymentMethodID: "pm_123",
		CustomerID:      "cust_123",
	}
}

func TestPaymentRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PaymentRequest)
		wantErr bool
	}{
		{
			name:    "valid request",
			mutate:  func(r *PaymentRequest) {},
			wantErr: false,
		},
		{
			name:    "zero amount",
			mutate:  func(r *PaymentRequest) { r.Amount = decimal.Zero },
			wantErr: true,
		},
		{
			name:    "negative amount",
			mutate:  func(r *PaymentRequest) { r.Amount = decimal.NewFromFloat(-5) },
			wantErr: true,
		},
		{
			name:    "lowercase currency",
			mutate:  func(r *PaymentRequest) { r.Currency = "usd" },
			wantErr: true,
		},
		{
			name:    "currency too long",
			mutate:  func(r *PaymentRequest) { r.Currency = "USDT" },
			wantErr: true,
		},
		{
			name:    "missing payment method",
			mutate:  func(r *PaymentRequest) { r.PaymentMethodID = "" },
			wantErr: true,
		},
		{
			name:    "missing customer",
			mutate:  func(r *PaymentRequest) { r.CustomerID = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, payerr.ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation kind", err)
			}
		})
	}
}

func TestPaymentRequestDedupKey(t *testing.T) {
	req := validRequest()
	if got := req.DedupKey(); got != "pm_123" {
		t.Errorf("DedupKey() = %q, want payment method fallback", got)
	}

	req.IdempotencyKey = "idem_abc"
	if got := req.DedupKey(); got != "idem_abc" {
		t.Errorf("DedupKey() = %q, want idempotency key", got)
	}
}

func TestCanProcessPayment(t *testing.T) {
	valid := PaymentMethod{
		ID:                "pm_1",
		CustomerID:        "cust_1",
		GatewayToken:      "tok_1",
		Type:              "credit_card",
		PreferredCurrency: "EUR",
		IsActive:          true,
	}

	tests := []struct {
		name   string
		mutate func(*PaymentMethod)
		want   bool
	}{
		{"valid method", func(m *PaymentMethod) {}, true},
		{"inactive", func(m *PaymentMethod) { m.IsActive = false }, false},
		{"missing token", func(m *PaymentMethod) { m.GatewayToken = "" }, false},
		{"missing type", func(m *PaymentMethod) { m.Type = "" }, false},
		{"missing currency", func(m *PaymentMethod) { m.PreferredCurrency = "" }, false},
		{"missing customer", func(m *PaymentMethod) { m.CustomerID = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := valid
			tt.mutate(&method)
			if got := method.CanProcessPayment(); got != tt.want {
				t.Errorf("CanProcessPayment() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPaymentSuccessful(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"success", true},
		{"SUCCESS", true},
		{"Completed", true},
		{"paid", true},
		{"pending", false},
		{"failed", false},
		{"refunded", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			txn := Transaction{Status: tt.status}
			if got := txn.IsPaymentSuccessful(); got != tt.want {
				t.Errorf("IsPaymentSuccessful() with status %q = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestIsFraudulent(t *testing.T) {
	score := 0.85
	txn := Transaction{FraudScore: &score}

	if !txn.IsFraudulent(DefaultFraudThreshold) {
		t.Error("expected score 0.85 to be fraudulent at default threshold")
	}
	if txn.IsFraudulent(0.9) {
		t.Error("expected score 0.85 to pass threshold 0.9")
	}

	noScore := Transaction{}
	if noScore.IsFraudulent(DefaultFraudThreshold) {
		t.Error("absent score must never be fraudulent")
	}
}

func TestUpdateStatus(t *testing.T) {
	txn := Transaction{Status: "completed", UpdatedAt: time.Now().Add(-time.Hour)}
	before := txn.UpdatedAt

	txn.UpdateStatus("refunded")

	if txn.Status != "refunded" {
		t.Errorf("status = %q, want refunded", txn.Status)
	}
	if !txn.UpdatedAt.After(before) {
		t.Error("UpdateStatus must refresh UpdatedAt")
	}
}

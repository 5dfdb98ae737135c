// Package service orchestrates the end-to-end payment flow and owns the
// idempotency and consistency guarantees.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-orchestrator/internal/crypto"
	"payment-orchestrator/internal/gateway"
	"payment-orchestrator/internal/metrics"
	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/payerr"
	"payment-orchestrator/internal/ratelimit"
)

// Defaults for ProcessOptions.
const (
	DefaultRetryCount     = 3
	DefaultAttemptTimeout = 30 * time.Second
)

// FraudThreshold is the hard cutoff: scores above it abort processing
// without retry.
const FraudThreshold = 0.8

// MethodStore loads and administers stored payment methods.
type MethodStore interface {
	GetByID(ctx context.Context, id string) (*models.PaymentMethod, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// TransactionStore persists and reads transaction records.
type TransactionStore interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id, status string) error
	ListByCustomer(ctx context.Context, customerID string, from, to time.Time, status string) ([]*models.Transaction, error)
}

// FraudScorer computes a fraud score in [0, 1] for a request.
type FraudScorer interface {
	AnalyzeTransaction(ctx context.Context, req *models.PaymentRequest, method *models.PaymentMethod) float64
}

// AmountConverter converts amounts between currencies.
type AmountConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// PayloadEncryptor seals request payloads before they reach the gateway.
type PayloadEncryptor interface {
	EncryptPaymentData(data map[string]interface{}) (*crypto.EncryptedData, error)
}

// ProcessOptions tune one ProcessPayment call.
type ProcessOptions struct {
	RetryCount     int
	AttemptTimeout time.Duration
}

func (o *ProcessOptions) normalize() {
	if o.RetryCount <= 0 {
		o.RetryCount = DefaultRetryCount
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
}

// Processor composes the rate limiter, fraud detector, currency converter,
// encryption, and settlement gateway into the payment flow.
type Processor struct {
	methods    MethodStore
	txns       TransactionStore
	limiter    ratelimit.Limiter
	detector   FraudScorer
	converter  AmountConverter
	encryption PayloadEncryptor
	gateway    gateway.Gateway
	locks      *LockArena
	logger     *zap.Logger

	// RetryDeclines controls whether a terminal provider decline is
	// retried like any other gateway error. On by default.
	RetryDeclines bool
}

func NewProcessor(
	methods MethodStore,
	txns TransactionStore,
	limiter ratelimit.Limiter,
	detector FraudScorer,
	converter AmountConverter,
	encryption PayloadEncryptor,
	gw gateway.Gateway,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		methods:       methods,
		txns:          txns,
		limiter:       limiter,
		detector:      detector,
		converter:     converter,
		encryption:    encryption,
		gateway:       gw,
		locks:         NewLockArena(),
		logger:        logger,
		RetryDeclines: true,
	}
}

// ProcessPayment runs the end-to-end flow for one payment request.
// Attempts sharing a dedup key are strictly serialized; validation, rate
// limiting, fraud scoring, and conversion happen once per lock grant, and
// only the settlement call is retried.
func (p *Processor) ProcessPayment(ctx context.Context, req *models.PaymentRequest, opts ProcessOptions) (*models.Transaction, error) {
	opts.normalize()
	started := time.Now()
	defer func() {
		metrics.ProcessingDuration.Observe(time.Since(started).Seconds())
	}()

	if err := req.Validate(); err != nil {
		return nil, p.fail(req, metrics.OutcomeInvalid, err)
	}

	release, err := p.locks.Acquire(ctx, req.DedupKey())
	if err != nil {
		return nil, p.fail(req, metrics.OutcomeFailed, fmt.Errorf("lock acquisition: %w", err))
	}
	defer release()

	if err := p.limiter.Allow(ctx, req.CustomerID); err != nil {
		return nil, p.fail(req, metrics.OutcomeRateLimited, err)
	}

	method, err := p.validateMethod(ctx, req.PaymentMethodID)
	if err != nil {
		return nil, p.fail(req, metrics.OutcomeInvalid, err)
	}

	fraudScore := p.detector.AnalyzeTransaction(ctx, req, method)
	metrics.FraudScores.Observe(fraudScore)
	if fraudScore > FraudThreshold {
		return nil, p.fail(req, metrics.OutcomeFraud, &payerr.FraudError{Score: fraudScore})
	}

	converted, err := p.converter.Convert(ctx, req.Amount, req.Currency, method.PreferredCurrency)
	if err != nil {
		return nil, p.fail(req, metrics.OutcomeConversion, err)
	}

	txn, err := p.settle(ctx, req, method, converted, fraudScore, opts)
	if err != nil {
		outcome := metrics.OutcomeFailed
		if errors.Is(err, payerr.ErrGatewayTimeout) {
			outcome = metrics.OutcomeTimeout
		}
		return nil, p.fail(req, outcome, err)
	}

	metrics.PaymentsProcessed.WithLabelValues(metrics.OutcomeSuccess).Inc()
	p.logger.Info("payment processed",
		zap.String("transaction_id", txn.ID),
		zap.String("customer_id", req.CustomerID),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", req.Currency),
		zap.Float64("fraud_score", fraudScore))

	return txn, nil
}

// settle runs the bounded retry loop around the gateway call. Each attempt
// re-encrypts the payload and is individually bounded by the per-attempt
// timeout; an expired attempt's eventual result is abandoned.
func (p *Processor) settle(ctx context.Context, req *models.PaymentRequest, method *models.PaymentMethod, converted decimal.Decimal, fraudScore float64, opts ProcessOptions) (*models.Transaction, error) {
	var lastErr error

	for attempt := 1; attempt <= opts.RetryCount; attempt++ {
		resp, err := p.attempt(ctx, req, method, converted, opts.AttemptTimeout)
		if err == nil {
			return p.record(ctx, req, resp, fraudScore)
		}
		lastErr = err

		last := attempt == opts.RetryCount
		timedOut := errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
		declined := errors.Is(err, gateway.ErrDeclined)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", payerr.ErrProcessingFailed, ctx.Err())
		}
		if declined && !p.RetryDeclines {
			return nil, fmt.Errorf("%w: %v", payerr.ErrProcessingFailed, err)
		}
		if last {
			if timedOut {
				return nil, fmt.Errorf("%w after %d attempts", payerr.ErrGatewayTimeout, opts.RetryCount)
			}
			return nil, fmt.Errorf("%w: %v", payerr.ErrProcessingFailed, err)
		}

		metrics.GatewayRetries.Inc()
		p.logger.Warn("settlement attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.String("customer_id", req.CustomerID))
	}

	return nil, fmt.Errorf("%w: %v", payerr.ErrProcessingFailed, lastErr)
}

func (p *Processor) attempt(ctx context.Context, req *models.PaymentRequest, method *models.PaymentMethod, converted decimal.Decimal, timeout time.Duration) (*models.GatewayResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	envelope, err := p.encryption.EncryptPaymentData(requestPayload(req))
	if err != nil {
		return nil, fmt.Errorf("payload encryption: %w", err)
	}
	sealed, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("payload encoding: %w", err)
	}

	return p.gateway.Process(attemptCtx, converted, method.PreferredCurrency, method, map[string]string{
		"payload": string(sealed),
	})
}

// record persists the transaction in the original request units, keyed by
// the gateway-assigned transaction id. The sole success exit of the flow.
func (p *Processor) record(ctx context.Context, req *models.PaymentRequest, resp *models.GatewayResponse, fraudScore float64) (*models.Transaction, error) {
	now := time.Now()
	txn := &models.Transaction{
		ID:                   resp.TransactionID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		Status:               resp.Status,
		PaymentMethodID:      req.PaymentMethodID,
		CustomerID:           req.CustomerID,
		GatewayTransactionID: resp.TransactionID,
		FraudScore:           &fraudScore,
		Metadata:             req.Metadata,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := p.txns.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("%w: failed to persist transaction: %v", payerr.ErrProcessingFailed, err)
	}
	return txn, nil
}

func (p *Processor) validateMethod(ctx context.Context, id string) (*models.PaymentMethod, error) {
	method, err := p.methods.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup failed: %v", payerr.ErrInvalidPaymentMethod, err)
	}
	if method == nil {
		return nil, fmt.Errorf("%w: payment method %s not found", payerr.ErrInvalidPaymentMethod, id)
	}
	if !method.CanProcessPayment() {
		return nil, fmt.Errorf("%w: payment method %s cannot process payments", payerr.ErrInvalidPaymentMethod, id)
	}
	return method, nil
}

// RefundPayment reverses a settled transaction through the gateway and
// updates the stored record.
func (p *Processor) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal, reason string) (*models.Transaction, error) {
	txn, err := p.txns.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, fmt.Errorf("%w: transaction %s", payerr.ErrNotFound, transactionID)
	}
	if !txn.IsPaymentSuccessful() {
		return nil, fmt.Errorf("transaction %s is not refundable in status %q", transactionID, txn.Status)
	}

	resp, err := p.gateway.Refund(ctx, txn.GatewayTransactionID, amount, reason)
	if err != nil {
		p.logger.Error("refund failed",
			zap.Error(err),
			zap.String("transaction_id", transactionID))
		return nil, fmt.Errorf("%w: refund: %v", payerr.ErrProcessingFailed, err)
	}

	if err := p.txns.UpdateStatus(ctx, txn.ID, resp.Status); err != nil {
		return nil, fmt.Errorf("%w: failed to update transaction: %v", payerr.ErrProcessingFailed, err)
	}
	txn.UpdateStatus(resp.Status)

	p.logger.Info("payment refunded",
		zap.String("transaction_id", transactionID),
		zap.String("refund_id", resp.TransactionID),
		zap.String("status", resp.Status))

	return txn, nil
}

// GetTransaction returns the stored transaction, reconciling its status
// against the gateway when they diverge.
func (p *Processor) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	txn, err := p.txns.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, fmt.Errorf("%w: transaction %s", payerr.ErrNotFound, transactionID)
	}

	resp, err := p.gateway.Status(ctx, txn.GatewayTransactionID)
	if err != nil {
		p.logger.Warn("gateway status check failed, returning stored record",
			zap.Error(err),
			zap.String("transaction_id", transactionID))
		return txn, nil
	}

	if resp.Status != txn.Status {
		if err := p.txns.UpdateStatus(ctx, txn.ID, resp.Status); err != nil {
			return nil, err
		}
		txn.UpdateStatus(resp.Status)
	}

	return txn, nil
}

// GetTransactionHistory lists a customer's transactions with optional
// time-range and status filters.
func (p *Processor) GetTransactionHistory(ctx context.Context, customerID string, from, to time.Time, status string) ([]*models.Transaction, error) {
	return p.txns.ListByCustomer(ctx, customerID, from, to, status)
}

// SetPaymentMethodActive enables or disables a stored payment method.
// Disabled methods fail validation on subsequent payment attempts.
func (p *Processor) SetPaymentMethodActive(ctx context.Context, methodID string, active bool) error {
	method, err := p.methods.GetByID(ctx, methodID)
	if err != nil {
		return err
	}
	if method == nil {
		return fmt.Errorf("%w: payment method %s", payerr.ErrNotFound, methodID)
	}

	if err := p.methods.SetActive(ctx, methodID, active); err != nil {
		return fmt.Errorf("%w: failed to update payment method: %v", payerr.ErrProcessingFailed, err)
	}

	p.logger.Info("payment method updated",
		zap.String("payment_method_id", methodID),
		zap.Bool("active", active))
	return nil
}

// fail logs the failure with full request context, records the outcome,
// and passes the error through.
func (p *Processor) fail(req *models.PaymentRequest, outcome string, err error) error {
	metrics.PaymentsProcessed.WithLabelValues(outcome).Inc()
	p.logger.Error("payment processing failed",
		zap.Error(err),
		zap.String("customer_id", req.CustomerID),
		zap.String("payment_method_id", req.PaymentMethodID),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", req.Currency),
		zap.String("idempotency_key", req.IdempotencyKey))
	return err
}

// requestPayload flattens the request for encryption before it crosses the
// gateway boundary.
func requestPayload(req *models.PaymentRequest) map[string]interface{} {
	payload := map[string]interface{}{
		"amount":            req.Amount.String(),
		"currency":          req.Currency,
		"payment_method_id": req.PaymentMethodID,
		"customer_id":       req.CustomerID,
	}
	if req.IdempotencyKey != "" {
		payload["idempotency_key"] = req.IdempotencyKey
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}
	return payload
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-orchestrator/internal/crypto"
	"payment-orchestrator/internal/models"
	"payment-orchestrator/internal/payerr"
	"payment-orchestrator/internal/service"
)

// FraudScoreReader reads a customer's recorded fraud scores for review.
type FraudScoreReader interface {
	RecentScores(ctx context.Context, customerID string, since time.Time) ([]float64, error)
}

type PaymentHandler struct {
	processor   *service.Processor
	encryption  *crypto.PaymentEncryption
	converter   service.AmountConverter
	fraudScores FraudScoreReader
	logger      *zap.Logger
}

func NewPaymentHandler(processor *service.Processor, encryption *crypto.PaymentEncryption, converter service.AmountConverter, fraudScores FraudScoreReader, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		processor:   processor,
		encryption:  encryption,
		converter:   converter,
		fraudScores: fraudScores,
		logger:      logger,
	}
}

// ProcessPayment handles POST /api/v1/payments
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := h.processor.ProcessPayment(c.Request.Context(), &req, service.ProcessOptions{})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": txn})
}

// RefundPayment handles POST /api/v1/payments/:id/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req struct {
		Amount *decimal.Decimal `json:"amount,omitempty"`
		Reason string           `json:"reason,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := h.processor.RefundPayment(c.Request.Context(), c.Param("id"), req.Amount, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	txn, err := h.processor.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// ListPayments handles GET /api/v1/payments?customer_id=...
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	customerID := c.Query("customer_id")
	if customerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customer_id is required"})
		return
	}

	var from, to time.Time
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		to = parsed
	}

	txns, err := h.processor.GetTransactionHistory(c.Request.Context(), customerID, from, to, c.Query("status"))
	if err != nil {
		h.logger.Error("failed to list transactions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// CreateToken handles POST /api/v1/tokens
func (h *PaymentHandler) CreateToken(c *gin.Context) {
	var req struct {
		Data       map[string]interface{} `json:"data" binding:"required"`
		TTLSeconds int                    `json:"ttl_seconds,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.encryption.GeneratePaymentToken(req.Data, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.logger.Error("failed to issue payment token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"token": token})
}

// VerifyToken handles POST /api/v1/tokens/verify
func (h *PaymentHandler) VerifyToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := h.encryption.VerifyPaymentToken(req.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// UpdatePaymentMethod handles PATCH /api/v1/payment-methods/:id
func (h *PaymentHandler) UpdatePaymentMethod(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.processor.SetPaymentMethodActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": *req.Active})
}

// GetFraudScores handles GET /api/v1/customers/:customer_id/fraud-scores
func (h *PaymentHandler) GetFraudScores(c *gin.Context) {
	since := time.Now().Add(-30 * 24 * time.Hour)
	if v := c.Query("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		since = parsed
	}

	scores, err := h.fraudScores.RecentScores(c.Request.Context(), c.Param("customer_id"), since)
	if err != nil {
		h.logger.Error("failed to read fraud scores", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read fraud scores"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"customer_id": c.Param("customer_id"),
		"scores":      scores,
	})
}

// Convert handles POST /api/v1/convert
func (h *PaymentHandler) Convert(c *gin.Context) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		From   string          `json:"from" binding:"required,len=3"`
		To     string          `json:"to" binding:"required,len=3"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	converted, err := h.converter.Convert(c.Request.Context(), req.Amount, req.From, req.To)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"amount":    converted,
		"from":      req.From,
		"to":        req.To,
		"converted": true,
	})
}

func (h *PaymentHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, payerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, payerr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, payerr.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, payerr.ErrInvalidPaymentMethod):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, payerr.ErrFraudDetected):
		status = http.StatusForbidden
	case errors.Is(err, payerr.ErrCurrencyConversion):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, payerr.ErrGatewayTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, payerr.ErrProcessingFailed):
		status = http.StatusBadGateway
	case errors.Is(err, payerr.ErrTokenExpired), errors.Is(err, payerr.ErrTokenInvalid):
		status = http.StatusUnauthorized
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

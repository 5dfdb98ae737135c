package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payment-orchestrator/internal/models"
)

// SimulatedGateway is an in-memory provider for development and tests.
// Every settlement succeeds with status "completed".
type SimulatedGateway struct {
	mu           sync.Mutex
	transactions map[string]*models.GatewayResponse
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{
		transactions: make(map[string]*models.GatewayResponse),
	}
}

func (g *SimulatedGateway) Process(ctx context.Context, amount decimal.Decimal, currency string, method *models.PaymentMethod, metadata map[string]string) (*models.GatewayResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	resp := &models.GatewayResponse{
		TransactionID: "sim_" + uuid.New().String(),
		Status:        "completed",
		Amount:        amount,
		Currency:      currency,
		GatewayFee:    amount.Mul(decimal.NewFromFloat(0.029)).Round(2),
		Metadata:      meta,
		Timestamp:     time.Now(),
	}

	g.mu.Lock()
	g.transactions[resp.TransactionID] = resp
	g.mu.Unlock()

	return resp, nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, transactionID string, amount *decimal.Decimal, reason string) (*models.GatewayResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	original, ok := g.transactions[transactionID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", transactionID)
	}

	refunded := original.Amount
	if amount != nil {
		refunded = *amount
	}

	resp := &models.GatewayResponse{
		TransactionID: "sim_re_" + uuid.New().String(),
		Status:        "refunded",
		Amount:        refunded,
		Currency:      original.Currency,
		GatewayFee:    decimal.Zero,
		Timestamp:     time.Now(),
	}
	if reason != "" {
		resp.Metadata = map[string]interface{}{"reason": reason}
	}
	return resp, nil
}

func (g *SimulatedGateway) Status(ctx context.Context, transactionID string) (*models.GatewayResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	resp, ok := g.transactions[transactionID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", transactionID)
	}
	return resp, nil
}

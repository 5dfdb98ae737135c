// Package gateway defines the settlement provider capability. Each concrete
// provider is an adapter over a vendor SDK; the core depends only on the
// interface.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"payment-orchestrator/internal/models"
)

// ErrDeclined marks a terminal provider rejection, as opposed to a
// transient failure. Adapters wrap it where the vendor SDK distinguishes
// the two.
var ErrDeclined = errors.New("payment declined")

// Gateway is the settlement provider contract.
type Gateway interface {
	// Process settles a payment attempt and returns the provider's response.
	Process(ctx context.Context, amount decimal.Decimal, currency string, method *models.PaymentMethod, metadata map[string]string) (*models.GatewayResponse, error)

	// Refund reverses a settled transaction, fully when amount is nil.
	Refund(ctx context.Context, transactionID string, amount *decimal.Decimal, reason string) (*models.GatewayResponse, error)

	// Status queries the provider for the current state of a transaction.
	Status(ctx context.Context, transactionID string) (*models.GatewayResponse, error)
}

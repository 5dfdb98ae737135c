package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"

	"payment-orchestrator/internal/models"
)

// StripeGateway settles payments through Stripe PaymentIntents.
type StripeGateway struct{}

// NewStripeGateway configures the Stripe SDK and returns the adapter.
func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{}
}

func (g *StripeGateway) Process(ctx context.Context, amount decimal.Decimal, currency string, method *models.PaymentMethod, metadata map[string]string) (*models.GatewayResponse, error) {
	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(toCents(amount)),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(method.GatewayToken),
		Confirm:       stripe.Bool(true),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return nil, fmt.Errorf("%w: %s", ErrDeclined, stripeErr.Msg)
		}
		return nil, fmt.Errorf("stripe payment failed: %w", err)
	}

	return g.toResponse(intent, amount, currency), nil
}

func (g *StripeGateway) Refund(ctx context.Context, transactionID string, amount *decimal.Decimal, reason string) (*models.GatewayResponse, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(transactionID),
	}
	if amount != nil {
		params.Amount = stripe.Int64(toCents(*amount))
	}
	if reason != "" {
		params.Reason = stripe.String(reason)
	}

	ref, err := refund.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund failed: %w", err)
	}

	resp := &models.GatewayResponse{
		TransactionID: ref.ID,
		Status:        string(ref.Status),
		Amount:        fromCents(ref.Amount),
		Currency:      string(ref.Currency),
		GatewayFee:    decimal.Zero,
		Timestamp:     time.Unix(ref.Created, 0),
	}
	if reason != "" {
		resp.Metadata = map[string]interface{}{"reason": reason}
	}
	return resp, nil
}

func (g *StripeGateway) Status(ctx context.Context, transactionID string) (*models.GatewayResponse, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	}

	intent, err := paymentintent.Get(transactionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe status check failed: %w", err)
	}

	return g.toResponse(intent, fromCents(intent.Amount), string(intent.Currency)), nil
}

func (g *StripeGateway) toResponse(intent *stripe.PaymentIntent, amount decimal.Decimal, currency string) *models.GatewayResponse {
	metadata := make(map[string]interface{}, len(intent.Metadata))
	for k, v := range intent.Metadata {
		metadata[k] = v
	}

	return &models.GatewayResponse{
		TransactionID: intent.ID,
		Status:        string(intent.Status),
		Amount:        amount,
		Currency:      currency,
		GatewayFee:    decimal.Zero,
		Metadata:      metadata,
		Timestamp:     time.Unix(intent.Created, 0),
	}
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}

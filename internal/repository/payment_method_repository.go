package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"payment-orchestrator/internal/models"
)

type PaymentMethodRepository struct {
	db *sql.DB
}

func NewPaymentMethodRepository(db *sql.DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

func (r *PaymentMethodRepository) Create(ctx context.Context, method *models.PaymentMethod) error {
	query := `
		INSERT INTO payment_methods (
			id, customer_id, gateway_token, type, preferred_currency,
			is_active, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	metadata, err := json.Marshal(method.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		method.ID,
		method.CustomerID,
		method.GatewayToken,
		method.Type,
		method.PreferredCurrency,
		method.IsActive,
		metadata,
		method.CreatedAt,
		method.UpdatedAt,
	)

	return err
}

// GetByID returns the payment method, or (nil, nil) when absent.
func (r *PaymentMethodRepository) GetByID(ctx context.Context, id string) (*models.PaymentMethod, error) {
	query := `
		SELECT id, customer_id, gateway_token, type, preferred_currency,
			   is_active, metadata, created_at, updated_at
		FROM payment_methods WHERE id = $1
	`

	method := &models.PaymentMethod{}
	var metadata []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&method.ID,
		&method.CustomerID,
		&method.GatewayToken,
		&method.Type,
		&method.PreferredCurrency,
		&method.IsActive,
		&metadata,
		&method.CreatedAt,
		&method.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &method.Metadata); err != nil {
			return nil, err
		}
	}

	return method, nil
}

func (r *PaymentMethodRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE payment_methods
		SET is_active = $1, updated_at = $2
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, active, time.Now(), id)
	return err
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"payment-orchestrator/internal/models"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, amount, currency, status, payment_method_id, customer_id,
			gateway_transaction_id, fraud_score, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	metadata, err := json.Marshal(txn.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		txn.ID,
		txn.Amount,
		txn.Currency,
		txn.Status,
		txn.PaymentMethodID,
		txn.CustomerID,
		txn.GatewayTransactionID,
		txn.FraudScore,
		metadata,
		txn.CreatedAt,
		txn.UpdatedAt,
	)

	return err
}

// GetByID returns the transaction, or (nil, nil) when absent.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `
		SELECT id, amount, currency, status, payment_method_id, customer_id,
			   gateway_transaction_id, fraud_score, metadata, created_at, updated_at
		FROM transactions WHERE id = $1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE transactions
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	return err
}

// ListByCustomer returns a customer's transactions, optionally filtered by
// time range and status. Zero times and an empty status disable the filters.
func (r *TransactionRepository) ListByCustomer(ctx context.Context, customerID string, from, to time.Time, status string) ([]*models.Transaction, error) {
	query := `
		SELECT id, amount, currency, status, payment_method_id, customer_id,
			   gateway_transaction_id, fraud_score, metadata, created_at, updated_at
		FROM transactions
		WHERE customer_id = $1
		  AND ($2::timestamp IS NULL OR created_at >= $2)
		  AND ($3::timestamp IS NULL OR created_at <= $3)
		  AND ($4 = '' OR status = $4)
		ORDER BY created_at DESC
	`

	var fromArg, toArg interface{}
	if !from.IsZero() {
		fromArg = from
	}
	if !to.IsZero() {
		toArg = to
	}

	rows, err := r.db.QueryContext(ctx, query, customerID, fromArg, toArg, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// RecentByCustomer returns a customer's transactions created after since,
// newest first. Feeds the fraud velocity and amount checks.
func (r *TransactionRepository) RecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT id, amount, currency, status, payment_method_id, customer_id,
			   gateway_transaction_id, fraud_score, metadata, created_at, updated_at
		FROM transactions
		WHERE customer_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, customerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAll(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TransactionRepository) scanOne(row rowScanner) (*models.Transaction, error) {
	txn := &models.Transaction{}
	var metadata []byte
	err := row.Scan(
		&txn.ID,
		&txn.Amount,
		&txn.Currency,
		&txn.Status,
		&txn.PaymentMethodID,
		&txn.CustomerID,
		&txn.GatewayTransactionID,
		&txn.FraudScore,
		&metadata,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
			return nil, err
		}
	}

	return txn, nil
}

func (r *TransactionRepository) scanAll(rows *sql.Rows) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	for rows.Next() {
		txn, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

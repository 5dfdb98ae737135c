package models

import "time"

// RiskFactor describes one fraud signal and its contribution to the
// weighted score. Threshold is informational and not enforced by the
// scorer.
type RiskFactor struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Threshold   float64 `json:"threshold"`
	Description string  `json:"description"`
}

// FraudCheckResult is the audit record of one fraud analysis.
type FraudCheckResult struct {
	CustomerID     string             `json:"customer_id" bson:"customer_id"`
	IdempotencyKey string             `json:"idempotency_key,omitempty" bson:"idempotency_key,omitempty"`
	Score          float64            `json:"score" bson:"score"`
	FactorScores   map[string]float64 `json:"factor_scores" bson:"factor_scores"`
	ProcessingMS   int64              `json:"processing_ms" bson:"processing_ms"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
}

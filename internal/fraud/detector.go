// Package fraud scores payment requests from several independent risk
// signals evaluated concurrently.
package fraud

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"payment-orchestrator/internal/models"
)

// Risk factor names.
const (
	FactorVelocity = "velocity_check"
	FactorAmount   = "amount_check"
	FactorLocation = "location_check"
	FactorDevice   = "device_check"
	FactorBehavior = "behavior_check"
)

const (
	neutralScore = 0.5
	// failClosedScore is returned when the analysis itself fails: treat
	// failures as suspicious, not permissive.
	failClosedScore = 0.9

	maxTxnsPerDay   = 10
	maxAmountPerDay = 10000

	// profileRecordThreshold bounds which analyses feed the customer's
	// profiles: only observations from low-risk requests are trusted.
	profileRecordThreshold = 0.5
)

// TransactionHistory supplies a customer's recent transactions for the
// velocity and amount checks.
type TransactionHistory interface {
	RecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]*models.Transaction, error)
}

// CheckRecorder persists analysis outcomes for audit. Failures are logged,
// never surfaced.
type CheckRecorder interface {
	InsertCheck(ctx context.Context, result *models.FraudCheckResult) error
}

// Detector computes a fraud score in [0, 1] for a payment request.
type Detector struct {
	history  TransactionHistory
	profiles ProfileStore
	recorder CheckRecorder
	model    *Model
	cache    *ScoreCache
	factors  []models.RiskFactor
	logger   *zap.Logger
}

// NewDetector builds a detector. recorder and model may be nil.
func NewDetector(history TransactionHistory, profiles ProfileStore, recorder CheckRecorder, model *Model, cacheTTL time.Duration, logger *zap.Logger) *Detector {
	return &Detector{
		history:  history,
		profiles: profiles,
		recorder: recorder,
		model:    model,
		cache:    NewScoreCache(cacheTTL),
		factors:  defaultRiskFactors(),
		logger:   logger,
	}
}

// Close releases the detector's cache resources.
func (d *Detector) Close() {
	d.cache.Close()
}

func defaultRiskFactors() []models.RiskFactor {
	return []models.RiskFactor{
		{Name: FactorVelocity, Weight: 0.3, Threshold: 0.7, Description: "Transaction velocity check"},
		{Name: FactorAmount, Weight: 0.2, Threshold: 0.8, Description: "Unusual amount detection"},
		{Name: FactorLocation, Weight: 0.15, Threshold: 0.6, Description: "Geographic location anomaly"},
		{Name: FactorDevice, Weight: 0.15, Threshold: 0.7, Description: "Device fingerprint analysis"},
		{Name: FactorBehavior, Weight: 0.2, Threshold: 0.75, Description: "Customer behavior pattern analysis"},
	}
}

// AnalyzeTransaction scores the request. Results are cached per
// (customer_id, idempotency_key) so duplicate submissions observe one
// score. Any failure of the analysis itself yields the fail-closed score.
func (d *Detector) AnalyzeTransaction(ctx context.Context, req *models.PaymentRequest, method *models.PaymentMethod) (score float64) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("fraud analysis panicked", zap.Any("panic", r))
			score = failClosedScore
		}
	}()

	cacheKey := fmt.Sprintf("fraud_check:%s:%s", req.CustomerID, req.IdempotencyKey)
	if cached, ok := d.cache.Get(cacheKey); ok {
		return cached
	}

	factorScores := d.runChecks(ctx, req)

	score = d.weightedScore(factorScores)

	if d.model != nil {
		score = 0.7*score + 0.3*d.model.Predict(factorScores)
	}

	score = clamp01(score)

	d.cache.Set(cacheKey, score)
	d.recordCheck(req, factorScores, score, started)
	if score < profileRecordThreshold {
		d.recordProfiles(req)
	}

	return score
}

// runChecks fans out the risk checks and joins all results. A failing or
// panicking check degrades to the neutral score for that factor alone.
func (d *Detector) runChecks(ctx context.Context, req *models.PaymentRequest) map[string]float64 {
	type check struct {
		name string
		fn   func(context.Context, *models.PaymentRequest) (float64, error)
	}

	checks := []check{
		{FactorVelocity, d.checkVelocity},
		{FactorAmount, d.checkAmount},
		{FactorLocation, d.checkLocation},
		{FactorDevice, d.checkDevice},
		{FactorBehavior, d.checkBehavior},
	}

	var mu sync.Mutex
	scores := make(map[string]float64, len(checks))

	var wg sync.WaitGroup
	for _, c := range checks {
		wg.Add(1)
		go func(c check) {
			defer wg.Done()

			result := neutralScore
			func() {
				defer func() {
					if r := recover(); r != nil {
						d.logger.Error("risk check panicked",
							zap.Any("panic", r),
							zap.String("factor", c.name))
						result = neutralScore
					}
				}()

				s, err := c.fn(ctx, req)
				if err != nil {
					d.logger.Warn("risk check failed",
						zap.Error(err),
						zap.String("factor", c.name),
						zap.String("customer_id", req.CustomerID))
					result = neutralScore
					return
				}
				result = clamp01(s)
			}()

			mu.Lock()
			scores[c.name] = result
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	return scores
}

// checkVelocity flags unusual transaction frequency or daily volume over a
// trailing 24h window.
func (d *Detector) checkVelocity(ctx context.Context, req *models.PaymentRequest) (float64, error) {
	recent, err := d.history.RecentByCustomer(ctx, req.CustomerID, time.Now().Add(-24*time.Hour))
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, txn := range recent {
		total += txn.Amount.InexactFloat64()
	}

	txnRisk := math.Min(1.0, float64(len(recent))/maxTxnsPerDay)
	amountRisk := math.Min(1.0, total/maxAmountPerDay)

	return math.Max(txnRisk, amountRisk), nil
}

// checkAmount compares the amount against the customer's trailing 30-day
// distribution via z-score, scaled to [0, 1].
func (d *Detector) checkAmount(ctx context.Context, req *models.PaymentRequest) (float64, error) {
	historical, err := d.history.RecentByCustomer(ctx, req.CustomerID, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		return 0, err
	}
	if len(historical) == 0 {
		return neutralScore, nil
	}

	var sum float64
	for _, txn := range historical {
		sum += txn.Amount.InexactFloat64()
	}
	mean := sum / float64(len(historical))

	var variance float64
	for _, txn := range historical {
		diff := txn.Amount.InexactFloat64() - mean
		variance += diff * diff
	}
	stddev := math.Sqrt(variance / float64(len(historical)))

	if stddev == 0 {
		return 0, nil
	}

	zScore := math.Abs(req.Amount.InexactFloat64()-mean) / stddev
	return math.Min(1.0, zScore/3), nil
}

func (d *Detector) checkLocation(ctx context.Context, req *models.PaymentRequest) (float64, error) {
	current, ok := metadataSection(req.Metadata, "location")
	if !ok {
		return neutralScore, nil
	}

	known, err := d.profiles.RecentLocations(ctx, req.CustomerID)
	if err != nil {
		return 0, err
	}
	if len(known) == 0 {
		return neutralScore, nil
	}

	if matchesAny(current, known, "country") {
		return 0.1, nil
	}
	return 0.8, nil
}

func (d *Detector) checkDevice(ctx context.Context, req *models.PaymentRequest) (float64, error) {
	current, ok := metadataSection(req.Metadata, "device")
	if !ok {
		return neutralScore, nil
	}

	known, err := d.profiles.KnownDevices(ctx, req.CustomerID)
	if err != nil {
		return 0, err
	}
	if len(known) == 0 {
		return neutralScore, nil
	}

	if matchesAny(current, known, "fingerprint") {
		return 0.1, nil
	}
	return 0.8, nil
}

func (d *Detector) checkBehavior(ctx context.Context, req *models.PaymentRequest) (float64, error) {
	current, ok := metadataSection(req.Metadata, "behavior")
	if !ok {
		return neutralScore, nil
	}

	patterns, err := d.profiles.BehaviorPatterns(ctx, req.CustomerID)
	if err != nil {
		return 0, err
	}
	if len(patterns) == 0 {
		return neutralScore, nil
	}

	// Risk is the share of observed behavior attributes that match no
	// historical pattern.
	matched, total := 0, 0
	for key, value := range current {
		total++
		for _, pattern := range patterns {
			if pattern[key] == value {
				matched++
				break
			}
		}
	}
	if total == 0 {
		return neutralScore, nil
	}
	return 1 - float64(matched)/float64(total), nil
}

// weightedScore combines factor scores by configured weight, renormalizing
// over the factors actually evaluated.
func (d *Detector) weightedScore(scores map[string]float64) float64 {
	totalScore, totalWeight := 0.0, 0.0
	for _, factor := range d.factors {
		score, ok := scores[factor.Name]
		if !ok {
			continue
		}
		totalScore += score * factor.Weight
		totalWeight += factor.Weight
	}

	if totalWeight == 0 {
		return neutralScore
	}
	return totalScore / totalWeight
}

func (d *Detector) recordCheck(req *models.PaymentRequest, scores map[string]float64, final float64, started time.Time) {
	if d.recorder == nil {
		return
	}

	result := &models.FraudCheckResult{
		CustomerID:     req.CustomerID,
		IdempotencyKey: req.IdempotencyKey,
		Score:          final,
		FactorScores:   scores,
		ProcessingMS:   time.Since(started).Milliseconds(),
		CreatedAt:      time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.recorder.InsertCheck(ctx, result); err != nil {
		d.logger.Error("failed to record fraud check",
			zap.Error(err),
			zap.String("customer_id", req.CustomerID))
	}
}

// recordProfiles appends the request's observed location and device to the
// customer's profiles so future checks recognize them. Best-effort.
func (d *Detector) recordProfiles(req *models.PaymentRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if location, ok := metadataSection(req.Metadata, "location"); ok {
		if err := d.profiles.RecordLocation(ctx, req.CustomerID, location); err != nil {
			d.logger.Warn("failed to record location profile",
				zap.Error(err),
				zap.String("customer_id", req.CustomerID))
		}
	}
	if device, ok := metadataSection(req.Metadata, "device"); ok {
		if err := d.profiles.RecordDevice(ctx, req.CustomerID, device); err != nil {
			d.logger.Warn("failed to record device profile",
				zap.Error(err),
				zap.String("customer_id", req.CustomerID))
		}
	}
}

func metadataSection(metadata map[string]interface{}, key string) (map[string]interface{}, bool) {
	raw, ok := metadata[key]
	if !ok {
		return nil, false
	}
	section, ok := raw.(map[string]interface{})
	if !ok || len(section) == 0 {
		return nil, false
	}
	return section, true
}

func matchesAny(current map[string]interface{}, known []map[string]interface{}, field string) bool {
	value, ok := current[field]
	if !ok {
		return false
	}
	for _, entry := range known {
		if entry[field] == value {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

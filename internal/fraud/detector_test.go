package fraud

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-orchestrator/internal/models"
)

type fakeHistory struct {
	txns  []*models.Transaction
	err   error
	calls int32
}

func (h *fakeHistory) RecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]*models.Transaction, error) {
	atomic.AddInt32(&h.calls, 1)
	return h.txns, h.err
}

type fakeProfiles struct {
	locations []map[string]interface{}
	devices   []map[string]interface{}
	patterns  []map[string]interface{}
	err       error

	recordedLocations []map[string]interface{}
	recordedDevices   []map[string]interface{}
}

func (p *fakeProfiles) RecentLocations(ctx context.Context, customerID string) ([]map[string]interface{}, error) {
	return p.locations, p.err
}

func (p *fakeProfiles) KnownDevices(ctx context.Context, customerID string) ([]map[string]interface{}, error) {
	return p.devices, p.err
}

func (p *fakeProfiles) BehaviorPatterns(ctx context.Context, customerID string) ([]map[string]interface{}, error) {
	return p.patterns, p.err
}

func (p *fakeProfiles) RecordLocation(ctx context.Context, customerID string, location map[string]interface{}) error {
	p.recordedLocations = append(p.recordedLocations, location)
	return nil
}

func (p *fakeProfiles) RecordDevice(ctx context.Context, customerID string, device map[string]interface{}) error {
	p.recordedDevices = append(p.recordedDevices, device)
	return nil
}

func txnOf(amount float64) *models.Transaction {
	return &models.Transaction{Amount: decimal.NewFromFloat(amount)}
}

func detectorWith(history TransactionHistory, profiles ProfileStore, model *Model) *Detector {
	return NewDetector(history, profiles, nil, model, time.Minute, zap.NewNop())
}

func request() *models.PaymentRequest {
	return &models.PaymentRequest{
		Amount:          decimal.NewFromFloat(100),
		Currency:        "USD",
		PaymentMethodID: "pm_1",
		CustomerID:      "cust_1",
		IdempotencyKey:  "idem_1",
	}
}

func TestAnalyzeTransactionNeutralOnErrors(t *testing.T) {
	// Every sub-check degrades to its neutral default, so the combined
	// score is exactly neutral.
	d := detectorWith(
		&fakeHistory{err: errors.New("db down")},
		&fakeProfiles{err: errors.New("redis down")},
		nil,
	)
	defer d.Close()

	req := request()
	req.Metadata = map[string]interface{}{
		"location": map[string]interface{}{"country": "US"},
		"device":   map[string]interface{}{"fingerprint": "abc"},
		"behavior": map[string]interface{}{"hour": 14.0},
	}

	score := d.AnalyzeTransaction(context.Background(), req, nil)
	if math.Abs(score-0.5) > 1e-9 {
		t.Errorf("score = %v, want neutral 0.5", score)
	}
}

func TestAnalyzeTransactionScoreRange(t *testing.T) {
	tests := []struct {
		name     string
		history  *fakeHistory
		profiles *fakeProfiles
		metadata map[string]interface{}
		model    *Model
	}{
		{"no history no metadata", &fakeHistory{}, &fakeProfiles{}, nil, nil},
		{"with model", &fakeHistory{}, &fakeProfiles{}, nil, NewModel()},
		{
			name:    "heavy velocity",
			history: &fakeHistory{txns: manyTxns(50, 500)},
			profiles: &fakeProfiles{
				locations: []map[string]interface{}{{"country": "US"}},
			},
			metadata: map[string]interface{}{
				"location": map[string]interface{}{"country": "BR"},
			},
			model: NewModel(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := detectorWith(tt.history, tt.profiles, tt.model)
			defer d.Close()

			req := request()
			req.Metadata = tt.metadata

			score := d.AnalyzeTransaction(context.Background(), req, nil)
			if score < 0 || score > 1 {
				t.Errorf("score = %v, want within [0, 1]", score)
			}
		})
	}
}

func manyTxns(n int, amount float64) []*models.Transaction {
	txns := make([]*models.Transaction, n)
	for i := range txns {
		txns[i] = txnOf(amount)
	}
	return txns
}

func TestAnalyzeTransactionRecordsProfilesWhenLowRisk(t *testing.T) {
	profiles := &fakeProfiles{
		locations: []map[string]interface{}{{"country": "US"}},
		devices:   []map[string]interface{}{{"fingerprint": "abc"}},
	}
	d := detectorWith(&fakeHistory{}, profiles, nil)
	defer d.Close()

	req := request()
	req.Metadata = map[string]interface{}{
		"location": map[string]interface{}{"country": "US"},
		"device":   map[string]interface{}{"fingerprint": "abc"},
	}

	score := d.AnalyzeTransaction(context.Background(), req, nil)
	if score >= 0.5 {
		t.Fatalf("score = %v, want low risk for recognized location and device", score)
	}
	if len(profiles.recordedLocations) != 1 {
		t.Errorf("recorded %d locations, want 1", len(profiles.recordedLocations))
	}
	if len(profiles.recordedDevices) != 1 {
		t.Errorf("recorded %d devices, want 1", len(profiles.recordedDevices))
	}
}

func TestAnalyzeTransactionSkipsProfilesWhenHighRisk(t *testing.T) {
	profiles := &fakeProfiles{
		locations: []map[string]interface{}{{"country": "US"}},
		devices:   []map[string]interface{}{{"fingerprint": "abc"}},
	}
	d := detectorWith(&fakeHistory{txns: manyTxns(50, 500)}, profiles, nil)
	defer d.Close()

	req := request()
	req.Metadata = map[string]interface{}{
		"location": map[string]interface{}{"country": "BR"},
		"device":   map[string]interface{}{"fingerprint": "zzz"},
	}

	score := d.AnalyzeTransaction(context.Background(), req, nil)
	if score < 0.5 {
		t.Fatalf("score = %v, want elevated risk for unrecognized observations", score)
	}
	if len(profiles.recordedLocations) != 0 || len(profiles.recordedDevices) != 0 {
		t.Error("high-risk observations must not feed the customer profiles")
	}
}

func TestAnalyzeTransactionCachesScore(t *testing.T) {
	history := &fakeHistory{}
	d := detectorWith(history, &fakeProfiles{}, nil)
	defer d.Close()

	req := request()
	first := d.AnalyzeTransaction(context.Background(), req, nil)
	callsAfterFirst := atomic.LoadInt32(&history.calls)

	second := d.AnalyzeTransaction(context.Background(), req, nil)
	if first != second {
		t.Errorf("cached score = %v, want %v", second, first)
	}
	if got := atomic.LoadInt32(&history.calls); got != callsAfterFirst {
		t.Errorf("history queried %d times after cache hit, want %d", got, callsAfterFirst)
	}
}

func TestAnalyzeTransactionFailClosed(t *testing.T) {
	d := detectorWith(&fakeHistory{}, &fakeProfiles{}, nil)
	defer d.Close()

	// A nil request makes the analysis itself blow up; the detector must
	// report high risk rather than letting the payment through.
	score := d.AnalyzeTransaction(context.Background(), nil, nil)
	if score != 0.9 {
		t.Errorf("score = %v, want fail-closed 0.9", score)
	}
}

func TestCheckVelocity(t *testing.T) {
	tests := []struct {
		name string
		txns []*models.Transaction
		want float64
	}{
		{"no history", nil, 0},
		{"half the txn cap", manyTxns(5, 10), 0.5},
		{"amount cap dominates", manyTxns(2, 5000), 1.0},
		{"txn cap exceeded", manyTxns(30, 1), 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := detectorWith(&fakeHistory{txns: tt.txns}, &fakeProfiles{}, nil)
			defer d.Close()

			got, err := d.checkVelocity(context.Background(), request())
			if err != nil {
				t.Fatalf("checkVelocity() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("checkVelocity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckAmountNoHistoryIsNeutral(t *testing.T) {
	d := detectorWith(&fakeHistory{}, &fakeProfiles{}, nil)
	defer d.Close()

	got, err := d.checkAmount(context.Background(), request())
	if err != nil {
		t.Fatalf("checkAmount() error = %v", err)
	}
	if got != 0.5 {
		t.Errorf("checkAmount() = %v, want neutral 0.5", got)
	}
}

func TestCheckAmountOutlier(t *testing.T) {
	// Stable history around 10, then a 100 request: large z-score clamps
	// toward 1.
	history := &fakeHistory{txns: []*models.Transaction{
		txnOf(10), txnOf(11), txnOf(9), txnOf(10), txnOf(10.5),
	}}
	d := detectorWith(history, &fakeProfiles{}, nil)
	defer d.Close()

	got, err := d.checkAmount(context.Background(), request())
	if err != nil {
		t.Fatalf("checkAmount() error = %v", err)
	}
	if got != 1.0 {
		t.Errorf("checkAmount() = %v, want clamped 1.0 for an outlier", got)
	}
}

func TestCheckLocation(t *testing.T) {
	profiles := &fakeProfiles{
		locations: []map[string]interface{}{{"country": "US"}, {"country": "CA"}},
	}
	d := detectorWith(&fakeHistory{}, profiles, nil)
	defer d.Close()

	tests := []struct {
		name     string
		metadata map[string]interface{}
		want     float64
	}{
		{"no location metadata", nil, 0.5},
		{
			"known country",
			map[string]interface{}{"location": map[string]interface{}{"country": "US"}},
			0.1,
		},
		{
			"new country",
			map[string]interface{}{"location": map[string]interface{}{"country": "BR"}},
			0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request()
			req.Metadata = tt.metadata

			got, err := d.checkLocation(context.Background(), req)
			if err != nil {
				t.Fatalf("checkLocation() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("checkLocation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeightedScoreRenormalizes(t *testing.T) {
	d := detectorWith(&fakeHistory{}, &fakeProfiles{}, nil)
	defer d.Close()

	// Only two factors evaluated: the average must renormalize over their
	// weights, not the full configured set.
	scores := map[string]float64{
		FactorVelocity: 1.0, // weight 0.3
		FactorAmount:   0.0, // weight 0.2
	}

	got := d.weightedScore(scores)
	want := 0.3 / 0.5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("weightedScore() = %v, want %v", got, want)
	}

	if got := d.weightedScore(map[string]float64{}); got != 0.5 {
		t.Errorf("weightedScore(empty) = %v, want 0.5", got)
	}
}

func TestModelPredictRange(t *testing.T) {
	m := NewModel()

	inputs := []map[string]float64{
		{},
		{FactorVelocity: 1, FactorAmount: 1, FactorLocation: 1, FactorDevice: 1, FactorBehavior: 1},
		{FactorVelocity: 0.5},
	}

	for _, features := range inputs {
		p := m.Predict(features)
		if p < 0 || p > 1 {
			t.Errorf("Predict(%v) = %v, want within [0, 1]", features, p)
		}
	}
}

func TestScoreCacheExpiry(t *testing.T) {
	cache := NewScoreCache(20 * time.Millisecond)
	defer cache.Close()

	cache.Set("k", 0.7)
	if got, ok := cache.Get("k"); !ok || got != 0.7 {
		t.Fatalf("Get() = %v, %v; want 0.7, true", got, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := cache.Get("k"); ok {
		t.Error("expected entry to expire")
	}
}

// Package currency converts amounts between ISO currency codes using a
// time-bounded cache of base-relative exchange rates.
package currency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-orchestrator/internal/payerr"
)

// DefaultCacheTTL is how long fetched rates stay fresh.
const DefaultCacheTTL = time.Hour

// RateSource returns rates relative to a fixed base currency, as of now.
type RateSource interface {
	FetchRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Converter caches base-relative rates and converts between currency pairs.
// Refresh is synchronous: a conversion hitting a stale cache blocks on the
// rate source before converting.
type Converter struct {
	source RateSource
	ttl    time.Duration
	logger *zap.Logger

	mu         sync.Mutex
	rates      map[string]decimal.Decimal
	lastUpdate time.Time
}

func NewConverter(source RateSource, ttl time.Duration, logger *zap.Logger) *Converter {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Converter{
		source: source,
		ttl:    ttl,
		logger: logger,
	}
}

// Convert converts amount from one currency to another, rounded to two
// decimal places (half-up). Same-currency conversions return the amount
// unchanged without touching the rate source.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	rate, err := c.rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	return amount.Mul(rate).Round(2), nil
}

func (c *Converter) rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stale() {
		rates, err := c.source.FetchRates(ctx)
		if err != nil {
			c.logger.Error("exchange rate refresh failed", zap.Error(err))
			return decimal.Zero, fmt.Errorf("%w: failed to refresh rates: %v", payerr.ErrCurrencyConversion, err)
		}
		c.rates = rates
		c.lastUpdate = time.Now()
	}

	fromRate, okFrom := c.rates[from]
	toRate, okTo := c.rates[to]
	if !okFrom || !okTo || fromRate.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: unsupported currency pair %s/%s", payerr.ErrCurrencyConversion, from, to)
	}

	// Rates are base-relative, so the pairwise rate is to/from.
	return toRate.Div(fromRate), nil
}

func (c *Converter) stale() bool {
	if c.lastUpdate.IsZero() || len(c.rates) == 0 {
		return true
	}
	return time.Since(c.lastUpdate) > c.ttl
}

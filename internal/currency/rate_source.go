package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPRateSource fetches USD-relative exchange rates from an
// exchangerate-api style endpoint.
type HTTPRateSource struct {
	apiURL string
	apiKey string
	client *http.Client
}

func NewHTTPRateSource(apiURL, apiKey string) *HTTPRateSource {
	return &HTTPRateSource{
		apiURL: apiURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPRateSource) FetchRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL, nil)
	if err != nil {
		return nil, err
	}
	if s.apiKey != "" {
		q := req.URL.Query()
		q.Set("api_key", s.apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate response: %w", err)
	}

	var apiResp struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse rate response: %w", err)
	}
	if len(apiResp.Rates) == 0 {
		return nil, fmt.Errorf("rate API returned no rates")
	}

	rates := make(map[string]decimal.Decimal, len(apiResp.Rates))
	for code, rate := range apiResp.Rates {
		rates[code] = decimal.NewFromFloat(rate)
	}
	return rates, nil
}

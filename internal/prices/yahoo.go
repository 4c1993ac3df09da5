package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// YahooProvider fetches the latest quote from the Yahoo Finance v8 chart
// endpoint.
type YahooProvider struct {
	client  *http.Client
	baseURL string
}

// NewYahooProvider creates a provider against the public Yahoo endpoint.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{
		client:  &http.Client{Timeout: 8 * time.Second},
		baseURL: "https://query2.finance.yahoo.com",
	}
}

// NewYahooProviderWithBaseURL is used by tests to point at a stub server.
func NewYahooProviderWithBaseURL(baseURL string) *YahooProvider {
	return &YahooProvider{
		client:  &http.Client{Timeout: 8 * time.Second},
		baseURL: baseURL,
	}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
	} `json:"chart"`
}

// LatestPrice fetches the regular market price of a symbol. A symbol Yahoo
// does not know comes back as absent, not as an error.
func (p *YahooProvider) LatestPrice(ctx context.Context, symbol models.Symbol) (models.Money, bool, error) {
	ticker := strings.ToUpper(strings.TrimSpace(symbol.Ticker))
	if ticker == "" {
		return models.Money{}, false, nil
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", p.baseURL, ticker)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Money{}, false, fmt.Errorf("failed to build quote request: %w", err)
	}
	req.Header.Set("User-Agent", "portfolio-ledger/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return models.Money{}, false, fmt.Errorf("failed to fetch quote for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.Money{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return models.Money{}, false, fmt.Errorf("quote request for %s returned %d", ticker, resp.StatusCode)
	}

	var raw yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.Money{}, false, fmt.Errorf("failed to decode quote for %s: %w", ticker, err)
	}
	if len(raw.Chart.Result) == 0 {
		return models.Money{}, false, nil
	}

	meta := raw.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 || meta.Currency == "" {
		return models.Money{}, false, nil
	}
	return models.NewMoney(decimal.NewFromFloat(meta.RegularMarketPrice), meta.Currency), true, nil
}

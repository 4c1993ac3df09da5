package prices

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

func chartBody(price float64, currency string) string {
	return fmt.Sprintf(`{
		"chart": {
			"result": [
				{"meta": {"currency": %q, "regularMarketPrice": %g}}
			]
		}
	}`, currency, price)
}

func TestYahooLatestPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		fmt.Fprint(w, chartBody(187.35, "USD"))
	}))
	defer server.Close()

	provider := NewYahooProviderWithBaseURL(server.URL)
	price, ok, err := provider.LatestPrice(context.Background(), models.Symbol{Ticker: "aapl", Exchange: "NASDAQ", AssetType: models.AssetTypeStock})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "USD", price.Currency)
	assert.True(t, decimal.NewFromFloat(187.35).Equal(price.Amount))
}

func TestYahooUnknownSymbolIsAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider := NewYahooProviderWithBaseURL(server.URL)
	_, ok, err := provider.LatestPrice(context.Background(), models.Symbol{Ticker: "NOPE", Exchange: "NASDAQ", AssetType: models.AssetTypeStock})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestYahooEmptyResultIsAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart": {"result": []}}`)
	}))
	defer server.Close()

	provider := NewYahooProviderWithBaseURL(server.URL)
	_, ok, err := provider.LatestPrice(context.Background(), models.Symbol{Ticker: "AAPL", Exchange: "NASDAQ", AssetType: models.AssetTypeStock})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestYahooZeroPriceIsAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody(0, "USD"))
	}))
	defer server.Close()

	provider := NewYahooProviderWithBaseURL(server.URL)
	_, ok, err := provider.LatestPrice(context.Background(), models.Symbol{Ticker: "AAPL", Exchange: "NASDAQ", AssetType: models.AssetTypeStock})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestYahooServerErrorIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewYahooProviderWithBaseURL(server.URL)
	_, _, err := provider.LatestPrice(context.Background(), models.Symbol{Ticker: "AAPL", Exchange: "NASDAQ", AssetType: models.AssetTypeStock})
	require.Error(t, err)
}

func TestYahooEmptyTickerIsAbsent(t *testing.T) {
	provider := NewYahooProviderWithBaseURL("http://unreachable.invalid")
	_, ok, err := provider.LatestPrice(context.Background(), models.Symbol{})
	require.NoError(t, err)
	assert.False(t, ok)
}

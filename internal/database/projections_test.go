package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

func TestProjections(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	ctx := context.Background()

	t.Run("appends keep both read models current", func(t *testing.T) {
		testDB.TruncateAll(t)
		portfolioID := uuid.New()

		recordBuy(t, testDB, portfolioID, 10, 150, tradeDay(1))
		recordBuy(t, testDB, portfolioID, 5, 160, tradeDay(2))
		recordSell(t, testDB, portfolioID, 12, 180, tradeDay(3))
		recordDividend(t, testDB, portfolioID, 100, 19, tradeDay(4))

		portfolio, err := testDB.GetPortfolioReadModel(ctx, portfolioID)
		require.NoError(t, err)
		assert.Equal(t, "USD", portfolio.Currency)
		assert.Equal(t, int64(4), portfolio.Version)
		assert.Equal(t, int64(4), portfolio.TransactionCount)
		assert.Equal(t, int64(4), portfolio.ActiveCount)
		assert.True(t, decimal.NewFromInt(2300).Equal(portfolio.BuyCost))
		assert.True(t, decimal.NewFromInt(2160).Equal(portfolio.SellProceeds))
		// 10@150 then 2@160 sold at 180: 300 + 40
		assert.True(t, decimal.NewFromInt(340).Equal(portfolio.RealizedGainLoss))
		assert.True(t, decimal.NewFromInt(81).Equal(portfolio.DividendIncome))
		assert.True(t, portfolio.InterestIncome.IsZero())

		investments, err := testDB.GetInvestmentReadModels(ctx, portfolioID)
		require.NoError(t, err)
		require.Len(t, investments, 1)
		inv := investments[0]
		assert.Equal(t, testSymbol, inv.Symbol)
		assert.True(t, decimal.NewFromInt(3).Equal(inv.Quantity))
		assert.True(t, decimal.NewFromInt(480).Equal(inv.CostBasis))
		assert.True(t, decimal.NewFromInt(340).Equal(inv.RealizedGainLoss))
		assert.True(t, decimal.NewFromInt(81).Equal(inv.IncomeReceived))
	})

	t.Run("cancel reverses the projected totals", func(t *testing.T) {
		testDB.TruncateAll(t)
		portfolioID := uuid.New()

		recordBuy(t, testDB, portfolioID, 10, 150, tradeDay(1))
		txID := recordBuy(t, testDB, portfolioID, 5, 160, tradeDay(2))

		a := loadAggregate(t, testDB, portfolioID)
		event, err := a.CancelTransaction(txID, time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, testDB.AppendEvent(ctx, a.Version(), event))

		portfolio, err := testDB.GetPortfolioReadModel(ctx, portfolioID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), portfolio.Version)
		assert.Equal(t, int64(2), portfolio.TransactionCount)
		assert.Equal(t, int64(1), portfolio.ActiveCount)
		assert.True(t, decimal.NewFromInt(1500).Equal(portfolio.BuyCost))

		investments, err := testDB.GetInvestmentReadModels(ctx, portfolioID)
		require.NoError(t, err)
		require.Len(t, investments, 1)
		assert.True(t, decimal.NewFromInt(10).Equal(investments[0].Quantity))
		assert.True(t, decimal.NewFromInt(1500).Equal(investments[0].CostBasis))
	})

	t.Run("unknown portfolio read model is not found", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.GetPortfolioReadModel(ctx, uuid.New())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ledger.ErrNotFound))
	})

	t.Run("rebuild restores a corrupted read model from the stream", func(t *testing.T) {
		testDB.TruncateAll(t)
		portfolioID := uuid.New()

		recordBuy(t, testDB, portfolioID, 10, 150, tradeDay(1))
		recordSell(t, testDB, portfolioID, 4, 180, tradeDay(2))

		before, err := testDB.GetPortfolioReadModel(ctx, portfolioID)
		require.NoError(t, err)

		_, err = testDB.GetRawConn().Exec(
			`UPDATE portfolio_read_models SET buy_cost = 0, realized_gain_loss = 999 WHERE portfolio_id = $1`,
			portfolioID,
		)
		require.NoError(t, err)
		_, err = testDB.GetRawConn().Exec(
			`DELETE FROM investment_read_models WHERE portfolio_id = $1`, portfolioID,
		)
		require.NoError(t, err)

		require.NoError(t, testDB.RebuildProjections(ctx, portfolioID))

		after, err := testDB.GetPortfolioReadModel(ctx, portfolioID)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
		assert.True(t, before.BuyCost.Equal(after.BuyCost))
		assert.True(t, before.RealizedGainLoss.Equal(after.RealizedGainLoss))

		investments, err := testDB.GetInvestmentReadModels(ctx, portfolioID)
		require.NoError(t, err)
		require.Len(t, investments, 1)
		assert.True(t, decimal.NewFromInt(6).Equal(investments[0].Quantity))
	})

	t.Run("rebuild of an unknown portfolio is not found", func(t *testing.T) {
		testDB.TruncateAll(t)

		err := testDB.RebuildProjections(ctx, uuid.New())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ledger.ErrNotFound))
	})

	t.Run("rebuild matches the incrementally maintained state", func(t *testing.T) {
		testDB.TruncateAll(t)
		portfolioID := uuid.New()

		recordBuy(t, testDB, portfolioID, 10, 150, tradeDay(1))
		recordBuy(t, testDB, portfolioID, 12, 160, tradeDay(2))
		recordSell(t, testDB, portfolioID, 15, 170, tradeDay(3))
		recordDividend(t, testDB, portfolioID, 200, 25, tradeDay(4))

		incremental, err := testDB.GetPortfolioReadModel(ctx, portfolioID)
		require.NoError(t, err)

		require.NoError(t, testDB.RebuildProjections(ctx, portfolioID))

		rebuilt, err := testDB.GetPortfolioReadModel(ctx, portfolioID)
		require.NoError(t, err)
		assert.Equal(t, incremental.Version, rebuilt.Version)
		assert.Equal(t, incremental.TransactionCount, rebuilt.TransactionCount)
		assert.True(t, incremental.BuyCost.Equal(rebuilt.BuyCost))
		assert.True(t, incremental.SellProceeds.Equal(rebuilt.SellProceeds))
		assert.True(t, incremental.RealizedGainLoss.Equal(rebuilt.RealizedGainLoss))
		assert.True(t, incremental.DividendIncome.Equal(rebuilt.DividendIncome))
	})

	t.Run("distinct symbols project into separate rows", func(t *testing.T) {
		testDB.TruncateAll(t)
		portfolioID := uuid.New()

		recordBuy(t, testDB, portfolioID, 10, 150, tradeDay(1))

		a := loadAggregate(t, testDB, portfolioID)
		event, _, err := a.RecordBuy(ledger.BuyCommand{
			Symbol:       models.Symbol{Ticker: "MSFT", Exchange: "NASDAQ", AssetType: models.AssetTypeStock},
			Quantity:     decimal.NewFromInt(4),
			PricePerUnit: decimal.NewFromInt(300),
			Currency:     "USD",
			Date:         tradeDay(2),
		}, time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, testDB.AppendEvent(ctx, a.Version(), event))

		investments, err := testDB.GetInvestmentReadModels(ctx, portfolioID)
		require.NoError(t, err)
		require.Len(t, investments, 2)
		assert.Equal(t, "AAPL", investments[0].Symbol.Ticker)
		assert.Equal(t, "MSFT", investments[1].Symbol.Ticker)
	})
}

package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// conflictingStore fails the first N appends with a version conflict, then
// delegates. It simulates a racing writer losing the optimistic check.
type conflictingStore struct {
	*MemoryStore
	conflicts int
}

func (s *conflictingStore) AppendEvent(ctx context.Context, expectedVersion int64, event *models.Event) error {
	if s.conflicts > 0 {
		s.conflicts--
		return ErrVersionConflict
	}
	return s.MemoryStore.AppendEvent(ctx, expectedVersion, event)
}

// staticPriceProvider returns one fixed quote for every symbol.
type staticPriceProvider struct {
	price models.Money
}

func (p *staticPriceProvider) LatestPrice(context.Context, models.Symbol) (models.Money, bool, error) {
	return p.price, true, nil
}

// failingPriceProvider always errors.
type failingPriceProvider struct{}

func (failingPriceProvider) LatestPrice(context.Context, models.Symbol) (models.Money, bool, error) {
	return models.Money{}, false, errors.New("quote backend down")
}

func seedScenario(t *testing.T, svc *Service, portfolioID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	_, err := svc.RecordBuy(ctx, portfolioID, buyCmd(10, 150, day(1)))
	require.NoError(t, err)
	_, err = svc.RecordBuy(ctx, portfolioID, buyCmd(5, 160, day(2)))
	require.NoError(t, err)
	outcome, err := svc.RecordSell(ctx, portfolioID, sellCmd(12, 180, day(3)))
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(340).Equal(outcome.RealizedProfitLoss.Amount))
}

func TestServiceEndToEnd(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, nil)
	portfolioID := uuid.New()
	ctx := context.Background()

	seedScenario(t, svc, portfolioID)

	positions, err := svc.GetPositions(ctx, portfolioID, PositionFilter{})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	p := positions[0]
	assert.True(t, decimal.NewFromInt(3).Equal(p.TotalQuantity))
	assert.True(t, decimal.NewFromInt(480).Equal(p.TotalCost.Amount))
	assert.True(t, decimal.NewFromInt(340).Equal(p.RealizedGainLoss.Amount))
	assert.Nil(t, p.CurrentValue)

	summary, err := svc.GetPortfolioSummary(ctx, portfolioID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Version)
	assert.True(t, decimal.NewFromInt(340).Equal(summary.RealizedGainLoss))
}

func TestServiceRetriesVersionConflict(t *testing.T) {
	store := &conflictingStore{MemoryStore: NewMemoryStore(), conflicts: 2}
	svc := NewService(store, nil, nil)
	portfolioID := uuid.New()

	_, err := svc.RecordBuy(context.Background(), portfolioID, buyCmd(10, 100, day(1)))
	require.NoError(t, err)

	events, err := store.LoadStream(context.Background(), portfolioID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestServiceSurfacesExhaustedRetries(t *testing.T) {
	store := &conflictingStore{MemoryStore: NewMemoryStore(), conflicts: maxAppendRetries}
	svc := NewService(store, nil, nil)

	_, err := svc.RecordBuy(context.Background(), uuid.New(), buyCmd(10, 100, day(1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestServiceOverSellLeavesStateUntouched(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, nil)
	portfolioID := uuid.New()
	ctx := context.Background()

	_, err := svc.RecordBuy(ctx, portfolioID, buyCmd(10, 100, day(1)))
	require.NoError(t, err)
	before, err := store.GetPortfolioReadModel(ctx, portfolioID)
	require.NoError(t, err)

	_, err = svc.RecordSell(ctx, portfolioID, sellCmd(11, 120, day(2)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientPosition)

	events, err := store.LoadStream(ctx, portfolioID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "no event appended for a failed sell")

	after, err := store.GetPortfolioReadModel(ctx, portfolioID)
	require.NoError(t, err)
	assert.Equal(t, *before, *after, "projections unchanged after failed sell")
}

func TestServicePositionsWithPrices(t *testing.T) {
	store := NewMemoryStore()
	provider := &staticPriceProvider{price: models.NewMoney(decimal.NewFromInt(200), "USD")}
	svc := NewService(store, provider, nil)
	portfolioID := uuid.New()

	seedScenario(t, svc, portfolioID)

	positions, err := svc.GetPositions(context.Background(), portfolioID, PositionFilter{})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	p := positions[0]
	require.NotNil(t, p.CurrentValue)
	assert.True(t, decimal.NewFromInt(600).Equal(p.CurrentValue.Amount)) // 3 * 200
	require.NotNil(t, p.UnrealizedGainLoss)
	assert.True(t, decimal.NewFromInt(120).Equal(p.UnrealizedGainLoss.Amount)) // 600 - 480
}

func TestServicePriceFailureDegradesOnlyValuation(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, failingPriceProvider{}, nil)
	portfolioID := uuid.New()

	seedScenario(t, svc, portfolioID)

	positions, err := svc.GetPositions(context.Background(), portfolioID, PositionFilter{})
	require.NoError(t, err, "price failure must not fail the query")
	require.Len(t, positions, 1)
	assert.Nil(t, positions[0].CurrentValue)
	assert.Nil(t, positions[0].UnrealizedGainLoss)
	assert.True(t, decimal.NewFromInt(340).Equal(positions[0].RealizedGainLoss.Amount))
}

func TestServicePriceCurrencyMismatchSkipsValuation(t *testing.T) {
	store := NewMemoryStore()
	provider := &staticPriceProvider{price: models.NewMoney(decimal.NewFromInt(200), "EUR")}
	svc := NewService(store, provider, nil)
	portfolioID := uuid.New()

	seedScenario(t, svc, portfolioID)

	positions, err := svc.GetPositions(context.Background(), portfolioID, PositionFilter{})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Nil(t, positions[0].CurrentValue)
}

func TestServicePositionsUnknownPortfolio(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, nil)
	_, err := svc.GetPositions(context.Background(), uuid.New(), PositionFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceCancelKeepsHistoryVisible(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, nil)
	portfolioID := uuid.New()
	ctx := context.Background()

	txID, err := svc.RecordBuy(ctx, portfolioID, buyCmd(10, 100, day(1)))
	require.NoError(t, err)
	require.NoError(t, svc.CancelTransaction(ctx, txID))

	page, err := svc.GetTransactions(ctx, portfolioID, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, models.StatusCancelled, page.Transactions[0].Status)

	// cancelled buy no longer produces a position
	_, err = svc.GetPositions(ctx, portfolioID, PositionFilter{})
	require.NoError(t, err)
}

func TestServiceTransactionsPaging(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, nil)
	portfolioID := uuid.New()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := svc.RecordBuy(ctx, portfolioID, buyCmd(int64(i), 100, day(i)))
		require.NoError(t, err)
	}

	page, err := svc.GetTransactions(ctx, portfolioID, models.TransactionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Transactions, 2)
	// newest first
	assert.True(t, decimal.NewFromInt(5).Equal(page.Transactions[0].Quantity))

	page, err = svc.GetTransactions(ctx, portfolioID, models.TransactionFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.True(t, decimal.NewFromInt(1).Equal(page.Transactions[0].Quantity))
}

func TestServiceRebuildProjections(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, nil)
	portfolioID := uuid.New()
	ctx := context.Background()

	seedScenario(t, svc, portfolioID)

	before, err := store.GetPortfolioReadModel(ctx, portfolioID)
	require.NoError(t, err)
	require.NoError(t, svc.RebuildProjections(ctx, portfolioID))
	after, err := store.GetPortfolioReadModel(ctx, portfolioID)
	require.NoError(t, err)

	assert.Equal(t, *before, *after, "rebuild reproduces the incrementally maintained state")
}

func TestServiceUpdateThenPositionsConsistent(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, nil)
	portfolioID := uuid.New()
	ctx := context.Background()

	txID, err := svc.RecordBuy(ctx, portfolioID, buyCmd(10, 100, day(1)))
	require.NoError(t, err)

	newQty := decimal.NewFromInt(20)
	updated, err := svc.UpdateTransaction(ctx, UpdateCommand{TransactionID: txID, Quantity: &newQty})
	require.NoError(t, err)
	assert.True(t, newQty.Equal(updated.Quantity))

	positions, err := svc.GetPositions(ctx, portfolioID, PositionFilter{})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, decimal.NewFromInt(20).Equal(positions[0].TotalQuantity))

	// materialized investment row agrees
	investments, err := store.GetInvestmentReadModels(ctx, portfolioID)
	require.NoError(t, err)
	require.Len(t, investments, 1)
	assert.True(t, decimal.NewFromInt(20).Equal(investments[0].Quantity))
}

func TestServiceTransactionsNegativeOffset(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, nil)
	portfolioID := uuid.New()
	ctx := context.Background()

	_, err := svc.RecordBuy(ctx, portfolioID, buyCmd(10, 100, day(1)))
	require.NoError(t, err)

	page, err := svc.GetTransactions(ctx, portfolioID, models.TransactionFilter{Offset: -1})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Offset)
	require.Len(t, page.Transactions, 1)
}

func TestServicePositionFilterDistinguishesExchanges(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, nil)
	portfolioID := uuid.New()
	ctx := context.Background()

	_, err := svc.RecordBuy(ctx, portfolioID, buyCmd(10, 100, day(1)))
	require.NoError(t, err)
	_, err = svc.RecordBuy(ctx, portfolioID, buyCmdWith(func(c *BuyCommand) {
		c.Symbol.Exchange = "LSE"
		c.Quantity = decimal.NewFromInt(4)
		c.Date = day(2)
	}))
	require.NoError(t, err)

	// bare ticker matches both listings
	positions, err := svc.GetPositions(ctx, portfolioID, PositionFilter{Ticker: testSymbol.Ticker})
	require.NoError(t, err)
	assert.Len(t, positions, 2)

	// the full triple pins one of them
	positions, err = svc.GetPositions(ctx, portfolioID, PositionFilter{Ticker: testSymbol.Ticker, Exchange: "LSE"})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "LSE", positions[0].Symbol.Exchange)
	assert.True(t, decimal.NewFromInt(4).Equal(positions[0].TotalQuantity))
}

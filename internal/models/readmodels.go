package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PortfolioReadModel is the materialized portfolio-level projection. It is
// updated inside the same database transaction as the event that changes it,
// so its Version always equals the stream head it has applied.
type PortfolioReadModel struct {
	PortfolioID      uuid.UUID       `json:"portfolio_id"`
	Currency         string          `json:"currency"`
	Version          int64           `json:"version"`
	TransactionCount int64           `json:"transaction_count"`
	ActiveCount      int64           `json:"active_count"`
	BuyCost          decimal.Decimal `json:"buy_cost"`
	SellProceeds     decimal.Decimal `json:"sell_proceeds"`
	RealizedGainLoss decimal.Decimal `json:"realized_gain_loss"`
	DividendIncome   decimal.Decimal `json:"dividend_income"`
	InterestIncome   decimal.Decimal `json:"interest_income"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// InvestmentReadModel is the materialized per-symbol projection within one
// portfolio. Quantity and CostBasis track the open FIFO book; realized P&L
// and income survive after the position is fully closed.
type InvestmentReadModel struct {
	PortfolioID       uuid.UUID       `json:"portfolio_id"`
	Symbol            Symbol          `json:"symbol"`
	Currency          string          `json:"currency"`
	Quantity          decimal.Decimal `json:"quantity"`
	CostBasis         decimal.Decimal `json:"cost_basis"`
	RealizedGainLoss  decimal.Decimal `json:"realized_gain_loss"`
	IncomeReceived    decimal.Decimal `json:"income_received"`
	LastTransactionAt time.Time       `json:"last_transaction_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

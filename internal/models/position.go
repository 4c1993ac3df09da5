package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lot is one still-open purchase slice of a symbol, consumed oldest-first by
// sells. Lots are derived during FIFO replay and never persisted as the
// system of record.
type Lot struct {
	RemainingQuantity   decimal.Decimal `json:"remaining_quantity"`
	UnitCost            decimal.Decimal `json:"unit_cost"`
	AcquisitionDate     time.Time       `json:"acquisition_date"`
	SourceTransactionID uuid.UUID       `json:"source_transaction_id"`
}

// Position is the derived holding of one symbol: the open lots plus the P&L
// that selling parts of earlier lots has already locked in. CurrentValue and
// UnrealizedGainLoss are only set when a market price was available.
type Position struct {
	Symbol             Symbol          `json:"symbol"`
	TotalQuantity      decimal.Decimal `json:"total_quantity"`
	TotalCost          Money           `json:"total_cost"`
	CurrentValue       *Money          `json:"current_value,omitempty"`
	UnrealizedGainLoss *Money          `json:"unrealized_gain_loss,omitempty"`
	RealizedGainLoss   Money           `json:"realized_gain_loss"`
	IncomeReceived     Money           `json:"income_received"`
	Lots               []Lot           `json:"lots,omitempty"`
}

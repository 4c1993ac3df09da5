package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type constants. The set is closed: every consumer switches over it
// exhaustively.
const (
	EventTransactionRecorded  = "transaction.recorded"
	EventTransactionUpdated   = "transaction.updated"
	EventTransactionCancelled = "transaction.cancelled"
)

// Event is one entry in a portfolio's append-only stream. Exactly one of the
// payload pointers is set, matching Type.
type Event struct {
	PortfolioID   uuid.UUID `json:"portfolio_id"`
	Version       int64     `json:"version"`
	Type          string    `json:"type"`
	TransactionID uuid.UUID `json:"transaction_id"`
	RecordedAt    time.Time `json:"recorded_at"`

	Recorded  *TransactionRecorded  `json:"recorded,omitempty"`
	Updated   *TransactionUpdated   `json:"updated,omitempty"`
	Cancelled *TransactionCancelled `json:"cancelled,omitempty"`
}

// TransactionRecorded carries a newly recorded transaction. For sells the
// deltas hold the FIFO matching result computed at command time, so replaying
// the event never needs to re-derive lot consumption.
type TransactionRecorded struct {
	Transaction    Transaction `json:"transaction"`
	Deltas         Deltas      `json:"deltas"`
	IsCompleteSale bool        `json:"is_complete_sale,omitempty"`
}

// TransactionUpdated carries the transaction before and after an edit, plus
// the net effect of the edit on derived totals.
type TransactionUpdated struct {
	Before Transaction `json:"before"`
	After  Transaction `json:"after"`
	Deltas Deltas      `json:"deltas"`
}

// TransactionCancelled carries the transaction at the moment of cancellation
// and the reversal of its contribution to derived totals.
type TransactionCancelled struct {
	Transaction Transaction `json:"transaction"`
	Deltas      Deltas      `json:"deltas"`
}

// Deltas is the exact change an event makes to the derived read models.
// Amounts are in the portfolio currency. The projection engine only ever adds
// these values, which is what makes apply(state, event) a pure fold.
type Deltas struct {
	Quantity         decimal.Decimal `json:"quantity"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	RealizedGainLoss decimal.Decimal `json:"realized_gain_loss"`
	BuyCost          decimal.Decimal `json:"buy_cost"`
	SellProceeds     decimal.Decimal `json:"sell_proceeds"`
	DividendIncome   decimal.Decimal `json:"dividend_income"`
	InterestIncome   decimal.Decimal `json:"interest_income"`
}

// Add returns the component-wise sum of two delta sets.
func (d Deltas) Add(other Deltas) Deltas {
	return Deltas{
		Quantity:         d.Quantity.Add(other.Quantity),
		CostBasis:        d.CostBasis.Add(other.CostBasis),
		RealizedGainLoss: d.RealizedGainLoss.Add(other.RealizedGainLoss),
		BuyCost:          d.BuyCost.Add(other.BuyCost),
		SellProceeds:     d.SellProceeds.Add(other.SellProceeds),
		DividendIncome:   d.DividendIncome.Add(other.DividendIncome),
		InterestIncome:   d.InterestIncome.Add(other.InterestIncome),
	}
}

// Negate returns the component-wise negation, used when reversing a
// transaction's contribution.
func (d Deltas) Negate() Deltas {
	return Deltas{
		Quantity:         d.Quantity.Neg(),
		CostBasis:        d.CostBasis.Neg(),
		RealizedGainLoss: d.RealizedGainLoss.Neg(),
		BuyCost:          d.BuyCost.Neg(),
		SellProceeds:     d.SellProceeds.Neg(),
		DividendIncome:   d.DividendIncome.Neg(),
		InterestIncome:   d.InterestIncome.Neg(),
	}
}

// Transaction returns the transaction snapshot embedded in the event: the new
// record for recorded events, the post-edit record for updates, and the
// cancelled record for cancellations.
func (e *Event) Transaction() Transaction {
	switch e.Type {
	case EventTransactionRecorded:
		return e.Recorded.Transaction
	case EventTransactionUpdated:
		return e.Updated.After
	case EventTransactionCancelled:
		return e.Cancelled.Transaction
	}
	return Transaction{}
}

// EventDeltas returns the read-model deltas carried by the event.
func (e *Event) EventDeltas() Deltas {
	switch e.Type {
	case EventTransactionRecorded:
		return e.Recorded.Deltas
	case EventTransactionUpdated:
		return e.Updated.Deltas
	case EventTransactionCancelled:
		return e.Cancelled.Deltas
	}
	return Deltas{}
}

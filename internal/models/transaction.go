package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction kind constants
const (
	KindBuy      = "BUY"
	KindSell     = "SELL"
	KindDividend = "DIVIDEND"
	KindInterest = "INTEREST"
)

// Transaction status constants
const (
	StatusActive    = "ACTIVE"
	StatusCancelled = "CANCELLED"
)

// Transaction is one financial event in a portfolio's ledger. It is a flat
// record carrying a kind tag; which fields are populated depends on the kind.
// A transaction is never deleted, only cancelled.
type Transaction struct {
	ID           uuid.UUID       `json:"id"`
	PortfolioID  uuid.UUID       `json:"portfolio_id"`
	Kind         string          `json:"kind"`
	Symbol       Symbol          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`       // BUY/SELL
	PricePerUnit decimal.Decimal `json:"price_per_unit"` // BUY/SELL
	Fee          decimal.Decimal `json:"fee"`
	GrossAmount  decimal.Decimal `json:"gross_amount"` // DIVIDEND/INTEREST
	NetAmount    decimal.Decimal `json:"net_amount"`   // GrossAmount * (1 - TaxRate/100)
	TaxRate      decimal.Decimal `json:"tax_rate"`     // percent
	Currency     string          `json:"currency"`
	Date         time.Time       `json:"transaction_date"`
	MaturityDate *time.Time      `json:"maturity_date,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	Status       string          `json:"status"`
	Sequence     int64           `json:"sequence"` // stream version that recorded it
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsTrade reports whether the transaction moves lot quantities.
func (t *Transaction) IsTrade() bool {
	return t.Kind == KindBuy || t.Kind == KindSell
}

// IsIncome reports whether the transaction is a dividend or interest payment.
func (t *Transaction) IsIncome() bool {
	return t.Kind == KindDividend || t.Kind == KindInterest
}

// GrossCost returns price*quantity + fee for a BUY, the full acquisition cost
// of the lot it opens.
func (t *Transaction) GrossCost() decimal.Decimal {
	return t.PricePerUnit.Mul(t.Quantity).Add(t.Fee)
}

// NetProceeds returns price*quantity - fee for a SELL.
func (t *Transaction) NetProceeds() decimal.Decimal {
	return t.PricePerUnit.Mul(t.Quantity).Sub(t.Fee)
}

// TransactionPage is one page of a filtered transaction listing.
type TransactionPage struct {
	Transactions []*Transaction `json:"transactions"`
	Total        int            `json:"total"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	Ticker   string
	Kind     string
	Status   string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// Aggregate is the in-memory state of one portfolio stream, rebuilt from its
// events. Every successful command emits exactly one event; the aggregate
// never mutates history and has no partial effects.
type Aggregate struct {
	portfolioID  uuid.UUID
	version      int64
	currency     string
	transactions []*models.Transaction
	byID         map[uuid.UUID]*models.Transaction
}

// NewAggregate replays an ordered event stream into aggregate state.
func NewAggregate(portfolioID uuid.UUID, events []*models.Event) (*Aggregate, error) {
	a := &Aggregate{
		portfolioID: portfolioID,
		byID:        make(map[uuid.UUID]*models.Transaction),
	}
	for _, e := range events {
		if e.Version != a.version+1 {
			return nil, fmt.Errorf("event stream gap: have version %d, next event is %d", a.version, e.Version)
		}
		switch e.Type {
		case models.EventTransactionRecorded:
			tx := e.Recorded.Transaction
			a.transactions = append(a.transactions, &tx)
			a.byID[tx.ID] = &tx
			if a.currency == "" {
				a.currency = tx.Currency
			}
		case models.EventTransactionUpdated:
			tx, ok := a.byID[e.TransactionID]
			if !ok {
				return nil, fmt.Errorf("update event for unknown transaction %s", e.TransactionID)
			}
			*tx = e.Updated.After
		case models.EventTransactionCancelled:
			tx, ok := a.byID[e.TransactionID]
			if !ok {
				return nil, fmt.Errorf("cancel event for unknown transaction %s", e.TransactionID)
			}
			tx.Status = models.StatusCancelled
			tx.UpdatedAt = e.RecordedAt
		default:
			return nil, fmt.Errorf("unknown event type %q at version %d", e.Type, e.Version)
		}
		a.version = e.Version
	}
	return a, nil
}

// Version returns the stream version the aggregate was built from. It is the
// expected version for the next append.
func (a *Aggregate) Version() int64 { return a.version }

// Transactions returns the full transaction history, cancelled included.
func (a *Aggregate) Transactions() []*models.Transaction { return a.transactions }

// BuyCommand records a purchase of a symbol.
type BuyCommand struct {
	Symbol       models.Symbol
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal
	Fee          decimal.Decimal
	Currency     string
	Date         time.Time
	MaturityDate *time.Time
	Notes        string
}

// SellCommand records a sale of a symbol against its open lots.
type SellCommand struct {
	Symbol       models.Symbol
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal
	Fee          decimal.Decimal
	Currency     string
	Date         time.Time
	Notes        string
}

// IncomeCommand records a dividend or interest payment.
type IncomeCommand struct {
	Kind        string // KindDividend or KindInterest
	Symbol      models.Symbol
	GrossAmount decimal.Decimal
	TaxRate     decimal.Decimal // percent, defaults to zero
	Currency    string
	Date        time.Time
	Notes       string
}

// UpdateCommand edits fields of an active transaction. Nil pointers leave the
// field untouched. Kind, symbol and currency are identity and cannot change.
type UpdateCommand struct {
	TransactionID uuid.UUID
	Quantity      *decimal.Decimal
	PricePerUnit  *decimal.Decimal
	Fee           *decimal.Decimal
	GrossAmount   *decimal.Decimal
	TaxRate       *decimal.Decimal
	Date          *time.Time
	MaturityDate  *time.Time
	Notes         *string
}

// SellOutcome is the result payload of a successful sell.
type SellOutcome struct {
	TransactionID      uuid.UUID       `json:"transaction_id"`
	RealizedProfitLoss models.Money    `json:"realized_profit_loss"`
	QuantitySold       decimal.Decimal `json:"quantity_sold"`
	IsCompleteSale     bool            `json:"is_complete_sale"`
}

// IncomeOutcome is the result payload of a recorded dividend or interest.
type IncomeOutcome struct {
	TransactionID uuid.UUID    `json:"transaction_id"`
	NetAmount     models.Money `json:"net_amount"`
}

// RecordBuy validates and emits a buy event. A well-formed buy always
// succeeds and opens a new lot.
func (a *Aggregate) RecordBuy(cmd BuyCommand, now time.Time) (*models.Event, uuid.UUID, error) {
	if err := a.validateTrade(cmd.Symbol, cmd.Quantity, cmd.PricePerUnit, cmd.Fee, cmd.Currency, cmd.Date); err != nil {
		return nil, uuid.Nil, err
	}
	tx := &models.Transaction{
		ID:           uuid.New(),
		PortfolioID:  a.portfolioID,
		Kind:         models.KindBuy,
		Symbol:       cmd.Symbol,
		Quantity:     cmd.Quantity,
		PricePerUnit: cmd.PricePerUnit,
		Fee:          cmd.Fee,
		Currency:     cmd.Currency,
		Date:         cmd.Date,
		MaturityDate: cmd.MaturityDate,
		Notes:        cmd.Notes,
		Status:       models.StatusActive,
		Sequence:     a.version + 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	deltas, _, err := a.deltasForRecord(tx)
	if err != nil {
		return nil, uuid.Nil, err
	}
	event := a.newEvent(models.EventTransactionRecorded, tx.ID, now)
	event.Recorded = &models.TransactionRecorded{Transaction: *tx, Deltas: deltas}
	return event, tx.ID, nil
}

// RecordSell validates a sale against the FIFO book and emits a sell event
// carrying the realized P&L of the consumed lots. Selling more than the open
// quantity fails with ErrInsufficientPosition and emits nothing.
func (a *Aggregate) RecordSell(cmd SellCommand, now time.Time) (*models.Event, *SellOutcome, error) {
	if err := a.validateTrade(cmd.Symbol, cmd.Quantity, cmd.PricePerUnit, cmd.Fee, cmd.Currency, cmd.Date); err != nil {
		return nil, nil, err
	}
	tx := &models.Transaction{
		ID:           uuid.New(),
		PortfolioID:  a.portfolioID,
		Kind:         models.KindSell,
		Symbol:       cmd.Symbol,
		Quantity:     cmd.Quantity,
		PricePerUnit: cmd.PricePerUnit,
		Fee:          cmd.Fee,
		Currency:     cmd.Currency,
		Date:         cmd.Date,
		Notes:        cmd.Notes,
		Status:       models.StatusActive,
		Sequence:     a.version + 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	deltas, after, err := a.deltasForRecord(tx)
	if err != nil {
		return nil, nil, err
	}
	complete := after.OpenQuantity(cmd.Symbol).IsZero()
	event := a.newEvent(models.EventTransactionRecorded, tx.ID, now)
	event.Recorded = &models.TransactionRecorded{Transaction: *tx, Deltas: deltas, IsCompleteSale: complete}
	outcome := &SellOutcome{
		TransactionID:      tx.ID,
		RealizedProfitLoss: models.NewMoney(deltas.RealizedGainLoss, cmd.Currency),
		QuantitySold:       cmd.Quantity,
		IsCompleteSale:     complete,
	}
	return event, outcome, nil
}

// RecordIncome validates and emits a dividend or interest event. Income never
// touches lot quantities. NetAmount = GrossAmount * (1 - TaxRate/100).
func (a *Aggregate) RecordIncome(cmd IncomeCommand, now time.Time) (*models.Event, *IncomeOutcome, error) {
	if cmd.Kind != models.KindDividend && cmd.Kind != models.KindInterest {
		return nil, nil, fmt.Errorf("%w: income kind must be %s or %s", ErrValidation, models.KindDividend, models.KindInterest)
	}
	if err := cmd.Symbol.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !cmd.GrossAmount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: gross amount must be positive", ErrValidation)
	}
	if cmd.TaxRate.IsNegative() || cmd.TaxRate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, nil, fmt.Errorf("%w: tax rate must be between 0 and 100", ErrValidation)
	}
	if err := a.checkCurrency(cmd.Currency); err != nil {
		return nil, nil, err
	}
	if cmd.Date.IsZero() {
		return nil, nil, fmt.Errorf("%w: transaction date is required", ErrValidation)
	}

	tx := &models.Transaction{
		ID:          uuid.New(),
		PortfolioID: a.portfolioID,
		Kind:        cmd.Kind,
		Symbol:      cmd.Symbol,
		GrossAmount: cmd.GrossAmount,
		NetAmount:   netOfTax(cmd.GrossAmount, cmd.TaxRate),
		TaxRate:     cmd.TaxRate,
		Currency:    cmd.Currency,
		Date:        cmd.Date,
		Notes:       cmd.Notes,
		Status:      models.StatusActive,
		Sequence:    a.version + 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	deltas, _, err := a.deltasForRecord(tx)
	if err != nil {
		return nil, nil, err
	}
	event := a.newEvent(models.EventTransactionRecorded, tx.ID, now)
	event.Recorded = &models.TransactionRecorded{Transaction: *tx, Deltas: deltas}
	outcome := &IncomeOutcome{
		TransactionID: tx.ID,
		NetAmount:     models.NewMoney(tx.NetAmount, cmd.Currency),
	}
	return event, outcome, nil
}

// UpdateTransaction edits an active transaction. The edit is rejected if it
// would make history inconsistent, e.g. shrinking a buy below the quantity
// that later sells already consumed.
func (a *Aggregate) UpdateTransaction(cmd UpdateCommand, now time.Time) (*models.Event, error) {
	current, ok := a.byID[cmd.TransactionID]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, cmd.TransactionID)
	}
	if current.Status == models.StatusCancelled {
		return nil, fmt.Errorf("%w: %w: cannot update %s", ErrInvariantViolation, ErrTransactionCancelled, cmd.TransactionID)
	}

	edited := *current
	if cmd.Quantity != nil {
		if !current.IsTrade() {
			return nil, fmt.Errorf("%w: quantity applies only to buy/sell transactions", ErrValidation)
		}
		edited.Quantity = *cmd.Quantity
	}
	if cmd.PricePerUnit != nil {
		if !current.IsTrade() {
			return nil, fmt.Errorf("%w: price applies only to buy/sell transactions", ErrValidation)
		}
		edited.PricePerUnit = *cmd.PricePerUnit
	}
	if cmd.Fee != nil {
		edited.Fee = *cmd.Fee
	}
	if cmd.GrossAmount != nil {
		if !current.IsIncome() {
			return nil, fmt.Errorf("%w: gross amount applies only to dividend/interest transactions", ErrValidation)
		}
		edited.GrossAmount = *cmd.GrossAmount
	}
	if cmd.TaxRate != nil {
		if !current.IsIncome() {
			return nil, fmt.Errorf("%w: tax rate applies only to dividend/interest transactions", ErrValidation)
		}
		edited.TaxRate = *cmd.TaxRate
	}
	if cmd.Date != nil {
		edited.Date = *cmd.Date
	}
	if cmd.MaturityDate != nil {
		edited.MaturityDate = cmd.MaturityDate
	}
	if cmd.Notes != nil {
		edited.Notes = *cmd.Notes
	}
	if edited.IsIncome() {
		if !edited.GrossAmount.IsPositive() {
			return nil, fmt.Errorf("%w: gross amount must be positive", ErrValidation)
		}
		if edited.TaxRate.IsNegative() || edited.TaxRate.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: tax rate must be between 0 and 100", ErrValidation)
		}
		edited.NetAmount = netOfTax(edited.GrossAmount, edited.TaxRate)
	}
	if edited.IsTrade() {
		if !edited.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		if !edited.PricePerUnit.IsPositive() {
			return nil, fmt.Errorf("%w: price per unit must be positive", ErrValidation)
		}
	}
	if edited.Fee.IsNegative() {
		return nil, fmt.Errorf("%w: fee cannot be negative", ErrValidation)
	}
	edited.UpdatedAt = now

	deltas, err := a.deltasForRewrite(current.ID, &edited)
	if err != nil {
		return nil, err
	}
	event := a.newEvent(models.EventTransactionUpdated, current.ID, now)
	event.Updated = &models.TransactionUpdated{Before: *current, After: edited, Deltas: deltas}
	return event, nil
}

// CancelTransaction soft-cancels an active transaction. Cancelling twice
// fails; nothing is ever removed from history. A buy whose lot later sells
// already consumed cannot be cancelled.
func (a *Aggregate) CancelTransaction(id uuid.UUID, now time.Time) (*models.Event, error) {
	current, ok := a.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	if current.Status == models.StatusCancelled {
		return nil, fmt.Errorf("%w: %w: %s", ErrInvariantViolation, ErrTransactionCancelled, id)
	}

	cancelled := *current
	cancelled.Status = models.StatusCancelled
	cancelled.UpdatedAt = now

	deltas, err := a.deltasForRewrite(id, &cancelled)
	if err != nil {
		return nil, err
	}
	event := a.newEvent(models.EventTransactionCancelled, id, now)
	event.Cancelled = &models.TransactionCancelled{Transaction: cancelled, Deltas: deltas}
	return event, nil
}

// deltasForRecord computes the read-model effect of appending a new
// transaction as the difference between the FIFO replay with and without it.
// Replaying the candidate history is also the commit-time validation: an
// over-selling sell surfaces here as ErrInsufficientPosition.
func (a *Aggregate) deltasForRecord(tx *models.Transaction) (models.Deltas, *Book, error) {
	before, err := Replay(a.transactions)
	if err != nil {
		return models.Deltas{}, nil, err
	}
	candidate := make([]*models.Transaction, 0, len(a.transactions)+1)
	candidate = append(candidate, a.transactions...)
	candidate = append(candidate, tx)
	after, err := Replay(candidate)
	if err != nil {
		return models.Deltas{}, nil, err
	}
	deltas := after.Totals(tx.Symbol).Add(before.Totals(tx.Symbol).Negate())
	return deltas, after, nil
}

// deltasForRewrite computes the effect of replacing one transaction in place
// (an update, or a cancellation which replaces it with a cancelled copy). A
// replacement under which some sell over-consumes its lots is a history
// inconsistency, not a bad sell, so the error maps to ErrInvariantViolation.
func (a *Aggregate) deltasForRewrite(id uuid.UUID, replacement *models.Transaction) (models.Deltas, error) {
	before, err := Replay(a.transactions)
	if err != nil {
		return models.Deltas{}, err
	}
	candidate := make([]*models.Transaction, len(a.transactions))
	for i, t := range a.transactions {
		if t.ID == id {
			candidate[i] = replacement
		} else {
			candidate[i] = t
		}
	}
	after, err := Replay(candidate)
	if err != nil {
		return models.Deltas{}, fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	}
	return after.Totals(replacement.Symbol).Add(before.Totals(replacement.Symbol).Negate()), nil
}

func (a *Aggregate) validateTrade(sym models.Symbol, qty, price, fee decimal.Decimal, currency string, date time.Time) error {
	if err := sym.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: price per unit must be positive", ErrValidation)
	}
	if fee.IsNegative() {
		return fmt.Errorf("%w: fee cannot be negative", ErrValidation)
	}
	if date.IsZero() {
		return fmt.Errorf("%w: transaction date is required", ErrValidation)
	}
	return a.checkCurrency(currency)
}

func (a *Aggregate) checkCurrency(currency string) error {
	if currency == "" {
		return fmt.Errorf("%w: currency is required", ErrValidation)
	}
	if a.currency != "" && a.currency != currency {
		return fmt.Errorf("%w: %w: portfolio holds %s, got %s", ErrValidation, models.ErrCurrencyMismatch, a.currency, currency)
	}
	return nil
}

func (a *Aggregate) newEvent(eventType string, txID uuid.UUID, now time.Time) *models.Event {
	return &models.Event{
		PortfolioID:   a.portfolioID,
		Version:       a.version + 1,
		Type:          eventType,
		TransactionID: txID,
		RecordedAt:    now,
	}
}

func netOfTax(gross, taxRate decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return gross.Mul(hundred.Sub(taxRate)).Div(hundred)
}

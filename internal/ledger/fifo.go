package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// symbolBook is the FIFO state of a single symbol during replay: the queue of
// open lots plus the totals the replay has accumulated so far.
type symbolBook struct {
	symbol           models.Symbol
	lots             []models.Lot
	realizedGainLoss decimal.Decimal
	dividendIncome   decimal.Decimal
	interestIncome   decimal.Decimal
	buyCost          decimal.Decimal
	sellProceeds     decimal.Decimal
}

func (b *symbolBook) openQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range b.lots {
		total = total.Add(lot.RemainingQuantity)
	}
	return total
}

func (b *symbolBook) openCost() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range b.lots {
		total = total.Add(lot.RemainingQuantity.Mul(lot.UnitCost))
	}
	return total
}

// Book is the outcome of a FIFO replay over one portfolio's active
// transactions. It is a plain value with no shared state: replays for the
// same portfolio can run concurrently.
type Book struct {
	Currency string

	books map[string]*symbolBook
	order []string
}

// Replay folds the active transactions of one portfolio into a FIFO book.
// Transactions are ordered by date, then by stream sequence as tie-break;
// this ordering decides which lot a sell consumes. Cancelled transactions are
// skipped. A sell that exceeds the open quantity fails the whole replay with
// ErrInsufficientPosition and nothing is partially consumed.
func Replay(transactions []*models.Transaction) (*Book, error) {
	ordered := make([]*models.Transaction, 0, len(transactions))
	for _, t := range transactions {
		if t.Status == models.StatusActive {
			ordered = append(ordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].Sequence < ordered[j].Sequence
	})

	book := &Book{books: make(map[string]*symbolBook)}
	for _, t := range ordered {
		if book.Currency == "" {
			book.Currency = t.Currency
		}
		sb := book.forSymbol(t.Symbol)
		switch t.Kind {
		case models.KindBuy:
			unitCost := t.GrossCost().Div(t.Quantity)
			sb.lots = append(sb.lots, models.Lot{
				RemainingQuantity:   t.Quantity,
				UnitCost:            unitCost,
				AcquisitionDate:     t.Date,
				SourceTransactionID: t.ID,
			})
			sb.buyCost = sb.buyCost.Add(t.GrossCost())
		case models.KindSell:
			if err := sb.consume(t); err != nil {
				return nil, err
			}
		case models.KindDividend:
			sb.dividendIncome = sb.dividendIncome.Add(t.NetAmount)
		case models.KindInterest:
			sb.interestIncome = sb.interestIncome.Add(t.NetAmount)
		default:
			return nil, fmt.Errorf("%w: unknown transaction kind %q", ErrValidation, t.Kind)
		}
	}
	return book, nil
}

// consume matches a sell against the front of the lot queue. The realized
// gain of each slice is (salePrice - unitCost) * sliceQty; the sell fee is
// borne proportionally across slices, which sums to subtracting it once.
func (b *symbolBook) consume(sell *models.Transaction) error {
	open := b.openQuantity()
	if sell.Quantity.GreaterThan(open) {
		return fmt.Errorf("%w: sell %s of %s exceeds open quantity %s",
			ErrInsufficientPosition, sell.Quantity, sell.Symbol, open)
	}

	remaining := sell.Quantity
	realized := decimal.Zero
	for remaining.IsPositive() {
		lot := &b.lots[0]
		slice := decimal.Min(remaining, lot.RemainingQuantity)
		realized = realized.Add(sell.PricePerUnit.Sub(lot.UnitCost).Mul(slice))
		lot.RemainingQuantity = lot.RemainingQuantity.Sub(slice)
		remaining = remaining.Sub(slice)
		if lot.RemainingQuantity.IsZero() {
			b.lots = b.lots[1:]
		}
	}
	realized = realized.Sub(sell.Fee)

	b.realizedGainLoss = b.realizedGainLoss.Add(realized)
	b.sellProceeds = b.sellProceeds.Add(sell.NetProceeds())
	return nil
}

func (b *Book) forSymbol(sym models.Symbol) *symbolBook {
	key := sym.Key()
	sb, ok := b.books[key]
	if !ok {
		sb = &symbolBook{symbol: sym}
		b.books[key] = sb
		b.order = append(b.order, key)
	}
	return sb
}

// OpenQuantity returns the still-open quantity for a symbol.
func (b *Book) OpenQuantity(sym models.Symbol) decimal.Decimal {
	if sb, ok := b.books[sym.Key()]; ok {
		return sb.openQuantity()
	}
	return decimal.Zero
}

// Totals returns the replay's accumulated totals for one symbol, expressed in
// the same shape the projection engine folds. Quantity and CostBasis reflect
// the open lots only.
func (b *Book) Totals(sym models.Symbol) models.Deltas {
	sb, ok := b.books[sym.Key()]
	if !ok {
		return models.Deltas{}
	}
	return models.Deltas{
		Quantity:         sb.openQuantity(),
		CostBasis:        sb.openCost(),
		RealizedGainLoss: sb.realizedGainLoss,
		BuyCost:          sb.buyCost,
		SellProceeds:     sb.sellProceeds,
		DividendIncome:   sb.dividendIncome,
		InterestIncome:   sb.interestIncome,
	}
}

// Positions builds the position view: one entry per symbol with open
// quantity, in first-seen order. Symbols whose quantity reached zero drop out
// of the set, though their realized P&L remains visible through Totals and
// the read models.
func (b *Book) Positions() []*models.Position {
	var positions []*models.Position
	for _, key := range b.order {
		sb := b.books[key]
		qty := sb.openQuantity()
		if !qty.IsPositive() {
			continue
		}
		lots := make([]models.Lot, len(sb.lots))
		copy(lots, sb.lots)
		positions = append(positions, &models.Position{
			Symbol:           sb.symbol,
			TotalQuantity:    qty,
			TotalCost:        models.NewMoney(sb.openCost(), b.Currency),
			RealizedGainLoss: models.NewMoney(sb.realizedGainLoss, b.Currency),
			IncomeReceived:   models.NewMoney(sb.dividendIncome.Add(sb.interestIncome), b.Currency),
			Lots:             lots,
		})
	}
	return positions
}

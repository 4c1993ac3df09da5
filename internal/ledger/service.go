package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/trogers1052/portfolio-ledger/internal/models"
	"github.com/trogers1052/portfolio-ledger/internal/prices"
)

// maxAppendRetries bounds the optimistic-concurrency retry loop. After this
// many fresh-state attempts the conflict surfaces to the caller.
const maxAppendRetries = 3

// priceLookupTimeout caps how long a position query waits for one market
// price. A slow provider degrades CurrentValue, never the query.
const priceLookupTimeout = 2 * time.Second

// Store is the persistence boundary the service drives: an append-only event
// stream per portfolio with read models maintained in the same unit of work
// as each append.
type Store interface {
	// LoadStream returns the portfolio's events ordered by version.
	LoadStream(ctx context.Context, portfolioID uuid.UUID) ([]*models.Event, error)

	// AppendEvent appends one event iff the stream is still at
	// expectedVersion, applying its projection updates atomically with the
	// append. Returns ErrVersionConflict on a version mismatch.
	AppendEvent(ctx context.Context, expectedVersion int64, event *models.Event) error

	// GetTransaction resolves a transaction by id across portfolios.
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)

	// ListTransactions returns a filtered, paged transaction listing.
	ListTransactions(ctx context.Context, portfolioID uuid.UUID, filter models.TransactionFilter) (*models.TransactionPage, error)

	// GetPortfolioReadModel returns the materialized portfolio projection.
	GetPortfolioReadModel(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioReadModel, error)

	// RebuildProjections re-derives the portfolio's read models from its full
	// event history, replacing the stored rows.
	RebuildProjections(ctx context.Context, portfolioID uuid.UUID) error
}

// EventPublisher pushes committed events to downstream consumers. Publishing
// is best-effort and happens after commit; it never affects command results.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.Event) error
}

// Service is the command/query layer over one event store. All domain
// outcomes come back as typed results and sentinel errors.
type Service struct {
	store     Store
	prices    prices.Provider
	publisher EventPublisher
	now       func() time.Time
}

// NewService creates a Service. prices and publisher may be nil; position
// queries then skip market valuation and commands skip event publishing.
func NewService(store Store, priceProvider prices.Provider, publisher EventPublisher) *Service {
	return &Service{
		store:     store,
		prices:    priceProvider,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordBuy appends a buy transaction and returns its id.
func (s *Service) RecordBuy(ctx context.Context, portfolioID uuid.UUID, cmd BuyCommand) (uuid.UUID, error) {
	var txID uuid.UUID
	err := s.execute(ctx, portfolioID, func(a *Aggregate) (*models.Event, error) {
		event, id, err := a.RecordBuy(cmd, s.now())
		txID = id
		return event, err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return txID, nil
}

// RecordSell appends a sell transaction, returning the FIFO matching result.
func (s *Service) RecordSell(ctx context.Context, portfolioID uuid.UUID, cmd SellCommand) (*SellOutcome, error) {
	var outcome *SellOutcome
	err := s.execute(ctx, portfolioID, func(a *Aggregate) (*models.Event, error) {
		event, o, err := a.RecordSell(cmd, s.now())
		outcome = o
		return event, err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// RecordIncome appends a dividend or interest transaction.
func (s *Service) RecordIncome(ctx context.Context, portfolioID uuid.UUID, cmd IncomeCommand) (*IncomeOutcome, error) {
	var outcome *IncomeOutcome
	err := s.execute(ctx, portfolioID, func(a *Aggregate) (*models.Event, error) {
		event, o, err := a.RecordIncome(cmd, s.now())
		outcome = o
		return event, err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// UpdateTransaction edits an active transaction and returns its new state.
func (s *Service) UpdateTransaction(ctx context.Context, cmd UpdateCommand) (*models.Transaction, error) {
	existing, err := s.store.GetTransaction(ctx, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	var updated models.Transaction
	err = s.execute(ctx, existing.PortfolioID, func(a *Aggregate) (*models.Event, error) {
		event, err := a.UpdateTransaction(cmd, s.now())
		if err != nil {
			return nil, err
		}
		updated = event.Updated.After
		return event, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CancelTransaction soft-cancels a transaction. The record stays in history
// with StatusCancelled and drops out of FIFO replay.
func (s *Service) CancelTransaction(ctx context.Context, transactionID uuid.UUID) error {
	existing, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	return s.execute(ctx, existing.PortfolioID, func(a *Aggregate) (*models.Event, error) {
		return a.CancelTransaction(transactionID, s.now())
	})
}

// execute runs one command against fresh aggregate state, retrying version
// conflicts a bounded number of times. Exactly one event is appended per
// successful command.
func (s *Service) execute(ctx context.Context, portfolioID uuid.UUID, command func(*Aggregate) (*models.Event, error)) error {
	var lastErr error
	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		events, err := s.store.LoadStream(ctx, portfolioID)
		if err != nil {
			return fmt.Errorf("failed to load stream %s: %w", portfolioID, err)
		}
		aggregate, err := NewAggregate(portfolioID, events)
		if err != nil {
			return fmt.Errorf("failed to replay stream %s: %w", portfolioID, err)
		}
		event, err := command(aggregate)
		if err != nil {
			return err
		}
		err = s.store.AppendEvent(ctx, aggregate.Version(), event)
		if err == nil {
			s.publish(ctx, event)
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return fmt.Errorf("failed to append to stream %s: %w", portfolioID, err)
		}
		lastErr = err
	}
	return fmt.Errorf("stream %s still conflicted after %d attempts: %w", portfolioID, maxAppendRetries, lastErr)
}

func (s *Service) publish(ctx context.Context, event *models.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		log.Printf("failed to publish %s event for transaction %s: %v", event.Type, event.TransactionID, err)
	}
}

// PositionFilter narrows a position query. Empty components match anything,
// so a bare ticker matches that ticker on every exchange while a full triple
// pins one instrument.
type PositionFilter struct {
	Ticker    string
	Exchange  string
	AssetType string
}

func (f PositionFilter) matches(sym models.Symbol) bool {
	if f.Ticker != "" && sym.Ticker != f.Ticker {
		return false
	}
	if f.Exchange != "" && sym.Exchange != f.Exchange {
		return false
	}
	if f.AssetType != "" && sym.AssetType != f.AssetType {
		return false
	}
	return true
}

// GetPositions recomputes open positions from the source transactions via
// FIFO replay, so the result is always consistent with full history. Market
// prices decorate CurrentValue/UnrealizedGainLoss when available; a missing
// or failing price leaves only those fields unset.
func (s *Service) GetPositions(ctx context.Context, portfolioID uuid.UUID, filter PositionFilter) ([]*models.Position, error) {
	events, err := s.store.LoadStream(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stream %s: %w", portfolioID, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: portfolio %s", ErrNotFound, portfolioID)
	}
	aggregate, err := NewAggregate(portfolioID, events)
	if err != nil {
		return nil, fmt.Errorf("failed to replay stream %s: %w", portfolioID, err)
	}
	book, err := Replay(aggregate.Transactions())
	if err != nil {
		return nil, fmt.Errorf("failed to compute positions for %s: %w", portfolioID, err)
	}

	positions := book.Positions()
	if filter != (PositionFilter{}) {
		filtered := positions[:0]
		for _, p := range positions {
			if filter.matches(p.Symbol) {
				filtered = append(filtered, p)
			}
		}
		positions = filtered
	}
	for _, p := range positions {
		s.valuate(ctx, p)
	}
	return positions, nil
}

// valuate fills CurrentValue and UnrealizedGainLoss for one position. Any
// provider failure, absence, or currency mismatch degrades exactly these two
// fields and nothing else.
func (s *Service) valuate(ctx context.Context, p *models.Position) {
	if s.prices == nil {
		return
	}
	lookupCtx, cancel := context.WithTimeout(ctx, priceLookupTimeout)
	defer cancel()

	price, ok, err := s.prices.LatestPrice(lookupCtx, p.Symbol)
	if err != nil {
		log.Printf("price lookup failed for %s: %v", p.Symbol, err)
		return
	}
	if !ok || price.Currency != p.TotalCost.Currency {
		return
	}
	value := price.Mul(p.TotalQuantity)
	unrealized, err := value.Sub(p.TotalCost)
	if err != nil {
		return
	}
	p.CurrentValue = &value
	p.UnrealizedGainLoss = &unrealized
}

// GetTransactions serves the paged transaction listing from the transactions
// read model, cancelled records included.
func (s *Service) GetTransactions(ctx context.Context, portfolioID uuid.UUID, filter models.TransactionFilter) (*models.TransactionPage, error) {
	return s.store.ListTransactions(ctx, portfolioID, filter)
}

// GetPortfolioSummary serves the materialized portfolio projection, the
// low-latency read path.
func (s *Service) GetPortfolioSummary(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioReadModel, error) {
	return s.store.GetPortfolioReadModel(ctx, portfolioID)
}

// RebuildProjections replays the portfolio's full history into fresh read
// models, the disaster-recovery path for projection state.
func (s *Service) RebuildProjections(ctx context.Context, portfolioID uuid.UUID) error {
	return s.store.RebuildProjections(ctx, portfolioID)
}

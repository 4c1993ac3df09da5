package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// MemoryStore is an in-process Store with the same append/projection
// semantics as the database-backed one: optimistic version check and read
// models updated under the same lock as the append. Used by tests and as a
// storage-free deployment mode.
type MemoryStore struct {
	mu           sync.RWMutex
	streams      map[uuid.UUID][]*models.Event
	transactions map[uuid.UUID]*models.Transaction
	portfolios   map[uuid.UUID]*models.PortfolioReadModel
	investments  map[uuid.UUID]map[string]*models.InvestmentReadModel
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams:      make(map[uuid.UUID][]*models.Event),
		transactions: make(map[uuid.UUID]*models.Transaction),
		portfolios:   make(map[uuid.UUID]*models.PortfolioReadModel),
		investments:  make(map[uuid.UUID]map[string]*models.InvestmentReadModel),
	}
}

// LoadStream returns a copy of the portfolio's events in version order.
func (s *MemoryStore) LoadStream(_ context.Context, portfolioID uuid.UUID) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream := s.streams[portfolioID]
	out := make([]*models.Event, len(stream))
	copy(out, stream)
	return out, nil
}

// AppendEvent appends one event if the stream is still at expectedVersion and
// applies the projection updates under the same lock, so no reader observes
// the event without its read-model consequence.
func (s *MemoryStore) AppendEvent(_ context.Context, expectedVersion int64, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[event.PortfolioID]
	if int64(len(stream)) != expectedVersion {
		return fmt.Errorf("%w: stream %s at %d, expected %d",
			ErrVersionConflict, event.PortfolioID, len(stream), expectedVersion)
	}

	stored := *event
	s.streams[event.PortfolioID] = append(stream, &stored)
	s.applyTransaction(&stored)
	s.applyProjections(&stored)
	return nil
}

func (s *MemoryStore) applyTransaction(e *models.Event) {
	tx := e.Transaction()
	s.transactions[tx.ID] = &tx
}

func (s *MemoryStore) applyProjections(e *models.Event) {
	portfolio, ok := s.portfolios[e.PortfolioID]
	if !ok {
		portfolio = &models.PortfolioReadModel{PortfolioID: e.PortfolioID}
		s.portfolios[e.PortfolioID] = portfolio
	}
	*portfolio = ApplyPortfolio(*portfolio, e)

	perSymbol, ok := s.investments[e.PortfolioID]
	if !ok {
		perSymbol = make(map[string]*models.InvestmentReadModel)
		s.investments[e.PortfolioID] = perSymbol
	}
	key := e.Transaction().Symbol.Key()
	inv, ok := perSymbol[key]
	if !ok {
		inv = &models.InvestmentReadModel{PortfolioID: e.PortfolioID}
		perSymbol[key] = inv
	}
	*inv = ApplyInvestment(*inv, e)
}

// GetTransaction resolves a transaction by id.
func (s *MemoryStore) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	out := *tx
	return &out, nil
}

// ListTransactions returns a filtered page of the portfolio's transactions,
// newest first.
func (s *MemoryStore) ListTransactions(_ context.Context, portfolioID uuid.UUID, filter models.TransactionFilter) (*models.TransactionPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Transaction
	for _, e := range s.streams[portfolioID] {
		if e.Type != models.EventTransactionRecorded {
			continue
		}
		tx := s.transactions[e.TransactionID]
		if tx == nil || !matchesFilter(tx, filter) {
			continue
		}
		out := *tx
		matched = append(matched, &out)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].Sequence > matched[j].Sequence
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return &models.TransactionPage{
		Transactions: matched[offset:end],
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

func matchesFilter(tx *models.Transaction, f models.TransactionFilter) bool {
	if f.Ticker != "" && tx.Symbol.Ticker != f.Ticker {
		return false
	}
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.Date.After(*f.To) {
		return false
	}
	return true
}

// GetPortfolioReadModel returns the materialized portfolio projection.
func (s *MemoryStore) GetPortfolioReadModel(_ context.Context, portfolioID uuid.UUID) (*models.PortfolioReadModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	portfolio, ok := s.portfolios[portfolioID]
	if !ok {
		return nil, fmt.Errorf("%w: portfolio %s", ErrNotFound, portfolioID)
	}
	out := *portfolio
	return &out, nil
}

// GetInvestmentReadModels returns the per-symbol projections for a portfolio.
func (s *MemoryStore) GetInvestmentReadModels(_ context.Context, portfolioID uuid.UUID) ([]*models.InvestmentReadModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perSymbol := s.investments[portfolioID]
	keys := make([]string, 0, len(perSymbol))
	for key := range perSymbol {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*models.InvestmentReadModel, 0, len(keys))
	for _, key := range keys {
		inv := *perSymbol[key]
		out = append(out, &inv)
	}
	return out, nil
}

// RebuildProjections replaces the portfolio's read models with a full replay
// from its event history.
func (s *MemoryStore) RebuildProjections(_ context.Context, portfolioID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[portfolioID]
	if !ok {
		return fmt.Errorf("%w: portfolio %s", ErrNotFound, portfolioID)
	}
	portfolio, investments := RebuildReadModels(portfolioID, stream)
	s.portfolios[portfolioID] = &portfolio
	perSymbol := make(map[string]*models.InvestmentReadModel, len(investments))
	for _, inv := range investments {
		perSymbol[inv.Symbol.Key()] = inv
	}
	s.investments[portfolioID] = perSymbol
	return nil
}

package ledger

import (
	"github.com/google/uuid"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// ApplyPortfolio folds one event into the portfolio read model. It is a pure
// function: replaying the same events from an empty state always reproduces
// the same values, which is what makes projection rebuild a safe recovery
// path. The switch over event types is exhaustive; unknown types cannot occur
// in a stream the aggregate accepted.
func ApplyPortfolio(state models.PortfolioReadModel, e *models.Event) models.PortfolioReadModel {
	tx := e.Transaction()
	deltas := e.EventDeltas()

	state.PortfolioID = e.PortfolioID
	state.Version = e.Version
	state.UpdatedAt = e.RecordedAt
	if state.Currency == "" {
		state.Currency = tx.Currency
	}

	switch e.Type {
	case models.EventTransactionRecorded:
		state.TransactionCount++
		state.ActiveCount++
	case models.EventTransactionUpdated:
		// counts unchanged
	case models.EventTransactionCancelled:
		state.ActiveCount--
	}

	state.BuyCost = state.BuyCost.Add(deltas.BuyCost)
	state.SellProceeds = state.SellProceeds.Add(deltas.SellProceeds)
	state.RealizedGainLoss = state.RealizedGainLoss.Add(deltas.RealizedGainLoss)
	state.DividendIncome = state.DividendIncome.Add(deltas.DividendIncome)
	state.InterestIncome = state.InterestIncome.Add(deltas.InterestIncome)
	return state
}

// ApplyInvestment folds one event into the read model of the symbol it
// touches. Same purity contract as ApplyPortfolio.
func ApplyInvestment(state models.InvestmentReadModel, e *models.Event) models.InvestmentReadModel {
	tx := e.Transaction()
	deltas := e.EventDeltas()

	state.PortfolioID = e.PortfolioID
	state.Symbol = tx.Symbol
	state.Currency = tx.Currency
	state.UpdatedAt = e.RecordedAt
	if tx.Date.After(state.LastTransactionAt) {
		state.LastTransactionAt = tx.Date
	}

	state.Quantity = state.Quantity.Add(deltas.Quantity)
	state.CostBasis = state.CostBasis.Add(deltas.CostBasis)
	state.RealizedGainLoss = state.RealizedGainLoss.Add(deltas.RealizedGainLoss)
	state.IncomeReceived = state.IncomeReceived.Add(deltas.DividendIncome).Add(deltas.InterestIncome)
	return state
}

// RebuildReadModels replays a full event stream from empty state into fresh
// read models. Investments come back in first-seen symbol order.
func RebuildReadModels(portfolioID uuid.UUID, events []*models.Event) (models.PortfolioReadModel, []*models.InvestmentReadModel) {
	portfolio := models.PortfolioReadModel{PortfolioID: portfolioID}
	investments := make(map[string]*models.InvestmentReadModel)
	var order []string

	for _, e := range events {
		portfolio = ApplyPortfolio(portfolio, e)

		key := e.Transaction().Symbol.Key()
		inv, ok := investments[key]
		if !ok {
			inv = &models.InvestmentReadModel{PortfolioID: portfolioID}
			investments[key] = inv
			order = append(order, key)
		}
		*inv = ApplyInvestment(*inv, e)
	}

	result := make([]*models.InvestmentReadModel, 0, len(order))
	for _, key := range order {
		result = append(result, investments[key])
	}
	return portfolio, result
}

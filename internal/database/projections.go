package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// applyProjections folds one event into both read models inside the caller's
// database transaction. Load, apply the pure transition, write back.
func applyProjections(ctx context.Context, tx *sql.Tx, event *models.Event) error {
	portfolio, err := portfolioReadModelTx(ctx, tx, event.PortfolioID)
	if err != nil {
		return err
	}
	updated := ledger.ApplyPortfolio(portfolio, event)
	if err := writePortfolioReadModel(ctx, tx, &updated); err != nil {
		return err
	}

	symbol := event.Transaction().Symbol
	investment, err := investmentReadModelTx(ctx, tx, event.PortfolioID, symbol)
	if err != nil {
		return err
	}
	updatedInv := ledger.ApplyInvestment(investment, event)
	return writeInvestmentReadModel(ctx, tx, &updatedInv)
}

func portfolioReadModelTx(ctx context.Context, tx *sql.Tx, portfolioID uuid.UUID) (models.PortfolioReadModel, error) {
	query := `
		SELECT portfolio_id, currency, version, transaction_count, active_count,
		       buy_cost, sell_proceeds, realized_gain_loss, dividend_income, interest_income, updated_at
		FROM portfolio_read_models
		WHERE portfolio_id = $1
	`
	var m models.PortfolioReadModel
	err := tx.QueryRowContext(ctx, query, portfolioID).Scan(
		&m.PortfolioID, &m.Currency, &m.Version, &m.TransactionCount, &m.ActiveCount,
		&m.BuyCost, &m.SellProceeds, &m.RealizedGainLoss, &m.DividendIncome, &m.InterestIncome, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.PortfolioReadModel{PortfolioID: portfolioID}, nil
	}
	if err != nil {
		return models.PortfolioReadModel{}, fmt.Errorf("failed to load portfolio read model: %w", err)
	}
	return m, nil
}

func writePortfolioReadModel(ctx context.Context, tx *sql.Tx, m *models.PortfolioReadModel) error {
	query := `
		INSERT INTO portfolio_read_models (
			portfolio_id, currency, version, transaction_count, active_count,
			buy_cost, sell_proceeds, realized_gain_loss, dividend_income, interest_income, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (portfolio_id) DO UPDATE SET
			currency = EXCLUDED.currency,
			version = EXCLUDED.version,
			transaction_count = EXCLUDED.transaction_count,
			active_count = EXCLUDED.active_count,
			buy_cost = EXCLUDED.buy_cost,
			sell_proceeds = EXCLUDED.sell_proceeds,
			realized_gain_loss = EXCLUDED.realized_gain_loss,
			dividend_income = EXCLUDED.dividend_income,
			interest_income = EXCLUDED.interest_income,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		m.PortfolioID, m.Currency, m.Version, m.TransactionCount, m.ActiveCount,
		m.BuyCost, m.SellProceeds, m.RealizedGainLoss, m.DividendIncome, m.InterestIncome, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write portfolio read model: %w", err)
	}
	return nil
}

func investmentReadModelTx(ctx context.Context, tx *sql.Tx, portfolioID uuid.UUID, symbol models.Symbol) (models.InvestmentReadModel, error) {
	query := `
		SELECT portfolio_id, ticker, exchange, asset_type, currency,
		       quantity, cost_basis, realized_gain_loss, income_received, last_transaction_at, updated_at
		FROM investment_read_models
		WHERE portfolio_id = $1 AND ticker = $2 AND exchange = $3 AND asset_type = $4
	`
	var m models.InvestmentReadModel
	err := tx.QueryRowContext(ctx, query, portfolioID, symbol.Ticker, symbol.Exchange, symbol.AssetType).Scan(
		&m.PortfolioID, &m.Symbol.Ticker, &m.Symbol.Exchange, &m.Symbol.AssetType, &m.Currency,
		&m.Quantity, &m.CostBasis, &m.RealizedGainLoss, &m.IncomeReceived, &m.LastTransactionAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.InvestmentReadModel{PortfolioID: portfolioID}, nil
	}
	if err != nil {
		return models.InvestmentReadModel{}, fmt.Errorf("failed to load investment read model: %w", err)
	}
	return m, nil
}

func writeInvestmentReadModel(ctx context.Context, tx *sql.Tx, m *models.InvestmentReadModel) error {
	query := `
		INSERT INTO investment_read_models (
			portfolio_id, ticker, exchange, asset_type, currency,
			quantity, cost_basis, realized_gain_loss, income_received, last_transaction_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (portfolio_id, ticker, exchange, asset_type) DO UPDATE SET
			currency = EXCLUDED.currency,
			quantity = EXCLUDED.quantity,
			cost_basis = EXCLUDED.cost_basis,
			realized_gain_loss = EXCLUDED.realized_gain_loss,
			income_received = EXCLUDED.income_received,
			last_transaction_at = EXCLUDED.last_transaction_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		m.PortfolioID, m.Symbol.Ticker, m.Symbol.Exchange, m.Symbol.AssetType, m.Currency,
		m.Quantity, m.CostBasis, m.RealizedGainLoss, m.IncomeReceived, m.LastTransactionAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write investment read model: %w", err)
	}
	return nil
}

// GetPortfolioReadModel returns the materialized portfolio projection.
func (db *DB) GetPortfolioReadModel(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioReadModel, error) {
	query := `
		SELECT portfolio_id, currency, version, transaction_count, active_count,
		       buy_cost, sell_proceeds, realized_gain_loss, dividend_income, interest_income, updated_at
		FROM portfolio_read_models
		WHERE portfolio_id = $1
	`
	var m models.PortfolioReadModel
	err := db.conn.QueryRowContext(ctx, query, portfolioID).Scan(
		&m.PortfolioID, &m.Currency, &m.Version, &m.TransactionCount, &m.ActiveCount,
		&m.BuyCost, &m.SellProceeds, &m.RealizedGainLoss, &m.DividendIncome, &m.InterestIncome, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: portfolio %s", ledger.ErrNotFound, portfolioID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio read model: %w", err)
	}
	return &m, nil
}

// GetInvestmentReadModels returns the per-symbol projections of a portfolio.
func (db *DB) GetInvestmentReadModels(ctx context.Context, portfolioID uuid.UUID) ([]*models.InvestmentReadModel, error) {
	query := `
		SELECT portfolio_id, ticker, exchange, asset_type, currency,
		       quantity, cost_basis, realized_gain_loss, income_received, last_transaction_at, updated_at
		FROM investment_read_models
		WHERE portfolio_id = $1
		ORDER BY ticker, exchange
	`
	rows, err := db.conn.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query investment read models: %w", err)
	}
	defer rows.Close()

	var result []*models.InvestmentReadModel
	for rows.Next() {
		var m models.InvestmentReadModel
		err := rows.Scan(
			&m.PortfolioID, &m.Symbol.Ticker, &m.Symbol.Exchange, &m.Symbol.AssetType, &m.Currency,
			&m.Quantity, &m.CostBasis, &m.RealizedGainLoss, &m.IncomeReceived, &m.LastTransactionAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment read model: %w", err)
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

// RebuildProjections re-derives both read models from the full event history
// and swaps them in atomically. Recovery path: the stream is the system of
// record, projections are always reproducible from it.
func (db *DB) RebuildProjections(ctx context.Context, portfolioID uuid.UUID) error {
	events, err := db.LoadStream(ctx, portfolioID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("%w: portfolio %s", ledger.ErrNotFound, portfolioID)
	}

	portfolio, investments := ledger.RebuildReadModels(portfolioID, events)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM investment_read_models WHERE portfolio_id = $1`, portfolioID); err != nil {
		return fmt.Errorf("failed to clear investment read models: %w", err)
	}
	if err := writePortfolioReadModel(ctx, tx, &portfolio); err != nil {
		return err
	}
	for _, inv := range investments {
		if err := writeInvestmentReadModel(ctx, tx, inv); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rebuild: %w", err)
	}
	return nil
}

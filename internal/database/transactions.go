package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

const transactionColumns = `
	id, portfolio_id, kind, ticker, exchange, asset_type,
	quantity, price_per_unit, fee, gross_amount, net_amount, tax_rate,
	currency, transaction_date, maturity_date, notes, status, sequence,
	created_at, updated_at
`

// GetTransaction retrieves a transaction by id.
func (db *DB) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	t, err := scanTransaction(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transaction %s", ledger.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns one page of a portfolio's transactions, newest
// first, with optional symbol/kind/status/date filters. Cancelled records are
// included unless filtered out.
func (db *DB) ListTransactions(ctx context.Context, portfolioID uuid.UUID, filter models.TransactionFilter) (*models.TransactionPage, error) {
	where := []string{"portfolio_id = $1"}
	args := []interface{}{portfolioID}

	if filter.Ticker != "" {
		args = append(args, filter.Ticker)
		where = append(where, "ticker = $"+strconv.Itoa(len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where = append(where, "kind = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, "transaction_date >= $"+strconv.Itoa(len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, "transaction_date <= $"+strconv.Itoa(len(args)))
	}
	condition := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM transactions WHERE ` + condition
	if err := db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE ` + condition + `
		ORDER BY transaction_date DESC, sequence DESC
		LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return &models.TransactionPage{
		Transactions: transactions,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var maturityDate sql.NullTime
	var notes sql.NullString

	err := row.Scan(
		&t.ID, &t.PortfolioID, &t.Kind, &t.Symbol.Ticker, &t.Symbol.Exchange, &t.Symbol.AssetType,
		&t.Quantity, &t.PricePerUnit, &t.Fee, &t.GrossAmount, &t.NetAmount, &t.TaxRate,
		&t.Currency, &t.Date, &maturityDate, &notes, &t.Status, &t.Sequence,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if maturityDate.Valid {
		t.MaturityDate = &maturityDate.Time
	}
	if notes.Valid {
		t.Notes = notes.String
	}
	return &t, nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// pqUniqueViolation is the PostgreSQL error code for a unique constraint hit.
const pqUniqueViolation = "23505"

// LoadStream returns a portfolio's events in version order.
func (db *DB) LoadStream(ctx context.Context, portfolioID uuid.UUID) ([]*models.Event, error) {
	query := `
		SELECT payload
		FROM portfolio_events
		WHERE portfolio_id = $1
		ORDER BY version
	`
	rows, err := db.conn.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var event models.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// AppendEvent appends one event to a portfolio stream and applies its effect
// on the transactions table and both read models inside the same database
// transaction. The UNIQUE (portfolio_id, version) constraint is the
// optimistic concurrency check: a second writer racing on the same expected
// version loses with ErrVersionConflict and nothing is persisted. Any
// projection failure rolls the event back with it.
func (db *DB) AppendEvent(ctx context.Context, expectedVersion int64, event *models.Event) error {
	if event.Version != expectedVersion+1 {
		return fmt.Errorf("event version %d does not follow expected stream version %d", event.Version, expectedVersion)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	insert := `
		INSERT INTO portfolio_events (portfolio_id, version, event_type, transaction_id, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, insert,
		event.PortfolioID, event.Version, event.Type, event.TransactionID, payload, event.RecordedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: stream %s already past version %d",
				ledger.ErrVersionConflict, event.PortfolioID, expectedVersion)
		}
		return fmt.Errorf("failed to append event: %w", err)
	}

	if err := upsertTransaction(ctx, tx, event); err != nil {
		return err
	}
	if err := applyProjections(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append: %w", err)
	}
	return nil
}

// upsertTransaction keeps the transactions table in step with the stream: an
// insert for recorded events, a full-row update for edits and cancellations.
func upsertTransaction(ctx context.Context, tx *sql.Tx, event *models.Event) error {
	t := event.Transaction()
	query := `
		INSERT INTO transactions (
			id, portfolio_id, kind, ticker, exchange, asset_type,
			quantity, price_per_unit, fee, gross_amount, net_amount, tax_rate,
			currency, transaction_date, maturity_date, notes, status, sequence,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		ON CONFLICT (id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			price_per_unit = EXCLUDED.price_per_unit,
			fee = EXCLUDED.fee,
			gross_amount = EXCLUDED.gross_amount,
			net_amount = EXCLUDED.net_amount,
			tax_rate = EXCLUDED.tax_rate,
			transaction_date = EXCLUDED.transaction_date,
			maturity_date = EXCLUDED.maturity_date,
			notes = EXCLUDED.notes,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		t.ID, t.PortfolioID, t.Kind, t.Symbol.Ticker, t.Symbol.Exchange, t.Symbol.AssetType,
		t.Quantity, t.PricePerUnit, t.Fee, t.GrossAmount, t.NetAmount, t.TaxRate,
		t.Currency, t.Date, t.MaturityDate, t.Notes, t.Status, t.Sequence,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", t.ID, err)
	}
	return nil
}

package prices

import (
	"context"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// Provider looks up the latest market price for a symbol. The second return
// value reports whether a price was available at all; an absent price is not
// an error. Callers must treat any failure as a degraded field, never as a
// reason to fail a query.
type Provider interface {
	LatestPrice(ctx context.Context, symbol models.Symbol) (models.Money, bool, error)
}

package prices

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// CachedProvider wraps another provider with a Redis quote cache. Cache
// failures fall through to the upstream provider; the cache is an
// optimization, never a dependency.
type CachedProvider struct {
	upstream Provider
	client   *redis.Client
	ttl      time.Duration
}

// NewCachedProvider creates a Redis-backed cache in front of upstream.
func NewCachedProvider(upstream Provider, client *redis.Client, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedProvider{upstream: upstream, client: client, ttl: ttl}
}

type cachedQuote struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// LatestPrice serves from cache when possible and caches fresh quotes.
// Absence is not cached, so a newly listed symbol becomes visible as soon as
// the upstream knows it.
func (p *CachedProvider) LatestPrice(ctx context.Context, symbol models.Symbol) (models.Money, bool, error) {
	key := "quote:" + symbol.Key()

	if data, err := p.client.Get(ctx, key).Bytes(); err == nil {
		var q cachedQuote
		if err := json.Unmarshal(data, &q); err == nil {
			if amount, err := decimal.NewFromString(q.Amount); err == nil {
				return models.NewMoney(amount, q.Currency), true, nil
			}
		}
	} else if err != redis.Nil {
		log.Printf("quote cache read failed for %s: %v", symbol, err)
	}

	price, ok, err := p.upstream.LatestPrice(ctx, symbol)
	if err != nil || !ok {
		return price, ok, err
	}

	data, err := json.Marshal(cachedQuote{Amount: price.Amount.String(), Currency: price.Currency})
	if err == nil {
		if err := p.client.Set(ctx, key, data, p.ttl).Err(); err != nil {
			log.Printf("quote cache write failed for %s: %v", symbol, err)
		}
	}
	return price, true, nil
}

package courier

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dafnadaf/artist-sub000/internal/cache"
	"github.com/dafnadaf/artist-sub000/internal/obs"
)

// Aggregator fans a quote request out to every configured provider and
// collects whatever succeeds. Results are cached under a canonical key so
// semantically identical requests within the TTL never hit the couriers.
type Aggregator struct {
	registry *Registry
	cache    *cache.Memory[[]Quote]
	log      zerolog.Logger
}

// NewAggregator constructs the aggregator around a provider registry and a
// quote cache.
func NewAggregator(registry *Registry, quoteCache *cache.Memory[[]Quote], log zerolog.Logger) *Aggregator {
	return &Aggregator{registry: registry, cache: quoteCache, log: log}
}

// GetQuotes returns the union of quotes from all configured providers.
// A provider failure never hides another provider's success; the last error
// is surfaced only when every configured provider failed. Zero configured
// providers yields an empty list, not an error.
func (a *Aggregator) GetQuotes(ctx context.Context, req QuoteRequest) ([]Quote, error) {
	if req.WeightGrams <= 0 {
		return nil, ErrInvalidWeight
	}

	key := QuoteCacheKey(req)
	if cached, ok := a.cache.Get(key); ok {
		countQuoteCache("hit")
		return append([]Quote(nil), cached...), nil
	}
	countQuoteCache("miss")

	providers := a.registry.Configured()
	if len(providers) == 0 {
		return []Quote{}, nil
	}

	var (
		mu        sync.Mutex
		all       []Quote
		succeeded int
		lastErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		p := p
		g.Go(func() error {
			start := time.Now()
			quotes, err := p.Quote(gctx, req)
			observeQuoteLatency(p.Code(), time.Since(start))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				countQuoteRequest(p.Code(), "error")
				lastErr = err
				a.log.Warn().Err(err).
					Str("provider", string(p.Code())).
					Msg("provider quote failed")
				// one provider failing must not cancel the others
				return nil
			}
			countQuoteRequest(p.Code(), "ok")
			succeeded++
			for i := range quotes {
				quotes[i].Provider = p.Code()
			}
			all = append(all, quotes...)
			return nil
		})
	}
	_ = g.Wait()

	if len(all) == 0 {
		// A provider that answered with zero tariffs still counts as a
		// success; the error surfaces only when every provider failed.
		if succeeded == 0 && lastErr != nil {
			return nil, lastErr
		}
		return []Quote{}, nil
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Provider != all[j].Provider {
			return all[i].Provider < all[j].Provider
		}
		return all[i].Price < all[j].Price
	})
	a.cache.Set(key, all)
	return append([]Quote(nil), all...), nil
}

func countQuoteCache(result string) {
	if obs.QuoteCacheTotal != nil {
		obs.QuoteCacheTotal.WithLabelValues(result).Inc()
	}
}

func countQuoteRequest(provider Code, result string) {
	if obs.QuoteRequestsTotal != nil {
		obs.QuoteRequestsTotal.WithLabelValues(string(provider), result).Inc()
	}
}

func observeQuoteLatency(provider Code, elapsed time.Duration) {
	if obs.QuoteFanoutLatency != nil {
		obs.QuoteFanoutLatency.WithLabelValues(string(provider)).Observe(float64(elapsed.Milliseconds()))
	}
}

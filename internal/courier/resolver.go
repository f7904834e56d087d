package courier

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dafnadaf/artist-sub000/internal/cache"
	"github.com/dafnadaf/artist-sub000/internal/obs"
)

// Resolver validates that a client-submitted pickup point actually belongs to
// the chosen provider and location, caching resolved points by
// (provider, code) for fast-path hits.
type Resolver struct {
	registry *Registry
	cache    *cache.Memory[PickupPoint]
	log      zerolog.Logger
}

// NewResolver constructs the resolver around a provider registry and a point
// cache.
func NewResolver(registry *Registry, pointCache *cache.Memory[PickupPoint], log zerolog.Logger) *Resolver {
	return &Resolver{registry: registry, cache: pointCache, log: log}
}

func pointCacheKey(provider Code, code string) string {
	return "pvz:" + string(provider) + ":" + code
}

// EnsureBelongs resolves the pickup point identified by (provider, code).
// A cached point is returned without any network call. On a miss the
// resolver walks a sequence of narrowing listings, from the most specific
// hint down to a bare code query, because list-by-code endpoints are
// unreliable or absent for some couriers. Every point fetched along the way
// warms the cache, not just the match.
func (r *Resolver) EnsureBelongs(ctx context.Context, provider Code, code string, hints PickupPointQuery) (PickupPoint, error) {
	if code == "" {
		return PickupPoint{}, ErrMissingPickupCode
	}
	p, ok := r.registry.Get(provider)
	if !ok || !p.IsConfigured() {
		countPvzResolve(provider, "unsupported")
		return PickupPoint{}, ErrUnsupportedProvider
	}

	if point, ok := r.cache.Get(pointCacheKey(provider, code)); ok {
		countPvzResolve(provider, "cache")
		return point, nil
	}

	var lastErr error
	for _, query := range narrowingQueries(code, hints) {
		points, err := p.PickupPoints(ctx, query)
		if err != nil {
			lastErr = err
			r.log.Warn().Err(err).
				Str("provider", string(provider)).
				Str("code", code).
				Msg("pickup point listing failed")
			continue
		}
		match, found := r.warm(provider, code, points)
		if found {
			countPvzResolve(provider, "resolved")
			return match, nil
		}
	}

	if lastErr != nil {
		countPvzResolve(provider, "error")
		return PickupPoint{}, lastErr
	}
	countPvzResolve(provider, "miss")
	return PickupPoint{}, ErrPointNotFound
}

// narrowingQueries orders the lookup attempts from most to least specific.
func narrowingQueries(code string, hints PickupPointQuery) []PickupPointQuery {
	queries := make([]PickupPointQuery, 0, 4)
	if hints.CityCode != nil {
		queries = append(queries, PickupPointQuery{CityCode: hints.CityCode})
	}
	if hints.PostalCode != "" {
		queries = append(queries, PickupPointQuery{PostalCode: hints.PostalCode})
	}
	if hints.City != "" {
		queries = append(queries, PickupPointQuery{City: hints.City})
	}
	queries = append(queries, PickupPointQuery{Code: code})
	return queries
}

// warm writes every listed point into the cache and returns the one matching
// code, when present.
func (r *Resolver) warm(provider Code, code string, points []PickupPoint) (PickupPoint, bool) {
	var match PickupPoint
	found := false
	for _, point := range points {
		if point.Code == "" {
			continue
		}
		point.Provider = provider
		r.cache.Set(pointCacheKey(provider, point.Code), point)
		if point.Code == code {
			match = point
			found = true
		}
	}
	return match, found
}

// List fetches pickup points for a provider and proactively warms the
// resolver cache with every point returned.
func (r *Resolver) List(ctx context.Context, provider Code, query PickupPointQuery) ([]PickupPoint, error) {
	p, ok := r.registry.Get(provider)
	if !ok || !p.IsConfigured() {
		return nil, ErrUnsupportedProvider
	}
	points, err := p.PickupPoints(ctx, query)
	if err != nil {
		return nil, err
	}
	r.warm(provider, "", points)
	return points, nil
}

func countPvzResolve(provider Code, result string) {
	if obs.PvzResolveTotal != nil {
		obs.PvzResolveTotal.WithLabelValues(string(provider), result).Inc()
	}
}

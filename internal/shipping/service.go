package shipping

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dafnadaf/artist-sub000/internal/cache"
	"github.com/dafnadaf/artist-sub000/internal/courier"
	"github.com/dafnadaf/artist-sub000/internal/lock"
	"github.com/dafnadaf/artist-sub000/internal/obs"
)

// Service orchestrates quoting, shipment booking, tracking and pickup point
// listings across the courier adapters. It owns no persistent state; orders
// live with the order-management collaborator.
type Service struct {
	Registry   *courier.Registry
	Aggregator *courier.Aggregator
	Resolver   *courier.Resolver
	ListCache  *cache.RedisJSON
	Lock       lock.Locker
	Log        zerolog.Logger
}

// Quotes returns the aggregated quotes for a request.
func (s *Service) Quotes(ctx context.Context, req courier.QuoteRequest) ([]courier.Quote, error) {
	return s.Aggregator.GetQuotes(ctx, req)
}

// CreateInput is the service-level shipment booking request. QuoteType and
// RequiresPickupPoint come from the quote the client previously selected.
type CreateInput struct {
	OrderID             string
	Provider            courier.Code
	TariffCode          string
	QuoteType           courier.DeliveryType
	RequiresPickupPoint bool
	From                courier.Location
	To                  courier.Location
	WeightGrams         int
	Recipient           courier.Recipient
	Items               []courier.Item
	PickupPointCode     string
}

// Create books a shipment with the chosen provider. For pickup deliveries the
// pickup point is resolved first so a mistyped or foreign code never reaches
// the courier.
func (s *Service) Create(ctx context.Context, in CreateInput) (courier.ShipmentResult, error) {
	p, ok := s.Registry.Get(in.Provider)
	if !ok || !p.IsConfigured() {
		return courier.ShipmentResult{}, courier.ErrUnsupportedProvider
	}

	input := courier.ShipmentInput{
		OrderID:     in.OrderID,
		TariffCode:  in.TariffCode,
		Type:        in.QuoteType,
		From:        in.From,
		To:          in.To,
		WeightGrams: in.WeightGrams,
		Recipient:   in.Recipient,
		Items:       in.Items,
	}
	if in.QuoteType == courier.DeliveryPickup || in.RequiresPickupPoint {
		if in.PickupPointCode == "" {
			return courier.ShipmentResult{}, courier.ErrMissingPickupCode
		}
		point, err := s.Resolver.EnsureBelongs(ctx, in.Provider, in.PickupPointCode, courier.PickupPointQuery{
			CityCode:   in.To.CityCode,
			PostalCode: in.To.PostalCode,
			City:       in.To.City,
		})
		if err != nil {
			return courier.ShipmentResult{}, err
		}
		input.Type = courier.DeliveryPickup
		input.PickupPoint = &point
	}

	result, err := p.CreateShipment(ctx, input)
	if err != nil {
		countShipmentCreate(in.Provider, "error")
		return courier.ShipmentResult{}, err
	}
	countShipmentCreate(in.Provider, "ok")
	s.Log.Info().
		Str("provider", string(in.Provider)).
		Str("order_id", in.OrderID).
		Str("tracking_number", result.TrackingNumber).
		Msg("shipment created")
	return result, nil
}

// Track fetches the normalised tracking state from the provider and maps the
// latest status onto the shared taxonomy.
func (s *Service) Track(ctx context.Context, provider courier.Code, trackingNumber string) (courier.TrackInfo, error) {
	p, ok := s.Registry.Get(provider)
	if !ok || !p.IsConfigured() {
		return courier.TrackInfo{}, courier.ErrUnsupportedProvider
	}
	info, err := p.Track(ctx, trackingNumber)
	if err != nil {
		return courier.TrackInfo{}, err
	}
	info.Status = string(MapExternalStatus(provider, info.Status))
	for i := range info.History {
		info.History[i].Status = string(MapExternalStatus(provider, info.History[i].Status))
	}
	return info, nil
}

// PickupPoints lists pickup points through a route-level Redis cache. The
// refresh behind a miss runs under a Redis lock so concurrent misses do not
// stampede the courier API.
func (s *Service) PickupPoints(ctx context.Context, provider courier.Code, query courier.PickupPointQuery) ([]courier.PickupPoint, error) {
	key := listCacheKey(provider, query)
	var points []courier.PickupPoint
	if found, err := s.ListCache.GetJSON(ctx, key, &points); err != nil {
		s.Log.Warn().Err(err).Str("key", key).Msg("pvz list cache read failed")
	} else if found {
		return points, nil
	}

	fetch := func(ctx context.Context) error {
		// another waiter may have populated the cache while we queued
		if found, err := s.ListCache.GetJSON(ctx, key, &points); err == nil && found {
			return nil
		}
		fetched, err := s.Resolver.List(ctx, provider, query)
		if err != nil {
			return err
		}
		points = fetched
		if err := s.ListCache.SetJSON(ctx, key, points); err != nil {
			s.Log.Warn().Err(err).Str("key", key).Msg("pvz list cache write failed")
		}
		return nil
	}

	var err error
	if s.Lock.R != nil {
		err = s.Lock.WithLock(ctx, key+":lock", 15*time.Second, fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return nil, err
	}
	return points, nil
}

func listCacheKey(provider courier.Code, query courier.PickupPointQuery) string {
	parts := []string{"pvzlist", string(provider)}
	if query.CityCode != nil {
		parts = append(parts, "cc", strconv.Itoa(*query.CityCode))
	}
	if query.PostalCode != "" {
		parts = append(parts, "zip", strings.TrimSpace(query.PostalCode))
	}
	if query.City != "" {
		parts = append(parts, "city", strings.ToLower(strings.TrimSpace(query.City)))
	}
	if query.Code != "" {
		parts = append(parts, "code", query.Code)
	}
	return strings.Join(parts, ":")
}

func countShipmentCreate(provider courier.Code, result string) {
	if obs.ShipmentCreateTotal != nil {
		obs.ShipmentCreateTotal.WithLabelValues(string(provider), result).Inc()
	}
}

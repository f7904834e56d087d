package courier

import "context"

// Provider wraps one courier's HTTP API behind a uniform contract.
// Implementations must normalise every upstream failure into *ProviderError.
type Provider interface {
	// Code returns the stable provider identifier.
	Code() Code
	// IsConfigured reports whether required credentials are present. The
	// aggregator silently skips unconfigured providers.
	IsConfigured() bool
	// Quote returns priced delivery options for the request.
	Quote(ctx context.Context, req QuoteRequest) ([]Quote, error)
	// CreateShipment books a shipment. Providers without a booking API
	// return ErrNotSupported.
	CreateShipment(ctx context.Context, input ShipmentInput) (ShipmentResult, error)
	// Track fetches tracking state. Providers without a tracking API
	// return ErrNotSupported.
	Track(ctx context.Context, trackingNumber string) (TrackInfo, error)
	// PickupPoints lists pickup points matching the query.
	PickupPoints(ctx context.Context, query PickupPointQuery) ([]PickupPoint, error)
}

// Registry holds the provider set assembled at startup. It is passed by
// reference into the aggregator and resolver so tests can substitute fakes.
type Registry struct {
	ordered []Provider
	byCode  map[Code]Provider
}

// NewRegistry constructs a registry preserving the given provider order.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byCode: make(map[Code]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, exists := r.byCode[p.Code()]; exists {
			continue
		}
		r.ordered = append(r.ordered, p)
		r.byCode[p.Code()] = p
	}
	return r
}

// Get returns the provider registered under code.
func (r *Registry) Get(code Code) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.byCode[code]
	return p, ok
}

// Configured returns the providers whose credentials are present, in
// registration order.
func (r *Registry) Configured() []Provider {
	if r == nil {
		return nil
	}
	out := make([]Provider, 0, len(r.ordered))
	for _, p := range r.ordered {
		if p.IsConfigured() {
			out = append(out, p)
		}
	}
	return out
}

// ConfiguredCodes returns the identifiers of configured providers.
func (r *Registry) ConfiguredCodes() []string {
	configured := r.Configured()
	out := make([]string, 0, len(configured))
	for _, p := range configured {
		out = append(out, string(p.Code()))
	}
	return out
}

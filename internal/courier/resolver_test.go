package courier

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dafnadaf/artist-sub000/internal/cache"
)

func newTestResolver(providers ...Provider) (*Resolver, *cache.Memory[PickupPoint]) {
	pointCache := cache.NewMemory[PickupPoint](24*time.Hour, 1000)
	return NewResolver(NewRegistry(providers...), pointCache, zerolog.Nop()), pointCache
}

func TestEnsureBelongsReturnsCachedPointWithoutNetwork(t *testing.T) {
	p := &fakeProvider{code: CDEK, configured: true, pointsErr: NewProviderError(CDEK, 0, "must not be called", nil, nil)}
	resolver, pointCache := newTestResolver(p)

	want := PickupPoint{Provider: CDEK, Code: "MSK123", City: "Москва"}
	pointCache.Set(pointCacheKey(CDEK, "MSK123"), want)

	got, err := resolver.EnsureBelongs(context.Background(), CDEK, "MSK123", PickupPointQuery{})
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Zero(t, p.pointCalls)
}

func TestEnsureBelongsFallsThroughNarrowingLookups(t *testing.T) {
	target := PickupPoint{Code: "SPB42", City: "Санкт-Петербург"}
	sibling := PickupPoint{Code: "SPB43", City: "Санкт-Петербург"}
	p := &fakeProvider{code: Boxberry, configured: true, points: map[string][]PickupPoint{
		"citycode": {},                // most specific lookup finds nothing
		"city":     {sibling, target}, // city listing contains the target
	}}
	resolver, _ := newTestResolver(p)

	cityCode := 78
	got, err := resolver.EnsureBelongs(context.Background(), Boxberry, "SPB42", PickupPointQuery{
		CityCode: &cityCode,
		City:     "Санкт-Петербург",
	})
	require.NoError(t, err)
	require.Equal(t, "SPB42", got.Code)
	require.Equal(t, Boxberry, got.Provider)
	require.Equal(t, 2, p.pointCalls)

	// the sibling point from the same listing was warmed into the cache
	p.pointsErr = NewProviderError(Boxberry, 0, "must not be called", nil, nil)
	warmed, err := resolver.EnsureBelongs(context.Background(), Boxberry, "SPB43", PickupPointQuery{})
	require.NoError(t, err)
	require.Equal(t, "SPB43", warmed.Code)
	require.Equal(t, 2, p.pointCalls)
}

func TestEnsureBelongsRejectsUnknownProvider(t *testing.T) {
	resolver, _ := newTestResolver(&fakeProvider{code: CDEK, configured: true})
	_, err := resolver.EnsureBelongs(context.Background(), Boxberry, "X1", PickupPointQuery{})
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestEnsureBelongsRejectsUnconfiguredProvider(t *testing.T) {
	resolver, _ := newTestResolver(&fakeProvider{code: CDEK, configured: false})
	_, err := resolver.EnsureBelongs(context.Background(), CDEK, "X1", PickupPointQuery{})
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestEnsureBelongsRequiresCode(t *testing.T) {
	resolver, _ := newTestResolver(&fakeProvider{code: CDEK, configured: true})
	_, err := resolver.EnsureBelongs(context.Background(), CDEK, "", PickupPointQuery{})
	require.ErrorIs(t, err, ErrMissingPickupCode)
}

func TestEnsureBelongsReportsMissingPoint(t *testing.T) {
	p := &fakeProvider{code: CDEK, configured: true, points: map[string][]PickupPoint{}}
	resolver, _ := newTestResolver(p)
	_, err := resolver.EnsureBelongs(context.Background(), CDEK, "NOPE", PickupPointQuery{City: "Москва"})
	require.ErrorIs(t, err, ErrPointNotFound)
}

func TestEnsureBelongsSurfacesListingError(t *testing.T) {
	p := &fakeProvider{code: CDEK, configured: true, pointsErr: NewProviderError(CDEK, 0, "down", nil, nil)}
	resolver, _ := newTestResolver(p)
	_, err := resolver.EnsureBelongs(context.Background(), CDEK, "X1", PickupPointQuery{})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
}

func TestListWarmsResolverCache(t *testing.T) {
	p := &fakeProvider{code: Boxberry, configured: true, points: map[string][]PickupPoint{
		"city": {{Code: "A1", City: "Казань"}, {Code: "A2", City: "Казань"}},
	}}
	resolver, _ := newTestResolver(p)

	points, err := resolver.List(context.Background(), Boxberry, PickupPointQuery{City: "Казань"})
	require.NoError(t, err)
	require.Len(t, points, 2)

	p.pointsErr = NewProviderError(Boxberry, 0, "must not be called", nil, nil)
	got, err := resolver.EnsureBelongs(context.Background(), Boxberry, "A2", PickupPointQuery{})
	require.NoError(t, err)
	require.Equal(t, "A2", got.Code)
	require.Equal(t, 1, p.pointCalls)
}

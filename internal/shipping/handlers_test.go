package shipping_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dafnadaf/artist-sub000/internal/cache"
	"github.com/dafnadaf/artist-sub000/internal/courier"
	"github.com/dafnadaf/artist-sub000/internal/lock"
	"github.com/dafnadaf/artist-sub000/internal/shipping"
)

type stubProvider struct {
	mu         sync.Mutex
	code       courier.Code
	configured bool
	quotes     []courier.Quote
	quoteErr   error
	points     []courier.PickupPoint
	pointCalls int
	created    *courier.ShipmentInput
	createRes  courier.ShipmentResult
	createErr  error
	trackInfo  courier.TrackInfo
	trackErr   error
}

func (s *stubProvider) Code() courier.Code { return s.code }
func (s *stubProvider) IsConfigured() bool { return s.configured }

func (s *stubProvider) Quote(ctx context.Context, req courier.QuoteRequest) ([]courier.Quote, error) {
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	return append([]courier.Quote(nil), s.quotes...), nil
}

func (s *stubProvider) CreateShipment(ctx context.Context, input courier.ShipmentInput) (courier.ShipmentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = &input
	if s.createErr != nil {
		return courier.ShipmentResult{}, s.createErr
	}
	res := s.createRes
	if res.TrackingNumber == "" {
		res = courier.ShipmentResult{Provider: s.code, TrackingNumber: "TRK-100", OrderID: input.OrderID}
	}
	return res, nil
}

func (s *stubProvider) Track(ctx context.Context, trackingNumber string) (courier.TrackInfo, error) {
	if s.trackErr != nil {
		return courier.TrackInfo{}, s.trackErr
	}
	info := s.trackInfo
	info.Provider = s.code
	info.TrackingNumber = trackingNumber
	return info, nil
}

func (s *stubProvider) PickupPoints(ctx context.Context, query courier.PickupPointQuery) ([]courier.PickupPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointCalls++
	return append([]courier.PickupPoint(nil), s.points...), nil
}

type testEnv struct {
	handler *shipping.Handler
	router  chi.Router
}

func newTestEnv(t *testing.T, providers ...courier.Provider) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry := courier.NewRegistry(providers...)
	svc := &shipping.Service{
		Registry:   registry,
		Aggregator: courier.NewAggregator(registry, cache.NewMemory[[]courier.Quote](15*time.Minute, 0), zerolog.Nop()),
		Resolver:   courier.NewResolver(registry, cache.NewMemory[courier.PickupPoint](24*time.Hour, 1000), zerolog.Nop()),
		ListCache:  cache.NewRedisJSON(client, 24*time.Hour),
		Lock:       lock.Locker{R: client},
		Log:        zerolog.Nop(),
	}
	h := shipping.NewHandler(svc)
	r := chi.NewRouter()
	r.Route("/shipping", h.Routes)
	return &testEnv{handler: h, router: r}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func quoteBody() map[string]any {
	return map[string]any{
		"from":        map[string]any{"postalCode": "101000"},
		"to":          map[string]any{"postalCode": "190000"},
		"weightGrams": 1500,
	}
}

func TestQuoteEndpointAggregatesProviders(t *testing.T) {
	cdek := &stubProvider{code: courier.CDEK, configured: true, quotes: []courier.Quote{
		{ServiceName: "Посылка дверь-дверь", Price: 45000, Type: courier.DeliveryCourier},
		{ServiceName: "Посылка склад-склад", Price: 30000, Type: courier.DeliveryPickup, RequiresPickupPoint: true},
	}}
	boxberry := &stubProvider{code: courier.Boxberry, configured: true, quotes: []courier.Quote{
		{ServiceName: "Boxberry", Price: 35050, Type: courier.DeliveryPickup, RequiresPickupPoint: true},
	}}
	env := newTestEnv(t, cdek, boxberry)

	rr := env.do(t, http.MethodPost, "/shipping/quote", quoteBody())
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data struct {
			Quotes []courier.Quote `json:"quotes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Quotes, 3)
}

func TestQuoteEndpointRejectsNonPositiveWeight(t *testing.T) {
	env := newTestEnv(t, &stubProvider{code: courier.CDEK, configured: true})
	body := quoteBody()
	body["weightGrams"] = 0
	rr := env.do(t, http.MethodPost, "/shipping/quote", body)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQuoteEndpointRequiresLocations(t *testing.T) {
	env := newTestEnv(t, &stubProvider{code: courier.CDEK, configured: true})
	body := quoteBody()
	body["to"] = map[string]any{"city": "Москва"} // city alone is not enough
	rr := env.do(t, http.MethodPost, "/shipping/quote", body)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQuoteEndpointPropagatesTotalFailure(t *testing.T) {
	broken := &stubProvider{code: courier.CDEK, configured: true,
		quoteErr: courier.NewProviderError(courier.CDEK, 0, "upstream down", nil, nil)}
	env := newTestEnv(t, broken)

	rr := env.do(t, http.MethodPost, "/shipping/quote", quoteBody())
	require.Equal(t, http.StatusBadGateway, rr.Code)

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "UPSTREAM_ERROR", resp.Error.Code)
}

func createBody() map[string]any {
	return map[string]any{
		"orderId": "ORD-77",
		"quote": map[string]any{
			"provider":   "cdek",
			"tariffCode": "136",
			"type":       "courier",
		},
		"from":        map[string]any{"postalCode": "101000"},
		"to":          map[string]any{"postalCode": "190000", "city": "Санкт-Петербург"},
		"weightGrams": 1500,
		"recipient":   map[string]any{"name": "Иванов Иван", "phone": "+79990001122"},
		"items": []map[string]any{
			{"name": "Картина «Закат»", "price": 1200000, "quantity": 1, "weightGrams": 1500},
		},
	}
}

func TestCreateCourierShipment(t *testing.T) {
	cdek := &stubProvider{code: courier.CDEK, configured: true}
	env := newTestEnv(t, cdek)

	rr := env.do(t, http.MethodPost, "/shipping/create", createBody())
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Data courier.ShipmentResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "TRK-100", resp.Data.TrackingNumber)
	require.Equal(t, "ORD-77", resp.Data.OrderID)
	require.NotNil(t, cdek.created)
	require.Equal(t, "136", cdek.created.TariffCode)
}

func TestCreatePickupRequiresPointCode(t *testing.T) {
	env := newTestEnv(t, &stubProvider{code: courier.CDEK, configured: true})
	body := createBody()
	body["quote"] = map[string]any{"provider": "cdek", "tariffCode": "136", "type": "pickup", "requiresPickupPoint": true}
	rr := env.do(t, http.MethodPost, "/shipping/create", body)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreatePickupResolvesPoint(t *testing.T) {
	cdek := &stubProvider{code: courier.CDEK, configured: true, points: []courier.PickupPoint{
		{Code: "MSK7", City: "Санкт-Петербург", Schedule: "ежедневно 09:00-21:00"},
	}}
	env := newTestEnv(t, cdek)

	body := createBody()
	body["quote"] = map[string]any{"provider": "cdek", "tariffCode": "136", "type": "pickup", "requiresPickupPoint": true}
	body["pickupPointCode"] = "MSK7"
	rr := env.do(t, http.MethodPost, "/shipping/create", body)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, cdek.created.PickupPoint)
	require.Equal(t, "MSK7", cdek.created.PickupPoint.Code)
	require.Equal(t, courier.DeliveryPickup, cdek.created.Type)
}

func TestCreatePickupUnresolvablePointIs422(t *testing.T) {
	cdek := &stubProvider{code: courier.CDEK, configured: true, points: []courier.PickupPoint{{Code: "OTHER"}}}
	env := newTestEnv(t, cdek)

	body := createBody()
	body["quote"] = map[string]any{"provider": "cdek", "type": "pickup", "requiresPickupPoint": true}
	body["pickupPointCode"] = "MISSING"
	rr := env.do(t, http.MethodPost, "/shipping/create", body)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "UNPROCESSABLE", resp.Error.Code)
}

func TestCreateUnknownProviderIs400(t *testing.T) {
	env := newTestEnv(t, &stubProvider{code: courier.CDEK, configured: true})
	body := createBody()
	body["quote"] = map[string]any{"provider": "dhl"}
	rr := env.do(t, http.MethodPost, "/shipping/create", body)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTrackNormalisesStatuses(t *testing.T) {
	boxberry := &stubProvider{code: courier.Boxberry, configured: true, trackInfo: courier.TrackInfo{
		Status: "Поступил в пункт выдачи",
		History: []courier.TrackEvent{
			{Status: "Принят к доставке"},
			{Status: "Поступил в пункт выдачи"},
		},
	}}
	env := newTestEnv(t, boxberry)

	rr := env.do(t, http.MethodGet, "/shipping/track/boxberry/BB00012345", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data courier.TrackInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "ready_for_pickup", resp.Data.Status)
	require.Equal(t, "accepted", resp.Data.History[0].Status)
	require.Equal(t, "BB00012345", resp.Data.TrackingNumber)
}

func TestTrackUnsupportedOperationIs501(t *testing.T) {
	post := &stubProvider{code: courier.RussianPost, configured: true, trackErr: courier.ErrNotSupported}
	env := newTestEnv(t, post)

	rr := env.do(t, http.MethodGet, "/shipping/track/russianpost/RA1RU", nil)
	require.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestTrackUnknownProviderIs400(t *testing.T) {
	env := newTestEnv(t, &stubProvider{code: courier.CDEK, configured: true})
	rr := env.do(t, http.MethodGet, "/shipping/track/dhl/X1", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPvzEndpointAnnotatesOpenNow(t *testing.T) {
	boxberry := &stubProvider{code: courier.Boxberry, configured: true, points: []courier.PickupPoint{
		{Code: "A1", City: "Москва", Schedule: "ежедневно 09:00-21:00"},
		{Code: "A2", City: "Москва", Schedule: "закрыт"},
	}}
	env := newTestEnv(t, boxberry)
	// pin the clock inside the open window
	env.handler.Now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }

	rr := env.do(t, http.MethodGet, "/shipping/pvz?provider=boxberry&city=Москва", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data struct {
			Points []struct {
				Code    string `json:"code"`
				OpenNow bool   `json:"openNow"`
			} `json:"points"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Points, 2)
	require.True(t, resp.Data.Points[0].OpenNow)
	require.False(t, resp.Data.Points[1].OpenNow)
}

func TestPvzEndpointServesSecondRequestFromRedisCache(t *testing.T) {
	boxberry := &stubProvider{code: courier.Boxberry, configured: true, points: []courier.PickupPoint{
		{Code: "A1", City: "Москва"},
	}}
	env := newTestEnv(t, boxberry)

	rr := env.do(t, http.MethodGet, "/shipping/pvz?provider=boxberry&city=Москва", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodGet, "/shipping/pvz?provider=boxberry&city=Москва", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, boxberry.pointCalls)
}

func TestPvzEndpointRequiresFilter(t *testing.T) {
	env := newTestEnv(t, &stubProvider{code: courier.Boxberry, configured: true})
	rr := env.do(t, http.MethodGet, "/shipping/pvz?provider=boxberry", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

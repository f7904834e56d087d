package courier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dafnadaf/artist-sub000/internal/resilience"
)

func newBoxberryUnderTest(t *testing.T, handler http.HandlerFunc) *BoxberryClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBoxberryClient("test-token", srv.URL, &resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1})
}

func TestBoxberryQuoteReturnsSinglePickupTariff(t *testing.T) {
	bb := newBoxberryUnderTest(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "test-token", q.Get("token"))
		require.Equal(t, "DeliveryCosts", q.Get("method"))
		require.Equal(t, "1500", q.Get("weight"))
		require.Equal(t, "190000", q.Get("zip"))
		// numeric fields arrive as strings in this API
		_, _ = w.Write([]byte(`{"price":"350.50","price_base":"300","delivery_period":"3"}`))
	})

	quotes, err := bb.Quote(context.Background(), testQuoteRequest())
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	q := quotes[0]
	require.Equal(t, int64(35050), q.Price)
	require.Equal(t, DeliveryPickup, q.Type)
	require.True(t, q.RequiresPickupPoint)
	require.Equal(t, 3, *q.DaysMin)
	require.Equal(t, 3, *q.DaysMax)
	meta, ok := q.Meta.(BoxberryMeta)
	require.True(t, ok)
	require.Equal(t, 3, meta.DeliveryPeriod)
	require.Equal(t, "300", meta.PriceBase)
}

func TestBoxberryQuoteSurfacesAPIError(t *testing.T) {
	bb := newBoxberryUnderTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"err":"Неверный индекс получателя"}`))
	})

	_, err := bb.Quote(context.Background(), testQuoteRequest())
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, Boxberry, perr.Provider)
	require.Contains(t, perr.Message, "Неверный индекс")
}

func TestBoxberryPickupPointsParsesListing(t *testing.T) {
	bb := newBoxberryUnderTest(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ListPoints", r.URL.Query().Get("method"))
		_, _ = w.Write([]byte(`[
			{"Code":"01001","Name":"Boxberry Арбат","Address":"ул. Арбат, 12","Zip":"119002",
			 "CityName":"Москва","CityCode":"68","GPS":"55.749,37.591",
			 "WorkShedule":"пн-пт 10:00-20:00","OnlyPrepaidOrders":"No","Acquiring":"Yes","TriaCheck":"Yes"},
			{"Code":"01002","Name":"Boxberry Тверская","Address":"ул. Тверская, 7","Zip":"125009",
			 "CityName":"Москва","CityCode":"68","GPS":"","WorkShedule":"ежедневно 09:00-21:00",
			 "OnlyPrepaidOrders":"Yes","Acquiring":"No","TriaCheck":"No"}
		]`))
	})

	points, err := bb.PickupPoints(context.Background(), PickupPointQuery{City: "Москва"})
	require.NoError(t, err)
	require.Len(t, points, 2)

	first := points[0]
	require.Equal(t, Boxberry, first.Provider)
	require.Equal(t, "01001", first.Code)
	require.Equal(t, 68, first.CityCode)
	require.Equal(t, "пн-пт 10:00-20:00", first.Schedule)
	require.NotNil(t, first.Location)
	require.InDelta(t, 55.749, first.Location.Lat, 0.0001)
	require.InDelta(t, 37.591, first.Location.Lon, 0.0001)
	require.True(t, first.Features.Cash)
	require.True(t, first.Features.Cashless)
	require.True(t, first.Features.Fitting)

	second := points[1]
	require.Nil(t, second.Location)
	require.False(t, second.Features.Cash)
}

func TestBoxberryPickupPointsFiltersByCode(t *testing.T) {
	bb := newBoxberryUnderTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Code":"01001","CityName":"Москва"},{"Code":"01002","CityName":"Москва"}]`))
	})

	points, err := bb.PickupPoints(context.Background(), PickupPointQuery{Code: "01002"})
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "01002", points[0].Code)
}

func TestBoxberryCreateShipmentRequiresPickupPoint(t *testing.T) {
	bb := NewBoxberryClient("test-token", "", nil)
	_, err := bb.CreateShipment(context.Background(), ShipmentInput{OrderID: "A-1"})
	require.ErrorIs(t, err, ErrMissingPickupCode)
}

func TestBoxberryCreateShipmentReturnsTrack(t *testing.T) {
	bb := newBoxberryUnderTest(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ParselCreate", r.URL.Query().Get("method"))
		_, _ = w.Write([]byte(`{"track":"BB00012345","label":"https://boxberry.example/label/BB00012345"}`))
	})

	res, err := bb.CreateShipment(context.Background(), ShipmentInput{
		OrderID:     "A-1",
		WeightGrams: 1500,
		Recipient:   Recipient{Name: "Иванов Иван", Phone: "+79990001122"},
		PickupPoint: &PickupPoint{Code: "01001"},
	})
	require.NoError(t, err)
	require.Equal(t, "BB00012345", res.TrackingNumber)
	require.Equal(t, "A-1", res.OrderID)
	require.NotEmpty(t, res.LabelURL)
}

func TestBoxberryTrackParsesStatuses(t *testing.T) {
	bb := newBoxberryUnderTest(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ListStatuses", r.URL.Query().Get("method"))
		require.Equal(t, "BB00012345", r.URL.Query().Get("ImId"))
		_, _ = w.Write([]byte(`[
			{"Date":"2026-03-02 10:00:00","Name":"Принят к доставке","Status":"accepted","City":"Москва"},
			{"Date":"2026-03-04 18:30:00","Name":"Поступил в пункт выдачи","Status":"arrived","City":"Санкт-Петербург"}
		]`))
	})

	info, err := bb.Track(context.Background(), "BB00012345")
	require.NoError(t, err)
	require.Equal(t, "arrived", info.Status)
	require.Len(t, info.History, 2)
	require.Equal(t, "Москва", info.History[0].Location)
	require.False(t, info.History[0].OccurredAt.IsZero())
}

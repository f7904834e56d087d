package courier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dafnadaf/artist-sub000/internal/resilience"
)

func TestRussianPostQuoteReturnsKopeckRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/1.0/tariff", r.URL.Path)
		require.Equal(t, "AccessToken app-token", r.Header.Get("Authorization"))
		require.Equal(t, "Basic dXNlcjpwYXNz", r.Header.Get("X-User-Authorization"))
		_, _ = w.Write([]byte(`{
			"total-rate": 25000,
			"total-vat": 5000,
			"delivery-time": {"min-days": 3, "max-days": 6},
			"ground-rate": {"rate": 22000},
			"object": 27030
		}`))
	}))
	t.Cleanup(srv.Close)

	post := NewRussianPostClient("app-token", "dXNlcjpwYXNz", srv.URL, &resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1})
	quotes, err := post.Quote(context.Background(), testQuoteRequest())
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	q := quotes[0]
	require.Equal(t, int64(30000), q.Price)
	require.Equal(t, DeliveryCourier, q.Type)
	require.False(t, q.RequiresPickupPoint)
	require.Equal(t, 3, *q.DaysMin)
	require.Equal(t, 6, *q.DaysMax)
	meta, ok := q.Meta.(RussianPostMeta)
	require.True(t, ok)
	require.Equal(t, 27030, meta.ObjectID)
	require.Equal(t, int64(22000), meta.GroundRateKop)
}

func TestRussianPostQuoteRequiresPostalCodes(t *testing.T) {
	post := NewRussianPostClient("app-token", "key", "", nil)
	req := testQuoteRequest()
	req.To.PostalCode = ""
	_, err := post.Quote(context.Background(), req)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, http.StatusBadRequest, perr.HTTPStatus())
}

func TestRussianPostUnsupportedOperations(t *testing.T) {
	post := NewRussianPostClient("app-token", "key", "", nil)

	_, err := post.CreateShipment(context.Background(), ShipmentInput{})
	require.ErrorIs(t, err, ErrNotSupported)

	_, err = post.Track(context.Background(), "RA123456789RU")
	require.ErrorIs(t, err, ErrNotSupported)

	_, err = post.PickupPoints(context.Background(), PickupPointQuery{})
	require.ErrorIs(t, err, ErrNotSupported)
}

package shipping_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dafnadaf/artist-sub000/internal/courier"
	"github.com/dafnadaf/artist-sub000/internal/shipping"
)

func TestMapExternalStatus(t *testing.T) {
	cases := []struct {
		provider courier.Code
		external string
		want     shipping.Status
	}{
		{courier.CDEK, "ACCEPTED", shipping.StatusAccepted},
		{courier.CDEK, "accepted_in_transit_city", shipping.StatusInTransit},
		{courier.CDEK, "ACCEPTED_AT_PICK_UP_POINT", shipping.StatusReadyForPickup},
		{courier.CDEK, "DELIVERED", shipping.StatusDelivered},
		{courier.CDEK, "NOT_DELIVERED", shipping.StatusReturned},
		{courier.Boxberry, "Принят к доставке", shipping.StatusAccepted},
		{courier.Boxberry, "Поступил в пункт выдачи", shipping.StatusReadyForPickup},
		{courier.Boxberry, "Выдан", shipping.StatusDelivered},
		{courier.RussianPost, "in_transit", shipping.StatusInTransit},
		{courier.RussianPost, "out_for_delivery", shipping.StatusOutForDelivery},
		{courier.RussianPost, "возврат отправителю", shipping.StatusReturned},
		{courier.CDEK, "", shipping.StatusPending},
		{courier.CDEK, "SOME_NEW_STATUS", shipping.StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.external, func(t *testing.T) {
			require.Equal(t, tc.want, shipping.MapExternalStatus(tc.provider, tc.external))
		})
	}
}

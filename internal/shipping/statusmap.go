package shipping

import (
	"strings"

	"github.com/dafnadaf/artist-sub000/internal/courier"
)

// Status is the normalised shipment status shared with the order collaborator.
type Status string

const (
	StatusPending        Status = "pending"
	StatusAccepted       Status = "accepted"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusDelivered      Status = "delivered"
	StatusReturned       Status = "returned"
	StatusCanceled       Status = "canceled"
)

// cdekStatusCodes maps CDEK webhook status codes onto normalised statuses.
// Codes not listed fall through to the generic label table.
var cdekStatusCodes = map[string]Status{
	"ACCEPTED":                          StatusAccepted,
	"CREATED":                           StatusAccepted,
	"RECEIVED_AT_SHIPMENT_WAREHOUSE":    StatusAccepted,
	"READY_FOR_SHIPMENT_IN_SENDER_CITY": StatusInTransit,
	"SENT_TO_TRANSIT_CITY":              StatusInTransit,
	"ACCEPTED_IN_TRANSIT_CITY":          StatusInTransit,
	"ACCEPTED_AT_PICK_UP_POINT":         StatusReadyForPickup,
	"TAKEN_BY_COURIER":                  StatusOutForDelivery,
	"DELIVERED":                         StatusDelivered,
	"NOT_DELIVERED":                     StatusReturned,
}

// boxberryStatusLabels maps the free-text Boxberry status names.
var boxberryStatusLabels = map[string]Status{
	"принят к доставке":              StatusAccepted,
	"в пути":                         StatusInTransit,
	"передан на курьерскую доставку": StatusOutForDelivery,
	"поступил в пункт выдачи":        StatusReadyForPickup,
	"выдан":                          StatusDelivered,
	"возвращен":                      StatusReturned,
}

// MapExternalStatus normalises a courier-specific status label. Unknown labels
// map to pending rather than failing, because couriers add statuses without
// notice.
func MapExternalStatus(provider courier.Code, external string) Status {
	normalized := strings.ToLower(strings.TrimSpace(external))
	if normalized == "" {
		return StatusPending
	}
	switch provider {
	case courier.CDEK:
		if status, ok := cdekStatusCodes[strings.ToUpper(normalized)]; ok {
			return status
		}
	case courier.Boxberry:
		if status, ok := boxberryStatusLabels[normalized]; ok {
			return status
		}
	}

	switch {
	case strings.Contains(normalized, "deliver") && !strings.Contains(normalized, "out"):
		return StatusDelivered
	case strings.Contains(normalized, "выдан"):
		return StatusDelivered
	case strings.Contains(normalized, "out_for_delivery"), strings.Contains(normalized, "out-for-delivery"):
		return StatusOutForDelivery
	case strings.Contains(normalized, "pickup"), strings.Contains(normalized, "пункт выдачи"):
		return StatusReadyForPickup
	case strings.Contains(normalized, "transit"), strings.Contains(normalized, "в пути"):
		return StatusInTransit
	case strings.Contains(normalized, "accept"), strings.Contains(normalized, "принят"), strings.Contains(normalized, "created"):
		return StatusAccepted
	case strings.Contains(normalized, "return"), strings.Contains(normalized, "возврат"):
		return StatusReturned
	case strings.Contains(normalized, "cancel"), strings.Contains(normalized, "отмен"):
		return StatusCanceled
	}
	return StatusPending
}

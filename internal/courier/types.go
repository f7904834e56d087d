package courier

import (
	"strings"
	"time"
)

// Code identifies a supported courier provider.
type Code string

const (
	CDEK        Code = "cdek"
	Boxberry    Code = "boxberry"
	RussianPost Code = "russianpost"
)

// ParseCode normalises a provider name supplied by a client.
func ParseCode(value string) (Code, bool) {
	switch Code(strings.ToLower(strings.TrimSpace(value))) {
	case CDEK:
		return CDEK, true
	case Boxberry:
		return Boxberry, true
	case RussianPost:
		return RussianPost, true
	}
	return "", false
}

// DeliveryType distinguishes pickup point delivery from door courier delivery.
type DeliveryType string

const (
	DeliveryPickup  DeliveryType = "pickup"
	DeliveryCourier DeliveryType = "courier"
)

// Location identifies an origin or destination. At least one of CityCode or
// PostalCode must be present on a quote request; City is an optional
// human-readable hint used for pickup point lookups.
type Location struct {
	CityCode   *int   `json:"cityCode,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
}

// Empty reports whether the location carries no usable identifier.
func (l Location) Empty() bool {
	return l.CityCode == nil && strings.TrimSpace(l.PostalCode) == "" && strings.TrimSpace(l.City) == ""
}

// QuoteRequest describes a shipping rate request.
type QuoteRequest struct {
	From        Location `json:"from"`
	To          Location `json:"to"`
	WeightGrams int      `json:"weightGrams"`
	LengthCm    int      `json:"lengthCm,omitempty"`
	WidthCm     int      `json:"widthCm,omitempty"`
	HeightCm    int      `json:"heightCm,omitempty"`
}

// Meta carries provider-specific tariff details alongside a quote.
type Meta interface {
	meta()
}

// CdekMeta retains the CDEK fields the checkout flow inspects.
type CdekMeta struct {
	DeliveryMode int    `json:"deliveryMode"`
	TariffName   string `json:"tariffName,omitempty"`
}

// BoxberryMeta retains raw Boxberry pricing details.
type BoxberryMeta struct {
	DeliveryPeriod int    `json:"deliveryPeriod,omitempty"`
	PriceBase      string `json:"priceBase,omitempty"`
}

// RussianPostMeta retains the raw tariff breakdown returned by the API.
type RussianPostMeta struct {
	ObjectID      int   `json:"objectId,omitempty"`
	GroundRateKop int64 `json:"groundRateKop,omitempty"`
}

func (CdekMeta) meta()        {}
func (BoxberryMeta) meta()    {}
func (RussianPostMeta) meta() {}

// Quote is one priced delivery option returned by a provider. Price is in
// minor currency units (kopecks). Type is pickup exactly when
// RequiresPickupPoint is set.
type Quote struct {
	Provider            Code         `json:"provider"`
	ServiceName         string       `json:"serviceName"`
	Price               int64        `json:"price"`
	DaysMin             *int         `json:"daysMin,omitempty"`
	DaysMax             *int         `json:"daysMax,omitempty"`
	Type                DeliveryType `json:"type"`
	RequiresPickupPoint bool         `json:"requiresPickupPoint"`
	TariffCode          string       `json:"tariffCode,omitempty"`
	Meta                Meta         `json:"meta,omitempty"`
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Features describes the payment and service options at a pickup point.
type Features struct {
	Cash     bool `json:"cash"`
	Cashless bool `json:"cashless"`
	Fitting  bool `json:"fitting"`
}

// PickupPoint is a parcel pickup location (PVZ). Identity is (Provider, Code).
type PickupPoint struct {
	Provider   Code      `json:"provider"`
	Code       string    `json:"code"`
	Name       string    `json:"name,omitempty"`
	Address    string    `json:"address,omitempty"`
	PostalCode string    `json:"postalCode,omitempty"`
	City       string    `json:"city,omitempty"`
	CityCode   int       `json:"cityCode,omitempty"`
	Location   *GeoPoint `json:"location,omitempty"`
	Schedule   string    `json:"schedule,omitempty"`
	Features   Features  `json:"features"`
}

// PickupPointQuery narrows a pickup point listing. Exactly one field is
// typically set; providers ignore fields they cannot filter on.
type PickupPointQuery struct {
	CityCode   *int
	PostalCode string
	City       string
	Code       string
}

// Empty reports whether the query has no usable filter.
func (q PickupPointQuery) Empty() bool {
	return q.CityCode == nil && q.PostalCode == "" && q.City == "" && q.Code == ""
}

// Recipient identifies the person receiving a shipment.
type Recipient struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
}

// Item is one parcel line: an artwork or print being shipped.
type Item struct {
	Name        string `json:"name"`
	PriceMinor  int64  `json:"price"`
	Quantity    int    `json:"quantity"`
	WeightGrams int    `json:"weightGrams"`
}

// ShipmentInput carries everything a provider needs to book a shipment.
type ShipmentInput struct {
	OrderID     string
	TariffCode  string
	Type        DeliveryType
	From        Location
	To          Location
	WeightGrams int
	Recipient   Recipient
	Items       []Item
	PickupPoint *PickupPoint
}

// ShipmentResult is the provider's booking confirmation.
type ShipmentResult struct {
	Provider       Code   `json:"provider"`
	TrackingNumber string `json:"trackingNumber"`
	OrderID        string `json:"orderId"`
	LabelURL       string `json:"labelUrl,omitempty"`
}

// TrackEvent is a single tracking history entry.
type TrackEvent struct {
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	OccurredAt  time.Time `json:"occurredAt,omitempty"`
}

// TrackInfo is the normalised tracking state of a shipment.
type TrackInfo struct {
	Provider       Code         `json:"provider"`
	TrackingNumber string       `json:"trackingNumber"`
	Status         string       `json:"status"`
	History        []TrackEvent `json:"history"`
}

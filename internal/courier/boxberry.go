package courier

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dafnadaf/artist-sub000/internal/resilience"
)

const boxberryDefaultBaseURL = "https://api.boxberry.ru/json.php"

// Boxberry integrates the legacy Boxberry JSON API. Every call is the same
// endpoint with a method name and token in the query string, and most numeric
// fields come back as strings, so decoding is deliberately permissive.
type BoxberryClient struct {
	Token   string
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// NewBoxberryClient constructs the Boxberry adapter.
func NewBoxberryClient(token, baseURL string, client *resilience.HTTPClient) *BoxberryClient {
	return &BoxberryClient{Token: token, BaseURL: baseURL, HTTP: client}
}

// Code implements Provider.
func (b *BoxberryClient) Code() Code { return Boxberry }

// IsConfigured implements Provider.
func (b *BoxberryClient) IsConfigured() bool { return b != nil && b.Token != "" }

func (b *BoxberryClient) methodURL(method string, params url.Values) string {
	base := boxberryDefaultBaseURL
	if strings.TrimSpace(b.BaseURL) != "" {
		base = strings.TrimRight(b.BaseURL, "/")
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", b.Token)
	params.Set("method", method)
	return base + "?" + params.Encode()
}

// looseString tolerates upstream fields that arrive as either a JSON string
// or a number.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var str string
	if json.Unmarshal(data, &str) == nil {
		*s = looseString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = looseString(num.String())
	return nil
}

func (s looseString) String() string { return string(s) }

func (s looseString) Float() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	return v, err == nil
}

func (s looseString) Int() (int, bool) {
	v, ok := s.Float()
	return int(v), ok
}

type boxberryCost struct {
	Price          looseString `json:"price"`
	PriceBase      looseString `json:"price_base"`
	DeliveryPeriod looseString `json:"delivery_period"`
	Error          looseString `json:"err"`
}

// Quote implements Provider. Boxberry's DeliveryCosts method prices a single
// pickup-point tariff, so the result is always exactly one quote flagged as
// requiring a pickup point.
func (b *BoxberryClient) Quote(ctx context.Context, req QuoteRequest) ([]Quote, error) {
	if req.WeightGrams <= 0 {
		return nil, ErrInvalidWeight
	}
	if !b.IsConfigured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{"weight": {strconv.Itoa(req.WeightGrams)}}
	if zip := strings.TrimSpace(req.To.PostalCode); zip != "" {
		params.Set("zip", zip)
	}
	if req.HeightCm > 0 {
		params.Set("height", strconv.Itoa(req.HeightCm))
	}
	if req.WidthCm > 0 {
		params.Set("width", strconv.Itoa(req.WidthCm))
	}
	if req.LengthCm > 0 {
		params.Set("depth", strconv.Itoa(req.LengthCm))
	}

	var cost boxberryCost
	err := doJSON(ctx, b.HTTP, Boxberry, jsonCall{
		method: http.MethodGet,
		url:    b.methodURL("DeliveryCosts", params),
	}, &cost)
	if err != nil {
		return nil, err
	}
	if msg := strings.TrimSpace(cost.Error.String()); msg != "" {
		return nil, NewProviderError(Boxberry, 0, msg, nil, nil)
	}
	price, ok := cost.Price.Float()
	if !ok {
		return nil, NewProviderError(Boxberry, 0, "cost response missing price", nil, nil)
	}

	quote := Quote{
		Provider:            Boxberry,
		ServiceName:         "Boxberry",
		Price:               int64(math.Round(price * 100)),
		Type:                DeliveryPickup,
		RequiresPickupPoint: true,
	}
	meta := BoxberryMeta{PriceBase: cost.PriceBase.String()}
	if period, ok := cost.DeliveryPeriod.Int(); ok && period > 0 {
		quote.DaysMin = &period
		max := period
		quote.DaysMax = &max
		meta.DeliveryPeriod = period
	}
	quote.Meta = meta
	return []Quote{quote}, nil
}

type boxberryPoint struct {
	Code               looseString `json:"Code"`
	Name               looseString `json:"Name"`
	Address            looseString `json:"Address"`
	Zip                looseString `json:"Zip"`
	CityName           looseString `json:"CityName"`
	CityCode           looseString `json:"CityCode"`
	GPS                looseString `json:"GPS"`
	WorkShedule        looseString `json:"WorkShedule"`
	OnlyPrepaidOrders  looseString `json:"OnlyPrepaidOrders"`
	AcquiringAvailable looseString `json:"Acquiring"`
	Fitting            looseString `json:"TriaCheck"`
}

// PickupPoints implements Provider via the ListPoints method. Boxberry has no
// by-code lookup, so a code filter is applied client-side over the listing.
func (b *BoxberryClient) PickupPoints(ctx context.Context, query PickupPointQuery) ([]PickupPoint, error) {
	if !b.IsConfigured() {
		return nil, ErrNotConfigured
	}
	params := url.Values{"prepaid": {"1"}}
	if query.CityCode != nil {
		params.Set("CityCode", strconv.Itoa(*query.CityCode))
	}

	var points []boxberryPoint
	err := doJSON(ctx, b.HTTP, Boxberry, jsonCall{
		method: http.MethodGet,
		url:    b.methodURL("ListPoints", params),
	}, &points)
	if err != nil {
		return nil, err
	}

	out := make([]PickupPoint, 0, len(points))
	for _, p := range points {
		point := PickupPoint{
			Provider:   Boxberry,
			Code:       p.Code.String(),
			Name:       p.Name.String(),
			Address:    p.Address.String(),
			PostalCode: p.Zip.String(),
			City:       p.CityName.String(),
			Schedule:   p.WorkShedule.String(),
			Features: Features{
				Cash:     !strings.EqualFold(p.OnlyPrepaidOrders.String(), "Yes"),
				Cashless: strings.EqualFold(p.AcquiringAvailable.String(), "Yes"),
				Fitting:  strings.EqualFold(p.Fitting.String(), "Yes"),
			},
		}
		if code, ok := p.CityCode.Int(); ok {
			point.CityCode = code
		}
		if gps := parseGPS(p.GPS.String()); gps != nil {
			point.Location = gps
		}
		if !b.matchesQuery(point, query) {
			continue
		}
		out = append(out, point)
	}
	return out, nil
}

func (b *BoxberryClient) matchesQuery(point PickupPoint, query PickupPointQuery) bool {
	if query.Code != "" && point.Code != query.Code {
		return false
	}
	if query.PostalCode != "" && point.PostalCode != strings.TrimSpace(query.PostalCode) {
		return false
	}
	if query.City != "" && !strings.EqualFold(point.City, strings.TrimSpace(query.City)) {
		return false
	}
	return true
}

// parseGPS splits Boxberry's "lat,lon" coordinate string.
func parseGPS(raw string) *GeoPoint {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 2 {
		return nil
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLon != nil {
		return nil
	}
	return &GeoPoint{Lat: lat, Lon: lon}
}

type boxberryParsel struct {
	Track looseString `json:"track"`
	Label looseString `json:"label"`
	Error looseString `json:"err"`
}

// CreateShipment implements Provider via the ParselCreate method.
func (b *BoxberryClient) CreateShipment(ctx context.Context, input ShipmentInput) (ShipmentResult, error) {
	if !b.IsConfigured() {
		return ShipmentResult{}, ErrNotConfigured
	}
	if input.PickupPoint == nil || input.PickupPoint.Code == "" {
		return ShipmentResult{}, ErrMissingPickupCode
	}

	items := make([]map[string]any, 0, len(input.Items))
	for _, item := range input.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, map[string]any{
			"name":     item.Name,
			"quantity": strconv.Itoa(qty),
			"price":    formatMinor(item.PriceMinor),
		})
	}
	body := map[string]any{
		"updateByTrack": "",
		"order_id":      input.OrderID,
		"vid":           "1", // delivery to a pickup point
		"shop": map[string]any{
			"name": input.PickupPoint.Code,
		},
		"customer": map[string]any{
			"fio":   input.Recipient.Name,
			"phone": input.Recipient.Phone,
			"email": input.Recipient.Email,
		},
		"weights": map[string]any{
			"weight": strconv.Itoa(input.WeightGrams),
		},
		"items": items,
	}

	var resp boxberryParsel
	err := doJSON(ctx, b.HTTP, Boxberry, jsonCall{
		method: http.MethodPost,
		url:    b.methodURL("ParselCreate", nil),
		body:   map[string]any{"sdata": body},
	}, &resp)
	if err != nil {
		return ShipmentResult{}, err
	}
	if msg := strings.TrimSpace(resp.Error.String()); msg != "" {
		return ShipmentResult{}, NewProviderError(Boxberry, 0, msg, nil, nil)
	}
	if resp.Track.String() == "" {
		return ShipmentResult{}, NewProviderError(Boxberry, 0, "parsel response missing track", nil, nil)
	}
	return ShipmentResult{
		Provider:       Boxberry,
		TrackingNumber: resp.Track.String(),
		OrderID:        input.OrderID,
		LabelURL:       resp.Label.String(),
	}, nil
}

type boxberryStatus struct {
	Date    looseString `json:"Date"`
	Name    looseString `json:"Name"`
	Status  looseString `json:"Status"`
	City    looseString `json:"City"`
	Comment looseString `json:"Comment"`
}

// Track implements Provider via the ListStatuses method.
func (b *BoxberryClient) Track(ctx context.Context, trackingNumber string) (TrackInfo, error) {
	if !b.IsConfigured() {
		return TrackInfo{}, ErrNotConfigured
	}
	params := url.Values{"ImId": {trackingNumber}}
	var statuses []boxberryStatus
	err := doJSON(ctx, b.HTTP, Boxberry, jsonCall{
		method: http.MethodGet,
		url:    b.methodURL("ListStatuses", params),
	}, &statuses)
	if err != nil {
		return TrackInfo{}, err
	}

	info := TrackInfo{Provider: Boxberry, TrackingNumber: trackingNumber}
	for _, s := range statuses {
		event := TrackEvent{
			Status:      firstNonEmpty(s.Status.String(), s.Name.String()),
			Description: firstNonEmpty(s.Comment.String(), s.Name.String()),
			Location:    s.City.String(),
		}
		if ts, ok := parseBoxberryDate(s.Date.String()); ok {
			event.OccurredAt = ts
		}
		info.History = append(info.History, event)
	}
	if len(info.History) > 0 {
		info.Status = info.History[len(info.History)-1].Status
	}
	return info, nil
}

// parseBoxberryDate tries the handful of timestamp layouts the API is known
// to emit.
func parseBoxberryDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01-02 15:04:05", "02.01.2006 15:04:05", "02.01.2006", time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func formatMinor(minor int64) string {
	return strconv.FormatFloat(float64(minor)/100, 'f', 2, 64)
}

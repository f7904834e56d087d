package courier

import (
	"context"
	"net/http"
	"strings"

	"github.com/dafnadaf/artist-sub000/internal/resilience"
)

const russianPostDefaultBaseURL = "https://otpravka-api.pochta.ru"

// RussianPostClient integrates the Russian Post (Отправка) tariff API. The
// integration is quote-only: shipment booking and tracking live behind
// separate contracts we do not hold, so those operations report
// ErrNotSupported.
type RussianPostClient struct {
	Token   string // application token, sent as AccessToken
	AuthKey string // base64 of login:password, sent as X-User-Authorization
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// NewRussianPostClient constructs the Russian Post adapter.
func NewRussianPostClient(token, authKey, baseURL string, client *resilience.HTTPClient) *RussianPostClient {
	return &RussianPostClient{Token: token, AuthKey: authKey, BaseURL: baseURL, HTTP: client}
}

// Code implements Provider.
func (p *RussianPostClient) Code() Code { return RussianPost }

// IsConfigured implements Provider.
func (p *RussianPostClient) IsConfigured() bool {
	return p != nil && p.Token != "" && p.AuthKey != ""
}

func (p *RussianPostClient) baseURL() string {
	if strings.TrimSpace(p.BaseURL) != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	return russianPostDefaultBaseURL
}

type russianPostTariffResponse struct {
	TotalRate    int64 `json:"total-rate"`
	TotalVat     int64 `json:"total-vat"`
	DeliveryTime struct {
		MinDays int `json:"min-days"`
		MaxDays int `json:"max-days"`
	} `json:"delivery-time"`
	GroundRate struct {
		Rate int64 `json:"rate"`
	} `json:"ground-rate"`
	ObjectID int `json:"object"`
}

// Quote implements Provider via POST /1.0/tariff. Rates come back in kopecks
// already, so no unit conversion happens here.
func (p *RussianPostClient) Quote(ctx context.Context, req QuoteRequest) ([]Quote, error) {
	if req.WeightGrams <= 0 {
		return nil, ErrInvalidWeight
	}
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	from := strings.TrimSpace(req.From.PostalCode)
	to := strings.TrimSpace(req.To.PostalCode)
	if from == "" || to == "" {
		return nil, NewProviderError(RussianPost, http.StatusBadRequest, "postal codes are required for a tariff", nil, nil)
	}

	body := map[string]any{
		"index-from":    from,
		"index-to":      to,
		"mass":          req.WeightGrams,
		"mail-category": "ORDINARY",
		"mail-type":     "POSTAL_PARCEL",
		"fragile":       true,
	}
	var resp russianPostTariffResponse
	err := doJSON(ctx, p.HTTP, RussianPost, jsonCall{
		method: http.MethodPost,
		url:    p.baseURL() + "/1.0/tariff",
		body:   body,
		headers: map[string]string{
			"Authorization":        "AccessToken " + p.Token,
			"X-User-Authorization": "Basic " + p.AuthKey,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	price := resp.TotalRate + resp.TotalVat
	if price <= 0 {
		return nil, NewProviderError(RussianPost, 0, "tariff response missing rate", nil, nil)
	}
	quote := Quote{
		Provider:    RussianPost,
		ServiceName: "Почта России",
		Price:       price,
		Type:        DeliveryCourier,
		Meta: RussianPostMeta{
			ObjectID:      resp.ObjectID,
			GroundRateKop: resp.GroundRate.Rate,
		},
	}
	if resp.DeliveryTime.MinDays > 0 {
		min := resp.DeliveryTime.MinDays
		quote.DaysMin = &min
	}
	if resp.DeliveryTime.MaxDays > 0 {
		max := resp.DeliveryTime.MaxDays
		quote.DaysMax = &max
	}
	return []Quote{quote}, nil
}

// CreateShipment implements Provider and is intentionally unsupported.
func (p *RussianPostClient) CreateShipment(ctx context.Context, input ShipmentInput) (ShipmentResult, error) {
	return ShipmentResult{}, ErrNotSupported
}

// Track implements Provider and is intentionally unsupported.
func (p *RussianPostClient) Track(ctx context.Context, trackingNumber string) (TrackInfo, error) {
	return TrackInfo{}, ErrNotSupported
}

// PickupPoints implements Provider and is intentionally unsupported.
func (p *RussianPostClient) PickupPoints(ctx context.Context, query PickupPointQuery) ([]PickupPoint, error) {
	return nil, ErrNotSupported
}

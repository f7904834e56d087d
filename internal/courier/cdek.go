package courier

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dafnadaf/artist-sub000/internal/cache"
	"github.com/dafnadaf/artist-sub000/internal/resilience"
)

const (
	cdekDefaultBaseURL = "https://api.cdek.ru"
	// refresh the OAuth token when fewer than this many seconds remain
	cdekTokenSlack = 10 * time.Second
)

// cdekPickupModes are the delivery_mode values that terminate at a pickup
// point rather than the recipient's door.
var cdekPickupModes = map[int]bool{1: true, 3: true}

// CdekClient integrates the CDEK v2 REST API (OAuth2 client-credentials).
type CdekClient struct {
	Account        string
	SecurePassword string
	BaseURL        string
	HTTP           *resilience.HTTPClient

	now func() time.Time

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time

	// city-code resolutions are low-cardinality but each one is a network
	// round trip, so they get their own small cache
	cityCodes *cache.Memory[int]
}

// NewCdekClient constructs the CDEK adapter.
func NewCdekClient(account, securePassword, baseURL string, client *resilience.HTTPClient) *CdekClient {
	return &CdekClient{
		Account:        account,
		SecurePassword: securePassword,
		BaseURL:        baseURL,
		HTTP:           client,
		now:            time.Now,
		cityCodes:      cache.NewMemory[int](24*time.Hour, 500),
	}
}

// Code implements Provider.
func (c *CdekClient) Code() Code { return CDEK }

// IsConfigured implements Provider.
func (c *CdekClient) IsConfigured() bool {
	return c != nil && c.Account != "" && c.SecurePassword != ""
}

func (c *CdekClient) baseURL() string {
	if strings.TrimSpace(c.BaseURL) != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return cdekDefaultBaseURL
}

type cdekTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached bearer token, refreshing it when fewer than
// ten seconds of validity remain.
func (c *CdekClient) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" && c.now().Add(cdekTokenSlack).Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.Account},
		"client_secret": {c.SecurePassword},
	}
	var resp cdekTokenResponse
	err := doJSON(ctx, c.HTTP, CDEK, jsonCall{
		method: http.MethodPost,
		url:    c.baseURL() + "/v2/oauth/token",
		form:   form.Encode(),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", NewProviderError(CDEK, 0, "oauth response missing access token", nil, nil)
	}
	c.token = resp.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *CdekClient) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

type cdekLocation struct {
	Code       int    `json:"code,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Address    string `json:"address,omitempty"`
}

type cdekPackage struct {
	Number string     `json:"number,omitempty"`
	Weight int        `json:"weight"`
	Length int        `json:"length,omitempty"`
	Width  int        `json:"width,omitempty"`
	Height int        `json:"height,omitempty"`
	Items  []cdekItem `json:"items,omitempty"`
}

type cdekItem struct {
	Name    string      `json:"name"`
	WareKey string      `json:"ware_key"`
	Payment cdekPayment `json:"payment"`
	Cost    float64     `json:"cost"`
	Weight  int         `json:"weight"`
	Amount  int         `json:"amount"`
}

type cdekPayment struct {
	Value float64 `json:"value"`
}

type cdekTariff struct {
	TariffCode   int     `json:"tariff_code"`
	TariffName   string  `json:"tariff_name"`
	DeliveryMode int     `json:"delivery_mode"`
	DeliverySum  float64 `json:"delivery_sum"`
	PeriodMin    int     `json:"period_min"`
	PeriodMax    int     `json:"period_max"`
}

type cdekTariffListResponse struct {
	TariffCodes []cdekTariff `json:"tariff_codes"`
}

// Quote implements Provider via POST /v2/calculator/tarifflist.
func (c *CdekClient) Quote(ctx context.Context, req QuoteRequest) ([]Quote, error) {
	if req.WeightGrams <= 0 {
		return nil, ErrInvalidWeight
	}
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"from_location": c.apiLocation(req.From),
		"to_location":   c.apiLocation(req.To),
		"packages": []cdekPackage{{
			Weight: req.WeightGrams,
			Length: req.LengthCm,
			Width:  req.WidthCm,
			Height: req.HeightCm,
		}},
	}
	var resp cdekTariffListResponse
	err = doJSON(ctx, c.HTTP, CDEK, jsonCall{
		method:  http.MethodPost,
		url:     c.baseURL() + "/v2/calculator/tarifflist",
		body:    body,
		headers: headers,
	}, &resp)
	if err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(resp.TariffCodes))
	for _, t := range resp.TariffCodes {
		pickup := cdekPickupModes[t.DeliveryMode]
		deliveryType := DeliveryCourier
		if pickup {
			deliveryType = DeliveryPickup
		}
		q := Quote{
			Provider:            CDEK,
			ServiceName:         t.TariffName,
			Price:               int64(math.Round(t.DeliverySum * 100)),
			Type:                deliveryType,
			RequiresPickupPoint: pickup,
			TariffCode:          strconv.Itoa(t.TariffCode),
			Meta:                CdekMeta{DeliveryMode: t.DeliveryMode, TariffName: t.TariffName},
		}
		if t.PeriodMin > 0 {
			min := t.PeriodMin
			q.DaysMin = &min
		}
		if t.PeriodMax > 0 {
			max := t.PeriodMax
			q.DaysMax = &max
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (c *CdekClient) apiLocation(l Location) cdekLocation {
	out := cdekLocation{PostalCode: strings.TrimSpace(l.PostalCode)}
	if l.CityCode != nil {
		out.Code = *l.CityCode
	}
	return out
}

type cdekCity struct {
	Code int    `json:"code"`
	City string `json:"city"`
}

// ResolveCityCode maps a postal code or city name to CDEK's numeric city
// code. Results are cached for a day since their cardinality is tiny.
func (c *CdekClient) ResolveCityCode(ctx context.Context, loc Location) (int, error) {
	if loc.CityCode != nil {
		return *loc.CityCode, nil
	}
	key := ""
	params := url.Values{}
	switch {
	case strings.TrimSpace(loc.PostalCode) != "":
		key = "postal:" + strings.TrimSpace(loc.PostalCode)
		params.Set("postal_code", strings.TrimSpace(loc.PostalCode))
	case strings.TrimSpace(loc.City) != "":
		key = "city:" + strings.ToLower(strings.TrimSpace(loc.City))
		params.Set("city", strings.TrimSpace(loc.City))
	default:
		return 0, NewProviderError(CDEK, http.StatusBadRequest, "location has neither postal code nor city", nil, nil)
	}
	if code, ok := c.cityCodes.Get(key); ok {
		return code, nil
	}

	headers, err := c.authHeaders(ctx)
	if err != nil {
		return 0, err
	}
	params.Set("size", "1")
	var cities []cdekCity
	err = doJSON(ctx, c.HTTP, CDEK, jsonCall{
		method:  http.MethodGet,
		url:     c.baseURL() + "/v2/location/cities?" + params.Encode(),
		headers: headers,
	}, &cities)
	if err != nil {
		return 0, err
	}
	if len(cities) == 0 {
		return 0, NewProviderError(CDEK, http.StatusBadGateway, "city not found", nil, nil)
	}
	c.cityCodes.Set(key, cities[0].Code)
	return cities[0].Code, nil
}

type cdekDeliveryPoint struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	WorkTime string `json:"work_time"`
	Location struct {
		AddressFull string  `json:"address_full"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		CityCode    int     `json:"city_code"`
		City        string  `json:"city"`
		PostalCode  string  `json:"postal_code"`
	} `json:"location"`
	HaveCash       bool `json:"have_cash"`
	HaveCashless   bool `json:"have_cashless"`
	IsDressingRoom bool `json:"is_dressing_room"`
}

// PickupPoints implements Provider via GET /v2/deliverypoints.
func (c *CdekClient) PickupPoints(ctx context.Context, query PickupPointQuery) ([]PickupPoint, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	params := url.Values{"type": {"PVZ"}}
	switch {
	case query.Code != "":
		params.Set("code", query.Code)
	case query.CityCode != nil:
		params.Set("city_code", strconv.Itoa(*query.CityCode))
	case query.PostalCode != "":
		params.Set("postal_code", strings.TrimSpace(query.PostalCode))
	case query.City != "":
		code, err := c.ResolveCityCode(ctx, Location{City: query.City})
		if err != nil {
			return nil, err
		}
		params.Set("city_code", strconv.Itoa(code))
	default:
		return nil, NewProviderError(CDEK, http.StatusBadRequest, "pickup point query requires a filter", nil, nil)
	}

	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	var points []cdekDeliveryPoint
	err = doJSON(ctx, c.HTTP, CDEK, jsonCall{
		method:  http.MethodGet,
		url:     c.baseURL() + "/v2/deliverypoints?" + params.Encode(),
		headers: headers,
	}, &points)
	if err != nil {
		return nil, err
	}

	out := make([]PickupPoint, 0, len(points))
	for _, p := range points {
		point := PickupPoint{
			Provider:   CDEK,
			Code:       p.Code,
			Name:       p.Name,
			Address:    p.Location.AddressFull,
			PostalCode: p.Location.PostalCode,
			City:       p.Location.City,
			CityCode:   p.Location.CityCode,
			Schedule:   p.WorkTime,
			Features: Features{
				Cash:     p.HaveCash,
				Cashless: p.HaveCashless,
				Fitting:  p.IsDressingRoom,
			},
		}
		if p.Location.Latitude != 0 || p.Location.Longitude != 0 {
			point.Location = &GeoPoint{Lat: p.Location.Latitude, Lon: p.Location.Longitude}
		}
		out = append(out, point)
	}
	return out, nil
}

type cdekOrderResponse struct {
	Entity struct {
		UUID string `json:"uuid"`
	} `json:"entity"`
}

// CreateShipment implements Provider via POST /v2/orders.
func (c *CdekClient) CreateShipment(ctx context.Context, input ShipmentInput) (ShipmentResult, error) {
	if !c.IsConfigured() {
		return ShipmentResult{}, ErrNotConfigured
	}
	tariff, err := strconv.Atoi(strings.TrimSpace(input.TariffCode))
	if err != nil {
		return ShipmentResult{}, NewProviderError(CDEK, http.StatusBadRequest, "tariff code must be numeric", nil, err)
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return ShipmentResult{}, err
	}

	items := make([]cdekItem, 0, len(input.Items))
	for i, item := range input.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, cdekItem{
			Name:    item.Name,
			WareKey: fmt.Sprintf("%s-%d", input.OrderID, i+1),
			Cost:    float64(item.PriceMinor) / 100,
			Weight:  item.WeightGrams,
			Amount:  qty,
		})
	}
	body := map[string]any{
		"number":        input.OrderID,
		"tariff_code":   tariff,
		"from_location": c.apiLocation(input.From),
		"recipient": map[string]any{
			"name":   input.Recipient.Name,
			"email":  input.Recipient.Email,
			"phones": []map[string]string{{"number": input.Recipient.Phone}},
		},
		"packages": []cdekPackage{{
			Number: "1",
			Weight: input.WeightGrams,
			Items:  items,
		}},
	}
	if input.Type == DeliveryPickup && input.PickupPoint != nil {
		body["delivery_point"] = input.PickupPoint.Code
	} else {
		to := c.apiLocation(input.To)
		to.Address = input.Recipient.Address
		body["to_location"] = to
	}

	var resp cdekOrderResponse
	err = doJSON(ctx, c.HTTP, CDEK, jsonCall{
		method:  http.MethodPost,
		url:     c.baseURL() + "/v2/orders",
		body:    body,
		headers: headers,
	}, &resp)
	if err != nil {
		return ShipmentResult{}, err
	}
	if resp.Entity.UUID == "" {
		return ShipmentResult{}, NewProviderError(CDEK, 0, "order response missing uuid", nil, nil)
	}
	return ShipmentResult{
		Provider:       CDEK,
		TrackingNumber: resp.Entity.UUID,
		OrderID:        input.OrderID,
	}, nil
}

type cdekOrderInfo struct {
	Entity struct {
		UUID       string `json:"uuid"`
		CdekNumber string `json:"cdek_number"`
		Statuses   []struct {
			Code     string `json:"code"`
			Name     string `json:"name"`
			DateTime string `json:"date_time"`
			City     string `json:"city"`
		} `json:"statuses"`
	} `json:"entity"`
}

// Track implements Provider via GET /v2/orders.
func (c *CdekClient) Track(ctx context.Context, trackingNumber string) (TrackInfo, error) {
	if !c.IsConfigured() {
		return TrackInfo{}, ErrNotConfigured
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return TrackInfo{}, err
	}

	endpoint := c.baseURL() + "/v2/orders/" + url.PathEscape(trackingNumber)
	if !strings.Contains(trackingNumber, "-") {
		// bare numbers are cdek_number identifiers, not order uuids
		endpoint = c.baseURL() + "/v2/orders?cdek_number=" + url.QueryEscape(trackingNumber)
	}
	var resp cdekOrderInfo
	err = doJSON(ctx, c.HTTP, CDEK, jsonCall{
		method:  http.MethodGet,
		url:     endpoint,
		headers: headers,
	}, &resp)
	if err != nil {
		return TrackInfo{}, err
	}

	info := TrackInfo{Provider: CDEK, TrackingNumber: trackingNumber}
	for _, s := range resp.Entity.Statuses {
		event := TrackEvent{Status: firstNonEmpty(s.Code, s.Name), Description: s.Name, Location: s.City}
		if ts, err := time.Parse(time.RFC3339, s.DateTime); err == nil {
			event.OccurredAt = ts
		}
		info.History = append(info.History, event)
	}
	if len(info.History) > 0 {
		info.Status = info.History[0].Status
	}
	return info, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

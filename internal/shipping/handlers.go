package shipping

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/dafnadaf/artist-sub000/internal/common"
	"github.com/dafnadaf/artist-sub000/internal/courier"
	"github.com/dafnadaf/artist-sub000/internal/schedule"
)

// Handler exposes the shipping HTTP surface.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Now      func() time.Time
}

// NewHandler constructs a handler with its own validator instance.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, Validate: validator.New(), Now: time.Now}
}

type locationPayload struct {
	CityCode   *int   `json:"cityCode"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
}

func (p locationPayload) toLocation() courier.Location {
	return courier.Location{CityCode: p.CityCode, PostalCode: strings.TrimSpace(p.PostalCode), City: strings.TrimSpace(p.City)}
}

func (p locationPayload) empty() bool {
	return p.CityCode == nil && strings.TrimSpace(p.PostalCode) == ""
}

type quotePayload struct {
	From        locationPayload `json:"from"`
	To          locationPayload `json:"to"`
	WeightGrams int             `json:"weightGrams" validate:"required,gt=0"`
	LengthCm    int             `json:"lengthCm" validate:"gte=0"`
	WidthCm     int             `json:"widthCm" validate:"gte=0"`
	HeightCm    int             `json:"heightCm" validate:"gte=0"`
}

// Quote handles POST /shipping/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quotePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "weightGrams must be a positive number", nil)
		return
	}
	if req.From.empty() || req.To.empty() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from and to require a cityCode or postalCode", nil)
		return
	}

	quotes, err := h.Svc.Quotes(r.Context(), courier.QuoteRequest{
		From:        req.From.toLocation(),
		To:          req.To.toLocation(),
		WeightGrams: req.WeightGrams,
		LengthCm:    req.LengthCm,
		WidthCm:     req.WidthCm,
		HeightCm:    req.HeightCm,
	})
	if err != nil {
		renderCourierError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"quotes": quotes}})
}

type createQuotePayload struct {
	Provider            string `json:"provider" validate:"required"`
	TariffCode          string `json:"tariffCode"`
	Type                string `json:"type"`
	RequiresPickupPoint bool   `json:"requiresPickupPoint"`
}

type recipientPayload struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	Address    string `json:"address"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
}

type itemPayload struct {
	Name        string `json:"name" validate:"required"`
	Price       int64  `json:"price" validate:"gte=0"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
	WeightGrams int    `json:"weightGrams" validate:"gte=0"`
}

type createPayload struct {
	OrderID         string             `json:"orderId" validate:"required"`
	Quote           createQuotePayload `json:"quote" validate:"required"`
	From            locationPayload    `json:"from"`
	To              locationPayload    `json:"to"`
	WeightGrams     int                `json:"weightGrams" validate:"required,gt=0"`
	Recipient       recipientPayload   `json:"recipient" validate:"required"`
	Items           []itemPayload      `json:"items" validate:"required,min=1,dive"`
	PickupPointCode string             `json:"pickupPointCode"`
}

// Create handles POST /shipping/create.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid shipment request", validationDetails(err))
		return
	}
	provider, ok := courier.ParseCode(req.Quote.Provider)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown provider", nil)
		return
	}

	items := make([]courier.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, courier.Item{
			Name:        item.Name,
			PriceMinor:  item.Price,
			Quantity:    item.Quantity,
			WeightGrams: item.WeightGrams,
		})
	}
	result, err := h.Svc.Create(r.Context(), CreateInput{
		OrderID:             req.OrderID,
		Provider:            provider,
		TariffCode:          req.Quote.TariffCode,
		QuoteType:           courier.DeliveryType(req.Quote.Type),
		RequiresPickupPoint: req.Quote.RequiresPickupPoint,
		From:                req.From.toLocation(),
		To:                  req.To.toLocation(),
		WeightGrams:         req.WeightGrams,
		Recipient: courier.Recipient{
			Name:       req.Recipient.Name,
			Phone:      req.Recipient.Phone,
			Email:      req.Recipient.Email,
			Address:    req.Recipient.Address,
			PostalCode: req.Recipient.PostalCode,
			City:       req.Recipient.City,
		},
		Items:           items,
		PickupPointCode: req.PickupPointCode,
	})
	if err != nil {
		renderCourierError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}

// Track handles GET /shipping/track/{provider}/{trackingNumber}.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	provider, ok := courier.ParseCode(chi.URLParam(r, "provider"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown provider", nil)
		return
	}
	trackingNumber := chi.URLParam(r, "trackingNumber")
	if trackingNumber == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tracking number required", nil)
		return
	}
	info, err := h.Svc.Track(r.Context(), provider, trackingNumber)
	if err != nil {
		renderCourierError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": info})
}

type pvzResponse struct {
	courier.PickupPoint
	OpenNow bool `json:"openNow"`
}

// PickupPoints handles GET /shipping/pvz.
func (h *Handler) PickupPoints(w http.ResponseWriter, r *http.Request) {
	provider, ok := courier.ParseCode(r.URL.Query().Get("provider"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown provider", nil)
		return
	}
	query := courier.PickupPointQuery{
		PostalCode: strings.TrimSpace(r.URL.Query().Get("postalCode")),
		City:       strings.TrimSpace(r.URL.Query().Get("city")),
	}
	if raw := r.URL.Query().Get("cityCode"); raw != "" {
		code := common.QueryInt(r, "cityCode", -1)
		if code < 0 {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cityCode must be numeric", nil)
			return
		}
		query.CityCode = &code
	}
	if query.Empty() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "city, postalCode or cityCode required", nil)
		return
	}

	points, err := h.Svc.PickupPoints(r.Context(), provider, query)
	if err != nil {
		renderCourierError(w, err)
		return
	}

	now := h.Now()
	out := make([]pvzResponse, 0, len(points))
	for _, point := range points {
		out = append(out, pvzResponse{
			PickupPoint: point,
			OpenNow:     schedule.Parse(point.Schedule).OpenAt(now),
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"points": out}})
}

// Routes mounts the shipping endpoints onto the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/quote", h.Quote)
	r.Post("/create", h.Create)
	r.Get("/track/{provider}/{trackingNumber}", h.Track)
	r.Get("/pvz", h.PickupPoints)
}

// renderCourierError maps domain errors onto the canonical error envelope.
func renderCourierError(w http.ResponseWriter, err error) {
	var perr *courier.ProviderError
	switch {
	case errors.Is(err, courier.ErrInvalidWeight):
		common.RenderError(w, common.ValidationError(err.Error(), nil))
	case errors.Is(err, courier.ErrUnsupportedProvider):
		common.RenderError(w, common.ValidationError("provider is not supported or not configured", nil))
	case errors.Is(err, courier.ErrMissingPickupCode):
		common.RenderError(w, common.ValidationError("pickupPointCode is required for pickup delivery", nil))
	case errors.Is(err, courier.ErrPointNotFound):
		common.RenderError(w, common.UnprocessableError("pickup point could not be resolved", nil))
	case errors.Is(err, courier.ErrNotSupported):
		common.RenderError(w, common.NewAppError("NOT_SUPPORTED", "operation is not supported by this provider", http.StatusNotImplemented, err))
	case errors.Is(err, courier.ErrNotConfigured):
		common.RenderError(w, common.UpstreamFailure("provider is not configured", err, nil))
	case errors.As(err, &perr):
		common.RenderError(w, &common.AppError{
			Code:       "UPSTREAM_ERROR",
			Message:    perr.Error(),
			HTTPStatus: perr.HTTPStatus(),
			Err:        err,
			Details:    perr.Details,
		})
	default:
		common.RenderError(w, err)
	}
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return map[string]any{"fields": fields}
}

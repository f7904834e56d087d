package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dafnadaf/artist-sub000/internal/common"
	"github.com/dafnadaf/artist-sub000/internal/courier"
	"github.com/dafnadaf/artist-sub000/internal/obs"
	"github.com/dafnadaf/artist-sub000/internal/resilience"
)

type replayStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Webhook handles courier status callbacks. Events are normalised and
// forwarded to the order-management collaborator; nothing is persisted here.
type Webhook struct {
	Replay      replayStore
	ReplayTTL   time.Duration
	CallbackURL string
	HTTP        *resilience.HTTPClient
	Log         zerolog.Logger
}

// webhookPayload accepts the field spellings the couriers actually send.
// Extraction is permissive because the upstream schemas drift independently.
type webhookPayload struct {
	OrderID        string `json:"orderId"`
	OrderIDAlt     string `json:"order_id"`
	Number         string `json:"number"`
	TrackingNumber string `json:"trackingNumber"`
	Track          string `json:"track"`
	UUID           string `json:"uuid"`
	Status         string `json:"status"`
	ExternalStatus string `json:"externalStatus"`
	StatusCode     string `json:"status_code"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Location       string `json:"location"`
	City           string `json:"city"`
	OccurredAt     string `json:"occurredAt"`
	DateTime       string `json:"date_time"`
}

func (p webhookPayload) orderID() string {
	return firstNonBlank(p.OrderID, p.OrderIDAlt, p.Number)
}

func (p webhookPayload) trackingNumber() string {
	return firstNonBlank(p.TrackingNumber, p.Track, p.UUID)
}

func (p webhookPayload) externalStatus() string {
	return firstNonBlank(p.Status, p.ExternalStatus, p.StatusCode, p.Name)
}

func (p webhookPayload) occurredAt() *time.Time {
	raw := firstNonBlank(p.OccurredAt, p.DateTime)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

// forwardedEvent is the normalised payload sent to the order collaborator.
type forwardedEvent struct {
	Provider       string     `json:"provider"`
	OrderID        string     `json:"orderId,omitempty"`
	TrackingNumber string     `json:"trackingNumber"`
	Status         Status     `json:"status"`
	ExternalStatus string     `json:"externalStatus"`
	Description    string     `json:"description,omitempty"`
	Location       string     `json:"location,omitempty"`
	OccurredAt     *time.Time `json:"occurredAt,omitempty"`
}

// Handle processes POST /webhooks/shipping/{courier}.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Replay == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "replay protection not configured", nil)
		return
	}
	ctx, span := otel.Tracer("shipping.Webhook").Start(r.Context(), "ShippingWebhook.Handle")
	defer span.End()

	courierParam := chi.URLParam(r, "courier")
	span.SetAttributes(attribute.String("shipping.webhook.courier", courierParam))
	provider, ok := courier.ParseCode(courierParam)
	// The label set must stay bounded to the known provider codes; the raw
	// URL segment is attacker-controlled and would mint unbounded series.
	label := "unknown"
	if ok {
		label = strings.ToLower(string(provider))
	}
	outcome := "error"
	defer func() {
		if obs.ShippingWebhookTotal != nil {
			obs.ShippingWebhookTotal.WithLabelValues(label, outcome).Inc()
		}
	}()

	if !ok {
		outcome = "unknown_courier"
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown courier", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		span.RecordError(err)
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read payload", nil)
		return
	}

	key := fmt.Sprintf("shwh:%s:%s", provider, common.Sha256Hex(body))
	fresh, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
	if err != nil {
		span.RecordError(err)
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "replay protection failed", nil)
		return
	}
	if !fresh {
		outcome = "replay"
		span.AddEvent("shipping webhook replay prevented")
		common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook payload", nil)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		span.RecordError(err)
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	tracking := payload.trackingNumber()
	if tracking == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tracking number missing from payload", nil)
		return
	}

	event := forwardedEvent{
		Provider:       string(provider),
		OrderID:        payload.orderID(),
		TrackingNumber: tracking,
		Status:         MapExternalStatus(provider, payload.externalStatus()),
		ExternalStatus: payload.externalStatus(),
		Description:    payload.Description,
		Location:       firstNonBlank(payload.Location, payload.City),
		OccurredAt:     payload.occurredAt(),
	}
	if err := h.forward(ctx, event); err != nil {
		span.RecordError(err)
		h.Log.Error().Err(err).
			Str("provider", string(provider)).
			Str("tracking_number", tracking).
			Msg("webhook forward failed")
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "event forwarding failed", nil)
		return
	}

	outcome = "ok"
	h.Log.Info().
		Str("provider", string(provider)).
		Str("tracking_number", tracking).
		Str("status", string(event.Status)).
		Msg("courier webhook forwarded")
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": event.Status}})
}

// forward delivers the event to the order collaborator. With no callback URL
// configured the event is only acknowledged and logged.
func (h Webhook) forward(ctx context.Context, event forwardedEvent) error {
	if h.CallbackURL == "" || h.HTTP == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.CallbackURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("order callback returned %d", resp.StatusCode)
	}
	return nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

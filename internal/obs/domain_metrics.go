package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteRequestsTotal counts provider quote attempts during aggregation.
	QuoteRequestsTotal *prometheus.CounterVec
	// QuoteCacheTotal counts quote cache lookups by outcome (hit/miss).
	QuoteCacheTotal *prometheus.CounterVec
	// QuoteFanoutLatency records per-provider quote latency in milliseconds.
	QuoteFanoutLatency *prometheus.HistogramVec
	// PvzResolveTotal counts pickup point resolution outcomes.
	PvzResolveTotal *prometheus.CounterVec
	// ShipmentCreateTotal counts shipment creation outcomes per provider.
	ShipmentCreateTotal *prometheus.CounterVec
	// ShippingWebhookTotal counts inbound courier webhook processing outcomes.
	ShippingWebhookTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_quote_requests_total",
			Help:      "Count of provider quote attempts by outcome.",
		}, []string{"provider", "result"})
		QuoteCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_quote_cache_total",
			Help:      "Count of quote cache lookups by outcome.",
		}, []string{"result"})
		QuoteFanoutLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shipping_quote_provider_duration_ms",
			Help:      "Latency of individual provider quote calls in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"provider"})
		PvzResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_pvz_resolve_total",
			Help:      "Count of pickup point resolution outcomes.",
		}, []string{"provider", "result"})
		ShipmentCreateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_create_total",
			Help:      "Count of shipment creation outcomes per provider.",
		}, []string{"provider", "result"})
		ShippingWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_webhook_total",
			Help:      "Count of processed courier webhooks by outcome.",
		}, []string{"courier", "result"})

		mustRegisterCollector(reg, QuoteRequestsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteRequestsTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteCacheTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteFanoutLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				QuoteFanoutLatency = v
			}
		})
		mustRegisterCollector(reg, PvzResolveTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PvzResolveTotal = v
			}
		})
		mustRegisterCollector(reg, ShipmentCreateTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ShipmentCreateTotal = v
			}
		})
		mustRegisterCollector(reg, ShippingWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ShippingWebhookTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

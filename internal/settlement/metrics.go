package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settlement status transitions",
		},
		[]string{"status"},
	)

	compensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_compensations_total",
			Help: "Compensating wallet credits after failed settlements",
		},
		[]string{"outcome"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paystack_webhook_events_total",
			Help: "Paystack webhook events by type and whether they were handled",
		},
		[]string{"event", "handled"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersSubmitted counts accepted order submissions
	OrdersSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swap_orders_submitted_total",
			Help: "Total number of accepted swap orders",
		},
	)

	// TransitionsTotal counts applied status transitions
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_transitions_total",
			Help: "Total number of applied order status transitions",
		},
		[]string{"from", "to"},
	)

	// TransitionsSkipped counts chain events that did not produce a transition
	TransitionsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_transitions_skipped_total",
			Help: "Total number of chain events skipped by the watcher",
		},
		[]string{"reason"},
	)

	// EventsDetected counts escrow events detected on each chain
	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_events_detected_total",
			Help: "Total number of escrow events detected",
		},
		[]string{"chain", "kind"},
	)

	// ActionsTotal counts executed resolver actions by outcome
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_actions_total",
			Help: "Total number of resolver actions by result",
		},
		[]string{"chain", "action", "result"},
	)

	// ActionDuration tracks action execution time
	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_action_duration_seconds",
			Help:    "Resolver action duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// LastProcessedBlock tracks the last processed block number
	LastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swap_last_processed_block",
			Help: "Last processed block number by chain",
		},
		[]string{"chain"},
	)

	// ActiveOrders tracks the number of non-terminal orders accepted by this registry
	ActiveOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swap_active_orders",
			Help: "Number of non-terminal orders accepted since start",
		},
	)

	// InFlightActions tracks resolver actions currently executing
	InFlightActions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swap_inflight_actions",
			Help: "Number of resolver actions currently executing",
		},
	)

	// RescuesTotal counts escrow rescues sent by the resolver
	RescuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_rescues_total",
			Help: "Total number of escrow rescues by result",
		},
		[]string{"chain", "kind", "result"},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

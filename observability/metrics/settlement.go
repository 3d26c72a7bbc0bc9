package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tidepool/core/events"
)

// SettlementMetrics aggregates counters for the settlement engines. It
// doubles as an events.Emitter so engines report through the same channel
// indexers subscribe on.
type SettlementMetrics struct {
	eventsTotal   *prometheus.CounterVec
	swapVolume    *prometheus.CounterVec
	rewardsPaid   prometheus.Counter
	liquidations  prometheus.Counter
	ordersFilled  prometheus.Counter
	reserveDrawn  *prometheus.CounterVec
	requestErrors *prometheus.CounterVec
}

var (
	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
)

// Settlement returns the process-wide settlement metrics, registering the
// collectors on first use.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_events_total",
				Help: "Count of settlement events by type.",
			}, []string{"type"}),
			swapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_swap_input_total",
				Help: "Cumulative swap input volume by token.",
			}, []string{"token"}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_rewards_paid_total",
				Help: "Count of staking reward payouts.",
			}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_liquidations_total",
				Help: "Count of forced position closes.",
			}),
			ordersFilled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "settlement_orders_filled_total",
				Help: "Count of resting orders executed through the pool.",
			}),
			reserveDrawn: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_reserve_draws_total",
				Help: "Count of authorized reserve draws by lender.",
			}, []string{"lender"}),
			requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settlement_rpc_errors_total",
				Help: "Count of RPC request failures by route.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			settlementRegistry.eventsTotal,
			settlementRegistry.swapVolume,
			settlementRegistry.rewardsPaid,
			settlementRegistry.liquidations,
			settlementRegistry.ordersFilled,
			settlementRegistry.reserveDrawn,
			settlementRegistry.requestErrors,
		)
	})
	return settlementRegistry
}

// Emit implements events.Emitter.
func (m *SettlementMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.eventsTotal.WithLabelValues(evt.EventType()).Inc()
	switch e := evt.(type) {
	case events.SwapExecuted:
		if e.AmountIn != nil {
			amount, _ := new(big.Float).SetInt(e.AmountIn).Float64()
			m.swapVolume.WithLabelValues(e.TokenIn).Add(amount)
		}
	case events.RewardPaid:
		m.rewardsPaid.Inc()
	case events.PositionLiquidated:
		m.liquidations.Inc()
	case events.OrderFilled:
		m.ordersFilled.Inc()
	case events.ReserveLent:
		lender := e.Lender
		if lender == "" {
			lender = "unknown"
		}
		m.reserveDrawn.WithLabelValues(lender).Inc()
	}
}

// IncRequestError records a failed RPC request for the route.
func (m *SettlementMetrics) IncRequestError(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requestErrors.WithLabelValues(route).Inc()
}

// Package metrics 以 Prometheus 指标记录下单与调度情况。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ezyquant-execute/internal/broker"
)

var states = []string{"idle", "waiting_for_start", "running", "draining", "stopped"}

// Metrics 实现 execution.Recorder 与 scheduler.Observer。
type Metrics struct {
	registry *prometheus.Registry

	ordersPlaced   *prometheus.CounterVec
	orderVolume    *prometheus.CounterVec
	ordersSkipped  *prometheus.CounterVec
	cancels        *prometheus.CounterVec
	ticks          prometheus.Counter
	tickDuration   prometheus.Histogram
	callbackErrors *prometheus.CounterVec
	state          *prometheus.GaugeVec
}

// New 创建指标并注册到独立的 registry。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "execute_orders_placed_total", Help: "Orders submitted to the broker."},
			[]string{"symbol", "side"},
		),
		orderVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "execute_order_volume_total", Help: "Shares submitted to the broker."},
			[]string{"symbol", "side"},
		),
		ordersSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "execute_orders_skipped_total", Help: "Orders skipped by the order mode precheck."},
			[]string{"symbol", "reason"},
		),
		cancels: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "execute_cancels_total", Help: "Cancel outcomes by result."},
			[]string{"symbol", "result"},
		),
		ticks: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "execute_ticks_total", Help: "Completed scheduler ticks."},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "execute_tick_duration_seconds",
				Help:    "Time spent running callbacks for all symbols in one tick.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		callbackErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "execute_callback_errors_total", Help: "Callbacks that ended the run with an error."},
			[]string{"symbol"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "execute_scheduler_state", Help: "1 for the current scheduler state."},
			[]string{"state"},
		),
	}
	m.registry.MustRegister(
		m.ordersPlaced,
		m.orderVolume,
		m.ordersSkipped,
		m.cancels,
		m.ticks,
		m.tickDuration,
		m.callbackErrors,
		m.state,
	)
	m.ObserveState("idle")
	return m
}

// Registry 返回底层 registry，便于测试与扩展。
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler 返回 /metrics 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderPlaced(symbol string, side broker.Side, volume int64) {
	m.ordersPlaced.WithLabelValues(symbol, string(side)).Inc()
	m.orderVolume.WithLabelValues(symbol, string(side)).Add(float64(volume))
}

func (m *Metrics) OrderSkipped(symbol string, reason string) {
	m.ordersSkipped.WithLabelValues(symbol, reason).Inc()
}

func (m *Metrics) OrdersCancelled(symbol string, cancelled, failed int) {
	if cancelled > 0 {
		m.cancels.WithLabelValues(symbol, "ok").Add(float64(cancelled))
	}
	if failed > 0 {
		m.cancels.WithLabelValues(symbol, "failed").Add(float64(failed))
	}
}

// ObserveState 只保留当前状态为 1。
func (m *Metrics) ObserveState(state string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) ObserveTick(elapsed time.Duration) {
	m.ticks.Inc()
	m.tickDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCallbackError(symbol string) {
	m.callbackErrors.WithLabelValues(symbol).Inc()
}

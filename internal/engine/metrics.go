package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes lifecycle counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	signals      *prometheus.CounterVec
	entries      *prometheus.CounterVec
	exits        *prometheus.CounterVec
	realizedPnL  prometheus.Gauge
	commission   prometheus.Counter
	bracketFails prometheus.Counter
	guardCloses  prometheus.Counter
	manualCloses prometheus.Counter
	phase        prometheus.Gauge
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bracketbot",
			Name:      "signals_total",
			Help:      "Inbound signals by outcome.",
		}, []string{"status"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bracketbot",
			Name:      "entries_total",
			Help:      "Stop-limit entry events (placed, place_failed, filled, expired).",
		}, []string{"event"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bracketbot",
			Name:      "exits_total",
			Help:      "Reconciled exits by kind.",
		}, []string{"kind"}),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bracketbot",
			Name:      "realized_pnl",
			Help:      "Cumulative realized PnL of reconciled exits, in the quote asset.",
		}),
		commission: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bracketbot",
			Name:      "commission_total",
			Help:      "Cumulative commission of reconciled exits, in the quote asset.",
		}),
		bracketFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bracketbot",
			Name:      "bracket_failures_total",
			Help:      "Fills whose bracket could not be placed.",
		}),
		guardCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bracketbot",
			Name:      "guard_closes_total",
			Help:      "Positions force-closed by the recovery guard.",
		}),
		manualCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bracketbot",
			Name:      "manual_closes_total",
			Help:      "Positions closed by a CLOSE signal.",
		}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bracketbot",
			Name:      "position_phase",
			Help:      "Current lifecycle phase (0 idle, 1 entry pending, 2 entry filled, 3 exit pending).",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.signals, m.entries, m.exits, m.realizedPnL, m.commission,
			m.bracketFails, m.guardCloses, m.manualCloses, m.phase)
	}
	return m
}

func (m *Metrics) signal(status SignalStatus) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) entry(event string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(event).Inc()
}

func (m *Metrics) exit(x Exit) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(string(x.Kind)).Inc()
	pnl, _ := x.PnL.Float64()
	m.realizedPnL.Add(pnl)
	if fee, _ := x.Commission.Float64(); fee > 0 {
		m.commission.Add(fee)
	}
}

func (m *Metrics) bracketFailure() {
	if m == nil {
		return
	}
	m.bracketFails.Inc()
}

func (m *Metrics) guardClose() {
	if m == nil {
		return
	}
	m.guardCloses.Inc()
}

func (m *Metrics) manualClose() {
	if m == nil {
		return
	}
	m.manualCloses.Inc()
}

func (m *Metrics) setPhase(p Phase) {
	if m == nil {
		return
	}
	m.phase.Set(float64(p))
}

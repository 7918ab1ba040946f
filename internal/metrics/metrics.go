// Package metrics provides Prometheus instrumentation for the raffle keeper.
package metrics

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
)

const namespace = "w3raffle"

// Metrics holds every keeper collector on its own registry.
type Metrics struct {
	reg *prometheus.Registry

	checksTotal       *prometheus.CounterVec
	upkeepsTotal      *prometheus.CounterVec
	fulfillmentsTotal *prometheus.CounterVec
	winnersTotal      prometheus.Counter
	prizePaidWei      prometheus.Counter
	errorsTotal       *prometheus.CounterVec

	players         prometheus.Gauge
	prizePoolWei    prometheus.Gauge
	state           prometheus.Gauge
	latestTimestamp prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		checksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upkeep_checks_total",
			Help:      "Total number of checkUpkeep evaluations",
		}, []string{"result"}),
		upkeepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upkeeps_performed_total",
			Help:      "Total number of performUpkeep transactions",
		}, []string{"status"}),
		fulfillmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vrf_fulfillments_total",
			Help:      "Total number of randomness fulfillments driven by the keeper",
		}, []string{"status"}),
		winnersTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "winners_total",
			Help:      "Total number of winners picked",
		}),
		prizePaidWei: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prize_paid_wei_total",
			Help:      "Sum of prizes paid to winners in wei",
		}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of keeper errors by operation",
		}, []string{"op"}),
		players: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players",
			Help:      "Players entered in the current round",
		}),
		prizePoolWei: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prize_pool_wei",
			Help:      "Current raffle balance in wei",
		}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Raffle state (0 open, 1 calculating)",
		}),
		latestTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_timestamp_seconds",
			Help:      "Timestamp at which the current round started",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler returns the Prometheus exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveCheck records one checkUpkeep result.
func (m *Metrics) ObserveCheck(needed bool, err error) {
	switch {
	case err != nil:
		m.checksTotal.WithLabelValues("error").Inc()
		m.errorsTotal.WithLabelValues("check").Inc()
	case needed:
		m.checksTotal.WithLabelValues("needed").Inc()
	default:
		m.checksTotal.WithLabelValues("not_needed").Inc()
	}
}

// ObserveUpkeep records one performUpkeep attempt.
func (m *Metrics) ObserveUpkeep(err error) {
	if err != nil {
		m.upkeepsTotal.WithLabelValues("failed").Inc()
		m.errorsTotal.WithLabelValues("perform").Inc()
		return
	}
	m.upkeepsTotal.WithLabelValues("success").Inc()
}

// ObserveFulfillment records one fulfillRandomWords attempt.
func (m *Metrics) ObserveFulfillment(err error) {
	if err != nil {
		m.fulfillmentsTotal.WithLabelValues("failed").Inc()
		m.errorsTotal.WithLabelValues("fulfill").Inc()
		return
	}
	m.fulfillmentsTotal.WithLabelValues("success").Inc()
}

// ObserveWinner records a paid-out round.
func (m *Metrics) ObserveWinner(prize *big.Int) {
	m.winnersTotal.Inc()
	if prize != nil {
		f, _ := new(big.Float).SetInt(prize).Float64()
		m.prizePaidWei.Add(f)
	}
}

// ObserveError counts a failure of op outside the upkeep cycle.
func (m *Metrics) ObserveError(op string) {
	m.errorsTotal.WithLabelValues(op).Inc()
}

// ObserveSnapshot updates the state gauges.
func (m *Metrics) ObserveSnapshot(s *raffle.Snapshot) {
	if s == nil {
		return
	}
	m.players.Set(float64(s.NumPlayers))
	if s.PrizePool != nil {
		f, _ := new(big.Float).SetInt(s.PrizePool).Float64()
		m.prizePoolWei.Set(f)
	}
	m.state.Set(float64(s.State))
	m.latestTimestamp.Set(float64(s.LatestTimestamp))
}

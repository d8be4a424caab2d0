// Package metrics exposes lottery server events as prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/lottery/internal/app"
	"github.com/bft-labs/lottery/internal/protocol"
)

// Collectors implements app.ServerEventEmitter and app.EventEmitter.
type Collectors struct {
	connections      *prometheus.CounterVec
	betsStored       prometheus.Counter
	protocolErrors   *prometheus.CounterVec
	queriesWaiting   prometheus.Gauge
	agenciesPending  prometheus.Gauge
	drawCompleted    prometheus.Gauge
	state            prometheus.Gauge
	stateTransitions *prometheus.CounterVec
}

// NewCollectors creates the collectors and registers them with reg.
// agencyCount seeds the pending agencies gauge.
func NewCollectors(reg prometheus.Registerer, agencyCount int) *Collectors {
	c := &Collectors{
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lottery_connections_total",
			Help: "Requests received, by message kind.",
		}, []string{"kind"}),
		betsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lottery_bets_stored_total",
			Help: "Bets appended to the ledger.",
		}),
		protocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lottery_request_errors_total",
			Help: "Requests closed without reply, by reason.",
		}, []string{"reason"}),
		queriesWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lottery_queries_waiting",
			Help: "QUERY requests blocked until the draw.",
		}),
		agenciesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lottery_agencies_pending",
			Help: "Agencies that have not sent FIN yet.",
		}),
		drawCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lottery_draw_completed",
			Help: "1 once every agency has finished.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lottery_server_state",
			Help: "Server lifecycle state (0 stopped, 1 starting, 2 running, 3 stopping, 4 crashed).",
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lottery_server_state_transitions_total",
			Help: "Server lifecycle transitions, by target state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		c.connections,
		c.betsStored,
		c.protocolErrors,
		c.queriesWaiting,
		c.agenciesPending,
		c.drawCompleted,
		c.state,
		c.stateTransitions,
	)

	if agencyCount > 0 {
		c.agenciesPending.Set(float64(agencyCount))
	} else {
		c.drawCompleted.Set(1)
	}
	return c
}

func (c *Collectors) OnConnection(kind protocol.Kind) {
	c.connections.WithLabelValues(kind.String()).Inc()
}

func (c *Collectors) OnBetsStored(count int) {
	c.betsStored.Add(float64(count))
}

func (c *Collectors) OnProtocolError(reason string) {
	c.protocolErrors.WithLabelValues(reason).Inc()
}

func (c *Collectors) OnQueryWaiting(delta int) {
	c.queriesWaiting.Add(float64(delta))
}

func (c *Collectors) OnAgencyFinished(remaining int) {
	c.agenciesPending.Set(float64(remaining))
}

func (c *Collectors) OnDraw() {
	c.drawCompleted.Set(1)
}

func (c *Collectors) OnStateChange(_, current app.State, _ string) {
	c.state.Set(float64(current))
	c.stateTransitions.WithLabelValues(current.String()).Inc()
}

// Package metrics exposes the lifecycle engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "match_lifecycle"

// Metrics holds every collector the services report to
type Metrics struct {
	registry *prometheus.Registry

	queueJoins          *prometheus.CounterVec
	queueCommands       *prometheus.CounterVec
	proposalsCreated    *prometheus.CounterVec
	unmatchedReasons    *prometheus.CounterVec
	sweepDuration       prometheus.Histogram
	sweepsSkipped       prometheus.Counter
	voteOutcomes        *prometheus.CounterVec
	schedulesConfirmed  prometheus.Counter
	completions         *prometheus.CounterVec
	pointsAwarded       prometheus.Histogram
	sideChannelFailures *prometheus.CounterVec
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		queueJoins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_joins_total",
			Help:      "Queue join attempts by result",
		}, []string{"result"}),
		queueCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_commands_total",
			Help:      "Queue commands consumed from the broker by type and result",
		}, []string{"type", "result"}),
		proposalsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_created_total",
			Help:      "Match proposals persisted by formation kind",
		}, []string{"kind"}),
		unmatchedReasons: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_entries_total",
			Help:      "Queue entries left waiting after a sweep by reason",
		}, []string{"reason"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_ms",
			Help:      "Matchmaking sweep duration in milliseconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		sweepsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_skipped_total",
			Help:      "Sweeps skipped because another instance held the lock",
		}),
		voteOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Approval votes by resulting outcome",
		}, []string{"outcome"}),
		schedulesConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedules_confirmed_total",
			Help:      "Matches moved to scheduled by their captain",
		}),
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completed matches by whether they counted for the regional ranking",
		}, []string{"counted"}),
		pointsAwarded: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "winner_points",
			Help:      "Points awarded to the winning team",
			Buckets:   prometheus.LinearBuckets(10, 10, 8),
		}),
		sideChannelFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_channel_failures_total",
			Help:      "Failed best-effort writes to kafka, redis or websocket",
		}, []string{"channel"}),
	}
}

// Registry returns the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// QueueJoin counts a queue join attempt by result
func (m *Metrics) QueueJoin(result string) {
	m.queueJoins.WithLabelValues(result).Inc()
}

// QueueCommand counts a queue command consumed from the broker
func (m *Metrics) QueueCommand(commandType, result string) {
	m.queueCommands.WithLabelValues(commandType, result).Inc()
}

// ProposalCreated counts a persisted proposal by formation kind
func (m *Metrics) ProposalCreated(kind string) {
	m.proposalsCreated.WithLabelValues(kind).Inc()
}

// Unmatched adds entries left waiting after a sweep under reason
func (m *Metrics) Unmatched(reason string, count int) {
	m.unmatchedReasons.WithLabelValues(reason).Add(float64(count))
}

// SweepFinished records how long a sweep took
func (m *Metrics) SweepFinished(elapsed time.Duration) {
	m.sweepDuration.Observe(float64(elapsed.Milliseconds()))
}

// SweepSkipped counts a sweep skipped because the lock was held elsewhere
func (m *Metrics) SweepSkipped() {
	m.sweepsSkipped.Inc()
}

// Vote counts a cast vote by the outcome it produced
func (m *Metrics) Vote(outcome string) {
	m.voteOutcomes.WithLabelValues(outcome).Inc()
}

// ScheduleConfirmed counts a match moved to scheduled
func (m *Metrics) ScheduleConfirmed() {
	m.schedulesConfirmed.Inc()
}

// Completion counts a completed match; counted results also record the winner points
func (m *Metrics) Completion(counted bool, winnerPoints int) {
	m.completions.WithLabelValues(strconv.FormatBool(counted)).Inc()
	if counted {
		m.pointsAwarded.Observe(float64(winnerPoints))
	}
}

// SideChannelFailure counts a failed best-effort write to kafka, redis or websocket
func (m *Metrics) SideChannelFailure(channel string) {
	m.sideChannelFailures.WithLabelValues(channel).Inc()
}

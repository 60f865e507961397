// Package metrics instruments an Assembly run with the
// counters/gauges/histograms the teacher's proposer and stats packages
// expose via prometheus client_golang. Unlike the teacher, which
// MustRegisters into the global default registerer, Registry owns a
// private *prometheus.Registry so that an application (or a test suite)
// can run many Assemblies in the same process without a
// duplicate-registration panic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Registry struct {
	reg *prometheus.Registry

	LiveAgents       prometheus.Gauge
	BallotsInitiated prometheus.Counter
	DecreesLearned   prometheus.Counter
	MessagesDropped  prometheus.Counter
	BallotLifespan   prometheus.Histogram
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		LiveAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parliament",
			Name:      "live_agents",
			Help:      "Number of agent worker goroutines currently running.",
		}),
		BallotsInitiated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parliament",
			Name:      "ballots_initiated_total",
			Help:      "Ballots initiated by proposers, summed across all instances.",
		}),
		DecreesLearned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parliament",
			Name:      "decrees_learned_total",
			Help:      "Decrees learned by proposers upon observing a successful ballot.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parliament",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped by the unreliable transport's simulated loss.",
		}),
		BallotLifespan: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "parliament",
			Name:      "ballot_lifespan_seconds",
			Help:      "Wall-clock time from a ballot's initiation to its success being observed by its proposer.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	r.reg.MustRegister(r.LiveAgents, r.BallotsInitiated, r.DecreesLearned, r.MessagesDropped, r.BallotLifespan)
	return r
}

// Gatherer exposes the private registry for wiring into an HTTP
// /metrics handler (promhttp.HandlerFor), without leaking the
// concrete *prometheus.Registry type.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) IncBallotsInitiated()                   { r.BallotsInitiated.Inc() }
func (r *Registry) IncDecreesLearned()                     { r.DecreesLearned.Inc() }
func (r *Registry) IncMessagesDropped()                    { r.MessagesDropped.Inc() }
func (r *Registry) ObserveBallotLifespan(d time.Duration)  { r.BallotLifespan.Observe(d.Seconds()) }
func (r *Registry) SetLiveAgents(n int)                    { r.LiveAgents.Set(float64(n)) }

package metrics

import "github.com/prometheus/client_golang/prometheus"

type Observer interface {
	Observe(val float64, labels ...string)

	// for now we will tightly couple to the prometheus collector type
	// the go otel metrics sdk also has a prometheus adapter that implements this interface.
	prometheus.Collector
}

type Metrics struct {
	TMIMsgsCount    Observer
	TMICommandCount Observer
	ThemeChanges    Observer
	Denials         Observer
	FollowerLookups Observer
	Whispers        Observer
	ApplyLatency    Observer
}

func (m Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TMIMsgsCount,
		m.TMICommandCount,
		m.ThemeChanges,
		m.Denials,
		m.FollowerLookups,
		m.Whispers,
		m.ApplyLatency,
	}
}

// New creates the themer's metrics.
func New() *Metrics {
	return &Metrics{
		TMIMsgsCount: NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "themer",
					Subsystem: "tmi",
					Name:      "messages",
					Help:      "Number of PRIVMSGs received from TMI.",
				},
			),
		),
		TMICommandCount: NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "themer",
					Subsystem: "tmi",
					Name:      "commands",
					Help:      "Number of theme command invocations received in Twitch chat.",
				},
				[]string{"command"},
			),
		),
		ThemeChanges: NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "themer",
					Subsystem: "editor",
					Name:      "changes",
					Help:      "Number of themes applied, by command.",
				},
				[]string{"command"},
			),
		),
		Denials: NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "themer",
					Subsystem: "commands",
					Name:      "denials",
					Help:      "Number of refused commands, by reason.",
				},
				[]string{"reason"},
			),
		),
		FollowerLookups: NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "themer",
					Subsystem: "twitch",
					Name:      "follower_lookups",
					Help:      "Number of follower lookups, by whether the user follows.",
				},
				[]string{"following"},
			),
		),
		Whispers: NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "themer",
					Subsystem: "twitch",
					Name:      "whispers",
					Help:      "Number of whispers sent.",
				},
			),
		),
		ApplyLatency: NewPromHistogram(
			prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 5, 10},
					Namespace: "themer",
					Subsystem: "commands",
					Name:      "handle_latency",
					Help:      "How long it takes to handle a theme command in seconds",
				},
			),
		),
	}
}

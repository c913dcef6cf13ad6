package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/event"
)

const namespace = "flashgame"

// GameMetrics counts game events. Every instance counts what happens on it.
type GameMetrics struct {
	Joins           prometheus.Counter
	Starts          prometheus.Counter
	Completions     *prometheus.CounterVec
	Finishes        prometheus.Counter
	ProgressDropped prometheus.Counter
}

// MonitorGames registers the game counters on reg and feeds them from the bus.
func MonitorGames(reg prometheus.Registerer, eb *event.Bus) (*GameMetrics, error) {
	m := &GameMetrics{
		Joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_joined_total",
			Help:      "Participants admitted to a game.",
		}),
		Starts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Games moved to in-progress.",
		}),
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_completed_total",
			Help:      "Games moved to completed, by what completed them.",
		}, []string{"trigger"}),
		Finishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_finished_total",
			Help:      "Participants who answered every question.",
		}),
		ProgressDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_writes_dropped_total",
			Help:      "Participant progress writes given up after retries.",
		}),
	}

	for _, c := range []prometheus.Collector{m.Joins, m.Starts, m.Completions, m.Finishes, m.ProgressDropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	event.On(eb, func(context.Context, domain.EventParticipantJoined) error {
		m.Joins.Inc()
		return nil
	})
	event.On(eb, func(context.Context, domain.EventGameStarted) error {
		m.Starts.Inc()
		return nil
	})
	event.On(eb, func(_ context.Context, e domain.EventGameCompleted) error {
		m.Completions.WithLabelValues(string(e.Trigger)).Inc()
		return nil
	})
	event.On(eb, func(context.Context, domain.EventParticipantFinished) error {
		m.Finishes.Inc()
		return nil
	})
	event.On(eb, func(context.Context, domain.EventProgressDropped) error {
		m.ProgressDropped.Inc()
		return nil
	})

	return m, nil
}

// Package metrics records conversation analytics as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements the analytics hooks the engine reports to.
type Collector struct {
	missingInformation *prometheus.CounterVec
	plannedActions     *prometheus.CounterVec
	fallbacks          *prometheus.CounterVec
	turnDuration       *prometheus.HistogramVec
	goalTransitions    *prometheus.CounterVec
}

// NewCollector registers the collector's metrics with reg. A nil reg uses the
// default Prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		missingInformation: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "missing_information_total",
				Help:      "Questions repeated after the agent could only answer with a fallback",
			},
			[]string{"question"},
		),
		plannedActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "planned_actions_total",
				Help:      "Actions planned by the goal planner",
			},
			[]string{"action"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Recoverable turn failures by kind",
			},
			[]string{"kind"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Wall time of a complete turn",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"trigger"},
		),
		goalTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "goal_transitions_total",
				Help:      "Goal changes committed at the end of a turn",
			},
			[]string{"from", "to"},
		),
	}
}

func (c *Collector) RecordMissingInformation(ctx context.Context, conversationID, question string) {
	c.missingInformation.WithLabelValues(question).Inc()
}

func (c *Collector) RecordPlannedAction(action string) {
	c.plannedActions.WithLabelValues(action).Inc()
}

func (c *Collector) RecordFallback(kind string) {
	c.fallbacks.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordTurn(trigger string, d time.Duration) {
	c.turnDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

func (c *Collector) RecordGoalTransition(from, to string) {
	if from == to {
		return
	}
	c.goalTransitions.WithLabelValues(from, to).Inc()
}

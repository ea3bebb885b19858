// Package observability provides Prometheus instrumentation for session
// activity, fed by domain.LifecycleHooks.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/espalier/pkg/domain"
)

// Metrics holds the session-level Prometheus collectors.
type Metrics struct {
	stageEnters *prometheus.CounterVec
	toggles     *prometheus.CounterVec
	reconciles  *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
}

// NewMetrics creates the collectors. Register them with a registry before
// use.
func NewMetrics() *Metrics {
	return &Metrics{
		stageEnters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_stage_enters_total",
				Help: "Stage navigations by stage.",
			},
			[]string{"stage"},
		),
		toggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_host_toggles_total",
				Help: "Host enablement toggles by stage and direction.",
			},
			[]string{"stage", "direction"},
		),
		reconciles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_reconcile_events_total",
				Help: "Change-feed deliveries folded into local caches.",
			},
			[]string{"type"},
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_update_conflicts_total",
				Help: "Lost compare-and-swap races by operation.",
			},
			[]string{"op"},
		),
	}
}

// Register registers all collectors with the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.stageEnters, m.toggles, m.reconciles, m.conflicts} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(_ context.Context, e *domain.StageEvent) {
			m.stageEnters.WithLabelValues(string(e.Stage)).Inc()
		},
		OnToggle: func(_ context.Context, e *domain.ToggleEvent) {
			direction := "disabled"
			if e.Enabled {
				direction = "enabled"
			}
			m.toggles.WithLabelValues(string(e.Stage), direction).Inc()
		},
		OnReconcile: func(_ context.Context, e *domain.ReconcileEvent) {
			m.reconciles.WithLabelValues(string(e.Type)).Inc()
		},
		OnConflict: func(_ context.Context, e *domain.ConflictEvent) {
			m.conflicts.WithLabelValues(e.Op).Inc()
		},
	}
}

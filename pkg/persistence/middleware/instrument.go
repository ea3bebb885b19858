package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// StoreMetrics holds the Prometheus collectors for room-store traffic.
type StoreMetrics struct {
	calls     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	conflicts prometheus.Counter
}

// NewStoreMetrics creates the collectors. Register them with a registry
// before use.
func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_store_calls_total",
				Help: "Total room store calls by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "espalier_store_call_duration_seconds",
				Help: "Duration of room store calls.",
			},
			[]string{"op"},
		),
		conflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "espalier_store_version_conflicts_total",
				Help: "Compare-and-swap updates lost to a concurrent writer.",
			},
		),
	}
}

// Register registers all collectors with the given registerer.
func (m *StoreMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.calls, m.duration, m.conflicts} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *StoreMetrics) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, domain.ErrVersionConflict) {
			outcome = "conflict"
			m.conflicts.Inc()
		}
	}
	m.calls.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

type instrumentMiddleware struct {
	next    ports.RoomStore
	metrics *StoreMetrics
}

// NewInstrumentMiddleware records Prometheus metrics for every store call.
func NewInstrumentMiddleware(metrics *StoreMetrics) Middleware {
	return func(next ports.RoomStore) ports.RoomStore {
		return &instrumentMiddleware{next: next, metrics: metrics}
	}
}

func (m *instrumentMiddleware) Load(ctx context.Context, roomID string) (*domain.RoomState, error) {
	start := time.Now()
	state, err := m.next.Load(ctx, roomID)
	m.metrics.observe("load", start, err)
	return state, err
}

func (m *instrumentMiddleware) Create(ctx context.Context, state *domain.RoomState) error {
	start := time.Now()
	err := m.next.Create(ctx, state)
	m.metrics.observe("create", start, err)
	return err
}

func (m *instrumentMiddleware) Update(ctx context.Context, state *domain.RoomState) error {
	start := time.Now()
	err := m.next.Update(ctx, state)
	m.metrics.observe("update", start, err)
	return err
}

func (m *instrumentMiddleware) Delete(ctx context.Context, roomID string) error {
	start := time.Now()
	err := m.next.Delete(ctx, roomID)
	m.metrics.observe("delete", start, err)
	return err
}

func (m *instrumentMiddleware) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	rooms, err := m.next.List(ctx)
	m.metrics.observe("list", start, err)
	return rooms, err
}

func (m *instrumentMiddleware) Watch(ctx context.Context, roomID string) (<-chan domain.ChangeEvent, error) {
	start := time.Now()
	events, err := m.next.Watch(ctx, roomID)
	m.metrics.observe("watch", start, err)
	return events, err
}

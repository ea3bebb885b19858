package middleware_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/persistence/middleware"
)

func TestLoggingMiddleware_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store := middleware.Chain(memory.NewStore(), middleware.NewLoggingMiddleware(logger))
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "room store call failed")
	assert.Contains(t, out, "op=load")
	assert.Contains(t, out, "room_id=missing")
}

func TestInstrumentMiddleware_CountsConflicts(t *testing.T) {
	metrics := middleware.NewStoreMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	store := middleware.Chain(memory.NewStore(), middleware.NewInstrumentMiddleware(metrics))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, domain.NewRoomState("m", "host", domain.StageLobby)))

	stale, err := store.Load(ctx, "m")
	require.NoError(t, err)

	fresh := stale.Clone()
	fresh.MarkVisited(domain.StageBriefing)
	require.NoError(t, store.Update(ctx, fresh))

	stale.ToggleEnabled(domain.StageDesign)
	require.ErrorIs(t, store.Update(ctx, stale), domain.ErrVersionConflict)

	families, err := reg.Gather()
	require.NoError(t, err)

	var sawConflictCounter bool
	for _, mf := range families {
		if strings.HasSuffix(mf.GetName(), "version_conflicts_total") {
			sawConflictCounter = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, sawConflictCounter, "conflict counter not gathered")
}

func TestChain_Order(t *testing.T) {
	// Chain must terminate at the base store regardless of wrapper count.
	store := middleware.Chain(memory.NewStore(),
		middleware.NewLoggingMiddleware(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		middleware.NewInstrumentMiddleware(mustRegistered(t)),
	)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, domain.NewRoomState("c", "host", domain.StageLobby)))
	state, err := store.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "host", state.HostUserID)
}

func mustRegistered(t *testing.T) *middleware.StoreMetrics {
	t.Helper()
	metrics := middleware.NewStoreMetrics()
	require.NoError(t, metrics.Register(prometheus.NewRegistry()))
	return metrics
}

package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

type loggingMiddleware struct {
	next   ports.RoomStore
	logger *slog.Logger
}

// NewLoggingMiddleware logs every store call with its duration and outcome.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ports.RoomStore) ports.RoomStore {
		return &loggingMiddleware{next: next, logger: logger}
	}
}

func (m *loggingMiddleware) log(op, roomID string, start time.Time, err error) {
	attrs := []any{
		"op", op,
		"room_id", roomID,
		"duration", time.Since(start),
	}
	if err != nil {
		m.logger.Warn("room store call failed", append(attrs, "err", err)...)
		return
	}
	m.logger.Debug("room store call", attrs...)
}

func (m *loggingMiddleware) Load(ctx context.Context, roomID string) (*domain.RoomState, error) {
	start := time.Now()
	state, err := m.next.Load(ctx, roomID)
	m.log("load", roomID, start, err)
	return state, err
}

func (m *loggingMiddleware) Create(ctx context.Context, state *domain.RoomState) error {
	start := time.Now()
	err := m.next.Create(ctx, state)
	m.log("create", state.RoomID, start, err)
	return err
}

func (m *loggingMiddleware) Update(ctx context.Context, state *domain.RoomState) error {
	start := time.Now()
	err := m.next.Update(ctx, state)
	m.log("update", state.RoomID, start, err)
	return err
}

func (m *loggingMiddleware) Delete(ctx context.Context, roomID string) error {
	start := time.Now()
	err := m.next.Delete(ctx, roomID)
	m.log("delete", roomID, start, err)
	return err
}

func (m *loggingMiddleware) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	rooms, err := m.next.List(ctx)
	m.log("list", "", start, err)
	return rooms, err
}

func (m *loggingMiddleware) Watch(ctx context.Context, roomID string) (<-chan domain.ChangeEvent, error) {
	start := time.Now()
	events, err := m.next.Watch(ctx, roomID)
	m.log("watch", roomID, start, err)
	return events, err
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/access"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// defaultMaxRetries bounds the compare-and-swap retry loop for Navigate and
// ToggleEnabled.
const defaultMaxRetries = 3

// Session is one participant's handle on a room. It owns the room's change
// feed subscription and a cached copy of the authoritative row.
type Session struct {
	roomID string
	userID string

	store  ports.RoomStore
	engine *access.Engine
	logger *slog.Logger
	hooks  domain.LifecycleHooks

	maxRetries int

	cancel context.CancelFunc
	done   chan struct{}
	ready  chan struct{}

	mu    sync.RWMutex
	state *domain.RoomState // nil once the row is deleted or before init

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
	closed  bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger configures a logger for feed and retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithHooks registers observability callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Session) {
		s.hooks = hooks
	}
}

// WithMaxRetries overrides the CAS retry budget for mutations.
func WithMaxRetries(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// Initialize loads the room row, creating it when absent. The first
// successful creator becomes the host; a losing creator silently adopts the
// winner's row. The returned session holds an open change-feed subscription
// that Close releases.
func Initialize(ctx context.Context, store ports.RoomStore, graph *domain.Graph, roomID, userID string, opts ...Option) (*Session, error) {
	if roomID == "" || userID == "" {
		return nil, fmt.Errorf("room id and user id are required")
	}

	s := &Session{
		roomID:     roomID,
		userID:     userID,
		store:      store,
		engine:     access.NewEngine(graph),
		logger:     logging.NewNop(),
		maxRetries: defaultMaxRetries,
		done:       make(chan struct{}),
		ready:      make(chan struct{}),
		subs:       make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// The subscription outlives the Initialize call; it is scoped to the
	// session, not to the caller's context.
	feedCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// Subscribe before the first read so the echo of our own create (or of
	// a concurrent winner's) cannot slip between load and watch.
	events, err := store.Watch(feedCtx, roomID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change feed: %w", err)
	}

	state, err := s.loadOrCreate(ctx)
	if err != nil {
		cancel()
		// Drain until the store closes the feed to avoid leaking the
		// subscriber goroutine.
		go func() {
			for range events {
			}
		}()
		return nil, err
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	close(s.ready)

	go s.reconcile(feedCtx, events)

	s.logger.Debug("session initialized",
		"room_id", roomID,
		"user_id", userID,
		"host", state.HostUserID == userID,
	)
	return s, nil
}

// loadOrCreate implements the host election protocol: read, create on
// absence, and on a lost creation race adopt the winner's row.
func (s *Session) loadOrCreate(ctx context.Context) (*domain.RoomState, error) {
	state, err := s.store.Load(ctx, s.roomID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, domain.ErrRoomNotFound) {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	fresh := domain.NewRoomState(s.roomID, s.userID, s.engine.Graph().Entry())
	createErr := s.store.Create(ctx, fresh)
	switch {
	case createErr == nil:
	case errors.Is(createErr, domain.ErrRoomExists):
		// Another participant won the election; their row is authoritative.
		s.logger.Debug("lost host election", "room_id", s.roomID)
	default:
		return nil, fmt.Errorf("failed to create room: %w", createErr)
	}

	state, err = s.store.Load(ctx, s.roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room after creation: %w", err)
	}
	return state, nil
}

// reconcile folds change-feed deliveries into the cached state.
func (s *Session) reconcile(ctx context.Context, events <-chan domain.ChangeEvent) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.apply(ctx, ev)
		}
	}
}

// apply replaces the cached state wholesale with the delivered snapshot
// (last delivered wins). Applying an identical snapshot twice is a no-op.
func (s *Session) apply(ctx context.Context, ev domain.ChangeEvent) {
	s.mu.Lock()
	changed := false
	var version int64

	switch ev.Type {
	case domain.EventInsert, domain.EventUpdate:
		if ev.New == nil {
			s.mu.Unlock()
			return
		}
		version = ev.New.Version
		if s.state == nil || s.state.Version != ev.New.Version {
			s.state = ev.New.Clone()
			changed = true
		}
	case domain.EventDelete:
		if s.state != nil {
			s.state = nil
			changed = true
		}
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if !changed {
		return
	}

	if s.hooks.OnReconcile != nil {
		s.hooks.OnReconcile(ctx, &domain.ReconcileEvent{
			Timestamp: time.Now().UTC(),
			RoomID:    s.roomID,
			Type:      ev.Type,
			Version:   version,
		})
	}
	s.notify()
}

// Navigate enters the target stage: it validates full accessibility against
// the cached state, persists the new current stage and visited set, and
// leaves the cache untouched until the feed echoes the write back.
func (s *Session) Navigate(ctx context.Context, target domain.StageID) error {
	state := s.snapshot()
	if state == nil {
		return domain.ErrNotInitialized
	}

	for attempt := 0; ; attempt++ {
		if err := s.checkAccessible(target, state); err != nil {
			return err
		}

		next := state.Clone()
		next.MarkVisited(target)
		next.CurrentStage = target

		err := s.store.Update(ctx, next)
		if err == nil {
			if s.hooks.OnStageEnter != nil {
				s.hooks.OnStageEnter(ctx, &domain.StageEvent{
					Timestamp: time.Now().UTC(),
					RoomID:    s.roomID,
					UserID:    s.userID,
					Stage:     target,
				})
			}
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return fmt.Errorf("failed to persist navigation: %w", err)
		}

		state, err = s.retryState(ctx, "navigate", attempt)
		if err != nil {
			return err
		}
	}
}

// ToggleEnabled flips the host-enablement of an intermediate stage. Only the
// host may call it.
func (s *Session) ToggleEnabled(ctx context.Context, stage domain.StageID) error {
	state := s.snapshot()
	if state == nil {
		return domain.ErrNotInitialized
	}
	if state.HostUserID != s.userID {
		return domain.ErrNotAuthorized
	}

	graph := s.engine.Graph()
	if !graph.Contains(stage) {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if graph.IsSentinel(stage) {
		return fmt.Errorf("stage %q is always enabled and not host-controllable", stage)
	}

	for attempt := 0; ; attempt++ {
		next := state.Clone()
		enabled := next.ToggleEnabled(stage)

		err := s.store.Update(ctx, next)
		if err == nil {
			if s.hooks.OnToggle != nil {
				s.hooks.OnToggle(ctx, &domain.ToggleEvent{
					Timestamp: time.Now().UTC(),
					RoomID:    s.roomID,
					Stage:     stage,
					Enabled:   enabled,
				})
			}
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return fmt.Errorf("failed to persist toggle: %w", err)
		}

		state, err = s.retryState(ctx, "toggle", attempt)
		if err != nil {
			return err
		}
	}
}

// retryState handles a lost CAS race: report it, re-read the row, and hand
// the fresh state back to the retry loop.
func (s *Session) retryState(ctx context.Context, op string, attempt int) (*domain.RoomState, error) {
	if s.hooks.OnConflict != nil {
		s.hooks.OnConflict(ctx, &domain.ConflictEvent{
			Timestamp: time.Now().UTC(),
			RoomID:    s.roomID,
			Op:        op,
		})
	}
	if attempt >= s.maxRetries {
		return nil, fmt.Errorf("%s lost %d consecutive update races: %w", op, attempt+1, domain.ErrVersionConflict)
	}
	s.logger.Debug("update race lost, retrying", "op", op, "room_id", s.roomID, "attempt", attempt+1)

	fresh, err := s.store.Load(ctx, s.roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, domain.ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to re-read room after conflict: %w", err)
	}
	return fresh, nil
}

func (s *Session) checkAccessible(target domain.StageID, state *domain.RoomState) error {
	if !s.engine.Graph().Contains(target) {
		return &domain.NotAccessibleError{Stage: target, Reason: fmt.Sprintf("unknown stage %q", target)}
	}
	reason, blocked := s.engine.Reason(target, state.VisitedStages, state.EnabledStages())
	if blocked {
		return &domain.NotAccessibleError{Stage: target, Reason: reason}
	}
	return nil
}

// snapshot returns a deep copy of the cached state, or nil when
// uninitialized.
func (s *Session) snapshot() *domain.RoomState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// State returns a copy of the cached room state.
func (s *Session) State() (*domain.RoomState, error) {
	state := s.snapshot()
	if state == nil {
		return nil, domain.ErrNotInitialized
	}
	return state, nil
}

// IsAccessible reports whether the stage is fully accessible for this
// participant. It is false while uninitialized.
func (s *Session) IsAccessible(stage domain.StageID) bool {
	state := s.snapshot()
	if state == nil {
		return false
	}
	return s.engine.FullyAccessible(stage, state.VisitedStages, state.EnabledStages())
}

// IsVisited reports whether the stage is in the room's visited set.
func (s *Session) IsVisited(stage domain.StageID) bool {
	state := s.snapshot()
	return state != nil && state.HasVisited(stage)
}

// IsHost reports whether this participant is the room's host.
func (s *Session) IsHost() bool {
	state := s.snapshot()
	return state != nil && state.HostUserID == s.userID
}

// EnabledStages returns the host's enablement overlay.
func (s *Session) EnabledStages() []domain.StageID {
	state := s.snapshot()
	if state == nil {
		return nil
	}
	return state.EnabledStages()
}

// Report evaluates accessibility for every stage of the graph.
func (s *Session) Report() (map[domain.StageID]access.StageAccess, error) {
	state := s.snapshot()
	if state == nil {
		return nil, domain.ErrNotInitialized
	}
	return s.engine.Report(state.VisitedStages, state.EnabledStages()), nil
}

// RecommendedNext returns the first unvisited, fully accessible stage after
// the room's current stage. ok is false in terminal states.
func (s *Session) RecommendedNext() (domain.StageID, bool) {
	state := s.snapshot()
	if state == nil {
		return "", false
	}
	return s.engine.RecommendedNext(state.CurrentStage, state.VisitedStages, state.EnabledStages())
}

// RoomID returns the room this session is bound to.
func (s *Session) RoomID() string { return s.roomID }

// UserID returns the participant this session belongs to.
func (s *Session) UserID() string { return s.userID }

// Graph returns the session's stage graph.
func (s *Session) Graph() *domain.Graph { return s.engine.Graph() }

// Ready is closed once the initial room state has been cached.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Subscribe registers for change notifications. The channel has a buffer of
// one and coalesces bursts; call the returned function to unsubscribe.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

func (s *Session) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close releases the change-feed subscription and wakes subscribers. It is
// safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	<-s.done

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

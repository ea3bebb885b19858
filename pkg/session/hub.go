package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Hub owns one live session per (room, participant) pair on behalf of
// serving adapters, releasing each session's feed subscription on teardown.
type Hub struct {
	store       ports.RoomStore
	graph       *domain.Graph
	logger      *slog.Logger
	sessionOpts []Option

	mu       sync.Mutex
	sessions map[hubKey]*Session
}

type hubKey struct {
	roomID string
	userID string
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger configures the hub's logger; it is also handed to sessions.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithSessionOptions appends options applied to every session the hub opens.
func WithSessionOptions(opts ...Option) HubOption {
	return func(h *Hub) {
		h.sessionOpts = append(h.sessionOpts, opts...)
	}
}

// NewHub creates a hub over the given store and stage graph.
func NewHub(store ports.RoomStore, graph *domain.Graph, opts ...HubOption) *Hub {
	h := &Hub{
		store:    store,
		graph:    graph,
		logger:   logging.NewNop(),
		sessions: make(map[hubKey]*Session),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Graph returns the stage graph the hub opens sessions against.
func (h *Hub) Graph() *domain.Graph {
	return h.graph
}

// Initialize returns the existing session for the pair or opens a new one.
func (h *Hub) Initialize(ctx context.Context, roomID, userID string) (*Session, error) {
	key := hubKey{roomID: roomID, userID: userID}

	h.mu.Lock()
	if s, ok := h.sessions[key]; ok {
		h.mu.Unlock()
		return s, nil
	}
	h.mu.Unlock()

	opts := append([]Option{WithLogger(h.logger)}, h.sessionOpts...)
	s, err := Initialize(ctx, h.store, h.graph, roomID, userID, opts...)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.sessions[key]; ok {
		// Another request won the race; keep theirs.
		go s.Close()
		return existing, nil
	}
	h.sessions[key] = s
	return s, nil
}

// Get returns the pair's session, or ok=false when none was initialized.
func (h *Hub) Get(roomID, userID string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[hubKey{roomID: roomID, userID: userID}]
	return s, ok
}

// Teardown closes and forgets the pair's session. Unknown pairs are a no-op.
func (h *Hub) Teardown(roomID, userID string) {
	key := hubKey{roomID: roomID, userID: userID}

	h.mu.Lock()
	s, ok := h.sessions[key]
	if ok {
		delete(h.sessions, key)
	}
	h.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Close tears down every session the hub still owns.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[hubKey]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

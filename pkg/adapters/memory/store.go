// Package memory implements ports.RoomStore in process memory.
// It backs tests and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
)

func nowUTC() time.Time { return time.Now().UTC() }

// subscriberBuffer bounds each watch channel. The feed is best-effort:
// a subscriber that falls this far behind loses deliveries.
const subscriberBuffer = 64

// Store implements ports.RoomStore in memory. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*domain.RoomState
	subs   map[string]map[int]chan domain.ChangeEvent
	nextID int
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*domain.RoomState),
		subs:  make(map[string]map[int]chan domain.ChangeEvent),
	}
}

// Load retrieves a copy of the room row.
func (s *Store) Load(ctx context.Context, roomID string) (*domain.RoomState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return state.Clone(), nil
}

// Create inserts the row if the room id is free.
func (s *Store) Create(ctx context.Context, state *domain.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[state.RoomID]; exists {
		return domain.ErrRoomExists
	}

	row := state.Clone()
	row.Version = 1
	s.rooms[state.RoomID] = row
	s.publishLocked(state.RoomID, domain.ChangeEvent{Type: domain.EventInsert, New: row.Clone()})
	return nil
}

// Update replaces the row when the caller's version matches the stored one.
func (s *Store) Update(ctx context.Context, state *domain.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rooms[state.RoomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if current.Version != state.Version {
		return domain.ErrVersionConflict
	}

	row := state.Clone()
	row.Version = current.Version + 1
	row.UpdatedAt = nowUTC()
	s.rooms[state.RoomID] = row
	s.publishLocked(state.RoomID, domain.ChangeEvent{
		Type: domain.EventUpdate,
		New:  row.Clone(),
		Old:  current.Clone(),
	})
	return nil
}

// Delete removes the row if present.
func (s *Store) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	delete(s.rooms, roomID)
	s.publishLocked(roomID, domain.ChangeEvent{Type: domain.EventDelete, Old: current.Clone()})
	return nil
}

// List returns all stored room ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids, nil
}

// Watch subscribes to the room's change feed until ctx is canceled.
func (s *Store) Watch(ctx context.Context, roomID string) (<-chan domain.ChangeEvent, error) {
	s.mu.Lock()
	if s.subs[roomID] == nil {
		s.subs[roomID] = make(map[int]chan domain.ChangeEvent)
	}
	id := s.nextID
	s.nextID++
	ch := make(chan domain.ChangeEvent, subscriberBuffer)
	s.subs[roomID][id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if subs, ok := s.subs[roomID]; ok {
			if sub, live := subs[id]; live {
				delete(subs, id)
				close(sub)
			}
			if len(subs) == 0 {
				delete(s.subs, roomID)
			}
		}
	}()

	return ch, nil
}

// publishLocked fans an event out to the room's subscribers.
// Callers must hold s.mu.
func (s *Store) publishLocked(roomID string, ev domain.ChangeEvent) {
	for _, ch := range s.subs[roomID] {
		select {
		case ch <- ev:
		default:
			// Subscriber too far behind; the feed is best-effort.
		}
	}
}

// Package redis implements ports.RoomStore on Redis.
//
// Each room is one JSON row under a prefixed key. Host election rides on
// SET NX (exactly one creator wins), updates are optimistic WATCH/MULTI
// transactions keyed on the row version, and the change feed is a per-room
// pub/sub channel fed by every successful write.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/espalier/pkg/domain"
)

const defaultPrefix = "espalier:room:"

func nowUTC() time.Time { return time.Now().UTC() }

// Store implements ports.RoomStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix for room rows and event channels.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(roomID string) string     { return s.prefix + roomID }
func (s *Store) channel(roomID string) string { return s.prefix + "events:" + roomID }
func (s *Store) indexKey() string             { return s.prefix + "index" }

// Load retrieves the row for a room.
func (s *Store) Load(ctx context.Context, roomID string) (*domain.RoomState, error) {
	val, err := s.client.Get(ctx, s.key(roomID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room from redis: %w", err)
	}
	return decodeRow([]byte(val))
}

// Create atomically inserts the row. SET NX guarantees a single winner per
// room id, which is the whole host-election protocol.
func (s *Store) Create(ctx context.Context, state *domain.RoomState) error {
	row := state.Clone()
	row.Version = 1

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal room state: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key(row.RoomID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create room in redis: %w", err)
	}
	if !created {
		return domain.ErrRoomExists
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, s.indexKey(), row.RoomID)
	s.publish(ctx, pipe, domain.ChangeEvent{Type: domain.EventInsert, New: row})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index room: %w", err)
	}
	return nil
}

// Update replaces the row inside a WATCH transaction, failing with
// domain.ErrVersionConflict when any other writer touched the key since the
// caller read it.
func (s *Store) Update(ctx context.Context, state *domain.RoomState) error {
	key := s.key(state.RoomID)

	txn := func(tx *backend.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				return domain.ErrRoomNotFound
			}
			return fmt.Errorf("failed to read room for update: %w", err)
		}

		current, err := decodeRow([]byte(val))
		if err != nil {
			return err
		}
		if current.Version != state.Version {
			return domain.ErrVersionConflict
		}

		row := state.Clone()
		row.Version = current.Version + 1
		row.UpdatedAt = nowUTC()
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal room state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			s.publish(ctx, pipe, domain.ChangeEvent{Type: domain.EventUpdate, New: row, Old: current})
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, backend.TxFailedErr) {
		// The key changed between WATCH and EXEC; same outcome as a stale
		// version.
		return domain.ErrVersionConflict
	}
	return err
}

// Delete removes the row and announces the deletion on the feed.
func (s *Store) Delete(ctx context.Context, roomID string) error {
	val, err := s.client.Get(ctx, s.key(roomID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil
		}
		return fmt.Errorf("failed to read room for delete: %w", err)
	}
	old, err := decodeRow([]byte(val))
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(roomID))
	pipe.SRem(ctx, s.indexKey(), roomID)
	s.publish(ctx, pipe, domain.ChangeEvent{Type: domain.EventDelete, Old: old})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

// List returns all room ids from the index set.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rooms, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// Watch subscribes to the room's pub/sub channel and translates messages
// into change events until ctx is canceled.
func (s *Store) Watch(ctx context.Context, roomID string) (<-chan domain.ChangeEvent, error) {
	sub := s.client.Subscribe(ctx, s.channel(roomID))

	// Force the subscription onto the wire before returning so callers do
	// not miss writes issued right after Watch.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to room feed: %w", err)
	}

	out := make(chan domain.ChangeEvent)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev domain.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					// Malformed feed payloads are dropped; the next
					// snapshot supersedes them anyway.
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the underlying redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) publish(ctx context.Context, pipe backend.Pipeliner, ev domain.ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	pipe.Publish(ctx, s.channel(eventRoomID(ev)), payload)
}

func eventRoomID(ev domain.ChangeEvent) string {
	if ev.New != nil {
		return ev.New.RoomID
	}
	if ev.Old != nil {
		return ev.Old.RoomID
	}
	return ""
}

func decodeRow(data []byte) (*domain.RoomState, error) {
	var state domain.RoomState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room state: %w", err)
	}
	return &state, nil
}

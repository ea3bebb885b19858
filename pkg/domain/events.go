package domain

import (
	"context"
	"time"
)

// EventType categorizes a change-feed delivery.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent is one delivery from the persistence collaborator's change
// feed, scoped to a single room row. New is nil for deletes; Old is nil for
// inserts and may be nil for updates when the feed cannot supply it.
type ChangeEvent struct {
	Type EventType  `json:"type"`
	New  *RoomState `json:"new,omitempty"`
	Old  *RoomState `json:"old,omitempty"`
}

// StageEvent records a participant entering a stage.
type StageEvent struct {
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Stage     StageID   `json:"stage"`
}

// ToggleEvent records the host flipping a stage's enablement.
type ToggleEvent struct {
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"room_id"`
	Stage     StageID   `json:"stage"`
	Enabled   bool      `json:"enabled"`
}

// ReconcileEvent records a change-feed delivery folded into the local cache.
type ReconcileEvent struct {
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"room_id"`
	Type      EventType `json:"type"`
	Version   int64     `json:"version"`
}

// ConflictEvent records a lost compare-and-swap race.
type ConflictEvent struct {
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"room_id"`
	Op        string    `json:"op"`
}

// LifecycleHooks defines callbacks for session observability. All hooks are
// optional and invoked synchronously.
type LifecycleHooks struct {
	OnStageEnter func(context.Context, *StageEvent)
	OnToggle     func(context.Context, *ToggleEvent)
	OnReconcile  func(context.Context, *ReconcileEvent)
	OnConflict   func(context.Context, *ConflictEvent)
}

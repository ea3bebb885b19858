package domain

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// MetadataKeyEnabledStages is the metadata blob key holding the host's
// stage-enablement overlay.
const MetadataKeyEnabledStages = "enabled_stages"

// RoomState is the persisted, per-room session row. One row exists per room;
// every connected participant reconciles against the same row.
type RoomState struct {
	RoomID       string  `json:"room_id"`
	CurrentStage StageID `json:"current_stage"`

	// HostUserID is set once when the row is created and never changes.
	HostUserID string `json:"host_user_id"`

	// VisitedStages preserves insertion order and contains no duplicates.
	// It always includes the entry stage and CurrentStage.
	VisitedStages []StageID `json:"visited_stages"`

	// Metadata is a structured blob persisted as a whole. The host's
	// enablement overlay lives under MetadataKeyEnabledStages; a nil map or
	// missing key means the host never enabled anything.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Version is the optimistic-concurrency counter bumped by every update.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRoomState creates the initial row for a freshly opened room. The
// creating participant becomes the host.
func NewRoomState(roomID, hostUserID string, entry StageID) *RoomState {
	now := time.Now().UTC()
	return &RoomState{
		RoomID:        roomID,
		CurrentStage:  entry,
		HostUserID:    hostUserID,
		VisitedStages: []StageID{entry},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// HasVisited reports whether the stage is in the visited set.
func (r *RoomState) HasVisited(stage StageID) bool {
	for _, v := range r.VisitedStages {
		if v == stage {
			return true
		}
	}
	return false
}

// MarkVisited appends the stage to the visited set, preserving insertion
// order. Re-visiting is a no-op.
func (r *RoomState) MarkVisited(stage StageID) {
	if !r.HasVisited(stage) {
		r.VisitedStages = append(r.VisitedStages, stage)
	}
}

type roomMetadata struct {
	EnabledStages []StageID `mapstructure:"enabled_stages"`
}

// EnabledStages decodes the host's enablement overlay from the metadata
// blob. The zero value (nil) means no intermediate stage is enabled.
func (r *RoomState) EnabledStages() []StageID {
	if r.Metadata == nil {
		return nil
	}
	var meta roomMetadata
	if err := mapstructure.Decode(r.Metadata, &meta); err != nil {
		return nil
	}
	return meta.EnabledStages
}

// IsEnabled reports whether the host has enabled the stage.
func (r *RoomState) IsEnabled(stage StageID) bool {
	for _, s := range r.EnabledStages() {
		if s == stage {
			return true
		}
	}
	return false
}

// SetEnabledStages replaces the enablement overlay inside the metadata blob,
// leaving unrelated metadata keys untouched.
func (r *RoomState) SetEnabledStages(stages []StageID) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	encoded := make([]string, len(stages))
	for i, s := range stages {
		encoded[i] = string(s)
	}
	r.Metadata[MetadataKeyEnabledStages] = encoded
}

// ToggleEnabled adds the stage to the overlay if absent, removes it if
// present, and reports the resulting membership.
func (r *RoomState) ToggleEnabled(stage StageID) bool {
	current := r.EnabledStages()
	next := make([]StageID, 0, len(current)+1)
	removed := false
	for _, s := range current {
		if s == stage {
			removed = true
			continue
		}
		next = append(next, s)
	}
	if !removed {
		next = append(next, stage)
	}
	r.SetEnabledStages(next)
	return !removed
}

// Clone returns a deep copy so callers can mutate freely without aliasing
// cached state.
func (r *RoomState) Clone() *RoomState {
	if r == nil {
		return nil
	}
	next := *r
	next.VisitedStages = append([]StageID(nil), r.VisitedStages...)
	if r.Metadata != nil {
		next.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			if list, ok := v.([]string); ok {
				v = append([]string(nil), list...)
			}
			next.Metadata[k] = v
		}
	}
	return &next
}

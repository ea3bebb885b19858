package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNewRoomState(t *testing.T) {
	state := NewRoomState("room-1", "user-a", StageLobby)

	if state.CurrentStage != StageLobby {
		t.Errorf("current stage = %q, want %q", state.CurrentStage, StageLobby)
	}
	if state.HostUserID != "user-a" {
		t.Errorf("host = %q, want user-a", state.HostUserID)
	}
	if !state.HasVisited(StageLobby) {
		t.Error("entry stage must be visited from creation")
	}
	if got := state.EnabledStages(); len(got) != 0 {
		t.Errorf("fresh room should have no enabled stages, got %v", got)
	}
}

func TestRoomState_MarkVisited_NoDuplicates(t *testing.T) {
	state := NewRoomState("room-1", "user-a", StageLobby)

	state.MarkVisited(StageBriefing)
	state.MarkVisited(StageBriefing)
	state.MarkVisited(StageLobby)

	want := []StageID{StageLobby, StageBriefing}
	if !reflect.DeepEqual(state.VisitedStages, want) {
		t.Errorf("visited = %v, want %v", state.VisitedStages, want)
	}
}

func TestRoomState_ToggleEnabled_Involutive(t *testing.T) {
	state := NewRoomState("room-1", "user-a", StageLobby)

	if enabled := state.ToggleEnabled(StageDesign); !enabled {
		t.Error("first toggle should enable")
	}
	if !state.IsEnabled(StageDesign) {
		t.Error("design should be enabled")
	}
	if enabled := state.ToggleEnabled(StageDesign); enabled {
		t.Error("second toggle should disable")
	}
	if got := state.EnabledStages(); len(got) != 0 {
		t.Errorf("double toggle should restore the empty overlay, got %v", got)
	}
}

func TestRoomState_ToggleEnabled_PreservesMetadata(t *testing.T) {
	state := NewRoomState("room-1", "user-a", StageLobby)
	state.Metadata = map[string]any{"theme": "dark"}

	state.ToggleEnabled(StageBriefing)

	if state.Metadata["theme"] != "dark" {
		t.Error("unrelated metadata keys must survive a toggle")
	}
	if !state.IsEnabled(StageBriefing) {
		t.Error("briefing should be enabled")
	}
}

func TestRoomState_EnabledStages_AfterJSONRoundTrip(t *testing.T) {
	// The metadata blob comes back from persistence as map[string]any with
	// []any values; the overlay must still decode.
	state := NewRoomState("room-1", "user-a", StageLobby)
	state.SetEnabledStages([]StageID{StageBriefing, StageDesign})

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored RoomState
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []StageID{StageBriefing, StageDesign}
	if !reflect.DeepEqual(restored.EnabledStages(), want) {
		t.Errorf("enabled = %v, want %v", restored.EnabledStages(), want)
	}
}

func TestRoomState_Clone_Isolation(t *testing.T) {
	state := NewRoomState("room-1", "user-a", StageLobby)
	state.SetEnabledStages([]StageID{StageBriefing})

	clone := state.Clone()
	clone.MarkVisited(StageBriefing)
	clone.ToggleEnabled(StageDesign)

	if state.HasVisited(StageBriefing) {
		t.Error("mutating the clone leaked into the original visited set")
	}
	if state.IsEnabled(StageDesign) {
		t.Error("mutating the clone leaked into the original overlay")
	}
}

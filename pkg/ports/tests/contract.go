// Package tests provides reusable contract suites for port implementations.
package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// RoomStoreContractTest verifies that an adapter complies with
// ports.RoomStore. The store must be empty when the suite starts.
func RoomStoreContractTest(t *testing.T, store ports.RoomStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-room")
		if !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("Create_Then_Load", func(t *testing.T) {
		state := domain.NewRoomState("room-create", "host-1", domain.StageLobby)
		if err := store.Create(ctx, state); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		loaded, err := store.Load(ctx, "room-create")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if loaded.HostUserID != "host-1" {
			t.Errorf("host = %q, want host-1", loaded.HostUserID)
		}
		if loaded.Version != 1 {
			t.Errorf("created row version = %d, want 1", loaded.Version)
		}
		if !loaded.HasVisited(domain.StageLobby) {
			t.Error("entry stage missing from visited set")
		}
	})

	t.Run("Create_Duplicate", func(t *testing.T) {
		first := domain.NewRoomState("room-dup", "host-1", domain.StageLobby)
		if err := store.Create(ctx, first); err != nil {
			t.Fatalf("first create failed: %v", err)
		}

		second := domain.NewRoomState("room-dup", "host-2", domain.StageLobby)
		if err := store.Create(ctx, second); !errors.Is(err, domain.ErrRoomExists) {
			t.Errorf("expected ErrRoomExists, got %v", err)
		}

		// The first creator's row is authoritative.
		loaded, err := store.Load(ctx, "room-dup")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if loaded.HostUserID != "host-1" {
			t.Errorf("host = %q, want the first creator", loaded.HostUserID)
		}
	})

	t.Run("Update_BumpsVersion", func(t *testing.T) {
		if err := store.Create(ctx, domain.NewRoomState("room-upd", "host-1", domain.StageLobby)); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		loaded, err := store.Load(ctx, "room-upd")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}

		next := loaded.Clone()
		next.MarkVisited(domain.StageBriefing)
		next.CurrentStage = domain.StageBriefing
		if err := store.Update(ctx, next); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		reloaded, err := store.Load(ctx, "room-upd")
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if reloaded.Version != loaded.Version+1 {
			t.Errorf("version = %d, want %d", reloaded.Version, loaded.Version+1)
		}
		if reloaded.CurrentStage != domain.StageBriefing {
			t.Errorf("current stage = %q, want briefing", reloaded.CurrentStage)
		}
	})

	t.Run("Update_StaleVersion", func(t *testing.T) {
		if err := store.Create(ctx, domain.NewRoomState("room-cas", "host-1", domain.StageLobby)); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		loaded, err := store.Load(ctx, "room-cas")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}

		winner := loaded.Clone()
		winner.MarkVisited(domain.StageBriefing)
		if err := store.Update(ctx, winner); err != nil {
			t.Fatalf("winning update failed: %v", err)
		}

		// Second writer still holds the old version.
		loser := loaded.Clone()
		loser.ToggleEnabled(domain.StageDesign)
		if err := store.Update(ctx, loser); !errors.Is(err, domain.ErrVersionConflict) {
			t.Errorf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("Update_Missing", func(t *testing.T) {
		ghost := domain.NewRoomState("room-ghost", "host-1", domain.StageLobby)
		ghost.Version = 1
		if err := store.Update(ctx, ghost); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Create(ctx, domain.NewRoomState("room-del", "host-1", domain.StageLobby)); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := store.Delete(ctx, "room-del"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := store.Load(ctx, "room-del"); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("expected ErrRoomNotFound after delete, got %v", err)
		}
		// Deleting again is a no-op.
		if err := store.Delete(ctx, "room-del"); err != nil {
			t.Errorf("second delete failed: %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		if err := store.Create(ctx, domain.NewRoomState("room-list", "host-1", domain.StageLobby)); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		rooms, err := store.List(ctx)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		found := false
		for _, id := range rooms {
			if id == "room-list" {
				found = true
			}
		}
		if !found {
			t.Errorf("room-list missing from %v", rooms)
		}
	})

	t.Run("Watch_DeliversLifecycle", func(t *testing.T) {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		events, err := store.Watch(watchCtx, "room-watch")
		if err != nil {
			t.Fatalf("watch failed: %v", err)
		}

		if err := store.Create(ctx, domain.NewRoomState("room-watch", "host-1", domain.StageLobby)); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		ev := nextEvent(t, events)
		if ev.Type != domain.EventInsert {
			t.Errorf("event type = %q, want insert", ev.Type)
		}
		if ev.New == nil || ev.New.RoomID != "room-watch" {
			t.Error("insert event missing new row")
		}

		loaded, err := store.Load(ctx, "room-watch")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		next := loaded.Clone()
		next.MarkVisited(domain.StageBriefing)
		if err := store.Update(ctx, next); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		ev = nextEvent(t, events)
		if ev.Type != domain.EventUpdate {
			t.Errorf("event type = %q, want update", ev.Type)
		}
		if ev.New == nil || ev.New.Version != loaded.Version+1 {
			t.Error("update event should carry the bumped row")
		}

		if err := store.Delete(ctx, "room-watch"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		ev = nextEvent(t, events)
		if ev.Type != domain.EventDelete {
			t.Errorf("event type = %q, want delete", ev.Type)
		}

		// Cancellation closes the channel.
		cancel()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("watch channel did not close after cancellation")
			}
		}
	})

	t.Run("Watch_IsRoomScoped", func(t *testing.T) {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		events, err := store.Watch(watchCtx, "room-scoped")
		if err != nil {
			t.Fatalf("watch failed: %v", err)
		}

		// Activity in another room must not leak into this feed.
		if err := store.Create(ctx, domain.NewRoomState("room-other", "host-1", domain.StageLobby)); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		select {
		case ev := <-events:
			t.Errorf("unexpected cross-room event: %+v", ev)
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func nextEvent(t *testing.T, events <-chan domain.ChangeEvent) domain.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return domain.ChangeEvent{}
	}
}

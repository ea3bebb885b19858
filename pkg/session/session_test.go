package session_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/session"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInitialize_CreatesRoomAndElectsHost(t *testing.T) {
	store := memory.NewStore()
	graph := domain.DefaultGraph()
	ctx := context.Background()

	s, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer s.Close()

	if !s.IsHost() {
		t.Error("creator should be the host")
	}
	state, err := s.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.CurrentStage != graph.Entry() {
		t.Errorf("current stage = %q, want entry", state.CurrentStage)
	}
	if !s.IsVisited(graph.Entry()) {
		t.Error("entry stage should be visited from creation")
	}
}

func TestInitialize_ExistingRoom_NotHost(t *testing.T) {
	store := memory.NewStore()
	graph := domain.DefaultGraph()
	ctx := context.Background()

	host, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("host initialize failed: %v", err)
	}
	defer host.Close()

	guest, err := session.Initialize(ctx, store, graph, "room-1", "bob")
	if err != nil {
		t.Fatalf("guest initialize failed: %v", err)
	}
	defer guest.Close()

	if guest.IsHost() {
		t.Error("joining participant must not become host")
	}
	state, _ := guest.State()
	if state.HostUserID != "alice" {
		t.Errorf("host = %q, want alice", state.HostUserID)
	}
}

func TestInitialize_HostElection_ConcurrentCreators(t *testing.T) {
	store := memory.NewStore()
	graph := domain.DefaultGraph()
	ctx := context.Background()

	const clients = 8
	sessions := make([]*session.Session, clients)
	errs := make([]error, clients)

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sessions[n], errs[n] = session.Initialize(ctx, store, graph, "contested", fmt.Sprintf("user-%d", n))
		}(i)
	}
	wg.Wait()

	hosts := map[string]bool{}
	hostCount := 0
	for i, s := range sessions {
		if errs[i] != nil {
			t.Fatalf("client %d failed to initialize: %v", i, errs[i])
		}
		defer s.Close()
		state, err := s.State()
		if err != nil {
			t.Fatalf("client %d state: %v", i, err)
		}
		hosts[state.HostUserID] = true
		if s.IsHost() {
			hostCount++
		}
	}

	if len(hosts) != 1 {
		t.Errorf("clients disagree on the host: %v", hosts)
	}
	if hostCount != 1 {
		t.Errorf("expected exactly one client to be host, got %d", hostCount)
	}
}

func TestNavigate_Inaccessible_LeavesStateUntouched(t *testing.T) {
	store := memory.NewStore()
	graph := domain.DefaultGraph()
	ctx := context.Background()

	s, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer s.Close()

	before, _ := store.Load(ctx, "room-1")

	// Briefing passes progression but the host never enabled it.
	err = s.Navigate(ctx, domain.StageBriefing)
	if !errors.Is(err, domain.ErrNotAccessible) {
		t.Fatalf("expected ErrNotAccessible, got %v", err)
	}
	var notAccessible *domain.NotAccessibleError
	if !errors.As(err, &notAccessible) {
		t.Fatal("error should carry the reason")
	}
	if notAccessible.Reason == "" {
		t.Error("reason must be populated")
	}

	after, _ := store.Load(ctx, "room-1")
	if !reflect.DeepEqual(before, after) {
		t.Error("rejected navigation must not touch persisted state")
	}
}

func TestNavigate_Accessible_PersistsAndReconciles(t *testing.T) {
	store := memory.NewStore()
	graph := domain.DefaultGraph()
	ctx := context.Background()

	s, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer s.Close()

	if err := s.ToggleEnabled(ctx, domain.StageBriefing); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	waitFor(t, "toggle echo", func() bool { return s.IsAccessible(domain.StageBriefing) })

	if err := s.Navigate(ctx, domain.StageBriefing); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	waitFor(t, "navigate echo", func() bool { return s.IsVisited(domain.StageBriefing) })

	state, _ := s.State()
	if state.CurrentStage != domain.StageBriefing {
		t.Errorf("current stage = %q, want briefing", state.CurrentStage)
	}
	want := []domain.StageID{domain.StageLobby, domain.StageBriefing}
	if !reflect.DeepEqual(state.VisitedStages, want) {
		t.Errorf("visited = %v, want %v", state.VisitedStages, want)
	}

	// Re-navigating to a visited stage must not duplicate it.
	if err := s.Navigate(ctx, domain.StageLobby); err != nil {
		t.Fatalf("renavigate failed: %v", err)
	}
	waitFor(t, "renavigate echo", func() bool {
		st, err := s.State()
		return err == nil && st.CurrentStage == domain.StageLobby
	})
	state, _ = s.State()
	if !reflect.DeepEqual(state.VisitedStages, want) {
		t.Errorf("visited after revisit = %v, want %v", state.VisitedStages, want)
	}
}

func TestToggleEnabled_NonHostRejected(t *testing.T) {
	store := memory.NewStore()
	graph := domain.DefaultGraph()
	ctx := context.Background()

	host, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("host initialize failed: %v", err)
	}
	defer host.Close()

	guest, err := session.Initialize(ctx, store, graph, "room-1", "bob")
	if err != nil {
		t.Fatalf("guest initialize failed: %v", err)
	}
	defer guest.Close()

	if err := guest.ToggleEnabled(ctx, domain.StageBriefing); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestToggleEnabled_SentinelRejected(t *testing.T) {
	store := memory.NewStore()
	graph := domain.DefaultGraph()
	ctx := context.Background()

	s, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer s.Close()

	if err := s.ToggleEnabled(ctx, graph.Entry()); err == nil {
		t.Error("toggling the entry stage must fail")
	}
	if err := s.ToggleEnabled(ctx, graph.Exit()); err == nil {
		t.Error("toggling the exit stage must fail")
	}
}

func TestToggleEnabled_Involutive(t *testing.T) {
	store := memory.NewStore()
	graph := domain.DefaultGraph()
	ctx := context.Background()

	s, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer s.Close()

	if err := s.ToggleEnabled(ctx, domain.StageDesign); err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}
	waitFor(t, "enable echo", func() bool { return len(s.EnabledStages()) == 1 })

	if err := s.ToggleEnabled(ctx, domain.StageDesign); err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	waitFor(t, "disable echo", func() bool { return len(s.EnabledStages()) == 0 })
}

func TestPeers_ObserveEachOther(t *testing.T) {
	store := memory.NewStore()
	graph := domain.DefaultGraph()
	ctx := context.Background()

	host, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("host initialize failed: %v", err)
	}
	defer host.Close()

	guest, err := session.Initialize(ctx, store, graph, "room-1", "bob")
	if err != nil {
		t.Fatalf("guest initialize failed: %v", err)
	}
	defer guest.Close()

	if err := host.ToggleEnabled(ctx, domain.StageBriefing); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}

	// The guest's cache converges through its own feed subscription.
	waitFor(t, "guest seeing the toggle", func() bool {
		return guest.IsAccessible(domain.StageBriefing)
	})
}

func TestDelete_MarksUninitialized(t *testing.T) {
	store := memory.NewStore()
	graph := domain.DefaultGraph()
	ctx := context.Background()

	s, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer s.Close()

	if err := store.Delete(ctx, "room-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	waitFor(t, "delete echo", func() bool {
		_, err := s.State()
		return errors.Is(err, domain.ErrNotInitialized)
	})

	if err := s.Navigate(ctx, domain.StageBriefing); !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("navigate after delete: expected ErrNotInitialized, got %v", err)
	}
	if err := s.ToggleEnabled(ctx, domain.StageBriefing); !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("toggle after delete: expected ErrNotInitialized, got %v", err)
	}
	if s.IsAccessible(graph.Entry()) {
		t.Error("accessors must report closed stages when uninitialized")
	}
}

func TestScenario_GatedChain(t *testing.T) {
	graph, err := domain.NewLinearGraph(
		[]domain.StageID{"entry", "a", "b", "c", "exit"},
		map[domain.StageID]domain.AccessRule{
			"a": {Requires: []domain.StageID{"entry"}, RequiresAll: true},
			"b": {Requires: []domain.StageID{"entry", "a"}, RequiresAll: true},
			"c": {Requires: []domain.StageID{"entry", "a", "b"}, RequiresAll: true},
		},
	)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	store := memory.NewStore()
	ctx := context.Background()

	s, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer s.Close()

	// Progression holds for A but the host gate does not.
	if s.IsAccessible("a") {
		t.Error("a should be blocked before the host enables it")
	}
	report, _ := s.Report()
	if report["a"].Reason != "not yet enabled by host" {
		t.Errorf("reason = %q, want the host-gate explanation", report["a"].Reason)
	}

	if err := s.ToggleEnabled(ctx, "a"); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	waitFor(t, "a enabled", func() bool { return s.IsAccessible("a") })

	if err := s.Navigate(ctx, "a"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	waitFor(t, "a visited", func() bool { return s.IsVisited("a") })

	state, _ := s.State()
	if state.CurrentStage != "a" {
		t.Errorf("current = %q, want a", state.CurrentStage)
	}
	want := []domain.StageID{"entry", "a"}
	if !reflect.DeepEqual(state.VisitedStages, want) {
		t.Errorf("visited = %v, want %v", state.VisitedStages, want)
	}

	// B passes progression now but stays host-disabled.
	if s.IsAccessible("b") {
		t.Error("b must remain blocked by the host gate")
	}
}

// conflictStore fails the first N updates with a version conflict to force
// the retry path.
type conflictStore struct {
	ports.RoomStore
	mu        sync.Mutex
	conflicts int
}

func (c *conflictStore) Update(ctx context.Context, state *domain.RoomState) error {
	c.mu.Lock()
	inject := c.conflicts > 0
	if inject {
		c.conflicts--
	}
	c.mu.Unlock()
	if inject {
		return domain.ErrVersionConflict
	}
	return c.RoomStore.Update(ctx, state)
}

func TestNavigate_RetriesAfterConflict(t *testing.T) {
	base := memory.NewStore()
	store := &conflictStore{RoomStore: base, conflicts: 2}
	graph := domain.DefaultGraph()
	ctx := context.Background()

	s, err := session.Initialize(ctx, store, graph, "room-1", "alice")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer s.Close()

	if err := s.ToggleEnabled(ctx, domain.StageBriefing); err != nil {
		t.Fatalf("toggle should survive injected conflicts: %v", err)
	}
	waitFor(t, "toggle echo", func() bool { return s.IsAccessible(domain.StageBriefing) })

	store.mu.Lock()
	store.conflicts = 2
	store.mu.Unlock()
	if err := s.Navigate(ctx, domain.StageBriefing); err != nil {
		t.Fatalf("navigate should survive injected conflicts: %v", err)
	}
}

func TestNavigate_GivesUpAfterRetryBudget(t *testing.T) {
	base := memory.NewStore()
	store := &conflictStore{RoomStore: base, conflicts: 100}
	graph := domain.DefaultGraph()
	ctx := context.Background()

	s, err := session.Initialize(ctx, store, graph, "room-1", "alice",
		session.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer s.Close()

	err = s.ToggleEnabled(ctx, domain.StageBriefing)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict after exhausting retries, got %v", err)
	}
}

package domain

import (
	"fmt"
	"strings"
)

// StageID identifies one stage of the fixed session sequence.
type StageID string

// Canonical stage sequence. Lobby and Wrapup are the sentinel entry/exit
// stages; the five stages between them are host-controllable.
const (
	StageLobby    StageID = "lobby"
	StageBriefing StageID = "briefing"
	StageIdeation StageID = "ideation"
	StageDesign   StageID = "design"
	StageReview   StageID = "review"
	StageRetro    StageID = "retro"
	StageWrapup   StageID = "wrapup"
)

// AccessRule defines the progression prerequisites for entering a stage.
// An empty Requires list means the stage is always progression-accessible.
type AccessRule struct {
	// Requires lists the prerequisite stages, in graph order.
	Requires []StageID `json:"requires" yaml:"requires"`

	// RequiresAll demands every listed stage be visited; otherwise a single
	// visited prerequisite is enough.
	RequiresAll bool `json:"requires_all" yaml:"requires_all"`
}

// Graph is the ordered stage sequence plus one AccessRule per stage.
// It is immutable after construction.
type Graph struct {
	order []StageID
	rules map[StageID]AccessRule
}

// NewLinearGraph builds a graph from an ordered stage list and its rule
// table. The first stage is the entry, the last is the exit; both must be
// unconditionally accessible (empty Requires). Prerequisites may only
// reference stages that appear earlier in the order.
func NewLinearGraph(order []StageID, rules map[StageID]AccessRule) (*Graph, error) {
	if len(order) < 2 {
		return nil, fmt.Errorf("graph needs at least an entry and an exit stage, got %d", len(order))
	}

	position := make(map[StageID]int, len(order))
	for i, id := range order {
		if id == "" {
			return nil, fmt.Errorf("stage %d has an empty id", i)
		}
		if _, dup := position[id]; dup {
			return nil, fmt.Errorf("duplicate stage id %q", id)
		}
		position[id] = i
	}

	table := make(map[StageID]AccessRule, len(order))
	for id, rule := range rules {
		pos, known := position[id]
		if !known {
			return nil, fmt.Errorf("rule references unknown stage %q", id)
		}
		if (pos == 0 || pos == len(order)-1) && len(rule.Requires) > 0 {
			return nil, fmt.Errorf("sentinel stage %q must not have prerequisites", id)
		}
		for _, req := range rule.Requires {
			reqPos, knownReq := position[req]
			if !knownReq {
				return nil, fmt.Errorf("stage %q requires unknown stage %q", id, req)
			}
			if reqPos >= pos {
				return nil, fmt.Errorf("stage %q requires %q which does not precede it", id, req)
			}
		}
		table[id] = rule
	}

	// Stages without an explicit rule are unconditionally accessible.
	for _, id := range order {
		if _, ok := table[id]; !ok {
			table[id] = AccessRule{}
		}
	}

	return &Graph{order: append([]StageID(nil), order...), rules: table}, nil
}

// DefaultGraph returns the canonical seven-stage session graph.
func DefaultGraph() *Graph {
	g, err := NewLinearGraph(
		[]StageID{StageLobby, StageBriefing, StageIdeation, StageDesign, StageReview, StageRetro, StageWrapup},
		map[StageID]AccessRule{
			StageBriefing: {Requires: []StageID{StageLobby}, RequiresAll: true},
			StageIdeation: {Requires: []StageID{StageLobby, StageBriefing}, RequiresAll: true},
			StageDesign:   {Requires: []StageID{StageLobby, StageBriefing, StageIdeation}, RequiresAll: true},
			StageReview:   {Requires: []StageID{StageLobby, StageBriefing, StageIdeation, StageDesign}, RequiresAll: true},
			StageRetro:    {Requires: []StageID{StageDesign, StageReview}},
		},
	)
	if err != nil {
		// The canonical table is static; a failure here is a programming error.
		panic(err)
	}
	return g
}

// Stages returns the stage sequence in graph order.
func (g *Graph) Stages() []StageID {
	return append([]StageID(nil), g.order...)
}

// Entry returns the entry sentinel stage.
func (g *Graph) Entry() StageID { return g.order[0] }

// Exit returns the exit sentinel stage.
func (g *Graph) Exit() StageID { return g.order[len(g.order)-1] }

// Contains reports whether the stage is part of the graph.
func (g *Graph) Contains(stage StageID) bool {
	_, ok := g.rules[stage]
	return ok
}

// IsSentinel reports whether the stage is the entry or the exit stage.
// Sentinel stages are never subject to host control.
func (g *Graph) IsSentinel(stage StageID) bool {
	return stage == g.Entry() || stage == g.Exit()
}

// Rule returns the access rule for a stage.
func (g *Graph) Rule(stage StageID) (AccessRule, bool) {
	rule, ok := g.rules[stage]
	return rule, ok
}

// IsProgressionAccessible reports whether the visited set satisfies the
// stage's prerequisite rule.
func (g *Graph) IsProgressionAccessible(stage StageID, visited []StageID) bool {
	rule, ok := g.rules[stage]
	if !ok {
		return false
	}
	if len(rule.Requires) == 0 {
		return true
	}

	seen := make(map[StageID]bool, len(visited))
	for _, v := range visited {
		seen[v] = true
	}

	if rule.RequiresAll {
		for _, req := range rule.Requires {
			if !seen[req] {
				return false
			}
		}
		return true
	}

	for _, req := range rule.Requires {
		if seen[req] {
			return true
		}
	}
	return false
}

// InaccessibilityReason returns a human-readable description of the missing
// prerequisites, or ok=false when the stage is progression-accessible.
func (g *Graph) InaccessibilityReason(stage StageID, visited []StageID) (string, bool) {
	rule, known := g.rules[stage]
	if !known {
		return fmt.Sprintf("unknown stage %q", stage), true
	}
	if g.IsProgressionAccessible(stage, visited) {
		return "", false
	}

	if !rule.RequiresAll {
		return fmt.Sprintf("requires visiting at least one of: %s", joinStages(rule.Requires)), true
	}

	seen := make(map[StageID]bool, len(visited))
	for _, v := range visited {
		seen[v] = true
	}
	var missing []StageID
	for _, req := range rule.Requires {
		if !seen[req] {
			missing = append(missing, req)
		}
	}
	return fmt.Sprintf("missing prerequisite stages: %s", joinStages(missing)), true
}

func joinStages(stages []StageID) string {
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

// Package access implements the pure access-control computations that decide
// which stages a participant may enter. It combines the graph's progression
// gate with the host's enablement overlay and has no side effects.
package access

import (
	"github.com/aretw0/espalier/pkg/domain"
)

// ReasonHostDisabled is the user-facing reason reported when a stage passes
// the progression gate but the host has not enabled it.
const ReasonHostDisabled = "not yet enabled by host"

// StageAccess is one entry of an accessibility report.
type StageAccess struct {
	Accessible bool   `json:"accessible"`
	Reason     string `json:"reason,omitempty"`
}

// Engine evaluates accessibility against a fixed stage graph. It is
// stateless: the visited set and enablement overlay are passed per call.
type Engine struct {
	graph *domain.Graph
}

// NewEngine creates an access engine for the given graph.
func NewEngine(graph *domain.Graph) *Engine {
	return &Engine{graph: graph}
}

// Graph returns the underlying stage graph.
func (e *Engine) Graph() *domain.Graph { return e.graph }

// FullyAccessible reports whether the stage passes both the progression gate
// and the host gate. Sentinel stages skip the host gate; intermediate stages
// require membership in the enablement overlay, so an overlay that was never
// initialized leaves every intermediate stage closed.
func (e *Engine) FullyAccessible(stage domain.StageID, visited, enabled []domain.StageID) bool {
	if !e.graph.IsProgressionAccessible(stage, visited) {
		return false
	}
	if e.graph.IsSentinel(stage) {
		return true
	}
	for _, s := range enabled {
		if s == stage {
			return true
		}
	}
	return false
}

// Reason returns the user-facing explanation for a blocked stage, or
// ok=false when the stage is fully accessible. Progression failures take
// precedence over the host gate.
func (e *Engine) Reason(stage domain.StageID, visited, enabled []domain.StageID) (string, bool) {
	if reason, blocked := e.graph.InaccessibilityReason(stage, visited); blocked {
		return reason, true
	}
	if e.FullyAccessible(stage, visited, enabled) {
		return "", false
	}
	return ReasonHostDisabled, true
}

// Report evaluates every stage of the graph.
func (e *Engine) Report(visited, enabled []domain.StageID) map[domain.StageID]StageAccess {
	report := make(map[domain.StageID]StageAccess, len(e.graph.Stages()))
	for _, stage := range e.graph.Stages() {
		reason, blocked := e.Reason(stage, visited, enabled)
		report[stage] = StageAccess{Accessible: !blocked, Reason: reason}
	}
	return report
}

// RecommendedNext walks the stage order starting immediately after current
// and returns the first stage that is both unvisited and fully accessible.
// ok=false means the participant has nowhere left to go.
func (e *Engine) RecommendedNext(current domain.StageID, visited, enabled []domain.StageID) (domain.StageID, bool) {
	seen := make(map[domain.StageID]bool, len(visited))
	for _, v := range visited {
		seen[v] = true
	}

	past := true
	for _, stage := range e.graph.Stages() {
		if past {
			if stage == current {
				past = false
			}
			continue
		}
		if !seen[stage] && e.FullyAccessible(stage, visited, enabled) {
			return stage, true
		}
	}
	return "", false
}

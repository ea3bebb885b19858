// Package graph renders the stage graph as Mermaid flowchart syntax.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
)

// Overlay contains per-room state to visualize on top of the static graph.
type Overlay struct {
	VisitedStages []domain.StageID
	EnabledStages []domain.StageID
	CurrentStage  domain.StageID
}

// GenerateMermaid produces a Mermaid flowchart from a stage graph.
// It applies semantic styling:
// - Sentinels (entry/exit): ((Circle))
// - Any-of stages: [/Parallelogram/]
// - Default: [Rectangle]
// Prerequisite edges are solid for all-of rules and dotted for any-of.
// Overlay styles (Visited/Current/Enabled) are applied if provided.
func GenerateMermaid(g *domain.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, stage := range g.Stages() {
		safeID := sanitizeMermaidID(string(stage))

		opener, closer := "[", "]"
		rule, _ := g.Rule(stage)
		switch {
		case g.IsSentinel(stage):
			opener, closer = "((", "))" // Circle
		case !rule.RequiresAll && len(rule.Requires) > 0:
			opener, closer = "[/", "/]" // Parallelogram (Any-of)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, stage, closer))

		arrow := "-->"
		if !rule.RequiresAll {
			arrow = "-.->"
		}
		for _, req := range rule.Requires {
			safeFrom := sanitizeMermaidID(string(req))
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeFrom, arrow, safeID))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast regardless of theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef enabled fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		styled := make(map[string]bool)
		for _, id := range overlay.EnabledStages {
			safeID := sanitizeMermaidID(string(id))
			if safeID != "" && !styled[safeID] {
				styled[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s enabled;\n", safeID))
			}
		}
		// Visited wins over enabled, current wins over both.
		for _, id := range overlay.VisitedStages {
			safeID := sanitizeMermaidID(string(id))
			if safeID != "" {
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentStage != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(string(overlay.CurrentStage))))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}

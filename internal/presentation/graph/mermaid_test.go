package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/aretw0/espalier/pkg/domain"
)

func TestGenerateMermaid_Shapes(t *testing.T) {
	out := graph.GenerateMermaid(domain.DefaultGraph(), nil)

	contains := []string{
		"graph TD",
		"lobby((\"lobby\"))",
		"wrapup((\"wrapup\"))",
		"briefing[\"briefing\"]",
		// Retro is satisfied by any of its prerequisites.
		"retro[/\"retro\"/]",
		"design -.-> retro",
		"lobby --> briefing",
	}
	for _, want := range contains {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	overlay := &graph.Overlay{
		VisitedStages: []domain.StageID{domain.StageLobby},
		EnabledStages: []domain.StageID{domain.StageBriefing},
		CurrentStage:  domain.StageLobby,
	}
	out := graph.GenerateMermaid(domain.DefaultGraph(), overlay)

	contains := []string{
		"class lobby visited;",
		"class briefing enabled;",
		"class lobby current;",
	}
	for _, want := range contains {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestGenerateMermaid_SanitizesIDs(t *testing.T) {
	g, err := domain.NewLinearGraph(
		[]domain.StageID{"warm-up", "main.part", "wrap-up"},
		map[domain.StageID]domain.AccessRule{
			"main.part": {Requires: []domain.StageID{"warm-up"}, RequiresAll: true},
		},
	)
	if err != nil {
		t.Fatalf("NewLinearGraph: %v", err)
	}

	out := graph.GenerateMermaid(g, nil)
	if !strings.Contains(out, "warm_up") || !strings.Contains(out, "main_part") {
		t.Errorf("ids not sanitized:\n%s", out)
	}
	if strings.Contains(out, "warm-up[") {
		t.Errorf("raw hyphenated id used as node id:\n%s", out)
	}
}

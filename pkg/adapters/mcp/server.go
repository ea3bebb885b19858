// Package mcp exposes sessions as Model Context Protocol tools so agent
// runtimes can drive a room the same way a UI client would.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/access"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/session"
)

// ReportResponse is the structured payload shared by all tools. It mirrors
// the HTTP report schema so agents and UI clients see the same shape.
type ReportResponse struct {
	RoomID          string                                `json:"room_id" jsonschema_description:"Room the session belongs to"`
	UserID          string                                `json:"user_id" jsonschema_description:"Participant the session belongs to"`
	CurrentStage    domain.StageID                        `json:"current_stage" jsonschema_description:"Stage the participant is currently on"`
	HostUserID      string                                `json:"host_user_id" jsonschema_description:"Participant elected host of the room"`
	IsHost          bool                                  `json:"is_host" jsonschema_description:"Whether the calling participant is host"`
	VisitedStages   []domain.StageID                      `json:"visited_stages" jsonschema_description:"Stages this participant has completed"`
	EnabledStages   []domain.StageID                      `json:"enabled_stages" jsonschema_description:"Stages the host has enabled"`
	Stages          map[domain.StageID]access.StageAccess `json:"stages" jsonschema_description:"Per-stage accessibility verdicts"`
	RecommendedNext domain.StageID                        `json:"recommended_next,omitempty" jsonschema_description:"Next stage worth visiting, if any"`
}

// Server exposes a session hub as an MCP server.
type Server struct {
	hub       *session.Hub
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance over the given hub.
func NewServer(hub *session.Hub) *Server {
	s := &Server{
		hub:       hub,
		mcpServer: server.NewMCPServer("espalier-mcp", strings.TrimSpace(espalier.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	// TOOL: room_report
	reportTool := mcp.NewTool("room_report",
		mcp.WithDescription("Open (or reuse) a session in a room and report per-stage accessibility. Creating a new room makes the caller host."),
		mcp.WithString("room_id", mcp.Required(), mcp.Description("Room identifier")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Participant identifier")),
		mcp.WithOutputSchema[ReportResponse](),
	)
	s.mcpServer.AddTool(reportTool, mcp.NewStructuredToolHandler(s.handleReport))

	// TOOL: navigate_stage
	navigateTool := mcp.NewTool("navigate_stage",
		mcp.WithDescription("Move the participant to a stage. Fails if prerequisites are unmet or the host has not enabled the stage."),
		mcp.WithString("room_id", mcp.Required(), mcp.Description("Room identifier")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Participant identifier")),
		mcp.WithString("stage", mcp.Required(), mcp.Description("Target stage identifier")),
		mcp.WithOutputSchema[ReportResponse](),
	)
	s.mcpServer.AddTool(navigateTool, mcp.NewStructuredToolHandler(s.handleNavigate))

	// TOOL: toggle_stage
	toggleTool := mcp.NewTool("toggle_stage",
		mcp.WithDescription("Toggle a stage in the room's enablement overlay. Host only; entry and exit stages cannot be toggled."),
		mcp.WithString("room_id", mcp.Required(), mcp.Description("Room identifier")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Participant identifier, must be the host")),
		mcp.WithString("stage", mcp.Required(), mcp.Description("Stage identifier to toggle")),
		mcp.WithOutputSchema[ReportResponse](),
	)
	s.mcpServer.AddTool(toggleTool, mcp.NewStructuredToolHandler(s.handleToggle))
}

// Handler methods for structured tools

func (s *Server) handleReport(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ReportResponse, error) {
	sess, err := s.open(ctx, args)
	if err != nil {
		return ReportResponse{}, err
	}
	return report(sess)
}

func (s *Server) handleNavigate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ReportResponse, error) {
	sess, err := s.open(ctx, args)
	if err != nil {
		return ReportResponse{}, err
	}

	stage, _ := args["stage"].(string)
	if stage == "" {
		return ReportResponse{}, fmt.Errorf("stage is required")
	}
	if err := sess.Navigate(ctx, domain.StageID(stage)); err != nil {
		return ReportResponse{}, fmt.Errorf("navigate failed: %w", err)
	}
	return report(sess)
}

func (s *Server) handleToggle(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ReportResponse, error) {
	sess, err := s.open(ctx, args)
	if err != nil {
		return ReportResponse{}, err
	}

	stage, _ := args["stage"].(string)
	if stage == "" {
		return ReportResponse{}, fmt.Errorf("stage is required")
	}
	if err := sess.ToggleEnabled(ctx, domain.StageID(stage)); err != nil {
		return ReportResponse{}, fmt.Errorf("toggle failed: %w", err)
	}
	return report(sess)
}

func (s *Server) open(ctx context.Context, args map[string]interface{}) (*session.Session, error) {
	roomID, _ := args["room_id"].(string)
	userID, _ := args["user_id"].(string)
	if roomID == "" || userID == "" {
		return nil, fmt.Errorf("room_id and user_id are required")
	}

	sess, err := s.hub.Initialize(ctx, roomID, userID)
	if err != nil {
		return nil, fmt.Errorf("session open failed: %w", err)
	}
	return sess, nil
}

func report(sess *session.Session) (ReportResponse, error) {
	state, err := sess.State()
	if err != nil {
		return ReportResponse{}, fmt.Errorf("session lost its room: %w", err)
	}
	stages, err := sess.Report()
	if err != nil {
		return ReportResponse{}, fmt.Errorf("report failed: %w", err)
	}

	resp := ReportResponse{
		RoomID:        state.RoomID,
		UserID:        sess.UserID(),
		CurrentStage:  state.CurrentStage,
		HostUserID:    state.HostUserID,
		IsHost:        sess.IsHost(),
		VisitedStages: state.VisitedStages,
		EnabledStages: state.EnabledStages(),
		Stages:        stages,
	}
	if next, ok := sess.RecommendedNext(); ok {
		resp.RecommendedNext = next
	}
	return resp, nil
}

func (s *Server) registerResources() {
	// EXPOSE: espalier://graph
	s.mcpServer.AddResource(mcp.NewResource("espalier://graph", "Stage Graph Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type stageDoc struct {
			Requires    []domain.StageID `json:"requires"`
			RequiresAll bool             `json:"requires_all"`
			Sentinel    bool             `json:"sentinel"`
		}

		graph := s.hub.Graph()
		doc := struct {
			Order []domain.StageID            `json:"order"`
			Rules map[domain.StageID]stageDoc `json:"rules"`
		}{
			Order: graph.Stages(),
			Rules: make(map[domain.StageID]stageDoc, len(graph.Stages())),
		}
		for _, stage := range graph.Stages() {
			rule, _ := graph.Rule(stage)
			doc.Rules[stage] = stageDoc{
				Requires:    rule.Requires,
				RequiresAll: rule.RequiresAll,
				Sentinel:    graph.IsSentinel(stage),
			}
		}

		jsonBytes, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "espalier://graph",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

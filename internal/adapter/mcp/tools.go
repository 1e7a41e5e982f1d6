package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/synod-labs/synod/internal/domain/advice"
	"github.com/synod-labs/synod/internal/service"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.requestAdviceTool(),
		s.getSessionTool(),
		s.trackFunnelEventTool(),
		s.listAdvisorsTool(),
	)
}

func (s *Server) requestAdviceTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("request_advice",
		mcplib.WithDescription("Convene all advisors over a decision context and return the synthesised decision"),
		mcplib.WithString("context_json",
			mcplib.Required(),
			mcplib.Description("The decision context as a JSON object; must carry a valid \"type\" tag"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleRequestAdvice,
	}
}

func (s *Server) getSessionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_session",
		mcplib.WithDescription("Get a recorded advice session by decision ID"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The decision ID of the session to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetSession,
	}
}

func (s *Server) trackFunnelEventTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("track_funnel_event",
		mcplib.WithDescription("Record a discrete funnel action; reports the next stage when the action advances the funnel"),
		mcplib.WithString("stage",
			mcplib.Required(),
			mcplib.Description("The funnel stage the action happened in"),
		),
		mcplib.WithString("action",
			mcplib.Required(),
			mcplib.Description("The actor action taken"),
		),
		mcplib.WithNumber("value",
			mcplib.Description("Optional monetary value attached to the action"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleTrackFunnelEvent,
	}
}

func (s *Server) listAdvisorsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_advisors",
		mcplib.WithDescription("List the registered advisors with their fusion weights"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListAdvisors,
	}
}

func (s *Server) handleRequestAdvice(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Adviser == nil {
		return mcplib.NewToolResultError("adviser not configured"), nil
	}
	args := req.GetArguments()
	raw, ok := args["context_json"].(string)
	if !ok || raw == "" {
		return mcplib.NewToolResultError("context_json is required"), nil
	}

	var in advice.Context
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid decision context", err), nil
	}

	dec, err := s.deps.Adviser.Convene(ctx, &in)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("convene failed", err), nil
	}
	data, err := json.Marshal(dec)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal decision", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetSession(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Sessions == nil {
		return mcplib.NewToolResultError("session reader not configured"), nil
	}
	args := req.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	sess, err := s.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get session %s", sessionID), err,
		), nil
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal session", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleTrackFunnelEvent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Funnel == nil {
		return mcplib.NewToolResultError("funnel tracker not configured"), nil
	}
	args := req.GetArguments()
	stage, ok := args["stage"].(string)
	if !ok || stage == "" {
		return mcplib.NewToolResultError("stage is required"), nil
	}
	action, ok := args["action"].(string)
	if !ok || action == "" {
		return mcplib.NewToolResultError("action is required"), nil
	}
	value, _ := args["value"].(float64)

	ev, err := s.deps.Funnel.TrackEvent(ctx, service.TrackRequest{
		Stage:  advice.FunnelStage(stage),
		Action: action,
		Value:  value,
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to track funnel event", err), nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal funnel event", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListAdvisors(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Advisors == nil {
		return mcplib.NewToolResultError("advisor lister not configured"), nil
	}
	data, err := json.Marshal(advisorCards(s.deps.Advisors))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal advisors", err), nil
	}
	return toolResultJSON(string(data)), nil
}

// advisorCard describes one advisor to MCP clients.
type advisorCard struct {
	Kind   advice.Kind `json:"kind"`
	Weight float64     `json:"weight"`
}

func advisorCards(lister AdvisorLister) []advisorCard {
	kinds := lister.Advisors()
	weights := lister.Weights()
	cards := make([]advisorCard, 0, len(kinds))
	for _, k := range kinds {
		cards = append(cards, advisorCard{Kind: k, Weight: weights[k]})
	}
	return cards
}

// toolResultJSON wraps a JSON string as a successful tool result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}

package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// recentSessionsLimit caps the synod://sessions/recent resource.
const recentSessionsLimit = 20

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"synod://advisors",
			"Advisor Roster",
			mcplib.WithResourceDescription("Registered advisors and their fusion weights"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAdvisorsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"synod://sessions/recent",
			"Recent Advice Sessions",
			mcplib.WithResourceDescription("The most recent recorded convene sessions"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentSessionsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"synod://funnel/summary",
			"Funnel Summary",
			mcplib.WithResourceDescription("Recorded funnel events aggregated per stage"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleFunnelSummaryResource,
	)
}

func (s *Server) handleAdvisorsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Advisors == nil {
		return errorContents(req, "advisor lister not configured"), nil
	}
	data, err := json.Marshal(advisorCards(s.deps.Advisors))
	if err != nil {
		return nil, err
	}
	return jsonContents(req, data), nil
}

func (s *Server) handleRecentSessionsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Sessions == nil {
		return errorContents(req, "session reader not configured"), nil
	}
	page, err := s.deps.Sessions.ListSessions(ctx, "", recentSessionsLimit)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(page.Sessions)
	if err != nil {
		return nil, err
	}
	return jsonContents(req, data), nil
}

func (s *Server) handleFunnelSummaryResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Funnel == nil {
		return errorContents(req, "funnel tracker not configured"), nil
	}
	summary, err := s.deps.Funnel.Summary(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}
	return jsonContents(req, data), nil
}

func jsonContents(req mcplib.ReadResourceRequest, data []byte) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}
}

func errorContents(req mcplib.ReadResourceRequest, msg string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     `{"error":"` + msg + `"}`,
		},
	}
}

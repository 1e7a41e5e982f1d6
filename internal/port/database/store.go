// Package database defines the database store port (interface). All
// tenant-scoped reads resolve the tenant from the request context, so the
// interface never carries tenant IDs explicitly.
package database

import (
	"context"

	"github.com/synod-labs/synod/internal/domain/advice"
)

// SessionPage is a cursor-paginated page of advice sessions.
type SessionPage struct {
	Sessions []advice.Session `json:"sessions"`
	Cursor   string           `json:"cursor"`
	HasMore  bool             `json:"has_more"`
}

// Store is the port interface for database operations.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *advice.Session) error
	GetSession(ctx context.Context, id string) (*advice.Session, error)
	ListSessions(ctx context.Context, cursor string, limit int) (*SessionPage, error)

	// Advisor confidence samples
	RecordSamples(ctx context.Context, samples []advice.ConfidenceSample) error
	AdvisorMetrics(ctx context.Context) ([]advice.AdvisorMetric, error)

	// Funnel events
	RecordFunnelEvent(ctx context.Context, ev *advice.FunnelEvent) error
	FunnelSummary(ctx context.Context) ([]advice.StageSummary, error)
}

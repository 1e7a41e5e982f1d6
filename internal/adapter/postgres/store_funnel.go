package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/synod-labs/synod/internal/domain/advice"
)

// RecordFunnelEvent appends one funnel action.
func (s *Store) RecordFunnelEvent(ctx context.Context, ev *advice.FunnelEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO funnel_events (id, tenant_id, stage, action, value, next_stage, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, tenantFromCtx(ctx), string(ev.Stage), ev.Action, ev.Value, nullIfEmpty(string(ev.NextStage)), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("record funnel event %s: %w", ev.ID, err)
	}
	return nil
}

// FunnelSummary aggregates recorded events per stage. SQL groups; the funnel
// ordering is applied here because only the domain knows stage order.
func (s *Store) FunnelSummary(ctx context.Context) ([]advice.StageSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stage, COUNT(*), COUNT(*) FILTER (WHERE next_stage IS NOT NULL), COALESCE(SUM(value), 0)
		 FROM funnel_events WHERE tenant_id = $1 GROUP BY stage`, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("funnel summary: %w", err)
	}
	defer rows.Close()

	var summaries []advice.StageSummary
	for rows.Next() {
		var sum advice.StageSummary
		if err := rows.Scan(&sum.Stage, &sum.Events, &sum.Advances, &sum.TotalValue); err != nil {
			return nil, fmt.Errorf("scan funnel summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Stage.Index() < summaries[j].Stage.Index()
	})
	return orEmpty(summaries), nil
}

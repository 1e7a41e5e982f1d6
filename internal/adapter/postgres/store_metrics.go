package postgres

import (
	"context"
	"fmt"

	"github.com/synod-labs/synod/internal/domain/advice"
)

// RecordSamples appends one confidence sample per advisor for a decision.
func (s *Store) RecordSamples(ctx context.Context, samples []advice.ConfidenceSample) error {
	tid := tenantFromCtx(ctx)
	for _, sample := range samples {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO advisor_samples (decision_id, tenant_id, advisor, confidence, degraded, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sample.DecisionID, tid, string(sample.Advisor), sample.Confidence, sample.Degraded, sample.CreatedAt)
		if err != nil {
			return fmt.Errorf("record sample %s/%s: %w", sample.DecisionID, sample.Advisor, err)
		}
	}
	return nil
}

// AdvisorMetrics aggregates the stored samples per advisor in a single query.
func (s *Store) AdvisorMetrics(ctx context.Context) ([]advice.AdvisorMetric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT advisor, COUNT(*), AVG(confidence), MIN(confidence), MAX(confidence),
		        COUNT(*) FILTER (WHERE degraded)
		 FROM advisor_samples WHERE tenant_id = $1
		 GROUP BY advisor ORDER BY advisor`, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("advisor metrics: %w", err)
	}
	defer rows.Close()

	var metrics []advice.AdvisorMetric
	for rows.Next() {
		var m advice.AdvisorMetric
		if err := rows.Scan(&m.Advisor, &m.Samples, &m.MeanConfidence, &m.MinConfidence, &m.MaxConfidence, &m.DegradedCount); err != nil {
			return nil, fmt.Errorf("scan advisor metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return orEmpty(metrics), rows.Err()
}

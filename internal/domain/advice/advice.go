// Package advice defines the shared domain model for the advisory engine:
// decision contexts, per-advisor recommendations, and the synthesized
// decision returned to the caller.
package advice

import "time"

// Kind identifies one of the built-in advisors. The set is closed; the
// synthesis registry is keyed by it.
type Kind string

const (
	KindComplexity  Kind = "complexity"
	KindEquilibrium Kind = "equilibrium"
	KindMotion      Kind = "motion-physics"
	KindInformation Kind = "information"
)

// Kinds returns all advisor kinds in registry order.
func Kinds() []Kind {
	return []Kind{KindComplexity, KindEquilibrium, KindMotion, KindInformation}
}

// ValidKind reports whether k is a known advisor kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindComplexity, KindEquilibrium, KindMotion, KindInformation:
		return true
	}
	return false
}

// DecisionType tags the scenario a context describes. Advisors use it to
// derive a default sub-context when the caller supplied none.
type DecisionType string

const (
	DecisionDatabaseQuery     DecisionType = "database-query"
	DecisionUserAction        DecisionType = "user-action"
	DecisionPageTransition    DecisionType = "page-transition"
	DecisionFunnelStep        DecisionType = "funnel-step"
	DecisionContentGeneration DecisionType = "content-generation"
	DecisionGeneral           DecisionType = "general"
)

// ValidDecisionType reports whether t is a recognized scenario kind.
func ValidDecisionType(t DecisionType) bool {
	switch t {
	case DecisionDatabaseQuery, DecisionUserAction, DecisionPageTransition,
		DecisionFunnelStep, DecisionContentGeneration, DecisionGeneral:
		return true
	}
	return false
}

// Severity is the structured tier of a recommendation. Advisors set it
// directly; the orchestrator never re-parses recommendation prose.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityWarning    Severity = "warning"
	SeverityOptimise   Severity = "optimise"
	SeverityAcceptable Severity = "acceptable"
)

// Rank orders severities for sorting, highest urgency first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityOptimise:
		return 1
	}
	return 0
}

// DegradedConfidence is the confidence pinned onto the stub substituted
// for a failed advisor.
const DegradedConfidence = 0.1

// Recommendation is the output of a single advisor for one context.
type Recommendation struct {
	Advisor    Kind               `json:"advisor"`
	Severity   Severity           `json:"severity"`
	Action     string             `json:"action,omitempty"` // actionable clause, empty when nothing to do
	Summary    string             `json:"summary"`
	Confidence float64            `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Degraded builds the stub substituted when an advisor fails. The stub keeps
// the advisor present in the fusion so the orchestrator never special-cases
// absence.
func Degraded(kind Kind, cause error) *Recommendation {
	reason := "advisor failed"
	if cause != nil {
		reason = "advisor failed: " + cause.Error()
	}
	return &Recommendation{
		Advisor:    kind,
		Severity:   SeverityAcceptable,
		Summary:    "advisor unavailable",
		Confidence: DegradedConfidence,
		Reasoning:  reason,
		CreatedAt:  time.Now().UTC(),
	}
}

// Clamp01 clamps v into [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// PlanTag marks the urgency of an execution plan step.
type PlanTag string

const (
	PlanPriority PlanTag = "PRIORITY"
	PlanOptimise PlanTag = "OPTIMISE"
	PlanMonitor  PlanTag = "MONITOR"
	PlanRecord   PlanTag = "RECORD"
)

// CostMS returns the fixed duration estimate for a step with this tag.
func (t PlanTag) CostMS() int64 {
	switch t {
	case PlanPriority:
		return 500
	case PlanOptimise:
		return 200
	}
	return 100
}

// PlanStep is one entry of the ordered execution plan attached to a Decision.
type PlanStep struct {
	Tag         PlanTag `json:"tag"`
	Description string  `json:"description"`
}

// Decision is the synthesized output of one convene call: every advisor's
// recommendation plus the fused verdict and execution plan. Immutable once
// returned; ownership passes to the caller.
type Decision struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id"`
	Type            DecisionType     `json:"type"`
	Recommendations []Recommendation `json:"recommendations"`
	FinalDecision   string           `json:"final_decision"`
	Confidence      float64          `json:"confidence"`
	Reasoning       string           `json:"reasoning"`
	Plan            []PlanStep       `json:"plan"`
	EstimatedMS     int64            `json:"estimated_duration_ms"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Weights maps advisor kind to its importance in the fusion. Weights need
// not sum to 1; the orchestrator normalises by the sum actually present.
type Weights map[Kind]float64

// DefaultWeights returns the built-in importance table. Loaded once at
// startup; treated as read-only afterwards.
func DefaultWeights() Weights {
	return Weights{
		KindComplexity:  0.25,
		KindEquilibrium: 0.30,
		KindMotion:      0.20,
		KindInformation: 0.25,
	}
}

// Clone returns a copy of w so config-loaded weights can be frozen.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Session is the persisted record of one convene call: the originating
// context, the resulting decision, and timing metadata.
type Session struct {
	ID        string    `json:"id"` // equals Decision.ID
	TenantID  string    `json:"tenant_id"`
	Context   Context   `json:"context"`
	Decision  Decision  `json:"decision"`
	ElapsedMS int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// ConfidenceSample is one advisor's confidence for one decision, appended to
// the metric store after every convene.
type ConfidenceSample struct {
	DecisionID string    `json:"decision_id"`
	TenantID   string    `json:"tenant_id"`
	Advisor    Kind      `json:"advisor"`
	Confidence float64   `json:"confidence"`
	Degraded   bool      `json:"degraded"`
	CreatedAt  time.Time `json:"created_at"`
}

// AdvisorMetric aggregates the stored confidence samples for one advisor.
type AdvisorMetric struct {
	Advisor        Kind    `json:"advisor"`
	Samples        int64   `json:"samples"`
	MeanConfidence float64 `json:"mean_confidence"`
	MinConfidence  float64 `json:"min_confidence"`
	MaxConfidence  float64 `json:"max_confidence"`
	DegradedCount  int64   `json:"degraded_count"`
}

package advice

// Context is the per-invocation input bundle fanned out to every advisor.
// Sub-contexts are optional; an advisor receiving none derives a default
// from the decision type alone, with no external I/O. Contexts are built by
// the caller, treated as immutable, and discarded after the call.
type Context struct {
	Type     DecisionType      `json:"type"`
	TenantID string            `json:"tenant_id,omitempty"`
	ActorID  string            `json:"actor_id,omitempty"`
	Query    *QueryContext     `json:"query,omitempty"`
	Funnel   *FunnelContext    `json:"funnel,omitempty"`
	Motion   *MotionContext    `json:"motion,omitempty"`
	Payload  *PayloadContext   `json:"payload,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fields the engine itself depends on. Sub-context
// plausibility is each advisor's own concern.
func (c *Context) Validate() error {
	if c == nil {
		return ErrInvalidContext
	}
	if !ValidDecisionType(c.Type) {
		return ErrInvalidContext
	}
	if c.Funnel != nil && !c.Funnel.Stage.Valid() {
		return ErrInvalidContext
	}
	return nil
}

// QueryContext describes a data-access operation for the complexity advisor.
type QueryContext struct {
	Operation         string   `json:"operation"` // read, write, aggregate, search, export
	EstimatedRows     int      `json:"estimated_rows"`
	Patterns          []string `json:"patterns,omitempty"` // qualitative query-pattern tags
	QueriesPerRequest int      `json:"queries_per_request,omitempty"`
	CacheHitRate      *float64 `json:"cache_hit_rate,omitempty"` // nil = unknown
	Paginated         bool     `json:"paginated,omitempty"`
	BatchedWrites     bool     `json:"batched_writes,omitempty"`
	IndexedJoin       bool     `json:"indexed_join,omitempty"`
}

// FunnelContext describes the actor's position and engagement for the
// equilibrium advisor.
type FunnelContext struct {
	Stage               FunnelStage `json:"stage"`
	HistoryLength       int         `json:"history_length,omitempty"`
	SessionDurationSec  float64     `json:"session_duration_sec,omitempty"`
	PageViews           int         `json:"page_views,omitempty"`
	FeatureInteractions int         `json:"feature_interactions,omitempty"`
}

// MotionContext describes a proposed UI timing for the motion-physics
// advisor.
type MotionContext struct {
	Intent     string      `json:"intent"`  // micro-interaction, feedback, page-transition, attention, narrative
	Element    string      `json:"element"` // button, list-item, card, modal, toast, page
	Urgency    string      `json:"urgency"` // high, normal, low
	Proposed   *MotionSpec `json:"proposed,omitempty"`
	DistancePX float64     `json:"distance_px,omitempty"`
}

// Urgency tags shared by motion contexts.
const (
	UrgencyHigh   = "high"
	UrgencyNormal = "normal"
	UrgencyLow    = "low"
)

// MotionSpec is a concrete timing configuration: a duration plus at most one
// of a spring or a curve profile.
type MotionSpec struct {
	DurationMS float64       `json:"duration_ms,omitempty"`
	Spring     *SpringConfig `json:"spring,omitempty"`
	Curve      *CurveConfig  `json:"curve,omitempty"`
}

// SpringConfig parameterises a damped harmonic oscillator.
type SpringConfig struct {
	Damping   float64 `json:"damping"`
	Stiffness float64 `json:"stiffness"`
	Mass      float64 `json:"mass"`
}

// CurveConfig is a cubic-Bezier easing curve. Control-point X values must
// stay in [0,1]; Y values in [-2,2].
type CurveConfig struct {
	Name string  `json:"name,omitempty"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
}

// PayloadContext describes a textual payload for the information advisor.
type PayloadContext struct {
	Payload      string `json:"payload"`
	ResponseSize string `json:"response_size,omitempty"` // short, medium, long
	CostTier     string `json:"cost_tier,omitempty"`     // economy, standard, premium
	TokenBudget  int    `json:"token_budget,omitempty"`  // 0 = derived from response size
}

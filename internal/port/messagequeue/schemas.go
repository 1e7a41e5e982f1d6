package messagequeue

// DecisionPayload is the schema for advice.decision messages.
type DecisionPayload struct {
	DecisionID    string  `json:"decision_id"`
	TenantID      string  `json:"tenant_id"`
	Type          string  `json:"type"`
	FinalDecision string  `json:"final_decision"`
	Confidence    float64 `json:"confidence"`
	EstimatedMS   int     `json:"estimated_ms"`
	Advisors      int     `json:"advisors"`
	Degraded      int     `json:"degraded"`
	ElapsedMS     int64   `json:"elapsed_ms"`
	Cached        bool    `json:"cached"`
}

// DegradedPayload is the schema for advice.degraded messages.
type DegradedPayload struct {
	DecisionID string `json:"decision_id"`
	TenantID   string `json:"tenant_id"`
	Advisor    string `json:"advisor"`
	Cause      string `json:"cause"`
}

// FunnelEventPayload is the schema for funnel.event messages.
type FunnelEventPayload struct {
	EventID   string  `json:"event_id"`
	TenantID  string  `json:"tenant_id"`
	Stage     string  `json:"stage"`
	Action    string  `json:"action"`
	Value     float64 `json:"value"`
	NextStage string  `json:"next_stage,omitempty"`
	Advanced  bool    `json:"advanced"`
}

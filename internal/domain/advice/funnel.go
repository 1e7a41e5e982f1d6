package advice

import "time"

// FunnelStage is one step of the fixed conversion funnel, ordered from
// first contact to retention.
type FunnelStage string

const (
	StageAwareness     FunnelStage = "awareness"
	StageInterest      FunnelStage = "interest"
	StageConsideration FunnelStage = "consideration"
	StageIntent        FunnelStage = "intent"
	StagePurchase      FunnelStage = "purchase"
	StageRetention     FunnelStage = "retention"
)

// Stages returns the funnel stages in order.
func Stages() []FunnelStage {
	return []FunnelStage{
		StageAwareness, StageInterest, StageConsideration,
		StageIntent, StagePurchase, StageRetention,
	}
}

// Index returns the zero-based position of s in the funnel, or -1 if s is
// not a known stage.
func (s FunnelStage) Index() int {
	for i, stage := range Stages() {
		if stage == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known funnel stage.
func (s FunnelStage) Valid() bool {
	return s.Index() >= 0
}

// Next returns the following stage and true, or s and false when s is the
// last stage or unknown.
func (s FunnelStage) Next() (FunnelStage, bool) {
	idx := s.Index()
	stages := Stages()
	if idx < 0 || idx >= len(stages)-1 {
		return s, false
	}
	return stages[idx+1], true
}

// FunnelEvent is a discrete funnel action recorded by the event tracker,
// independent of any convene call.
type FunnelEvent struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenant_id"`
	Stage     FunnelStage `json:"stage"`
	Action    string      `json:"action"`
	Value     float64     `json:"value,omitempty"`
	NextStage FunnelStage `json:"next_stage,omitempty"` // set when the action advanced the funnel
	CreatedAt time.Time   `json:"created_at"`
}

// StageSummary aggregates recorded funnel events for one stage.
type StageSummary struct {
	Stage      FunnelStage `json:"stage"`
	Events     int64       `json:"events"`
	Advances   int64       `json:"advances"`
	TotalValue float64     `json:"total_value"`
}

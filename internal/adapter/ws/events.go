package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventDecision        = "decision.synthesised"
	EventAdvisorDegraded = "advisor.degraded"
	EventFunnelAction    = "funnel.action"
)

// DecisionEvent is broadcast when a convene call produces a decision.
type DecisionEvent struct {
	DecisionID    string  `json:"decision_id"`
	TenantID      string  `json:"tenant_id"`
	Type          string  `json:"type"`
	FinalDecision string  `json:"final_decision"`
	Confidence    float64 `json:"confidence"`
	EstimatedMS   int64   `json:"estimated_ms"`
	Cached        bool    `json:"cached"`
}

// AdvisorDegradedEvent is broadcast when an advisor fails during a convene
// and a stub is substituted.
type AdvisorDegradedEvent struct {
	DecisionID string `json:"decision_id"`
	TenantID   string `json:"tenant_id"`
	Advisor    string `json:"advisor"`
	Cause      string `json:"cause"`
}

// FunnelActionEvent is broadcast when a funnel action is recorded.
type FunnelActionEvent struct {
	EventID   string `json:"event_id"`
	TenantID  string `json:"tenant_id"`
	Stage     string `json:"stage"`
	Action    string `json:"action"`
	NextStage string `json:"next_stage,omitempty"`
	Advanced  bool   `json:"advanced"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

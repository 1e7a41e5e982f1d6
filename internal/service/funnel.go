package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	synotel "github.com/synod-labs/synod/internal/adapter/otel"
	"github.com/synod-labs/synod/internal/adapter/ws"
	"github.com/synod-labs/synod/internal/advisor"
	"github.com/synod-labs/synod/internal/domain"
	"github.com/synod-labs/synod/internal/domain/advice"
	"github.com/synod-labs/synod/internal/port/broadcast"
	"github.com/synod-labs/synod/internal/port/database"
	"github.com/synod-labs/synod/internal/port/messagequeue"
)

// FunnelService records discrete funnel actions and serves stage
// aggregates. Recording applies the equilibrium stage-advancement rule: an
// action with a strictly positive base payoff also reports the stage the
// actor moved to.
type FunnelService struct {
	store   database.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	metrics *synotel.Metrics
}

// NewFunnelService creates a FunnelService. Queue and hub may be nil; the
// store may be nil for one-shot use, in which case events are not kept.
func NewFunnelService(store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster) *FunnelService {
	return &FunnelService{store: store, queue: queue, hub: hub}
}

// SetMetrics attaches metric instruments. May be left unset.
func (s *FunnelService) SetMetrics(m *synotel.Metrics) {
	s.metrics = m
}

// TrackRequest describes one funnel action to record.
type TrackRequest struct {
	TenantID string
	Stage    advice.FunnelStage
	Action   string
	Value    float64
}

// TrackEvent validates and persists one funnel action, then publishes it to
// NATS and the websocket hub. The store write is the source of truth; queue
// and hub failures are logged and swallowed.
func (s *FunnelService) TrackEvent(ctx context.Context, req TrackRequest) (*advice.FunnelEvent, error) {
	if !req.Stage.Valid() {
		return nil, fmt.Errorf("unknown funnel stage %q: %w", req.Stage, domain.ErrValidation)
	}
	if req.Action == "" {
		return nil, fmt.Errorf("funnel action is required: %w", domain.ErrValidation)
	}

	ctx, span := synotel.StartFunnelSpan(ctx, string(req.Stage), req.Action)
	defer span.End()

	ev := &advice.FunnelEvent{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		Stage:     req.Stage,
		Action:    req.Action,
		Value:     req.Value,
		CreatedAt: time.Now().UTC(),
	}
	next, advanced := advisor.NextStage(req.Stage, req.Action)
	if advanced {
		ev.NextStage = next
	}

	if s.store != nil {
		if err := s.store.RecordFunnelEvent(ctx, ev); err != nil {
			return nil, fmt.Errorf("record funnel event: %w", err)
		}
	}

	s.publishEvent(ctx, ev, advanced)

	if s.metrics != nil {
		s.metrics.FunnelEvents.Add(ctx, 1, metric.WithAttributes(
			attribute.String("funnel.stage", string(req.Stage)),
			attribute.Bool("funnel.advanced", advanced),
		))
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventFunnelAction, ws.FunnelActionEvent{
			EventID:   ev.ID,
			TenantID:  ev.TenantID,
			Stage:     string(ev.Stage),
			Action:    ev.Action,
			NextStage: string(ev.NextStage),
			Advanced:  advanced,
		})
	}

	return ev, nil
}

// Summary aggregates the recorded funnel events per stage, in funnel order.
func (s *FunnelService) Summary(ctx context.Context) ([]advice.StageSummary, error) {
	return s.store.FunnelSummary(ctx)
}

func (s *FunnelService) publishEvent(ctx context.Context, ev *advice.FunnelEvent, advanced bool) {
	if s.queue == nil {
		return
	}

	data, err := json.Marshal(messagequeue.FunnelEventPayload{
		EventID:   ev.ID,
		TenantID:  ev.TenantID,
		Stage:     string(ev.Stage),
		Action:    ev.Action,
		Value:     ev.Value,
		NextStage: string(ev.NextStage),
		Advanced:  advanced,
	})
	if err != nil {
		slog.Error("marshal funnel event payload", "event_id", ev.ID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectFunnelEvent, data); err != nil {
		slog.Error("publish funnel event", "event_id", ev.ID, "error", err)
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/synod-labs/synod/internal/adapter/ws"
	"github.com/synod-labs/synod/internal/domain"
	"github.com/synod-labs/synod/internal/domain/advice"
	"github.com/synod-labs/synod/internal/port/messagequeue"
)

func TestTrackEvent_PositiveActionAdvances(t *testing.T) {
	store := &mockStore{}
	queue := &mockQueue{}
	hub := &mockHub{}
	svc := NewFunnelService(store, queue, hub)

	ev, err := svc.TrackEvent(context.Background(), TrackRequest{
		TenantID: "tenant-1",
		Stage:    advice.StageAwareness,
		Action:   "advance",
		Value:    12.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ev.ID == "" {
		t.Error("expected an event ID")
	}
	if ev.NextStage != advice.StageInterest {
		t.Errorf("next stage %q, want %q", ev.NextStage, advice.StageInterest)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(store.events))
	}
	if store.events[0].ID != ev.ID {
		t.Errorf("stored event ID %q does not match %q", store.events[0].ID, ev.ID)
	}

	if len(queue.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(queue.published))
	}
	if queue.published[0].subject != messagequeue.SubjectFunnelEvent {
		t.Errorf("published to %q, want %q", queue.published[0].subject, messagequeue.SubjectFunnelEvent)
	}
	var payload messagequeue.FunnelEventPayload
	if err := json.Unmarshal(queue.published[0].data, &payload); err != nil {
		t.Fatalf("unmarshal funnel payload: %v", err)
	}
	if !payload.Advanced || payload.NextStage != string(advice.StageInterest) {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.Value != 12.5 {
		t.Errorf("payload value %v, want 12.5", payload.Value)
	}

	if len(hub.events) != 1 || hub.events[0].eventType != ws.EventFunnelAction {
		t.Fatalf("expected one %s hub event, got %+v", ws.EventFunnelAction, hub.events)
	}
}

func TestTrackEvent_NonPositiveActionHolds(t *testing.T) {
	queue := &mockQueue{}
	svc := NewFunnelService(&mockStore{}, queue, nil)

	for _, action := range []string{"hesitate", "abandon", "browse"} {
		ev, err := svc.TrackEvent(context.Background(), TrackRequest{
			Stage:  advice.StageConsideration,
			Action: action,
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", action, err)
		}
		if ev.NextStage != "" {
			t.Errorf("%s: next stage %q, want none", action, ev.NextStage)
		}
	}

	for _, p := range queue.published {
		var payload messagequeue.FunnelEventPayload
		if err := json.Unmarshal(p.data, &payload); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if payload.Advanced {
			t.Errorf("%s: payload marked advanced", payload.Action)
		}
	}
}

func TestTrackEvent_TerminalStageNeverAdvances(t *testing.T) {
	svc := NewFunnelService(&mockStore{}, nil, nil)

	ev, err := svc.TrackEvent(context.Background(), TrackRequest{
		Stage:  advice.StageRetention,
		Action: "advance",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.NextStage != "" {
		t.Errorf("retention must not advance, got next stage %q", ev.NextStage)
	}
}

func TestTrackEvent_Validation(t *testing.T) {
	svc := NewFunnelService(&mockStore{}, nil, nil)

	if _, err := svc.TrackEvent(context.Background(), TrackRequest{
		Stage:  "limbo",
		Action: "advance",
	}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown stage: expected ErrValidation, got %v", err)
	}

	if _, err := svc.TrackEvent(context.Background(), TrackRequest{
		Stage: advice.StageIntent,
	}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty action: expected ErrValidation, got %v", err)
	}
}

func TestTrackEvent_StoreFailureSurfaces(t *testing.T) {
	store := &mockStore{recordEventErr: errors.New("db down")}
	queue := &mockQueue{}
	svc := NewFunnelService(store, queue, nil)

	_, err := svc.TrackEvent(context.Background(), TrackRequest{
		Stage:  advice.StageInterest,
		Action: "advance",
	})
	if err == nil {
		t.Fatal("expected the store failure to surface")
	}
	if len(queue.published) != 0 {
		t.Errorf("nothing should be published when the store write fails, got %d", len(queue.published))
	}
}

func TestTrackEvent_QueueFailureSwallowed(t *testing.T) {
	store := &mockStore{}
	queue := &mockQueue{publishErr: errors.New("nats down")}
	svc := NewFunnelService(store, queue, nil)

	if _, err := svc.TrackEvent(context.Background(), TrackRequest{
		Stage:  advice.StageInterest,
		Action: "advance",
	}); err != nil {
		t.Fatalf("queue failure must not surface: %v", err)
	}
	if len(store.events) != 1 {
		t.Errorf("expected the event to be stored, got %d", len(store.events))
	}
}

func TestFunnelSummary(t *testing.T) {
	store := &mockStore{summaries: []advice.StageSummary{
		{Stage: advice.StageAwareness, Events: 10, Advances: 4},
		{Stage: advice.StageInterest, Events: 4, Advances: 1},
	}}
	svc := NewFunnelService(store, nil, nil)

	got, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Stage != advice.StageAwareness || got[0].Events != 10 {
		t.Errorf("unexpected summary: %+v", got)
	}
}

//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
)

func TestAdviceLifecycle(t *testing.T) {
	cleanDB(testPool)

	// 1. List sessions, should be empty
	resp, err := http.Get(testServer.URL + "/api/v1/sessions")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}

	var page struct {
		Sessions []map[string]any `json:"sessions"`
		HasMore  bool             `json:"has_more"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(page.Sessions) != 0 {
		t.Fatalf("expected 0 sessions, got %d", len(page.Sessions))
	}

	// 2. Request a decision
	reqBody, _ := json.Marshal(map[string]any{
		"type": "user-action",
		"funnel": map[string]any{
			"stage":      "consideration",
			"page_views": 4,
		},
	})

	resp2, err := http.Post(testServer.URL+"/api/v1/advice", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("request advice: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()

	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("advice: expected 200, got %d", resp2.StatusCode)
	}

	var dec struct {
		ID              string           `json:"id"`
		FinalDecision   string           `json:"final_decision"`
		Confidence      float64          `json:"confidence"`
		Recommendations []map[string]any `json:"recommendations"`
		Plan            []map[string]any `json:"plan"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&dec); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if dec.ID == "" {
		t.Fatal("expected decision ID")
	}
	if len(dec.Recommendations) != 4 {
		t.Fatalf("expected 4 recommendations, got %d", len(dec.Recommendations))
	}
	if dec.Confidence <= 0 || dec.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", dec.Confidence)
	}
	if dec.FinalDecision == "" {
		t.Fatal("expected non-empty final decision")
	}

	// 3. The convene should have persisted a session
	resp3, err := http.Get(testServer.URL + "/api/v1/sessions/" + dec.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer func() { _ = resp3.Body.Close() }()

	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("get session: expected 200, got %d", resp3.StatusCode)
	}

	var sess map[string]any
	if err := json.NewDecoder(resp3.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess["id"] != dec.ID {
		t.Fatalf("expected session %q, got %v", dec.ID, sess["id"])
	}

	// 4. Advisor metrics should now have samples
	resp4, err := http.Get(testServer.URL + "/api/v1/metrics/advisors")
	if err != nil {
		t.Fatalf("advisor metrics: %v", err)
	}
	defer func() { _ = resp4.Body.Close() }()

	if resp4.StatusCode != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp4.StatusCode)
	}
}

func TestAdviceRejectsUnknownType(t *testing.T) {
	reqBody, _ := json.Marshal(map[string]any{"type": "time-travel"})

	resp, err := http.Post(testServer.URL+"/api/v1/advice", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("request advice: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown decision type, got %d", resp.StatusCode)
	}
}

func TestFunnelEventAndSummary(t *testing.T) {
	cleanDB(testPool)

	reqBody, _ := json.Marshal(map[string]any{
		"stage":  "consideration",
		"action": "purchase",
		"value":  19.99,
	})

	resp, err := http.Post(testServer.URL+"/api/v1/funnel/events", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("track event: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("track: expected 201, got %d", resp.StatusCode)
	}

	var ev struct {
		ID        string `json:"id"`
		NextStage string `json:"next_stage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.NextStage != "intent" {
		t.Fatalf("purchase from consideration should advance to intent, got %q", ev.NextStage)
	}

	resp2, err := http.Get(testServer.URL + "/api/v1/funnel/summary")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()

	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", resp2.StatusCode)
	}

	var stages []struct {
		Stage  string `json:"stage"`
		Events int64  `json:"events"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&stages); err != nil {
		t.Fatalf("decode summary: %v", err)
	}

	found := false
	for _, s := range stages {
		if s.Stage == "consideration" && s.Events > 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("summary missing the recorded consideration event")
	}
}

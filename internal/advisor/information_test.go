package advisor

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/synod-labs/synod/internal/domain/advice"
)

func TestInformation_TokenEstimates(t *testing.T) {
	a := NewInformation()
	cases := []struct {
		words   int
		in, out int
	}{
		{1, 2, 4},
		{7, 10, 20},
		{10, 13, 26},
		{100, 130, 260},
	}
	for _, tc := range cases {
		payload := strings.TrimSpace(strings.Repeat("word ", tc.words))
		analysis := a.Evaluate(payload, "standard")
		if analysis.InputTokens != tc.in {
			t.Errorf("%d words: expected %d input tokens, got %d", tc.words, tc.in, analysis.InputTokens)
		}
		if analysis.OutputTokens != tc.out {
			t.Errorf("%d words: expected %d output tokens, got %d", tc.words, tc.out, analysis.OutputTokens)
		}
	}
}

func TestInformation_Deterministic(t *testing.T) {
	a := NewInformation()
	payload := "in order to cut cost we must very carefully limit the token budget"
	first := a.Evaluate(payload, "standard")
	for i := 0; i < 5; i++ {
		if got := a.Evaluate(payload, "standard"); got != first {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestInformation_SignalDensity(t *testing.T) {
	a := NewInformation()

	dense := a.Evaluate("must require error fail critical", "standard")
	if dense.SignalDensity != 1 {
		t.Errorf("all-signal payload: expected density 1, got %v", dense.SignalDensity)
	}

	empty := a.Evaluate("the cat sat on a mat", "standard")
	if empty.SignalDensity != 0 {
		t.Errorf("no-signal payload: expected density 0, got %v", empty.SignalDensity)
	}
	if empty.Efficiency != 0.1 {
		t.Errorf("efficiency floors at 0.1, got %v", empty.Efficiency)
	}

	// Punctuation and case must not hide a signal word.
	punct := a.Evaluate(`The COST, the "budget!" and nothing else here today`, "standard")
	if punct.SignalDensity == 0 {
		t.Error("signal words behind punctuation or case were missed")
	}
}

func TestInformation_TrigramRedundancy(t *testing.T) {
	a := NewInformation()
	// 9 words, 7 trigrams, 3 unique: repetition 4/7, redundancy 2/7.
	analysis := a.Evaluate("alpha beta gamma alpha beta gamma alpha beta gamma", "standard")
	want := 0.5 * (1 - 3.0/7.0)
	if math.Abs(analysis.Redundancy-want) > 1e-9 {
		t.Fatalf("expected redundancy %v, got %v", want, analysis.Redundancy)
	}
	if analysis.PatternMatches != 0 {
		t.Fatalf("no filler expected, got %d matches", analysis.PatternMatches)
	}
}

func TestInformation_FillerPatterns(t *testing.T) {
	a := NewInformation()
	analysis := a.Evaluate("In order to proceed we must act very quickly", "standard")
	if analysis.PatternMatches != 2 {
		t.Fatalf("expected 2 filler matches, got %d", analysis.PatternMatches)
	}
	if analysis.SavedTokens != 3 {
		t.Fatalf("expected 3 saved tokens, got %d", analysis.SavedTokens)
	}
}

func TestInformation_AdjacentDuplicateWords(t *testing.T) {
	a := NewInformation()
	analysis := a.Evaluate("the the budget is closed", "standard")
	if analysis.PatternMatches != 1 {
		t.Fatalf("expected the duplicated word to count, got %d matches", analysis.PatternMatches)
	}
	if analysis.SavedTokens != 1 {
		t.Fatalf("expected 1 saved token, got %d", analysis.SavedTokens)
	}
}

func TestInformation_SavingsSaturation(t *testing.T) {
	a := NewInformation()
	// Ten repeats of an intensifier: 10 regex matches plus 9 adjacent
	// duplicates push redundancy and savings to their caps.
	analysis := a.Evaluate(strings.TrimSpace(strings.Repeat("very ", 10)), "standard")
	if analysis.SavingsPercent != 50 {
		t.Errorf("savings must cap at 50, got %v", analysis.SavingsPercent)
	}
	if analysis.Efficiency != 0.1 {
		t.Errorf("efficiency must floor at 0.1, got %v", analysis.Efficiency)
	}
	want := min(1.0, 0.5*0.875+0.5)
	if math.Abs(analysis.Redundancy-want) > 1e-9 {
		t.Errorf("expected redundancy %v, got %v", want, analysis.Redundancy)
	}
}

func TestInformation_CostTiers(t *testing.T) {
	a := NewInformation()
	payload := strings.TrimSpace(strings.Repeat("word ", 10)) // 13 in, 26 out

	economy := a.Evaluate(payload, "economy")
	if math.Abs(economy.CostUSD-3.575e-5) > 1e-12 {
		t.Errorf("economy: expected $0.00003575, got %v", economy.CostUSD)
	}
	standard := a.Evaluate(payload, "standard")
	if math.Abs(standard.CostUSD-4.29e-4) > 1e-12 {
		t.Errorf("standard: expected $0.000429, got %v", standard.CostUSD)
	}
	premium := a.Evaluate(payload, "premium")
	if math.Abs(premium.CostUSD-2.145e-3) > 1e-12 {
		t.Errorf("premium: expected $0.002145, got %v", premium.CostUSD)
	}
}

func TestInformation_OverBudget(t *testing.T) {
	a := NewInformation()
	rec, err := a.Analyse(context.Background(), &advice.Context{
		Type: advice.DecisionContentGeneration,
		Payload: &advice.PayloadContext{
			Payload:     "must require error fail critical warn limit budget",
			TokenBudget: 10,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Severity != advice.SeverityCritical {
		t.Fatalf("expected critical severity, got %s", rec.Severity)
	}
	if rec.Action != "cut the payload below the 10-token budget" {
		t.Fatalf("unexpected action %q", rec.Action)
	}
	if !strings.Contains(rec.Summary, "OVER BUDGET") {
		t.Fatalf("summary should name the budget overrun, got %q", rec.Summary)
	}
	// Short payload, explicit budget, explicit context: 0.6 + 0.1 + 0.1.
	if math.Abs(rec.Confidence-0.8) > 1e-9 {
		t.Fatalf("expected confidence 0.8, got %v", rec.Confidence)
	}
}

func TestInformation_InefficiencyOutranksBudget(t *testing.T) {
	a := NewInformation()
	rec, err := a.Analyse(context.Background(), &advice.Context{
		Type: advice.DecisionContentGeneration,
		Payload: &advice.PayloadContext{
			Payload:     strings.TrimSpace(strings.Repeat("very ", 10)),
			TokenBudget: 10,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Over budget as well, but inefficiency is reported first.
	if rec.Severity != advice.SeverityOptimise {
		t.Fatalf("expected optimise severity, got %s", rec.Severity)
	}
	if rec.Action != "strip filler and restate the payload around its signal words" {
		t.Fatalf("unexpected action %q", rec.Action)
	}
	if !strings.Contains(rec.Summary, "INEFFICIENT") {
		t.Fatalf("summary should name the inefficiency, got %q", rec.Summary)
	}
}

func TestInformation_OptimalPayload(t *testing.T) {
	a := NewInformation()
	rec, err := a.Analyse(context.Background(), &advice.Context{
		Type: advice.DecisionGeneral,
		Payload: &advice.PayloadContext{
			Payload: "must require error fail critical warn limit budget",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Severity != advice.SeverityAcceptable {
		t.Fatalf("expected acceptable severity, got %s", rec.Severity)
	}
	if rec.Action != "" {
		t.Fatalf("optimal payload should carry no action, got %q", rec.Action)
	}
	if !strings.Contains(rec.Summary, "OPTIMAL") {
		t.Fatalf("summary should report OPTIMAL, got %q", rec.Summary)
	}
}

func TestInformation_EmptyPayload(t *testing.T) {
	a := NewInformation()
	rec, err := a.Analyse(context.Background(), &advice.Context{Type: advice.DecisionGeneral})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Severity != advice.SeverityAcceptable {
		t.Fatalf("expected acceptable severity, got %s", rec.Severity)
	}
	if rec.Summary != "no textual payload to analyse" {
		t.Fatalf("unexpected summary %q", rec.Summary)
	}
	if rec.Confidence != 0.5 {
		t.Fatalf("expected confidence 0.5, got %v", rec.Confidence)
	}
}

func TestInformation_PromptFromMetadata(t *testing.T) {
	a := NewInformation()
	rec, err := a.Analyse(context.Background(), &advice.Context{
		Type:     advice.DecisionContentGeneration,
		Metadata: map[string]string{"prompt": "must cut cost and limit the token budget now"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Metrics["input_tokens"] == 0 {
		t.Fatal("metadata prompt should have been analysed")
	}
	// Content generation defaults to the long response budget.
	if got := rec.Metrics["token_budget"]; got != 8192 {
		t.Fatalf("expected the long-response budget 8192, got %v", got)
	}
}

func TestInformation_UnknownTierFallsBackToStandard(t *testing.T) {
	a := NewInformation()
	payload := strings.TrimSpace(strings.Repeat("word ", 10))
	rec, err := a.Analyse(context.Background(), &advice.Context{
		Type:    advice.DecisionGeneral,
		Payload: &advice.PayloadContext{Payload: payload, CostTier: "luxury"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(rec.Metrics["cost_usd"]-4.29e-4) > 1e-12 {
		t.Fatalf("unknown tier should price as standard, got %v", rec.Metrics["cost_usd"])
	}
}

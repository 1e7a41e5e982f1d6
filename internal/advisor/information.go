package advisor

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/synod-labs/synod/internal/domain/advice"
)

// outputMultiplier fixes estimated output tokens at 2x the input.
const outputMultiplier = 2

// signalStems mark a word as information-bearing when it contains any stem.
var signalStems = []string{
	"must", "should", "require", "error", "fail", "critical", "warn",
	"limit", "budget", "deadline", "metric", "cost", "price", "rate",
	"increase", "decrease", "convert", "optimi", "risk", "token", "stage",
}

// fillerPattern pairs a verbosity regex with the tokens saved by removing a
// match.
type fillerPattern struct {
	re    *regexp.Regexp
	saved int
}

var fillerPatterns = []fillerPattern{
	{regexp.MustCompile(`(?i)\bin order to\b`), 2},
	{regexp.MustCompile(`(?i)\bit (should|must) be noted that\b`), 4},
	{regexp.MustCompile(`(?i)\bdue to the fact that\b`), 4},
	{regexp.MustCompile(`(?i)\bat this point in time\b`), 4},
	{regexp.MustCompile(`(?i)\bas a matter of fact\b`), 4},
	{regexp.MustCompile(`(?i)\bfor all intents and purposes\b`), 4},
	{regexp.MustCompile(`(?i)\bneedless to say\b`), 3},
	{regexp.MustCompile(`(?i)\b(very|really|quite|extremely|basically|actually|literally)\b`), 1},
}

// tierPrice is $ per 1M tokens for one cost tier.
type tierPrice struct {
	in, out float64
}

var costTiers = map[string]tierPrice{
	"economy":  {in: 0.25, out: 1.25},
	"standard": {in: 3.00, out: 15.00},
	"premium":  {in: 15.00, out: 75.00},
}

// responseBudgets are the default token budgets per expected-response-size
// tag, used when the caller gave no explicit budget.
var responseBudgets = map[string]int{
	"short":  512,
	"medium": 2048,
	"long":   8192,
}

const defaultBudget = 2048

// TokenAnalysis is the working result of one payload evaluation, scoped to a
// single advisor call.
type TokenAnalysis struct {
	Words          int
	InputTokens    int
	OutputTokens   int
	SignalDensity  float64
	Redundancy     float64
	Efficiency     float64
	PatternMatches int
	SavedTokens    int
	SavingsPercent float64
	CostUSD        float64
}

// Information estimates the token and dollar cost of a textual payload,
// measures signal density and redundancy, and recommends compression.
type Information struct{}

// NewInformation returns the information advisor.
func NewInformation() *Information { return &Information{} }

// Kind implements Advisor.
func (a *Information) Kind() advice.Kind { return advice.KindInformation }

// Analyse implements Advisor.
func (a *Information) Analyse(_ context.Context, in *advice.Context) (*advice.Recommendation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	p := in.Payload
	derived := p == nil
	if derived {
		p = defaultPayloadContext(in.Type, in.Metadata)
	}

	if strings.TrimSpace(p.Payload) == "" {
		return &advice.Recommendation{
			Advisor:    advice.KindInformation,
			Severity:   advice.SeverityAcceptable,
			Summary:    "no textual payload to analyse",
			Confidence: 0.5,
			Reasoning:  "payload empty; token analysis skipped",
			Metrics:    map[string]float64{"input_tokens": 0, "output_tokens": 0},
			CreatedAt:  time.Now().UTC(),
		}, nil
	}

	tier := p.CostTier
	if _, ok := costTiers[tier]; !ok {
		tier = "standard"
	}
	budget := p.TokenBudget
	if budget <= 0 {
		if b, ok := responseBudgets[p.ResponseSize]; ok {
			budget = b
		} else {
			budget = defaultBudget
		}
	}

	analysis := a.Evaluate(p.Payload, tier)

	status, severity, action := a.tier(analysis, budget)

	confidence := 0.6
	if analysis.Words >= 20 {
		confidence += 0.1
	}
	if p.TokenBudget > 0 {
		confidence += 0.1
	}
	if !derived {
		confidence += 0.1
	}

	summary := fmt.Sprintf("%s: efficiency %.2f, ~%d tokens ($%.4f on %s tier)",
		status, analysis.Efficiency, analysis.InputTokens+analysis.OutputTokens, analysis.CostUSD, tier)
	reasoning := fmt.Sprintf("%d words -> %d input / %d output tokens; signal density %.2f, redundancy %.2f, %d filler match(es), est. savings %.0f%%",
		analysis.Words, analysis.InputTokens, analysis.OutputTokens,
		analysis.SignalDensity, analysis.Redundancy, analysis.PatternMatches, analysis.SavingsPercent)
	if derived {
		reasoning += " (payload context derived from decision type)"
	}

	return &advice.Recommendation{
		Advisor:    advice.KindInformation,
		Severity:   severity,
		Action:     action,
		Summary:    summary,
		Confidence: advice.Clamp01(confidence),
		Reasoning:  reasoning,
		Metrics: map[string]float64{
			"input_tokens":    float64(analysis.InputTokens),
			"output_tokens":   float64(analysis.OutputTokens),
			"signal_density":  analysis.SignalDensity,
			"redundancy":      analysis.Redundancy,
			"efficiency":      analysis.Efficiency,
			"savings_percent": analysis.SavingsPercent,
			"cost_usd":        analysis.CostUSD,
			"token_budget":    float64(budget),
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Evaluate runs the pure token and density analysis over a payload. The
// same payload always yields the same numbers.
func (a *Information) Evaluate(payload, tier string) TokenAnalysis {
	words := strings.Fields(payload)
	analysis := TokenAnalysis{Words: len(words)}
	if len(words) == 0 {
		return analysis
	}

	// ceil(words * 1.3) in integer arithmetic, so the subword inflation
	// estimate stays exact at multiples of ten.
	analysis.InputTokens = (len(words)*13 + 9) / 10
	analysis.OutputTokens = outputMultiplier * analysis.InputTokens

	signal := 0
	for _, w := range words {
		if isSignalWord(w) {
			signal++
		}
	}
	analysis.SignalDensity = min(1, float64(signal)/float64(len(words))*10)

	repetition := trigramRepetition(words)
	for _, fp := range fillerPatterns {
		matches := fp.re.FindAllStringIndex(payload, -1)
		analysis.PatternMatches += len(matches)
		analysis.SavedTokens += len(matches) * fp.saved
	}
	// Adjacent duplicated words count as filler too. RE2 has no
	// backreferences, so this check lives outside the pattern table.
	for i := 1; i < len(words); i++ {
		if strings.EqualFold(words[i], words[i-1]) {
			analysis.PatternMatches++
			analysis.SavedTokens++
		}
	}
	analysis.Redundancy = min(1, 0.5*repetition+min(0.5, 0.05*float64(analysis.PatternMatches)))

	efficiency := analysis.SignalDensity *
		(1 - analysis.Redundancy) *
		math.Max(0.5, 1-0.02*float64(analysis.PatternMatches))
	analysis.Efficiency = math.Max(0.1, efficiency)

	total := analysis.InputTokens + analysis.OutputTokens
	analysis.SavingsPercent = min(50,
		100*(float64(analysis.SavedTokens)+float64(analysis.InputTokens)*analysis.Redundancy*0.5)/float64(total))

	price := costTiers[tier]
	analysis.CostUSD = float64(analysis.InputTokens)/1e6*price.in +
		float64(analysis.OutputTokens)/1e6*price.out

	return analysis
}

// tier applies the fixed priority order: inefficiency, budget overrun,
// optimality, acceptable.
func (a *Information) tier(analysis TokenAnalysis, budget int) (string, advice.Severity, string) {
	usage := analysis.InputTokens + analysis.OutputTokens
	switch {
	case analysis.Efficiency < 0.3:
		return "INEFFICIENT", advice.SeverityOptimise, "strip filler and restate the payload around its signal words"
	case usage > budget:
		return "OVER BUDGET", advice.SeverityCritical,
			fmt.Sprintf("cut the payload below the %d-token budget", budget)
	case analysis.Efficiency > 0.7:
		return "OPTIMAL", advice.SeverityAcceptable, ""
	default:
		return "ACCEPTABLE", advice.SeverityAcceptable, ""
	}
}

func isSignalWord(word string) bool {
	w := strings.ToLower(strings.Trim(word, ".,;:!?\"'()[]{}"))
	for _, stem := range signalStems {
		if strings.Contains(w, stem) {
			return true
		}
	}
	return false
}

// trigramRepetition returns 1 - unique/total over word 3-grams; 0 when the
// payload is too short to form one.
func trigramRepetition(words []string) float64 {
	if len(words) < 3 {
		return 0
	}
	total := len(words) - 2
	unique := make(map[string]struct{}, total)
	for i := 0; i < total; i++ {
		key := strings.ToLower(words[i] + " " + words[i+1] + " " + words[i+2])
		unique[key] = struct{}{}
	}
	return 1 - float64(len(unique))/float64(total)
}

func defaultPayloadContext(t advice.DecisionType, metadata map[string]string) *advice.PayloadContext {
	p := &advice.PayloadContext{ResponseSize: "medium", CostTier: "standard"}
	if t == advice.DecisionContentGeneration {
		p.ResponseSize = "long"
	}
	// A prompt passed through metadata is the only payload we can analyse
	// without an explicit payload context.
	if prompt, ok := metadata["prompt"]; ok {
		p.Payload = prompt
	}
	return p
}

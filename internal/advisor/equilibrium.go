package advisor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/synod-labs/synod/internal/domain/advice"
)

// Actor actions and system responses of the two-sided funnel game. The
// actor picks a row; the system picks a column.
var (
	actorActions    = []string{"advance", "hesitate", "abandon"}
	systemResponses = []string{"incentivise", "neutral", "friction"}
)

// basePayoffs is the actor-side payoff before response scaling. Only
// strictly positive actions count as funnel progress (see NextStage).
var basePayoffs = map[string]float64{
	"advance":  10,
	"hesitate": 0,
	"abandon":  -8,
}

// responseMultipliers scale a cell by the system's posture.
var responseMultipliers = map[string]float64{
	"incentivise": 1.5,
	"neutral":     1.0,
	"friction":    0.5,
}

// stageBaseRates are the per-stage conversion base rates before engagement
// bonuses and funnel decay.
var stageBaseRates = map[advice.FunnelStage]float64{
	advice.StageAwareness:     0.30,
	advice.StageInterest:      0.25,
	advice.StageConsideration: 0.35,
	advice.StageIntent:        0.55,
	advice.StagePurchase:      0.70,
	advice.StageRetention:     0.80,
}

// stageValueMultipliers weight the expected value by funnel depth.
var stageValueMultipliers = map[advice.FunnelStage]float64{
	advice.StageAwareness:     0.10,
	advice.StageInterest:      0.25,
	advice.StageConsideration: 0.50,
	advice.StageIntent:        0.80,
	advice.StagePurchase:      1.00,
	advice.StageRetention:     1.50,
}

// baseConversionValue is the monetary value of one completed conversion.
const baseConversionValue = 100.0

// funnelDecay is the geometric attrition factor applied per stage index.
const funnelDecay = 0.9

// PayoffMatrix holds actor-action rows by system-response columns.
type PayoffMatrix struct {
	Actions   []string
	Responses []string
	Cells     [][]float64
}

// Maximin returns the index of the action whose worst-case payoff across
// all responses is highest, together with that worst-case value. This is
// the conservative two-player strategy; ties go to the earlier action.
func (m PayoffMatrix) Maximin() (int, float64) {
	best := -1
	bestValue := math.Inf(-1)
	for i, row := range m.Cells {
		rowMin := math.Inf(1)
		for _, cell := range row {
			if cell < rowMin {
				rowMin = cell
			}
		}
		if rowMin > bestValue {
			best = i
			bestValue = rowMin
		}
	}
	return best, bestValue
}

// DominantAction returns the index of an action whose payoff strictly
// exceeds every other action's payoff under every response, or -1 when no
// such action exists.
func (m PayoffMatrix) DominantAction() int {
	for i := range m.Cells {
		dominant := true
		for j := range m.Cells {
			if i == j {
				continue
			}
			for col := range m.Cells[i] {
				if m.Cells[i][col] <= m.Cells[j][col] {
					dominant = false
					break
				}
			}
			if !dominant {
				break
			}
		}
		if dominant {
			return i
		}
	}
	return -1
}

// Equilibrium models the actor-versus-system interaction at one funnel
// stage as a payoff matrix, picks the maximin strategy, and estimates
// conversion probability, risk tier, and expected value.
type Equilibrium struct{}

// NewEquilibrium returns the equilibrium advisor.
func NewEquilibrium() *Equilibrium { return &Equilibrium{} }

// Kind implements Advisor.
func (a *Equilibrium) Kind() advice.Kind { return advice.KindEquilibrium }

// Analyse implements Advisor.
func (a *Equilibrium) Analyse(_ context.Context, in *advice.Context) (*advice.Recommendation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	f := in.Funnel
	derived := f == nil
	if derived {
		f = defaultFunnelContext(in.Type)
	}

	matrix := a.BuildMatrix(f)
	eqIdx, eqValue := matrix.Maximin()
	domIdx := matrix.DominantAction()

	probability := a.ConversionProbability(f)
	risk := riskTier(probability)
	expectedValue := baseConversionValue * probability * stageValueMultipliers[f.Stage]

	confidence := 0.6
	if f.HistoryLength > 0 {
		confidence += 0.1
	}
	if f.SessionDurationSec > 0 {
		confidence += 0.1
	}
	if f.PageViews > 0 || f.FeatureInteractions > 0 {
		confidence += 0.1
	}
	if derived {
		confidence -= 0.1
	}

	severity, action := a.tier(risk, f.Stage)

	summary := fmt.Sprintf("maximin strategy at %s is %q (worst-case payoff %.1f); conversion %.0f%%, risk %s",
		f.Stage, matrix.Actions[eqIdx], eqValue, probability*100, risk)
	reasoning := fmt.Sprintf("3x3 payoff game at stage %s (index %d): base rate %.2f decayed by %.2f per stage",
		f.Stage, f.Stage.Index(), stageBaseRates[f.Stage], funnelDecay)
	if domIdx >= 0 {
		reasoning += fmt.Sprintf("; %q strictly dominates", matrix.Actions[domIdx])
	} else {
		reasoning += "; no strictly dominant action"
	}
	if derived {
		reasoning += " (funnel context derived from decision type)"
	}

	metrics := map[string]float64{
		"conversion_probability": probability,
		"expected_value":         expectedValue,
		"equilibrium_payoff":     eqValue,
		"equilibrium_action":     float64(eqIdx),
		"dominant_action":        float64(domIdx),
		"stage_index":            float64(f.Stage.Index()),
	}

	return &advice.Recommendation{
		Advisor:    advice.KindEquilibrium,
		Severity:   severity,
		Action:     action,
		Summary:    summary,
		Confidence: advice.Clamp01(confidence),
		Reasoning:  reasoning,
		Metrics:    metrics,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// BuildMatrix computes the stage's payoff matrix: base payoff per actor
// action, scaled by the system response multiplier and the engagement
// bonuses.
func (a *Equilibrium) BuildMatrix(f *advice.FunnelContext) PayoffMatrix {
	historyBonus := 1 + min(0.5, 0.05*float64(f.HistoryLength))
	sessionBonus := 1.0
	switch {
	case f.SessionDurationSec > 300:
		sessionBonus = 1.10
	case f.SessionDurationSec > 120:
		sessionBonus = 1.05
	}

	cells := make([][]float64, len(actorActions))
	for i, act := range actorActions {
		cells[i] = make([]float64, len(systemResponses))
		for j, resp := range systemResponses {
			cells[i][j] = basePayoffs[act] * responseMultipliers[resp] * historyBonus * sessionBonus
		}
	}
	return PayoffMatrix{Actions: actorActions, Responses: systemResponses, Cells: cells}
}

// ConversionProbability starts from the stage base rate, applies engagement
// bonuses, and decays geometrically with funnel depth.
func (a *Equilibrium) ConversionProbability(f *advice.FunnelContext) float64 {
	p := stageBaseRates[f.Stage]
	if f.SessionDurationSec > 180 {
		p *= 1.15
	}
	if f.PageViews > 5 {
		p *= 1.10
	}
	if f.FeatureInteractions > 3 {
		p *= 1.20
	}
	if f.HistoryLength > 10 {
		p *= 1.10
	}
	p = min(p, 0.95)
	return p * math.Pow(funnelDecay, float64(f.Stage.Index()))
}

// NextStage classifies an action against the base payoff table and returns
// the following funnel stage when the action is positive. Used by the event
// tracker; pure.
func NextStage(stage advice.FunnelStage, action string) (advice.FunnelStage, bool) {
	if basePayoffs[action] <= 0 {
		return stage, false
	}
	return stage.Next()
}

func riskTier(probability float64) string {
	switch {
	case probability > 0.6:
		return "low"
	case probability > 0.3:
		return "medium"
	default:
		return "high"
	}
}

func (a *Equilibrium) tier(risk string, stage advice.FunnelStage) (advice.Severity, string) {
	switch risk {
	case "high":
		return advice.SeverityCritical, fmt.Sprintf("add incentives to de-risk the %s step", stage)
	case "medium":
		return advice.SeverityOptimise, fmt.Sprintf("nudge engagement before the %s step", stage)
	default:
		return advice.SeverityAcceptable, ""
	}
}

func defaultFunnelContext(t advice.DecisionType) *advice.FunnelContext {
	switch t {
	case advice.DecisionFunnelStep:
		return &advice.FunnelContext{Stage: advice.StageConsideration}
	case advice.DecisionUserAction:
		return &advice.FunnelContext{Stage: advice.StageIntent}
	case advice.DecisionPageTransition:
		return &advice.FunnelContext{Stage: advice.StageInterest}
	default:
		return &advice.FunnelContext{Stage: advice.StageAwareness}
	}
}

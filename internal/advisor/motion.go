package advisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/synod-labs/synod/internal/domain/advice"
)

// durationBand is the tuned timing window for one animation intent, in
// milliseconds.
type durationBand struct {
	min, max, optimal float64
}

var durationBands = map[string]durationBand{
	"micro-interaction": {min: 100, max: 200, optimal: 150},
	"feedback":          {min: 150, max: 300, optimal: 200},
	"page-transition":   {min: 250, max: 500, optimal: 350},
	"attention":         {min: 300, max: 800, optimal: 500},
	"narrative":         {min: 500, max: 1200, optimal: 800},
}

// fallbackBand covers unknown intents.
var fallbackBand = durationBand{min: 150, max: 300, optimal: 200}

// springPresets are the five named oscillator profiles. All of them pass
// the damping-ratio validation.
var springPresets = map[string]advice.SpringConfig{
	"default": {Damping: 26, Stiffness: 170, Mass: 1},
	"gentle":  {Damping: 14, Stiffness: 120, Mass: 1},
	"wobbly":  {Damping: 12, Stiffness: 180, Mass: 1},
	"stiff":   {Damping: 20, Stiffness: 210, Mass: 1},
	"slow":    {Damping: 60, Stiffness: 280, Mass: 1},
}

// curvePresets are the named cubic-Bezier easings.
var curvePresets = map[string]advice.CurveConfig{
	"ease-in-out": {Name: "ease-in-out", X1: 0.42, Y1: 0, X2: 0.58, Y2: 1},
	"standard":    {Name: "standard", X1: 0.4, Y1: 0, X2: 0.2, Y2: 1},
	"decelerate":  {Name: "decelerate", X1: 0, Y1: 0, X2: 0.2, Y2: 1},
	"accelerate":  {Name: "accelerate", X1: 0.4, Y1: 0, X2: 1, Y2: 1},
	"sharp":       {Name: "sharp", X1: 0.4, Y1: 0, X2: 0.6, Y2: 1},
}

// springElements x springIntents is the fixed membership test for
// spring-based motion. Everything else gets a curve.
var (
	springElements = map[string]bool{"modal": true, "card": true, "toast": true}
	springIntents  = map[string]bool{"attention": true, "feedback": true}
)

// Damping-ratio acceptance window: below oscillates visibly, above drags.
const (
	minDampingRatio = 0.2
	maxDampingRatio = 2.0
)

// Frame-budget instability heuristics at the fixed 60fps budget.
const (
	maxStiffness  = 1000.0
	minMass       = 0.1
	minDurationMS = 50.0
	maxDurationMS = 2000.0
)

// Motion validates proposed timing configurations against damped-oscillator
// physics and the frame budget, and recommends either a spring or a curve
// profile per intent.
type Motion struct{}

// NewMotion returns the motion-physics advisor.
func NewMotion() *Motion { return &Motion{} }

// Kind implements Advisor.
func (a *Motion) Kind() advice.Kind { return advice.KindMotion }

// Analyse implements Advisor.
func (a *Motion) Analyse(_ context.Context, in *advice.Context) (*advice.Recommendation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	mc := in.Motion
	derived := mc == nil
	if derived {
		mc = defaultMotionContext(in.Type)
	}

	band, knownIntent := durationBands[mc.Intent]
	if !knownIntent {
		band = fallbackBand
	}

	duration := a.RecommendDuration(mc, band)
	spec := advice.MotionSpec{DurationMS: duration}

	var profile string
	if prefersSpring(mc.Element, mc.Intent) {
		spring := springFor(mc.Intent, mc.Urgency)
		spec.Spring = &spring
		profile = fmt.Sprintf("spring %q (settles in ~%.0fms)", springName(mc.Intent, mc.Urgency), SettlingTimeMS(spring))
	} else {
		curve := curveFor(mc.Intent, mc.Urgency)
		spec.Curve = &curve
		profile = fmt.Sprintf("curve %q over %.0fms", curve.Name, duration)
	}

	severity := advice.SeverityAcceptable
	action := ""
	var violation error
	if mc.Proposed != nil {
		if violation = ValidateSpec(*mc.Proposed); violation != nil {
			severity = advice.SeverityWarning
			action = "replace the proposed timing with the recommended profile"
		} else if mc.Proposed.DurationMS > 0 && (mc.Proposed.DurationMS < band.min || mc.Proposed.DurationMS > band.max) {
			severity = advice.SeverityOptimise
			action = fmt.Sprintf("retune duration toward %.0fms for %s motion", band.optimal, mc.Intent)
		}
	}

	confidence := 0.6
	if knownIntent {
		confidence += 0.1
	}
	if !derived {
		confidence += 0.1
	}
	if mc.Proposed != nil {
		confidence += 0.1
	}

	summary := fmt.Sprintf("use %s for %s on %s", profile, mc.Intent, mc.Element)
	reasoning := fmt.Sprintf("band [%.0f, %.0f]ms optimal %.0fms, urgency %s", band.min, band.max, band.optimal, mc.Urgency)
	if mc.DistancePX > 0 {
		reasoning += fmt.Sprintf(", stretched for %.0fpx travel", mc.DistancePX)
	}
	if violation != nil {
		reasoning += "; proposed config rejected: " + violation.Error()
	}
	if derived {
		reasoning += " (motion context derived from decision type)"
	}

	metrics := map[string]float64{
		"duration_ms": duration,
		"band_min":    band.min,
		"band_max":    band.max,
		"distance_px": mc.DistancePX,
	}
	if spec.Spring != nil {
		metrics["damping_ratio"] = DampingRatio(*spec.Spring)
		metrics["settling_ms"] = SettlingTimeMS(*spec.Spring)
	}
	if violation != nil {
		metrics["proposal_valid"] = 0
	} else if mc.Proposed != nil {
		metrics["proposal_valid"] = 1
	}

	return &advice.Recommendation{
		Advisor:    advice.KindMotion,
		Severity:   severity,
		Action:     action,
		Summary:    summary,
		Confidence: advice.Clamp01(confidence),
		Reasoning:  reasoning,
		Metrics:    metrics,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// RecommendDuration picks a duration from the band: urgency pulls toward the
// min or max, and travel distance stretches the result at 1ms per pixel,
// capped at 1.5x the band maximum.
func (a *Motion) RecommendDuration(mc *advice.MotionContext, band durationBand) float64 {
	var duration float64
	switch mc.Urgency {
	case advice.UrgencyHigh:
		duration = (band.min + band.optimal) / 2
	case advice.UrgencyLow:
		duration = (band.optimal + band.max) / 2
	default:
		duration = band.optimal
	}
	if mc.DistancePX > 0 {
		duration = min(duration+mc.DistancePX, band.max*1.5)
	}
	return duration
}

// DampingRatio returns the dimensionless damping ratio of the spring:
// damping / (2 * sqrt(stiffness * mass)).
func DampingRatio(s advice.SpringConfig) float64 {
	return s.Damping / (2 * math.Sqrt(s.Stiffness*s.Mass))
}

// SettlingTimeMS estimates how long the spring takes to settle, in
// milliseconds: 4/(zeta*omega) underdamped, 2*zeta/omega otherwise, with
// omega = sqrt(stiffness/mass) and time in seconds.
func SettlingTimeMS(s advice.SpringConfig) float64 {
	omega := math.Sqrt(s.Stiffness / s.Mass)
	zeta := DampingRatio(s)
	if zeta < 1 {
		return 4 / (zeta * omega) * 1000
	}
	return 2 * zeta / omega * 1000
}

// ValidateSpring rejects springs outside the damping-ratio window.
func ValidateSpring(s advice.SpringConfig) error {
	if s.Stiffness <= 0 || s.Mass <= 0 || s.Damping <= 0 {
		return errors.New("spring parameters must be positive")
	}
	zeta := DampingRatio(s)
	if zeta < minDampingRatio {
		return fmt.Errorf("damping ratio %.2f below %.1f: excessive oscillation", zeta, minDampingRatio)
	}
	if zeta > maxDampingRatio {
		return fmt.Errorf("damping ratio %.2f above %.1f: excessive sluggishness", zeta, maxDampingRatio)
	}
	return nil
}

// ValidateCurve rejects control points outside x in [0,1], y in [-2,2].
func ValidateCurve(c advice.CurveConfig) error {
	if c.X1 < 0 || c.X1 > 1 || c.X2 < 0 || c.X2 > 1 {
		return errors.New("curve control point x out of [0,1]")
	}
	if c.Y1 < -2 || c.Y1 > 2 || c.Y2 < -2 || c.Y2 > 2 {
		return errors.New("curve control point y out of [-2,2]")
	}
	return nil
}

// ValidateDuration rejects durations outside [50ms, 2000ms].
func ValidateDuration(ms float64) error {
	if ms < minDurationMS {
		return fmt.Errorf("duration %.0fms below %.0fms", ms, minDurationMS)
	}
	if ms > maxDurationMS {
		return fmt.Errorf("duration %.0fms above %.0fms", ms, maxDurationMS)
	}
	return nil
}

// CheckFrameBudget rejects configurations that destabilise the fixed frame
// budget: stiffness above 1000, mass below 0.1, or sub-50ms durations.
func CheckFrameBudget(spec advice.MotionSpec) error {
	if spec.Spring != nil {
		if spec.Spring.Stiffness > maxStiffness {
			return fmt.Errorf("stiffness %.0f exceeds frame budget limit %.0f", spec.Spring.Stiffness, maxStiffness)
		}
		if spec.Spring.Mass < minMass {
			return fmt.Errorf("mass %.2f below frame budget limit %.1f", spec.Spring.Mass, minMass)
		}
	}
	if spec.DurationMS > 0 && spec.DurationMS < minDurationMS {
		return fmt.Errorf("duration %.0fms below the frame budget floor", spec.DurationMS)
	}
	return nil
}

// ValidateSpec runs every applicable physics check over a proposed spec.
func ValidateSpec(spec advice.MotionSpec) error {
	if spec.Spring != nil {
		if err := ValidateSpring(*spec.Spring); err != nil {
			return err
		}
	}
	if spec.Curve != nil {
		if err := ValidateCurve(*spec.Curve); err != nil {
			return err
		}
	}
	if spec.DurationMS > 0 {
		if err := ValidateDuration(spec.DurationMS); err != nil {
			return err
		}
	}
	return CheckFrameBudget(spec)
}

func prefersSpring(element, intent string) bool {
	return springElements[element] && springIntents[intent]
}

func springName(intent, urgency string) string {
	switch {
	case urgency == advice.UrgencyHigh:
		return "stiff"
	case urgency == advice.UrgencyLow:
		return "slow"
	case intent == "attention":
		return "wobbly"
	case intent == "feedback":
		return "gentle"
	default:
		return "default"
	}
}

func springFor(intent, urgency string) advice.SpringConfig {
	return springPresets[springName(intent, urgency)]
}

func curveFor(intent, urgency string) advice.CurveConfig {
	if intent == "micro-interaction" {
		return curvePresets["ease-in-out"]
	}
	if urgency == advice.UrgencyHigh {
		return curvePresets["sharp"]
	}
	switch intent {
	case "page-transition":
		return curvePresets["standard"]
	case "feedback", "attention":
		return curvePresets["decelerate"]
	default:
		return curvePresets["ease-in-out"]
	}
}

func defaultMotionContext(t advice.DecisionType) *advice.MotionContext {
	switch t {
	case advice.DecisionUserAction:
		return &advice.MotionContext{Intent: "micro-interaction", Element: "button", Urgency: advice.UrgencyHigh}
	case advice.DecisionPageTransition:
		return &advice.MotionContext{Intent: "page-transition", Element: "page", Urgency: advice.UrgencyNormal}
	default:
		return &advice.MotionContext{Intent: "feedback", Element: "card", Urgency: advice.UrgencyNormal}
	}
}

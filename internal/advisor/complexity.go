package advisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/synod-labs/synod/internal/domain/advice"
)

// Class is an asymptotic complexity class, ordered from cheapest to worst.
type Class int

const (
	O1 Class = iota
	OLogN
	ON
	ONLogN
	ON2
	OExp
)

// String returns the conventional big-O notation for the class.
func (c Class) String() string {
	switch c {
	case O1:
		return "O(1)"
	case OLogN:
		return "O(log n)"
	case ON:
		return "O(n)"
	case ONLogN:
		return "O(n log n)"
	case ON2:
		return "O(n^2)"
	case OExp:
		return "O(2^n)"
	}
	return "O(?)"
}

// severityScore maps a class onto [0,1] for the optimisation-potential sum.
func (c Class) severityScore() float64 {
	return float64(c) / float64(OExp)
}

// classRule binds one query-pattern tag to a complexity class.
type classRule struct {
	pattern string
	class   Class
}

// timeRules maps query-pattern tags to time classes, worst patterns first.
// Classification takes the worst class among matched patterns, so adding a
// pattern can never lower the result.
var timeRules = []classRule{
	{"recursive-expansion", OExp},
	{"combinatorial", OExp},
	{"cartesian-join", ON2},
	{"nested-loop", ON2},
	{"pairwise-comparison", ON2},
	{"sort", ONLogN},
	{"merge", ONLogN},
	{"full-scan", ON},
	{"aggregation", ON},
	{"linear-filter", ON},
	{"index-lookup", OLogN},
	{"tree-walk", OLogN},
	{"key-lookup", O1},
	{"cache-read", O1},
}

// spaceRules is the coarser parallel rule set for memory cost.
var spaceRules = []classRule{
	{"cartesian-join", ON2},
	{"materialize", ON},
	{"in-memory-aggregation", ON},
	{"sort", ON},
	{"streaming", O1},
}

// AlgorithmicAnalysis is the working result of one complexity evaluation,
// scoped to a single advisor call.
type AlgorithmicAnalysis struct {
	TimeClass    Class
	SpaceClass   Class
	Bottlenecks  []string
	Remediations []string
	Potential    float64
}

// Complexity classifies an operation's asymptotic time and space cost from
// qualitative signals, detects common performance anti-patterns, and scores
// the optimisation headroom.
type Complexity struct{}

// NewComplexity returns the complexity advisor.
func NewComplexity() *Complexity { return &Complexity{} }

// Kind implements Advisor.
func (a *Complexity) Kind() advice.Kind { return advice.KindComplexity }

// Analyse implements Advisor.
func (a *Complexity) Analyse(_ context.Context, in *advice.Context) (*advice.Recommendation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	q := in.Query
	derived := q == nil
	if derived {
		q = defaultQueryContext(in.Type)
	}

	analysis := a.Evaluate(q)

	confidence := 0.6
	if q.QueriesPerRequest > 0 {
		confidence += 0.1
	}
	if q.CacheHitRate != nil {
		confidence += 0.1
	}
	if len(analysis.Bottlenecks) > 0 {
		confidence += 0.1
	}
	if analysis.TimeClass == OExp {
		// The worst class is also the easiest to mis-classify from tags alone.
		confidence -= 0.1
	}

	severity, action, summary := a.tier(analysis)

	reasoning := fmt.Sprintf("%s over ~%d rows classified as %s time, %s space",
		q.Operation, q.EstimatedRows, analysis.TimeClass, analysis.SpaceClass)
	if len(analysis.Bottlenecks) > 0 {
		reasoning += "; bottlenecks: " + strings.Join(analysis.Bottlenecks, ", ")
	}
	if derived {
		reasoning += " (query context derived from decision type)"
	}

	return &advice.Recommendation{
		Advisor:    advice.KindComplexity,
		Severity:   severity,
		Action:     action,
		Summary:    summary,
		Confidence: advice.Clamp01(confidence),
		Reasoning:  reasoning,
		Metrics: map[string]float64{
			"time_class":             float64(analysis.TimeClass),
			"space_class":            float64(analysis.SpaceClass),
			"optimisation_potential": analysis.Potential,
			"bottleneck_count":       float64(len(analysis.Bottlenecks)),
			"estimated_rows":         float64(q.EstimatedRows),
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Evaluate runs the pure classification over a query context.
func (a *Complexity) Evaluate(q *advice.QueryContext) AlgorithmicAnalysis {
	analysis := AlgorithmicAnalysis{
		TimeClass:  classify(q.Patterns, timeRules, defaultTimeClass(q.Operation, q.EstimatedRows)),
		SpaceClass: classify(q.Patterns, spaceRules, defaultSpaceClass(q.Operation, q.EstimatedRows)),
	}

	a.checkBottlenecks(q, &analysis)

	potential := 0.4*analysis.TimeClass.severityScore() +
		0.2*analysis.SpaceClass.severityScore() +
		min(0.4, 0.1*float64(len(analysis.Bottlenecks)))
	analysis.Potential = advice.Clamp01(potential)

	return analysis
}

// classify returns the worst class among matched patterns, or fallback when
// none match.
func classify(patterns []string, rules []classRule, fallback Class) Class {
	matched := false
	worst := O1
	for _, p := range patterns {
		for _, r := range rules {
			if p == r.pattern {
				matched = true
				if r.class > worst {
					worst = r.class
				}
			}
		}
	}
	if !matched {
		return fallback
	}
	return worst
}

func defaultTimeClass(operation string, rows int) Class {
	switch operation {
	case "aggregate", "export":
		return ON
	case "search":
		if rows > 10000 {
			return ONLogN
		}
		return OLogN
	case "write":
		return O1
	}
	switch {
	case rows > 100000:
		return ON
	case rows > 1000:
		return OLogN
	default:
		return O1
	}
}

func defaultSpaceClass(operation string, rows int) Class {
	if operation == "aggregate" || rows > 100000 {
		return ON
	}
	return O1
}

// checkBottlenecks runs the fixed checklist; every hit contributes one
// bottleneck string and one matched remediation.
func (a *Complexity) checkBottlenecks(q *advice.QueryContext, analysis *AlgorithmicAnalysis) {
	add := func(bottleneck, remediation string) {
		analysis.Bottlenecks = append(analysis.Bottlenecks, bottleneck)
		analysis.Remediations = append(analysis.Remediations, remediation)
	}

	if q.Operation == "write" && !q.BatchedWrites && q.EstimatedRows > 100 {
		add("unbatched writes", "batch writes into fixed-size chunks")
	}
	if q.EstimatedRows > 1000 && !q.Paginated && q.Operation != "write" {
		add("missing pagination on large result set", "paginate with a cursor and limit")
	}
	if hasPattern(q.Patterns, "full-scan") {
		add("full table scan", "add a covering index for the scan predicate")
	}
	if joinPattern(q.Patterns) && !q.IndexedJoin {
		add("unindexed join", "index the join keys on both sides")
	}
	if q.Operation == "aggregate" && q.QueriesPerRequest > 1 && (q.CacheHitRate == nil || *q.CacheHitRate == 0) {
		add("repeated analytical query without caching", "cache aggregate results keyed by query shape")
	}
}

func (a *Complexity) tier(analysis AlgorithmicAnalysis) (advice.Severity, string, string) {
	switch {
	case analysis.TimeClass == OExp:
		return advice.SeverityCritical,
			"redesign the algorithm before shipping",
			fmt.Sprintf("exponential %s growth; this will not survive production data volumes", analysis.TimeClass)
	case analysis.TimeClass == ON2:
		return advice.SeverityWarning,
			"replace the quadratic pass with a precomputed or indexed lookup",
			fmt.Sprintf("quadratic %s growth; acceptable only for small bounded inputs", analysis.TimeClass)
	case len(analysis.Bottlenecks) > 0:
		return advice.SeverityOptimise,
			analysis.Remediations[0],
			fmt.Sprintf("%s time with %d addressable bottleneck(s)", analysis.TimeClass, len(analysis.Bottlenecks))
	default:
		return advice.SeverityAcceptable,
			"",
			fmt.Sprintf("%s time, %s space; no remediation needed", analysis.TimeClass, analysis.SpaceClass)
	}
}

func defaultQueryContext(t advice.DecisionType) *advice.QueryContext {
	switch t {
	case advice.DecisionDatabaseQuery:
		return &advice.QueryContext{Operation: "read", EstimatedRows: 1000}
	case advice.DecisionUserAction, advice.DecisionPageTransition:
		return &advice.QueryContext{Operation: "read", EstimatedRows: 10}
	default:
		return &advice.QueryContext{Operation: "read", EstimatedRows: 100}
	}
}

func hasPattern(patterns []string, want string) bool {
	for _, p := range patterns {
		if p == want {
			return true
		}
	}
	return false
}

func joinPattern(patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(p, "join") {
			return true
		}
	}
	return false
}

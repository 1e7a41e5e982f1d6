// Package advisor implements the analytical units of the advisory engine:
// four stateless models behind one contract, plus the registry the synthesis
// layer convenes them from. Advisors are pure; all their lookup tables are
// package-level read-only values, safe to share across concurrent calls.
package advisor

import (
	"context"
	"fmt"
	"sort"

	"github.com/synod-labs/synod/internal/domain/advice"
)

// Advisor is a stateless analytical unit. Analyse must be side-effect-free;
// analytical shortfalls lower the recommendation's confidence instead of
// erroring. An error return means the context could not be analysed at all,
// and the caller substitutes a degraded stub.
type Advisor interface {
	// Kind returns the advisor's identity tag.
	Kind() advice.Kind

	// Analyse evaluates the context and returns one recommendation with
	// confidence clamped into [0,1].
	Analyse(ctx context.Context, in *advice.Context) (*advice.Recommendation, error)
}

// Registry holds the advisors available to one synthesis service, keyed by
// kind. It is fully populated at construction and read-only afterwards; the
// advisor set is closed, so there is no runtime registration.
type Registry struct {
	advisors map[advice.Kind]Advisor
}

// NewRegistry builds a registry from the given advisors. Duplicate kinds are
// a programming error and panic, matching the construction-time-only
// contract.
func NewRegistry(advisors ...Advisor) *Registry {
	r := &Registry{advisors: make(map[advice.Kind]Advisor, len(advisors))}
	for _, a := range advisors {
		if _, exists := r.advisors[a.Kind()]; exists {
			panic(fmt.Sprintf("advisor: duplicate registration for %q", a.Kind()))
		}
		r.advisors[a.Kind()] = a
	}
	return r
}

// Default returns a registry with all four built-in advisors.
func Default() *Registry {
	return NewRegistry(
		NewComplexity(),
		NewEquilibrium(),
		NewMotion(),
		NewInformation(),
	)
}

// Get returns the advisor for the given kind.
func (r *Registry) Get(kind advice.Kind) (Advisor, bool) {
	a, ok := r.advisors[kind]
	return a, ok
}

// All returns the advisors in stable order: built-in kinds first, any others
// sorted by kind.
func (r *Registry) All() []Advisor {
	out := make([]Advisor, 0, len(r.advisors))
	seen := make(map[advice.Kind]bool, len(r.advisors))
	for _, k := range advice.Kinds() {
		if a, ok := r.advisors[k]; ok {
			out = append(out, a)
			seen[k] = true
		}
	}
	rest := make([]Advisor, 0)
	for k, a := range r.advisors {
		if !seen[k] {
			rest = append(rest, a)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Kind() < rest[j].Kind() })
	return append(out, rest...)
}

// Kinds returns the kinds present, in the same order as All.
func (r *Registry) Kinds() []advice.Kind {
	all := r.All()
	kinds := make([]advice.Kind, len(all))
	for i, a := range all {
		kinds[i] = a.Kind()
	}
	return kinds
}

// Len returns how many advisors are registered.
func (r *Registry) Len() int {
	return len(r.advisors)
}

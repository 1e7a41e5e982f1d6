package http

import (
	"net/http"
	"sort"

	"github.com/synod-labs/synod/internal/domain/advice"
	"github.com/synod-labs/synod/internal/middleware"
	"github.com/synod-labs/synod/internal/service"
)

// maxRequestBodySize limits request bodies to 1 MB.
const maxRequestBodySize = 1 << 20

// Handlers holds the services the HTTP layer dispatches to.
type Handlers struct {
	Synthesis *service.SynthesisService
	Funnel    *service.FunnelService
}

// ---------------------------------------------------------------------------
// Advice
// ---------------------------------------------------------------------------

// RequestAdvice handles POST /api/v1/advice. The body is a decision context;
// the response is the synthesised decision. The tenant always comes from the
// request context, never from the body.
func (h *Handlers) RequestAdvice(w http.ResponseWriter, r *http.Request) {
	in, ok := readJSON[advice.Context](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	in.TenantID = middleware.TenantIDFromContext(r.Context())

	dec, err := h.Synthesis.Convene(r.Context(), &in)
	if err != nil {
		writeDomainError(w, err, "decision could not be synthesised")
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	sess, err := h.Synthesis.GetSession(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ListSessions handles GET /api/v1/sessions with cursor pagination.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limit := queryLimit(r, 50, 500)

	page, err := h.Synthesis.ListSessions(r.Context(), cursor, limit)
	if err != nil {
		writeDomainError(w, err, "sessions not found")
		return
	}
	if page.Sessions == nil {
		page.Sessions = []advice.Session{}
	}
	writeJSON(w, http.StatusOK, page)
}

// AdvisorMetrics handles GET /api/v1/metrics/advisors
func (h *Handlers) AdvisorMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.Synthesis.AdvisorMetrics(r.Context())
	if err != nil {
		writeDomainError(w, err, "metrics not found")
		return
	}
	if metrics == nil {
		metrics = []advice.AdvisorMetric{}
	}
	writeJSON(w, http.StatusOK, metrics)
}

// ---------------------------------------------------------------------------
// Advisor discovery
// ---------------------------------------------------------------------------

// advisorCard describes one advisor to API consumers.
type advisorCard struct {
	Kind        advice.Kind `json:"kind"`
	Weight      float64     `json:"weight"`
	Description string      `json:"description"`
}

// kindDescriptions holds the static description for each built-in advisor.
// Unknown kinds get an empty description rather than an error.
var kindDescriptions = map[advice.Kind]string{
	advice.KindComplexity:  "Estimates the asymptotic cost of the proposed operation and flags scaling bottlenecks",
	advice.KindEquilibrium: "Models funnel-stage incentives as payoff matrices and flags stages where rational actors stall",
	advice.KindMotion:      "Scores gesture and animation parameters against perceived-smoothness thresholds",
	advice.KindInformation: "Measures payload entropy and redundancy to judge compression and dedup potential",
}

// ListAdvisors handles GET /api/v1/advisors. The cards double as a
// lightweight discovery document for agent integrations.
func (h *Handlers) ListAdvisors(w http.ResponseWriter, _ *http.Request) {
	kinds := h.Synthesis.Advisors()
	weights := h.Synthesis.Weights()

	cards := make([]advisorCard, 0, len(kinds))
	for _, k := range kinds {
		cards = append(cards, advisorCard{
			Kind:        k,
			Weight:      weights[k],
			Description: kindDescriptions[k],
		})
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].Kind < cards[j].Kind })

	writeJSON(w, http.StatusOK, cards)
}

// ---------------------------------------------------------------------------
// Funnel
// ---------------------------------------------------------------------------

// trackEventRequest is the wire form of a funnel action.
type trackEventRequest struct {
	Stage  advice.FunnelStage `json:"stage"`
	Action string             `json:"action"`
	Value  float64            `json:"value"`
}

// TrackFunnelEvent handles POST /api/v1/funnel/events
func (h *Handlers) TrackFunnelEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[trackEventRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, req.Action, "action") {
		return
	}

	ev, err := h.Funnel.TrackEvent(r.Context(), service.TrackRequest{
		TenantID: middleware.TenantIDFromContext(r.Context()),
		Stage:    req.Stage,
		Action:   req.Action,
		Value:    req.Value,
	})
	if err != nil {
		writeDomainError(w, err, "funnel event not recorded")
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// FunnelSummary handles GET /api/v1/funnel/summary
func (h *Handlers) FunnelSummary(w http.ResponseWriter, r *http.Request) {
	stages, err := h.Funnel.Summary(r.Context())
	if err != nil {
		writeDomainError(w, err, "funnel summary not available")
		return
	}
	if stages == nil {
		stages = []advice.StageSummary{}
	}
	writeJSON(w, http.StatusOK, stages)
}

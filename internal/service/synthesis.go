package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	synotel "github.com/synod-labs/synod/internal/adapter/otel"
	"github.com/synod-labs/synod/internal/adapter/ws"
	"github.com/synod-labs/synod/internal/advisor"
	"github.com/synod-labs/synod/internal/config"
	"github.com/synod-labs/synod/internal/domain/advice"
	"github.com/synod-labs/synod/internal/port/broadcast"
	"github.com/synod-labs/synod/internal/port/cache"
	"github.com/synod-labs/synod/internal/port/database"
	"github.com/synod-labs/synod/internal/port/messagequeue"
	"github.com/synod-labs/synod/internal/resilience"
)

// degradedAdvisor records one advisor replaced by a stub during a convene.
type degradedAdvisor struct {
	Kind  advice.Kind
	Cause string
}

// SynthesisService convenes every registered advisor over one decision
// context and fuses their recommendations into a single Decision. The
// store, queue, cache, and hub are best-effort sinks: any of them may be
// nil (that sink is skipped) and their failures are logged, never surfaced
// to the caller. Read operations require a store.
type SynthesisService struct {
	registry  *advisor.Registry
	store     database.Store
	queue     messagequeue.Queue
	cache     cache.Cache
	hub       broadcast.Broadcaster
	breaker   *resilience.Breaker
	pool      *ConvenePool
	weights   advice.Weights
	engineCfg *config.Engine
	metrics   *synotel.Metrics
}

// NewSynthesisService creates a SynthesisService. Config weights overlay
// the built-in defaults and the merged table is frozen from here on.
func NewSynthesisService(
	registry *advisor.Registry,
	store database.Store,
	queue messagequeue.Queue,
	decisionCache cache.Cache,
	hub broadcast.Broadcaster,
	breaker *resilience.Breaker,
	engineCfg *config.Engine,
) *SynthesisService {
	weights := advice.DefaultWeights()
	for kind, w := range engineCfg.Weights {
		weights[advice.Kind(kind)] = w
	}

	return &SynthesisService{
		registry:  registry,
		store:     store,
		queue:     queue,
		cache:     decisionCache,
		hub:       hub,
		breaker:   breaker,
		pool:      NewConvenePool(engineCfg.MaxConcurrent),
		weights:   weights,
		engineCfg: engineCfg,
	}
}

// SetMetrics attaches metric instruments. May be left unset; every record
// site is nil-checked.
func (s *SynthesisService) SetMetrics(m *synotel.Metrics) {
	s.metrics = m
}

// Convene fans the context out to every registered advisor, waits for all
// of them, and synthesises the fused Decision. The only fatal conditions
// are an empty registry, an invalid context, and cancellation while queued
// for a pool slot; advisor failures degrade to stubs instead.
func (s *SynthesisService) Convene(ctx context.Context, in *advice.Context) (*advice.Decision, error) {
	if s.registry.Len() == 0 {
		return nil, advice.ErrNoAdvisors
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, span := synotel.StartConveneSpan(ctx, string(in.Type), in.TenantID)
	defer span.End()

	started := time.Now()

	if dec, ok := s.cachedDecision(ctx, in); ok {
		elapsed := time.Since(started).Milliseconds()
		s.persist(ctx, in, dec, nil, elapsed)
		s.publish(ctx, dec, nil, elapsed, true)
		s.announce(ctx, dec, nil, true)
		s.record(ctx, in, dec, nil, started, true)
		return dec, nil
	}

	var recs []advice.Recommendation
	var degraded []degradedAdvisor
	if err := s.pool.Run(ctx, func() error {
		recs, degraded = s.fanOut(ctx, in)
		return nil
	}); err != nil {
		return nil, err
	}

	dec := s.synthesise(in, recs)
	elapsed := time.Since(started).Milliseconds()

	s.persist(ctx, in, dec, degraded, elapsed)
	s.publish(ctx, dec, degraded, elapsed, false)
	s.announce(ctx, dec, degraded, false)
	s.cacheDecision(ctx, in, dec)
	s.record(ctx, in, dec, degraded, started, false)

	return dec, nil
}

// record updates the metric instruments for one finished convene.
func (s *SynthesisService) record(ctx context.Context, in *advice.Context, dec *advice.Decision, degraded []degradedAdvisor, started time.Time, cached bool) {
	if s.metrics == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("decision.type", string(in.Type)))
	s.metrics.Convenes.Add(ctx, 1, attrs)
	if cached {
		s.metrics.CacheHits.Add(ctx, 1, attrs)
	}
	s.metrics.DecisionConfidence.Record(ctx, dec.Confidence, attrs)
	s.metrics.ConveneDuration.Record(ctx, time.Since(started).Seconds(), attrs)
	for _, d := range degraded {
		s.metrics.AdvisorsDegraded.Add(ctx, 1, metric.WithAttributes(
			attribute.String("advisor.kind", string(d.Kind)),
		))
	}
}

// GetSession returns one persisted convene session by decision ID.
func (s *SynthesisService) GetSession(ctx context.Context, id string) (*advice.Session, error) {
	return s.store.GetSession(ctx, id)
}

// ListSessions returns a page of persisted sessions, newest first.
func (s *SynthesisService) ListSessions(ctx context.Context, cursor string, limit int) (*database.SessionPage, error) {
	return s.store.ListSessions(ctx, cursor, limit)
}

// AdvisorMetrics aggregates the stored confidence samples per advisor.
func (s *SynthesisService) AdvisorMetrics(ctx context.Context) ([]advice.AdvisorMetric, error) {
	return s.store.AdvisorMetrics(ctx)
}

// Advisors returns the registered advisor kinds in registry order.
func (s *SynthesisService) Advisors() []advice.Kind {
	return s.registry.Kinds()
}

// Weights returns a copy of the frozen fusion weight table.
func (s *SynthesisService) Weights() advice.Weights {
	return s.weights.Clone()
}

// fanOut runs every advisor in its own goroutine and joins on all of them
// with a wait-all barrier. A panicking or erroring advisor is replaced by a
// degraded stub; its siblings are unaffected.
func (s *SynthesisService) fanOut(ctx context.Context, in *advice.Context) ([]advice.Recommendation, []degradedAdvisor) {
	advisors := s.registry.All()
	recs := make([]advice.Recommendation, len(advisors))
	causes := make([]error, len(advisors))

	var wg sync.WaitGroup
	for i, a := range advisors {
		wg.Add(1)
		go func(i int, a advisor.Advisor) {
			defer wg.Done()

			actx := ctx
			if s.engineCfg.AdvisorTimeout > 0 {
				var cancel context.CancelFunc
				actx, cancel = context.WithTimeout(ctx, s.engineCfg.AdvisorTimeout)
				defer cancel()
			}

			rec, err := s.analyse(actx, a, in)
			if err != nil {
				causes[i] = err
				recs[i] = *advice.Degraded(a.Kind(), err)
				return
			}

			rec.Advisor = a.Kind()
			rec.Confidence = advice.Clamp01(rec.Confidence)
			recs[i] = *rec
		}(i, a)
	}
	wg.Wait()

	var failed []degradedAdvisor
	for i, err := range causes {
		if err != nil {
			slog.Warn("advisor degraded",
				"advisor", advisors[i].Kind(),
				"decision_type", in.Type,
				"error", err)
			failed = append(failed, degradedAdvisor{Kind: advisors[i].Kind(), Cause: err.Error()})
		}
	}
	return recs, failed
}

// analyse invokes one advisor, converting a panic into a plain error so the
// join point only ever sees (rec, err).
func (s *SynthesisService) analyse(ctx context.Context, a advisor.Advisor, in *advice.Context) (rec *advice.Recommendation, err error) {
	ctx, span := synotel.StartAdvisorSpan(ctx, string(a.Kind()))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("advisor %s panicked: %v", a.Kind(), r)
		}
	}()

	rec, err = a.Analyse(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("advisor %s: %w", a.Kind(), err)
	}
	if rec == nil {
		return nil, fmt.Errorf("advisor %s returned no recommendation", a.Kind())
	}
	return rec, nil
}

// synthesise fuses the per-advisor recommendations into the final Decision.
func (s *SynthesisService) synthesise(in *advice.Context, recs []advice.Recommendation) *advice.Decision {
	final, reasoning := s.finalDecision(recs)
	plan := buildPlan(recs)

	var estimated int64
	for _, step := range plan {
		estimated += step.Tag.CostMS()
	}

	return &advice.Decision{
		ID:              uuid.NewString(),
		TenantID:        in.TenantID,
		Type:            in.Type,
		Recommendations: recs,
		FinalDecision:   final,
		Confidence:      s.fusedConfidence(recs),
		Reasoning:       reasoning,
		Plan:            plan,
		EstimatedMS:     estimated,
		CreatedAt:       time.Now().UTC(),
	}
}

// fusedConfidence returns the weight-normalised confidence over the
// advisors present: sum(c*w) / sum(w). Kinds without a configured weight
// contribute nothing; if no weight matches at all, the plain mean is used
// so unconfigured extra advisors still produce a sane overall confidence.
func (s *SynthesisService) fusedConfidence(recs []advice.Recommendation) float64 {
	var weighted, total float64
	for _, r := range recs {
		w := s.weights[r.Advisor]
		weighted += r.Confidence * w
		total += w
	}

	if total == 0 {
		if len(recs) == 0 {
			return 0
		}
		var sum float64
		for _, r := range recs {
			sum += r.Confidence
		}
		return advice.Clamp01(sum / float64(len(recs)))
	}

	return advice.Clamp01(weighted / total)
}

// finalDecision builds the fused verdict from the two most authoritative
// recommendations, ranked by weight times confidence. Their structured
// Action fields are joined; with nothing actionable the verdict is a plain
// proceed.
func (s *SynthesisService) finalDecision(recs []advice.Recommendation) (string, string) {
	ranked := make([]advice.Recommendation, len(recs))
	copy(ranked, recs)
	sort.SliceStable(ranked, func(i, j int) bool {
		wi := s.weights[ranked[i].Advisor] * ranked[i].Confidence
		wj := s.weights[ranked[j].Advisor] * ranked[j].Confidence
		return wi > wj
	})
	if len(ranked) > 2 {
		ranked = ranked[:2]
	}

	leaders := make([]string, 0, len(ranked))
	actions := make([]string, 0, len(ranked))
	for _, r := range ranked {
		leaders = append(leaders, string(r.Advisor))
		if r.Action != "" {
			actions = append(actions, r.Action)
		}
	}
	reasoning := "weighted synthesis led by " + strings.Join(leaders, " and ")

	if len(actions) == 0 {
		return "proceed", reasoning
	}
	return strings.Join(actions, "; "), reasoning
}

// buildPlan converts the recommendations into the ordered execution plan:
// urgent steps first, opportunistic ones next, always closed out by the
// fixed monitor and record steps.
func buildPlan(recs []advice.Recommendation) []advice.PlanStep {
	plan := make([]advice.PlanStep, 0, len(recs)+2)

	for _, r := range recs {
		if r.Severity == advice.SeverityCritical || r.Severity == advice.SeverityWarning {
			plan = append(plan, advice.PlanStep{
				Tag:         advice.PlanPriority,
				Description: fmt.Sprintf("%s: %s", r.Advisor, r.Action),
			})
		}
	}
	for _, r := range recs {
		if r.Severity == advice.SeverityOptimise {
			plan = append(plan, advice.PlanStep{
				Tag:         advice.PlanOptimise,
				Description: fmt.Sprintf("%s: %s", r.Advisor, r.Action),
			})
		}
	}

	return append(plan,
		advice.PlanStep{Tag: advice.PlanMonitor, Description: "monitor decision outcome metrics"},
		advice.PlanStep{Tag: advice.PlanRecord, Description: "record decision for advisor calibration"},
	)
}

// cachedDecision replays a cached decision for the context fingerprint,
// rewriting the identity fields so every caller still observes a unique
// decision ID.
func (s *SynthesisService) cachedDecision(ctx context.Context, in *advice.Context) (*advice.Decision, bool) {
	if s.cache == nil || !s.engineCfg.CacheDecisions {
		return nil, false
	}

	data, found, err := s.cache.Get(ctx, decisionCacheKey(in))
	if err != nil {
		slog.Warn("decision cache read failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var dec advice.Decision
	if err := json.Unmarshal(data, &dec); err != nil {
		slog.Warn("decision cache entry corrupt", "error", err)
		return nil, false
	}

	dec.ID = uuid.NewString()
	dec.CreatedAt = time.Now().UTC()
	return &dec, true
}

// cacheDecision stores the decision under the context fingerprint.
func (s *SynthesisService) cacheDecision(ctx context.Context, in *advice.Context, dec *advice.Decision) {
	if s.cache == nil || !s.engineCfg.CacheDecisions {
		return
	}

	data, err := json.Marshal(dec)
	if err != nil {
		slog.Error("marshal decision for cache", "decision_id", dec.ID, "error", err)
		return
	}
	if err := s.cache.Set(ctx, decisionCacheKey(in), data, s.engineCfg.DecisionTTL); err != nil {
		slog.Warn("decision cache write failed", "decision_id", dec.ID, "error", err)
	}
}

func decisionCacheKey(in *advice.Context) string {
	return "decision:" + in.Fingerprint()
}

// persist writes the session record and the per-advisor confidence samples.
// Both writes run through the breaker; a dead store trips it open so later
// convenes fail fast on the sink instead of waiting out timeouts.
func (s *SynthesisService) persist(ctx context.Context, in *advice.Context, dec *advice.Decision, degraded []degradedAdvisor, elapsedMS int64) {
	if s.store == nil {
		return
	}

	session := &advice.Session{
		ID:        dec.ID,
		TenantID:  dec.TenantID,
		Context:   *in,
		Decision:  *dec,
		ElapsedMS: elapsedMS,
		CreatedAt: dec.CreatedAt,
	}
	if err := s.guard(func() error { return s.store.CreateSession(ctx, session) }); err != nil {
		slog.Error("persist advice session", "decision_id", dec.ID, "error", err)
	}

	stubbed := make(map[advice.Kind]bool, len(degraded))
	for _, d := range degraded {
		stubbed[d.Kind] = true
	}

	samples := make([]advice.ConfidenceSample, 0, len(dec.Recommendations))
	for _, r := range dec.Recommendations {
		samples = append(samples, advice.ConfidenceSample{
			DecisionID: dec.ID,
			TenantID:   dec.TenantID,
			Advisor:    r.Advisor,
			Confidence: r.Confidence,
			Degraded:   stubbed[r.Advisor],
			CreatedAt:  dec.CreatedAt,
		})
	}
	if err := s.guard(func() error { return s.store.RecordSamples(ctx, samples) }); err != nil {
		slog.Error("persist confidence samples", "decision_id", dec.ID, "error", err)
	}
}

// publish emits the decision and any degradations to the message queue.
func (s *SynthesisService) publish(ctx context.Context, dec *advice.Decision, degraded []degradedAdvisor, elapsedMS int64, cached bool) {
	if s.queue == nil {
		return
	}

	payload := messagequeue.DecisionPayload{
		DecisionID:    dec.ID,
		TenantID:      dec.TenantID,
		Type:          string(dec.Type),
		FinalDecision: dec.FinalDecision,
		Confidence:    dec.Confidence,
		EstimatedMS:   int(dec.EstimatedMS),
		Advisors:      len(dec.Recommendations),
		Degraded:      len(degraded),
		ElapsedMS:     elapsedMS,
		Cached:        cached,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal decision payload", "decision_id", dec.ID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectDecision, data); err != nil {
		slog.Error("publish decision", "decision_id", dec.ID, "error", err)
	}

	for _, d := range degraded {
		data, err := json.Marshal(messagequeue.DegradedPayload{
			DecisionID: dec.ID,
			TenantID:   dec.TenantID,
			Advisor:    string(d.Kind),
			Cause:      d.Cause,
		})
		if err != nil {
			continue
		}
		if err := s.queue.Publish(ctx, messagequeue.SubjectDegraded, data); err != nil {
			slog.Error("publish degradation", "decision_id", dec.ID, "advisor", d.Kind, "error", err)
		}
	}
}

// announce pushes the decision and any degradations to connected websocket
// clients.
func (s *SynthesisService) announce(ctx context.Context, dec *advice.Decision, degraded []degradedAdvisor, cached bool) {
	if s.hub == nil {
		return
	}

	s.hub.BroadcastEvent(ctx, ws.EventDecision, ws.DecisionEvent{
		DecisionID:    dec.ID,
		TenantID:      dec.TenantID,
		Type:          string(dec.Type),
		FinalDecision: dec.FinalDecision,
		Confidence:    dec.Confidence,
		EstimatedMS:   dec.EstimatedMS,
		Cached:        cached,
	})

	for _, d := range degraded {
		s.hub.BroadcastEvent(ctx, ws.EventAdvisorDegraded, ws.AdvisorDegradedEvent{
			DecisionID: dec.ID,
			TenantID:   dec.TenantID,
			Advisor:    string(d.Kind),
			Cause:      d.Cause,
		})
	}
}

// guard routes a sink call through the breaker when one is configured.
func (s *SynthesisService) guard(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

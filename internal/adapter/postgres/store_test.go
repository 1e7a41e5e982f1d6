package postgres_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/synod-labs/synod/internal/adapter/postgres"
	"github.com/synod-labs/synod/internal/domain"
	"github.com/synod-labs/synod/internal/domain/advice"
	"github.com/synod-labs/synod/internal/middleware"
)

// ctxWithTenant builds a context carrying the given tenant ID by routing a
// fake HTTP request through the TenantID middleware. This is the only safe way
// to populate the unexported context key used by tenantFromCtx.
func ctxWithTenant(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ch := make(chan context.Context, 1)
	handler := middleware.TenantID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ch <- r.Context()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-Tenant-ID", tenantID)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	select {
	case ctx := <-ch:
		return ctx
	default:
		t.Fatal("TenantID middleware did not invoke next handler")
		return nil
	}
}

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

// testSession builds a fully populated session so the JSONB round-trip is
// exercised end to end.
func testSession(tenantID string, createdAt time.Time) *advice.Session {
	id := uuid.NewString()
	in := advice.Context{
		Type:     advice.DecisionDatabaseQuery,
		TenantID: tenantID,
		Query:    &advice.QueryContext{Operation: "read", EstimatedRows: 500, Paginated: true},
	}
	return &advice.Session{
		ID:       id,
		TenantID: tenantID,
		Context:  in,
		Decision: advice.Decision{
			ID:            id,
			TenantID:      tenantID,
			Type:          in.Type,
			FinalDecision: "proceed",
			Confidence:    0.75,
			Reasoning:     "weighted synthesis led by complexity and equilibrium",
			Recommendations: []advice.Recommendation{
				{Advisor: advice.KindComplexity, Severity: advice.SeverityAcceptable, Confidence: 0.8},
			},
			Plan: []advice.PlanStep{
				{Tag: advice.PlanMonitor, Description: "monitor decision outcome metrics"},
			},
			EstimatedMS: 100,
			CreatedAt:   createdAt,
		},
		ElapsedMS: 12,
		CreatedAt: createdAt,
	}
}

func TestSessionStore(t *testing.T) {
	store := setupStore(t)
	tenantID := uuid.NewString()
	ctx := ctxWithTenant(t, tenantID)

	now := time.Now().UTC().Truncate(time.Microsecond)
	created := testSession(tenantID, now)
	if err := store.CreateSession(ctx, created); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	t.Run("Get", func(t *testing.T) {
		got, err := store.GetSession(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.ID != created.ID {
			t.Fatalf("expected ID %q, got %q", created.ID, got.ID)
		}
		if got.Decision.FinalDecision != "proceed" {
			t.Fatalf("decision did not round-trip: %+v", got.Decision)
		}
		if got.Context.Query == nil || got.Context.Query.EstimatedRows != 500 {
			t.Fatalf("context did not round-trip: %+v", got.Context)
		}
		if len(got.Decision.Recommendations) != 1 || got.Decision.Recommendations[0].Advisor != advice.KindComplexity {
			t.Fatalf("recommendations did not round-trip: %+v", got.Decision.Recommendations)
		}
		if got.ElapsedMS != 12 {
			t.Fatalf("expected elapsed 12, got %d", got.ElapsedMS)
		}
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := store.GetSession(ctx, uuid.NewString())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Get_TenantIsolation", func(t *testing.T) {
		otherCtx := ctxWithTenant(t, uuid.NewString())
		_, err := store.GetSession(otherCtx, created.ID)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound across tenants, got %v", err)
		}
	})

	t.Run("List_Pagination", func(t *testing.T) {
		pageTenant := uuid.NewString()
		pageCtx := ctxWithTenant(t, pageTenant)

		// Five sessions with strictly descending timestamps.
		base := time.Now().UTC().Truncate(time.Microsecond)
		ids := make([]string, 5)
		for i := 0; i < 5; i++ {
			sess := testSession(pageTenant, base.Add(-time.Duration(i)*time.Second))
			if err := store.CreateSession(pageCtx, sess); err != nil {
				t.Fatalf("CreateSession %d: %v", i, err)
			}
			ids[i] = sess.ID
		}

		page, err := store.ListSessions(pageCtx, "", 2)
		if err != nil {
			t.Fatalf("ListSessions: %v", err)
		}
		if len(page.Sessions) != 2 || !page.HasMore || page.Cursor == "" {
			t.Fatalf("unexpected first page: %d sessions, hasMore=%v, cursor=%q",
				len(page.Sessions), page.HasMore, page.Cursor)
		}
		if page.Sessions[0].ID != ids[0] || page.Sessions[1].ID != ids[1] {
			t.Fatalf("expected newest first, got %q then %q", page.Sessions[0].ID, page.Sessions[1].ID)
		}

		next, err := store.ListSessions(pageCtx, page.Cursor, 2)
		if err != nil {
			t.Fatalf("ListSessions with cursor: %v", err)
		}
		if len(next.Sessions) != 2 || next.Sessions[0].ID != ids[2] {
			t.Fatalf("unexpected second page: %+v", next.Sessions)
		}

		last, err := store.ListSessions(pageCtx, next.Cursor, 2)
		if err != nil {
			t.Fatalf("ListSessions last page: %v", err)
		}
		if len(last.Sessions) != 1 || last.HasMore || last.Cursor != "" {
			t.Fatalf("unexpected last page: %d sessions, hasMore=%v", len(last.Sessions), last.HasMore)
		}
	})

	t.Run("List_BadCursor", func(t *testing.T) {
		_, err := store.ListSessions(ctx, "not-a-timestamp", 10)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestAdvisorSampleStore(t *testing.T) {
	store := setupStore(t)
	tenantID := uuid.NewString()
	ctx := ctxWithTenant(t, tenantID)

	decisionID := uuid.NewString()
	now := time.Now().UTC()
	samples := []advice.ConfidenceSample{
		{DecisionID: decisionID, TenantID: tenantID, Advisor: advice.KindComplexity, Confidence: 0.9, CreatedAt: now},
		{DecisionID: decisionID, TenantID: tenantID, Advisor: advice.KindComplexity, Confidence: 0.5, CreatedAt: now},
		{DecisionID: decisionID, TenantID: tenantID, Advisor: advice.KindMotion, Confidence: 0.1, Degraded: true, CreatedAt: now},
	}
	if err := store.RecordSamples(ctx, samples); err != nil {
		t.Fatalf("RecordSamples: %v", err)
	}

	metrics, err := store.AdvisorMetrics(ctx)
	if err != nil {
		t.Fatalf("AdvisorMetrics: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("expected 2 advisor rows, got %d: %+v", len(metrics), metrics)
	}

	// Rows come back ordered by advisor name: complexity before motion-physics.
	c := metrics[0]
	if c.Advisor != advice.KindComplexity || c.Samples != 2 {
		t.Fatalf("unexpected complexity row: %+v", c)
	}
	if c.MeanConfidence < 0.69 || c.MeanConfidence > 0.71 {
		t.Fatalf("complexity mean %v, want ~0.7", c.MeanConfidence)
	}
	if c.MinConfidence != 0.5 || c.MaxConfidence != 0.9 {
		t.Fatalf("complexity min/max: %+v", c)
	}
	if c.DegradedCount != 0 {
		t.Fatalf("complexity degraded count %d, want 0", c.DegradedCount)
	}

	m := metrics[1]
	if m.Advisor != advice.KindMotion || m.Samples != 1 || m.DegradedCount != 1 {
		t.Fatalf("unexpected motion row: %+v", m)
	}
}

func TestFunnelEventStore(t *testing.T) {
	store := setupStore(t)
	tenantID := uuid.NewString()
	ctx := ctxWithTenant(t, tenantID)

	now := time.Now().UTC()
	events := []advice.FunnelEvent{
		{ID: uuid.NewString(), TenantID: tenantID, Stage: advice.StageAwareness, Action: "advance", Value: 10, NextStage: advice.StageInterest, CreatedAt: now},
		{ID: uuid.NewString(), TenantID: tenantID, Stage: advice.StageAwareness, Action: "hesitate", Value: 2, CreatedAt: now},
		{ID: uuid.NewString(), TenantID: tenantID, Stage: advice.StageInterest, Action: "abandon", CreatedAt: now},
	}
	for i := range events {
		if err := store.RecordFunnelEvent(ctx, &events[i]); err != nil {
			t.Fatalf("RecordFunnelEvent %d: %v", i, err)
		}
	}

	summary, err := store.FunnelSummary(ctx)
	if err != nil {
		t.Fatalf("FunnelSummary: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("expected 2 stage rows, got %d: %+v", len(summary), summary)
	}

	// Funnel order: awareness before interest.
	aw := summary[0]
	if aw.Stage != advice.StageAwareness || aw.Events != 2 || aw.Advances != 1 {
		t.Fatalf("unexpected awareness row: %+v", aw)
	}
	if aw.TotalValue != 12 {
		t.Fatalf("awareness total value %v, want 12", aw.TotalValue)
	}
	in := summary[1]
	if in.Stage != advice.StageInterest || in.Events != 1 || in.Advances != 0 {
		t.Fatalf("unexpected interest row: %+v", in)
	}
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/synod-labs/synod/internal/domain"
	"github.com/synod-labs/synod/internal/domain/advice"
	"github.com/synod-labs/synod/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// defaultPageSize caps ListSessions when the caller passes no limit.
const defaultPageSize = 50

// sessionColumns is the SELECT column list for advice_sessions queries.
const sessionColumns = `id, tenant_id, context, decision, elapsed_ms, created_at`

func (s *Store) CreateSession(ctx context.Context, sess *advice.Session) error {
	contextJSON, err := json.Marshal(sess.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	decisionJSON, err := json.Marshal(sess.Decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO advice_sessions (id, tenant_id, decision_type, context, decision, elapsed_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, tenantFromCtx(ctx), string(sess.Context.Type), contextJSON, decisionJSON, sess.ElapsedMS, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*advice.Session, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM advice_sessions WHERE id = $1 AND tenant_id = $2`, sessionColumns),
		id, tenantFromCtx(ctx))

	sess, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}
	return &sess, nil
}

// ListSessions returns sessions newest first. The cursor is the created_at
// timestamp of the last session on the previous page.
func (s *Store) ListSessions(ctx context.Context, cursor string, limit int) (*database.SessionPage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	args := []any{tenantFromCtx(ctx)}
	conditions := []string{"tenant_id = $1"}
	argIdx := 2

	if cursor != "" {
		before, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, fmt.Errorf("parse cursor %q: %w", cursor, domain.ErrValidation)
		}
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, before)
		argIdx++
	}

	// Fetch limit+1 to detect hasMore.
	fetchSQL := fmt.Sprintf(`SELECT %s FROM advice_sessions WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		sessionColumns, strings.Join(conditions, " AND "), argIdx)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, fetchSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []advice.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(sessions) > limit
	if hasMore {
		sessions = sessions[:limit]
	}

	var nextCursor string
	if hasMore && len(sessions) > 0 {
		nextCursor = sessions[len(sessions)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	return &database.SessionPage{
		Sessions: orEmpty(sessions),
		Cursor:   nextCursor,
		HasMore:  hasMore,
	}, nil
}

func scanSession(row scannable) (advice.Session, error) {
	var sess advice.Session
	var contextJSON, decisionJSON []byte
	err := row.Scan(&sess.ID, &sess.TenantID, &contextJSON, &decisionJSON, &sess.ElapsedMS, &sess.CreatedAt)
	if err != nil {
		return sess, err
	}
	if err := json.Unmarshal(contextJSON, &sess.Context); err != nil {
		return sess, fmt.Errorf("unmarshal context: %w", err)
	}
	if err := json.Unmarshal(decisionJSON, &sess.Decision); err != nil {
		return sess, fmt.Errorf("unmarshal decision: %w", err)
	}
	return sess, nil
}

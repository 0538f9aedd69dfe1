package database

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	RoleAuthenticated = "authenticated"
	RoleServiceRole   = "service_role"
)

// validRoleName guards SET LOCAL ROLE, which cannot take a parameter.
var validRoleName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPool opens a pgx pool for RLS-scoped reads.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pool: %w", err)
	}
	return pool, nil
}

// ExecuteWithRLS runs fn in a transaction carrying the caller's role and JWT
// claims so that row-level security policies apply. service_role skips the
// role switch.
func ExecuteWithRLS[T any](
	ctx context.Context,
	pool *pgxpool.Pool,
	role string,
	claimsJSON string,
	fn func(tx pgx.Tx) (T, error),
) (T, error) {
	var zero T

	if role != RoleServiceRole && !validRoleName.MatchString(role) {
		return zero, fmt.Errorf("invalid role name: %s", role)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return zero, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if role != RoleServiceRole {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL ROLE "%s"`, role)); err != nil {
			return zero, fmt.Errorf("set role %s: %w", role, err)
		}
		if _, err := tx.Exec(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, claimsJSON); err != nil {
			return zero, fmt.Errorf("set jwt claims: %w", err)
		}
		if sub := claimSubject(claimsJSON); sub != "" {
			if _, err := tx.Exec(ctx, `SELECT set_config('request.jwt.claim.sub', $1, true)`, sub); err != nil {
				return zero, fmt.Errorf("set jwt subject: %w", err)
			}
		}
	}

	result, err := fn(tx)
	if err != nil {
		return zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

func claimSubject(claimsJSON string) string {
	var c struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal([]byte(claimsJSON), &c); err != nil {
		return ""
	}
	return c.Sub
}

// RLSEnrollmentReader lists enrollments as the signed-in user, letting the
// enrollments_read policy filter rows.
type RLSEnrollmentReader struct {
	pool *pgxpool.Pool
}

func NewRLSEnrollmentReader(pool *pgxpool.Pool) *RLSEnrollmentReader {
	return &RLSEnrollmentReader{pool: pool}
}

const listEnrollmentsSQL = `
SELECT e.id, e.course_id, c.title, c.slug, e.account_id, e.status, e.progress, e.enrolled_at, e.completed_at
FROM course_enrollments e
JOIN courses c ON c.id = e.course_id
WHERE e.user_id = $1 AND e.status = 'active'
ORDER BY e.enrolled_at DESC`

func (r *RLSEnrollmentReader) ListForUser(ctx context.Context, userID uuid.UUID, claimsJSON string) ([]model.EnrollmentSummary, error) {
	if claimsJSON == "" {
		claimsJSON = fmt.Sprintf(`{"sub":%q,"role":%q}`, userID.String(), RoleAuthenticated)
	}
	return ExecuteWithRLS(ctx, r.pool, RoleAuthenticated, claimsJSON, func(tx pgx.Tx) ([]model.EnrollmentSummary, error) {
		rows, err := tx.Query(ctx, listEnrollmentsSQL, userID)
		if err != nil {
			return nil, fmt.Errorf("query enrollments: %w", err)
		}
		defer rows.Close()

		out := []model.EnrollmentSummary{}
		for rows.Next() {
			var s model.EnrollmentSummary
			var status string
			if err := rows.Scan(&s.ID, &s.CourseID, &s.CourseTitle, &s.CourseSlug, &s.AccountID,
				&status, &s.Progress, &s.EnrolledAt, &s.CompletedAt); err != nil {
				return nil, fmt.Errorf("scan enrollment: %w", err)
			}
			s.Status = model.EnrollmentStatus(status)
			out = append(out, s)
		}
		return out, rows.Err()
	})
}

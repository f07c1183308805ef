package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"planforge/internal/domain"
	"planforge/internal/infra"
	"planforge/internal/sqlinline"
)

const sqliteTimeLayout = time.RFC3339Nano

// PlanRepositorySQLite implements domain.PlanRepository on an embedded
// SQLite database.
type PlanRepositorySQLite struct {
	sql *infra.SQLiteRunner
	now func() time.Time
}

func NewPlanRepositorySQLite(runner *infra.SQLiteRunner) *PlanRepositorySQLite {
	return &PlanRepositorySQLite{sql: runner, now: time.Now}
}

func (r *PlanRepositorySQLite) Create(ctx context.Context, plan *domain.PersistedPlan) error {
	planJSON, err := json.Marshal(plan.GeneratedPlan)
	if err != nil {
		return fmt.Errorf("%w: encode plan: %v", domain.ErrPersistence, err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QSQLiteInsertPlan,
		plan.ID,
		string(plan.BusinessInfo),
		string(planJSON),
		formatTime(plan.CreatedAt),
		formatTime(plan.UpdatedAt),
		nullString(plan.ShareToken),
		plan.Editable,
	)
	if err != nil {
		if infra.IsSQLiteUniqueViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
		return fmt.Errorf("%w: insert plan: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *PlanRepositorySQLite) GetByID(ctx context.Context, id string) (*domain.PersistedPlan, error) {
	return scanSQLitePlan(r.sql.QueryRow(ctx, sqlinline.QSQLiteSelectPlanByID, id))
}

func (r *PlanRepositorySQLite) GetByShareToken(ctx context.Context, token string) (*domain.PersistedPlan, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	return scanSQLitePlan(r.sql.QueryRow(ctx, sqlinline.QSQLiteSelectPlanByShareToken, token))
}

func (r *PlanRepositorySQLite) ReplacePlan(ctx context.Context, id string, plan domain.FinalPlan, expectedUpdatedAt *time.Time) (*domain.PersistedPlan, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("%w: encode plan: %v", domain.ErrPersistence, err)
	}
	var updated *domain.PersistedPlan
	err = r.sql.InTx(ctx, func(tx *infra.SQLiteRunner) error {
		var raw string
		if err := tx.QueryRow(ctx, sqlinline.QSQLiteSelectPlanUpdatedAt, id).Scan(&raw); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("%w: read plan: %v", domain.ErrPersistence, err)
		}
		prev, err := parseTime(raw)
		if err != nil {
			return err
		}
		if expectedUpdatedAt != nil && !expectedUpdatedAt.Equal(prev) {
			return fmt.Errorf("%w: plan %s was modified", domain.ErrConflict, id)
		}
		next := domain.NextUpdatedAt(prev, r.now())
		if _, err := tx.Exec(ctx, sqlinline.QSQLiteReplacePlan, string(planJSON), formatTime(next), id); err != nil {
			return fmt.Errorf("%w: replace plan: %v", domain.ErrPersistence, err)
		}
		updated, err = scanSQLitePlan(tx.QueryRow(ctx, sqlinline.QSQLiteSelectPlanByID, id))
		return err
	})
	if err != nil {
		// Begin, commit and decode failures carry no domain kind yet.
		if domain.KindOf(err) == domain.KindInternal {
			return nil, fmt.Errorf("%w: replace plan: %v", domain.ErrPersistence, err)
		}
		return nil, err
	}
	return updated, nil
}

func (r *PlanRepositorySQLite) SetShareToken(ctx context.Context, id, token string) error {
	res, err := r.sql.Exec(ctx, sqlinline.QSQLiteSetPlanShareToken, token, id)
	if err != nil {
		if infra.IsSQLiteUniqueViolation(err) {
			return fmt.Errorf("%w: share token already in use", domain.ErrConflict)
		}
		return fmt.Errorf("%w: set share token: %v", domain.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: set share token: %v", domain.ErrPersistence, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSQLitePlan(row infra.RowScanner) (*domain.PersistedPlan, error) {
	var (
		p          domain.PersistedPlan
		business   string
		planJSON   string
		createdAt  string
		updatedAt  string
		shareToken sql.NullString
	)
	if err := row.Scan(&p.ID, &business, &planJSON, &createdAt, &updatedAt, &shareToken, &p.Editable); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan plan: %v", domain.ErrPersistence, err)
	}
	if err := json.Unmarshal([]byte(planJSON), &p.GeneratedPlan); err != nil {
		return nil, fmt.Errorf("%w: decode plan: %v", domain.ErrPersistence, err)
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	p.BusinessInfo = json.RawMessage(business)
	if shareToken.Valid {
		token := shareToken.String
		p.ShareToken = &token
	}
	return &p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse timestamp %q: %v", domain.ErrPersistence, raw, err)
	}
	return t.UTC(), nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

var _ domain.PlanRepository = (*PlanRepositorySQLite)(nil)

package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"planforge/internal/domain"
	"planforge/internal/infra"
	"planforge/internal/sqlinline"
)

// PlanRepositoryPG implements domain.PlanRepository on Postgres.
type PlanRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewPlanRepositoryPG(sql infra.SQLExecutor) *PlanRepositoryPG {
	return &PlanRepositoryPG{sql: sql}
}

func (r *PlanRepositoryPG) Create(ctx context.Context, plan *domain.PersistedPlan) error {
	planJSON, err := json.Marshal(plan.GeneratedPlan)
	if err != nil {
		return fmt.Errorf("%w: encode plan: %v", domain.ErrPersistence, err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertPlan,
		plan.ID,
		[]byte(plan.BusinessInfo),
		planJSON,
		plan.CreatedAt,
		plan.UpdatedAt,
		plan.ShareToken,
		plan.Editable,
	)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
		return fmt.Errorf("%w: insert plan: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *PlanRepositoryPG) GetByID(ctx context.Context, id string) (*domain.PersistedPlan, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	return scanPlan(r.sql.QueryRow(ctx, sqlinline.QSelectPlanByID, id))
}

func (r *PlanRepositoryPG) GetByShareToken(ctx context.Context, token string) (*domain.PersistedPlan, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	return scanPlan(r.sql.QueryRow(ctx, sqlinline.QSelectPlanByShareToken, token))
}

func (r *PlanRepositoryPG) ReplacePlan(ctx context.Context, id string, plan domain.FinalPlan, expectedUpdatedAt *time.Time) (*domain.PersistedPlan, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("%w: encode plan: %v", domain.ErrPersistence, err)
	}
	var expected any
	if expectedUpdatedAt != nil {
		expected = expectedUpdatedAt.UTC()
	}
	updated, err := scanPlan(r.sql.QueryRow(ctx, sqlinline.QReplacePlan, id, planJSON, expected))
	if err == nil {
		return updated, nil
	}
	if !isNotFound(err) || expectedUpdatedAt == nil {
		return nil, err
	}
	// The guarded update matched nothing: either the plan is gone or it moved on.
	exists, existsErr := r.exists(ctx, id)
	if existsErr != nil {
		return nil, existsErr
	}
	if exists {
		return nil, fmt.Errorf("%w: plan %s was modified since %s", domain.ErrConflict, id, expectedUpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	return nil, domain.ErrNotFound
}

func (r *PlanRepositoryPG) SetShareToken(ctx context.Context, id, token string) error {
	if !validID(id) {
		return domain.ErrNotFound
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QSetPlanShareToken, id, token)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return fmt.Errorf("%w: share token already in use", domain.ErrConflict)
		}
		return fmt.Errorf("%w: set share token: %v", domain.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PlanRepositoryPG) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QPlanExists, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: check plan: %v", domain.ErrPersistence, err)
	}
	return exists, nil
}

func scanPlan(row infra.RowScanner) (*domain.PersistedPlan, error) {
	var (
		p          domain.PersistedPlan
		business   []byte
		planJSON   []byte
		shareToken *string
	)
	if err := row.Scan(&p.ID, &business, &planJSON, &p.CreatedAt, &p.UpdatedAt, &shareToken, &p.Editable); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan plan: %v", domain.ErrPersistence, err)
	}
	if err := json.Unmarshal(planJSON, &p.GeneratedPlan); err != nil {
		return nil, fmt.Errorf("%w: decode plan: %v", domain.ErrPersistence, err)
	}
	p.BusinessInfo = json.RawMessage(business)
	p.ShareToken = shareToken
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

var _ domain.PlanRepository = (*PlanRepositoryPG)(nil)

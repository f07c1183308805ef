package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"planforge/internal/domain"
)

// PlanRepositoryMemory keeps plans in process memory. It backs tests and the
// memory store driver.
type PlanRepositoryMemory struct {
	mu      sync.RWMutex
	plans   map[string]*domain.PersistedPlan
	byToken map[string]string
	now     func() time.Time
}

func NewPlanRepositoryMemory() *PlanRepositoryMemory {
	return &PlanRepositoryMemory{
		plans:   map[string]*domain.PersistedPlan{},
		byToken: map[string]string{},
		now:     time.Now,
	}
}

// Len returns the number of stored plans.
func (r *PlanRepositoryMemory) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plans)
}

func (r *PlanRepositoryMemory) Create(ctx context.Context, plan *domain.PersistedPlan) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plans[plan.ID]; exists {
		return fmt.Errorf("%w: plan %s already exists", domain.ErrConflict, plan.ID)
	}
	if plan.ShareToken != nil {
		if _, taken := r.byToken[*plan.ShareToken]; taken {
			return fmt.Errorf("%w: share token already in use", domain.ErrConflict)
		}
		r.byToken[*plan.ShareToken] = plan.ID
	}
	r.plans[plan.ID] = clonePlan(plan)
	return nil
}

func (r *PlanRepositoryMemory) GetByID(ctx context.Context, id string) (*domain.PersistedPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePlan(p), nil
}

func (r *PlanRepositoryMemory) GetByShareToken(ctx context.Context, token string) (*domain.PersistedPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePlan(r.plans[id]), nil
}

func (r *PlanRepositoryMemory) ReplacePlan(ctx context.Context, id string, plan domain.FinalPlan, expectedUpdatedAt *time.Time) (*domain.PersistedPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if expectedUpdatedAt != nil && !expectedUpdatedAt.Equal(p.UpdatedAt) {
		return nil, fmt.Errorf("%w: plan %s was modified", domain.ErrConflict, id)
	}
	next := clonePlan(p)
	next.GeneratedPlan = cloneFinalPlan(plan)
	next.UpdatedAt = domain.NextUpdatedAt(p.UpdatedAt, r.now())
	r.plans[id] = next
	return clonePlan(next), nil
}

func (r *PlanRepositoryMemory) SetShareToken(ctx context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return domain.ErrNotFound
	}
	if owner, taken := r.byToken[token]; taken && owner != id {
		return fmt.Errorf("%w: share token already in use", domain.ErrConflict)
	}
	if p.ShareToken != nil {
		delete(r.byToken, *p.ShareToken)
	}
	t := token
	p.ShareToken = &t
	r.byToken[token] = id
	return nil
}

var _ domain.PlanRepository = (*PlanRepositoryMemory)(nil)

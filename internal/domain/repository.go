package domain

import (
	"context"
	"time"
)

// PlanRepository persists generated plans. Implementations report unknown ids
// and tokens with ErrNotFound and any other storage failure wrapped in
// ErrPersistence, leaving the previously stored value untouched.
type PlanRepository interface {
	Create(ctx context.Context, plan *PersistedPlan) error
	GetByID(ctx context.Context, id string) (*PersistedPlan, error)
	// ReplacePlan swaps generatedPlan in one step and advances updatedAt. When
	// expectedUpdatedAt is non-nil and differs from the stored value the call
	// fails with ErrConflict.
	ReplacePlan(ctx context.Context, id string, plan FinalPlan, expectedUpdatedAt *time.Time) (*PersistedPlan, error)
	// SetShareToken associates token with id, overwriting any previous token.
	// A token already held by another plan fails with ErrConflict.
	SetShareToken(ctx context.Context, id, token string) error
	GetByShareToken(ctx context.Context, token string) (*PersistedPlan, error)
}

// CredentialRepository stores API keys for generative providers.
type CredentialRepository interface {
	Token(ctx context.Context, provider string) (string, error)
	SetToken(ctx context.Context, provider, token string) error
}

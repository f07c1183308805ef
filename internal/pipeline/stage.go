// Package pipeline runs the three generation stages that turn a
// BusinessInfo into a FinalPlan.
package pipeline

import (
	"context"

	"planforge/internal/domain"
	"planforge/internal/reconcile"
)

// Stage is one step of the pipeline. Each stage's output is the next
// stage's only input.
type Stage[In, Out any] interface {
	Name() string
	Run(ctx context.Context, in In) (Out, error)
}

// Draft is a loosely shaped plan document as returned by the model.
type Draft = map[string]any

// Stage names, also used as the "stage" field on StageError and logs.
const (
	StageSynthesis = "synthesis"
	StageProofread = "proofread"
	StageFinalize  = "finalize"
)

type StageOneResult struct {
	Business domain.BusinessInfo
	Draft    Draft
}

// StageTwoResult pairs the cleaned draft with post drafts that have not been
// merged into it.
type StageTwoResult struct {
	Business   domain.BusinessInfo
	Draft      Draft
	PostDrafts []domain.PostDraft
}

type StageThreeResult struct {
	Plan      domain.FinalPlan
	Checklist reconcile.Checklist
	// Orphans is only set under the report orphan policy.
	Orphans []domain.PostDraft
	// ServiceFlags are the checklist items the model reported as unmet.
	ServiceFlags []string
}

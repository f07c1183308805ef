package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"planforge/internal/domain"
	"planforge/internal/providers/llm"
	"planforge/internal/reconcile"
)

var errNotObject = errors.New("response is not a json object")

// generateDocument performs one generative call and decodes the reply as a
// JSON object. Every failure is an upstream failure of stage.
func generateDocument(ctx context.Context, gen llm.Generator, stage string, req llm.Request) (Draft, error) {
	req.Task = stage
	req.JSON = true
	text, err := gen.Generate(ctx, req)
	if err != nil {
		return nil, domain.NewUpstreamError(stage, err)
	}
	doc, err := llm.DecodeJSON[map[string]any](text)
	if err != nil {
		return nil, domain.NewUpstreamError(stage, fmt.Errorf("%w: %v", errNotObject, err))
	}
	if doc == nil {
		return nil, domain.NewUpstreamError(stage, errNotObject)
	}
	return doc, nil
}

// SynthesisStage asks for the initial loosely shaped draft.
type SynthesisStage struct {
	gen  llm.Generator
	book *PromptBook
}

func NewSynthesisStage(gen llm.Generator, book *PromptBook) *SynthesisStage {
	return &SynthesisStage{gen: gen, book: book}
}

func (s *SynthesisStage) Name() string { return StageSynthesis }

func (s *SynthesisStage) Run(ctx context.Context, info domain.BusinessInfo) (StageOneResult, error) {
	doc, err := generateDocument(ctx, s.gen, StageSynthesis, llm.Request{
		System:      s.book.System,
		Prompt:      s.book.SynthesisPrompt(info),
		Temperature: 0.7,
	})
	if err != nil {
		return StageOneResult{}, err
	}
	return StageOneResult{Business: info, Draft: doc}, nil
}

// ProofreadStage tightens the draft and writes social post drafts, kept in a
// separate list.
type ProofreadStage struct {
	gen  llm.Generator
	book *PromptBook
}

func NewProofreadStage(gen llm.Generator, book *PromptBook) *ProofreadStage {
	return &ProofreadStage{gen: gen, book: book}
}

func (s *ProofreadStage) Name() string { return StageProofread }

func (s *ProofreadStage) Run(ctx context.Context, in StageOneResult) (StageTwoResult, error) {
	doc, err := generateDocument(ctx, s.gen, StageProofread, llm.Request{
		System:      s.book.System,
		Prompt:      s.book.ProofreadPrompt(in.Business, in.Draft),
		Temperature: 0.4,
	})
	if err != nil {
		return StageTwoResult{}, err
	}
	draft, ok := reconcile.FieldObject(doc, reconcile.StageTwoDraftAliases)
	if !ok {
		// The model returned the plan itself without a wrapper.
		draft = doc
	}
	var posts []domain.PostDraft
	if items, ok := reconcile.FieldList(doc, reconcile.StageTwoPostAliases); ok {
		posts = reconcile.ParsePosts(items)
	}
	return StageTwoResult{Business: in.Business, Draft: draft, PostDrafts: posts}, nil
}

// FinalizeStage reconciles the proofread draft, asks for a final pass and
// reconciles again. The reconciler, not the model, decides the final shape.
type FinalizeStage struct {
	gen        llm.Generator
	book       *PromptBook
	reconciler *reconcile.Reconciler
	logger     zerolog.Logger
}

func NewFinalizeStage(gen llm.Generator, book *PromptBook, rec *reconcile.Reconciler, logger *zerolog.Logger) *FinalizeStage {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &FinalizeStage{gen: gen, book: book, reconciler: rec, logger: l}
}

func (s *FinalizeStage) Name() string { return StageFinalize }

func (s *FinalizeStage) Run(ctx context.Context, in StageTwoResult) (StageThreeResult, error) {
	rec := s.reconcilerFor(in.Business)
	partial, err := rec.Reconcile(in.Draft, in.PostDrafts)
	if err != nil {
		return StageThreeResult{}, err
	}

	doc, err := generateDocument(ctx, s.gen, StageFinalize, llm.Request{
		System:      s.book.System,
		Prompt:      s.book.FinalizePrompt(in.Business, partial.Plan),
		Temperature: 0.2,
	})
	if err != nil {
		return StageThreeResult{}, err
	}

	var flags []string
	if items, ok := reconcile.FieldList(doc, reconcile.ChecklistFlagAliases); ok {
		for _, it := range items {
			if flag, ok := it.(string); ok && flag != "" {
				flags = append(flags, flag)
			}
		}
	}

	final, err := rec.Reconcile(doc, in.PostDrafts)
	if !final.HasPlan {
		s.logger.Warn().Str("stage", StageFinalize).Msg("finalize response carried no plan; keeping reconciled draft")
		final, err = partial, nil
	}
	if err != nil {
		return StageThreeResult{}, err
	}

	result := StageThreeResult{
		Plan:         final.Plan,
		Checklist:    reconcile.Check(final.Plan, final.FilledFields, in.Business.TimeCommitment),
		Orphans:      final.Orphans,
		ServiceFlags: flags,
	}
	s.logOutcome(final, result)
	return result, nil
}

// reconcilerFor fills missing time estimates from the founder's own commitment.
func (s *FinalizeStage) reconcilerFor(info domain.BusinessInfo) *reconcile.Reconciler {
	defaults := reconcile.DefaultValues()
	if info.TimeCommitment != "" {
		defaults.TimeEstimate = "Within " + info.TimeCommitment
	}
	return reconcile.New(defaults, s.reconciler.Policy())
}

func (s *FinalizeStage) logOutcome(final reconcile.Result, result StageThreeResult) {
	if final.OrphanCount > 0 {
		switch s.reconciler.Policy() {
		case reconcile.OrphanReport:
			days := make([]string, 0, len(final.Orphans))
			for _, p := range final.Orphans {
				days = append(days, p.Day)
			}
			s.logger.Warn().Strs("days", days).Msg("post drafts reference days with no task")
		default:
			s.logger.Debug().Int("count", final.OrphanCount).Msg("dropped orphan post drafts")
		}
	}
	if unmet := result.Checklist.Unmet(); len(unmet) > 0 || len(result.ServiceFlags) > 0 {
		s.logger.Warn().
			Str("stage", StageFinalize).
			Strs("unmet", unmet).
			Strs("service_flags", result.ServiceFlags).
			Msg("plan checklist not fully met")
	}
}

// Build wires the three stages around one generator.
func Build(gen llm.Generator, book *PromptBook, rec *reconcile.Reconciler, logger *zerolog.Logger) *Pipeline {
	return New(
		NewSynthesisStage(gen, book),
		NewProofreadStage(gen, book),
		NewFinalizeStage(gen, book, rec, logger),
		logger,
	)
}

var (
	_ Stage[domain.BusinessInfo, StageOneResult] = (*SynthesisStage)(nil)
	_ Stage[StageOneResult, StageTwoResult]      = (*ProofreadStage)(nil)
	_ Stage[StageTwoResult, StageThreeResult]    = (*FinalizeStage)(nil)
)

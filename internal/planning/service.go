// Package planning ties the generation pipeline to plan storage and sharing.
package planning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"planforge/internal/domain"
	"planforge/internal/pipeline"
	"planforge/internal/reconcile"
	"planforge/internal/share"
)

const (
	stageEdit = "edit"

	// shareAttempts bounds token regeneration when a fresh token collides.
	shareAttempts = 3
	eventBuffer   = 5
)

// Runner produces the events of one pipeline run.
type Runner interface {
	Stream(ctx context.Context, info domain.BusinessInfo) <-chan pipeline.Update
}

// TokenSource issues share tokens.
type TokenSource interface {
	New() (string, error)
}

// Extractor turns an uploaded document into idea text.
type Extractor interface {
	Text(ctx context.Context, contentType string, body io.Reader) (string, error)
}

type Options struct {
	Pipeline      Runner
	Repo          domain.PlanRepository
	Reconciler    *reconcile.Reconciler
	Tokens        TokenSource
	Extractor     Extractor
	ShareBasePath string
	Logger        *zerolog.Logger
}

// Service implements the plan operations exposed over HTTP and the CLI.
type Service struct {
	pipeline   Runner
	repo       domain.PlanRepository
	reconciler *reconcile.Reconciler
	tokens     TokenSource
	extractor  Extractor
	sharePath  string
	logger     zerolog.Logger
	now        func() time.Time
	newID      func() string
}

func NewService(opts Options) *Service {
	l := zerolog.New(io.Discard)
	if opts.Logger != nil {
		l = *opts.Logger
	}
	rec := opts.Reconciler
	if rec == nil {
		rec = reconcile.New(reconcile.DefaultValues(), reconcile.OrphanDrop)
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = share.NewTokens()
	}
	base := opts.ShareBasePath
	if base == "" {
		base = "/share"
	}
	return &Service{
		pipeline:   opts.Pipeline,
		repo:       opts.Repo,
		reconciler: rec,
		tokens:     tokens,
		extractor:  opts.Extractor,
		sharePath:  base,
		logger:     l,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Generated is the outcome of a successful run. PlanID is empty when the plan
// could not be stored.
type Generated struct {
	Plan      domain.FinalPlan
	PlanID    string
	Persisted bool
	Checklist reconcile.Checklist
}

// Event is one step of a generation run. The last event carries Generated
// or Err.
type Event struct {
	Progress  pipeline.Progress
	Generated *Generated
	Err       error
}

func (e Event) Terminal() bool { return e.Generated != nil || e.Err != nil }

// Prepare normalizes info and rejects it before any generative call.
func (s *Service) Prepare(info domain.BusinessInfo, preferredLocale string) (domain.BusinessInfo, error) {
	info.Normalize(preferredLocale)
	if err := info.Validate(); err != nil {
		return info, err
	}
	return info, nil
}

// Stream validates info and starts a run. Validation failures are returned
// directly and no event is produced.
func (s *Service) Stream(ctx context.Context, info domain.BusinessInfo, preferredLocale string) (<-chan Event, error) {
	info, err := s.Prepare(info, preferredLocale)
	if err != nil {
		return nil, err
	}
	out := make(chan Event, eventBuffer)
	go func() {
		defer close(out)
		for u := range s.pipeline.Stream(ctx, info) {
			switch {
			case u.Err != nil:
				out <- Event{Err: u.Err}
				return
			case u.Result != nil:
				gen := s.persist(ctx, info, u.Result)
				out <- Event{Generated: gen}
				return
			default:
				out <- Event{Progress: u.Progress}
			}
		}
		out <- Event{Err: domain.NewUpstreamError("pipeline", context.Canceled)}
	}()
	return out, nil
}

// Generate runs the pipeline to completion, forwarding progress to emit.
func (s *Service) Generate(ctx context.Context, info domain.BusinessInfo, preferredLocale string, emit func(pipeline.Progress)) (*Generated, error) {
	events, err := s.Stream(ctx, info, preferredLocale)
	if err != nil {
		return nil, err
	}
	for ev := range events {
		switch {
		case ev.Err != nil:
			return nil, ev.Err
		case ev.Generated != nil:
			return ev.Generated, nil
		case emit != nil:
			emit(ev.Progress)
		}
	}
	return nil, domain.NewUpstreamError("pipeline", context.Canceled)
}

// DocumentRequest carries an upload and the context fields sent with it.
type DocumentRequest struct {
	ContentType string
	Body        io.Reader
	Info        domain.BusinessInfo
}

// DocumentInfo extracts the idea text from an upload and merges it with the
// accompanying fields. The result still goes through Prepare.
func (s *Service) DocumentInfo(ctx context.Context, req DocumentRequest) (domain.BusinessInfo, error) {
	if s.extractor == nil {
		return domain.BusinessInfo{}, errors.New("document extraction is not configured")
	}
	text, err := s.extractor.Text(ctx, req.ContentType, req.Body)
	if err != nil {
		return domain.BusinessInfo{}, err
	}
	info := req.Info
	if extra := strings.TrimSpace(info.BusinessIdea); extra != "" {
		info.AdditionalContext = strings.TrimSpace(strings.Join([]string{info.AdditionalContext, extra}, "\n"))
	}
	info.BusinessIdea = text
	return info, nil
}

func (s *Service) persist(ctx context.Context, info domain.BusinessInfo, result *pipeline.StageThreeResult) *Generated {
	gen := &Generated{Plan: result.Plan, Checklist: result.Checklist}
	raw, err := json.Marshal(info)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode business info")
		return gen
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	rec := &domain.PersistedPlan{
		ID:            s.newID(),
		BusinessInfo:  raw,
		GeneratedPlan: result.Plan,
		CreatedAt:     now,
		UpdatedAt:     now,
		Editable:      true,
	}
	// The run is already complete; storage gets its own deadline even if the
	// client went away during the last stage.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.repo.Create(storeCtx, rec); err != nil {
		s.logger.Error().Err(err).Str("kind", string(domain.KindOf(err))).Msg("persist generated plan")
		return gen
	}
	s.logger.Info().Str("plan_id", rec.ID).Int("tasks", result.Plan.TaskCount()).Msg("plan stored")
	gen.PlanID = rec.ID
	gen.Persisted = true
	return gen
}

func (s *Service) Get(ctx context.Context, id string) (*domain.PersistedPlan, error) {
	return s.repo.GetByID(ctx, strings.TrimSpace(id))
}

// Edit replaces the stored plan after normalizing it. A plan that cannot be
// brought into shape is a schema failure and leaves the record untouched.
func (s *Service) Edit(ctx context.Context, id string, plan domain.FinalPlan, expectedUpdatedAt *time.Time) (*domain.PersistedPlan, error) {
	normalized, err := s.reconciler.Normalize(plan)
	if err != nil {
		return nil, asEditError(err)
	}
	if expectedUpdatedAt != nil {
		t := expectedUpdatedAt.UTC()
		expectedUpdatedAt = &t
	}
	updated, err := s.repo.ReplacePlan(ctx, strings.TrimSpace(id), normalized, expectedUpdatedAt)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("plan_id", updated.ID).Time("updated_at", updated.UpdatedAt).Msg("plan edited")
	return updated, nil
}

func asEditError(err error) error {
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		return domain.NewSchemaError(stageEdit, stageErr.Err)
	}
	return domain.NewSchemaError(stageEdit, err)
}

// Share is an issued share token and its public path.
type Share struct {
	Token string
	Path  string
}

// IssueShareToken gives the plan a fresh token, replacing any earlier one.
func (s *Service) IssueShareToken(ctx context.Context, id string) (*Share, error) {
	id = strings.TrimSpace(id)
	var lastErr error
	for attempt := 0; attempt < shareAttempts; attempt++ {
		token, err := s.tokens.New()
		if err != nil {
			return nil, err
		}
		err = s.repo.SetShareToken(ctx, id, token)
		if err == nil {
			s.logger.Info().Str("plan_id", id).Msg("share token issued")
			return &Share{Token: token, Path: share.Path(s.sharePath, token)}, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: no unique share token after %d attempts: %v", domain.ErrPersistence, shareAttempts, lastErr)
}

func (s *Service) GetShared(ctx context.Context, token string) (*domain.PersistedPlan, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrNotFound
	}
	return s.repo.GetByShareToken(ctx, token)
}

package pipeline

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"planforge/internal/domain"
)

// Progress is a stage transition reported to the caller.
type Progress string

const (
	ProgressStage1    Progress = "stage_1"
	ProgressStage2    Progress = "stage_2"
	ProgressStage3    Progress = "stage_3"
	ProgressDelivered Progress = "delivered"
)

// Update is one event of a pipeline run. Exactly one of the fields is set;
// the final update of a run carries Result or Err.
type Update struct {
	Progress Progress
	Result   *StageThreeResult
	Err      error
}

// Terminal reports whether u ends the run.
func (u Update) Terminal() bool { return u.Result != nil || u.Err != nil }

// updateBuffer fits every event of a run, so the producer never blocks on a
// slow consumer.
const updateBuffer = 5

// Pipeline runs synthesis, proofreading and finalization in sequence. It holds
// no per-request state and is safe for concurrent use.
type Pipeline struct {
	synthesis Stage[domain.BusinessInfo, StageOneResult]
	proofread Stage[StageOneResult, StageTwoResult]
	finalize  Stage[StageTwoResult, StageThreeResult]
	logger    zerolog.Logger
}

func New(
	synthesis Stage[domain.BusinessInfo, StageOneResult],
	proofread Stage[StageOneResult, StageTwoResult],
	finalize Stage[StageTwoResult, StageThreeResult],
	logger *zerolog.Logger,
) *Pipeline {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &Pipeline{synthesis: synthesis, proofread: proofread, finalize: finalize, logger: l}
}

// Stream starts a run and returns its events. The channel is closed after
// the terminal update. Cancelling ctx aborts the in-flight stage.
func (p *Pipeline) Stream(ctx context.Context, info domain.BusinessInfo) <-chan Update {
	out := make(chan Update, updateBuffer)
	go func() {
		defer close(out)
		result, err := p.execute(ctx, info, func(pr Progress) {
			out <- Update{Progress: pr}
		})
		if err != nil {
			out <- Update{Err: err}
			return
		}
		out <- Update{Result: result}
	}()
	return out
}

// Run drains Stream, forwarding progress to emit when it is non-nil.
func (p *Pipeline) Run(ctx context.Context, info domain.BusinessInfo, emit func(Progress)) (*StageThreeResult, error) {
	for u := range p.Stream(ctx, info) {
		switch {
		case u.Err != nil:
			return nil, u.Err
		case u.Result != nil:
			return u.Result, nil
		case emit != nil:
			emit(u.Progress)
		}
	}
	return nil, context.Canceled
}

func (p *Pipeline) execute(ctx context.Context, info domain.BusinessInfo, emit func(Progress)) (*StageThreeResult, error) {
	emit(ProgressStage1)
	one, err := runStage(ctx, p.logger, p.synthesis, info)
	if err != nil {
		return nil, err
	}
	emit(ProgressStage2)
	two, err := runStage(ctx, p.logger, p.proofread, one)
	if err != nil {
		return nil, err
	}
	emit(ProgressStage3)
	three, err := runStage(ctx, p.logger, p.finalize, two)
	if err != nil {
		return nil, err
	}
	emit(ProgressDelivered)
	return &three, nil
}

func runStage[In, Out any](ctx context.Context, logger zerolog.Logger, stage Stage[In, Out], in In) (Out, error) {
	if err := ctx.Err(); err != nil {
		var zero Out
		return zero, domain.NewUpstreamError(stage.Name(), err)
	}
	logger.Debug().Str("stage", stage.Name()).Msg("stage started")
	out, err := stage.Run(ctx, in)
	if err != nil {
		logger.Error().Err(err).Str("stage", stage.Name()).Msg("stage failed")
		return out, err
	}
	logger.Debug().Str("stage", stage.Name()).Msg("stage finished")
	return out, nil
}

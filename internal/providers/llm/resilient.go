package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Policy bounds each call to a generator.
type Policy struct {
	// Timeout applies to every attempt. Zero disables the bound.
	Timeout time.Duration
	// MaxAttempts counts the first call; values below 1 mean a single attempt.
	MaxAttempts int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

// Resilient decorates a Generator with a per-call timeout and bounded retries.
type Resilient struct {
	next   Generator
	policy Policy
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewResilient(next Generator, policy Policy, logger *zerolog.Logger) *Resilient {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Resilient{next: next, policy: policy, logger: l, sleep: sleepContext}
}

func (r *Resilient) Name() string { return r.next.Name() }

func (r *Resilient) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.policy.Backoff*time.Duration(attempt-1)); err != nil {
				return "", err
			}
		}
		text, err := r.attempt(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.logger.Warn().
			Err(err).
			Str("task", req.Task).
			Str("provider", r.next.Name()).
			Int("attempt", attempt).
			Int("max_attempts", r.policy.MaxAttempts).
			Msg("llm: generation attempt failed")
	}
	return "", lastErr
}

func (r *Resilient) attempt(ctx context.Context, req Request) (string, error) {
	if r.policy.Timeout <= 0 {
		return r.next.Generate(ctx, req)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	defer cancel()
	text, err := r.next.Generate(callCtx, req)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", fmt.Errorf("llm: call exceeded %s: %w", r.policy.Timeout, err)
	}
	return text, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Generator = (*Resilient)(nil)

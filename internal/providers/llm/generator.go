package llm

import (
	"context"
	"errors"
)

const (
	geminiProviderName = "gemini"
	openAIProviderName = "openai"
)

var (
	// ErrEmptyResponse is returned when the provider answered without any text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrMissingAPIKey is returned by constructors when no key is configured.
	ErrMissingAPIKey = errors.New("llm: api key is required")
)

// Request is one prompt sent to a generative provider.
type Request struct {
	// Task names the calling stage; it is used for logging only.
	Task        string
	System      string
	Prompt      string
	JSON        bool
	Temperature float64
}

// Generator turns a prompt into text. Implementations must honor ctx and
// return an error rather than an empty string.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func (f GeneratorFunc) Name() string { return "func" }

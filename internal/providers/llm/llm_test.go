package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestGeminiGenerateSendsJSONRequest(t *testing.T) {
	var captured geminiRequest
	var path, key string
	gen, err := NewGeminiGenerator(GeminiOptions{
		APIKey: "secret",
		Model:  "gemini-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			path = r.URL.Path
			key = r.Header.Get("x-goog-api-key")
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"{\"ok\":"},{"text":"true}"}]}}]}`), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewGeminiGenerator returned error: %v", err)
	}
	text, err := gen.Generate(context.Background(), Request{System: "sys", Prompt: "hello", JSON: true})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if text != `{"ok":true}` {
		t.Fatalf("text = %q", text)
	}
	if path != "/v1beta/models/gemini-test:generateContent" {
		t.Fatalf("path = %q", path)
	}
	if key != "secret" {
		t.Fatalf("api key header = %q", key)
	}
	if captured.GenerationConfig == nil || captured.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("generation config = %+v", captured.GenerationConfig)
	}
	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "sys" {
		t.Fatalf("system instruction = %+v", captured.SystemInstruction)
	}
	if gen.Name() != "gemini:gemini-test" {
		t.Fatalf("Name() = %q", gen.Name())
	}
}

func TestGeminiGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		isEmpty bool
	}{
		{name: "status", status: http.StatusTooManyRequests, body: `{"error":{"code":429,"message":"quota"}}`, wantErr: "gemini status 429: quota"},
		{name: "empty", status: http.StatusOK, body: `{"candidates":[]}`, isEmpty: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewGeminiGenerator(GeminiOptions{
				APIKey: "k",
				HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
					return jsonResponse(tt.status, tt.body), nil
				})},
			})
			if err != nil {
				t.Fatalf("NewGeminiGenerator returned error: %v", err)
			}
			_, err = gen.Generate(context.Background(), Request{Prompt: "p"})
			if err == nil {
				t.Fatalf("Generate returned nil error")
			}
			if tt.isEmpty && !errors.Is(err, ErrEmptyResponse) {
				t.Fatalf("err = %v, want ErrEmptyResponse", err)
			}
			if tt.wantErr != "" && err.Error() != tt.wantErr {
				t.Fatalf("err = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewGeneratorsRequireKey(t *testing.T) {
	if _, err := NewGeminiGenerator(GeminiOptions{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("gemini err = %v", err)
	}
	if _, err := NewOpenAIGenerator(OpenAIOptions{APIKey: "  "}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("openai err = %v", err)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var captured openAIChatRequest
	var auth, org string
	gen, err := NewOpenAIGenerator(OpenAIOptions{
		APIKey:       "sk-test",
		Model:        "gpt4o",
		Organization: "org-1",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			auth = r.Header.Get("Authorization")
			org = r.Header.Get("OpenAI-Organization")
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":" {\"a\":1} "}}]}`), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator returned error: %v", err)
	}
	text, err := gen.Generate(context.Background(), Request{System: "sys", Prompt: "p", JSON: true})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if text != `{"a":1}` {
		t.Fatalf("text = %q", text)
	}
	if auth != "Bearer sk-test" || org != "org-1" {
		t.Fatalf("headers auth=%q org=%q", auth, org)
	}
	if captured.Model != "gpt-4o" {
		t.Fatalf("model = %q, want gpt-4o", captured.Model)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", captured.Messages)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Fatalf("response format = %+v", captured.ResponseFormat)
	}
}

func TestOpenAIStatusError(t *testing.T) {
	gen, err := NewOpenAIGenerator(OpenAIOptions{
		APIKey: "k",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator returned error: %v", err)
	}
	if _, err := gen.Generate(context.Background(), Request{Prompt: "p"}); err == nil || err.Error() != "openai status 401: bad key" {
		t.Fatalf("err = %v", err)
	}
}

func TestNormalizeOpenAIModel(t *testing.T) {
	tests := []struct {
		in, want, reason string
	}{
		{in: "", want: "gpt-4o-mini"},
		{in: "GPT-4o", want: "gpt-4o"},
		{in: "gpt4omini", want: "gpt-4o-mini", reason: "alias"},
		{in: "davinci", want: "gpt-4o-mini", reason: "defaulted"},
	}
	for _, tt := range tests {
		got, reason := normalizeOpenAIModel(tt.in)
		if got != tt.want || reason != tt.reason {
			t.Fatalf("normalizeOpenAIModel(%q) = %q, %q; want %q, %q", tt.in, got, reason, tt.want, tt.reason)
		}
	}
}

func TestResilientRetriesWithBackoff(t *testing.T) {
	attempts := 0
	gen := GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	r := NewResilient(gen, Policy{MaxAttempts: 3, Backoff: 10 * time.Millisecond}, nil)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	text, err := r.Generate(context.Background(), Request{Task: "synthesis"})
	if err != nil || text != "ok" {
		t.Fatalf("Generate = %q, %v", text, err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(slept) != 2 || slept[0] != 10*time.Millisecond || slept[1] != 20*time.Millisecond {
		t.Fatalf("backoff = %v", slept)
	}
}

func TestResilientTimeout(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := NewResilient(gen, Policy{Timeout: 5 * time.Millisecond}, nil)
	_, err := r.Generate(context.Background(), Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestResilientStopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	gen := GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		attempts++
		cancel()
		return "", errors.New("interrupted")
	})
	r := NewResilient(gen, Policy{MaxAttempts: 5}, nil)
	if _, err := r.Generate(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestDecodeJSON(t *testing.T) {
	doc, err := DecodeJSON[map[string]any]("Here you go:\n```json\n{\"day\": 9}\n```")
	if err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if n, ok := doc["day"].(json.Number); !ok || n.String() != "9" {
		t.Fatalf("day = %#v, want json.Number 9", doc["day"])
	}
	if _, err := DecodeJSON[map[string]any]("no json here"); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("err = %v, want ErrNoJSON", err)
	}
}

package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"planforge/internal/domain"
	"planforge/internal/infra"
	"planforge/internal/providers/llm"
	"planforge/internal/reconcile"
)

func testConfig(t *testing.T) *infra.Config {
	t.Helper()
	return &infra.Config{
		StoreDriver:      infra.StoreMemory,
		LLMProvider:      "gemini",
		GeminiAPIKey:     "test-key",
		LLMMaxAttempts:   1,
		OrphanPostPolicy: string(reconcile.OrphanDrop),
		DocumentMaxBytes: 1 << 20,
		ShareBasePath:    "/share",
	}
}

type fakeCredentials struct{ tokens map[string]string }

func (f fakeCredentials) Token(ctx context.Context, provider string) (string, error) {
	return f.tokens[provider], nil
}

func (f fakeCredentials) SetToken(ctx context.Context, provider, token string) error {
	f.tokens[provider] = token
	return nil
}

func TestOpenStoresMemory(t *testing.T) {
	stores, err := OpenStores(context.Background(), testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenStores returned error: %v", err)
	}
	defer stores.Close()
	if stores.Plans == nil || stores.Credentials != nil {
		t.Fatalf("stores = %+v", stores)
	}
	if _, err := stores.Plans.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOpenStoresSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = infra.StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "data", "plans.db")
	stores, err := OpenStores(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenStores returned error: %v", err)
	}
	defer stores.Close()
	if _, err := os.Stat(cfg.SQLitePath); err != nil {
		t.Fatalf("sqlite file not created: %v", err)
	}
}

func TestNewGeneratorKeyResolution(t *testing.T) {
	cfg := testConfig(t)
	cfg.GeminiAPIKey = ""
	if _, err := NewGenerator(context.Background(), cfg, nil, zerolog.Nop()); !errors.Is(err, llm.ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}

	creds := fakeCredentials{tokens: map[string]string{"gemini": "stored-key"}}
	gen, err := NewGenerator(context.Background(), cfg, creds, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}
	if gen.Name() != "gemini:gemini-2.5-flash" {
		t.Fatalf("Name() = %q", gen.Name())
	}

	cfg.LLMProvider = "openai"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIModel = "gpt4o"
	gen, err = NewGenerator(context.Background(), cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}
	if gen.Name() != "openai:gpt-4o" {
		t.Fatalf("Name() = %q", gen.Name())
	}
}

func TestPromptBookFromFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.PromptBookPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := PromptBook(cfg); err == nil {
		t.Fatal("expected error for a missing prompt book")
	}
	cfg.PromptBookPath = ""
	if _, err := PromptBook(cfg); err != nil {
		t.Fatalf("default prompt book: %v", err)
	}
}

func TestNewPlanning(t *testing.T) {
	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "", errors.New("not called")
	})
	stores, _ := OpenStores(context.Background(), testConfig(t), zerolog.Nop())
	svc, err := NewPlanning(testConfig(t), gen, stores.Plans, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPlanning returned error: %v", err)
	}
	_, err = svc.Generate(context.Background(), domain.BusinessInfo{BusinessIdea: "short"}, "", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"planforge/internal/adapter/repo"
	"planforge/internal/domain"
	"planforge/internal/extract"
	"planforge/internal/http/handlers"
	"planforge/internal/pipeline"
	"planforge/internal/pipeline/pipelinetest"
	"planforge/internal/planning"
	"planforge/internal/providers/llm"
	"planforge/internal/reconcile"
)

const coffeeBody = `{
  "businessIdea": "A subscription box for artisanal coffee beans sourced from small farms",
  "industry": "E-commerce",
  "targetMarket": "Coffee enthusiasts aged 25-40",
  "timeCommitment": "10 hours/week"
}`

type testEnv struct {
	server *httptest.Server
	gen    *pipelinetest.Scripted
	store  *repo.PlanRepositoryMemory
}

func newEnv(t *testing.T, gen *pipelinetest.Scripted) *testEnv {
	t.Helper()
	return newEnvWith(t, gen, gen, 0)
}

// newEnvWith serves a pipeline driven by model. A positive writeTimeout is
// set on the server before it starts.
func newEnvWith(t *testing.T, gen *pipelinetest.Scripted, model llm.Generator, writeTimeout time.Duration) *testEnv {
	t.Helper()
	book, err := pipeline.DefaultPromptBook()
	if err != nil {
		t.Fatalf("DefaultPromptBook returned error: %v", err)
	}
	rec := reconcile.New(reconcile.DefaultValues(), reconcile.OrphanDrop)
	store := repo.NewPlanRepositoryMemory()
	svc := planning.NewService(planning.Options{
		Pipeline:   pipeline.Build(model, book, rec, nil),
		Repo:       store,
		Reconciler: rec,
		Extractor:  extract.New(extract.Options{MaxBytes: 1 << 16}),
	})
	app := handlers.NewApp(svc, zerolog.Nop(), 20*time.Millisecond, 1<<16)
	srv := httptest.NewUnstartedServer(NewRouter(app, Options{Logger: zerolog.Nop(), RateLimitPerMin: 100}))
	if writeTimeout > 0 {
		srv.Config.WriteTimeout = writeTimeout
	}
	srv.Start()
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, gen: gen, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body []byte) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s %s response: %v", method, path, err)
	}
	return resp, payload
}

func TestHealthAndOpenAPI(t *testing.T) {
	env := newEnv(t, pipelinetest.Coffee())
	resp, payload := env.do(t, http.MethodGet, "/v1/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("healthz = %d %v", resp.StatusCode, payload)
	}
	resp, payload = env.do(t, http.MethodGet, "/v1/openapi.json", "", nil)
	if resp.StatusCode != http.StatusOK || payload["openapi"] == nil {
		t.Fatalf("openapi = %d", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("openapi response has no ETag")
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/v1/openapi.json", nil)
	req.Header.Set("If-None-Match", etag)
	cached, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET: %v", err)
	}
	cached.Body.Close()
	if cached.StatusCode != http.StatusNotModified {
		t.Fatalf("conditional openapi = %d, want 304", cached.StatusCode)
	}

	docs, err := http.Get(env.server.URL + "/v1/docs")
	if err != nil {
		t.Fatalf("GET docs: %v", err)
	}
	page, _ := io.ReadAll(docs.Body)
	docs.Body.Close()
	if !strings.Contains(string(page), `spec-url="/v1/openapi.json"`) {
		t.Fatalf("docs page does not point at the document: %s", page)
	}
}

func TestGenerateOutlivesServerWriteTimeout(t *testing.T) {
	coffee := pipelinetest.Coffee()
	slow := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (string, error) {
		select {
		case <-time.After(150 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return coffee.Generate(ctx, req)
	})
	env := newEnvWith(t, coffee, slow, 200*time.Millisecond)

	resp, payload := env.do(t, http.MethodPost, "/v1/plans/generate", "application/json", []byte(coffeeBody))
	if resp.StatusCode != http.StatusOK || payload["persisted"] != true {
		t.Fatalf("generate = %d %v", resp.StatusCode, payload)
	}
	planID, _ := payload["planId"].(string)
	if _, err := env.store.GetByID(context.Background(), planID); err != nil {
		t.Fatalf("stored plan %q: %v", planID, err)
	}
	if got := len(coffee.Tasks()); got != 3 {
		t.Fatalf("model calls = %d, want 3", got)
	}
}

func TestPlanLifecycle(t *testing.T) {
	env := newEnv(t, pipelinetest.Coffee())

	resp, payload := env.do(t, http.MethodPost, "/v1/plans/generate", "application/json", []byte(coffeeBody))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate status = %d: %v", resp.StatusCode, payload)
	}
	if payload["success"] != true || payload["persisted"] != true {
		t.Fatalf("generate payload = %v", payload)
	}
	planID, _ := payload["planId"].(string)
	if planID == "" {
		t.Fatal("missing planId")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}

	resp, payload = env.do(t, http.MethodGet, "/v1/plans/"+planID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	stored := payload["plan"].(map[string]any)
	updatedAt := stored["updatedAt"].(string)
	generated := stored["generatedPlan"].(map[string]any)
	generated["overview"] = "Edited overview. Reach 30 subscribers in 30 days."

	edit, _ := json.Marshal(map[string]any{"generatedPlan": generated, "expectedUpdatedAt": updatedAt})
	resp, payload = env.do(t, http.MethodPut, "/v1/plans/"+planID, "application/json", edit)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit status = %d: %v", resp.StatusCode, payload)
	}
	newUpdatedAt := payload["plan"].(map[string]any)["updatedAt"].(string)
	before, _ := time.Parse(time.RFC3339Nano, updatedAt)
	after, _ := time.Parse(time.RFC3339Nano, newUpdatedAt)
	if !after.After(before) {
		t.Fatalf("updatedAt did not advance: %s -> %s", updatedAt, newUpdatedAt)
	}

	resp, payload = env.do(t, http.MethodPut, "/v1/plans/"+planID, "application/json", edit)
	if resp.StatusCode != http.StatusConflict || payload["kind"] != string(domain.KindConflict) {
		t.Fatalf("stale edit = %d %v", resp.StatusCode, payload)
	}

	empty, _ := json.Marshal(map[string]any{"generatedPlan": map[string]any{"overview": "x", "weeklyPlan": []any{}}})
	resp, payload = env.do(t, http.MethodPut, "/v1/plans/"+planID, "application/json", empty)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("empty edit = %d %v", resp.StatusCode, payload)
	}

	resp, payload = env.do(t, http.MethodPut, "/v1/plans/"+planID, "application/json", []byte(`{}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing plan edit = %d %v", resp.StatusCode, payload)
	}

	resp, payload = env.do(t, http.MethodPost, "/v1/plans/"+planID+"/share", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("share status = %d", resp.StatusCode)
	}
	token := payload["token"].(string)
	if payload["sharePath"] != "/share/"+token {
		t.Fatalf("sharePath = %v", payload["sharePath"])
	}

	resp, payload = env.do(t, http.MethodGet, "/v1/share/"+token, "", nil)
	if resp.StatusCode != http.StatusOK || payload["planId"] != planID || payload["editable"] != true {
		t.Fatalf("shared = %d %v", resp.StatusCode, payload)
	}
	if payload["plan"].(map[string]any)["overview"] != "Edited overview. Reach 30 subscribers in 30 days." {
		t.Fatal("shared plan does not reflect the edit")
	}

	resp, _ = env.do(t, http.MethodPost, "/v1/plans/"+planID+"/share", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("reshare status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/v1/share/"+token, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("old token status = %d, want 404", resp.StatusCode)
	}
}

func TestNotFound(t *testing.T) {
	env := newEnv(t, pipelinetest.Coffee())
	for _, path := range []string{"/v1/plans/not-a-uuid", "/v1/plans/7d9f2c1e-6f0a-4a57-9a11-2b8f3c4d5e6f", "/v1/share/unknown"} {
		resp, payload := env.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusNotFound || payload["kind"] != string(domain.KindNotFound) {
			t.Fatalf("%s = %d %v", path, resp.StatusCode, payload)
		}
	}
}

func TestGenerateValidation(t *testing.T) {
	env := newEnv(t, pipelinetest.Coffee())
	body := `{"businessIdea":"123456789","industry":"","targetMarket":"x"}`
	resp, payload := env.do(t, http.MethodPost, "/v1/plans/generate", "application/json", []byte(body))
	if resp.StatusCode != http.StatusBadRequest || payload["kind"] != string(domain.KindValidation) {
		t.Fatalf("status = %d payload = %v", resp.StatusCode, payload)
	}
	fields := payload["fields"].(map[string]any)
	if fields["businessIdea"] == nil || fields["industry"] == nil {
		t.Fatalf("fields = %v", fields)
	}
	if len(env.gen.Calls()) != 0 {
		t.Fatal("validation failure reached the generative service")
	}

	resp, payload = env.do(t, http.MethodPost, "/v1/plans/generate", "application/json", []byte(`{not json`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d %v", resp.StatusCode, payload)
	}
}

func TestGenerateUpstreamFailureIsGeneric(t *testing.T) {
	env := newEnv(t, pipelinetest.Coffee().Fail(pipeline.StageSynthesis, errors.New("quota exceeded for key sk-123")))
	resp, payload := env.do(t, http.MethodPost, "/v1/plans/generate", "application/json", []byte(coffeeBody))
	if resp.StatusCode != http.StatusBadGateway || payload["kind"] != string(domain.KindUpstreamGeneration) {
		t.Fatalf("status = %d payload = %v", resp.StatusCode, payload)
	}
	if strings.Contains(payload["error"].(string), "sk-123") {
		t.Fatal("upstream detail leaked to the client")
	}
	if env.store.Len() != 0 {
		t.Fatal("failed run stored a plan")
	}
}

type sseFrame struct {
	event string
	data  map[string]any
}

func readFrames(t *testing.T, resp *http.Response) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			frames = append(frames, cur)
			cur = sseFrame{}
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &cur.data); err != nil {
				t.Fatalf("decode frame data %q: %v", line, err)
			}
		}
	}
	return frames
}

func postStream(t *testing.T, env *testEnv) (*http.Response, []sseFrame) {
	t.Helper()
	resp, err := http.Post(env.server.URL+"/v1/plans/generate/stream", "application/json", strings.NewReader(coffeeBody))
	if err != nil {
		t.Fatalf("POST stream: %v", err)
	}
	defer resp.Body.Close()
	return resp, readFrames(t, resp)
}

func progressOf(frames []sseFrame) ([]string, sseFrame) {
	var stages []string
	var terminal sseFrame
	for _, f := range frames {
		switch f.event {
		case "progress":
			stages = append(stages, f.data["stage"].(string))
		case "complete", "error":
			terminal = f
		}
	}
	return stages, terminal
}

func TestGenerateStream(t *testing.T) {
	env := newEnv(t, pipelinetest.Coffee())
	resp, frames := postStream(t, env)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	stages, terminal := progressOf(frames)
	want := []string{"stage_1", "stage_2", "stage_3", "delivered"}
	if !reflect.DeepEqual(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	if terminal.event != "complete" || terminal.data["persisted"] != true || terminal.data["planId"] == "" {
		t.Fatalf("terminal = %+v", terminal)
	}
	if frames[len(frames)-1].event != "complete" {
		t.Fatalf("stream continued after the terminal frame: %+v", frames[len(frames)-1])
	}
}

func TestGenerateStreamStageTwoFailure(t *testing.T) {
	env := newEnv(t, pipelinetest.Coffee().Fail(pipeline.StageProofread, errors.New("boom")))
	_, frames := postStream(t, env)
	stages, terminal := progressOf(frames)
	if !reflect.DeepEqual(stages, []string{"stage_1", "stage_2"}) {
		t.Fatalf("stages = %v", stages)
	}
	if terminal.event != "error" || terminal.data["kind"] != string(domain.KindUpstreamGeneration) {
		t.Fatalf("terminal = %+v", terminal)
	}
	if env.store.Len() != 0 {
		t.Fatal("failed run stored a plan")
	}
}

func TestGenerateFromDocument(t *testing.T) {
	env := newEnv(t, pipelinetest.Coffee())

	build := func(contentType, content string) (*bytes.Buffer, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="document"; filename="idea.txt"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte(content))
		_ = mw.WriteField("industry", "E-commerce")
		_ = mw.WriteField("targetMarket", "Coffee enthusiasts")
		_ = mw.Close()
		return &buf, mw.FormDataContentType()
	}

	body, ct := build("text/plain", "A subscription box for artisanal coffee beans sourced from small farms")
	resp, payload := env.do(t, http.MethodPost, "/v1/plans/generate/document", ct, body.Bytes())
	if resp.StatusCode != http.StatusOK || payload["persisted"] != true {
		t.Fatalf("document generate = %d %v", resp.StatusCode, payload)
	}
	if !strings.Contains(env.gen.Calls()[0].Prompt, "artisanal coffee beans") {
		t.Fatal("document text not used as the business idea")
	}

	body, ct = build("image/png", "\x89PNG\r\n\x1a\n")
	resp, payload = env.do(t, http.MethodPost, "/v1/plans/generate/document", ct, body.Bytes())
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("png upload = %d %v", resp.StatusCode, payload)
	}

	resp, payload = env.do(t, http.MethodPost, "/v1/plans/generate/document", "application/json", []byte(coffeeBody))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-multipart = %d %v", resp.StatusCode, payload)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	gen := pipelinetest.Coffee()
	book, _ := pipeline.DefaultPromptBook()
	rec := reconcile.New(reconcile.DefaultValues(), reconcile.OrphanDrop)
	svc := planning.NewService(planning.Options{Pipeline: pipeline.Build(gen, book, rec, nil), Repo: repo.NewPlanRepositoryMemory(), Reconciler: rec})
	h := NewRouter(handlers.NewApp(svc, zerolog.Nop(), time.Second, 0), Options{Logger: zerolog.Nop(), RateLimitPerMin: 1})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/plans/generate", strings.NewReader(coffeeBody))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
	// Reads are not limited.
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz code = %d", rr.Code)
	}
}

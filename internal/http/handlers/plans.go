package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"planforge/internal/domain"
	"planforge/internal/http/stream"
	"planforge/internal/middleware"
	"planforge/internal/planning"
)

const multipartOverhead = 1 << 20

type generateResponse struct {
	Success   bool             `json:"success"`
	Plan      domain.FinalPlan `json:"plan"`
	PlanID    string           `json:"planId"`
	Persisted bool             `json:"persisted"`
}

func newGenerateResponse(g *planning.Generated) generateResponse {
	return generateResponse{Success: true, Plan: g.Plan, PlanID: g.PlanID, Persisted: g.Persisted}
}

// GeneratePlan runs the pipeline and answers once the plan is ready.
func (a *App) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	var info domain.BusinessInfo
	if err := decodeJSON(w, r, &info); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.generate(w, r, info)
}

// GeneratePlanStream runs the pipeline and reports progress as SSE frames.
func (a *App) GeneratePlanStream(w http.ResponseWriter, r *http.Request) {
	var info domain.BusinessInfo
	if err := decodeJSON(w, r, &info); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.streamGeneration(w, r, info)
}

// GenerateFromDocument accepts a multipart upload whose "document" part
// supplies the business idea. stream=true switches the response to SSE.
func (a *App) GenerateFromDocument(w http.ResponseWriter, r *http.Request) {
	// Upload and extraction count against the same budget as generation.
	a.extendDeadline(w)
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxDocumentBytes+multipartOverhead)
	if err := r.ParseMultipartForm(a.MaxDocumentBytes); err != nil {
		verr := &domain.ValidationError{}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			verr.Add("document", "is too large")
		} else {
			verr.Add("document", "must be sent as multipart/form-data")
		}
		a.writeError(w, r, verr)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()
	file, header, err := r.FormFile("document")
	if err != nil {
		verr := &domain.ValidationError{}
		verr.Add("document", "is required")
		a.writeError(w, r, verr)
		return
	}
	defer file.Close()

	info, err := a.Plans.DocumentInfo(r.Context(), planning.DocumentRequest{
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Info: domain.BusinessInfo{
			BusinessIdea:      r.FormValue("businessIdea"),
			Industry:          r.FormValue("industry"),
			TargetMarket:      r.FormValue("targetMarket"),
			TimeCommitment:    r.FormValue("timeCommitment"),
			Budget:            r.FormValue("budget"),
			AdditionalContext: r.FormValue("additionalContext"),
			Locale:            r.FormValue("locale"),
		},
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if streaming, _ := parseBool(r.URL.Query().Get("stream")); streaming {
		a.streamGeneration(w, r, info)
		return
	}
	a.generate(w, r, info)
}

func (a *App) generate(w http.ResponseWriter, r *http.Request, info domain.BusinessInfo) {
	a.extendDeadline(w)
	gen, err := a.Plans.Generate(r.Context(), info, middleware.LocaleFromContext(r.Context()), nil)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newGenerateResponse(gen))
}

// extendDeadline lets a blocking generation outlive the server write timeout.
func (a *App) extendDeadline(w http.ResponseWriter) {
	if err := stream.ExtendDeadline(w, a.GenerationDeadline); err != nil {
		a.Logger.Warn().Err(err).Msg("extend write deadline")
	}
}

func (a *App) streamGeneration(w http.ResponseWriter, r *http.Request, info domain.BusinessInfo) {
	// Leaving this handler, for any reason, cancels the in-flight stage.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := a.Plans.Stream(ctx, info, middleware.LocaleFromContext(ctx))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sw, err := stream.Open(w)
	if err != nil {
		a.Logger.Error().Err(err).Msg("open event stream")
		return
	}
	requestID := middleware.RequestIDFromContext(ctx)
	err = stream.Relay(ctx, sw, a.KeepAlive, events, func(ev planning.Event) stream.Frame {
		switch {
		case ev.Err != nil:
			kind := domain.KindOf(ev.Err)
			a.Logger.Error().Err(ev.Err).Str("request_id", requestID).Str("kind", string(kind)).Msg("stream generation failed")
			return stream.Frame{Event: stream.EventError, Data: errorResponse{Error: publicMessage(kind), Kind: kind}}
		case ev.Generated != nil:
			return stream.Frame{Event: stream.EventComplete, Data: newGenerateResponse(ev.Generated)}
		default:
			return stream.Frame{Event: stream.EventProgress, Data: map[string]string{"stage": string(ev.Progress)}}
		}
	})
	if err != nil {
		a.Logger.Debug().Err(err).Str("request_id", requestID).Msg("event stream closed early")
	}
}

func (a *App) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := a.Plans.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "plan": plan})
}

type editRequest struct {
	GeneratedPlan     json.RawMessage `json:"generatedPlan"`
	ExpectedUpdatedAt *time.Time      `json:"expectedUpdatedAt,omitempty"`
}

// EditPlan replaces the whole generated plan.
func (a *App) EditPlan(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	raw := strings.TrimSpace(string(req.GeneratedPlan))
	if raw == "" || raw == "null" {
		verr := &domain.ValidationError{}
		verr.Add("generatedPlan", "is required")
		a.writeError(w, r, verr)
		return
	}
	var plan domain.FinalPlan
	if err := json.Unmarshal(req.GeneratedPlan, &plan); err != nil {
		verr := &domain.ValidationError{}
		verr.Add("generatedPlan", "does not match the plan shape")
		a.writeError(w, r, verr)
		return
	}
	updated, err := a.Plans.Edit(r.Context(), chi.URLParam(r, "id"), plan, req.ExpectedUpdatedAt)
	if err != nil {
		if domain.KindOf(err) == domain.KindSchemaValidation {
			a.Logger.Warn().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("edit rejected")
			a.error(w, http.StatusUnprocessableEntity, domain.KindSchemaValidation, "plan must contain at least one week with one task")
			return
		}
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "plan": updated})
}

func (a *App) SharePlan(w http.ResponseWriter, r *http.Request) {
	sh, err := a.Plans.IssueShareToken(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"success": true, "token": sh.Token, "sharePath": sh.Path})
}

func (a *App) GetSharedPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := a.Plans.GetShared(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":  true,
		"plan":     plan.GeneratedPlan,
		"editable": plan.Editable,
		"planId":   plan.ID,
	})
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"planforge/internal/domain"
	"planforge/internal/middleware"
	"planforge/internal/planning"
)

const (
	defaultKeepAlive = 15 * time.Second
	maxJSONBody      = 1 << 20
)

// App holds the dependencies shared by every handler.
type App struct {
	Plans            *planning.Service
	Logger           zerolog.Logger
	KeepAlive        time.Duration
	MaxDocumentBytes int64
	// GenerationDeadline replaces the server write timeout on blocking
	// generation routes. Zero leaves those responses without a deadline.
	GenerationDeadline time.Duration
}

func NewApp(plans *planning.Service, logger zerolog.Logger, keepAlive time.Duration, maxDocumentBytes int64) *App {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	if maxDocumentBytes <= 0 {
		maxDocumentBytes = 10 << 20
	}
	return &App{Plans: plans, Logger: logger, KeepAlive: keepAlive, MaxDocumentBytes: maxDocumentBytes}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Kind    domain.ErrorKind  `json:"kind"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, kind domain.ErrorKind, msg string) {
	a.json(w, code, errorResponse{Error: msg, Kind: kind})
}

// writeError maps err to its status and a generic message. The detail only
// reaches the log.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	code := statusFor(kind)
	ev := a.Logger.Warn()
	if code >= http.StatusInternalServerError {
		ev = a.Logger.Error()
	}
	ev.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("kind", string(kind)).
		Msg("request failed")

	resp := errorResponse{Error: publicMessage(kind), Kind: kind}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	a.json(w, code, resp)
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUpstreamGeneration, domain.KindSchemaValidation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindValidation:
		return "invalid request"
	case domain.KindNotFound:
		return "plan not found"
	case domain.KindConflict:
		return "plan was modified by another request"
	case domain.KindUpstreamGeneration:
		return "plan generation failed, please try again"
	case domain.KindSchemaValidation:
		return "generated plan was incomplete, please try again"
	case domain.KindPersistence:
		return "could not save the plan"
	default:
		return "internal error"
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		verr := &domain.ValidationError{}
		if errors.Is(err, io.EOF) {
			verr.Add("body", "is required")
		} else {
			verr.Add("body", "must be a valid JSON object")
		}
		return verr
	}
	return nil
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"planforge/internal/http/handlers"
	"planforge/internal/middleware"
)

// Options carries the middleware settings for NewRouter.
type Options struct {
	Logger          zerolog.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	Locales         *middleware.Locales
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	locales := opts.Locales
	if locales == nil {
		locales = middleware.NewLocales([]string{"en"}, "en")
	}

	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(locales, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/v1/plans", func(r chi.Router) {
		// Generation calls the model three times; only these routes are limited.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
			r.Post("/generate", app.GeneratePlan)
			r.Post("/generate/stream", app.GeneratePlanStream)
			r.Post("/generate/document", app.GenerateFromDocument)
		})
		r.Get("/{id}", app.GetPlan)
		r.Put("/{id}", app.EditPlan)
		r.Post("/{id}/share", app.SharePlan)
	})
	r.Get("/v1/share/{token}", app.GetSharedPlan)

	return r
}

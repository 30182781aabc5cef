package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/asyncview/internal/api"
	apiMiddleware "github.com/phrazzld/asyncview/internal/api/middleware"
	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/phrazzld/asyncview/internal/example"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	async := app.config.Async
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService, app.config.Auth.TokenCookie)

	views := map[string]*asyncop.Operation{
		"/":      app.examples.View,
		"/slow/": app.examples.SlowView,
	}
	downloads := map[string]*asyncop.Operation{
		"/example-download/":      app.examples.Download,
		"/example-slow-download/": app.examples.SlowDownload,
	}

	var routeErr error
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		if app.limiter != nil {
			r.Use(app.limiter.Middleware)
		}

		for pattern, op := range views {
			h, err := api.NewViewHandler(api.ViewDescriptor{
				Operation:       op,
				InitialInterval: time.Duration(async.InitialPollIntervalMs) * time.Millisecond,
				PollInterval:    time.Duration(async.PollIntervalMs) * time.Millisecond,
				RequireOwner:    async.RequireOwner,
				Eager:           async.Eager,
			}, app.jobs, app.logger)
			if err != nil {
				routeErr = err
				return
			}
			r.Method(http.MethodGet, pattern, h)
		}

		for pattern, op := range downloads {
			h, err := api.NewDownloadHandler(api.DownloadDescriptor{
				Operation:    op,
				Setup:        example.DownloadSetup,
				RequireOwner: async.RequireOwner,
				Eager:        async.Eager,
			}, app.jobs, app.logger)
			if err != nil {
				routeErr = err
				return
			}
			r.Method(http.MethodGet, pattern, h)
		}
	})
	if routeErr != nil {
		return nil, routeErr
	}
	return r, nil
}

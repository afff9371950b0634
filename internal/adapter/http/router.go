package http

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/storeconsole/internal/app"
)

// NewRouter builds the console API router: chi with request IDs, panic
// recovery and OpenTelemetry spans named after the matched route.
func NewRouter(serviceName, version string, console *app.Console) *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig(serviceName, version))
	Register(api, console)
	return router
}

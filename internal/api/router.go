package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted. Device-facing
// routes are open; admin routes require the Bearer adminToken.
func NewRouter(svc *Service, adminToken string) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	// Device-facing routes.
	r.Get("/render-data", h.RenderData)
	r.Get("/frame", h.Frame)
	r.Get("/layouts/{device}", h.GetLayout)

	// Admin routes.
	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuth(adminToken))
		r.Put("/layouts/{device}", h.PutLayout)
		r.Post("/render-now", h.RenderNow)
		r.Post("/prefetch", h.Prefetch)
		r.Get("/devices", h.Devices)
	})

	return r
}

// Package http provides http transport for map queries
package http

import (
	stdhttp "net/http"

	"pulsemap/internal/modkit/httpkit"
	"pulsemap/internal/services/api/mapquery/domain"
	svc "pulsemap/internal/services/api/mapquery/service"
)

// Register mounts the map query endpoints on the given router
func Register(r httpkit.Router, s *svc.Service) {
	h := &handlers{svc: s}
	httpkit.PostJSON[domain.QueryInput](r, "/query", h.query)
	httpkit.PostJSON[domain.ViewportInput](r, "/viewport", h.viewport)
	httpkit.PostJSON[domain.NearInput](r, "/near", h.near)
	httpkit.Get(r, "/cache", h.cache)
}

type handlers struct{ svc *svc.Service }

func (h *handlers) query(r *stdhttp.Request, in domain.QueryInput) (any, error) {
	return h.svc.Query(r.Context(), in)
}

func (h *handlers) viewport(r *stdhttp.Request, in domain.ViewportInput) (any, error) {
	return h.svc.Viewport(r.Context(), in)
}

func (h *handlers) near(r *stdhttp.Request, in domain.NearInput) (any, error) {
	return h.svc.Near(r.Context(), in)
}

func (h *handlers) cache(*stdhttp.Request) (any, error) {
	return h.svc.CacheStats(), nil
}

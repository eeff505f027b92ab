// Package http provides http transport for the operational endpoints
package http

import (
	stdhttp "net/http"

	"pulsemap/internal/modkit/httpkit"
	"pulsemap/internal/services/api/ops/domain"
	incdom "pulsemap/internal/services/incidents/domain"
	ingdom "pulsemap/internal/services/ingest/domain"
)

// Register mounts the operational endpoints on the given router
func Register(r httpkit.Router, ingest domain.IngestPort) {
	h := &handlers{ingest: ingest}
	httpkit.PostJSON[domain.RunInput](r, "/ingest/run", h.run)
	httpkit.Get(r, "/ingest/health", h.health)
}

type handlers struct{ ingest domain.IngestPort }

func (h *handlers) run(r *stdhttp.Request, in domain.RunInput) (any, error) {
	if in.Source != "" {
		res, err := h.ingest.RunOne(r.Context(), incdom.Source(in.Source))
		if err != nil {
			return nil, err
		}
		return domain.RunOutput{Results: []ingdom.CycleResult{res}}, nil
	}
	return domain.RunOutput{Results: h.ingest.RunAll(r.Context())}, nil
}

func (h *handlers) health(r *stdhttp.Request) (any, error) {
	return domain.HealthOutput{Sources: h.ingest.Health()}, nil
}

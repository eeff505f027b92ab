// Package api provides the HTTP API for the service
package api

import (
	stdhttp "net/http"

	"pulsemap/internal/platform/config"
	"pulsemap/internal/platform/metrics"
	phttp "pulsemap/internal/platform/net/http"
	"pulsemap/internal/platform/store"

	"pulsemap/internal/modkit"
	"pulsemap/internal/modkit/httpkit"
	"pulsemap/internal/modkit/module"

	mqdom "pulsemap/internal/services/api/mapquery/domain"
	mqmod "pulsemap/internal/services/api/mapquery/module"
	opsdom "pulsemap/internal/services/api/ops/domain"
	opsmod "pulsemap/internal/services/api/ops/module"
)

// Options are the API options; the engine and scheduler are built at the
// composition root and injected here
type Options struct {
	Config config.Conf
	Store  *store.Store

	Query      mqdom.QueryPort
	Categories mqdom.CategoryPort
	Ingest     opsdom.IngestPort
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
	}

	mods := []module.Module{
		mqmod.New(deps, modkit.WithPorts(mqmod.Ports{
			Query:      opt.Query,
			Categories: opt.Categories,
		})),
		opsmod.New(deps, modkit.WithPorts(opsmod.Ports{
			Ingest: opt.Ingest,
		})),
	}

	r.Group(func(g phttp.Router) {
		g.Use(httpkit.CommonStack()...)

		for _, m := range mods {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(g)
		}
	})

	r.Get("/healthz", phttp.Handle(func(*stdhttp.Request) phttp.Response {
		return phttp.OK(map[string]string{"status": "ok"})
	}))
	r.Handle("/metrics", metrics.Handler())
}

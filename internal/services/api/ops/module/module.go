// Package module wires the operational endpoints into the API using modkit
package module

import (
	"net/http"

	modkit "pulsemap/internal/modkit"
	"pulsemap/internal/modkit/httpkit"
	"pulsemap/internal/services/api/ops/domain"
	opshttp "pulsemap/internal/services/api/ops/http"
)

// Ports declares the cross-module dependencies this module expects injected
type Ports struct {
	Ingest domain.IngestPort
}

// Module implements the modkit.Module interface
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws      []func(http.Handler) http.Handler
	ports    Ports
	register func(httpkit.Router)
}

// New constructs an ops module. The scheduler port arrives via WithPorts
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("ops"),
		modkit.WithPrefix("/ops"),
	}, opts...)...)

	ports, _ := b.Ports.(Ports)

	m := &Module{
		deps:   deps,
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		ports:  ports,
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		opshttp.Register(r, m.ports.Ingest)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes implements the modkit.Module interface
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name implements the modkit.Module interface
func (m *Module) Name() string { return m.name }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return m.ports }

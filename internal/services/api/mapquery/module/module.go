// Package module wires map queries into the API using modkit
package module

import (
	"net/http"

	modkit "pulsemap/internal/modkit"
	"pulsemap/internal/modkit/httpkit"
	"pulsemap/internal/services/api/mapquery/domain"
	mqhttp "pulsemap/internal/services/api/mapquery/http"
	mqsvc "pulsemap/internal/services/api/mapquery/service"
)

// Ports declares the cross-module dependencies this module expects injected
type Ports struct {
	Query      domain.QueryPort
	Categories domain.CategoryPort
}

// Module implements the modkit.Module interface
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws      []func(http.Handler) http.Handler
	register func(httpkit.Router)

	svc *mqsvc.Service
}

// New constructs a mapquery module. The engine port arrives via WithPorts
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("mapquery"),
		modkit.WithPrefix("/map"),
	}, opts...)...)

	ports, _ := b.Ports.(Ports)
	svc := mqsvc.New(ports.Query, ports.Categories)

	m := &Module{
		deps:   deps,
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		svc:    svc,
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		mqhttp.Register(r, m.svc)
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
func (m *Module) Ports() any { return m.svc }

package webhook

import (
	"context"
	"strings"
)

// TenantResolver traduce la referencia del proveedor a un tenant. Devuelve ErrTenantUnresolved
// cuando no hay match o el match es ambiguo.
type TenantResolver interface {
	Resolve(ctx context.Context, provider, ref string) (string, error)
}

// StaticRouter resuelve desde config: provider → (ref → tenant).
// Una ref sin prefijo de proveedor también se acepta si el tenant existe en AllowedTenants.
type StaticRouter struct {
	routes  map[string]map[string]string
	tenants map[string]bool
}

type Route struct {
	Provider string `yaml:"provider"`
	Ref      string `yaml:"ref"`
	TenantID string `yaml:"tenant_id"`
}

func NewStaticRouter(routes []Route, knownTenants []string) *StaticRouter {
	r := &StaticRouter{routes: map[string]map[string]string{}, tenants: map[string]bool{}}
	for _, rt := range routes {
		p := strings.ToLower(rt.Provider)
		if r.routes[p] == nil {
			r.routes[p] = map[string]string{}
		}
		if prev, dup := r.routes[p][rt.Ref]; dup && prev != rt.TenantID {
			// misma ref hacia dos tenants: ambigua, nunca resuelve
			r.routes[p][rt.Ref] = ""
			continue
		}
		r.routes[p][rt.Ref] = rt.TenantID
	}
	for _, t := range knownTenants {
		r.tenants[t] = true
	}
	return r
}

func (r *StaticRouter) Resolve(_ context.Context, provider, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrTenantUnresolved
	}
	if m, ok := r.routes[strings.ToLower(provider)]; ok {
		if t, ok := m[ref]; ok {
			if t == "" {
				return "", ErrTenantUnresolved
			}
			return t, nil
		}
	}
	if r.tenants[ref] {
		return ref, nil
	}
	return "", ErrTenantUnresolved
}

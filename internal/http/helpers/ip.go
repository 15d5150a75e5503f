package helpers

import (
	"net"
	"net/http"
	"strings"

	"github.com/dropDatabas3/cpauth/internal/security/ipallow"
)

// IPResolver extrae la IP del cliente. X-Forwarded-For solo se considera cuando la
// conexión viene de un proxy confiable; se recorre de derecha a izquierda salteando
// proxies confiables y se toma el primer salto que no lo es.
type IPResolver struct {
	Trusted []string // IPs o CIDRs de los proxies delante del servicio
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func (p IPResolver) ClientIP(r *http.Request) string {
	remote := remoteHost(r)
	if !ipallow.IsAllowed(remote, p.Trusted) {
		return remote
	}
	xff := r.Header.Values("X-Forwarded-For")
	if len(xff) == 0 {
		return remote
	}
	hops := strings.Split(strings.Join(xff, ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !ipallow.IsAllowed(hop, p.Trusted) {
			return hop
		}
	}
	return remote
}

package session

import (
	"net"
	"net/http"
	"strings"

	"github.com/dropDatabas3/trustgate/internal/security/vault"
)

// fingerprintHeaders set fijo y ordenado de headers que participan del
// fingerprint. El orden importa: cambiarlo invalida todas las sesiones vivas.
var fingerprintHeaders = []string{
	"User-Agent",
	"Accept-Language",
	"Sec-Ch-Ua",
	"Sec-Ch-Ua-Platform",
	"Sec-Ch-Ua-Mobile",
}

// Fingerprint calcula el device fingerprint del request: concatenación de los
// headers fijos más la dirección de red del cliente, hasheada a sha256 hex.
func Fingerprint(r *http.Request) string {
	var b strings.Builder
	for _, h := range fingerprintHeaders {
		b.WriteString(r.Header.Get(h))
		b.WriteByte('|')
	}
	b.WriteString(ClientAddr(r))

	fp, _ := vault.Hash(b.String(), vault.SHA256)
	return fp
}

// ClientAddr resuelve la dirección de origen: primera entrada de
// X-Forwarded-For si está presente, sino la dirección de transporte sin
// puerto.
func ClientAddr(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

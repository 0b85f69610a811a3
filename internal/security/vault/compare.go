package vault

import (
	"crypto/sha256"
	"crypto/subtle"
)

// SecureCompare compara dos secretos en tiempo constante.
//
// No compara los inputs directamente: primero digiere ambos a sha256 y
// compara los digests, que siempre tienen la misma longitud. Así el costo es
// fijo también cuando las longitudes difieren, y el tiempo de rechazo no
// filtra la longitud del secreto real (un early-return por longitud sí lo
// haría).
func SecureCompare(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}

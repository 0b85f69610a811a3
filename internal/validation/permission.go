package validation

import "regexp"

// Reglas para nombres de permiso adjuntados a una sesión:
// - Sólo minúsculas.
// - Empieza y termina con [a-z0-9].
// - En el medio se aceptan [a-z0-9:_.-].
// - Largo 1..64.
// - Sin punto y coma ni espacios.
//
// Válidos: profile, sessions:read, leave_request:approve, a
// Inválidos: ;hack, BAD, "bad space", :leader, trailer:, "" y más de 64 chars.
var permissionRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidPermission reporta si el nombre de permiso cumple el patrón.
func ValidPermission(name string) bool {
	return permissionRe.MatchString(name)
}

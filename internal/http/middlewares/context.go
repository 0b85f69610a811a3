package middlewares

import (
	"context"

	"github.com/dropDatabas3/trustgate/internal/auth"
	"github.com/dropDatabas3/trustgate/internal/session"
)

// =================================================================================
// CONTEXT KEYS
// =================================================================================

type ctxKey string

const (
	// ctxIdentityKey guarda la Identity resuelta por el verifier
	ctxIdentityKey ctxKey = "identity"
	// ctxSessionKey guarda el resultado del pipeline de sesión
	ctxSessionKey ctxKey = "session"
	// ctxRequestIDKey guarda el request ID
	ctxRequestIDKey ctxKey = "request_id"
)

// =================================================================================
// CONTEXT SETTERS (internos, usados por middlewares)
// =================================================================================

// WithIdentity inyecta la identidad autenticada en el contexto
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, id)
}

// WithSession inyecta la validación de sesión en el contexto
func WithSession(ctx context.Context, v session.Validation) context.Context {
	return context.WithValue(ctx, ctxSessionKey, v)
}

// setRequestID inyecta el request ID en el contexto (interno)
func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// =================================================================================
// CONTEXT GETTERS (públicos, usados por handlers)
// =================================================================================

// GetIdentity obtiene la identidad autenticada del contexto.
// Retorna nil si el middleware de auth no se aplicó.
func GetIdentity(ctx context.Context) *auth.Identity {
	if v := ctx.Value(ctxIdentityKey); v != nil {
		if id, ok := v.(*auth.Identity); ok {
			return id
		}
	}
	return nil
}

// GetSession obtiene la sesión validada del contexto.
// Retorna nil si el middleware de sesión no se aplicó o la sesión no es válida.
func GetSession(ctx context.Context) *session.Session {
	if v := ctx.Value(ctxSessionKey); v != nil {
		if val, ok := v.(session.Validation); ok {
			return val.Session
		}
	}
	return nil
}

// MustGetSession obtiene la sesión o hace panic.
// Usar sólo en rutas donde RequireSession SIEMPRE se aplica.
func MustGetSession(ctx context.Context) *session.Session {
	sess := GetSession(ctx)
	if sess == nil {
		panic("middlewares: no session in context")
	}
	return sess
}

// GetRequestID obtiene el request ID del contexto.
// Retorna cadena vacía si no hay request ID.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(ctxRequestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

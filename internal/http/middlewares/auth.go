package middlewares

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/trustgate/internal/auth"
	httperrors "github.com/dropDatabas3/trustgate/internal/http/errors"
	"github.com/dropDatabas3/trustgate/internal/observability/logger"
)

// =================================================================================
// AUTHENTICATION MIDDLEWARES
// =================================================================================

// RequireIdentity resuelve la credencial del request (bearer o API key) y
// guarda la Identity en el contexto. Sin credencial válida responde 401 con
// el código de la taxonomy que corresponda.
func RequireIdentity(verifier *auth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := verifier.Verify(r.Context(), r)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrNoCredentials):
					w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="missing credentials"`)
					httperrors.WriteError(w, httperrors.ErrNoCredentials)
				case errors.Is(err, auth.ErrMissingTenant):
					httperrors.WriteError(w, httperrors.ErrInvalidCredential.WithDetail("token missing tenant claim"))
				case errors.Is(err, auth.ErrInvalidCredential):
					httperrors.WriteError(w, httperrors.ErrInvalidCredential)
				default:
					logger.From(r.Context()).Error("credential verification error",
						logger.Component("middlewares.auth"), logger.Err(err))
					httperrors.WriteError(w, err)
				}
				return
			}

			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalIdentity intenta resolver la credencial pero NO falla si no hay o
// es inválida. Para endpoints con comportamiento distinto según identidad.
func OptionalIdentity(verifier *auth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := verifier.Verify(r.Context(), r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

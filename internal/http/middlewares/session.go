package middlewares

import (
	"net/http"

	httperrors "github.com/dropDatabas3/trustgate/internal/http/errors"
	"github.com/dropDatabas3/trustgate/internal/observability/logger"
	"github.com/dropDatabas3/trustgate/internal/session"
)

// RequireSession corre el pipeline de validación de sesión sobre el cookie y
// guarda el resultado en el contexto. Los estados del pipeline se mapean a la
// taxonomy: sin sesión 401 no_session, hijack 401 device_mismatch, MFA
// pendiente 403 insufficient_mfa.
func RequireSession(svc *session.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(svc.CookieName()); err == nil {
				id = c.Value
			}

			val, err := svc.GetSession(r.Context(), r, id)
			if err != nil {
				logger.From(r.Context()).Error("session validation error",
					logger.Component("middlewares.session"), logger.Err(err))
				httperrors.WriteError(w, err)
				return
			}

			switch val.Status {
			case session.StatusOK:
				ctx := WithSession(r.Context(), val)
				next.ServeHTTP(w, r.WithContext(ctx))
			case session.StatusMFAPending:
				httperrors.WriteError(w, httperrors.ErrInsufficientMFA)
			case session.StatusDeviceMismatch:
				httperrors.WriteError(w, httperrors.ErrDeviceMismatch)
			default:
				httperrors.WriteError(w, httperrors.ErrNoSession)
			}
		})
	}
}

// RequireSessionAllowMFAPending es como RequireSession pero deja pasar una
// sesión con MFA pendiente. Para el endpoint que completa el paso de MFA.
func RequireSessionAllowMFAPending(svc *session.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(svc.CookieName()); err == nil {
				id = c.Value
			}

			val, err := svc.GetSession(r.Context(), r, id)
			if err != nil {
				httperrors.WriteError(w, err)
				return
			}

			switch val.Status {
			case session.StatusOK, session.StatusMFAPending:
				ctx := WithSession(r.Context(), val)
				next.ServeHTTP(w, r.WithContext(ctx))
			case session.StatusDeviceMismatch:
				httperrors.WriteError(w, httperrors.ErrDeviceMismatch)
			default:
				httperrors.WriteError(w, httperrors.ErrNoSession)
			}
		})
	}
}

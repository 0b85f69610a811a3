package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/trustgate/internal/audit"
	"github.com/dropDatabas3/trustgate/internal/breaker"
	"github.com/dropDatabas3/trustgate/internal/metrics"
	"github.com/dropDatabas3/trustgate/internal/observability/logger"
	"github.com/dropDatabas3/trustgate/internal/util"
)

// Status resultado de validar una sesión entrante.
type Status int

const (
	// StatusNoSession no hay sesión utilizable (ausente o expirada).
	StatusNoSession Status = iota

	// StatusDeviceMismatch el fingerprint no coincide: la sesión fue
	// destruida como señal de hijack. Para el caller equivale a no tener
	// sesión, pero se distingue para observabilidad y taxonomy de errores.
	StatusDeviceMismatch

	// StatusMFAPending sesión válida pero con el paso de MFA pendiente.
	// Distinto de "no session": el caller redirige a MFA, no a login.
	StatusMFAPending

	// StatusOK sesión válida y suficiente.
	StatusOK
)

// Validation resultado del pipeline de validación.
type Validation struct {
	Status  Status
	Session *Session
}

// ErrNotOwner la sesión target pertenece a otra cuenta.
var ErrNotOwner = errors.New("session: target session belongs to another account")

// RemoteRevoker notifica revocaciones al auth service upstream. La llamada
// sale protegida por circuit breaker; una falla no bloquea la revocación
// local.
type RemoteRevoker interface {
	RevokeRemote(ctx context.Context, accountID, sessionID string) error
}

// CookieConfig atributos del cookie de sesión. Path y MaxAge salen de la
// política por tipo de cuenta, no de acá.
type CookieConfig struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// Service orquesta emisión de cookies, verificación de fingerprint, gating
// de MFA y revocación.
type Service struct {
	store   *Store
	cookies CookieConfig

	// revoker opcional; nil deshabilita la notificación remota.
	revoker  RemoteRevoker
	breakers *breaker.Registry
}

// NewService crea el Service. revoker y breakers pueden ser nil.
func NewService(store *Store, cookies CookieConfig, revoker RemoteRevoker, breakers *breaker.Registry) *Service {
	if cookies.Name == "" {
		cookies.Name = "tg_session"
	}
	if cookies.SameSite == 0 {
		cookies.SameSite = http.SameSiteLaxMode
	}
	return &Service{store: store, cookies: cookies, revoker: revoker, breakers: breakers}
}

// Store expone el store subyacente (handlers de listado, refresh checks).
func (s *Service) Store() *Store {
	return s.store
}

// CookieName nombre del cookie de sesión.
func (s *Service) CookieName() string {
	return s.cookies.Name
}

// GetSession corre el pipeline de validación para un request que presenta un
// ID de sesión:
//
//  1. lookup en el store (ausente/expirada => NoSession)
//  2. fingerprint del request actual vs. el guardado; mismatch destruye la
//     sesión (señal de hijack, no desync benigno)
//  3. touch (actividad, no expiración)
//  4. gating de MFA
func (s *Service) GetSession(ctx context.Context, r *http.Request, id string) (Validation, error) {
	if id == "" {
		return Validation{Status: StatusNoSession}, nil
	}

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Validation{}, err
	}
	if sess == nil {
		return Validation{Status: StatusNoSession}, nil
	}

	if fp := Fingerprint(r); fp != sess.DeviceFingerprint {
		logger.From(ctx).Warn("device fingerprint mismatch, destroying session",
			logger.Component("session.service"),
			logger.AccountID(sess.AccountID),
			logger.AccountType(string(sess.AccountType)),
			logger.ClientIP(ClientAddr(r)))
		metrics.SessionHijackDetected.Inc()
		audit.Event(ctx, "session.hijack_detected",
			logger.SessionID(id),
			logger.AccountID(sess.AccountID),
			logger.ClientIP(ClientAddr(r)))

		if _, err := s.store.Delete(ctx, id); err != nil {
			return Validation{}, err
		}
		return Validation{Status: StatusDeviceMismatch}, nil
	}

	if _, err := s.store.Touch(ctx, id); err != nil {
		return Validation{}, err
	}

	if sess.MFARequired && !sess.MFAVerified {
		return Validation{Status: StatusMFAPending, Session: sess}, nil
	}
	return Validation{Status: StatusOK, Session: sess}, nil
}

// CreateSession emite la sesión para una identidad ya verificada y setea el
// cookie scoped por tipo de cuenta. El fingerprint se computa del request.
func (s *Service) CreateSession(ctx context.Context, w http.ResponseWriter, r *http.Request, in CreateInput) (*Session, error) {
	in.Fingerprint = Fingerprint(r)

	meta := &Metadata{
		UserAgent: r.UserAgent(),
		IPAddress: ClientAddr(r),
	}

	sess, err := s.store.Create(ctx, in, meta)
	if err != nil {
		return nil, err
	}
	metrics.SessionOps.WithLabelValues("create").Inc()
	audit.Event(ctx, "session.created",
		logger.SessionID(sess.ID),
		logger.AccountType(string(sess.AccountType)),
		logger.AccountID(sess.AccountID),
		logger.Email(util.MaskEmail(sess.Email)))

	http.SetCookie(w, s.sessionCookie(sess))
	return sess, nil
}

// DestroySession borra el registro y limpia el cookie. Idempotente: el cookie
// se borra aunque el registro ya no exista.
func (s *Service) DestroySession(ctx context.Context, w http.ResponseWriter, t AccountType, id string) error {
	if id != "" {
		if _, err := s.store.Delete(ctx, id); err != nil {
			logger.From(ctx).Warn("session delete failed during logout",
				logger.Component("session.service"), logger.Err(err))
		} else {
			metrics.SessionOps.WithLabelValues("destroy").Inc()
			audit.Event(ctx, "session.destroyed", logger.SessionID(id))
		}
		s.notifyRemote(ctx, "", id)
	}
	http.SetCookie(w, s.deletionCookie(t))
	return nil
}

// RevokeSession revoca targetID sólo si pertenece a la misma cuenta que la
// sesión actual. Evita revocación cross-account.
func (s *Service) RevokeSession(ctx context.Context, current *Session, targetID string) error {
	target, err := s.store.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		// Ya no existe; revocar algo ausente no es error.
		return nil
	}
	if target.AccountType != current.AccountType || target.AccountID != current.AccountID {
		return ErrNotOwner
	}

	if _, err := s.store.Delete(ctx, targetID); err != nil {
		return err
	}
	metrics.SessionOps.WithLabelValues("revoke").Inc()
	audit.Event(ctx, "session.revoked",
		logger.SessionID(targetID),
		logger.AccountID(target.AccountID))
	s.notifyRemote(ctx, target.AccountID, targetID)
	return nil
}

// RevokeAllOthers revoca todas las sesiones de la cuenta menos la actual.
func (s *Service) RevokeAllOthers(ctx context.Context, current *Session) (int, error) {
	count, err := s.store.RevokeAll(ctx, current.AccountType, current.AccountID, current.ID)
	if err != nil {
		return count, err
	}
	if count > 0 {
		metrics.SessionOps.WithLabelValues("revoke_all").Add(float64(count))
		audit.Event(ctx, "session.revoked_all",
			logger.AccountID(current.AccountID),
			logger.Count(count))
	}
	return count, nil
}

// MarkMFAVerified marca la sesión como verificada por MFA, preservando TTL.
func (s *Service) MarkMFAVerified(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil || sess == nil {
		return nil, err
	}
	sess.MFAVerified = true

	remaining := sess.ExpiresAt.Sub(s.store.now())
	if remaining <= 0 {
		return nil, nil
	}
	if err := s.store.writeSession(ctx, sess, remaining); err != nil {
		return nil, err
	}
	audit.Event(ctx, "session.mfa_verified", logger.SessionID(id))
	return sess, nil
}

// notifyRemote avisa la revocación al auth service upstream, best-effort y
// detrás del breaker. Nunca bloquea la revocación local.
func (s *Service) notifyRemote(ctx context.Context, accountID, sessionID string) {
	if s.revoker == nil {
		return
	}

	call := func(ctx context.Context) error {
		return s.revoker.RevokeRemote(ctx, accountID, sessionID)
	}
	var err error
	if s.breakers != nil {
		err = s.breakers.Execute(ctx, "auth.revoke", call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		logger.From(ctx).Warn("remote session revocation failed",
			logger.Component("session.service"),
			logger.Circuit("auth.revoke"),
			logger.Err(err))
	}
}

func (s *Service) sessionCookie(sess *Session) *http.Cookie {
	pol := s.store.policies.For(sess.AccountType)
	maxAge := int(pol.TTL.Seconds())

	return &http.Cookie{
		Name:     s.cookies.Name,
		Value:    sess.ID,
		Path:     pol.CookiePath,
		Domain:   s.cookies.Domain,
		MaxAge:   maxAge,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: s.cookies.SameSite,
	}
}

func (s *Service) deletionCookie(t AccountType) *http.Cookie {
	pol := s.store.policies.For(t)
	return &http.Cookie{
		Name:     s.cookies.Name,
		Value:    "",
		Path:     pol.CookiePath,
		Domain:   s.cookies.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: s.cookies.SameSite,
	}
}

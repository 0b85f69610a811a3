// Package handlers contiene los handlers HTTP de la API de sesiones.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/trustgate/internal/auth"
	httperrors "github.com/dropDatabas3/trustgate/internal/http/errors"
	mw "github.com/dropDatabas3/trustgate/internal/http/middlewares"
	"github.com/dropDatabas3/trustgate/internal/observability/logger"
	"github.com/dropDatabas3/trustgate/internal/session"
	"github.com/dropDatabas3/trustgate/internal/validation"
)

// Sessions agrupa los handlers de sesión.
type Sessions struct {
	svc *session.Service
}

func NewSessions(svc *session.Service) *Sessions {
	return &Sessions{svc: svc}
}

// createRequest body de POST /v1/sessions. Los tokens son el par emitido por
// el auth service upstream; la identidad del dueño sale de la credencial ya
// verificada, no del body.
type createRequest struct {
	AccountType  string   `json:"account_type"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	MFARequired  bool     `json:"mfa_required"`
	Permissions  []string `json:"permissions,omitempty"`
}

// sessionView es la vista pública de una sesión. Nunca incluye los envelopes
// cifrados ni el fingerprint.
type sessionView struct {
	ID             string   `json:"id"`
	AccountType    string   `json:"account_type"`
	AccountID      string   `json:"account_id"`
	Email          string   `json:"email,omitempty"`
	MFARequired    bool     `json:"mfa_required"`
	MFAVerified    bool     `json:"mfa_verified"`
	Permissions    []string `json:"permissions,omitempty"`
	CreatedAt      string   `json:"created_at"`
	ExpiresAt      string   `json:"expires_at"`
	LastActivityAt string   `json:"last_activity_at"`
}

func viewOf(s *session.Session) sessionView {
	return sessionView{
		ID:             s.ID,
		AccountType:    string(s.AccountType),
		AccountID:      s.AccountID,
		Email:          s.Email,
		MFARequired:    s.MFARequired,
		MFAVerified:    s.MFAVerified,
		Permissions:    s.Permissions,
		CreatedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:      s.ExpiresAt.UTC().Format(time.RFC3339),
		LastActivityAt: s.LastActivityAt.UTC().Format(time.RFC3339),
	}
}

// Create maneja POST /v1/sessions. Requiere identidad verificada (bearer o
// API key) vía RequireIdentity.
func (h *Sessions) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("handler"), logger.Op("Sessions.Create"))

	id := mw.GetIdentity(ctx)
	if id == nil {
		httperrors.WriteError(w, httperrors.ErrNoCredentials)
		return
	}

	var req createRequest
	if !httperrors.ReadJSON(w, r, &req) {
		return
	}

	t := session.AccountType(req.AccountType)
	if !t.IsValid() {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("account_type desconocido"))
		return
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("access_token y refresh_token son requeridos"))
		return
	}
	for _, p := range req.Permissions {
		if !validation.ValidPermission(p) {
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("permiso inválido: "+p))
			return
		}
	}

	accountID := id.Subject
	if id.Method == auth.MethodAPIKey {
		// Con API key el dueño viene del header de tenant, no hay subject.
		accountID = id.TenantID
	}

	sess, err := h.svc.CreateSession(ctx, w, r, session.CreateInput{
		AccountType:  t,
		AccountID:    accountID,
		Email:        id.Email,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		MFARequired:  req.MFARequired,
		Permissions:  req.Permissions,
	})
	if err != nil {
		log.Error("session create failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	log.Info("session created",
		logger.SessionID(sess.ID),
		logger.AccountType(string(sess.AccountType)),
		logger.AccountID(sess.AccountID),
	)
	httperrors.WriteJSON(w, http.StatusCreated, viewOf(sess))
}

// List maneja GET /v1/sessions: las sesiones activas de la cuenta del caller.
func (h *Sessions) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := mw.MustGetSession(ctx)

	active, err := h.svc.Store().ActiveSessions(ctx, current.AccountType, current.AccountID, current.ID)
	if err != nil {
		logger.From(ctx).Error("active sessions lookup failed",
			logger.Op("Sessions.List"), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	httperrors.WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": active,
		"count":    len(active),
	})
}

// Revoke maneja DELETE /v1/sessions/{id}. Sólo el dueño puede revocar.
func (h *Sessions) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := mw.MustGetSession(ctx)

	targetID := chi.URLParam(r, "id")
	if targetID == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("falta el id de sesión"))
		return
	}

	if err := h.svc.RevokeSession(ctx, current, targetID); err != nil {
		if errors.Is(err, session.ErrNotOwner) {
			httperrors.WriteError(w, httperrors.ErrNotSessionOwner)
			return
		}
		logger.From(ctx).Error("session revoke failed",
			logger.Op("Sessions.Revoke"), logger.SessionID(targetID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeAll maneja POST /v1/sessions/revoke-all: revoca todas las sesiones
// de la cuenta menos la actual.
func (h *Sessions) RevokeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := mw.MustGetSession(ctx)

	count, err := h.svc.RevokeAllOthers(ctx, current)
	if err != nil {
		logger.From(ctx).Error("revoke all failed",
			logger.Op("Sessions.RevokeAll"), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	httperrors.WriteJSON(w, http.StatusOK, map[string]any{"revoked": count})
}

// VerifyMFA maneja POST /v1/sessions/mfa/verify. La ruta usa
// RequireSessionAllowMFAPending: sin sesión no hay nada que verificar.
func (h *Sessions) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := mw.MustGetSession(ctx)

	sess, err := h.svc.MarkMFAVerified(ctx, current.ID)
	if err != nil {
		logger.From(ctx).Error("mfa verify failed",
			logger.Op("Sessions.VerifyMFA"), logger.SessionID(current.ID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	if sess == nil {
		httperrors.WriteError(w, httperrors.ErrNoSession)
		return
	}

	httperrors.WriteJSON(w, http.StatusOK, viewOf(sess))
}

// Logout maneja POST /v1/logout. Idempotente: limpia el cookie aunque la
// sesión ya no exista, por eso no pasa por RequireSession.
func (h *Sessions) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var id string
	if c, err := r.Cookie(h.svc.CookieName()); err == nil {
		id = c.Value
	}

	// El tipo de cuenta sale de la sesión si todavía existe; si no, se
	// limpia el cookie con el scope por defecto.
	t := session.AccountUser
	if id != "" {
		if sess, err := h.svc.Store().Get(ctx, id); err == nil && sess != nil {
			t = sess.AccountType
		}
	}

	if err := h.svc.DestroySession(ctx, w, t, id); err != nil {
		logger.From(ctx).Error("logout failed", logger.Op("Sessions.Logout"), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

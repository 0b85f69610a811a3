// Package auth implementa el credential verifier híbrido: bearer token
// (delegado a un TokenVerifier inyectado) con fallback a API key + tenant
// header contra un allow-list cacheado.
//
// La precedencia es fija: un request que presenta bearer válido Y API key se
// atribuye al tenant del bearer. El rechazo se modela como error tipado
// (ErrNoCredentials / ErrInvalidCredential), no como excepción de transporte.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dropDatabas3/trustgate/internal/metrics"
	"github.com/dropDatabas3/trustgate/internal/observability/logger"
	"github.com/dropDatabas3/trustgate/internal/security/vault"
)

// Headers consumidos.
const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-Api-Key"
	HeaderTenantID      = "X-Tenant-Id"

	bearerPrefix = "bearer "
)

// Method cómo se autenticó el request.
type Method string

const (
	MethodBearer Method = "bearer"
	MethodAPIKey Method = "api_key"
)

var (
	// ErrNoCredentials no se presentó ninguna credencial.
	ErrNoCredentials = errors.New("auth: no credentials presented")

	// ErrInvalidCredential se presentó una credencial pero fue rechazada.
	ErrInvalidCredential = errors.New("auth: credential rejected")

	// ErrMissingTenant bearer válido pero sin claim de tenant. Rechazo
	// terminal: no habilita el fallback a API key.
	ErrMissingTenant = fmt.Errorf("%w: token missing tenant claim", ErrInvalidCredential)
)

// Identity principal autenticado resuelto para el request.
type Identity struct {
	Method   Method
	Subject  string // account id (bearer) o "api-client" (API key)
	Email    string
	TenantID string
	Role     string

	// Claims sólo para MethodBearer.
	Claims *Claims
}

// Verifier decide por request entre bearer y API key.
type Verifier struct {
	tokens TokenVerifier
	keys   *KeyCache
}

// NewVerifier crea el verifier híbrido.
func NewVerifier(tokens TokenVerifier, keys *KeyCache) *Verifier {
	return &Verifier{tokens: tokens, keys: keys}
}

// Verify resuelve la identidad del request.
//
// Intenta bearer primero; si falla o está ausente cae a modo API key (key +
// tenant header obligatorios). Sin nada presentado retorna ErrNoCredentials;
// con algo presentado pero rechazado, ErrInvalidCredential. Nunca degrada un
// rechazo a "no autenticado" silencioso.
func (v *Verifier) Verify(ctx context.Context, r *http.Request) (*Identity, error) {
	log := logger.From(ctx).With(logger.Component("auth.verifier"))

	bearerPresented := false
	if raw := bearerToken(r); raw != "" {
		bearerPresented = true

		claims, err := v.tokens.Verify(ctx, raw)
		if err == nil {
			if claims.TenantID == "" {
				metrics.AuthDecisions.WithLabelValues(string(MethodBearer), "rejected").Inc()
				return nil, ErrMissingTenant
			}
			metrics.AuthDecisions.WithLabelValues(string(MethodBearer), "ok").Inc()
			return &Identity{
				Method:   MethodBearer,
				Subject:  claims.Subject,
				Email:    claims.Email,
				TenantID: claims.TenantID,
				Role:     claims.Role,
				Claims:   claims,
			}, nil
		}
		log.Debug("bearer verification failed, trying api key", logger.Err(err))
	}

	key := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	tenant := strings.TrimSpace(r.Header.Get(HeaderTenantID))

	if key != "" && tenant != "" {
		digest, err := vault.Hash(key, vault.SHA256)
		if err != nil {
			return nil, err
		}
		ok, err := v.keys.Contains(ctx, digest)
		if err != nil {
			return nil, err
		}
		if ok {
			metrics.AuthDecisions.WithLabelValues(string(MethodAPIKey), "ok").Inc()
			return &Identity{
				Method:   MethodAPIKey,
				Subject:  "api-client",
				TenantID: tenant,
			}, nil
		}
	}

	if !bearerPresented && key == "" {
		metrics.AuthDecisions.WithLabelValues("none", "rejected").Inc()
		return nil, ErrNoCredentials
	}
	metrics.AuthDecisions.WithLabelValues(presentedMethod(bearerPresented), "rejected").Inc()
	return nil, ErrInvalidCredential
}

func presentedMethod(bearer bool) string {
	if bearer {
		return string(MethodBearer)
	}
	return string(MethodAPIKey)
}

func bearerToken(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get(HeaderAuthorization))
	if ah == "" || !strings.HasPrefix(strings.ToLower(ah), bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(ah[len(bearerPrefix):])
}

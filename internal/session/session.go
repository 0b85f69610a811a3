// Package session implementa la capa de sesiones server-side del trust layer:
// registros durables con TTL en el cache compartido, índice por cuenta,
// binding a device fingerprint y gating de MFA.
package session

import (
	"time"
)

// AccountType clasifica la cuenta dueña de la sesión. Cada tipo tiene su
// propia política de TTL y scope de cookie.
type AccountType string

const (
	AccountUser     AccountType = "user"
	AccountOperator AccountType = "operator"
	AccountAdmin    AccountType = "admin"
)

// IsValid reporta si el tipo de cuenta es conocido.
func (t AccountType) IsValid() bool {
	switch t {
	case AccountUser, AccountOperator, AccountAdmin:
		return true
	}
	return false
}

// Policy política de lifecycle por tipo de cuenta.
type Policy struct {
	// TTL vida total de la sesión desde create/refresh.
	TTL time.Duration

	// RefreshThreshold si falta menos que esto para expirar, conviene refrescar.
	RefreshThreshold time.Duration

	// CookiePath scope del cookie (más angosto para cuentas privilegiadas).
	CookiePath string
}

// PolicySet mapea tipo de cuenta a política.
type PolicySet map[AccountType]Policy

// DefaultPolicies valores de producción; la config puede overridearlos.
func DefaultPolicies() PolicySet {
	return PolicySet{
		AccountUser:     {TTL: 24 * time.Hour, RefreshThreshold: 2 * time.Hour, CookiePath: "/"},
		AccountOperator: {TTL: 12 * time.Hour, RefreshThreshold: time.Hour, CookiePath: "/ops"},
		AccountAdmin:    {TTL: 8 * time.Hour, RefreshThreshold: 30 * time.Minute, CookiePath: "/admin"},
	}
}

// For retorna la política del tipo, con fallback a la de user.
func (p PolicySet) For(t AccountType) Policy {
	if pol, ok := p[t]; ok {
		return pol
	}
	return p[AccountUser]
}

// IndexTTLSkew margen extra del TTL del índice sobre el de la sesión, para
// tolerar clock skew entre instancias.
const IndexTTLSkew = 5 * time.Minute

// Session es el binding de un browser/device autenticado. Los tokens upstream
// se guardan siempre como envelopes del vault, nunca en claro.
type Session struct {
	ID          string      `json:"id"`
	AccountType AccountType `json:"account_type"`
	AccountID   string      `json:"account_id"`
	Email       string      `json:"email"`

	AccessTokenCipher  string `json:"access_token_cipher"`
	RefreshTokenCipher string `json:"refresh_token_cipher"`

	DeviceFingerprint string `json:"device_fingerprint"`

	MFARequired bool `json:"mfa_required"`
	MFAVerified bool `json:"mfa_verified"`

	Permissions []string `json:"permissions,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Expired reporta si la sesión ya venció al momento now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Metadata registro lateral opcional para la lista de "sesiones activas".
// Nunca participa en decisiones de auth.
type Metadata struct {
	UserAgent string `json:"user_agent,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	Device    string `json:"device,omitempty"`
}

// ActiveSession entrada de la lista de sesiones activas de una cuenta.
type ActiveSession struct {
	ID             string    `json:"id"`
	UserAgent      string    `json:"user_agent,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	Device         string    `json:"device,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IsCurrent      bool      `json:"is_current"`
}

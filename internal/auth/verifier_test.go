package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("shared-hs256-secret-for-tests")

func signToken(t *testing.T, mutate func(*Claims)) string {
	t.Helper()
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acc-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email:    "one@example.com",
		TenantID: "tenant-a",
		Role:     "USER",
		Type:     TokenTypeAccess,
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func testVerifier(keys ...string) *Verifier {
	cache := NewKeyCache(func(ctx context.Context) ([]string, error) {
		return keys, nil
	}, time.Minute)
	return NewVerifier(NewHMACVerifier(testSecret), cache)
}

func newAuthRequest() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
}

func TestVerify_BearerToken(t *testing.T) {
	t.Parallel()
	v := testVerifier()

	r := newAuthRequest()
	r.Header.Set(HeaderAuthorization, "Bearer "+signToken(t, nil))

	id, err := v.Verify(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, MethodBearer, id.Method)
	require.Equal(t, "acc-1", id.Subject)
	require.Equal(t, "tenant-a", id.TenantID)
	require.NotNil(t, id.Claims)
}

func TestVerify_NoCredentials(t *testing.T) {
	t.Parallel()
	v := testVerifier()

	_, err := v.Verify(context.Background(), newAuthRequest())
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestVerify_InvalidBearerWithoutFallbackKey(t *testing.T) {
	t.Parallel()
	v := testVerifier()

	r := newAuthRequest()
	r.Header.Set(HeaderAuthorization, "Bearer not-a-jwt")

	_, err := v.Verify(context.Background(), r)
	require.ErrorIs(t, err, ErrInvalidCredential)
	require.NotErrorIs(t, err, ErrNoCredentials)
}

func TestVerify_ExpiredBearerFallsBackToAPIKey(t *testing.T) {
	t.Parallel()
	v := testVerifier("machine-key-1")

	expired := signToken(t, func(c *Claims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	})

	r := newAuthRequest()
	r.Header.Set(HeaderAuthorization, "Bearer "+expired)
	r.Header.Set(HeaderAPIKey, "machine-key-1")
	r.Header.Set(HeaderTenantID, "tenant-m2m")

	id, err := v.Verify(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, MethodAPIKey, id.Method)
	require.Equal(t, "tenant-m2m", id.TenantID)
}

func TestVerify_MissingTenantClaimIsTerminal(t *testing.T) {
	t.Parallel()
	// Aunque haya una API key válida de fallback, un bearer válido sin
	// tenant es rechazo terminal, no tenant-less ni fallback.
	v := testVerifier("machine-key-1")

	noTenant := signToken(t, func(c *Claims) { c.TenantID = "" })

	r := newAuthRequest()
	r.Header.Set(HeaderAuthorization, "Bearer "+noTenant)
	r.Header.Set(HeaderAPIKey, "machine-key-1")
	r.Header.Set(HeaderTenantID, "tenant-m2m")

	_, err := v.Verify(context.Background(), r)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerify_RefreshTokenRejected(t *testing.T) {
	t.Parallel()
	v := testVerifier()

	refresh := signToken(t, func(c *Claims) { c.Type = TokenTypeRefresh })

	r := newAuthRequest()
	r.Header.Set(HeaderAuthorization, "Bearer "+refresh)

	_, err := v.Verify(context.Background(), r)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerify_APIKeyMode(t *testing.T) {
	t.Parallel()
	v := testVerifier("machine-key-1", "machine-key-2")

	r := newAuthRequest()
	r.Header.Set(HeaderAPIKey, "machine-key-2")
	r.Header.Set(HeaderTenantID, "tenant-b")

	id, err := v.Verify(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, MethodAPIKey, id.Method)
	require.Equal(t, "api-client", id.Subject)
	require.Equal(t, "tenant-b", id.TenantID)
}

func TestVerify_APIKeyRequiresTenantHeader(t *testing.T) {
	t.Parallel()
	v := testVerifier("machine-key-1")

	r := newAuthRequest()
	r.Header.Set(HeaderAPIKey, "machine-key-1")
	// sin X-Tenant-Id

	_, err := v.Verify(context.Background(), r)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerify_UnknownAPIKeyRejected(t *testing.T) {
	t.Parallel()
	v := testVerifier("machine-key-1")

	r := newAuthRequest()
	r.Header.Set(HeaderAPIKey, "guessed-key")
	r.Header.Set(HeaderTenantID, "tenant-b")

	_, err := v.Verify(context.Background(), r)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerify_BearerPrecedenceOverAPIKey(t *testing.T) {
	t.Parallel()
	v := testVerifier("machine-key-1")

	r := newAuthRequest()
	r.Header.Set(HeaderAuthorization, "Bearer "+signToken(t, nil))
	r.Header.Set(HeaderAPIKey, "machine-key-1")
	r.Header.Set(HeaderTenantID, "tenant-m2m")

	id, err := v.Verify(context.Background(), r)
	require.NoError(t, err)

	// Ambas credenciales válidas: gana el tenant del bearer
	require.Equal(t, MethodBearer, id.Method)
	require.Equal(t, "tenant-a", id.TenantID)
}

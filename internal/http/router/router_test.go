package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/trustgate/internal/auth"
	"github.com/dropDatabas3/trustgate/internal/cache"
	"github.com/dropDatabas3/trustgate/internal/security/vault"
	"github.com/dropDatabas3/trustgate/internal/session"
)

const testAPIKey = "test-api-key"

func testHandler(t *testing.T) http.Handler {
	t.Helper()

	key := bytes.Repeat([]byte{0x42}, vault.KeyLength)
	v, err := vault.NewVault(vault.Config{CurrentKey: key, CurrentVersion: 1})
	require.NoError(t, err)

	c := cache.NewMemory("test:")
	store := session.NewStore(c, v, session.DefaultPolicies())
	svc := session.NewService(store, session.CookieConfig{Name: "tg_session"}, nil, nil)

	keys := auth.NewKeyCache(func(context.Context) ([]string, error) {
		return []string{testAPIKey}, nil
	}, time.Minute)
	verifier := auth.NewVerifier(auth.NewHMACVerifier([]byte("test-secret")), keys)

	return New(Deps{
		Verifier: verifier,
		Sessions: svc,
		Cache:    c,
	})
}

// newRequest arma un request con credencial de API key y device estable.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("X-Api-Key", testAPIKey)
	r.Header.Set("X-Tenant-Id", "tenant-a")
	r.Header.Set("User-Agent", "router-test-ua")
	r.Header.Set("Accept-Language", "es-AR")
	return r
}

func createSession(t *testing.T, h http.Handler, mfaRequired bool) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest(http.MethodPost, "/v1/sessions", map[string]any{
		"account_type":  "user",
		"access_token":  "upstream-access",
		"refresh_token": "upstream-refresh",
		"mfa_required":  mfaRequired,
	}))
	require.Equal(t, http.StatusCreated, w.Code)

	for _, c := range w.Result().Cookies() {
		if c.Name == "tg_session" {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestRouter_SessionLifecycle(t *testing.T) {
	t.Parallel()
	h := testHandler(t)

	cookie := createSession(t, h, false)
	require.Equal(t, "/", cookie.Path)
	require.True(t, cookie.HttpOnly)

	// Listar sesiones activas con el cookie emitido
	r := newRequest(http.MethodGet, "/v1/sessions", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)

	// Logout y reuso del cookie: 401 no_session
	r = newRequest(http.MethodPost, "/v1/logout", nil)
	r.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)

	r = newRequest(http.MethodGet, "/v1/sessions", nil)
	r.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "no_session")
}

func TestRouter_CredentialCodes(t *testing.T) {
	t.Parallel()
	h := testHandler(t)

	// Sin credenciales
	r := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "no_credentials")

	// API key desconocida
	r = httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	r.Header.Set("X-Api-Key", "wrong-key")
	r.Header.Set("X-Tenant-Id", "tenant-a")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "invalid_credential")
}

func TestRouter_MFAGating(t *testing.T) {
	t.Parallel()
	h := testHandler(t)

	cookie := createSession(t, h, true)

	// Con MFA pendiente la lista está vedada
	r := newRequest(http.MethodGet, "/v1/sessions", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "insufficient_mfa")

	// Completar el paso de MFA
	r = newRequest(http.MethodPost, "/v1/sessions/mfa/verify", nil)
	r.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	// Ahora la lista responde
	r = newRequest(http.MethodGet, "/v1/sessions", nil)
	r.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_HijackedCookieRejected(t *testing.T) {
	t.Parallel()
	h := testHandler(t)

	cookie := createSession(t, h, false)

	// Mismo cookie desde otro device
	r := newRequest(http.MethodGet, "/v1/sessions", nil)
	r.Header.Set("User-Agent", "attacker-ua")
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "device_mismatch")

	// La sesión fue destruida: el device original tampoco entra
	r = newRequest(http.MethodGet, "/v1/sessions", nil)
	r.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "no_session")
}

func TestRouter_RevokeAllKeepsCurrent(t *testing.T) {
	t.Parallel()
	h := testHandler(t)

	// Dos sesiones del mismo device (misma cuenta api-client/tenant-a)
	first := createSession(t, h, false)
	_ = createSession(t, h, false)

	r := newRequest(http.MethodPost, "/v1/sessions/revoke-all", nil)
	r.AddCookie(first)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Revoked int `json:"revoked"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Revoked)

	// La sesión actual sobrevive
	r = newRequest(http.MethodGet, "/v1/sessions", nil)
	r.AddCookie(first)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()
	h := testHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

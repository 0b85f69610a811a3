package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/trustgate/internal/breaker"
)

func testService(t *testing.T) (*Service, *Store) {
	t.Helper()
	s, _ := testStore(t)
	svc := NewService(s, CookieConfig{Name: "tg_session", Secure: true}, nil, nil)
	return svc, s
}

// newDeviceRequest arma un request con un device estable.
func newDeviceRequest(ua, lang, addr string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	r.Header.Set("User-Agent", ua)
	r.Header.Set("Accept-Language", lang)
	r.RemoteAddr = addr
	return r
}

func TestService_CreateAndValidate(t *testing.T) {
	t.Parallel()
	svc, _ := testService(t)
	ctx := context.Background()

	r := newDeviceRequest("laptop-ua", "es-AR", "10.1.1.1:5555")
	w := httptest.NewRecorder()

	sess, err := svc.CreateSession(ctx, w, r, testInput())
	require.NoError(t, err)

	// Mismo device: OK
	v, err := svc.GetSession(ctx, newDeviceRequest("laptop-ua", "es-AR", "10.1.1.1:7777"), sess.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOK, v.Status)
	require.NotNil(t, v.Session)
}

func TestService_HijackDetectionDestroysSession(t *testing.T) {
	t.Parallel()
	svc, _ := testService(t)
	ctx := context.Background()

	r := newDeviceRequest("laptop-ua", "es-AR", "10.1.1.1:5555")
	sess, err := svc.CreateSession(ctx, httptest.NewRecorder(), r, testInput())
	require.NoError(t, err)

	// Otro device con la cookie original: hijack
	v, err := svc.GetSession(ctx, newDeviceRequest("other-ua", "en-US", "8.8.8.8:1234"), sess.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDeviceMismatch, v.Status)

	// La sesión fue destruida: ni siquiera el device original la recupera
	v, err = svc.GetSession(ctx, r, sess.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNoSession, v.Status)
}

func TestService_MFAGating(t *testing.T) {
	t.Parallel()
	svc, _ := testService(t)
	ctx := context.Background()

	in := testInput()
	in.MFARequired = true
	r := newDeviceRequest("ua", "es", "10.0.0.1:1000")

	sess, err := svc.CreateSession(ctx, httptest.NewRecorder(), r, in)
	require.NoError(t, err)

	// MFA pendiente: resultado válido-pero-insuficiente, no "no session"
	v, err := svc.GetSession(ctx, r, sess.ID)
	require.NoError(t, err)
	require.Equal(t, StatusMFAPending, v.Status)
	require.NotNil(t, v.Session, "caller needs the session to drive the MFA step")

	// Verificar MFA desbloquea
	_, err = svc.MarkMFAVerified(ctx, sess.ID)
	require.NoError(t, err)

	v, err = svc.GetSession(ctx, r, sess.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOK, v.Status)
}

func TestService_RevokeOwnershipCheck(t *testing.T) {
	t.Parallel()
	svc, store := testService(t)
	ctx := context.Background()

	mine, err := store.Create(ctx, testInput(), nil)
	require.NoError(t, err)

	otherIn := testInput()
	otherIn.AccountID = "acc-2"
	theirs, err := store.Create(ctx, otherIn, nil)
	require.NoError(t, err)

	// Revocar la sesión de otra cuenta: rechazado aunque exista
	err = svc.RevokeSession(ctx, mine, theirs.ID)
	require.ErrorIs(t, err, ErrNotOwner)

	got, err := store.Get(ctx, theirs.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "foreign session must survive")

	// Revocar una propia funciona
	second, err := store.Create(ctx, testInput(), nil)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeSession(ctx, mine, second.ID))

	got, err = store.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestService_DestroyIsIdempotent(t *testing.T) {
	t.Parallel()
	svc, _ := testService(t)
	ctx := context.Background()

	r := newDeviceRequest("ua", "es", "10.0.0.1:1000")
	sess, err := svc.CreateSession(ctx, httptest.NewRecorder(), r, testInput())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		require.NoError(t, svc.DestroySession(ctx, w, AccountUser, sess.ID))

		// Siempre limpia el cookie, haya o no registro
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, "tg_session", cookies[0].Name)
		require.Empty(t, cookies[0].Value)
		require.Equal(t, -1, cookies[0].MaxAge)
	}
}

func TestService_CookieScopedByAccountType(t *testing.T) {
	t.Parallel()
	svc, _ := testService(t)
	ctx := context.Background()

	cases := []struct {
		accountType AccountType
		wantPath    string
	}{
		{AccountUser, "/"},
		{AccountOperator, "/ops"},
		{AccountAdmin, "/admin"},
	}
	for _, c := range cases {
		in := testInput()
		in.AccountType = c.accountType
		w := httptest.NewRecorder()
		r := newDeviceRequest("ua", "es", "10.0.0.1:1000")

		sess, err := svc.CreateSession(ctx, w, r, in)
		require.NoError(t, err)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		ck := cookies[0]
		require.Equal(t, sess.ID, ck.Value)
		require.Equal(t, c.wantPath, ck.Path)
		require.True(t, ck.HttpOnly)
		require.True(t, ck.Secure)

		pol := DefaultPolicies()[c.accountType]
		require.Equal(t, int(pol.TTL.Seconds()), ck.MaxAge)
	}
}

func TestService_RevokeAllOthersNotifiesRemote(t *testing.T) {
	t.Parallel()
	s, _ := testStore(t)
	rev := &recordingRevoker{}
	svc := NewService(s, CookieConfig{}, rev, breaker.NewRegistry(breaker.Settings{}))
	ctx := context.Background()

	current, err := s.Create(ctx, testInput(), nil)
	require.NoError(t, err)
	other, err := s.Create(ctx, testInput(), nil)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(ctx, current, other.ID))
	require.Equal(t, []string{other.ID}, rev.revoked)

	count, err := svc.RevokeAllOthers(ctx, current)
	require.NoError(t, err)
	require.Equal(t, 0, count, "only the current session remains")
}

type recordingRevoker struct {
	revoked []string
}

func (r *recordingRevoker) RevokeRemote(ctx context.Context, accountID, sessionID string) error {
	r.revoked = append(r.revoked, sessionID)
	return nil
}

func TestService_GetSessionEmptyID(t *testing.T) {
	t.Parallel()
	svc, _ := testService(t)

	v, err := svc.GetSession(context.Background(), newDeviceRequest("ua", "es", "1.1.1.1:1"), "")
	require.NoError(t, err)
	require.Equal(t, StatusNoSession, v.Status)
}

func TestFingerprint_ForwardedForPreferred(t *testing.T) {
	t.Parallel()

	direct := newDeviceRequest("ua", "es", "10.0.0.1:1000")
	require.Equal(t, "10.0.0.1", ClientAddr(direct))

	fwd := newDeviceRequest("ua", "es", "10.0.0.1:1000")
	fwd.Header.Set("X-Forwarded-For", "203.0.113.9, 70.41.3.18")
	require.Equal(t, "203.0.113.9", ClientAddr(fwd))

	// Fingerprints distintos: la red de origen participa del hash
	require.NotEqual(t, Fingerprint(direct), Fingerprint(fwd))

	// Estable para el mismo device aunque cambie el puerto efímero
	again := newDeviceRequest("ua", "es", "10.0.0.1:2222")
	require.Equal(t, Fingerprint(direct), Fingerprint(again))
}

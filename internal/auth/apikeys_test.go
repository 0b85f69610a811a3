package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/trustgate/internal/security/vault"
)

func digestOf(t *testing.T, key string) string {
	t.Helper()
	d, err := vault.Hash(key, vault.SHA256)
	require.NoError(t, err)
	return d
}

func TestKeyCache_LazyRefreshOnTTL(t *testing.T) {
	t.Parallel()

	calls := 0
	keys := []string{"key-a"}
	kc := NewKeyCache(func(ctx context.Context) ([]string, error) {
		calls++
		return keys, nil
	}, time.Minute)

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	kc.now = func() time.Time { return now }

	ctx := context.Background()

	ok, err := kc.Contains(ctx, digestOf(t, "key-a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, calls)

	// Dentro del TTL: no re-consulta la fuente
	ok, err = kc.Contains(ctx, digestOf(t, "key-a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, calls)

	// Rotación upstream visible recién al vencer el TTL
	keys = []string{"key-b"}
	now = now.Add(2 * time.Minute)

	ok, err = kc.Contains(ctx, digestOf(t, "key-a"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, calls)

	ok, err = kc.Contains(ctx, digestOf(t, "key-b"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestKeyCache_EmptyListIsValid(t *testing.T) {
	t.Parallel()

	kc := NewKeyCache(func(ctx context.Context) ([]string, error) {
		return nil, nil
	}, time.Minute)

	ok, err := kc.Contains(context.Background(), digestOf(t, "anything"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeyCache_SourceErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("config unavailable")
	kc := NewKeyCache(func(ctx context.Context) ([]string, error) {
		return nil, boom
	}, time.Minute)

	_, err := kc.Digests(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestKeyCache_SkipsEmptyKeys(t *testing.T) {
	t.Parallel()

	kc := NewKeyCache(func(ctx context.Context) ([]string, error) {
		return []string{"", "real-key", ""}, nil
	}, time.Minute)

	digests, err := kc.Digests(context.Background())
	require.NoError(t, err)
	require.Len(t, digests, 1)
	require.Equal(t, digestOf(t, "real-key"), digests[0])
}

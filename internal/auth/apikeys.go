package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/trustgate/internal/observability/logger"
	"github.com/dropDatabas3/trustgate/internal/security/vault"
)

// KeySource retorna las API keys configuradas, en claro. Se invoca en cada
// rebuild del allow-list; típicamente lee config/env. Una lista vacía es un
// estado válido (aunque inusable), no un error de arranque.
type KeySource func(ctx context.Context) ([]string, error)

// KeyCache mantiene el allow-list de digests sha256 de API keys aceptadas.
//
// El rebuild es wholesale (sin add/remove incremental) y lazy: se chequea la
// antigüedad al inicio de cada request, no con un timer de fondo. Requests
// concurrentes coalescen el rebuild via singleflight; si igual corren dos,
// last-write-wins es aceptable porque el resultado es idempotente.
type KeyCache struct {
	source KeySource
	ttl    time.Duration

	mu          sync.RWMutex
	digests     []string
	refreshedAt time.Time

	sf singleflight.Group

	// now inyectable para tests.
	now func() time.Time
}

// NewKeyCache crea el cache con el TTL dado (default 5min).
func NewKeyCache(source KeySource, ttl time.Duration) *KeyCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &KeyCache{source: source, ttl: ttl, now: time.Now}
}

// Digests retorna el allow-list vigente, refrescándolo si está vencido.
func (k *KeyCache) Digests(ctx context.Context) ([]string, error) {
	k.mu.RLock()
	fresh := !k.refreshedAt.IsZero() && k.now().Sub(k.refreshedAt) < k.ttl
	digests := k.digests
	k.mu.RUnlock()

	if fresh {
		return digests, nil
	}

	v, err, _ := k.sf.Do("refresh", func() (any, error) {
		return k.rebuild(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (k *KeyCache) rebuild(ctx context.Context) ([]string, error) {
	keys, err := k.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: api key source: %w", err)
	}

	digests := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		d, err := vault.Hash(key, vault.SHA256)
		if err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}

	k.mu.Lock()
	k.digests = digests
	k.refreshedAt = k.now()
	k.mu.Unlock()

	logger.From(ctx).Debug("api key allow-list rebuilt",
		logger.Component("auth.keycache"), logger.Count(len(digests)))
	return digests, nil
}

// Contains chequea el digest contra todo el allow-list sin cortar en el
// primer match estructural: trabajo total constante por request para no
// filtrar por timing cuál candidato matcheó.
func (k *KeyCache) Contains(ctx context.Context, keyDigest string) (bool, error) {
	digests, err := k.Digests(ctx)
	if err != nil {
		return false, err
	}

	match := false
	for _, d := range digests {
		if vault.SecureCompare(keyDigest, d) {
			match = true
		}
	}
	return match, nil
}

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dropDatabas3/trustgate/internal/cache"
	"github.com/dropDatabas3/trustgate/internal/observability/logger"
	"github.com/dropDatabas3/trustgate/internal/security/vault"
)

const (
	keySession  = "sess:"
	keyMetadata = "sess:meta:"
	keyIndex    = "sess:idx:"

	// sessionIDBytes tamaño del ID opaco (base64url).
	sessionIDBytes = 32
)

// Store es el CRUD con TTL de sesiones sobre el cache compartido.
//
// Create/Delete tocan tres keys (sesión, metadata, índice) como escrituras
// independientes best-effort, no como transacción: un crash entre escrituras
// puede dejar una entrada de índice huérfana, que se poda lazy en
// ActiveSessions. Gap documentado, no se "arregla" en silencio.
type Store struct {
	cache    cache.Client
	vault    *vault.Vault
	policies PolicySet

	// now inyectable para tests de expiración.
	now func() time.Time
}

// NewStore crea un Store.
func NewStore(c cache.Client, v *vault.Vault, policies PolicySet) *Store {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Store{cache: c, vault: v, policies: policies, now: time.Now}
}

// CreateInput datos para crear una sesión.
type CreateInput struct {
	AccountType  AccountType
	AccountID    string
	Email        string
	AccessToken  string
	RefreshToken string
	Fingerprint  string
	MFARequired  bool
	Permissions  []string
}

// Create genera el ID, cifra ambos tokens, escribe sesión + índice y
// opcionalmente metadata. Retorna la sesión persistida.
func (s *Store) Create(ctx context.Context, in CreateInput, meta *Metadata) (*Session, error) {
	if !in.AccountType.IsValid() {
		return nil, fmt.Errorf("session: invalid account type %q", in.AccountType)
	}
	if in.AccountID == "" {
		return nil, fmt.Errorf("session: account id required")
	}

	id, err := vault.GenerateToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("session: generate id: %w", err)
	}

	accessCT, err := s.vault.Encrypt(in.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("session: encrypt access token: %w", err)
	}
	refreshCT, err := s.vault.Encrypt(in.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("session: encrypt refresh token: %w", err)
	}

	now := s.now().UTC()
	pol := s.policies.For(in.AccountType)

	sess := &Session{
		ID:                 id,
		AccountType:        in.AccountType,
		AccountID:          in.AccountID,
		Email:              in.Email,
		AccessTokenCipher:  accessCT,
		RefreshTokenCipher: refreshCT,
		DeviceFingerprint:  in.Fingerprint,
		MFARequired:        in.MFARequired,
		Permissions:        in.Permissions,
		CreatedAt:          now,
		ExpiresAt:          now.Add(pol.TTL),
		LastActivityAt:     now,
	}

	// Tres escrituras best-effort: sesión, índice, metadata.
	if err := s.writeSession(ctx, sess, pol.TTL); err != nil {
		return nil, err
	}
	if err := s.indexAdd(ctx, sess.AccountType, sess.AccountID, id, pol.TTL+IndexTTLSkew); err != nil {
		return nil, err
	}
	if meta != nil {
		if err := s.writeMetadata(ctx, id, meta, pol.TTL); err != nil {
			// La sesión ya es usable; metadata es sólo informativa.
			logger.From(ctx).Warn("session metadata write failed",
				logger.Component("session.store"), logger.Err(err))
		}
	}

	return sess, nil
}

// Get retorna la sesión o nil si no existe. Expiración lazy: si ya venció se
// borra acá y se retorna nil, sin confiar en el timing de evicción del cache.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.cache.Get(ctx, keySession+id)
	if err == cache.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("session: corrupt record %q: %w", id, err)
	}

	if sess.Expired(s.now()) {
		_, _ = s.Delete(ctx, id)
		return nil, nil
	}
	return &sess, nil
}

// Touch actualiza lastActivityAt re-escribiendo con el TTL restante; nunca
// extiende la expiración.
func (s *Store) Touch(ctx context.Context, id string) (bool, error) {
	sess, err := s.Get(ctx, id)
	if err != nil || sess == nil {
		return false, err
	}

	sess.LastActivityAt = s.now().UTC()
	remaining := sess.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return false, nil
	}
	if err := s.writeSession(ctx, sess, remaining); err != nil {
		return false, err
	}
	return true, nil
}

// Refresh rota los tokens cifrados y resetea el TTL desde ahora.
func (s *Store) Refresh(ctx context.Context, id, accessToken, refreshToken string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil || sess == nil {
		return nil, err
	}

	accessCT, err := s.vault.Encrypt(accessToken)
	if err != nil {
		return nil, fmt.Errorf("session: encrypt access token: %w", err)
	}
	refreshCT, err := s.vault.Encrypt(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("session: encrypt refresh token: %w", err)
	}

	now := s.now().UTC()
	pol := s.policies.For(sess.AccountType)

	sess.AccessTokenCipher = accessCT
	sess.RefreshTokenCipher = refreshCT
	sess.ExpiresAt = now.Add(pol.TTL)
	sess.LastActivityAt = now

	if err := s.writeSession(ctx, sess, pol.TTL); err != nil {
		return nil, err
	}
	// Renovar también el índice para que no venza antes que la sesión.
	if err := s.indexAdd(ctx, sess.AccountType, sess.AccountID, id, pol.TTL+IndexTTLSkew); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete borra sesión + metadata + entrada de índice. Retorna si había algo.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	raw, err := s.cache.Get(ctx, keySession+id)
	found := err == nil

	_ = s.cache.Delete(ctx, keySession+id)
	_ = s.cache.Delete(ctx, keyMetadata+id)

	if found {
		var sess Session
		if json.Unmarshal([]byte(raw), &sess) == nil {
			if err := s.indexRemove(ctx, sess.AccountType, sess.AccountID, id); err != nil {
				logger.From(ctx).Warn("session index cleanup failed",
					logger.Component("session.store"), logger.Err(err))
			}
		}
	}
	return found, nil
}

// NeedsRefresh reporta si a la sesión le queda menos vida que el umbral de
// refresh de su tipo de cuenta.
func (s *Store) NeedsRefresh(ctx context.Context, id string) (bool, error) {
	sess, err := s.Get(ctx, id)
	if err != nil || sess == nil {
		return false, err
	}
	pol := s.policies.For(sess.AccountType)
	return sess.ExpiresAt.Sub(s.now()) < pol.RefreshThreshold, nil
}

// Tokens descifra el par de tokens de una sesión para presentarlos upstream.
func (s *Store) Tokens(sess *Session) (access, refresh string, err error) {
	access, err = s.vault.Decrypt(sess.AccessTokenCipher)
	if err != nil {
		return "", "", fmt.Errorf("session: decrypt access token: %w", err)
	}
	refresh, err = s.vault.Decrypt(sess.RefreshTokenCipher)
	if err != nil {
		return "", "", fmt.Errorf("session: decrypt refresh token: %w", err)
	}
	return access, refresh, nil
}

// ActiveSessions enumera las sesiones vivas de la cuenta, podando entradas
// stale del índice, marcando la actual y ordenando por actividad descendente.
func (s *Store) ActiveSessions(ctx context.Context, t AccountType, accountID, currentID string) ([]ActiveSession, error) {
	ids, err := s.indexRead(ctx, t, accountID)
	if err != nil {
		return nil, err
	}

	var (
		out   []ActiveSession
		live  []string
		stale bool
	)
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			// Referencia stale: la sesión expiró o fue borrada sin limpiar
			// el índice. Se poda acá.
			stale = true
			continue
		}
		live = append(live, id)

		entry := ActiveSession{
			ID:             id,
			CreatedAt:      sess.CreatedAt,
			LastActivityAt: sess.LastActivityAt,
			IsCurrent:      id == currentID,
		}
		if meta, _ := s.readMetadata(ctx, id); meta != nil {
			entry.UserAgent = meta.UserAgent
			entry.IPAddress = meta.IPAddress
			entry.Device = meta.Device
		}
		out = append(out, entry)
	}

	if stale {
		pol := s.policies.For(t)
		if err := s.indexWrite(ctx, t, accountID, live, pol.TTL+IndexTTLSkew); err != nil {
			logger.From(ctx).Warn("stale index rewrite failed",
				logger.Component("session.store"), logger.Err(err))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

// RevokeAll borra todas las sesiones indexadas de la cuenta salvo exceptID.
// Retorna cuántas revocó.
func (s *Store) RevokeAll(ctx context.Context, t AccountType, accountID, exceptID string) (int, error) {
	ids, err := s.indexRead(ctx, t, accountID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		found, err := s.Delete(ctx, id)
		if err != nil {
			return count, err
		}
		if found {
			count++
		}
	}
	return count, nil
}

// --- persistencia interna ---

func (s *Store) writeSession(ctx context.Context, sess *Session, ttl time.Duration) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.cache.Set(ctx, keySession+sess.ID, string(b), ttl); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

func (s *Store) writeMetadata(ctx context.Context, id string, meta *Metadata, ttl time.Duration) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, keyMetadata+id, string(b), ttl)
}

func (s *Store) readMetadata(ctx context.Context, id string) (*Metadata, error) {
	raw, err := s.cache.Get(ctx, keyMetadata+id)
	if err != nil {
		if err == cache.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, nil
	}
	return &m, nil
}

func indexKey(t AccountType, accountID string) string {
	return keyIndex + string(t) + ":" + accountID
}

func (s *Store) indexRead(ctx context.Context, t AccountType, accountID string) ([]string, error) {
	raw, err := s.cache.Get(ctx, indexKey(t, accountID))
	if err == cache.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: index read: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("session: corrupt index: %w", err)
	}
	return ids, nil
}

func (s *Store) indexWrite(ctx context.Context, t AccountType, accountID string, ids []string, ttl time.Duration) error {
	if len(ids) == 0 {
		return s.cache.Delete(ctx, indexKey(t, accountID))
	}
	b, _ := json.Marshal(ids)
	return s.cache.Set(ctx, indexKey(t, accountID), string(b), ttl)
}

func (s *Store) indexAdd(ctx context.Context, t AccountType, accountID, id string, ttl time.Duration) error {
	ids, err := s.indexRead(ctx, t, accountID)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return s.indexWrite(ctx, t, accountID, ids, ttl)
		}
	}
	return s.indexWrite(ctx, t, accountID, append(ids, id), ttl)
}

func (s *Store) indexRemove(ctx context.Context, t AccountType, accountID, id string) error {
	ids, err := s.indexRead(ctx, t, accountID)
	if err != nil || len(ids) == 0 {
		return err
	}
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	ttl, err := s.cache.TTL(ctx, indexKey(t, accountID))
	if err != nil || ttl <= 0 {
		ttl = s.policies.For(t).TTL + IndexTTLSkew
	}
	return s.indexWrite(ctx, t, accountID, out, ttl)
}

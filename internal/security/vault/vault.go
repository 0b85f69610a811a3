// Package vault implementa el cifrado simétrico versionado del trust layer.
//
// Formato de ciphertext: "v{version}:{nonce_b64}:{tag_b64}:{body_b64}".
// Un formato legacy de 3 campos "{nonce}:{tag}:{body}" (sin prefijo de
// versión) se acepta sólo en lectura, asumiendo la clave actual; Encrypt
// nunca lo produce.
//
// El vault mantiene a lo sumo dos claves vivas: la actual (cifra y descifra)
// y, durante una rotación, la anterior (descifra solamente). Es una instancia
// construida con NewVault e inyectada; no hay estado a nivel de paquete.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const (
	// KeyLength es el tamaño requerido de clave (AES-256).
	KeyLength = 32

	nonceSizeGCM = 12 // 96 bits, recomendado para GCM
	tagSizeGCM   = 16

	sep = ":"
)

var (
	// ErrMalformedCiphertext indica un ciphertext con formato inválido
	// (cantidad de campos, base64 corrupto, prefijo de versión ilegible).
	ErrMalformedCiphertext = errors.New("vault: malformed ciphertext")

	// ErrTamperDetected indica que el tag de autenticación GCM no verificó.
	// Nunca se retorna plaintext parcial o corrupto.
	ErrTamperDetected = errors.New("vault: ciphertext authentication failed")

	// ErrUnknownKeyVersion indica una versión de clave que el vault no retiene.
	ErrUnknownKeyVersion = errors.New("vault: unknown key version")

	// ErrInvalidKey indica material de clave con longitud incorrecta.
	ErrInvalidKey = errors.New("vault: key must be 32 bytes")
)

// Vault cifra y descifra con claves AES-256-GCM versionadas.
type Vault struct {
	mu      sync.RWMutex
	keys    map[int][]byte // version -> clave; a lo sumo {current, previous}
	current int
}

// Config material de claves para construir un Vault.
type Config struct {
	// CurrentKey clave activa (cifra + descifra). Requerida, 32 bytes.
	CurrentKey []byte

	// CurrentVersion versión de la clave activa. Debe ser >= 1.
	CurrentVersion int

	// PreviousKey clave anterior (sólo descifra). Opcional, 32 bytes.
	PreviousKey []byte

	// PreviousVersion versión de la clave anterior.
	PreviousVersion int
}

// NewVault construye un Vault validando el material de claves.
func NewVault(cfg Config) (*Vault, error) {
	if len(cfg.CurrentKey) != KeyLength {
		return nil, ErrInvalidKey
	}
	if cfg.CurrentVersion < 1 {
		return nil, fmt.Errorf("vault: current key version must be >= 1, got %d", cfg.CurrentVersion)
	}

	keys := map[int][]byte{
		cfg.CurrentVersion: append([]byte(nil), cfg.CurrentKey...),
	}

	if cfg.PreviousKey != nil {
		if len(cfg.PreviousKey) != KeyLength {
			return nil, ErrInvalidKey
		}
		if cfg.PreviousVersion >= cfg.CurrentVersion || cfg.PreviousVersion < 1 {
			return nil, fmt.Errorf("vault: previous version %d must be >= 1 and < current %d",
				cfg.PreviousVersion, cfg.CurrentVersion)
		}
		keys[cfg.PreviousVersion] = append([]byte(nil), cfg.PreviousKey...)
	}

	return &Vault{keys: keys, current: cfg.CurrentVersion}, nil
}

// CurrentVersion retorna la versión de la clave activa.
func (v *Vault) CurrentVersion() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Rotate publica una nueva clave activa y degrada la actual a "previous"
// (sólo descifrado). La clave previous anterior se descarta: el operador
// debe correr ReEncrypt sobre los datos antes de rotar de nuevo.
func (v *Vault) Rotate(version int, key []byte) error {
	if len(key) != KeyLength {
		return ErrInvalidKey
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if version <= v.current {
		return fmt.Errorf("vault: rotation version %d must be greater than current %d", version, v.current)
	}

	prev := v.keys[v.current]
	v.keys = map[int][]byte{
		v.current: prev,
		version:   append([]byte(nil), key...),
	}
	v.current = version
	return nil
}

// Encrypt cifra plaintext bajo la clave actual con un nonce fresco.
// Dos llamadas con el mismo plaintext producen ciphertexts distintos.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	v.mu.RLock()
	version := v.current
	key := v.keys[version]
	v.mu.RUnlock()

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: nonce random: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	body := sealed[:len(sealed)-tagSizeGCM]
	tag := sealed[len(sealed)-tagSizeGCM:]

	return fmt.Sprintf("v%d%s%s%s%s%s%s",
		version, sep,
		base64.StdEncoding.EncodeToString(nonce), sep,
		base64.StdEncoding.EncodeToString(tag), sep,
		base64.StdEncoding.EncodeToString(body),
	), nil
}

// Decrypt descifra un ciphertext versionado (4 campos) o legacy (3 campos,
// clave actual implícita). Un tag que no verifica es ErrTamperDetected.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	version, nonce, tag, body, err := v.parse(ciphertext)
	if err != nil {
		return "", err
	}

	v.mu.RLock()
	key, ok := v.keys[version]
	v.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: v%d", ErrUnknownKeyVersion, version)
	}

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	sealed := append(append([]byte(nil), body...), tag...)
	pt, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTamperDetected, err)
	}
	return string(pt), nil
}

// NeedsReEncryption indica si el ciphertext no está bajo la clave actual.
// El formato legacy siempre necesita migración (para ganar el prefijo v{n}).
func (v *Vault) NeedsReEncryption(ciphertext string) bool {
	parts := strings.Split(ciphertext, sep)
	switch len(parts) {
	case 3:
		return true
	case 4:
		version, err := parseVersion(parts[0])
		if err != nil {
			return false
		}
		return version != v.CurrentVersion()
	default:
		return false
	}
}

// ReEncrypt migra un ciphertext a la clave actual. Si ya está en la versión
// actual retorna ("", false, nil) sin tocar nada.
func (v *Vault) ReEncrypt(ciphertext string) (string, bool, error) {
	if !v.NeedsReEncryption(ciphertext) {
		// Vigente o irreconocible; en el segundo caso Decrypt fallará
		// donde corresponda.
		return "", false, nil
	}

	pt, err := v.Decrypt(ciphertext)
	if err != nil {
		return "", false, err
	}
	ct, err := v.Encrypt(pt)
	if err != nil {
		return "", false, err
	}
	return ct, true, nil
}

// parse separa el ciphertext en sus campos, resolviendo la versión.
func (v *Vault) parse(ciphertext string) (version int, nonce, tag, body []byte, err error) {
	parts := strings.Split(ciphertext, sep)

	var b64 [3]string
	switch len(parts) {
	case 4:
		version, err = parseVersion(parts[0])
		if err != nil {
			return 0, nil, nil, nil, err
		}
		copy(b64[:], parts[1:])
	case 3:
		// Legacy: sin prefijo, clave actual implícita.
		version = v.CurrentVersion()
		copy(b64[:], parts)
	default:
		return 0, nil, nil, nil, fmt.Errorf("%w: expected 3 or 4 fields, got %d", ErrMalformedCiphertext, len(parts))
	}

	nonce, err = b64Field(b64[0], "nonce")
	if err != nil {
		return 0, nil, nil, nil, err
	}
	tag, err = b64Field(b64[1], "tag")
	if err != nil {
		return 0, nil, nil, nil, err
	}
	body, err = b64Field(b64[2], "body")
	if err != nil {
		return 0, nil, nil, nil, err
	}

	if len(nonce) != nonceSizeGCM {
		return 0, nil, nil, nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrMalformedCiphertext, nonceSizeGCM, len(nonce))
	}
	if len(tag) != tagSizeGCM {
		return 0, nil, nil, nil, fmt.Errorf("%w: tag must be %d bytes, got %d", ErrMalformedCiphertext, tagSizeGCM, len(tag))
	}
	return version, nonce, tag, body, nil
}

func parseVersion(field string) (int, error) {
	if !strings.HasPrefix(field, "v") {
		return 0, fmt.Errorf("%w: missing version prefix", ErrMalformedCiphertext)
	}
	n, err := strconv.Atoi(field[1:])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: bad version %q", ErrMalformedCiphertext, field)
	}
	return n, nil
}

func b64Field(s, name string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedCiphertext, name, err)
	}
	return b, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher.NewGCM: %w", err)
	}
	return aead, nil
}

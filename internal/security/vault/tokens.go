package vault

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
)

// secretBytes produce secretos base32 de 32 caracteres (160 bits).
const secretBytes = 20

// GenerateToken genera un token opaco aleatorio (base64url sin padding).
func GenerateToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateSecret genera un secreto de enrolamiento en base32 sin padding
// (alfabeto RFC 4648, compatible con apps TOTP).
func GenerateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b), nil
}

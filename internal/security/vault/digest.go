package vault

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"
)

// Algorithm identifica un algoritmo de digest soportado.
type Algorithm string

const (
	// SHA256 es el default (256 bits).
	SHA256 Algorithm = "sha256"
	// SHA512 para callers que requieran 512 bits.
	SHA512 Algorithm = "sha512"
	// SHA3_256 (Keccak) para interoperar con sistemas que lo exigen.
	SHA3_256 Algorithm = "sha3-256"
)

func newHash(alg Algorithm) (func() hash.Hash, error) {
	switch alg {
	case SHA256, "":
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	case SHA3_256:
		return sha3.New256, nil
	default:
		return nil, fmt.Errorf("vault: unsupported digest algorithm %q", alg)
	}
}

// Hash calcula el digest de data en hexadecimal.
func Hash(data string, alg Algorithm) (string, error) {
	h, err := newHash(alg)
	if err != nil {
		return "", err
	}
	d := h()
	d.Write([]byte(data))
	return hex.EncodeToString(d.Sum(nil)), nil
}

// HMAC calcula HMAC(data, secret) en hexadecimal.
func HMAC(data string, secret []byte, alg Algorithm) (string, error) {
	h, err := newHash(alg)
	if err != nil {
		return "", err
	}
	m := hmac.New(h, secret)
	m.Write([]byte(data))
	return hex.EncodeToString(m.Sum(nil)), nil
}

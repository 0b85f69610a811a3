package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distingue access de refresh en el claim "type".
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims payload del bearer token emitido por el auth service upstream.
// El claim de tenant ("tid") es obligatorio para autenticar: un token
// estructuralmente válido sin tenant se rechaza, nunca se trata como
// tenant-less.
type Claims struct {
	jwt.RegisteredClaims
	Email    string    `json:"email,omitempty"`
	TenantID string    `json:"tid"`
	Role     string    `json:"role,omitempty"`
	Type     TokenType `json:"type"`
}

// TokenVerifier valida firma/expiración/claims de un bearer token. Se inyecta
// para que el verifier híbrido no dependa de un esquema de firma concreto.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

var (
	// ErrTokenInvalid firma o estructura inválida.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenExpired token vencido.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrWrongTokenType un refresh token presentado donde va un access token.
	ErrWrongTokenType = errors.New("auth: wrong token type")
)

// hmacVerifier implementa TokenVerifier con HS256 y secreto compartido.
type hmacVerifier struct {
	secret []byte
}

// NewHMACVerifier crea el TokenVerifier HS256 de producción.
func NewHMACVerifier(secret []byte) TokenVerifier {
	return &hmacVerifier{secret: secret}
}

func (v *hmacVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrTokenInvalid, token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

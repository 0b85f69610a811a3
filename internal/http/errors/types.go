package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/trustgate/internal/breaker"
)

// AppError es el error estándar de la capa HTTP.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa original, para logs, no se expone al cliente
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un AppError.
func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// FromError convierte un error genérico en AppError. Si no lo es, devuelve
// un error interno conservando la causa.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	if errors.Is(err, breaker.ErrOpen) {
		return ErrCircuitOpen.WithCause(err)
	}
	return ErrInternal.WithCause(err)
}

// WithDetail devuelve una COPIA con detalle, para no mutar las variables
// globales base.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause devuelve una COPIA con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

var (
	// 400
	ErrBadRequest  = New(http.StatusBadRequest, "bad_request", "la petición es inválida")
	ErrInvalidJSON = New(http.StatusBadRequest, "invalid_json", "el body no es JSON válido")

	// 401: taxonomy de autenticación. no_credentials y las demás se
	// distinguen para que el cliente sepa si redirigir a login, a MFA o
	// reintentar con otra credencial.
	ErrNoCredentials     = New(http.StatusUnauthorized, "no_credentials", "no se presentó ninguna credencial")
	ErrInvalidCredential = New(http.StatusUnauthorized, "invalid_credential", "la credencial fue rechazada")
	ErrNoSession         = New(http.StatusUnauthorized, "no_session", "no hay sesión activa")
	ErrDeviceMismatch    = New(http.StatusUnauthorized, "device_mismatch", "el dispositivo no coincide con la sesión")

	// 403
	ErrInsufficientMFA = New(http.StatusForbidden, "insufficient_mfa", "la sesión requiere completar el paso de MFA")
	ErrNotSessionOwner = New(http.StatusForbidden, "not_session_owner", "la sesión pertenece a otra cuenta")

	// 404 / 405
	ErrNotFound         = New(http.StatusNotFound, "not_found", "recurso no encontrado")
	ErrMethodNotAllowed = New(http.StatusMethodNotAllowed, "method_not_allowed", "método no permitido")

	// 429
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "rate_limit_exceeded", "demasiados intentos, reintentar más tarde")

	// 5xx
	ErrInternal    = New(http.StatusInternalServerError, "internal_error", "error interno")
	ErrCircuitOpen = New(http.StatusServiceUnavailable, "circuit_open", "dependencia no disponible, llamada rechazada")
)

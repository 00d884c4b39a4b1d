package models

import "errors"

// ErrorKind clasifica las fallas de certificación
type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindRemoteRejected ErrorKind = "remote_rejected"
	ErrorKindIntegrity      ErrorKind = "integrity"
	ErrorKindPersistence    ErrorKind = "persistence"
	// ErrorKindCancelled marca una llamada cortada por la cancelación del
	// llamador; la factura no se reconcilia
	ErrorKindCancelled ErrorKind = "cancelled"
)

// Errores base del pipeline, siempre envueltos con %w
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrPersistence       = errors.New("persistence error")
	ErrNoActiveConfig    = errors.New("no active certification configuration")
	ErrAlreadyCertified  = errors.New("invoice already certified")
	ErrRemoteUnavailable = errors.New("remote service unavailable")
)

// ErrorCode representa el código de error
type ErrorCode string

const (
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrorCodeConflict       ErrorCode = "CONFLICT"
	ErrorCodeBadGateway     ErrorCode = "BAD_GATEWAY"
	ErrorCodeInternal       ErrorCode = "INTERNAL"
)

// ErrorDetail representa un detalle específico del error
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// ErrorResponse representa la respuesta de error estandarizada
type ErrorResponse struct {
	Error ErrorInfo `json:"error"`
}

// ErrorInfo representa la información del error
type ErrorInfo struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Kind    ErrorKind     `json:"kind,omitempty"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// NewErrorResponse crea una nueva respuesta de error
func NewErrorResponse(code ErrorCode, message string) ErrorResponse {
	return ErrorResponse{
		Error: ErrorInfo{
			Code:    string(code),
			Message: message,
		},
	}
}

// NewValidationError crea un error de validación con detalles
func NewValidationError(message string, details []ErrorDetail) ErrorResponse {
	return ErrorResponse{
		Error: ErrorInfo{
			Code:    string(ErrorCodeInvalidRequest),
			Message: message,
			Kind:    ErrorKindValidation,
			Details: details,
		},
	}
}

// NewConflictError crea un error de conflicto (factura ya certificada)
func NewConflictError(message string) ErrorResponse {
	return NewErrorResponse(ErrorCodeConflict, message)
}

// NewUnauthorizedError crea un error de autenticación
func NewUnauthorizedError(message string) ErrorResponse {
	return NewErrorResponse(ErrorCodeUnauthorized, message)
}

// NewNotFoundError crea un error de recurso no encontrado
func NewNotFoundError(message string) ErrorResponse {
	return NewErrorResponse(ErrorCodeNotFound, message)
}

// NewBadGatewayError crea un error cuando el servicio remoto falla
func NewBadGatewayError(message string, kind ErrorKind) ErrorResponse {
	resp := NewErrorResponse(ErrorCodeBadGateway, message)
	resp.Error.Kind = kind
	return resp
}

// NewInternalError crea un error interno del servidor
func NewInternalError(message string) ErrorResponse {
	return NewErrorResponse(ErrorCodeInternal, message)
}

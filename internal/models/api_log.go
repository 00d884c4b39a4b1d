package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationType representa el tipo de operación registrada en el log
type OperationType string

const (
	OperationCertification OperationType = "Certification"
	OperationVerification  OperationType = "Verification"
	OperationDownload      OperationType = "Download"
)

// APILogEntry es un registro de auditoría de solo-inserción, uno por intento
type APILogEntry struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	InvoiceID    *uuid.UUID    `json:"invoice_id,omitempty" db:"invoice_id"`
	Operation    OperationType `json:"operation" db:"operation"`
	Endpoint     string        `json:"endpoint" db:"endpoint"`
	Method       string        `json:"method" db:"method"`
	RequestBody  string        `json:"request_body,omitempty" db:"request_body"`
	ResponseBody string        `json:"response_body,omitempty" db:"response_body"`
	HTTPStatus   int           `json:"http_status" db:"http_status"`
	ElapsedMs    int64         `json:"elapsed_ms" db:"elapsed_ms"`
	Success      bool          `json:"success" db:"success"`
	ErrorKind    ErrorKind     `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage string        `json:"error_message,omitempty" db:"error_message"`
	Attempt      int           `json:"attempt" db:"attempt"`
	Environment  Environment   `json:"environment" db:"environment"`
	Amount       float64       `json:"amount" db:"amount"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

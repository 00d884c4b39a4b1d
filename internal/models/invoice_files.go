package models

import (
	"time"

	"github.com/google/uuid"
)

// CertifiedDocument representa el PDF certificado archivado de una factura
type CertifiedDocument struct {
	ID           uuid.UUID `json:"id" db:"id"`
	InvoiceID    uuid.UUID `json:"invoice_id" db:"invoice_id"`
	FileName     string    `json:"file_name" db:"file_name"`
	PDFSize      int64     `json:"pdf_size" db:"pdf_size"`
	StoragePath  string    `json:"storage_path" db:"storage_path"`
	PublicURL    *string   `json:"public_url,omitempty" db:"public_url"`
	DownloadedAt time.Time `json:"downloaded_at" db:"downloaded_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

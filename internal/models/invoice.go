package models

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceType representa el tipo de factura a certificar
type InvoiceType string

const (
	InvoiceTypeSale   InvoiceType = "sale"
	InvoiceTypeRefund InvoiceType = "refund"
)

// InvoiceStatus representa el estado de certificación de la factura
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusCertified InvoiceStatus = "CERTIFIED"
	InvoiceStatusError     InvoiceStatus = "ERROR"
)

// ProcessingStatus es la etiqueta de procesamiento guardada tras cada intento
const (
	ProcessingStatusCertified = "certified"
	ProcessingStatusFailed    = "failed"
)

// TaxCode representa el código de impuesto de una línea
type TaxCode string

const (
	TaxCodeTVA  TaxCode = "TVA"  // tasa normal 18%
	TaxCodeTVAB TaxCode = "TVAB" // tasa reducida 9%
	TaxCodeTVAC TaxCode = "TVAC" // exonerado convencional
	TaxCodeTVAD TaxCode = "TVAD" // exonerado legal
)

// Invoice representa una factura de venta registrada localmente
type Invoice struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	InvoiceNumber string      `json:"invoice_number" db:"invoice_number"`
	Type          InvoiceType `json:"type" db:"invoice_type"`
	InvoiceDate   time.Time   `json:"invoice_date" db:"invoice_date"`
	ClientID      *uuid.UUID  `json:"client_id,omitempty" db:"client_id"`
	PointOfSale   string      `json:"point_of_sale" db:"point_of_sale"`
	Establishment string      `json:"establishment" db:"establishment"`
	PaymentMethod string      `json:"payment_method" db:"payment_method"`

	// Totales calculados
	Subtotal    float64 `json:"subtotal" db:"subtotal"`
	TaxAmount   float64 `json:"tax_amount" db:"tax_amount"`
	TotalAmount float64 `json:"total_amount" db:"total_amount"`

	// Ciclo de vida
	Status        InvoiceStatus `json:"status" db:"status"`
	RetryCount    int           `json:"retry_count" db:"retry_count"`
	ErrorMessage  string        `json:"error_message,omitempty" db:"error_message"`
	ErrorKind     ErrorKind     `json:"error_kind,omitempty" db:"error_kind"`
	LastAttemptAt *time.Time    `json:"last_attempt_at,omitempty" db:"last_attempt_at"`

	// Datos de certificación
	FiscalReference   string     `json:"fiscal_reference,omitempty" db:"fiscal_reference"`
	VerificationToken string     `json:"verification_token,omitempty" db:"verification_token"`
	QRPayload         string     `json:"qr_payload,omitempty" db:"qr_payload"`
	ProcessingStatus  string     `json:"processing_status,omitempty" db:"processing_status"`
	IntegrityHash     string     `json:"integrity_hash,omitempty" db:"integrity_hash"`
	CompanyNCC        string     `json:"company_ncc,omitempty" db:"company_ncc"`
	StickerBalance    *int       `json:"sticker_balance,omitempty" db:"sticker_balance"`
	Warning           bool       `json:"warning" db:"warning"`
	WarningMessage    string     `json:"warning_message,omitempty" db:"warning_message"`
	ParentReference   string     `json:"parent_reference,omitempty" db:"parent_reference"`
	CertifiedAt       *time.Time `json:"certified_at,omitempty" db:"certified_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Relaciones (populadas en consultas)
	Client *Client       `json:"client,omitempty"`
	Items  []InvoiceItem `json:"items,omitempty"`
}

// IsCertified indica si la factura ya fue certificada
func (i *Invoice) IsCertified() bool {
	return i.Status == InvoiceStatusCertified
}

// InvoiceItem representa una línea de la factura
type InvoiceItem struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	InvoiceID       uuid.UUID   `json:"invoice_id" db:"invoice_id"`
	LineNo          int         `json:"line_no" db:"line_no"`
	Reference       string      `json:"reference,omitempty" db:"reference"`
	Description     string      `json:"description" db:"description"`
	Quantity        float64     `json:"quantity" db:"qty"`
	UnitPrice       float64     `json:"unit_price" db:"unit_price"`
	Discount        float64     `json:"discount" db:"discount"`
	TaxCode         TaxCode     `json:"tax_code" db:"tax_code"`
	TaxRate         float64     `json:"tax_rate" db:"tax_rate"`
	LineTotal       float64     `json:"line_total" db:"line_total"`
	TaxAmount       float64     `json:"tax_amount" db:"tax_amount"`
	MeasurementUnit string      `json:"measurement_unit,omitempty" db:"measurement_unit"`
	CustomTaxes     []CustomTax `json:"custom_taxes,omitempty" db:"custom_taxes"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

// CustomTax representa un impuesto adicional por línea (p. ej. timbre)
type CustomTax struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// PeriodInvoice es la vista resumida usada en reportes por periodo
type PeriodInvoice struct {
	ID              uuid.UUID     `json:"id"`
	InvoiceNumber   string        `json:"invoice_number"`
	InvoiceDate     time.Time     `json:"invoice_date"`
	ClientName      string        `json:"client_name"`
	Status          InvoiceStatus `json:"status"`
	TotalAmount     float64       `json:"total_amount"`
	TaxAmount       float64       `json:"tax_amount"`
	FiscalReference string        `json:"fiscal_reference,omitempty"`
	RetryCount      int           `json:"retry_count"`
}

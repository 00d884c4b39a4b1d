package models

import (
	"time"

	"github.com/google/uuid"
)

// Environment representa el ambiente de la configuración de certificación
type Environment string

const (
	// EnvironmentTest usa el gateway sintético, sin llamadas de red
	EnvironmentTest Environment = "test"
	// EnvironmentSandbox usa el servidor remoto de pruebas
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// CertificationConfig representa la configuración activa del servicio FNE
type CertificationConfig struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	Name             string        `json:"name" db:"name"`
	BaseURL          string        `json:"base_url" db:"base_url"`
	APIKey           string        `json:"-" db:"api_key"`
	Environment      Environment   `json:"environment" db:"environment"`
	Timeout          time.Duration `json:"timeout" db:"timeout_seconds"`
	MaxRetryAttempts int           `json:"max_retry_attempts" db:"max_retry_attempts"`
	RetryDelay       time.Duration `json:"retry_delay" db:"retry_delay_seconds"`
	IsActive         bool          `json:"is_active" db:"is_active"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// IsTestMode indica si la configuración está marcada explícitamente como test
func (c *CertificationConfig) IsTestMode() bool {
	return c != nil && c.Environment == EnvironmentTest
}

// CertificationRequest es el cuerpo enviado a POST /external/invoices/sign
type CertificationRequest struct {
	InvoiceNumber   string              `json:"invoiceNumber"`
	InvoiceType     InvoiceType         `json:"invoiceType"`
	Template        string              `json:"template"`
	Date            string              `json:"date"`
	PointOfSale     string              `json:"pointOfSale"`
	Establishment   string              `json:"establishment"`
	PaymentMethod   string              `json:"paymentMethod"`
	ParentReference string              `json:"parentReference,omitempty"`
	Client          CertificationClient `json:"client"`
	Totals          CertificationTotals `json:"totals"`
	Items           []CertificationItem `json:"items"`
}

// CertificationClient es el bloque de cliente del request externo
type CertificationClient struct {
	Name        string `json:"name"`
	CompanyName string `json:"companyName,omitempty"`
	NCC         string `json:"ncc,omitempty"`
	Address     string `json:"address,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

// CertificationTotals son los totales del request externo
type CertificationTotals struct {
	AmountHT  float64 `json:"amountHT"`
	AmountTVA float64 `json:"amountTVA"`
	AmountTTC float64 `json:"amountTTC"`
}

// CertificationItem es una línea del request externo
type CertificationItem struct {
	Reference       string      `json:"reference,omitempty"`
	Description     string      `json:"description"`
	Quantity        float64     `json:"quantity"`
	UnitPrice       float64     `json:"unitPrice"`
	Discount        float64     `json:"discount,omitempty"`
	Amount          float64     `json:"amount"`
	Taxes           []TaxCode   `json:"taxes"`
	TaxRate         float64     `json:"taxRate"`
	TaxAmount       float64     `json:"taxAmount"`
	MeasurementUnit string      `json:"measurementUnit"`
	CustomTaxes     []CustomTax `json:"customTaxes,omitempty"`
}

// SignResponse es la respuesta cruda del servicio de firma. Todos los campos
// son opcionales porque la API actual y la legada usan nombres distintos.
type SignResponse struct {
	NCC            *string              `json:"ncc,omitempty"`
	CompanyNCC     *string              `json:"companyNcc,omitempty"`
	Reference      *string              `json:"reference,omitempty"`
	FiscalRef      *string              `json:"fiscalReference,omitempty"`
	Token          *string              `json:"token,omitempty"`
	VerifyToken    *string              `json:"verificationToken,omitempty"`
	Warning        *bool                `json:"warning,omitempty"`
	WarningMessage *string              `json:"warningMessage,omitempty"`
	BalanceSticker *int                 `json:"balance_sticker,omitempty"`
	BalanceLegacy  *int                 `json:"balance,omitempty"`
	BalanceFunds   *int                 `json:"balance_funds,omitempty"`
	Invoice        *SignResponseInvoice `json:"invoice,omitempty"`
}

// SignResponseInvoice es el bloque anidado de factura certificada
type SignResponseInvoice struct {
	ID                *string  `json:"id,omitempty"`
	ParentID          *string  `json:"parentId,omitempty"`
	ParentReference   *string  `json:"parentReference,omitempty"`
	Reference         *string  `json:"reference,omitempty"`
	Type              *string  `json:"type,omitempty"`
	Subtype           *string  `json:"subtype,omitempty"`
	Date              *string  `json:"date,omitempty"`
	PaymentMethod     *string  `json:"paymentMethod,omitempty"`
	Amount            *float64 `json:"amount,omitempty"`
	VatAmount         *float64 `json:"vatAmount,omitempty"`
	FiscalStamp       *float64 `json:"fiscalStamp,omitempty"`
	Discount          *float64 `json:"discount,omitempty"`
	ClientNCC         *string  `json:"clientNcc,omitempty"`
	ClientCompanyName *string  `json:"clientCompanyName,omitempty"`
	ClientPhone       *string  `json:"clientPhone,omitempty"`
	ClientEmail       *string  `json:"clientEmail,omitempty"`
}

// CertifiedInvoiceDetail es el detalle resuelto de la factura certificada
type CertifiedInvoiceDetail struct {
	ID                string    `json:"id,omitempty"`
	ParentID          string    `json:"parent_id,omitempty"`
	ParentReference   string    `json:"parent_reference,omitempty"`
	Reference         string    `json:"reference,omitempty"`
	Type              string    `json:"type,omitempty"`
	Subtype           string    `json:"subtype,omitempty"`
	Date              time.Time `json:"date,omitempty"`
	PaymentMethod     string    `json:"payment_method,omitempty"`
	Amount            float64   `json:"amount"`
	VatAmount         float64   `json:"vat_amount"`
	FiscalStamp       float64   `json:"fiscal_stamp"`
	Discount          float64   `json:"discount"`
	ClientNCC         string    `json:"client_ncc,omitempty"`
	ClientCompanyName string    `json:"client_company_name,omitempty"`
	ClientPhone       string    `json:"client_phone,omitempty"`
	ClientEmail       string    `json:"client_email,omitempty"`
}

// CertificationResult es el resultado transitorio de un intento de certificación.
// No se persiste directamente: se pliega en Invoice y en el log de auditoría.
type CertificationResult struct {
	Success         bool                    `json:"success"`
	FiscalReference string                  `json:"fiscal_reference,omitempty"`
	Token           string                  `json:"token,omitempty"`
	CompanyNCC      string                  `json:"company_ncc,omitempty"`
	StickerBalance  *int                    `json:"sticker_balance,omitempty"`
	Warning         bool                    `json:"warning"`
	WarningMessage  string                  `json:"warning_message,omitempty"`
	Invoice         *CertifiedInvoiceDetail `json:"invoice,omitempty"`
	ProcessedAt     time.Time               `json:"processed_at"`
	Elapsed         time.Duration           `json:"elapsed"`
	HTTPStatus      int                     `json:"http_status,omitempty"`
	ErrorKind       ErrorKind               `json:"error_kind,omitempty"`
	ErrorMessage    string                  `json:"error_message,omitempty"`
	Synthetic       bool                    `json:"synthetic"`

	// Respuesta decodificada, sin resolver. El Reconciler la pliega en los campos de arriba.
	Response *SignResponse `json:"-"`

	// Diagnóstico, solo para el log de auditoría
	Endpoint    string      `json:"-"`
	Method      string      `json:"-"`
	RequestBody string      `json:"-"`
	RawResponse string      `json:"-"`
	Environment Environment `json:"-"`
}

// NewFailedResult crea un resultado fallido con su clasificación
func NewFailedResult(kind ErrorKind, message string) *CertificationResult {
	return &CertificationResult{
		Success:      false,
		ErrorKind:    kind,
		ErrorMessage: message,
		ProcessedAt:  time.Now().UTC(),
	}
}

// InvoiceOutcome es el resultado de certificar una factura dentro de un lote
type InvoiceOutcome struct {
	InvoiceID       uuid.UUID     `json:"invoice_id"`
	InvoiceNumber   string        `json:"invoice_number"`
	Success         bool          `json:"success"`
	Status          InvoiceStatus `json:"status"`
	FiscalReference string        `json:"fiscal_reference,omitempty"`
	Token           string        `json:"token,omitempty"`
	Warning         bool          `json:"warning"`
	ErrorKind       ErrorKind     `json:"error_kind,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	PersistError    string        `json:"persist_error,omitempty"`
	ElapsedMs       int64         `json:"elapsed_ms"`
}

// BatchResult agrega el resultado de CertifyPending
type BatchResult struct {
	Total        int              `json:"total"`
	SuccessCount int              `json:"success_count"`
	ErrorCount   int              `json:"error_count"`
	Skipped      int              `json:"skipped"`
	Cancelled    bool             `json:"cancelled"`
	Error        string           `json:"error,omitempty"`
	Results      []InvoiceOutcome `json:"results"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// TokenSource indica de dónde salió la validación del token
type TokenSource string

const (
	TokenSourceNone   TokenSource = "none"
	TokenSourceLocal  TokenSource = "local"
	TokenSourceURL    TokenSource = "url"
	TokenSourceRemote TokenSource = "remote"
)

// TokenValidationResult es el resultado de ValidateToken
type TokenValidationResult struct {
	IsValid         bool        `json:"is_valid"`
	Token           string      `json:"token"`
	TokenURL        string      `json:"token_url,omitempty"`
	Source          TokenSource `json:"source"`
	Message         string      `json:"message,omitempty"`
	InvoiceID       *uuid.UUID  `json:"invoice_id,omitempty"`
	InvoiceNumber   string      `json:"invoice_number,omitempty"`
	FiscalReference string      `json:"fiscal_reference,omitempty"`
	CertifiedAt     *time.Time  `json:"certified_at,omitempty"`
	Amount          float64     `json:"amount,omitempty"`
	TaxAmount       float64     `json:"tax_amount,omitempty"`
	ClientName      string      `json:"client_name,omitempty"`
	CompanyName     string      `json:"company_name,omitempty"`
}

// RemoteVerification es la respuesta de GET /external/invoices/verify/{token}
type RemoteVerification struct {
	Reference   string  `json:"reference"`
	Amount      float64 `json:"amount"`
	VatAmount   float64 `json:"vatAmount"`
	ClientName  string  `json:"clientCompanyName"`
	CompanyName string  `json:"companyName"`
	Date        string  `json:"date"`
}

// DownloadedInvoice es el PDF certificado descargado
type DownloadedInvoice struct {
	InvoiceID       uuid.UUID `json:"invoice_id"`
	InvoiceNumber   string    `json:"invoice_number"`
	FiscalReference string    `json:"fiscal_reference"`
	FileName        string    `json:"file_name"`
	ContentType     string    `json:"content_type"`
	Size            int64     `json:"size"`
	ArchiveURL      *string   `json:"archive_url,omitempty"`
	Data            []byte    `json:"-"`
}

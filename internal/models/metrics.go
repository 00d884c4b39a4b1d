package models

import (
	"time"

	"github.com/google/uuid"
)

// CertificationMetrics resume la actividad de certificación del día
type CertificationMetrics struct {
	Date                      string  `json:"date"`
	AttemptsToday             int     `json:"attempts_today"`
	SuccessfulToday           int     `json:"successful_today"`
	FailedToday               int     `json:"failed_today"`
	SuccessRateToday          float64 `json:"success_rate_today"`
	AverageProcessingTimeMs   float64 `json:"average_processing_time_ms"`
	CertificationsLastHour    int     `json:"certifications_last_hour"`
	TotalAmountCertifiedToday float64 `json:"total_amount_certified_today"`
}

// ActivityItem es una entrada de la actividad reciente
type ActivityItem struct {
	ID          uuid.UUID     `json:"id"`
	InvoiceID   *uuid.UUID    `json:"invoice_id,omitempty"`
	Operation   OperationType `json:"operation"`
	Success     bool          `json:"success"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	Message     string        `json:"message"`
	ElapsedMs   int64         `json:"elapsed_ms"`
	Environment Environment   `json:"environment"`
	OccurredAt  time.Time     `json:"occurred_at"`
}

package services

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func strPtr(s string) *string { return &s }

func testConfig(env models.Environment) *models.CertificationConfig {
	return &models.CertificationConfig{
		ID:               uuid.New(),
		Name:             "default",
		BaseURL:          "https://fne.example.test",
		APIKey:           "secret-key",
		Environment:      env,
		Timeout:          2 * time.Second,
		MaxRetryAttempts: 3,
		RetryDelay:       time.Minute,
		IsActive:         true,
	}
}

func testInvoice(number string, total float64) *models.Invoice {
	return &models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: number,
		Type:          models.InvoiceTypeSale,
		InvoiceDate:   time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		PointOfSale:   "PDV-01",
		Establishment: "Siège",
		PaymentMethod: "Espèces",
		Subtotal:      total / 1.18,
		TaxAmount:     total - total/1.18,
		TotalAmount:   total,
		Status:        models.InvoiceStatusPending,
		Client:        &models.Client{ID: uuid.New(), Name: "Awa Koné"},
		Items: []models.InvoiceItem{
			{Description: "Ciment 50kg", Quantity: 2, UnitPrice: total / 2, TaxCode: models.TaxCodeTVA, TaxRate: 18, LineTotal: total},
		},
	}
}

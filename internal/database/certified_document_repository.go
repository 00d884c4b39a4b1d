package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

// CertifiedDocumentRepository maneja los PDFs certificados archivados
type CertifiedDocumentRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewCertifiedDocumentRepository crea una nueva instancia del repositorio
func NewCertifiedDocumentRepository(db *DB, logger *logrus.Logger) *CertifiedDocumentRepository {
	return &CertifiedDocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert crea o actualiza el documento archivado de una factura
func (r *CertifiedDocumentRepository) Upsert(ctx context.Context, doc *models.CertifiedDocument) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO certified_documents (
			id, invoice_id, file_name, pdf_size, storage_path, public_url, downloaded_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (invoice_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			pdf_size = EXCLUDED.pdf_size,
			storage_path = EXCLUDED.storage_path,
			public_url = EXCLUDED.public_url,
			downloaded_at = EXCLUDED.downloaded_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.InvoiceID, doc.FileName, doc.PDFSize, doc.StoragePath,
		doc.PublicURL, doc.DownloadedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving certified document: %w", err)
	}

	return nil
}

// GetByInvoiceID obtiene el documento archivado de una factura
func (r *CertifiedDocumentRepository) GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*models.CertifiedDocument, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, invoice_id, file_name, pdf_size, storage_path, public_url, downloaded_at, updated_at
		FROM certified_documents
		WHERE invoice_id = $1
	`

	var doc models.CertifiedDocument
	err := r.db.QueryRowContext(ctx, query, invoiceID).Scan(
		&doc.ID, &doc.InvoiceID, &doc.FileName, &doc.PDFSize,
		&doc.StoragePath, &doc.PublicURL, &doc.DownloadedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("certified document for invoice %s: %w", invoiceID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("error querying certified document: %w", err)
	}

	return &doc, nil
}

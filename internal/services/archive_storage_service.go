package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

// ObjectStorage es el bucket donde se archivan los PDFs
type ObjectStorage interface {
	UploadFile(ctx context.Context, key, contentType string, data []byte) (string, error)
	DownloadFile(ctx context.Context, key string) ([]byte, error)
	Bucket() string
}

// DocumentRepository guarda los metadatos de los PDFs archivados
type DocumentRepository interface {
	Upsert(ctx context.Context, doc *models.CertifiedDocument) error
	GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*models.CertifiedDocument, error)
}

// ArchiveStorageService guarda los PDFs certificados en Supabase y sus metadatos en BD local
type ArchiveStorageService struct {
	storage     ObjectStorage
	documents   DocumentRepository
	supabaseURL string
	logger      *logrus.Logger
}

// NewArchiveStorageService crea una nueva instancia del servicio
func NewArchiveStorageService(storage ObjectStorage, documents DocumentRepository, supabaseURL string, logger *logrus.Logger) *ArchiveStorageService {
	return &ArchiveStorageService{
		storage:     storage,
		documents:   documents,
		supabaseURL: strings.TrimRight(supabaseURL, "/"),
		logger:      logger,
	}
}

// archiveKey retorna la ruta del PDF dentro del bucket
func archiveKey(invoiceID uuid.UUID, fileName string) string {
	return fmt.Sprintf("certified/%s/%s", invoiceID, fileName)
}

// StoreCertifiedPDF sube el PDF y registra sus metadatos
func (s *ArchiveStorageService) StoreCertifiedPDF(ctx context.Context, invoiceID uuid.UUID, fileName string, data []byte) (*models.CertifiedDocument, error) {
	key := archiveKey(invoiceID, fileName)

	uploadURL, err := s.storage.UploadFile(ctx, key, "application/pdf", data)
	if err != nil {
		return nil, fmt.Errorf("error uploading certified PDF: %w", err)
	}

	// Con la URL del proyecto se expone la ruta REST pública en lugar de la S3
	publicURL := uploadURL
	if s.supabaseURL != "" {
		publicURL = fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.supabaseURL, s.storage.Bucket(), key)
	}

	now := time.Now().UTC()
	doc := &models.CertifiedDocument{
		ID:           uuid.New(),
		InvoiceID:    invoiceID,
		FileName:     fileName,
		PDFSize:      int64(len(data)),
		StoragePath:  key,
		PublicURL:    &publicURL,
		DownloadedAt: now,
		UpdatedAt:    now,
	}

	if err := s.documents.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("error saving certified document metadata: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_id": invoiceID,
		"key":        key,
		"size":       doc.PDFSize,
	}).Info("Certified PDF archived")

	return doc, nil
}

// Fetch obtiene un PDF ya archivado
func (s *ArchiveStorageService) Fetch(ctx context.Context, invoiceID uuid.UUID) (*models.CertifiedDocument, []byte, error) {
	doc, err := s.documents.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.storage.DownloadFile(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("error fetching archived PDF: %w", err)
	}

	return doc, data, nil
}

package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStorage struct {
	objects map[string][]byte
}

func (m *memoryStorage) UploadFile(ctx context.Context, key, contentType string, data []byte) (string, error) {
	m.objects[key] = data
	return "https://s3.example.test/" + key, nil
}

func (m *memoryStorage) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return data, nil
}

func (m *memoryStorage) Bucket() string { return "certified-invoices" }

type memoryDocuments struct {
	docs map[uuid.UUID]models.CertifiedDocument
}

func (m *memoryDocuments) Upsert(ctx context.Context, doc *models.CertifiedDocument) error {
	m.docs[doc.InvoiceID] = *doc
	return nil
}

func (m *memoryDocuments) GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*models.CertifiedDocument, error) {
	doc, ok := m.docs[invoiceID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &doc, nil
}

func TestArchiveStoreAndFetch(t *testing.T) {
	storage := &memoryStorage{objects: map[string][]byte{}}
	documents := &memoryDocuments{docs: map[uuid.UUID]models.CertifiedDocument{}}
	s := NewArchiveStorageService(storage, documents, "https://project.supabase.co/", quietLogger())
	invoiceID := uuid.New()

	doc, err := s.StoreCertifiedPDF(context.Background(), invoiceID, "FNE_F-1_REF.pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)

	key := "certified/" + invoiceID.String() + "/FNE_F-1_REF.pdf"
	assert.Equal(t, key, doc.StoragePath)
	assert.Equal(t, "https://project.supabase.co/storage/v1/object/public/certified-invoices/"+key, *doc.PublicURL)
	assert.Equal(t, int64(8), doc.PDFSize)

	fetched, data, err := s.Fetch(context.Background(), invoiceID)
	require.NoError(t, err)
	assert.Equal(t, "FNE_F-1_REF.pdf", fetched.FileName)
	assert.Equal(t, []byte("%PDF-1.3"), data)
}

func TestArchiveStoreWithoutProjectURL(t *testing.T) {
	storage := &memoryStorage{objects: map[string][]byte{}}
	documents := &memoryDocuments{docs: map[uuid.UUID]models.CertifiedDocument{}}
	s := NewArchiveStorageService(storage, documents, "", quietLogger())

	doc, err := s.StoreCertifiedPDF(context.Background(), uuid.New(), "a.pdf", []byte("x"))
	require.NoError(t, err)
	assert.Contains(t, *doc.PublicURL, "https://s3.example.test/certified/")
}

func TestArchiveFetchMissing(t *testing.T) {
	s := NewArchiveStorageService(
		&memoryStorage{objects: map[string][]byte{}},
		&memoryDocuments{docs: map[uuid.UUID]models.CertifiedDocument{}},
		"",
		quietLogger(),
	)

	_, _, err := s.Fetch(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

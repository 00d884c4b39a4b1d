package database

import (
	"context"
	"database/sql"

	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

// CertificationStore persiste el resultado de un intento de certificación:
// la factura actualizada y su entrada de auditoría, en una sola transacción
type CertificationStore struct {
	db       *DB
	invoices *InvoiceRepository
	logs     *APILogRepository
	logger   *logrus.Logger
}

// NewCertificationStore crea una nueva instancia del store
func NewCertificationStore(db *DB, invoices *InvoiceRepository, logs *APILogRepository, logger *logrus.Logger) *CertificationStore {
	return &CertificationStore{
		db:       db,
		invoices: invoices,
		logs:     logs,
		logger:   logger,
	}
}

// SaveReconciliation escribe la factura y la entrada de log juntas o ninguna
func (s *CertificationStore) SaveReconciliation(ctx context.Context, inv *models.Invoice, entry *models.APILogEntry) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.invoices.updateCertificationTx(ctx, tx, inv); err != nil {
			return err
		}
		return s.logs.insertTx(ctx, tx, entry)
	})
}

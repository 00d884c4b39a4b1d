package database

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*CertificationStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db := &DB{sqlDB}
	store := NewCertificationStore(db, NewInvoiceRepository(db, logger), NewAPILogRepository(db, logger), logger)
	return store, mock
}

func sampleReconciliation() (*models.Invoice, *models.APILogEntry) {
	now := time.Now().UTC()
	inv := &models.Invoice{
		ID:                uuid.New(),
		InvoiceNumber:     "FAC-0001",
		Status:            models.InvoiceStatusCertified,
		FiscalReference:   "FNE-TEST-20260101-ABCDEF12",
		VerificationToken: "https://example.test/verification/abc",
		ProcessingStatus:  models.ProcessingStatusCertified,
		CertifiedAt:       &now,
		LastAttemptAt:     &now,
		UpdatedAt:         now,
	}
	entry := &models.APILogEntry{
		ID:          uuid.New(),
		InvoiceID:   &inv.ID,
		Operation:   models.OperationCertification,
		Endpoint:    "/external/invoices/sign",
		Method:      "POST",
		HTTPStatus:  200,
		Success:     true,
		Attempt:     1,
		Environment: models.EnvironmentTest,
		CreatedAt:   now,
	}
	return inv, entry
}

func TestSaveReconciliationCommitsInvoiceAndLog(t *testing.T) {
	store, mock := newTestStore(t)
	inv, entry := sampleReconciliation()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invoices SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO api_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SaveReconciliation(context.Background(), inv, entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReconciliationRollsBackWhenLogInsertFails(t *testing.T) {
	store, mock := newTestStore(t)
	inv, entry := sampleReconciliation()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invoices SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO api_logs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.SaveReconciliation(context.Background(), inv, entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReconciliationUnknownInvoice(t *testing.T) {
	store, mock := newTestStore(t)
	inv, entry := sampleReconciliation()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invoices SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.SaveReconciliation(context.Background(), inv, entry)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigRepositoryGetActiveNone(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	repo := NewConfigRepository(&DB{sqlDB}, logger)

	mock.ExpectQuery("FROM certification_configs").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	cfg, err := repo.GetActive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestConfigRepositoryGetActiveConvertsSeconds(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	repo := NewConfigRepository(&DB{sqlDB}, logger)

	now := time.Now()
	id := uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "name", "base_url", "api_key", "environment", "timeout_seconds",
		"max_retry_attempts", "retry_delay_seconds", "is_active", "created_at", "updated_at",
	}).AddRow(id.String(), "sandbox", "https://fne.example", "secret", "sandbox", 30, 3, 60, true, now, now)
	mock.ExpectQuery("FROM certification_configs").WillReturnRows(rows)

	cfg, err := repo.GetActive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, id, cfg.ID)
	assert.Equal(t, models.EnvironmentSandbox, cfg.Environment)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, time.Minute, cfg.RetryDelay)
	assert.Equal(t, 3, cfg.MaxRetryAttempts)
}

func TestConfigRepositoryActivate(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	repo := NewConfigRepository(&DB{sqlDB}, logger)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("SET is_active = false").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET is_active = true").
		WithArgs(sqlmock.AnyArg(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Activate(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigRepositoryActivateUnknownRollsBack(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	repo := NewConfigRepository(&DB{sqlDB}, logger)

	mock.ExpectBegin()
	mock.ExpectExec("SET is_active = false").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET is_active = true").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = repo.Activate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

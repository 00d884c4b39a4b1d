package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/database"
	"github.com/hypernova-labs/fne-service/internal/metrics"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultReconcileTimeout = 15 * time.Second

// InvoiceStore es la parte del repositorio de facturas que usa el orquestador
type InvoiceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	ListCertifiable(ctx context.Context, filter database.CertifiableFilter) ([]models.Invoice, error)
	CountCertifiable(ctx context.Context) (int, error)
	ListForPeriod(ctx context.Context, from, to time.Time) ([]models.PeriodInvoice, error)
}

// ConfigStore lee la configuración de certificación activa
type ConfigStore interface {
	GetActive(ctx context.Context) (*models.CertificationConfig, error)
}

// BatchNotifier recibe el resumen de cada lote (alertas al operador)
type BatchNotifier interface {
	NotifyBatchResult(ctx context.Context, result *models.BatchResult)
}

// CertificationServiceOptions agrupa los parámetros del orquestador
type CertificationServiceOptions struct {
	DefaultBatchSize int
	ReconcileTimeout time.Duration
}

// CertificationService orquesta el pipeline: validar, convertir, certificar, reconciliar
type CertificationService struct {
	configs          ConfigStore
	invoices         InvoiceStore
	gateway          Gateway
	reconciler       *Reconciler
	notifier         BatchNotifier
	metrics          *metrics.CertificationMetrics
	batchSize        int
	reconcileTimeout time.Duration
	logger           *logrus.Logger
	now              func() time.Time
}

// NewCertificationService crea una nueva instancia del servicio
func NewCertificationService(
	configs ConfigStore,
	invoices InvoiceStore,
	gateway Gateway,
	reconciler *Reconciler,
	notifier BatchNotifier,
	m *metrics.CertificationMetrics,
	opts CertificationServiceOptions,
	logger *logrus.Logger,
) *CertificationService {
	if opts.DefaultBatchSize <= 0 {
		opts.DefaultBatchSize = 50
	}
	if opts.ReconcileTimeout <= 0 {
		opts.ReconcileTimeout = defaultReconcileTimeout
	}

	return &CertificationService{
		configs:          configs,
		invoices:         invoices,
		gateway:          gateway,
		reconciler:       reconciler,
		notifier:         notifier,
		metrics:          m,
		batchSize:        opts.DefaultBatchSize,
		reconcileTimeout: opts.ReconcileTimeout,
		logger:           logger,
		now:              time.Now,
	}
}

// CertifyPending certifica las facturas PENDING y las ERROR reintentables,
// de la más antigua a la más reciente, una a la vez. La falla de una factura
// nunca interrumpe el lote.
func (s *CertificationService) CertifyPending(ctx context.Context, maxCount int) *models.BatchResult {
	result := &models.BatchResult{
		StartedAt: s.now().UTC(),
		Results:   []models.InvoiceOutcome{},
	}

	cfg, err := s.configs.GetActive(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Error loading active certification configuration")
		result.Error = "error loading certification configuration"
		return s.finishBatch(ctx, result, "error")
	}

	if cfg == nil {
		count, err := s.invoices.CountCertifiable(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Error counting pending invoices")
		}
		result.Total = count
		result.ErrorCount = count
		result.Error = "no active configuration"
		s.logger.WithField("pending", count).Warn("Batch skipped: no active certification configuration")
		return s.finishBatch(ctx, result, "no_config")
	}

	limit := maxCount
	if limit <= 0 {
		limit = s.batchSize
	}
	filter := database.CertifiableFilter{
		Limit:      limit,
		MaxRetries: cfg.MaxRetryAttempts,
	}
	if cfg.RetryDelay > 0 {
		filter.RetryCutoff = s.now().UTC().Add(-cfg.RetryDelay)
	}

	invoices, err := s.invoices.ListCertifiable(ctx, filter)
	if err != nil {
		s.logger.WithError(err).Error("Error listing certifiable invoices")
		result.Error = "error listing pending invoices"
		return s.finishBatch(ctx, result, "error")
	}
	result.Total = len(invoices)

	s.logger.WithFields(logrus.Fields{
		"selected":    len(invoices),
		"limit":       limit,
		"environment": cfg.Environment,
	}).Info("Starting certification batch")

	for i := range invoices {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.Skipped = len(invoices) - i
			s.logger.WithField("skipped", result.Skipped).Warn("Certification batch cancelled")
			break
		}

		outcome, _ := s.certifyOne(ctx, &invoices[i], cfg)
		if outcome.ErrorKind == models.ErrorKindCancelled {
			result.Cancelled = true
			result.Skipped = len(invoices) - i
			s.logger.WithField("skipped", result.Skipped).Warn("Certification batch cancelled")
			break
		}
		result.Results = append(result.Results, outcome)
		if outcome.Success {
			result.SuccessCount++
		} else {
			result.ErrorCount++
		}
	}

	label := "completed"
	if result.Cancelled {
		label = "cancelled"
	}
	return s.finishBatch(ctx, result, label)
}

func (s *CertificationService) finishBatch(ctx context.Context, result *models.BatchResult, label string) *models.BatchResult {
	result.FinishedAt = s.now().UTC()
	s.metrics.ObserveBatch(label, result.SuccessCount, result.ErrorCount)

	s.logger.WithFields(logrus.Fields{
		"total":     result.Total,
		"success":   result.SuccessCount,
		"errors":    result.ErrorCount,
		"skipped":   result.Skipped,
		"cancelled": result.Cancelled,
		"duration":  result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("Certification batch finished")

	if s.notifier != nil {
		s.notifier.NotifyBatchResult(context.WithoutCancel(ctx), result)
	}
	return result
}

// CertifyInvoice certifica una sola factura por ID
func (s *CertificationService) CertifyInvoice(ctx context.Context, id uuid.UUID) (*models.InvoiceOutcome, error) {
	cfg, err := s.configs.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if cfg == nil {
		return nil, models.ErrNoActiveConfig
	}

	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.IsCertified() {
		return nil, fmt.Errorf("invoice %s: %w", inv.InvoiceNumber, models.ErrAlreadyCertified)
	}

	outcome, err := s.certifyOne(ctx, inv, cfg)
	return &outcome, err
}

// certifyOne corre el pipeline completo sobre una factura. El error retornado
// es solo de persistencia; las fallas de certificación van en el outcome.
func (s *CertificationService) certifyOne(ctx context.Context, inv *models.Invoice, cfg *models.CertificationConfig) (models.InvoiceOutcome, error) {
	start := s.now()

	var result *models.CertificationResult
	if ok, reason := Validate(inv, cfg); !ok {
		result = models.NewFailedResult(models.ErrorKindValidation, reason)
		result.Environment = cfg.Environment
	} else if req, err := ToExternalFormat(inv); err != nil {
		result = models.NewFailedResult(models.ErrorKindValidation, err.Error())
		result.Environment = cfg.Environment
	} else {
		result = s.gateway.Certify(ctx, req, cfg)
	}

	// Una llamada cortada por cancelación no dice nada de la factura: queda intacta
	if result.ErrorKind == models.ErrorKindCancelled {
		s.logger.WithFields(logrus.Fields{
			"invoice_id":     inv.ID,
			"invoice_number": inv.InvoiceNumber,
		}).Warn("Certification call cancelled, invoice left unchanged")
		return models.InvoiceOutcome{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			Status:        inv.Status,
			ErrorKind:     result.ErrorKind,
			ErrorMessage:  result.ErrorMessage,
			ElapsedMs:     s.now().Sub(start).Milliseconds(),
		}, nil
	}

	// La reconciliación en curso termina aunque el lote se cancele
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reconcileTimeout)
	defer cancel()
	persistErr := s.reconciler.Reconcile(rctx, inv, result)

	outcome := models.InvoiceOutcome{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Success:       result.Success && persistErr == nil,
		Status:        inv.Status,
		ElapsedMs:     s.now().Sub(start).Milliseconds(),
	}
	if result.Success {
		outcome.FiscalReference = result.FiscalReference
		outcome.Token = result.Token
		outcome.Warning = result.Warning
	} else {
		outcome.ErrorKind = result.ErrorKind
		outcome.ErrorMessage = result.ErrorMessage
	}
	if persistErr != nil {
		outcome.PersistError = persistErr.Error()
		if outcome.ErrorKind == "" {
			outcome.ErrorKind = models.ErrorKindPersistence
		}
	}

	fields := logrus.Fields{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
		"status":         outcome.Status,
		"elapsed_ms":     outcome.ElapsedMs,
	}
	if outcome.Success {
		s.logger.WithFields(fields).WithField("reference", outcome.FiscalReference).Info("Invoice certified")
	} else {
		s.logger.WithFields(fields).WithField("error_kind", outcome.ErrorKind).Warnf("Invoice not certified: %s", outcome.ErrorMessage)
	}

	return outcome, persistErr
}

// GetPendingInvoicesCount cuenta las facturas PENDING o ERROR
func (s *CertificationService) GetPendingInvoicesCount(ctx context.Context) (int, error) {
	return s.invoices.CountCertifiable(ctx)
}

// GetInvoicesForPeriod lista las facturas con fecha en [from, to)
func (s *CertificationService) GetInvoicesForPeriod(ctx context.Context, from, to time.Time) ([]models.PeriodInvoice, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("period start must be before end: %w", models.ErrValidation)
	}
	return s.invoices.ListForPeriod(ctx, from, to)
}

package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/inngest/inngestgo"
	"github.com/sirupsen/logrus"
)

const (
	CertifyPendingID          = "fne-certify-pending"
	CertifyPendingScheduledID = "fne-certify-pending-scheduled"
	CertifyPendingEvent       = "fne/certify.pending.requested"

	// BatchLockKey serializa las corridas del lote entre réplicas
	BatchLockKey = "fne:batch:lock"
)

// ErrBatchInProgress indica que otra corrida tiene el lock
var ErrBatchInProgress = errors.New("certification batch already running")

// BatchCertifier ejecuta el lote de certificación
type BatchCertifier interface {
	CertifyPending(ctx context.Context, maxCount int) *models.BatchResult
}

// Locker es un lock distribuido con dueño y TTL
type Locker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// BatchWorkflow corre CertifyPending bajo un lock de Redis
type BatchWorkflow struct {
	certifier BatchCertifier
	locker    Locker
	lockTTL   time.Duration
	logger    *logrus.Logger
}

// NewBatchWorkflow crea una nueva instancia del workflow. locker puede ser nil.
func NewBatchWorkflow(certifier BatchCertifier, locker Locker, lockTTL time.Duration, logger *logrus.Logger) *BatchWorkflow {
	return &BatchWorkflow{
		certifier: certifier,
		locker:    locker,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// Handle es la función registrada en Inngest para cron y evento
func (w *BatchWorkflow) Handle(ctx context.Context, input inngestgo.Input[map[string]any]) (any, error) {
	maxCount := maxFromEvent(input.Event.Data)

	result, err := w.Run(ctx, maxCount)
	if errors.Is(err, ErrBatchInProgress) {
		return map[string]any{"skipped": true}, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Run adquiere el lock y ejecuta el lote. Retorna ErrBatchInProgress si el
// lock está tomado.
func (w *BatchWorkflow) Run(ctx context.Context, maxCount int) (*models.BatchResult, error) {
	if w.locker != nil {
		owner := uuid.NewString()
		acquired, err := w.locker.AcquireLock(ctx, BatchLockKey, owner, w.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("error acquiring batch lock: %w", err)
		}
		if !acquired {
			w.logger.Info("Certification batch skipped, lock held by another run")
			return nil, ErrBatchInProgress
		}
		defer func() {
			if err := w.locker.ReleaseLock(context.WithoutCancel(ctx), BatchLockKey, owner); err != nil {
				w.logger.WithError(err).Warn("Could not release batch lock")
			}
		}()
	}

	return w.certifier.CertifyPending(ctx, maxCount), nil
}

// maxFromEvent lee "max" del evento; 0 usa el tamaño de lote por defecto
func maxFromEvent(data map[string]any) int {
	switch v := data["max"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

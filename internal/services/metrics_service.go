package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 200
)

// AuditReader lee el log de auditoría
type AuditReader interface {
	ListSince(ctx context.Context, op models.OperationType, since time.Time) ([]models.APILogEntry, error)
	ListRecent(ctx context.Context, limit int) ([]models.APILogEntry, error)
}

// MetricsService calcula métricas de certificación a partir del log de auditoría
type MetricsService struct {
	logs   AuditReader
	logger *logrus.Logger
	now    func() time.Time
}

// NewMetricsService crea una nueva instancia del servicio
func NewMetricsService(logs AuditReader, logger *logrus.Logger) *MetricsService {
	return &MetricsService{
		logs:   logs,
		logger: logger,
		now:    time.Now,
	}
}

// GetCertificationMetrics resume los intentos de certificación del día
func (s *MetricsService) GetCertificationMetrics(ctx context.Context) (*models.CertificationMetrics, error) {
	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	hourAgo := now.Add(-time.Hour)

	since := startOfDay
	if hourAgo.Before(since) {
		since = hourAgo
	}

	entries, err := s.logs.ListSince(ctx, models.OperationCertification, since)
	if err != nil {
		return nil, fmt.Errorf("error loading certification activity: %w", err)
	}

	m := &models.CertificationMetrics{Date: startOfDay.Format("2006-01-02")}
	var totalElapsed int64
	for _, e := range entries {
		if e.Success && !e.CreatedAt.Before(hourAgo) {
			m.CertificationsLastHour++
		}
		if e.CreatedAt.Before(startOfDay) {
			continue
		}

		m.AttemptsToday++
		totalElapsed += e.ElapsedMs
		if e.Success {
			m.SuccessfulToday++
			m.TotalAmountCertifiedToday += e.Amount
		} else {
			m.FailedToday++
		}
	}

	if m.AttemptsToday > 0 {
		m.SuccessRateToday = round2(float64(m.SuccessfulToday) / float64(m.AttemptsToday) * 100)
		m.AverageProcessingTimeMs = round2(float64(totalElapsed) / float64(m.AttemptsToday))
	}

	return m, nil
}

// GetRecentActivity retorna las últimas entradas del log de auditoría
func (s *MetricsService) GetRecentActivity(ctx context.Context, limit int) ([]models.ActivityItem, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	entries, err := s.logs.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("error loading recent activity: %w", err)
	}

	items := make([]models.ActivityItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.ActivityItem{
			ID:          e.ID,
			InvoiceID:   e.InvoiceID,
			Operation:   e.Operation,
			Success:     e.Success,
			ErrorKind:   e.ErrorKind,
			Message:     activityMessage(e),
			ElapsedMs:   e.ElapsedMs,
			Environment: e.Environment,
			OccurredAt:  e.CreatedAt,
		})
	}

	return items, nil
}

func activityMessage(e models.APILogEntry) string {
	if !e.Success {
		if e.ErrorMessage != "" {
			return e.ErrorMessage
		}
		return fmt.Sprintf("%s failed", e.Operation)
	}
	switch e.Operation {
	case models.OperationCertification:
		return "Invoice certified"
	case models.OperationVerification:
		return "Token verified"
	case models.OperationDownload:
		return "Certified PDF downloaded"
	}
	return fmt.Sprintf("%s succeeded", e.Operation)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package workflows

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hypernova-labs/fne-service/internal/config"
	"github.com/inngest/inngestgo"
	"github.com/sirupsen/logrus"
)

// InngestClient maneja la configuración y registro de workflows
type InngestClient struct {
	client inngestgo.Client
	logger *logrus.Logger
}

// NewInngestClient crea una nueva instancia del cliente
func NewInngestClient(cfg *config.Config, logger *logrus.Logger) (*InngestClient, error) {
	opts := inngestgo.ClientOpts{
		AppID: cfg.Inngest.AppID,
		Dev:   &cfg.Inngest.Dev,
	}

	// Fuera de modo dev las credenciales son obligatorias
	if !cfg.Inngest.Dev {
		if cfg.Inngest.EventKey == "" {
			return nil, fmt.Errorf("INNGEST_EVENT_KEY not configured")
		}
		if cfg.Inngest.SigningKey == "" {
			return nil, fmt.Errorf("INNGEST_SIGNING_KEY not configured")
		}
	}
	if cfg.Inngest.EventKey != "" {
		opts.EventKey = &cfg.Inngest.EventKey
	}
	if cfg.Inngest.SigningKey != "" {
		opts.SigningKey = &cfg.Inngest.SigningKey
	}

	client, err := inngestgo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("error creating Inngest client: %w", err)
	}

	return &InngestClient{
		client: client,
		logger: logger,
	}, nil
}

// RegisterWorkflows registra todos los workflows con Inngest
func (c *InngestClient) RegisterWorkflows(batch *BatchWorkflow, cron string) error {
	c.logger.WithField("cron", cron).Info("Registering workflows with Inngest")

	if cron != "" {
		if _, err := inngestgo.CreateFunction(
			c.client,
			inngestgo.FunctionOpts{ID: CertifyPendingScheduledID, Name: "Certify pending invoices (scheduled)"},
			inngestgo.CronTrigger(cron),
			batch.Handle,
		); err != nil {
			return fmt.Errorf("error registering %s: %w", CertifyPendingScheduledID, err)
		}
	}

	if _, err := inngestgo.CreateFunction(
		c.client,
		inngestgo.FunctionOpts{ID: CertifyPendingID, Name: "Certify pending invoices"},
		inngestgo.EventTrigger(CertifyPendingEvent, nil),
		batch.Handle,
	); err != nil {
		return fmt.Errorf("error registering %s: %w", CertifyPendingID, err)
	}

	return nil
}

// RequestBatch encola una corrida del lote de certificación
func (c *InngestClient) RequestBatch(ctx context.Context, maxCount int) (string, error) {
	id, err := c.client.Send(ctx, inngestgo.Event{
		Name: CertifyPendingEvent,
		Data: map[string]any{"max": maxCount},
	})
	if err != nil {
		return "", fmt.Errorf("error sending %s: %w", CertifyPendingEvent, err)
	}

	c.logger.WithFields(logrus.Fields{
		"event_id": id,
		"max":      maxCount,
	}).Info("Certification batch requested")

	return id, nil
}

// Handler retorna el handler HTTP que expone los workflows
func (c *InngestClient) Handler() http.Handler {
	return c.client.Serve()
}

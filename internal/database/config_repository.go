package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

// ConfigRepository maneja la configuración de certificación guardada en base de datos
type ConfigRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewConfigRepository crea una nueva instancia del repositorio
func NewConfigRepository(db *DB, logger *logrus.Logger) *ConfigRepository {
	return &ConfigRepository{
		db:     db,
		logger: logger,
	}
}

// GetActive obtiene la configuración activa. Retorna nil, nil si no hay ninguna.
func (r *ConfigRepository) GetActive(ctx context.Context) (*models.CertificationConfig, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, name, COALESCE(base_url, ''), COALESCE(api_key, ''), environment,
			   timeout_seconds, max_retry_attempts, retry_delay_seconds, is_active, created_at, updated_at
		FROM certification_configs
		WHERE is_active = true
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var cfg models.CertificationConfig
	var timeoutSeconds, retryDelaySeconds int
	err := r.db.QueryRowContext(ctx, query).Scan(
		&cfg.ID, &cfg.Name, &cfg.BaseURL, &cfg.APIKey, &cfg.Environment,
		&timeoutSeconds, &cfg.MaxRetryAttempts, &retryDelaySeconds, &cfg.IsActive,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying active configuration: %w", err)
	}

	cfg.Timeout = time.Duration(timeoutSeconds) * time.Second
	cfg.RetryDelay = time.Duration(retryDelaySeconds) * time.Second

	return &cfg, nil
}

// Activate marca una configuración como la única activa
func (r *ConfigRepository) Activate(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE certification_configs SET is_active = false, updated_at = $1 WHERE is_active = true`,
			time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("error deactivating configurations: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE certification_configs SET is_active = true, updated_at = $1 WHERE id = $2`,
			time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("error activating configuration: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("error getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("configuration %s: %w", id, models.ErrNotFound)
		}

		r.logger.WithField("config_id", id).Info("Certification configuration activated")
		return nil
	})
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

// APILogRepository maneja el log de auditoría de llamadas al servicio FNE.
// Las entradas solo se insertan, nunca se modifican.
type APILogRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewAPILogRepository crea una nueva instancia del repositorio
func NewAPILogRepository(db *DB, logger *logrus.Logger) *APILogRepository {
	return &APILogRepository{
		db:     db,
		logger: logger,
	}
}

const insertAPILogQuery = `
	INSERT INTO api_logs (
		id, invoice_id, operation, endpoint, method, request_body, response_body,
		http_status, elapsed_ms, success, error_kind, error_message, attempt,
		environment, amount, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
	)
`

func apiLogArgs(e *models.APILogEntry) []interface{} {
	return []interface{}{
		e.ID, e.InvoiceID, e.Operation, e.Endpoint, e.Method,
		nullString(e.RequestBody), nullString(e.ResponseBody),
		e.HTTPStatus, e.ElapsedMs, e.Success, nullString(string(e.ErrorKind)), nullString(e.ErrorMessage),
		e.Attempt, e.Environment, e.Amount, e.CreatedAt,
	}
}

// insertTx inserta una entrada dentro de una transacción existente
func (r *APILogRepository) insertTx(ctx context.Context, tx *sql.Tx, entry *models.APILogEntry) error {
	if _, err := tx.ExecContext(ctx, insertAPILogQuery, apiLogArgs(entry)...); err != nil {
		return fmt.Errorf("error inserting api log: %w", err)
	}
	return nil
}

// Append inserta una entrada fuera de la reconciliación (verificación, descarga)
func (r *APILogRepository) Append(ctx context.Context, entry *models.APILogEntry) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, insertAPILogQuery, apiLogArgs(entry)...); err != nil {
		return fmt.Errorf("error inserting api log: %w", err)
	}
	return nil
}

// ListSince obtiene las entradas de una operación creadas desde since
func (r *APILogRepository) ListSince(ctx context.Context, op models.OperationType, since time.Time) ([]models.APILogEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, invoice_id, operation, endpoint, method, http_status, elapsed_ms, success,
			   COALESCE(error_kind, ''), COALESCE(error_message, ''), attempt, environment, amount, created_at
		FROM api_logs
		WHERE operation = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`

	return r.query(ctx, query, op, since)
}

// ListRecent obtiene las últimas entradas de todas las operaciones
func (r *APILogRepository) ListRecent(ctx context.Context, limit int) ([]models.APILogEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, invoice_id, operation, endpoint, method, http_status, elapsed_ms, success,
			   COALESCE(error_kind, ''), COALESCE(error_message, ''), attempt, environment, amount, created_at
		FROM api_logs
		ORDER BY created_at DESC
		LIMIT $1
	`

	return r.query(ctx, query, limit)
}

func (r *APILogRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.APILogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying api logs: %w", err)
	}
	defer rows.Close()

	var entries []models.APILogEntry
	for rows.Next() {
		var e models.APILogEntry
		var errorKind string
		if err := rows.Scan(
			&e.ID, &e.InvoiceID, &e.Operation, &e.Endpoint, &e.Method, &e.HTTPStatus, &e.ElapsedMs,
			&e.Success, &errorKind, &e.ErrorMessage, &e.Attempt, &e.Environment, &e.Amount, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning api log: %w", err)
		}
		e.ErrorKind = models.ErrorKind(errorKind)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
